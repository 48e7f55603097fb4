// Copyright 2024 CacheFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cachefserr defines the error kinds from which the rest of the
// module builds its propagation policy: which failures are internal
// signals, which degrade the cache silently, and which surface to the
// filesystem caller unchanged.
package cachefserr

import "errors"

// Sentinel error kinds. Wrap them with fmt.Errorf("...: %w", Kind) and test
// with errors.Is.
var (
	// CacheMiss means the RangeIndex has no block covering a requested
	// read. It never escapes FileDataCache.Read; callers translate it into
	// a target read followed by an Update.
	CacheMiss = errors.New("cachefs: cache miss")

	// NotCached means a lookup-only Open could not resolve a Node for a
	// path. The facade treats this as "treat the open as fresh."
	NotCached = errors.New("cachefs: path not cached")

	// TargetIOError wraps a failure performing an operation against the
	// backing target directory. It always propagates to the caller.
	TargetIOError = errors.New("cachefs: target I/O error")

	// CacheIOError wraps a failure on the ShadowFile or MetaStore. It is a
	// cache downgrade, not a user-visible failure, whenever the
	// corresponding target operation already succeeded.
	CacheIOError = errors.New("cachefs: cache I/O error")

	// InvalidArgument covers negative offsets and other caller mistakes.
	// Fatal at startup, surfaced at runtime.
	InvalidArgument = errors.New("cachefs: invalid argument")
)
