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

package fsfacade

import (
	"errors"
	"os"
	"syscall"

	"github.com/cachefs/cachefs/internal/cachefserr"
	"github.com/cachefs/cachefs/internal/logger"
)

// targetErrno maps a target-side I/O failure to the syscall.Errno
// bazil.org/fuse recognizes, so it reaches the caller with the
// underlying code intact.
func targetErrno(err error) error {
	if err == nil {
		return nil
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	if os.IsNotExist(err) {
		return syscall.ENOENT
	}
	if os.IsPermission(err) {
		return syscall.EACCES
	}
	if os.IsExist(err) {
		return syscall.EEXIST
	}
	return syscall.EIO
}

// downgradeCacheError implements the CacheIOError propagation policy:
// when the target-side operation already succeeded, a cache failure is
// logged and swallowed rather than surfaced to the caller.
func downgradeCacheError(op string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, cachefserr.NotCached) {
		return
	}
	logger.Warnf("cache downgrade during %s: %v", op, err)
}
