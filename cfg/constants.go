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

package cfg

const (
	// Logging-level constants, mirrored by internal/logger's Severity*
	// constants.

	TRACE   string = "TRACE"
	DEBUG   string = "DEBUG"
	INFO    string = "INFO"
	WARNING string = "WARNING"
	ERROR   string = "ERROR"
	OFF     string = "OFF"
)

const (
	// DefaultLogFormat is used when --log-format is unset.
	DefaultLogFormat = "text"

	// DefaultLogSeverity is used when --log-severity is unset.
	DefaultLogSeverity = INFO

	// CacheRootDirName is the directory under the user's home directory
	// that holds one subdirectory per mounted target.
	CacheRootDirName = ".cachefs"

	// MetadataFileName is the MetaStore's SQLite file within a cache root.
	MetadataFileName = "metadata.db"

	// ShadowDirName is the directory within a cache root holding
	// ShadowFiles, mirroring the target's own directory tree.
	ShadowDirName = "file_data"
)
