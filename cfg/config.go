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

// Package cfg holds CacheFS's mount configuration and the pflag/viper
// wiring that populates it from flags and an optional config file.
package cfg

// Config is the fully resolved configuration for one mount.
type Config struct {
	// Target is the absolute path to the backing directory being cached.
	Target string `mapstructure:"target"`

	// CacheDir is the cache root. Empty means "derive from Target", see
	// DeriveCacheDir.
	CacheDir string `mapstructure:"cache"`

	// Mountpoint is where the filesystem is exposed. Populated from the
	// positional CLI argument, not a flag.
	Mountpoint string `mapstructure:"-"`

	Logging LoggingConfig `mapstructure:"logging"`

	// Foreground keeps the mount in the foreground instead of daemonizing.
	// CacheFS only supports foreground operation, so this field exists
	// purely for flag-compatibility with scripts that pass it.
	Foreground bool `mapstructure:"foreground"`

	// Debug turns on TRACE-level per-callback logging. Range-index
	// invariant checking runs regardless of this setting.
	Debug bool `mapstructure:"debug"`

	// AllowOther permits users other than the mount owner to access the
	// filesystem (passed through to the kernel mount option).
	AllowOther bool `mapstructure:"allow-other"`

	// ReadOnly rejects write/truncate/unlink/... and serves reads only.
	ReadOnly bool `mapstructure:"read-only"`
}

// LoggingConfig controls internal/logger.
type LoggingConfig struct {
	FilePath string `mapstructure:"file"`
	Format   string `mapstructure:"format"`
	Severity string `mapstructure:"severity"`
}
