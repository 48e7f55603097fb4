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

// Package mount resolves CLI arguments into a ready-to-serve mount: the
// `-o key=value` option string, absolute target/mountpoint paths, and the
// cache root directory.
package mount

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// GetResolvedPath canonicalizes p: expands a leading "~" to the user's
// home directory, then returns the absolute path.
func GetResolvedPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}

	if p == "~" || len(p) >= 2 && p[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		if p == "~" {
			p = home
		} else {
			p = filepath.Join(home, p[2:])
		}
	}

	resolved, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", p, err)
	}
	return resolved, nil
}

// DeriveCacheDir returns the default cache root for absoluteTarget:
// `~/.cachefs/<hex(md5(absolute target))>`.
func DeriveCacheDir(absoluteTarget string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}

	sum := md5.Sum([]byte(absoluteTarget))
	return filepath.Join(home, ".cachefs", hex.EncodeToString(sum[:])), nil
}

// EnsureCacheDir creates cacheDir (and its file_data subdirectory) if
// they do not already exist.
func EnsureCacheDir(cacheDir string) error {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("creating cache root %q: %w", cacheDir, err)
	}
	if err := os.MkdirAll(filepath.Join(cacheDir, "file_data"), 0755); err != nil {
		return fmt.Errorf("creating shadow directory in %q: %w", cacheDir, err)
	}
	return nil
}
