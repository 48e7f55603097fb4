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

package mount

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetResolvedPathExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	resolved, err := GetResolvedPath("~/foo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "foo"), resolved)
}

func TestGetResolvedPathRejectsEmpty(t *testing.T) {
	_, err := GetResolvedPath("")
	assert.Error(t, err)
}

func TestGetResolvedPathMakesRelativeAbsolute(t *testing.T) {
	resolved, err := GetResolvedPath("relative/path")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(resolved))
}

func TestDeriveCacheDirIsStableHashOfTarget(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := DeriveCacheDir("/mnt/data")
	require.NoError(t, err)

	sum := md5.Sum([]byte("/mnt/data"))
	want := filepath.Join(home, ".cachefs", hex.EncodeToString(sum[:]))
	assert.Equal(t, want, got)

	again, err := DeriveCacheDir("/mnt/data")
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestDeriveCacheDirDiffersPerTarget(t *testing.T) {
	a, err := DeriveCacheDir("/mnt/data")
	require.NoError(t, err)
	b, err := DeriveCacheDir("/mnt/other")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEnsureCacheDirCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cachefs-root")
	require.NoError(t, EnsureCacheDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
