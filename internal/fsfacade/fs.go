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

// Package fsfacade translates bazil.org/fuse filesystem callbacks into
// operations on a target directory and a filedatacache.Cache. Every
// callback runs under FS.mu, giving each RangeIndex mutation sequence
// (lookup + merge + delete + insert) atomicity relative to every other
// reader or writer of the same Node.
package fsfacade

import (
	"context"
	"sync"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"golang.org/x/sys/unix"

	"github.com/cachefs/cachefs/internal/clock"
	"github.com/cachefs/cachefs/internal/metastore"
	"github.com/cachefs/cachefs/internal/metrics"
)

// FS is the root of the mounted filesystem, implementing bazil.org/fuse's
// fs.FS. One FS is constructed per mount by the MountShell (cmd/).
type FS struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	// Target is the absolute path to the backing directory being mirrored.
	Target string

	// CacheRoot holds metadata.db and the file_data/ ShadowFile tree.
	CacheRoot string

	Store   *metastore.Store
	Clock   clock.Clock
	Metrics *metrics.Handle

	// ReadOnly rejects every mutating callback with EROFS.
	ReadOnly bool

	// Debug logs every callback at TRACE severity (cfg.Config.Debug).
	Debug bool

	/////////////////////////
	// Mutable state
	/////////////////////////

	// mu serializes every callback dispatched against this FS, giving
	// the facade single-threaded cooperative scheduling.
	mu sync.Mutex
}

var (
	_ fs.FS         = &FS{}
	_ fs.FSStatfser = &FS{}
)

// Root returns the Node for the mountpoint's root directory, whose
// target-relative path is the empty string.
func (f *FS) Root() (fs.Node, error) {
	return &Node{fs: f, relPath: ""}, nil
}

// Statfs reports the target filesystem's statvfs, so df and friends see
// the backing store's capacity rather than a fiction.
func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	var st unix.Statfs_t
	if err := unix.Statfs(f.Target, &st); err != nil {
		return targetErrno(err)
	}

	resp.Blocks = st.Blocks
	resp.Bfree = st.Bfree
	resp.Bavail = st.Bavail
	resp.Files = st.Files
	resp.Ffree = st.Ffree
	resp.Bsize = uint32(st.Bsize)
	resp.Namelen = uint32(st.Namelen)
	resp.Frsize = uint32(st.Frsize)
	return nil
}
