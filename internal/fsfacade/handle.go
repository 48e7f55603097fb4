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
	"context"
	"errors"
	"io"
	"os"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/cachefs/cachefs/internal/cachefserr"
	"github.com/cachefs/cachefs/internal/filedatacache"
	"github.com/cachefs/cachefs/internal/logger"
)

// Handle is an open regular file: the target's os.File plus the bound
// FileDataCache.
type Handle struct {
	fs      *FS
	relPath string
	target  *os.File
	cache   *filedatacache.Cache
}

var (
	_ fs.Handle         = &Handle{}
	_ fs.HandleReader   = &Handle{}
	_ fs.HandleWriter   = &Handle{}
	_ fs.HandleFlusher  = &Handle{}
	_ fs.HandleReleaser = &Handle{}
)

// trace logs format under Debug, mirroring Node.trace.
func (h *Handle) trace(format string, args ...any) {
	if h.fs.Debug {
		logger.Tracef(format, args...)
	}
}

// Open opens the target file with the requested flags, stats it for the
// target's inode number, and binds a FileDataCache to that Node.
func (n *Node) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.trace("open %s flags=%v", n.relPath, req.Flags)

	if n.fs.ReadOnly && (req.Flags.IsWriteOnly() || req.Flags.IsReadWrite()) {
		return nil, syscall.EROFS
	}

	flags := int(req.Flags) &^ int(os.O_TRUNC)
	target, err := os.OpenFile(n.targetPath(), flags, 0644)
	if err != nil {
		return nil, targetErrno(err)
	}

	info, err := target.Stat()
	if err != nil {
		target.Close()
		return nil, targetErrno(err)
	}

	nodeID := inodeOf(info)
	truncate := req.Flags&fuse.OpenFlags(os.O_TRUNC) != 0
	if truncate {
		if err := target.Truncate(0); err != nil {
			target.Close()
			return nil, targetErrno(err)
		}
	}

	cache, err := filedatacache.Open(n.fs.Store, n.fs.CacheRoot, n.relPath, nodeID, truncate)
	if err != nil {
		target.Close()
		return nil, targetErrno(err)
	}

	return &Handle{fs: n.fs, relPath: n.relPath, target: target, cache: cache}, nil
}

// inodeOf extracts the backing inode number from a stat result, the
// Node identity comes from the target side, not the mount side.
func inodeOf(info os.FileInfo) uint64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Ino
	}
	return 0
}

// Read tries the cache first; on a miss, it reads the target, marks the
// range last if the target was exhausted, and folds the bytes into the
// cache before returning them.
func (h *Handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	data, err := h.cache.Read(req.Size, req.Offset)
	if err == nil {
		h.fs.Metrics.RecordRead(ctx, int64(len(data)), true)
		h.trace("read %s hit=true off=%d n=%d", h.relPath, req.Offset, len(data))
		resp.Data = data
		return nil
	}
	if !errors.Is(err, cachefserr.CacheMiss) {
		return targetErrno(err)
	}

	buf := make([]byte, req.Size)
	n, rerr := h.target.ReadAt(buf, req.Offset)
	if rerr != nil && !errors.Is(rerr, io.EOF) && n == 0 {
		return targetErrno(rerr)
	}
	buf = buf[:n]

	last := n < req.Size
	if !last {
		probe := make([]byte, 1)
		if _, perr := h.target.ReadAt(probe, req.Offset+int64(n)); errors.Is(perr, io.EOF) {
			last = true
		}
	}

	downgradeCacheError("read-fill", h.cache.Update(buf, req.Offset, last))
	h.fs.Metrics.RecordRead(ctx, int64(len(buf)), false)
	h.trace("read %s hit=false off=%d n=%d", h.relPath, req.Offset, len(buf))
	resp.Data = buf
	return nil
}

// Write forwards to the target first, then folds the written bytes into
// the cache (write-through).
func (h *Handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	if h.fs.ReadOnly {
		return syscall.EROFS
	}

	n, err := h.target.WriteAt(req.Data, req.Offset)
	if err != nil {
		return targetErrno(err)
	}
	resp.Size = n

	info, serr := h.target.Stat()
	last := false
	if serr == nil {
		last = req.Offset+int64(n) == info.Size()
	}

	downgradeCacheError("write-through", h.cache.Update(req.Data[:n], req.Offset, last))
	return nil
}

// Flush syncs the target file. Cache metadata is persisted per mutation,
// so no additional cache work happens here.
func (h *Handle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	if err := h.target.Sync(); err != nil {
		return targetErrno(err)
	}
	return nil
}

// Release closes both the target and cache handles.
func (h *Handle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	downgradeCacheError("close", h.cache.Close())
	return h.target.Close()
}
