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
	"os"
	"path/filepath"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/cachefs/cachefs/internal/filedatacache"
	"github.com/cachefs/cachefs/internal/logger"
)

// Node is one path under the mount. It holds no state of its own beyond
// its path relative to fs.Target; every callback stats or mutates the
// target directly.
type Node struct {
	fs      *FS
	relPath string
}

var (
	_ fs.Node               = &Node{}
	_ fs.NodeGetattrer      = &Node{}
	_ fs.NodeSetattrer      = &Node{}
	_ fs.NodeAccesser       = &Node{}
	_ fs.NodeStringLookuper = &Node{}
	_ fs.NodeMkdirer        = &Node{}
	_ fs.NodeRemover        = &Node{}
	_ fs.NodeRenamer        = &Node{}
	_ fs.NodeLinker         = &Node{}
	_ fs.NodeSymlinker      = &Node{}
	_ fs.NodeReadlinker     = &Node{}
	_ fs.NodeOpener         = &Node{}
	_ fs.HandleReadDirAller = &Node{}
)

// targetPath returns the absolute path under fs.Target for this Node.
func (n *Node) targetPath() string {
	return filepath.Join(n.fs.Target, n.relPath)
}

// childRelPath returns the virtual path of name under this directory, using
// "/" as the FileDataCache path separator regardless of host OS.
func (n *Node) childRelPath(name string) string {
	if n.relPath == "" {
		return name
	}
	return n.relPath + "/" + name
}

func (n *Node) trace(format string, args ...any) {
	if n.fs.Debug {
		logger.Tracef(format, args...)
	}
}

// Attr fills attr from the target's lstat. bazil.org/fuse calls this
// whenever a NodeGetattrer is not consulted directly; Getattr is the
// primary path and additionally refreshes Atime.
func (n *Node) Attr(ctx context.Context, attr *fuse.Attr) error {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()

	info, err := os.Lstat(n.targetPath())
	if err != nil {
		return targetErrno(err)
	}
	fillAttr(attr, info)
	return nil
}

// Getattr returns the target's lstat with Atime refreshed to now.
func (n *Node) Getattr(ctx context.Context, req *fuse.GetattrRequest, resp *fuse.GetattrResponse) error {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.trace("getattr %s", n.relPath)

	info, err := os.Lstat(n.targetPath())
	if err != nil {
		return targetErrno(err)
	}

	fillAttr(&resp.Attr, info)
	resp.Attr.Atime = n.fs.Clock.Now()
	return nil
}

// fillAttr populates a fuse.Attr from a os.FileInfo, pulling the
// platform-specific uid/gid/nlink/inode fields from the underlying
// syscall.Stat_t when available.
func fillAttr(attr *fuse.Attr, info os.FileInfo) {
	attr.Size = uint64(info.Size())
	attr.Mode = info.Mode()
	attr.Mtime = info.ModTime()

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		attr.Inode = st.Ino
		attr.Nlink = uint32(st.Nlink)
		attr.Uid = st.Uid
		attr.Gid = st.Gid
		attr.Blocks = uint64(st.Blocks)
	}
}

// Setattr mirrors chmod/chown/utime/truncate onto the target.
func (n *Node) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.trace("setattr %s valid=%v", n.relPath, req.Valid)

	if n.fs.ReadOnly {
		return syscall.EROFS
	}

	tp := n.targetPath()

	if req.Valid.Mode() {
		if err := os.Chmod(tp, req.Mode); err != nil {
			return targetErrno(err)
		}
	}
	if req.Valid.Uid() || req.Valid.Gid() {
		uid, gid := -1, -1
		if req.Valid.Uid() {
			uid = int(req.Uid)
		}
		if req.Valid.Gid() {
			gid = int(req.Gid)
		}
		if err := os.Chown(tp, uid, gid); err != nil {
			return targetErrno(err)
		}
	}
	if req.Valid.Atime() || req.Valid.Mtime() {
		atime, mtime := req.Atime, req.Mtime
		if !req.Valid.Atime() {
			atime = time.Now()
		}
		if !req.Valid.Mtime() {
			mtime = time.Now()
		}
		if err := os.Chtimes(tp, atime, mtime); err != nil {
			return targetErrno(err)
		}
	}
	if req.Valid.Size() {
		if err := os.Truncate(tp, int64(req.Size)); err != nil {
			return targetErrno(err)
		}
		downgradeCacheError("truncate", truncateCache(n.fs, n.relPath, int64(req.Size)))
	}

	info, err := os.Lstat(tp)
	if err != nil {
		return targetErrno(err)
	}
	fillAttr(&resp.Attr, info)
	return nil
}

// truncateCache best-effort truncates the cache entry for relPath; a
// missing binding is not an error.
func truncateCache(f *FS, relPath string, size int64) error {
	_, ok, err := f.Store.LookupNodeForPath(relPath)
	if err != nil || !ok {
		return err
	}
	c, err := filedatacache.Open(f.Store, f.CacheRoot, relPath, 0, false)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Truncate(size)
}

// Access checks req's mask against the target's lstat mode bits for the
// requesting uid/gid, not the fuse daemon's own credentials: with
// -o allow_other a caller's uid/gid can differ from the process mounting
// the filesystem, so syscall.Access (which checks the process) is not
// equivalent to access(2) semantics here.
func (n *Node) Access(ctx context.Context, req *fuse.AccessRequest) error {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()

	info, err := os.Lstat(n.targetPath())
	if err != nil {
		return targetErrno(err)
	}
	return checkAccess(info, req.Uid, req.Gid, req.Mask)
}

// checkAccess determines whether uid/gid has the rights named by mask
// against info's owner/group/other mode bits. No locking needed; info is
// a caller-owned snapshot.
func checkAccess(info os.FileInfo, uid, gid uint32, mask uint32) error {
	if mask == 0 {
		return nil
	}

	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	modeBits := uint32(st.Mode)
	user := (modeBits & 0700) >> 6
	group := (modeBits & 0070) >> 3
	other := modeBits & 0007

	var allowed uint32
	switch {
	case uid == st.Uid:
		allowed = user | group | other
	case gid == st.Gid:
		allowed = group | other
	default:
		allowed = other
	}

	const rOK, wOK, xOK = 0x4, 0x2, 0x1

	if mask&rOK != 0 && allowed&rOK == 0 {
		return syscall.EACCES
	}
	if mask&wOK != 0 && allowed&wOK == 0 {
		return syscall.EACCES
	}
	if mask&xOK != 0 {
		if uid == 0 {
			if allowed&0111 == 0 {
				return syscall.EACCES
			}
		} else if allowed&xOK == 0 {
			return syscall.EACCES
		}
	}
	return nil
}

// Lookup resolves name within this directory against the target.
func (n *Node) Lookup(ctx context.Context, name string) (fs.Node, error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.trace("lookup %s/%s", n.relPath, name)

	childTarget := filepath.Join(n.targetPath(), name)
	if _, err := os.Lstat(childTarget); err != nil {
		return nil, targetErrno(err)
	}

	return &Node{fs: n.fs, relPath: n.childRelPath(name)}, nil
}

// ReadDirAll enumerates the target directory's entries.
func (n *Node) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.trace("readdir %s", n.relPath)

	entries, err := os.ReadDir(n.targetPath())
	if err != nil {
		return nil, targetErrno(err)
	}

	dirents := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		typ := fuse.DT_File
		switch {
		case e.IsDir():
			typ = fuse.DT_Dir
		case e.Type()&os.ModeSymlink != 0:
			typ = fuse.DT_Link
		}
		dirents = append(dirents, fuse.Dirent{Name: e.Name(), Type: typ})
	}
	return dirents, nil
}

// Mkdir mirrors directory creation onto the target.
func (n *Node) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.trace("mkdir %s/%s", n.relPath, req.Name)

	if n.fs.ReadOnly {
		return nil, syscall.EROFS
	}

	childTarget := filepath.Join(n.targetPath(), req.Name)
	if err := os.Mkdir(childTarget, req.Mode); err != nil {
		return nil, targetErrno(err)
	}
	return &Node{fs: n.fs, relPath: n.childRelPath(req.Name)}, nil
}

// Remove mirrors unlink/rmdir onto the target; for a regular file it
// also drops the cache's ShadowFile and MetaStore rows.
func (n *Node) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.trace("remove %s/%s dir=%v", n.relPath, req.Name, req.Dir)

	if n.fs.ReadOnly {
		return syscall.EROFS
	}

	childTarget := filepath.Join(n.targetPath(), req.Name)
	if err := os.Remove(childTarget); err != nil {
		return targetErrno(err)
	}

	if !req.Dir {
		downgradeCacheError("unlink", filedatacache.UnlinkPath(n.fs.Store, n.fs.CacheRoot, n.childRelPath(req.Name)))
	}
	return nil
}

// Rename mirrors rename onto the target and rebinds the cache's
// MetaStore rows for the moved path.
func (n *Node) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.trace("rename %s/%s -> %s", n.relPath, req.OldName, req.NewName)

	if n.fs.ReadOnly {
		return syscall.EROFS
	}

	destDir, ok := newDir.(*Node)
	if !ok {
		return syscall.EXDEV
	}

	oldTarget := filepath.Join(n.targetPath(), req.OldName)
	newTarget := filepath.Join(destDir.targetPath(), req.NewName)
	if err := os.Rename(oldTarget, newTarget); err != nil {
		return targetErrno(err)
	}

	downgradeCacheError("rename", filedatacache.RenamePath(
		n.fs.Store, n.fs.CacheRoot,
		n.childRelPath(req.OldName), destDir.childRelPath(req.NewName),
	))
	return nil
}

// Link mirrors a hard link onto the target and aliases the cache's
// MetaStore rows so both paths resolve to the same Node.
func (n *Node) Link(ctx context.Context, req *fuse.LinkRequest, old fs.Node) (fs.Node, error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.trace("link %s/%s", n.relPath, req.NewName)

	if n.fs.ReadOnly {
		return nil, syscall.EROFS
	}

	oldNode, ok := old.(*Node)
	if !ok {
		return nil, syscall.EXDEV
	}

	newTarget := filepath.Join(n.targetPath(), req.NewName)
	if err := os.Link(oldNode.targetPath(), newTarget); err != nil {
		return nil, targetErrno(err)
	}

	downgradeCacheError("link", filedatacache.LinkPath(
		n.fs.Store, n.fs.CacheRoot, oldNode.relPath, n.childRelPath(req.NewName),
	))
	return &Node{fs: n.fs, relPath: n.childRelPath(req.NewName)}, nil
}

// Symlink mirrors symlink creation onto the target. CacheFS never caches
// symlink targets; they always pass through to the target.
func (n *Node) Symlink(ctx context.Context, req *fuse.SymlinkRequest) (fs.Node, error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.trace("symlink %s/%s -> %s", n.relPath, req.NewName, req.Target)

	if n.fs.ReadOnly {
		return nil, syscall.EROFS
	}

	newTarget := filepath.Join(n.targetPath(), req.NewName)
	if err := os.Symlink(req.Target, newTarget); err != nil {
		return nil, targetErrno(err)
	}
	return &Node{fs: n.fs, relPath: n.childRelPath(req.NewName)}, nil
}

// Readlink mirrors readlink from the target.
func (n *Node) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()

	dest, err := os.Readlink(n.targetPath())
	if err != nil {
		return "", targetErrno(err)
	}
	return dest, nil
}
