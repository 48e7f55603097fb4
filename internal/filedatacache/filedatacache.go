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

// Package filedatacache implements the per-open-file cache object: it
// binds a virtual path to (Node id, ShadowFile handle, RangeIndex),
// serves cache-hit reads directly from the ShadowFile, and folds writes
// and target-fetched bytes into the RangeIndex.
package filedatacache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cachefs/cachefs/internal/cachefserr"
	"github.com/cachefs/cachefs/internal/metastore"
	"github.com/cachefs/cachefs/internal/rangeindex"
)

// Cache is one open handle's binding to cached data for a path.
type Cache struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	store     *metastore.Store
	cacheRoot string

	/////////////////////////
	// Mutable state
	/////////////////////////

	path   string
	nodeID uint64
	shadow *os.File
	index  *rangeindex.Index
	hits   int64
	misses int64
}

// shadowPath returns the path of the ShadowFile for a virtual path,
// mirroring the target's own tree under <cacheRoot>/file_data.
func shadowPath(cacheRoot, path string) string {
	return filepath.Join(cacheRoot, "file_data", path)
}

// Open resolves path to a Node and returns a bound Cache. When
// statNodeID is non-zero it is treated as the Node id freshly observed
// from a stat
// of the target (a fresh or reopened file); otherwise path must already
// be bound in the store, or NotCached is returned. truncate requests the
// ShadowFile be truncated to zero after opening.
func Open(store *metastore.Store, cacheRoot, path string, statNodeID uint64, truncate bool) (*Cache, error) {
	var nodeID uint64

	if statNodeID != 0 {
		nodeID = statNodeID
		if err := store.UpsertNode(nodeID); err != nil {
			return nil, fmt.Errorf("%w", cachefserr.NotCached)
		}
		if err := store.UpsertPath(path, nodeID); err != nil {
			return nil, fmt.Errorf("%w", cachefserr.NotCached)
		}
	} else {
		id, ok, err := store.LookupNodeForPath(path)
		if err != nil {
			return nil, fmt.Errorf("%w", cachefserr.NotCached)
		}
		if !ok {
			return nil, cachefserr.NotCached
		}
		nodeID = id
	}

	sp := shadowPath(cacheRoot, path)
	if err := os.MkdirAll(filepath.Dir(sp), 0755); err != nil {
		return nil, fmt.Errorf("%w: creating shadow directory: %v", cachefserr.CacheIOError, err)
	}

	if _, err := os.Stat(sp); os.IsNotExist(err) {
		if linked, lerr := linkFromSibling(store, cacheRoot, nodeID, path, sp); lerr != nil {
			return nil, lerr
		} else if !linked {
			f, cerr := os.OpenFile(sp, os.O_RDWR|os.O_CREATE, 0644)
			if cerr != nil {
				return nil, fmt.Errorf("%w: creating shadow file: %v", cachefserr.CacheIOError, cerr)
			}
			f.Close()
		}
	}

	shadow, err := os.OpenFile(sp, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening shadow file: %v", cachefserr.CacheIOError, err)
	}

	index, err := rangeindex.Load(store, nodeID)
	if err != nil {
		shadow.Close()
		return nil, err
	}

	c := &Cache{
		store:     store,
		cacheRoot: cacheRoot,
		path:      path,
		nodeID:    nodeID,
		shadow:    shadow,
		index:     index,
	}

	if truncate {
		if err := c.Truncate(0); err != nil {
			shadow.Close()
			return nil, err
		}
	}

	return c, nil
}

// linkFromSibling hard-links an existing sibling path's ShadowFile onto
// sp: a single kernel-level inode backs every path sharing a Node.
func linkFromSibling(store *metastore.Store, cacheRoot string, nodeID uint64, path, sp string) (bool, error) {
	siblings, err := store.SiblingPaths(nodeID, path)
	if err != nil {
		return false, fmt.Errorf("%w", cachefserr.NotCached)
	}

	for _, sibling := range siblings {
		siblingShadow := shadowPath(cacheRoot, sibling)
		if _, err := os.Stat(siblingShadow); err != nil {
			continue
		}
		if err := os.Link(siblingShadow, sp); err != nil {
			return false, fmt.Errorf("%w: linking sibling shadow file: %v", cachefserr.CacheIOError, err)
		}
		return true, nil
	}
	return false, nil
}

// NodeID returns the Node id this Cache is bound to.
func (c *Cache) NodeID() uint64 { return c.nodeID }

// Read implements the read(size, offset) contract: on a hit it seeks and
// reads from the ShadowFile; on a miss it returns cachefserr.CacheMiss so
// the facade can fall back to the target.
func (c *Cache) Read(size int, offset int64) ([]byte, error) {
	readSize, ok := c.index.Hit(size, offset)
	if !ok {
		c.misses++
		return nil, cachefserr.CacheMiss
	}

	buf := make([]byte, readSize)
	n, err := c.shadow.ReadAt(buf, offset)
	if err != nil && n < readSize {
		return nil, fmt.Errorf("%w: reading shadow file: %v", cachefserr.CacheIOError, err)
	}
	c.hits += int64(n)
	return buf[:n], nil
}

// Update writes buf at offset into the ShadowFile and inserts
// [offset, offset+len(buf)) into the RangeIndex with the given last
// flag.
func (c *Cache) Update(buf []byte, offset int64, last bool) error {
	if len(buf) == 0 {
		return nil
	}
	if _, err := c.shadow.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("%w: writing shadow file: %v", cachefserr.CacheIOError, err)
	}
	return c.index.Insert(offset, int64(len(buf)), last)
}

// Truncate truncates the ShadowFile to l and applies the RangeIndex
// truncate algorithm.
func (c *Cache) Truncate(l int64) error {
	if err := c.shadow.Truncate(l); err != nil {
		return fmt.Errorf("%w: truncating shadow file: %v", cachefserr.CacheIOError, err)
	}
	return c.index.Truncate(l)
}

// Unlink removes the ShadowFile and the PathBinding for this Cache's
// path. If this was the Node's last binding, the MetaStore removes the
// Node and its Blocks too.
func (c *Cache) Unlink() error {
	sp := shadowPath(c.cacheRoot, c.path)
	if err := os.Remove(sp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: removing shadow file: %v", cachefserr.CacheIOError, err)
	}
	return c.store.UnlinkPath(c.path)
}

// Rename moves the ShadowFile to newPath's location and rebinds the
// PathBinding; the Node id is unchanged.
func (c *Cache) Rename(newPath string) error {
	oldShadow := shadowPath(c.cacheRoot, c.path)
	newShadow := shadowPath(c.cacheRoot, newPath)

	if err := os.MkdirAll(filepath.Dir(newShadow), 0755); err != nil {
		return fmt.Errorf("%w: creating shadow directory: %v", cachefserr.CacheIOError, err)
	}
	if err := os.Rename(oldShadow, newShadow); err != nil {
		return fmt.Errorf("%w: renaming shadow file: %v", cachefserr.CacheIOError, err)
	}

	if err := c.store.UpsertPath(newPath, c.nodeID); err != nil {
		return err
	}
	if err := c.store.UnlinkPath(c.path); err != nil {
		return err
	}
	c.path = newPath
	return nil
}

// Close flushes and closes the ShadowFile handle. Metadata was already
// persisted per mutation, so Close performs no further MetaStore work.
func (c *Cache) Close() error {
	if err := c.shadow.Sync(); err != nil {
		return fmt.Errorf("%w: syncing shadow file: %v", cachefserr.CacheIOError, err)
	}
	return c.shadow.Close()
}

// Hits and Misses report byte- and count-based accounting respectively:
// a hit charges the bytes actually returned from the ShadowFile, a miss
// charges one per cachefserr.CacheMiss.
func (c *Cache) Hits() int64   { return c.hits }
func (c *Cache) Misses() int64 { return c.misses }

// UnlinkPath removes path's ShadowFile and PathBinding without requiring
// an open Cache, for facade callbacks (unlink, rmdir-of-regular-target)
// that have no open handle. A missing ShadowFile is not an error: the
// path may never have been read or written through the cache.
func UnlinkPath(store *metastore.Store, cacheRoot, path string) error {
	sp := shadowPath(cacheRoot, path)
	if err := os.Remove(sp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: removing shadow file: %v", cachefserr.CacheIOError, err)
	}
	return store.UnlinkPath(path)
}

// RenamePath moves oldPath's ShadowFile (if any) to newPath and rebinds
// the PathBinding, for facade Rename callbacks with no open handle.
func RenamePath(store *metastore.Store, cacheRoot, oldPath, newPath string) error {
	id, ok, err := store.LookupNodeForPath(oldPath)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	oldShadow := shadowPath(cacheRoot, oldPath)
	newShadow := shadowPath(cacheRoot, newPath)
	if _, err := os.Stat(oldShadow); err == nil {
		if err := os.MkdirAll(filepath.Dir(newShadow), 0755); err != nil {
			return fmt.Errorf("%w: creating shadow directory: %v", cachefserr.CacheIOError, err)
		}
		if err := os.Rename(oldShadow, newShadow); err != nil {
			return fmt.Errorf("%w: renaming shadow file: %v", cachefserr.CacheIOError, err)
		}
	}

	if err := store.UpsertPath(newPath, id); err != nil {
		return err
	}
	return store.UnlinkPath(oldPath)
}

// LinkPath binds newPath to existingPath's Node and hard-links its
// ShadowFile, for facade Link callbacks with no open handle. A missing
// ShadowFile is not an error: it will be created lazily by the next Open.
func LinkPath(store *metastore.Store, cacheRoot, existingPath, newPath string) error {
	id, ok, err := store.LookupNodeForPath(existingPath)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	existingShadow := shadowPath(cacheRoot, existingPath)
	newShadow := shadowPath(cacheRoot, newPath)
	if _, err := os.Stat(existingShadow); err == nil {
		if err := os.MkdirAll(filepath.Dir(newShadow), 0755); err != nil {
			return fmt.Errorf("%w: creating shadow directory: %v", cachefserr.CacheIOError, err)
		}
		if err := os.Link(existingShadow, newShadow); err != nil && !os.IsExist(err) {
			return fmt.Errorf("%w: linking shadow file: %v", cachefserr.CacheIOError, err)
		}
	}

	return store.UpsertPath(newPath, id)
}
