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

// Package rangeindex is a pure in-memory view, backed by a
// metastore.Store, over the known cached byte ranges of one Node. It
// answers "is offset O covered" and merges newly observed ranges,
// coalescing overlaps and adjacency.
package rangeindex

import (
	"fmt"
	"sort"

	"github.com/cachefs/cachefs/internal/cachefserr"
	"github.com/cachefs/cachefs/internal/metastore"
)

// Block is an in-memory mirror of metastore.Block, kept sorted by Offset.
type Block struct {
	Offset    int64
	End       int64
	LastBlock bool
}

// Index is the covering set of Blocks for one Node. It mirrors its
// backing store's rows and keeps them in sync on every mutation.
//
// External synchronization is required; the facade's single-threaded
// dispatch loop provides it.
type Index struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	store  *metastore.Store
	nodeID uint64

	/////////////////////////
	// Mutable state
	/////////////////////////

	// blocks mirrors the node's blocks row set, sorted by Offset.
	//
	// INVARIANT: CheckInvariants() does not panic.
	blocks []Block
}

// Load constructs an Index for nodeID, populating it from store.
func Load(store *metastore.Store, nodeID uint64) (*Index, error) {
	rows, err := store.Blocks(nodeID)
	if err != nil {
		return nil, err
	}

	idx := &Index{store: store, nodeID: nodeID}
	for _, r := range rows {
		idx.blocks = append(idx.blocks, Block{Offset: r.Offset, End: r.End, LastBlock: r.LastBlock})
	}
	idx.CheckInvariants()
	return idx, nil
}

// CheckInvariants panics if the covering-set invariants do not hold:
// blocks are sorted, non-empty, non-overlapping, non-adjacent, and at
// most one carries LastBlock, which must be the block with the maximal
// end. Called unconditionally after every mutation (Load, Insert,
// Truncate); it is not gated on cfg.Config.Debug.
func (idx *Index) CheckInvariants() {
	lastCount := 0
	var maxEnd int64 = -1
	var maxEndIsLast bool

	for i, b := range idx.blocks {
		if b.Offset >= b.End {
			panic(fmt.Sprintf("block %d has offset >= end: %+v", i, b))
		}
		if i > 0 && idx.blocks[i-1].End >= b.Offset {
			panic(fmt.Sprintf("blocks %d and %d overlap or touch: %+v, %+v", i-1, i, idx.blocks[i-1], b))
		}
		if b.LastBlock {
			lastCount++
		}
		if b.End > maxEnd {
			maxEnd = b.End
			maxEndIsLast = b.LastBlock
		}
	}

	if lastCount > 1 {
		panic(fmt.Sprintf("more than one last_block: %+v", idx.blocks))
	}
	if lastCount == 1 && !maxEndIsLast {
		panic("last_block is not the block with the maximal end")
	}
}

// Covers implements the point-contained predicate: a block covers offset
// iff block.offset <= offset < block.end.
func (idx *Index) Covers(offset int64) bool {
	for _, b := range idx.blocks {
		if b.Offset <= offset && offset < b.End {
			return true
		}
	}
	return false
}

// Hit implements the hit test for read(size, offset): a block with
// offset <= O and end >= O+size, or a block with offset <= O,
// last_block = true, and end > O (a short read at EOF is still a hit).
// On a hit it returns the number of bytes that should actually be read
// (size, or less when bounded by a last_block).
func (idx *Index) Hit(size int, offset int64) (readSize int, ok bool) {
	want := offset + int64(size)
	for _, b := range idx.blocks {
		if b.Offset > offset {
			continue
		}
		if b.End >= want {
			return size, true
		}
		if b.LastBlock && b.End > offset {
			return int(b.End - offset), true
		}
	}
	return 0, false
}

// Insert merges [offset, offset+length) into the covering set with the
// given last flag. A zero-length insert is a no-op.
// Negative offsets are rejected as InvalidArgument.
func (idx *Index) Insert(offset, length int64, last bool) error {
	if offset < 0 {
		return fmt.Errorf("%w: negative offset %d", cachefserr.InvalidArgument, offset)
	}
	if length == 0 {
		return nil
	}
	if length < 0 {
		return fmt.Errorf("%w: negative length %d", cachefserr.InvalidArgument, length)
	}

	end := offset + length
	mergedStart, mergedEnd := offset, end

	remaining := idx.blocks[:0:0]
	for _, b := range idx.blocks {
		if touches(b, offset, end) {
			if b.Offset < mergedStart {
				mergedStart = b.Offset
			}
			if b.End > mergedEnd {
				mergedEnd = b.End
			}
			continue
		}
		remaining = append(remaining, b)
	}

	if last {
		for i := range remaining {
			remaining[i].LastBlock = false
		}
	}

	remaining = append(remaining, Block{Offset: mergedStart, End: mergedEnd, LastBlock: last})
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].Offset < remaining[j].Offset })
	idx.blocks = remaining

	if err := idx.store.ReplaceRange(idx.nodeID, mergedStart, mergedEnd, last); err != nil {
		return err
	}

	idx.CheckInvariants()
	return nil
}

// touches reports whether b intersects or is adjacent to [offset, end).
func touches(b Block, offset, end int64) bool {
	return b.Offset <= end && b.End >= offset
}

// Truncate drops blocks wholly at or above L, and clamps any block
// straddling L to end at L (clearing last_block unless it already
// ended at L).
func (idx *Index) Truncate(l int64) error {
	var kept []Block
	for _, b := range idx.blocks {
		switch {
		case b.Offset >= l:
			continue
		case b.End > l:
			wasAtCutoff := b.End == l
			kept = append(kept, Block{Offset: b.Offset, End: l, LastBlock: wasAtCutoff && b.LastBlock})
		default:
			kept = append(kept, b)
		}
	}
	idx.blocks = kept

	if err := idx.store.DeleteAbove(idx.nodeID, l); err != nil {
		return err
	}
	if err := idx.store.ClampEnds(idx.nodeID, l); err != nil {
		return err
	}

	idx.CheckInvariants()
	return nil
}

// Blocks returns a copy of the current covering set, sorted by offset.
func (idx *Index) Blocks() []Block {
	out := make([]Block, len(idx.blocks))
	copy(out, idx.blocks)
	return out
}
