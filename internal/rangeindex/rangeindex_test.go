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

package rangeindex

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cachefs/cachefs/internal/clock"
	"github.com/cachefs/cachefs/internal/metastore"
)

type IndexTest struct {
	suite.Suite
	store *metastore.Store
	idx   *Index
}

func TestIndexSuite(t *testing.T) {
	suite.Run(t, new(IndexTest))
}

func (t *IndexTest) SetupTest() {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	store, err := metastore.Open(filepath.Join(t.T().TempDir(), "metadata.db"), clk)
	require.NoError(t.T(), err)
	require.NoError(t.T(), store.UpsertNode(1))

	idx, err := Load(store, 1)
	require.NoError(t.T(), err)

	t.store = store
	t.idx = idx
}

func (t *IndexTest) TearDownTest() {
	require.NoError(t.T(), t.store.Close())
}

// Scenario 1: insert at 10 then an overlapping insert at 5 merges into
// a single [5,20) block.
func (t *IndexTest) TestScenario1OverlapMerge() {
	require.NoError(t.T(), t.idx.Insert(10, 10, false))
	require.NoError(t.T(), t.idx.Insert(5, 10, false))

	blocks := t.idx.Blocks()
	require.Len(t.T(), blocks, 1)
	t.Equal(int64(5), blocks[0].Offset)
	t.Equal(int64(20), blocks[0].End)
}

// Scenario 2: a fully-contained insert does not change the block bounds.
func (t *IndexTest) TestScenario2ContainedInsert() {
	require.NoError(t.T(), t.idx.Insert(0, 10, false))
	require.NoError(t.T(), t.idx.Insert(5, 5, false))

	blocks := t.idx.Blocks()
	require.Len(t.T(), blocks, 1)
	t.Equal(int64(0), blocks[0].Offset)
	t.Equal(int64(10), blocks[0].End)
}

// Scenario 3: a gap, then a bridging insert, coalesces all three into one.
func (t *IndexTest) TestScenario3BridgingInsertCoalesces() {
	require.NoError(t.T(), t.idx.Insert(0, 10, false))  // [0,10)
	require.NoError(t.T(), t.idx.Insert(17, 5, false))  // [17,22), gap
	require.NoError(t.T(), t.idx.Insert(10, 7, false))  // [10,17) bridges

	blocks := t.idx.Blocks()
	require.Len(t.T(), blocks, 1)
	t.Equal(int64(0), blocks[0].Offset)
	t.Equal(int64(22), blocks[0].End)
}

// TestScenario3LiteralBytesLeavesTwoBlocks pins down the original
// cache's actual test_add_block_9 numbers: "1234567890"@0, "54321"@17,
// then "54321"@10. The third insert only spans [10,15) — five bytes,
// not the seven needed to reach the block starting at 17 — so it
// merges into the first block and a [15,17) gap survives. Two blocks
// result, not the single merged block the bridging-insert scenario
// above describes.
func (t *IndexTest) TestScenario3LiteralBytesLeavesTwoBlocks() {
	require.NoError(t.T(), t.idx.Insert(0, 10, false))  // [0,10)
	require.NoError(t.T(), t.idx.Insert(17, 5, false))  // [17,22)
	require.NoError(t.T(), t.idx.Insert(10, 5, false))  // [10,15), short of the gap

	blocks := t.idx.Blocks()
	require.Len(t.T(), blocks, 2)
	t.Equal(int64(0), blocks[0].Offset)
	t.Equal(int64(15), blocks[0].End)
	t.Equal(int64(17), blocks[1].Offset)
	t.Equal(int64(22), blocks[1].End)
}

// Scenario 4: three inserts then a truncate to 12 yields a single [0,12)
// block.
func (t *IndexTest) TestScenario4TruncateAfterMerge() {
	require.NoError(t.T(), t.idx.Insert(0, 5, false))
	require.NoError(t.T(), t.idx.Insert(13, 5, false))
	require.NoError(t.T(), t.idx.Insert(4, 20, false))

	require.NoError(t.T(), t.idx.Truncate(12))

	blocks := t.idx.Blocks()
	require.Len(t.T(), blocks, 1)
	t.Equal(int64(0), blocks[0].Offset)
	t.Equal(int64(12), blocks[0].End)
}

func (t *IndexTest) TestHitMissOnFreshIndex() {
	_, ok := t.idx.Hit(1, 0)
	t.False(ok)
}

func (t *IndexTest) TestHitWithinBlock() {
	require.NoError(t.T(), t.idx.Insert(0, 100, false))
	size, ok := t.idx.Hit(10, 5)
	t.True(ok)
	t.Equal(10, size)
}

func (t *IndexTest) TestHitShortReadAtLastBlock() {
	require.NoError(t.T(), t.idx.Insert(0, 10, true))
	size, ok := t.idx.Hit(100, 5)
	t.True(ok)
	t.Equal(5, size)
}

func (t *IndexTest) TestInsertLastClearsPreviousLastBlock() {
	require.NoError(t.T(), t.idx.Insert(0, 10, true))
	require.NoError(t.T(), t.idx.Insert(100, 10, true))

	blocks := t.idx.Blocks()
	require.Len(t.T(), blocks, 2)
	t.False(blocks[0].LastBlock)
	t.True(blocks[1].LastBlock)
}

func (t *IndexTest) TestZeroLengthInsertIsNoop() {
	require.NoError(t.T(), t.idx.Insert(5, 0, false))
	t.Empty(t.idx.Blocks())
}

func (t *IndexTest) TestNegativeOffsetRejected() {
	err := t.idx.Insert(-1, 10, false)
	t.Error(err)
}

func (t *IndexTest) TestIdempotentInsert() {
	require.NoError(t.T(), t.idx.Insert(0, 10, false))
	require.NoError(t.T(), t.idx.Insert(0, 10, false))

	blocks := t.idx.Blocks()
	require.Len(t.T(), blocks, 1)
	t.Equal(int64(0), blocks[0].Offset)
	t.Equal(int64(10), blocks[0].End)
}

// Scenario 6: a far-offset insert does not force materializing
// intervening blocks; the covering set holds exactly the one block.
func (t *IndexTest) TestScenario6SparseFarOffset() {
	require.NoError(t.T(), t.idx.Insert(1_000_000_000_000, 10, false))

	blocks := t.idx.Blocks()
	require.Len(t.T(), blocks, 1)
	t.Equal(int64(1_000_000_000_000), blocks[0].Offset)
}
