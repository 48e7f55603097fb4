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

package metastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cachefs/cachefs/internal/clock"
)

type StoreTest struct {
	suite.Suite
	store *Store
	clk   *clock.SimulatedClock
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTest))
}

func (t *StoreTest) SetupTest() {
	t.clk = clock.NewSimulatedClock(time.Unix(1000, 0))
	dbPath := filepath.Join(t.T().TempDir(), "metadata.db")
	store, err := Open(dbPath, t.clk)
	require.NoError(t.T(), err)
	t.store = store
}

func (t *StoreTest) TearDownTest() {
	require.NoError(t.T(), t.store.Close())
}

func (t *StoreTest) TestUpsertNodeAndPath() {
	require.NoError(t.T(), t.store.UpsertNode(42))
	require.NoError(t.T(), t.store.UpsertPath("/a", 42))

	id, ok, err := t.store.LookupNodeForPath("/a")
	require.NoError(t.T(), err)
	t.True(ok)
	t.Equal(uint64(42), id)
}

func (t *StoreTest) TestLookupMissingPath() {
	_, ok, err := t.store.LookupNodeForPath("/missing")
	require.NoError(t.T(), err)
	t.False(ok)
}

func (t *StoreTest) TestSiblingPaths() {
	require.NoError(t.T(), t.store.UpsertNode(7))
	require.NoError(t.T(), t.store.UpsertPath("/a", 7))
	require.NoError(t.T(), t.store.UpsertPath("/b", 7))

	siblings, err := t.store.SiblingPaths(7, "/a")
	require.NoError(t.T(), err)
	t.Equal([]string{"/b"}, siblings)
}

func (t *StoreTest) TestReplaceRangeCoalescesOverlap() {
	require.NoError(t.T(), t.store.UpsertNode(1))
	require.NoError(t.T(), t.store.ReplaceRange(1, 10, 20, false))
	require.NoError(t.T(), t.store.ReplaceRange(1, 5, 20, false))

	blocks, err := t.store.Blocks(1)
	require.NoError(t.T(), err)
	require.Len(t.T(), blocks, 1)
	t.Equal(int64(5), blocks[0].Offset)
	t.Equal(int64(20), blocks[0].End)
}

func (t *StoreTest) TestReplaceRangeLastBlockIsExclusive() {
	require.NoError(t.T(), t.store.UpsertNode(1))
	require.NoError(t.T(), t.store.ReplaceRange(1, 0, 10, true))
	require.NoError(t.T(), t.store.ReplaceRange(1, 100, 110, true))

	blocks, err := t.store.Blocks(1)
	require.NoError(t.T(), err)
	require.Len(t.T(), blocks, 2)
	for _, b := range blocks {
		if b.Offset == 0 {
			t.False(b.LastBlock)
		} else {
			t.True(b.LastBlock)
		}
	}
}

func (t *StoreTest) TestDeleteAboveAndClampEnds() {
	require.NoError(t.T(), t.store.UpsertNode(1))
	require.NoError(t.T(), t.store.ReplaceRange(1, 0, 10, false))
	require.NoError(t.T(), t.store.ReplaceRange(1, 20, 30, true))

	require.NoError(t.T(), t.store.DeleteAbove(1, 15))
	require.NoError(t.T(), t.store.ClampEnds(1, 8))

	blocks, err := t.store.Blocks(1)
	require.NoError(t.T(), err)
	require.Len(t.T(), blocks, 1)
	t.Equal(int64(0), blocks[0].Offset)
	t.Equal(int64(8), blocks[0].End)
}

func (t *StoreTest) TestUnlinkPathRemovesNodeWhenLastBinding() {
	require.NoError(t.T(), t.store.UpsertNode(1))
	require.NoError(t.T(), t.store.UpsertPath("/a", 1))
	require.NoError(t.T(), t.store.ReplaceRange(1, 0, 10, false))

	require.NoError(t.T(), t.store.UnlinkPath("/a"))

	_, ok, err := t.store.LookupNodeForPath("/a")
	require.NoError(t.T(), err)
	t.False(ok)

	blocks, err := t.store.Blocks(1)
	require.NoError(t.T(), err)
	t.Empty(blocks)
}

func (t *StoreTest) TestUnlinkPathKeepsNodeWithRemainingSibling() {
	require.NoError(t.T(), t.store.UpsertNode(1))
	require.NoError(t.T(), t.store.UpsertPath("/a", 1))
	require.NoError(t.T(), t.store.UpsertPath("/b", 1))

	require.NoError(t.T(), t.store.UnlinkPath("/a"))

	id, ok, err := t.store.LookupNodeForPath("/b")
	require.NoError(t.T(), err)
	t.True(ok)
	t.Equal(uint64(1), id)
}
