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
	"testing"
	"time"

	"bazil.org/fuse"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cachefs/cachefs/internal/clock"
	"github.com/cachefs/cachefs/internal/metastore"
)

type FacadeTest struct {
	suite.Suite
	fs     *FS
	target string
}

func TestFacadeSuite(t *testing.T) {
	suite.Run(t, new(FacadeTest))
}

func (t *FacadeTest) SetupTest() {
	t.target = t.T().TempDir()
	cacheRoot := t.T().TempDir()

	clk := clock.NewSimulatedClock(time.Unix(1000, 0))
	store, err := metastore.Open(filepath.Join(cacheRoot, "metadata.db"), clk)
	require.NoError(t.T(), err)

	t.fs = &FS{Target: t.target, CacheRoot: cacheRoot, Store: store, Clock: clk}
}

func (t *FacadeTest) TearDownTest() {
	require.NoError(t.T(), t.fs.Store.Close())
}

func (t *FacadeTest) root() *Node {
	n, err := t.fs.Root()
	require.NoError(t.T(), err)
	return n.(*Node)
}

func (t *FacadeTest) TestLookupMissingReturnsENOENT() {
	_, err := t.root().Lookup(context.Background(), "nope")
	t.Equal(syscall.ENOENT, err)
}

func (t *FacadeTest) TestReadDirAllListsTargetEntries() {
	require.NoError(t.T(), os.WriteFile(filepath.Join(t.target, "a.txt"), []byte("x"), 0644))
	require.NoError(t.T(), os.Mkdir(filepath.Join(t.target, "sub"), 0755))

	ents, err := t.root().ReadDirAll(context.Background())
	require.NoError(t.T(), err)

	names := map[string]fuse.DirentType{}
	for _, e := range ents {
		names[e.Name] = e.Type
	}
	t.Equal(fuse.DT_File, names["a.txt"])
	t.Equal(fuse.DT_Dir, names["sub"])
}

// Write-then-read through a Handle is served from the cache and matches
// what was written (read-after-write).
func (t *FacadeTest) TestOpenWriteThenReadServedFromCache() {
	path := filepath.Join(t.target, "f.txt")
	require.NoError(t.T(), os.WriteFile(path, []byte("0123456789"), 0644))

	node, err := t.root().Lookup(context.Background(), "f.txt")
	require.NoError(t.T(), err)

	h, err := node.(*Node).Open(context.Background(),
		&fuse.OpenRequest{Flags: fuse.OpenReadWrite},
		&fuse.OpenResponse{})
	require.NoError(t.T(), err)
	handle := h.(*Handle)

	writeResp := &fuse.WriteResponse{}
	require.NoError(t.T(), handle.Write(context.Background(), &fuse.WriteRequest{
		Data:   []byte("ABCDE"),
		Offset: 0,
	}, writeResp))
	t.Equal(5, writeResp.Size)

	readResp := &fuse.ReadResponse{}
	require.NoError(t.T(), handle.Read(context.Background(), &fuse.ReadRequest{
		Size:   5,
		Offset: 0,
	}, readResp))
	t.Equal([]byte("ABCDE"), readResp.Data)

	require.NoError(t.T(), handle.Release(context.Background(), &fuse.ReleaseRequest{}))
}

func (t *FacadeTest) TestGetattrRefreshesAtime() {
	path := filepath.Join(t.target, "f.txt")
	require.NoError(t.T(), os.WriteFile(path, []byte("x"), 0644))

	node, err := t.root().Lookup(context.Background(), "f.txt")
	require.NoError(t.T(), err)

	resp := &fuse.GetattrResponse{}
	require.NoError(t.T(), node.(*Node).Getattr(context.Background(), &fuse.GetattrRequest{}, resp))
	t.Equal(t.fs.Clock.Now(), resp.Attr.Atime)
}
