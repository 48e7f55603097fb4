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

// Package metastore is the embedded relational store backing CacheFS's
// cache metadata: one row per backing inode ever cached (Node), the
// virtual-path-to-inode bindings (PathBinding), and the known cached byte
// ranges per inode (Block). It hides gorm/SQLite behind a small
// transactional API.
package metastore

// Node is one row of the nodes relation: a backing inode the cache has
// ever observed.
type Node struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement:false"`
	LastUse int64
}

func (Node) TableName() string { return "nodes" }

// PathBinding maps a virtual path to the Node it currently resolves to.
type PathBinding struct {
	Path   string `gorm:"primaryKey"`
	NodeID uint64 `gorm:"index;not null"`
}

func (PathBinding) TableName() string { return "paths" }

// Block is a half-open byte interval [Offset, End) known to be present in
// a Node's ShadowFile. LastBlock marks the block whose End equals the
// file's logical end.
type Block struct {
	ID        uint   `gorm:"primaryKey"`
	NodeID    uint64 `gorm:"index;not null"`
	Offset    int64
	End       int64
	LastBlock bool
}

func (Block) TableName() string { return "blocks" }
