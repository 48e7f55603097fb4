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
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cachefs/cachefs/internal/cachefserr"
	"github.com/cachefs/cachefs/internal/clock"
	"github.com/cachefs/cachefs/internal/metrics"
)

// Store is the embedded relational store backing one mount's cache
// metadata. Every mutating operation except the single-statement
// DeleteAbove runs inside a gorm transaction so the merge/delete/insert
// sequences stay atomic.
type Store struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	db      *gorm.DB
	clock   clock.Clock
	metrics *metrics.Handle
}

// SetMetrics attaches h so every subsequent ReplaceRange records its call
// count and latency; no other operation is instrumented. A Store with no
// attached Handle instruments nothing.
func (s *Store) SetMetrics(h *metrics.Handle) {
	s.metrics = h
}

// instrument times fn and records it against op, regardless of outcome.
func (s *Store) instrument(op string, fn func() error) error {
	start := s.clock.Now()
	err := fn()
	s.metrics.RecordMetaStoreCall(context.Background(), op, float64(s.clock.Now().Sub(start))/float64(time.Millisecond))
	return err
}

// Open opens (creating if absent) the SQLite file at path and migrates
// the nodes/paths/blocks schema. Durability is relaxed (synchronous=OFF,
// journal_mode=OFF) because the store is a pure, reconstructible cache.
func Open(path string, c clock.Clock) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=OFF&_synchronous=OFF&_foreign_keys=ON",
		path,
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening metastore at %q: %w", path, err)
	}

	if err := db.AutoMigrate(&Node{}, &PathBinding{}, &Block{}); err != nil {
		return nil, fmt.Errorf("migrating metastore schema: %w", err)
	}

	return &Store{db: db, clock: c}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertNode creates or refreshes last_use for a Node.
func (s *Store) UpsertNode(id uint64) error {
	now := s.clock.Now().Unix()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Save(&Node{ID: id, LastUse: now}).Error
	})
	if err != nil {
		return fmt.Errorf("%w: upsert_node(%d): %v", cachefserr.CacheIOError, id, err)
	}
	return nil
}

// UpsertPath binds path to nodeID, replacing any prior binding for path.
func (s *Store) UpsertPath(path string, nodeID uint64) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Save(&PathBinding{Path: path, NodeID: nodeID}).Error
	})
	if err != nil {
		return fmt.Errorf("%w: upsert_path(%s): %v", cachefserr.CacheIOError, path, err)
	}
	return nil
}

// LookupNodeForPath returns the Node id bound to path. ok is false if no
// binding exists.
func (s *Store) LookupNodeForPath(path string) (id uint64, ok bool, err error) {
	var binding PathBinding
	result := s.db.Where("path = ?", path).Take(&binding)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if result.Error != nil {
		return 0, false, fmt.Errorf("%w: lookup_node_for_path(%s): %v", cachefserr.CacheIOError, path, result.Error)
	}
	return binding.NodeID, true, nil
}

// SiblingPaths returns every path bound to nodeID other than excluding.
func (s *Store) SiblingPaths(nodeID uint64, excluding string) ([]string, error) {
	var bindings []PathBinding
	if err := s.db.Where("node_id = ? AND path <> ?", nodeID, excluding).Find(&bindings).Error; err != nil {
		return nil, fmt.Errorf("%w: sibling_paths(%d): %v", cachefserr.CacheIOError, nodeID, err)
	}

	paths := make([]string, len(bindings))
	for i, b := range bindings {
		paths[i] = b.Path
	}
	return paths, nil
}

// FindOverlapping returns every block of nodeID that intersects or
// touches [offset, offset+length). length == 0 matches only a
// point-containing block.
func (s *Store) FindOverlapping(nodeID uint64, offset, length int64) ([]Block, error) {
	end := offset + length
	var blocks []Block
	query := s.db.Where("node_id = ?", nodeID)
	if length == 0 {
		query = query.Where("offset <= ? AND \"end\" > ?", offset, offset)
	} else {
		// intersects or touches: block.offset <= end AND block.end >= offset
		query = query.Where("offset <= ? AND \"end\" >= ?", end, offset)
	}
	if err := query.Order("offset").Find(&blocks).Error; err != nil {
		return nil, fmt.Errorf("%w: find_overlapping(%d): %v", cachefserr.CacheIOError, nodeID, err)
	}
	return blocks, nil
}

// ReplaceRange deletes every block intersecting or touching [offset, end)
// for nodeID and inserts the single coalesced block, atomically. Inserting
// a block with last=true clears last_block on any prior block for the
// node.
func (s *Store) ReplaceRange(nodeID uint64, offset, end int64, last bool) error {
	err := s.instrument("replace_range", func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where(
				"node_id = ? AND offset <= ? AND \"end\" >= ?", nodeID, end, offset,
			).Delete(&Block{}).Error; err != nil {
				return err
			}

			if last {
				if err := tx.Model(&Block{}).
					Where("node_id = ?", nodeID).
					Update("last_block", false).Error; err != nil {
					return err
				}
			}

			return tx.Create(&Block{NodeID: nodeID, Offset: offset, End: end, LastBlock: last}).Error
		})
	})
	if err != nil {
		return fmt.Errorf("%w: replace_range(%d,[%d,%d)): %v", cachefserr.CacheIOError, nodeID, offset, end, err)
	}
	return nil
}

// DeleteAbove removes every block with Offset >= cutoff for nodeID.
func (s *Store) DeleteAbove(nodeID uint64, cutoff int64) error {
	err := s.db.Where("node_id = ? AND offset >= ?", nodeID, cutoff).Delete(&Block{}).Error
	if err != nil {
		return fmt.Errorf("%w: delete_above(%d,%d): %v", cachefserr.CacheIOError, nodeID, cutoff, err)
	}
	return nil
}

// ClampEnds sets End := cutoff and clears LastBlock (unless End already
// equals cutoff) for every block straddling cutoff (Offset < cutoff <=
// End).
func (s *Store) ClampEnds(nodeID uint64, cutoff int64) error {
	var blocks []Block
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(
			"node_id = ? AND offset < ? AND \"end\" >= ?", nodeID, cutoff, cutoff,
		).Find(&blocks).Error; err != nil {
			return err
		}
		for _, b := range blocks {
			wasAtCutoff := b.End == cutoff
			if err := tx.Model(&Block{}).Where("id = ?", b.ID).Updates(map[string]any{
				"end":        cutoff,
				"last_block": wasAtCutoff && b.LastBlock,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: clamp_ends(%d,%d): %v", cachefserr.CacheIOError, nodeID, cutoff, err)
	}
	return nil
}

// UnlinkPath removes path's binding; if it was the node's last binding,
// the node and its blocks are removed too.
func (s *Store) UnlinkPath(path string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var binding PathBinding
		if err := tx.Where("path = ?", path).Take(&binding).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if err := tx.Delete(&binding).Error; err != nil {
			return err
		}

		var remaining int64
		if err := tx.Model(&PathBinding{}).Where("node_id = ?", binding.NodeID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		if err := tx.Where("node_id = ?", binding.NodeID).Delete(&Block{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Node{ID: binding.NodeID}).Error
	})
	if err != nil {
		return fmt.Errorf("%w: unlink_path(%s): %v", cachefserr.CacheIOError, path, err)
	}
	return nil
}

// Blocks returns every block for nodeID, ordered by offset. Used by
// RangeIndex to rebuild its in-memory view.
func (s *Store) Blocks(nodeID uint64) ([]Block, error) {
	var blocks []Block
	if err := s.db.Where("node_id = ?", nodeID).Order("offset").Find(&blocks).Error; err != nil {
		return nil, fmt.Errorf("%w: blocks(%d): %v", cachefserr.CacheIOError, nodeID, err)
	}
	return blocks, nil
}
