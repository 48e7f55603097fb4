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

package cmd

import (
	"context"
	"fmt"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/cachefs/cachefs/cfg"
	"github.com/cachefs/cachefs/internal/clock"
	"github.com/cachefs/cachefs/internal/fsfacade"
	"github.com/cachefs/cachefs/internal/logger"
	"github.com/cachefs/cachefs/internal/metastore"
	"github.com/cachefs/cachefs/internal/metrics"
	"github.com/cachefs/cachefs/internal/mount"
)

// parseAndApply parses one `-o` flag occurrence and overlays it onto c.
func parseAndApply(raw string, c *cfg.Config) error {
	opts, err := mount.ParseOptions(raw)
	if err != nil {
		return err
	}
	mount.ApplyOptions(opts, &c.Target, &c.CacheDir)
	return nil
}

// runMount resolves the target to an absolute path, derives and creates
// the cache root, opens the MetaStore, and serves the facade in the
// foreground.
func runMount(ctx context.Context, c *cfg.Config) error {
	if err := logger.InitLogFile(c.Logging.FilePath, c.Logging.Format, c.Logging.Severity, logger.DefaultRotateConfig()); err != nil {
		return fmt.Errorf("initializing log file: %w", err)
	}

	target, err := mount.GetResolvedPath(c.Target)
	if err != nil {
		return fmt.Errorf("resolving target: %w", err)
	}
	c.Target = target

	mountpoint, err := mount.GetResolvedPath(c.Mountpoint)
	if err != nil {
		return fmt.Errorf("resolving mountpoint: %w", err)
	}
	c.Mountpoint = mountpoint

	cacheDir := c.CacheDir
	if cacheDir == "" {
		cacheDir, err = mount.DeriveCacheDir(c.Target)
		if err != nil {
			return fmt.Errorf("deriving cache root: %w", err)
		}
	}
	if err := mount.EnsureCacheDir(cacheDir); err != nil {
		return err
	}
	c.CacheDir = cacheDir

	clk := clock.RealClock{}
	store, err := metastore.Open(cacheDir+"/"+cfg.MetadataFileName, clk)
	if err != nil {
		return fmt.Errorf("opening metastore: %w", err)
	}
	defer store.Close()

	metricsHandle, err := metrics.NewPrometheus()
	if err != nil {
		logger.Warnf("metrics disabled: %v", err)
	} else {
		store.SetMetrics(metricsHandle)
	}

	facade := &fsfacade.FS{
		Target:    c.Target,
		CacheRoot: cacheDir,
		Store:     store,
		Clock:     clk,
		Metrics:   metricsHandle,
		ReadOnly:  c.ReadOnly,
		Debug:     c.Debug,
	}

	mountOpts := []fuse.MountOption{fuse.FSName("cachefs"), fuse.Subtype("cachefs")}
	if c.AllowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}
	if c.ReadOnly {
		mountOpts = append(mountOpts, fuse.ReadOnly())
	}

	conn, err := fuse.Mount(c.Mountpoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mounting at %q: %w", c.Mountpoint, err)
	}
	defer conn.Close()

	logger.Infof("cachefs mounted: target=%s mountpoint=%s cache=%s", c.Target, c.Mountpoint, c.CacheDir)

	if err := fs.Serve(conn, facade); err != nil {
		return fmt.Errorf("serving filesystem: %w", err)
	}

	<-conn.Ready
	return conn.MountError
}
