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

package cfg

import (
	"fmt"
	"os"
)

// Validate checks the fully populated Config for fatal startup mistakes:
// a missing or nonexistent target, or an unrecognized logging setting.
func (c *Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("target is required (-o target=PATH)")
	}

	info, err := os.Stat(c.Target)
	if err != nil {
		return fmt.Errorf("target %q: %w", c.Target, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("target %q is not a directory", c.Target)
	}

	switch c.Logging.Severity {
	case "", TRACE, DEBUG, INFO, WARNING, ERROR, OFF:
	default:
		return fmt.Errorf("unknown log severity %q", c.Logging.Severity)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	return nil
}
