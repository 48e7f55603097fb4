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

package mount

import (
	"fmt"
	"strings"
)

// ParseOptions parses a `-o key=value[,key=value...]` option string into
// a map, following the classic mount(8) `-o` convention. A bare key with
// no "=" is recorded with an empty value.
func ParseOptions(raw string) (map[string]string, error) {
	result := make(map[string]string)
	if raw == "" {
		return result, nil
	}

	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		key, value, found := strings.Cut(field, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid -o option %q: empty key", field)
		}
		if found {
			result[key] = strings.TrimSpace(value)
		} else {
			result[key] = ""
		}
	}
	return result, nil
}

// ApplyOptions overlays the parsed `-o` option map (target=PATH,
// cache=PATH) onto target/cache. Values already set (e.g. by a --target
// flag) are overridden only when the option is present.
func ApplyOptions(opts map[string]string, target, cache *string) {
	if v, ok := opts["target"]; ok && v != "" {
		*target = v
	}
	if v, ok := opts["cache"]; ok && v != "" {
		*cache = v
	}
}
