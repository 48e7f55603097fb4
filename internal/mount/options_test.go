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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionsTargetAndCache(t *testing.T) {
	opts, err := ParseOptions("target=/data,cache=/var/cache/cachefs")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"target": "/data",
		"cache":  "/var/cache/cachefs",
	}, opts)
}

func TestParseOptionsEmptyStringYieldsEmptyMap(t *testing.T) {
	opts, err := ParseOptions("")
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestParseOptionsBareKey(t *testing.T) {
	opts, err := ParseOptions("ro")
	require.NoError(t, err)
	assert.Equal(t, "", opts["ro"])
}

func TestParseOptionsRejectsEmptyKey(t *testing.T) {
	_, err := ParseOptions("=value")
	assert.Error(t, err)
}

func TestApplyOptionsOverridesOnlyPresentKeys(t *testing.T) {
	target := "/default-target"
	cache := ""
	ApplyOptions(map[string]string{"target": "/data"}, &target, &cache)
	assert.Equal(t, "/data", target)
	assert.Equal(t, "", cache)

	ApplyOptions(map[string]string{"cache": "/var/cache/x"}, &target, &cache)
	assert.Equal(t, "/var/cache/x", cache)
}
