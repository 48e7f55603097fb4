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

package clock

import (
	"sync"
	"time"
)

// afterRequest holds the information for a pending After call in
// SimulatedClock.
type afterRequest struct {
	targetTime time.Time
	ch         chan time.Time
}

// SimulatedClock is a Clock whose time only changes when AdvanceTime or
// SetTime is called. The zero value is a clock initialized to the zero
// time. Safe for concurrent use.
type SimulatedClock struct {
	mu      sync.RWMutex
	t       time.Time // GUARDED_BY(mu)
	pending []*afterRequest
}

// NewSimulatedClock returns a clock initialized to startTime.
func NewSimulatedClock(startTime time.Time) *SimulatedClock {
	return &SimulatedClock{
		t: startTime,
	}
}

// Now returns the clock's current time.
func (c *SimulatedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// SetTime sets the clock's current time, firing any pending After channels
// whose target time has now passed. Each fired channel receives its own
// target time.
func (c *SimulatedClock) SetTime(t time.Time) {
	c.mu.Lock()
	c.t = t

	var remaining []*afterRequest
	for _, r := range c.pending {
		if !r.targetTime.After(t) {
			r.ch <- r.targetTime
		} else {
			remaining = append(remaining, r)
		}
	}
	c.pending = remaining
	c.mu.Unlock()
}

// AdvanceTime advances the clock's current time by d.
func (c *SimulatedClock) AdvanceTime(d time.Duration) {
	c.SetTime(c.Now().Add(d))
}

// After returns a channel that fires once the clock's time reaches
// Now()+d, as driven by SetTime/AdvanceTime rather than the wall clock.
func (c *SimulatedClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	target := c.t.Add(d)
	if !target.After(c.t) {
		ch <- c.t
		return ch
	}

	c.pending = append(c.pending, &afterRequest{targetTime: target, ch: ch})
	return ch
}
