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

// Package clock provides a seam between the store-backed packages and
// wall-clock time, so that tests can control the timestamps written into
// inode and kv rows without sleeping.
package clock

import "time"

// Clock knows the current time. It exists so tests don't need to depend on
// the real wall clock to exercise mtime/ctime/atime bookkeeping.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock is a Clock that reports the actual system time.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// SimulatedClock is a Clock whose value is advanced explicitly by callers,
// for deterministic tests of ordering and timestamp invariants.
type SimulatedClock struct {
	now time.Time
}

// NewSimulatedClock returns a SimulatedClock initialized to t.
func NewSimulatedClock(t time.Time) *SimulatedClock {
	return &SimulatedClock{now: t}
}

func (c *SimulatedClock) Now() time.Time {
	return c.now
}

// AdvanceTo moves the clock forward to t. Panics if t is before the current
// value, since real clocks never run backward either.
func (c *SimulatedClock) AdvanceTo(t time.Time) {
	if t.Before(c.now) {
		panic("clock: AdvanceTo called with a time in the past")
	}
	c.now = t
}

// Advance moves the clock forward by d.
func (c *SimulatedClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
