// Copyright (C) 2026 The Edamame Authors.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package rcu provides the quiescence primitive the cache engine's bucket
// state machine relies on: a writer that has CAS-installed an
// in-progress state needs to know that every reader which might have
// sampled the pre-mutation bucket body has finished before it mutates or
// frees that memory. This is a small epoch-based reclamation scheme, the
// same shape as the "synchronize with readers" contract described for
// the bucket FSM: readers mark themselves active in a slot, writers bump
// a global epoch and wait for every active slot to observe it.
package rcu

import (
	"sync/atomic"

	"github.com/edamame-kv/edamame/internal/atomicext"
)

// inactive is the sentinel slot value meaning "no reader currently in a
// critical section in this slot". It must compare as never blocking a
// Synchronize call, so it is the maximum representable epoch.
const inactive = ^uint64(0)

// Domain is a fixed pool of reader slots plus a global epoch counter.
// Slots are lent out one read-side critical section at a time (see
// Acquire), so the number of slots bounds how many reads are in flight
// at once, not the number of connections or keys.
type Domain struct {
	epoch atomic.Uint64
	slots []atomic.Uint64
	free  chan int
}

// NewDomain allocates a Domain with the given number of reader slots.
func NewDomain(slots int) *Domain {
	if slots < 1 {
		slots = 1
	}
	d := &Domain{slots: make([]atomic.Uint64, slots), free: make(chan int, slots)}
	for i := range d.slots {
		d.slots[i].Store(inactive)
		d.free <- i
	}
	return d
}

// Acquire borrows a reader slot for the duration of one read-side
// critical section, blocking if every slot is in use. Connections are
// unbounded (§5's goroutine-per-connection model) but concurrently
// in-flight reads are not, so callers acquire a slot per read rather
// than holding one for a connection's lifetime.
func (d *Domain) Acquire() int {
	return <-d.free
}

// Release returns a slot acquired from Acquire. The caller must have
// already called Exit if it called Enter.
func (d *Domain) Release(slot int) {
	d.free <- slot
}

// Slots reports how many reader slots this domain was built with.
func (d *Domain) Slots() int { return len(d.slots) }

// Enter marks slot as having begun a read-side critical section by
// recording the epoch observed at entry in it.
func (d *Domain) Enter(slot int) {
	d.slots[slot].Store(d.epoch.Load())
}

// Exit marks slot as quiescent again.
func (d *Domain) Exit(slot int) {
	d.slots[slot].Store(inactive)
}

// Synchronize blocks until every reader slot that was active at the
// moment of the call has either gone quiescent or observed an epoch at
// least as new as the one Synchronize just installed. This is the RCU
// "synchronize_rcu" equivalent: a writer calls it once after CAS-ing a
// bucket into an in-progress state and again after publishing the
// mutated bucket, before releasing the scratch slot, per §4.2.1.
func (d *Domain) Synchronize() {
	target := d.epoch.Add(1)
	for i := range d.slots {
		for {
			v := d.slots[i].Load()
			if v == inactive || v >= target {
				break
			}
			atomicext.Pause()
		}
	}
}
