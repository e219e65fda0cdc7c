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

package cache

import "github.com/edamame-kv/edamame/internal/atomicext"

// probeWalk tracks the quadratic-ish probe sequence described in
// §4.2.2: within each outer step four linear slots are visited, and the
// next outer step folds the upper 32 bits of the hash into the probing
// key before recomputing the base index.
type probeWalk struct {
	t          *Table
	probingKey uint64
	hiBits     uint64
	base       uint64
	inner      int
	probe      uint32
}

func (t *Table) newProbeWalk(h uint64) *probeWalk {
	w := &probeWalk{t: t, probingKey: h, hiBits: h >> 32}
	w.base = t.fastScale(w.probingKey)
	return w
}

// index returns the bucket index for the current probe distance.
func (w *probeWalk) index() uint64 {
	return (w.base + uint64(w.inner)) % w.t.capacity
}

// prefetchNext is a no-op in Go (no portable prefetch intrinsic without
// cgo/asm); kept as a named step so the walker's shape mirrors §4.2.2's
// "issue a hardware prefetch of idx_{n+1} at the start of each outer
// step" without fabricating an assembly stub we have no grounding for.
func (w *probeWalk) prefetchNext() {}

// advance moves to the next probe distance.
func (w *probeWalk) advance() {
	w.probe++
	w.inner++
	if w.inner == 4 {
		w.inner = 0
		w.probingKey += w.hiBits
		w.base = w.t.fastScale(w.probingKey)
		w.prefetchNext()
	}
}

// acquireScratch claims one of the Table's 64 shared scratch slots,
// looping with a Pause hint if all are held (§5 "bounded-depth backoff,
// not starvation-prone in practice").
func (t *Table) acquireScratch() int {
	for {
		t.scratchMu.Lock()
		if t.scratchBmp != ^uint64(0) {
			for i := 0; i < ScratchSlots; i++ {
				if t.scratchBmp&(1<<i) == 0 {
					t.scratchBmp |= 1 << i
					t.scratchMu.Unlock()
					return i
				}
			}
		}
		t.scratchMu.Unlock()
		atomicext.Pause()
	}
}

func (t *Table) releaseScratch(idx int) {
	t.scratchMu.Lock()
	t.scratchBmp &^= 1 << idx
	t.scratchMu.Unlock()
}

func (t *Table) recordProbe(probe uint32) {
	t.probeStatsMu.Lock()
	t.probeStats[probe]++
	t.probeStatsMu.Unlock()
	for {
		cur := t.longestProbes.Load()
		if probe <= cur {
			return
		}
		if t.longestProbes.CompareAndSwap(cur, probe) {
			return
		}
	}
}

func (t *Table) unrecordProbe(probe uint32) {
	t.probeStatsMu.Lock()
	if t.probeStats[probe] > 0 {
		t.probeStats[probe]--
	}
	t.probeStatsMu.Unlock()
}

func (t *Table) longestProbe() uint32 { return t.longestProbes.Load() }
