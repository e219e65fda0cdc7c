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

// Stats is an accounting snapshot, used by the supplemented STAT/stats
// command surface (SPEC_FULL.md) and by tests that check the
// accounting counters.
type Stats struct {
	ObjCount        int64
	InlineAccKeylen int64
	InlineAccVallen int64
	NinlineKeycnt   int64
	NinlineValcnt   int64
	NinlineKeylen   int64
	NinlineVallen   int64
	Hits            int64
	Misses          int64
	Failures        int64
	LongestProbes   uint32
	Capacity        uint64
}

// Snapshot returns a point-in-time copy of the table's accounting
// counters. Every counter is read with a plain atomic load; the
// snapshot as a whole is not a single atomic operation (matching
// dcache.Cache.Hits/Misses/Failures, which are likewise independent
// atomic loads).
func (t *Table) Snapshot() Stats {
	return Stats{
		ObjCount:        t.objcnt.Load(),
		InlineAccKeylen: t.inlineAccKeylen.Load(),
		InlineAccVallen: t.inlineAccVallen.Load(),
		NinlineKeycnt:   t.ninlineKeycnt.Load(),
		NinlineValcnt:   t.ninlineValcnt.Load(),
		NinlineKeylen:   t.ninlineKeylen.Load(),
		NinlineVallen:   t.ninlineVallen.Load(),
		Hits:            t.hits.Load(),
		Misses:          t.misses.Load(),
		Failures:        t.failures.Load(),
		LongestProbes:   t.longestProbe(),
		Capacity:        t.capacity,
	}
}
