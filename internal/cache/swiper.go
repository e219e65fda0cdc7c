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

import (
	"container/heap"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// candidate is one (bucket index, observed txid) pair the swiper is
// tracking as a potential evictee, §4.2.4.
type candidate struct {
	idx  uint64
	txid uint64
}

// candHeap is a bounded max-heap on txid: the swiper wants to retain the
// pqueueSize buckets with the *smallest* txids, so when the heap is full
// it evicts its current maximum in favor of any smaller candidate.
type candHeap []candidate

func (h candHeap) Len() int            { return len(h) }
func (h candHeap) Less(i, j int) bool  { return h[i].txid > h[j].txid } // max-heap
func (h candHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Swiper is the single-threaded background routine that enforces
// expiration and the 70%-capacity eviction threshold (§4.2.4), the
// glossary's "swiper".
type Swiper struct {
	t        *Table
	interval time.Duration
	pqueue   int

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSwiper builds a Swiper over t. pqueueSize is the bounded candidate
// heap's size from §4.2.4's "sized at init"; a reasonable default scales with
// table capacity if pqueueSize <= 0.
func NewSwiper(t *Table, interval time.Duration, pqueueSize int) *Swiper {
	if interval <= 0 {
		interval = time.Second
	}
	if pqueueSize <= 0 {
		pqueueSize = int(t.capacity / 8)
		if pqueueSize < 64 {
			pqueueSize = 64
		}
	}
	return &Swiper{t: t, interval: interval, pqueue: pqueueSize, stop: make(chan struct{})}
}

// Start runs the swiper's periodic loop in a background goroutine,
// mirroring dcache's worker-goroutine-plus-WaitGroup shutdown pattern.
func (s *Swiper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.RunPass()
			}
		}
	}()
}

// Stop halts the background loop and waits for the in-flight pass (if
// any) to finish.
func (s *Swiper) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// RunPass executes one full sweep: pass 1 (expire), pass 2 (capacity
// eviction), pass 3 (shrink longest_probes). It is exported so tests
// can drive it deterministically instead of waiting on the ticker.
func (s *Swiper) RunPass() {
	t := s.t
	now := t.now()
	h := &candHeap{}
	heap.Init(h)

	for idx := range t.buckets {
		b := &t.buckets[idx]
		if b.loadMagic() != magicOccupied {
			continue
		}
		if b.body.expiration < now {
			t.deleteExpired(uint64(idx))
			continue
		}
		c := candidate{idx: uint64(idx), txid: b.txid.Load()}
		if h.Len() < s.pqueue {
			heap.Push(h, c)
		} else if (*h)[0].txid > c.txid {
			(*h)[0] = c
			heap.Fix(h, 0)
		}
	}

	threshold := int64(float64(t.capacity) * 0.7)
	if t.objcnt.Load() > threshold {
		cands := []candidate(*h)
		slices.SortFunc(cands, func(a, b candidate) bool { return a.txid < b.txid })
		for _, c := range cands {
			if t.objcnt.Load() <= threshold {
				break
			}
			if !t.deleteBucketIfTxidUnchanged(c.idx, c.txid) {
				t.logf("swiper: skipped bucket %d, touched since observation", c.idx)
			}
		}
	}

	s.shrinkLongestProbes()
}

// shrinkLongestProbes implements pass 3: scan probe_stats downward for
// the highest nonzero slot. Only the swiper calls this; writers only
// ever increase longest_probes.
func (s *Swiper) shrinkLongestProbes() {
	t := s.t
	t.probeStatsMu.Lock()
	highest := uint32(0)
	for i := ProbeStatsSize - 1; i >= 0; i-- {
		if t.probeStats[i] > 0 {
			highest = uint32(i)
			break
		}
	}
	t.probeStatsMu.Unlock()
	for {
		cur := t.longestProbes.Load()
		if highest >= cur {
			return
		}
		if t.longestProbes.CompareAndSwap(cur, highest) {
			return
		}
	}
}
