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

// Package cache implements the process-wide concurrent hash table
// described in spec.md §4.2: an open-addressed, quadratic-probing table
// with a bespoke per-bucket atomic state machine, RCU-style read-side
// quiescence, inline-vs-heap value storage, and a background swiper.
package cache

import (
	"log"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/edamame-kv/edamame/internal/rcu"
)

// ProbeStatsSize bounds both the probe-distance histogram and the
// longest probe walk a get/upsert will follow before giving up, per
// §4.2.2/§4.2.4.
const ProbeStatsSize = 512

// ScratchSlots is the number of shared scratch buffers writers use to
// stash a pre-update snapshot, §4.2.1 and the "scratch slot" glossary
// entry.
const ScratchSlots = 64

// Options configures a new Table. Zero-value fields take the documented
// defaults.
type Options struct {
	NumObjects    int
	InlineKeylen  int
	InlineVallen  int
	SwiperReaders int // number of rcu.Domain reader slots, i.e. worker goroutines

	// Logger receives diagnostics from the swiper; nil disables logging,
	// mirroring dcache.Cache.Logger.
	Logger *log.Logger

	// Now, if non-nil, replaces time.Now for expiration math. Tests use
	// this to control the clock deterministically.
	Now func() int64
}

// Table is the process-wide cache table. It is created once and shared
// (via a single pointer) across every worker goroutine; its lifetime is
// the program's, matching the "global mutable table" design note.
type Table struct {
	opt Options

	capacity uint64
	capClz   uint32
	capMs4b  uint64
	mask     uint64

	hash hasher
	dom  *rcu.Domain

	buckets []bucket

	txid          atomic.Uint64
	objcnt        atomic.Int64
	longestProbes atomic.Uint32

	probeStatsMu sync.Mutex
	probeStats   [ProbeStatsSize]uint32

	inlineAccKeylen atomic.Int64
	inlineAccVallen atomic.Int64
	ninlineKeycnt   atomic.Int64
	ninlineValcnt   atomic.Int64
	ninlineKeylen   atomic.Int64
	ninlineVallen   atomic.Int64

	hits, misses, failures atomic.Int64

	scratch       [ScratchSlots]entry
	scratchValBuf [ScratchSlots][]byte // preallocated inline value area per scratch slot
	scratchMu     sync.Mutex
	scratchBmp    uint64 // bit i set => scratch[i] claimed; guarded by scratchMu

	now func() int64
}

// deriveCapacity picks (capacity, clz, ms4b) per §3's encoding: capacity
// = (1 << (64-clz-4)) * ms4b, rounded up so it is >= want.
func deriveCapacity(want uint64) (capacity uint64, clz uint32, ms4b uint64) {
	if want < 16 {
		want = 16
	}
	bitlen := bits.Len64(want)
	exponent := 0
	if bitlen > 4 {
		exponent = bitlen - 4
	}
	m := (want + (uint64(1) << exponent) - 1) >> exponent
	if m >= 16 {
		m = 8
		exponent++
	}
	capacity = m << exponent
	totalBits := exponent + 4
	clz = uint32(64 - totalBits)
	ms4b = m
	return
}

// NewTable builds a Table sized for opt.NumObjects entries at the
// standard memcached load factor (capacity = round_up(n*10/7), §3).
func NewTable(opt Options) *Table {
	if opt.NumObjects <= 0 {
		opt.NumObjects = 1024
	}
	if opt.InlineKeylen <= 0 {
		opt.InlineKeylen = 32
	}
	if opt.InlineVallen <= 0 {
		opt.InlineVallen = 64
	}
	if opt.SwiperReaders <= 0 {
		opt.SwiperReaders = 64
	}
	want := uint64(opt.NumObjects) * 10 / 7
	capacity, clz, ms4b := deriveCapacity(want)

	t := &Table{
		opt:      opt,
		capacity: capacity,
		capClz:   clz,
		capMs4b:  ms4b,
		mask:     (uint64(1) << (64 - clz)) - 1,
		hash:     newHasher(),
		dom:      rcu.NewDomain(opt.SwiperReaders),
		buckets:  make([]bucket, capacity),
		now:      opt.Now,
	}
	if t.now == nil {
		t.now = wallClockNow
	}
	for i := range t.buckets {
		t.buckets[i].inlineKeyBuf = make([]byte, opt.InlineKeylen)
		t.buckets[i].inlineValBuf = make([]byte, opt.InlineVallen)
	}
	for i := range t.scratchValBuf {
		t.scratchValBuf[i] = make([]byte, opt.InlineVallen)
	}
	return t
}

// Capacity returns the table's fixed bucket count.
func (t *Table) Capacity() uint64 { return t.capacity }

// Domain exposes the table's RCU domain, from which Get's caller
// acquires a reader slot. GetAuto, which internal/command uses for every
// read, borrows a slot from it for the duration of one call.
func (t *Table) Domain() *rcu.Domain { return t.dom }

// ObjCount returns the live entry count.
func (t *Table) ObjCount() int64 { return t.objcnt.Load() }

func (t *Table) fastScale(x uint64) uint64 {
	return ((x & t.mask) * t.capMs4b) >> 4
}

func (t *Table) logf(f string, args ...interface{}) {
	if t.opt.Logger != nil {
		t.opt.Logger.Printf(f, args...)
	}
}
