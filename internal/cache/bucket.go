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

import "sync/atomic"

// magic byte states, §4.2.1. The low two bits are the primary state;
// the update-in-progress state packs a scratch-slot index into the high
// bits: magic == (idx<<2)|magicUpdating.
const (
	magicEmpty     byte = 0x00
	magicOccupied  byte = 0x01
	magicTomb      byte = 0x02
	magicUpdating  byte = 0x03 // only ever seen OR'd with a scratch index
	magicInserting byte = 0x80
	magicDeleting  byte = 0x82
)

func isUpdating(m byte) bool     { return m&0x03 == magicUpdating }
func scratchIndexOf(m byte) int  { return int(m >> 2) }
func updatingMagic(idx int) byte { return byte(idx<<2) | magicUpdating }

// entry is the mutable body of a bucket: everything a reader needs to
// answer a get and everything a writer mutates in place. It is also the
// shape stashed into a Table's scratch pool during an in-place update
// (§4.2.1), so it must be a plain value type safe to copy.
//
// Per the design note in spec.md §9, this is the "safe" rendition of the
// source's pointer-in-inline-data trick: instead of reusing the first 8
// bytes of a fixed inline array as a pointer, a key/value is either a
// slice view into the bucket's own preallocated inline backing array (no
// allocation) or an independently heap-allocated slice, discriminated by
// a bool. Only one of {keyInline, keyHeap} (and {valInline, valHeap}) is
// ever the active one; the other is nil.
type entry struct {
	keyInline []byte
	keyHeap   []byte

	valInline []byte
	valHeap   []byte
	isNumeric bool
	numeric   uint64

	flags      uint16
	expiration int64
	cas        uint64
	probe      uint32
}

func (e *entry) key() []byte {
	if e.keyHeap != nil {
		return e.keyHeap
	}
	return e.keyInline
}

func (e *entry) keyIsHeap() bool { return e.keyHeap != nil }

func (e *entry) valueLen() int {
	if e.isNumeric {
		return 0
	}
	if e.valHeap != nil {
		return len(e.valHeap)
	}
	return len(e.valInline)
}

func (e *entry) value() []byte {
	if e.valHeap != nil {
		return e.valHeap
	}
	return e.valInline
}

func (e *entry) valueIsHeap() bool { return !e.isNumeric && e.valHeap != nil }

// bucket is a fixed table slot: the atomic FSM state plus the inline
// backing arrays the entry body can borrow from. inlineKeyBuf and
// inlineValBuf are allocated once, at table init, and reused for the
// bucket's lifetime; only their *contents* cycle.
type bucket struct {
	magic atomic.Uint32 // holds a byte value; Go has no atomic.Uint8
	txid  atomic.Uint64

	inlineKeyBuf []byte
	inlineValBuf []byte

	body entry
}

func (b *bucket) loadMagic() byte { return byte(b.magic.Load()) }

func (b *bucket) casMagic(old, new byte) bool {
	return b.magic.CompareAndSwap(uint32(old), uint32(new))
}

func (b *bucket) storeMagic(new byte) { b.magic.Store(uint32(new)) }
