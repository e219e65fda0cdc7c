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

// setKey installs key into b.body, inline if it fits the bucket's
// preallocated inline key buffer, heap-allocated otherwise (§3's
// inline_keylen invariant).
func (t *Table) setKey(b *bucket, key []byte) {
	t.setKeyInto(&b.body, b.inlineKeyBuf, key)
}

func (t *Table) setKeyInto(e *entry, inlineBuf []byte, key []byte) {
	if len(key) <= len(inlineBuf) {
		n := copy(inlineBuf, key)
		e.keyInline = inlineBuf[:n]
		e.keyHeap = nil
		t.inlineAccKeylen.Add(int64(n))
	} else {
		e.keyHeap = append([]byte(nil), key...)
		e.keyInline = nil
		t.ninlineKeycnt.Add(1)
		t.ninlineKeylen.Add(int64(len(key)))
	}
}

// setValueBytes installs a non-numeric value into b.body, inline if it
// fits opt.InlineVallen (using the bucket's own preallocated
// inlineValBuf), heap-allocated otherwise. The bucket's numeric
// discriminant is cleared.
func (t *Table) setValueBytes(b *bucket, val []byte) {
	t.setValueWithBuf(&b.body, b.inlineValBuf, val)
}

func (t *Table) setValueWithBuf(e *entry, inlineBuf []byte, val []byte) {
	e.isNumeric = false
	if len(val) <= len(inlineBuf) {
		n := copy(inlineBuf, val)
		e.valInline = inlineBuf[:n]
		e.valHeap = nil
		t.inlineAccVallen.Add(int64(n))
	} else {
		e.valHeap = append([]byte(nil), val...)
		e.valInline = nil
		t.ninlineValcnt.Add(1)
		t.ninlineVallen.Add(int64(len(val)))
	}
}

// freeValue releases e's previous value storage (heap or inline
// accounting) ahead of installing a new one, without touching the key —
// this is what set/replace/append/prepend/incr/decr call before
// overwriting the value in place, per the "freed on... overwrite" note
// in spec.md §3.
func (t *Table) freeValue(e *entry) {
	if !e.isNumeric {
		if e.valHeap != nil {
			t.ninlineValcnt.Add(-1)
			t.ninlineVallen.Add(-int64(len(e.valHeap)))
			e.valHeap = nil
		} else if e.valInline != nil {
			t.inlineAccVallen.Add(-int64(len(e.valInline)))
		}
	}
	e.valInline = nil
}

// freeEntry releases both key and value storage and their accounting,
// for use on delete/cleanup (the Go garbage collector reclaims the
// memory itself; this just keeps the §8 P8 accounting counters
// truthful).
func (t *Table) freeEntry(e *entry) {
	if e.keyHeap != nil {
		t.ninlineKeycnt.Add(-1)
		t.ninlineKeylen.Add(-int64(len(e.keyHeap)))
		e.keyHeap = nil
	} else if e.keyInline != nil {
		t.inlineAccKeylen.Add(-int64(len(e.keyInline)))
	}
	t.freeValue(e)
}
