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
	"bytes"
	"strconv"

	"github.com/edamame-kv/edamame/internal/proto"
)

// GetResult is a snapshot of a found entry; Found is false on a miss.
type GetResult struct {
	Found     bool
	IsNumeric bool
	Numeric   uint64
	Value     []byte // a copy; safe to use after the call returns
	Flags     uint16
	Cas       uint64
}

// snapshot copies e's externally-visible fields into a GetResult. The
// byte slice is always copied (never aliases bucket/scratch storage),
// since the source may be mutated or freed the instant the RCU read
// region ends.
func snapshotEntry(e *entry) GetResult {
	r := GetResult{Found: true, IsNumeric: e.isNumeric, Flags: e.flags, Cas: e.cas}
	if e.isNumeric {
		r.Numeric = e.numeric
	} else {
		v := e.value()
		r.Value = append([]byte(nil), v...)
	}
	return r
}

// Get implements §4.2.2's get: walk the probe sequence up to the
// longest probe distance currently in use, returning the first matching
// occupied bucket's snapshot, or a miss. readerSlot must be a slot this
// caller was assigned from Table.Domain().
func (t *Table) Get(key []byte, readerSlot int) GetResult {
	h := t.hash.hash64(key)
	w := t.newProbeWalk(h)
	longest := t.longestProbe()

	t.dom.Enter(readerSlot)
	defer t.dom.Exit(readerSlot)

	for w.probe <= longest {
		idx := w.index()
		b := &t.buckets[idx]
		m := b.loadMagic()
		switch {
		case m == magicEmpty:
			t.misses.Add(1)
			return GetResult{}
		case m == magicTomb, m == magicInserting, m == magicDeleting:
			// transient/free states; keep probing rather than treating an
			// in-flight claim or a tombstone as the end of the chain.
		case isUpdating(m):
			sidx := scratchIndexOf(m)
			se := &t.scratch[sidx]
			if bytes.Equal(se.key(), key) {
				if se.expiration < t.now() {
					t.misses.Add(1)
					return GetResult{}
				}
				b.txid.Store(t.txid.Add(1))
				t.hits.Add(1)
				return snapshotEntry(se)
			}
		case m == magicOccupied:
			if bytes.Equal(b.body.key(), key) {
				if b.body.expiration < t.now() {
					t.misses.Add(1)
					return GetResult{}
				}
				b.txid.Store(t.txid.Add(1))
				t.hits.Add(1)
				return snapshotEntry(&b.body)
			}
		}
		w.advance()
	}
	t.misses.Add(1)
	return GetResult{}
}

// GetAuto borrows a reader slot from the table's rcu.Domain for the
// duration of the call, for callers (the ASCII multi-get stream, the
// binary GET family) that don't already hold one.
func (t *Table) GetAuto(key []byte) GetResult {
	slot := t.dom.Acquire()
	defer t.dom.Release(slot)
	return t.Get(key, slot)
}

// UpsertRequest describes one write operation to apply via Upsert.
type UpsertRequest struct {
	Verb   Verb
	Key    []byte
	Value  []byte // ignored for Incr/Decr/Touch
	Extras Extras
	// Cas, if non-zero, requires the stored cas to match exactly
	// (memcached CAS semantics, §4.2.2/§5).
	Cas uint64
}

// UpsertResult reports the outcome of an Upsert.
type UpsertResult struct {
	Status    proto.Status
	Cas       uint64
	IsNumeric bool
	Numeric   uint64 // valid after a successful incr/decr
}

// Upsert implements §4.2.2's upsert (covering set/add/replace/append/
// prepend/incr/decr/touch) and §4.2.3's per-op body mutation.
func (t *Table) Upsert(req UpsertRequest) UpsertResult {
	if len(req.Key) < 1 || len(req.Key) > 250 {
		return UpsertResult{Status: proto.StatusInvalidArgs}
	}
	h := t.hash.hash64(req.Key)
	w := t.newProbeWalk(h)

	var firstFreeIdx uint64
	var firstFreeProbe uint32
	haveFree := false

	for w.probe < ProbeStatsSize {
		idx := w.index()
		b := &t.buckets[idx]
		m := b.loadMagic()
		switch {
		case m == magicEmpty:
			if !haveFree {
				firstFreeIdx, firstFreeProbe, haveFree = idx, w.probe, true
			}
			return t.insertAt(req, firstFreeIdx, firstFreeProbe)
		case m == magicTomb:
			if !haveFree {
				firstFreeIdx, firstFreeProbe, haveFree = idx, w.probe, true
			}
		case m == magicInserting, m == magicDeleting:
			// transient; don't claim it, don't terminate on it either.
		case isUpdating(m):
			sidx := scratchIndexOf(m)
			if bytes.Equal(t.scratch[sidx].key(), req.Key) {
				return t.updateAt(req, idx)
			}
		case m == magicOccupied:
			if bytes.Equal(b.body.key(), req.Key) {
				return t.updateAt(req, idx)
			}
		}
		w.advance()
	}
	if haveFree {
		return t.insertAt(req, firstFreeIdx, firstFreeProbe)
	}
	return UpsertResult{Status: proto.StatusBusy}
}

func (t *Table) insertAt(req UpsertRequest, idx uint64, probe uint32) UpsertResult {
	b := &t.buckets[idx]
	m := b.loadMagic()
	if m != magicEmpty && m != magicTomb {
		// lost the race; caller's Upsert loop already moved past this
		// slot, so restart the whole probe from scratch.
		return t.Upsert(req)
	}
	if !b.casMagic(m, magicInserting) {
		return t.Upsert(req)
	}

	switch req.Verb {
	case VerbReplace, VerbAppend, VerbPrepend:
		b.storeMagic(m)
		return UpsertResult{Status: proto.StatusNotStored}
	case VerbTouch:
		b.storeMagic(m)
		return UpsertResult{Status: proto.StatusKeyNotFound}
	case VerbIncr, VerbDecr:
		if req.Extras.Initial == NoInitial {
			b.storeMagic(m)
			return UpsertResult{Status: proto.StatusKeyNotFound}
		}
		seed := req.Extras.Initial
		if req.Verb == VerbDecr {
			seed = satSub(req.Extras.Initial, req.Extras.Addition)
		} else {
			seed = req.Extras.Initial + req.Extras.Addition
		}
		b.body = entry{}
		t.setKey(b, req.Key)
		b.body.isNumeric = true
		b.body.numeric = seed
		t.finishWrite(b, req.Extras)
		t.publishNew(b, idx, probe)
		return UpsertResult{Status: proto.StatusOK, Cas: b.body.cas, IsNumeric: true, Numeric: seed}
	default: // Set, Add
		b.body = entry{}
		t.setKey(b, req.Key)
		t.setValueBytes(b, req.Value)
		t.finishWrite(b, req.Extras)
		t.publishNew(b, idx, probe)
		return UpsertResult{Status: proto.StatusOK, Cas: b.body.cas}
	}
}

func (t *Table) publishNew(b *bucket, idx uint64, probe uint32) {
	b.body.probe = probe
	b.storeMagic(magicOccupied)
	t.recordProbe(probe)
	t.objcnt.Add(1)
}

func (t *Table) updateAt(req UpsertRequest, idx uint64) UpsertResult {
	b := &t.buckets[idx]
	m := b.loadMagic()
	if !(m == magicOccupied || isUpdating(m)) {
		return t.Upsert(req)
	}
	// read the currently-published body to evaluate add/cas semantics
	// before claiming the slot for mutation.
	var cur *entry
	if isUpdating(m) {
		cur = &t.scratch[scratchIndexOf(m)]
	} else {
		cur = &b.body
	}
	if req.Verb == VerbAdd {
		return UpsertResult{Status: proto.StatusNotStored}
	}
	if req.Verb == VerbSet && req.Cas != 0 && req.Cas != cur.cas {
		return UpsertResult{Status: proto.StatusKeyExists}
	}
	if req.Cas != 0 && req.Cas != cur.cas && req.Verb != VerbSet {
		return UpsertResult{Status: proto.StatusKeyExists}
	}

	if m != magicOccupied {
		return t.Upsert(req)
	}
	sidx := t.acquireScratch()
	if !b.casMagic(magicOccupied, updatingMagic(sidx)) {
		t.releaseScratch(sidx)
		return t.Upsert(req)
	}
	// stash a pre-image for readers redirected to this scratch slot (and
	// for mutateBody's own read of the pre-mutation value below). A
	// struct copy alone isn't enough for an inline value: valInline would
	// still alias b.inlineValBuf, which mutateBody is about to overwrite
	// in place, so an inline value gets an independent copy into this
	// slot's scratchValBuf.
	t.scratch[sidx] = b.body
	se := &t.scratch[sidx]
	if se.valInline != nil {
		buf := t.scratchValBuf[sidx]
		n := copy(buf, se.valInline)
		se.valInline = buf[:n]
	}
	t.dom.Synchronize()

	// every reader that was reading b.body directly before the CAS above
	// has now exited (or will see the scratch pre-image instead), so it
	// is safe to mutate b.body -- the bucket's own storage -- in place.
	res := t.mutateBody(b, se, req)
	b.storeMagic(magicOccupied)
	t.dom.Synchronize()
	t.releaseScratch(sidx)
	return res
}

// mutateBody applies req's op-specific semantics to b.body, the bucket's
// own published storage, reading the stable pre-image se where the op
// needs the prior value (append/prepend/incr/decr). On a semantic
// failure (e.g. NON_NUMERIC) b.body is left unmodified.
func (t *Table) mutateBody(b *bucket, se *entry, req UpsertRequest) UpsertResult {
	switch req.Verb {
	case VerbSet, VerbReplace:
		t.freeValue(&b.body)
		t.setValueBytes(b, req.Value)
		t.finishWriteInto(&b.body, req.Extras)
		return UpsertResult{Status: proto.StatusOK, Cas: b.body.cas}

	case VerbAppend, VerbPrepend:
		var base []byte
		if se.isNumeric {
			base = []byte(strconv.FormatUint(se.numeric, 10))
		} else {
			base = append([]byte(nil), se.value()...)
		}
		var combined []byte
		if req.Verb == VerbAppend {
			combined = append(append([]byte(nil), base...), req.Value...)
		} else {
			combined = make([]byte, 0, len(base)+len(req.Value))
			combined = append(combined, req.Value...)
			combined = append(combined, base...)
		}
		t.freeValue(&b.body)
		b.body.isNumeric = false
		t.setValueBytes(b, combined)
		b.body.cas = t.txid.Add(1)
		b.txid.Store(b.body.cas)
		// append/prepend don't change flags (§4.2.3 lists only
		// set/replace as touching flags), but expiration is recomputed
		// on every write per the opening bullet of §4.2.3.
		b.body.expiration = t.now() + req.Extras.Expiration
		return UpsertResult{Status: proto.StatusOK, Cas: b.body.cas}

	case VerbIncr, VerbDecr:
		var n uint64
		if se.isNumeric {
			n = se.numeric
		} else {
			parsed, err := parseDecimalU64(se.value())
			if err != nil {
				return UpsertResult{Status: proto.StatusNonNumeric}
			}
			n = parsed
		}
		t.freeValue(&b.body)
		b.body.isNumeric = true
		if req.Verb == VerbIncr {
			b.body.numeric = n + req.Extras.Addition
		} else {
			b.body.numeric = satSub(n, req.Extras.Addition)
		}
		b.body.cas = t.txid.Add(1)
		b.txid.Store(b.body.cas)
		if req.Extras.Initial != NoInitial {
			b.body.expiration = t.now() + req.Extras.Expiration
		}
		return UpsertResult{Status: proto.StatusOK, Cas: b.body.cas, IsNumeric: true, Numeric: b.body.numeric}

	case VerbTouch:
		b.body.expiration = t.now() + req.Extras.Expiration
		b.body.cas = t.txid.Add(1)
		b.txid.Store(b.body.cas)
		return UpsertResult{Status: proto.StatusOK, Cas: b.body.cas}
	}
	return UpsertResult{Status: proto.StatusInternalError}
}

// parseDecimalU64 requires the entire buffer to be a non-negative
// decimal integer with no trailing junk, per §4.2.3's incr/decr parse
// rule.
func parseDecimalU64(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b), 10, 64)
}

// finishWrite/finishWriteInto stamp the always-on-every-write fields
// described at the top of §4.2.3: a fresh cas, bucket txid, and
// recomputed absolute expiration from the client-supplied relative TTL.
func (t *Table) finishWrite(b *bucket, ex Extras) {
	t.finishWriteInto(&b.body, ex)
	b.txid.Store(b.body.cas)
}

func (t *Table) finishWriteInto(e *entry, ex Extras) {
	e.cas = t.txid.Add(1)
	e.flags = ex.Flags
	e.expiration = t.now() + ex.Expiration
}

// Delete implements §4.2.2's delete.
func (t *Table) Delete(key []byte) proto.Status {
	h := t.hash.hash64(key)
	w := t.newProbeWalk(h)
	longest := t.longestProbe()

	for w.probe <= longest {
		idx := w.index()
		b := &t.buckets[idx]
		m := b.loadMagic()
		if m == magicEmpty {
			return proto.StatusKeyNotFound
		}
		if m == magicOccupied && bytes.Equal(b.body.key(), key) {
			if !b.casMagic(magicOccupied, magicDeleting) {
				continue // lost race; re-check this slot
			}
			t.dom.Synchronize()
			t.freeEntry(&b.body)
			t.unrecordProbe(b.body.probe)
			t.objcnt.Add(-1)
			b.body = entry{}
			b.storeMagic(magicTomb)
			return proto.StatusOK
		}
		w.advance()
	}
	return proto.StatusKeyNotFound
}

// deleteBucketIfTxidUnchanged is the swiper's tie-break primitive
// (§4.2.4 pass 2): it refuses to delete a bucket another thread has
// touched (read or written) since the swiper observed its txid.
func (t *Table) deleteBucketIfTxidUnchanged(idx uint64, observedTxid uint64) bool {
	b := &t.buckets[idx]
	if b.loadMagic() != magicOccupied || b.txid.Load() != observedTxid {
		return false
	}
	if !b.casMagic(magicOccupied, magicDeleting) {
		return false
	}
	t.dom.Synchronize()
	t.freeEntry(&b.body)
	t.unrecordProbe(b.body.probe)
	t.objcnt.Add(-1)
	b.body = entry{}
	b.storeMagic(magicTomb)
	return true
}

// deleteExpired is pass 1's unconditional reap of an expired bucket; it
// bypasses the txid tie-break since expiration always wins.
func (t *Table) deleteExpired(idx uint64) {
	b := &t.buckets[idx]
	if !b.casMagic(magicOccupied, magicDeleting) {
		return
	}
	t.dom.Synchronize()
	t.freeEntry(&b.body)
	t.unrecordProbe(b.body.probe)
	t.objcnt.Add(-1)
	b.body = entry{}
	b.storeMagic(magicTomb)
}

// FlushAll implements the supplemented flush_all behavior documented in
// SPEC_FULL.md: set every live entry's expiration to now. Get and the
// swiper treat an entry as expired once its expiration is before the
// current second, so from the next second on a flushed entry misses on
// get and is reaped by the swiper.
func (t *Table) FlushAll() {
	now := t.now()
	for i := range t.buckets {
		b := &t.buckets[i]
		if b.loadMagic() == magicOccupied {
			b.body.expiration = now
		}
	}
}
