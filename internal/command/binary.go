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

package command

import (
	"encoding/binary"
	"strconv"

	"github.com/edamame-kv/edamame/internal/cache"
	"github.com/edamame-kv/edamame/internal/parser"
	"github.com/edamame-kv/edamame/internal/proto"
	"github.com/edamame-kv/edamame/internal/writer"
)

func writeBinaryResponse(w *writer.Writer, op proto.Opcode, status proto.Status, opaque uint32, cas uint64, key, extras, value []byte) {
	hdr := proto.Header{
		Opcode:     op,
		KeyLen:     uint16(len(key)),
		ExtraLen:   uint8(len(extras)),
		StatusOrVb: uint16(status),
		BodyLen:    uint32(len(key) + len(extras) + len(value)),
		Opaque:     opaque,
		Cas:        cas,
	}
	var hdrBuf [proto.HeaderSize]byte
	hdr.Encode(hdrBuf[:])

	total := proto.HeaderSize + len(extras) + len(key) + len(value)
	w.Reserve(total)
	w.Append(hdrBuf[:])
	if len(extras) > 0 {
		w.Append(extras)
	}
	if len(key) > 0 {
		w.Append(key)
	}
	if len(value) > 0 {
		w.Append(value)
	}
}

func (p *Processor) handleBinary(cmd parser.Command, w *writer.Writer) bool {
	switch cmd.Kind {
	case parser.KindGet:
		res := p.table.GetAuto(cmd.Key)
		if cmd.Touch && res.Found {
			p.table.Upsert(cache.UpsertRequest{Verb: cache.VerbTouch, Key: cmd.Key, Extras: cmd.Extras})
		}
		if !res.Found {
			if cmd.Quiet {
				return false
			}
			writeBinaryResponse(w, cmd.Opcode, proto.StatusKeyNotFound, cmd.Opaque, 0, nil, nil, nil)
			return false
		}
		var key []byte
		if cmd.Opcode.IncludesKey() {
			key = cmd.Key
		}
		extras := make([]byte, 4)
		binary.BigEndian.PutUint32(extras, uint32(res.Flags))
		var val []byte
		if res.IsNumeric {
			val = []byte(strconv.FormatUint(res.Numeric, 10))
		} else {
			val = res.Value
		}
		writeBinaryResponse(w, cmd.Opcode, proto.StatusOK, cmd.Opaque, res.Cas, key, extras, val)
		return false

	case parser.KindStorage:
		res := p.table.Upsert(cache.UpsertRequest{
			Verb:   cmd.Verb,
			Key:    cmd.Key,
			Value:  cmd.Value,
			Extras: cmd.Extras,
			Cas:    cmd.Cas,
		})
		if cmd.Quiet && res.Status == proto.StatusOK {
			return false
		}
		var val []byte
		if res.IsNumeric {
			val = make([]byte, 8)
			binary.BigEndian.PutUint64(val, res.Numeric)
		}
		writeBinaryResponse(w, cmd.Opcode, res.Status, cmd.Opaque, res.Cas, nil, nil, val)
		return false

	case parser.KindDelete:
		status := p.table.Delete(cmd.Key)
		if cmd.Quiet && status == proto.StatusOK {
			return false
		}
		writeBinaryResponse(w, cmd.Opcode, status, cmd.Opaque, 0, nil, nil, nil)
		return false

	case parser.KindFlushAll:
		p.table.FlushAll()
		if cmd.Quiet {
			return false
		}
		writeBinaryResponse(w, cmd.Opcode, proto.StatusOK, cmd.Opaque, 0, nil, nil, nil)
		return false

	case parser.KindNoop:
		writeBinaryResponse(w, cmd.Opcode, proto.StatusOK, cmd.Opaque, 0, nil, nil, nil)
		return false

	case parser.KindVersion:
		writeBinaryResponse(w, cmd.Opcode, proto.StatusOK, cmd.Opaque, 0, nil, nil, []byte(Version))
		return false

	case parser.KindStat:
		p.writeBinaryStats(cmd, w)
		return false

	case parser.KindQuit:
		if !cmd.Quiet {
			writeBinaryResponse(w, cmd.Opcode, proto.StatusOK, cmd.Opaque, 0, nil, nil, nil)
		}
		return true
	}
	return false
}

// writeBinaryStats emits one key/value packet per counter followed by
// the empty-key terminator packet, per the binary protocol's stat
// framing (§4.4's supplemented STAT surface).
func (p *Processor) writeBinaryStats(cmd parser.Command, w *writer.Writer) {
	s := p.table.Snapshot()
	emit := func(name string, val uint64) {
		writeBinaryResponse(w, proto.OpStat, proto.StatusOK, cmd.Opaque, 0, []byte(name), nil, []byte(strconv.FormatUint(val, 10)))
	}
	emit("curr_items", uint64(s.ObjCount))
	emit("total_capacity", s.Capacity)
	emit("get_hits", uint64(s.Hits))
	emit("get_misses", uint64(s.Misses))
	emit("cmd_failures", uint64(s.Failures))
	emit("longest_probe", uint64(s.LongestProbes))
	writeBinaryResponse(w, proto.OpStat, proto.StatusOK, cmd.Opaque, 0, nil, nil, nil)
}
