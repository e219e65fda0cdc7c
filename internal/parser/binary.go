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

package parser

import (
	"encoding/binary"

	"github.com/edamame-kv/edamame/internal/cache"
	"github.com/edamame-kv/edamame/internal/proto"
)

// feedBinaryHeader accumulates the fixed 24-byte frame header, §4.3's
// BINARY_PARSE_HEADER. An unknown opcode or bad magic is coerced
// straight to a ready quit command, matching the parser's "unknown
// opcode -> OpQuit" rule; like any quit, it closes the connection.
func (c *Conn) feedBinaryHeader(data []byte) ([]byte, bool) {
	n := copy(c.hdrBuf[c.hdrGot:], data)
	c.hdrGot += n
	data = data[n:]
	if c.hdrGot < proto.HeaderSize {
		return data, false
	}
	if err := c.hdr.Decode(c.hdrBuf[:]); err != nil || !proto.Known(c.hdr.Opcode) {
		c.pending = Command{Kind: KindQuit}
		c.state = BinaryCmdReady
		return data, true
	}

	c.extraGot, c.keyGot, c.binValGot = 0, 0, 0
	c.curExtras = cache.Extras{Initial: cache.NoInitial}
	c.curExtraLen = proto.ExtraLenFor(c.hdr.Opcode)
	c.curValueLen = int(c.hdr.BodyLen) - int(c.hdr.KeyLen) - c.curExtraLen
	if c.curValueLen < 0 {
		c.pending = Command{Kind: KindQuit}
		c.state = BinaryCmdReady
		return data, true
	}

	switch {
	case c.curExtraLen > 0:
		c.state = BinaryPendingParseExtra
	case c.hdr.KeyLen > 0:
		c.state = BinaryPendingParseKey
	case c.curValueLen > 0:
		c.binVal = make([]byte, c.curValueLen)
		c.state = BinaryPendingValue
	default:
		c.finishBinaryCommand(nil, nil)
	}
	return data, true
}

func (c *Conn) feedBinaryExtra(data []byte) ([]byte, bool) {
	n := copy(c.extraBuf[c.extraGot:c.curExtraLen], data)
	c.extraGot += n
	data = data[n:]
	if c.extraGot < c.curExtraLen {
		return data, false
	}
	c.decodeBinaryExtras()
	switch {
	case c.hdr.KeyLen > 0:
		c.state = BinaryPendingParseKey
	case c.curValueLen > 0:
		c.binVal = make([]byte, c.curValueLen)
		c.state = BinaryPendingValue
	default:
		c.finishBinaryCommand(nil, nil)
	}
	return data, true
}

func (c *Conn) feedBinaryKey(data []byte) ([]byte, bool) {
	keyLen := int(c.hdr.KeyLen)
	n := copy(c.keyBuf[c.keyGot:keyLen], data)
	c.keyGot += n
	data = data[n:]
	if c.keyGot < keyLen {
		return data, false
	}
	key := append([]byte(nil), c.keyBuf[:keyLen]...)
	if c.curValueLen > 0 {
		c.curKey = key
		c.binVal = make([]byte, c.curValueLen)
		c.state = BinaryPendingValue
		return data, true
	}
	c.finishBinaryCommand(key, nil)
	return data, true
}

func (c *Conn) feedBinaryValue(data []byte) ([]byte, bool) {
	n := copy(c.binVal[c.binValGot:], data)
	c.binValGot += n
	data = data[n:]
	if c.binValGot < c.curValueLen {
		return data, false
	}
	c.finishBinaryCommand(c.curKey, c.binVal)
	return data, true
}

// decodeBinaryExtras interprets c.extraBuf according to the opcode's
// extras union, §3's two-value/numeric/one-value layouts.
func (c *Conn) decodeBinaryExtras() {
	switch c.hdr.Opcode {
	case proto.OpSet, proto.OpSetQ, proto.OpAdd, proto.OpAddQ, proto.OpReplace, proto.OpReplaceQ:
		flags := binary.BigEndian.Uint32(c.extraBuf[0:4])
		exp := binary.BigEndian.Uint32(c.extraBuf[4:8])
		c.curExtras = cache.Extras{Flags: uint16(flags), Expiration: int64(exp), Initial: cache.NoInitial}
	case proto.OpIncrement, proto.OpIncrementQ, proto.OpDecrement, proto.OpDecrementQ:
		delta := binary.BigEndian.Uint64(c.extraBuf[0:8])
		initial := binary.BigEndian.Uint64(c.extraBuf[8:16])
		exp := binary.BigEndian.Uint32(c.extraBuf[16:20])
		c.curExtras = cache.Extras{Addition: delta, Initial: initial, Expiration: int64(exp)}
	case proto.OpTouch, proto.OpTouchQ, proto.OpGat, proto.OpGatQ, proto.OpGatK, proto.OpGatKQ:
		exp := binary.BigEndian.Uint32(c.extraBuf[0:4])
		c.curExtras = cache.Extras{Expiration: int64(exp), Initial: cache.NoInitial}
	case proto.OpFlush, proto.OpFlushQ:
		// delay extras ignored; flush_all is an immediate flush regardless
		// of requested delay (SPEC_FULL.md supplement).
	}
}

// finishBinaryCommand maps the now-fully-parsed header/extras/key/value
// onto a Command, §4.4's per-opcode response table.
func (c *Conn) finishBinaryCommand(key, val []byte) {
	op := c.hdr.Opcode
	cmd := Command{
		Opcode: op,
		Binary: true,
		Quiet:  op.IsQuiet(),
		Cas:    c.hdr.Cas,
		Opaque: c.hdr.Opaque,
		Key:    key,
		Value:  val,
		Extras: c.curExtras,
	}
	switch op {
	case proto.OpGet, proto.OpGetQ, proto.OpGetK, proto.OpGetKQ:
		cmd.Kind = KindGet
	case proto.OpGat, proto.OpGatQ, proto.OpGatK, proto.OpGatKQ:
		cmd.Kind = KindGet
		cmd.Touch = true
	case proto.OpSet, proto.OpSetQ:
		cmd.Kind = KindStorage
		cmd.Verb = cache.VerbSet
	case proto.OpAdd, proto.OpAddQ:
		cmd.Kind = KindStorage
		cmd.Verb = cache.VerbAdd
	case proto.OpReplace, proto.OpReplaceQ:
		cmd.Kind = KindStorage
		cmd.Verb = cache.VerbReplace
	case proto.OpAppend, proto.OpAppendQ:
		cmd.Kind = KindStorage
		cmd.Verb = cache.VerbAppend
	case proto.OpPrepend, proto.OpPrependQ:
		cmd.Kind = KindStorage
		cmd.Verb = cache.VerbPrepend
	case proto.OpDelete, proto.OpDeleteQ:
		cmd.Kind = KindDelete
	case proto.OpIncrement, proto.OpIncrementQ:
		cmd.Kind = KindStorage
		cmd.Verb = cache.VerbIncr
	case proto.OpDecrement, proto.OpDecrementQ:
		cmd.Kind = KindStorage
		cmd.Verb = cache.VerbDecr
	case proto.OpTouch, proto.OpTouchQ:
		cmd.Kind = KindStorage
		cmd.Verb = cache.VerbTouch
	case proto.OpQuit, proto.OpQuitQ:
		cmd.Kind = KindQuit
	case proto.OpFlush, proto.OpFlushQ:
		cmd.Kind = KindFlushAll
	case proto.OpNoop:
		cmd.Kind = KindNoop
	case proto.OpVersion:
		cmd.Kind = KindVersion
	case proto.OpStat:
		cmd.Kind = KindStat
	default:
		cmd.Kind = KindQuit
	}
	c.pending = cmd
	c.state = BinaryCmdReady
}
