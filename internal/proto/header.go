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

package proto

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed memcached binary-protocol frame header size,
// §6.
const HeaderSize = 24

const (
	MagicRequest  byte = 0x80
	MagicResponse byte = 0x81
)

// Header is the 24-byte memcached binary framing, decoded to host
// endianness. Wire layout (all multi-byte fields big-endian):
//
//	0:  magic      (1 byte)
//	1:  opcode     (1 byte)
//	2:  keylen     (2 bytes)
//	4:  extralen   (1 byte)
//	5:  datatype   (1 byte)
//	6:  statusOrVb (2 bytes)  // vbucket-id on request, status on response
//	8:  bodylen    (4 bytes)
//	12: opaque     (4 bytes)
//	16: cas        (8 bytes)
type Header struct {
	Magic      byte
	Opcode     Opcode
	KeyLen     uint16
	ExtraLen   uint8
	DataType   uint8
	StatusOrVb uint16
	BodyLen    uint32
	Opaque     uint32
	Cas        uint64
}

// Decode parses a HeaderSize-byte buffer into h.
func (h *Header) Decode(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("proto: short binary header (%d bytes)", len(buf))
	}
	h.Magic = buf[0]
	h.Opcode = Opcode(buf[1])
	h.KeyLen = binary.BigEndian.Uint16(buf[2:4])
	h.ExtraLen = buf[4]
	h.DataType = buf[5]
	h.StatusOrVb = binary.BigEndian.Uint16(buf[6:8])
	h.BodyLen = binary.BigEndian.Uint32(buf[8:12])
	h.Opaque = binary.BigEndian.Uint32(buf[12:16])
	h.Cas = binary.BigEndian.Uint64(buf[16:24])
	if h.Magic != MagicRequest {
		return fmt.Errorf("proto: unexpected header magic 0x%02x", h.Magic)
	}
	return nil
}

// Encode serializes h as a response header into buf, which must be at
// least HeaderSize bytes.
func (h *Header) Encode(buf []byte) {
	buf[0] = MagicResponse
	buf[1] = byte(h.Opcode)
	binary.BigEndian.PutUint16(buf[2:4], h.KeyLen)
	buf[4] = h.ExtraLen
	buf[5] = h.DataType
	binary.BigEndian.PutUint16(buf[6:8], h.StatusOrVb)
	binary.BigEndian.PutUint32(buf[8:12], h.BodyLen)
	binary.BigEndian.PutUint32(buf[12:16], h.Opaque)
	binary.BigEndian.PutUint64(buf[16:24], h.Cas)
}

// ExtraLenFor returns the expected extras length for op, per §4.3's
// "based on opcode, transition to PARSE_EXTRA (8 bytes for set-family,
// 20 for incr/decr, 4 for touch/gat/flush)".
func ExtraLenFor(op Opcode) int {
	switch op {
	case OpSet, OpAdd, OpReplace, OpSetQ, OpAddQ, OpReplaceQ:
		return 8
	case OpIncrement, OpDecrement, OpIncrementQ, OpDecrementQ:
		return 20
	case OpTouch, OpTouchQ, OpGat, OpGatQ, OpGatK, OpGatKQ, OpFlush, OpFlushQ:
		return 4
	default:
		return 0
	}
}
