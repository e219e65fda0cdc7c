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

import "testing"

func TestHeaderDecodeEncodeRoundTrip(t *testing.T) {
	in := Header{
		Opcode:     OpSet,
		KeyLen:     3,
		ExtraLen:   8,
		StatusOrVb: 0,
		BodyLen:    11,
		Opaque:     0xdeadbeef,
		Cas:        0x0102030405060708,
	}
	var buf [HeaderSize]byte
	in.Magic = MagicRequest
	// Encode always stamps MagicResponse; build the request buffer by
	// hand for the decode half of the round trip.
	buf[0] = MagicRequest
	buf[1] = byte(in.Opcode)
	buf[2], buf[3] = byte(in.KeyLen>>8), byte(in.KeyLen)
	buf[4] = in.ExtraLen
	buf[8], buf[9], buf[10], buf[11] = byte(in.BodyLen>>24), byte(in.BodyLen>>16), byte(in.BodyLen>>8), byte(in.BodyLen)
	buf[12], buf[13], buf[14], buf[15] = byte(in.Opaque>>24), byte(in.Opaque>>16), byte(in.Opaque>>8), byte(in.Opaque)
	for i := 0; i < 8; i++ {
		buf[16+i] = byte(in.Cas >> (56 - 8*i))
	}

	var out Header
	if err := out.Decode(buf[:]); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Opcode != in.Opcode || out.KeyLen != in.KeyLen || out.ExtraLen != in.ExtraLen ||
		out.BodyLen != in.BodyLen || out.Opaque != in.Opaque || out.Cas != in.Cas {
		t.Fatalf("decode mismatch: got %+v, want %+v", out, in)
	}

	// encode half: everything after the magic byte comes back unchanged.
	var enc [HeaderSize]byte
	out.Encode(enc[:])
	if enc[0] != MagicResponse || string(enc[1:]) != string(buf[1:]) {
		t.Fatalf("encode mismatch: got % x, want magic 0x%02x then % x", enc, MagicResponse, buf[1:])
	}
}

func TestHeaderDecodeShort(t *testing.T) {
	var h Header
	if err := h.Decode(make([]byte, HeaderSize-1)); err == nil {
		t.Fatalf("expected error decoding a short buffer")
	}
}

func TestHeaderDecodeBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 0x55
	var h Header
	if err := h.Decode(buf); err == nil {
		t.Fatalf("expected error decoding a buffer with a bad magic byte")
	}
}

func TestExtraLenFor(t *testing.T) {
	cases := map[Opcode]int{
		OpSet:       8,
		OpAdd:       8,
		OpIncrement: 20,
		OpTouch:     4,
		OpGet:       0,
		OpDelete:    0,
	}
	for op, want := range cases {
		if got := ExtraLenFor(op); got != want {
			t.Errorf("ExtraLenFor(%v) = %d, want %d", op, got, want)
		}
	}
}
