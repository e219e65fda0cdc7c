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
	"testing"

	"github.com/edamame-kv/edamame/internal/cache"
	"github.com/edamame-kv/edamame/internal/proto"
)

func binaryHeader(op proto.Opcode, keyLen, extraLen int, bodyLen uint32, opaque uint32, cas uint64) []byte {
	buf := make([]byte, proto.HeaderSize)
	buf[0] = proto.MagicRequest
	buf[1] = byte(op)
	binary.BigEndian.PutUint16(buf[2:4], uint16(keyLen))
	buf[4] = byte(extraLen)
	binary.BigEndian.PutUint32(buf[8:12], bodyLen)
	binary.BigEndian.PutUint32(buf[12:16], opaque)
	binary.BigEndian.PutUint64(buf[16:24], cas)
	return buf
}

func TestFeedBinarySet(t *testing.T) {
	c, _, _ := newTestConn(t)
	key := []byte("foo")
	val := []byte("bar")
	extras := make([]byte, 8) // flags=0, expiration=0
	frame := append(binaryHeader(proto.OpSet, len(key), len(extras), uint32(len(extras)+len(key)+len(val)), 7, 0), extras...)
	frame = append(frame, key...)
	frame = append(frame, val...)

	cmds, closeConn, err := c.Feed(frame)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if closeConn || len(cmds) != 1 {
		t.Fatalf("unexpected result: cmds=%+v close=%v", cmds, closeConn)
	}
	cmd := cmds[0]
	if !cmd.Binary || cmd.Kind != KindStorage || cmd.Verb != cache.VerbSet || string(cmd.Key) != "foo" || string(cmd.Value) != "bar" || cmd.Opaque != 7 {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestFeedBinaryGetNoBody(t *testing.T) {
	c, _, _ := newTestConn(t)
	key := []byte("foo")
	frame := append(binaryHeader(proto.OpGetK, len(key), 0, uint32(len(key)), 0, 0), key...)
	cmds, _, err := c.Feed(frame)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(cmds) != 1 || cmds[0].Kind != KindGet || string(cmds[0].Key) != "foo" {
		t.Fatalf("unexpected command: %+v", cmds)
	}
}

func TestFeedBinaryUnknownOpcodeCoercesToQuit(t *testing.T) {
	c, _, _ := newTestConn(t)
	frame := binaryHeader(proto.Opcode(0x7f), 0, 0, 0, 0, 0)
	cmds, closeConn, err := c.Feed(frame)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !closeConn || len(cmds) != 1 || cmds[0].Kind != KindQuit {
		t.Fatalf("unknown opcode should coerce to a closing quit: cmds=%+v close=%v", cmds, closeConn)
	}
}

func TestFeedBinaryIncrExtras(t *testing.T) {
	c, _, _ := newTestConn(t)
	key := []byte("ctr")
	extras := make([]byte, 20)
	binary.BigEndian.PutUint64(extras[0:8], 5)   // delta
	binary.BigEndian.PutUint64(extras[8:16], 100) // initial
	binary.BigEndian.PutUint32(extras[16:20], 0)  // expiration
	frame := append(binaryHeader(proto.OpIncrement, len(key), len(extras), uint32(len(extras)+len(key)), 0, 0), extras...)
	frame = append(frame, key...)

	cmds, _, err := c.Feed(frame)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected one command, got %+v", cmds)
	}
	cmd := cmds[0]
	if cmd.Verb != cache.VerbIncr || cmd.Extras.Addition != 5 || cmd.Extras.Initial != 100 {
		t.Fatalf("unexpected incr extras: %+v", cmd.Extras)
	}
}
