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

// Opcode is a binary-protocol operation code, §6.
type Opcode byte

const (
	OpGet       Opcode = 0x00
	OpSet       Opcode = 0x01
	OpAdd       Opcode = 0x02
	OpReplace   Opcode = 0x03
	OpDelete    Opcode = 0x04
	OpIncrement Opcode = 0x05
	OpDecrement Opcode = 0x06
	OpQuit      Opcode = 0x07
	OpFlush     Opcode = 0x08
	OpGetQ      Opcode = 0x09
	OpNoop      Opcode = 0x0a
	OpVersion   Opcode = 0x0b
	OpGetK      Opcode = 0x0c
	OpGetKQ     Opcode = 0x0d
	OpAppend    Opcode = 0x0e
	OpPrepend   Opcode = 0x0f
	OpStat      Opcode = 0x10
	OpSetQ      Opcode = 0x11
	OpAddQ      Opcode = 0x12
	OpReplaceQ  Opcode = 0x13
	OpDeleteQ   Opcode = 0x14
	OpIncrementQ Opcode = 0x15
	OpDecrementQ Opcode = 0x16
	OpQuitQ     Opcode = 0x17
	OpFlushQ    Opcode = 0x18
	OpAppendQ   Opcode = 0x19
	OpPrependQ  Opcode = 0x1a
	OpTouch     Opcode = 0x1c
	OpGat       Opcode = 0x1d
	OpGatQ      Opcode = 0x1e
	// OpTouchQ is a protocol-specific extension noted in spec.md §6; the
	// real memcached binary protocol has no standard TouchQ, but this
	// implementation follows the spec and accepts it.
	OpTouchQ Opcode = 0x1f
	OpGatK   Opcode = 0x23
	OpGatKQ  Opcode = 0x24
)

// IsQuiet reports whether op is a "…Q" quiet variant: on success it
// suppresses the response (§4.4).
func (op Opcode) IsQuiet() bool {
	switch op {
	case OpGetQ, OpGetKQ, OpSetQ, OpAddQ, OpReplaceQ, OpDeleteQ,
		OpIncrementQ, OpDecrementQ, OpQuitQ, OpFlushQ, OpAppendQ,
		OpPrependQ, OpTouchQ, OpGatQ, OpGatKQ:
		return true
	default:
		return false
	}
}

// IncludesKey reports whether a GET-family opcode's response must echo
// the key back (the "K" variants).
func (op Opcode) IncludesKey() bool {
	switch op {
	case OpGetK, OpGetKQ, OpGatK, OpGatKQ:
		return true
	default:
		return false
	}
}

// Known reports whether op is one this server understands. An unknown
// opcode is coerced to OpQuit by the parser per §4.3.
func Known(op Opcode) bool {
	switch op {
	case OpGet, OpSet, OpAdd, OpReplace, OpDelete, OpIncrement, OpDecrement,
		OpQuit, OpFlush, OpGetQ, OpNoop, OpVersion, OpGetK, OpGetKQ,
		OpAppend, OpPrepend, OpStat, OpSetQ, OpAddQ, OpReplaceQ, OpDeleteQ,
		OpIncrementQ, OpDecrementQ, OpQuitQ, OpFlushQ, OpAppendQ, OpPrependQ,
		OpTouch, OpGat, OpGatQ, OpTouchQ, OpGatK, OpGatKQ:
		return true
	default:
		return false
	}
}
