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

func TestIsQuiet(t *testing.T) {
	quiet := []Opcode{OpGetQ, OpGetKQ, OpSetQ, OpAddQ, OpReplaceQ, OpDeleteQ,
		OpIncrementQ, OpDecrementQ, OpQuitQ, OpFlushQ, OpAppendQ, OpPrependQ,
		OpTouchQ, OpGatQ, OpGatKQ}
	for _, op := range quiet {
		if !op.IsQuiet() {
			t.Errorf("%v should be quiet", op)
		}
	}
	loud := []Opcode{OpGet, OpSet, OpAdd, OpDelete, OpNoop, OpVersion, OpStat}
	for _, op := range loud {
		if op.IsQuiet() {
			t.Errorf("%v should not be quiet", op)
		}
	}
}

func TestIncludesKey(t *testing.T) {
	withKey := []Opcode{OpGetK, OpGetKQ, OpGatK, OpGatKQ}
	for _, op := range withKey {
		if !op.IncludesKey() {
			t.Errorf("%v should echo the key", op)
		}
	}
	withoutKey := []Opcode{OpGet, OpGetQ, OpGat, OpGatQ}
	for _, op := range withoutKey {
		if op.IncludesKey() {
			t.Errorf("%v should not echo the key", op)
		}
	}
}

func TestKnown(t *testing.T) {
	if !Known(OpSet) {
		t.Errorf("OpSet should be known")
	}
	if Known(Opcode(0x7f)) {
		t.Errorf("0x7f should not be a known opcode")
	}
}
