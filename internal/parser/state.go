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

// State is the per-connection parser state, §4.3. The source's
// edamame_read drove this with goto; here it is an explicit
// loop { switch state { ... } ; continue } per spec.md §9's design
// note, which gets the same "run until no more progress" semantics
// without jumps.
type State int

const (
	CmdClean State = iota
	AsciiPendingRawbuf
	AsciiPendingParseCmd
	AsciiPendingGetMulti
	AsciiPendingGetCasMulti
	AsciiPendingValue
	AsciiCmdReady
	BinaryPendingRawbuf
	BinaryPendingParseExtra
	BinaryPendingParseKey
	BinaryPendingValue
	BinaryCmdReady
)

// lineMax is the 512-byte per-connection scratch buffer size for ASCII
// command-line accumulation, §4.3.
const lineMax = 512

// keyMax is KEY_MAX_SIZE, §4.3.
const keyMax = 250
