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

// Verb is the cache-engine-level operation a command processor asks
// Upsert to perform; it is deliberately distinct from proto.Opcode,
// which is a wire-level concept (ASCII verbs and binary opcodes both
// map onto this smaller set), §4.2.2/§4.2.3.
type Verb int

const (
	VerbSet Verb = iota
	VerbAdd
	VerbReplace
	VerbAppend
	VerbPrepend
	VerbIncr
	VerbDecr
	VerbTouch
)

// NoInitial is the ASCII-origin sentinel for incr/decr's "initial"
// extras field: it means "this request came from the text protocol (or
// explicitly asked for no auto-vivify), fail with KEY_NOT_FOUND instead
// of seeding a value on miss" (§4.2.2, §9 open question).
const NoInitial = ^uint64(0)

// Extras bundles the three extras unions spec.md §3 describes
// (two-value, numeric, one-value) into a single struct; unused fields
// for a given Verb are ignored.
type Extras struct {
	Flags      uint16
	Expiration int64 // relative TTL seconds, as supplied by the client
	Addition   uint64
	Initial    uint64 // NoInitial unless the binary protocol supplied one
}
