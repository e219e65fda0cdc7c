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

// Package parser implements the per-connection finite-state machine of
// spec.md §4.3: it consumes bytes from the network (in whatever chunks
// the transport happens to deliver) and produces fully-parsed Command
// records, or emits an error frame directly into the connection's
// Writer on malformed input. ASCII multi-get is the one exception the
// spec calls out as not producing a Command at all -- it streams VALUE
// frames straight from the parser, so Conn holds a direct reference to
// the cache table to serve it (see ascii.go's feedAsciiGetMulti).
package parser

import (
	"github.com/edamame-kv/edamame/internal/cache"
	"github.com/edamame-kv/edamame/internal/proto"
)

// Kind identifies which branch of the command processor should handle a
// parsed Command.
type Kind int

const (
	KindStorage Kind = iota // set/add/replace/append/prepend/cas/incr/decr/touch
	KindGet                 // binary GET family and GAT family
	KindDelete
	KindQuit
	KindFlushAll
	KindNoop
	KindVersion
	KindStat
	KindUnknown // malformed/unsupported; already resynchronized by the parser
)

// Command is the parser's output: opcode, key/value references, and one
// of the three extras unions from spec.md §3, flattened into
// cache.Extras.
type Command struct {
	Kind   Kind
	Verb   cache.Verb // valid when Kind == KindStorage
	Opcode proto.Opcode

	Key   []byte
	Value []byte

	Extras cache.Extras
	Cas    uint64
	Opaque uint32

	Binary bool // arrived via the binary protocol (affects response framing)
	Quiet  bool // "…Q" binary variant or ASCII "noreply"
	Touch  bool // GAT/GATQ/GATK/GATKQ: also refresh expiration on hit
}
