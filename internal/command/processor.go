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

// Package command turns a parsed parser.Command into calls against the
// cache table and formats the ASCII or binary response into a
// connection's writer.Writer, §4.4. It turns each proto.Status into wire
// bytes in both dialects, using proto's fixed ASCII result lines for the
// text protocol.
package command

import (
	"github.com/edamame-kv/edamame/internal/cache"
	"github.com/edamame-kv/edamame/internal/parser"
	"github.com/edamame-kv/edamame/internal/writer"
)

// Version is reported by the version command/opcode.
const Version = "1.6.0-edamame"

// Processor binds a cache table to a connection.
type Processor struct {
	table *cache.Table
}

// NewProcessor builds a Processor bound to t.
func NewProcessor(t *cache.Table) *Processor {
	return &Processor{table: t}
}

// Handle executes cmd against the cache table and writes its response
// into w. It returns true if the connection should be closed after the
// response is flushed (a quit command).
func (p *Processor) Handle(cmd parser.Command, w *writer.Writer) bool {
	if cmd.Binary {
		return p.handleBinary(cmd, w)
	}
	return p.handleAscii(cmd, w)
}
