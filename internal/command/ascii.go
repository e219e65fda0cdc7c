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

package command

import (
	"fmt"
	"strconv"

	"github.com/edamame-kv/edamame/internal/cache"
	"github.com/edamame-kv/edamame/internal/parser"
	"github.com/edamame-kv/edamame/internal/proto"
	"github.com/edamame-kv/edamame/internal/writer"
)

func writeAsciiLine(w *writer.Writer, line string) {
	w.Reserve(len(line))
	w.Append([]byte(line))
}

func (p *Processor) handleAscii(cmd parser.Command, w *writer.Writer) bool {
	switch cmd.Kind {
	case parser.KindStorage:
		res := p.table.Upsert(cache.UpsertRequest{
			Verb:   cmd.Verb,
			Key:    cmd.Key,
			Value:  cmd.Value,
			Extras: cmd.Extras,
			Cas:    cmd.Cas,
		})
		if cmd.Quiet {
			return false
		}
		switch {
		case cmd.Verb == cache.VerbTouch:
			if res.Status == proto.StatusOK {
				writeAsciiLine(w, proto.AsciiTouched)
			} else {
				writeAsciiLine(w, proto.AsciiNotFound)
			}
		case res.IsNumeric:
			writeAsciiLine(w, strconv.FormatUint(res.Numeric, 10)+"\r\n")
		case res.Status == proto.StatusNonNumeric:
			writeAsciiLine(w, proto.AsciiClientError("cannot increment or decrement non-numeric value"))
		default:
			writeAsciiLine(w, proto.StatusToAsciiStorageResult(res.Status))
		}
		return false

	case parser.KindDelete:
		status := p.table.Delete(cmd.Key)
		if cmd.Quiet {
			return false
		}
		if status == proto.StatusOK {
			writeAsciiLine(w, proto.AsciiDeleted)
		} else {
			writeAsciiLine(w, proto.AsciiNotFound)
		}
		return false

	case parser.KindFlushAll:
		p.table.FlushAll()
		if !cmd.Quiet {
			writeAsciiLine(w, proto.AsciiOK)
		}
		return false

	case parser.KindVersion:
		writeAsciiLine(w, fmt.Sprintf("VERSION %s\r\n", Version))
		return false

	case parser.KindStat:
		p.writeAsciiStats(w)
		return false

	case parser.KindQuit:
		return true
	}
	return false
}

func (p *Processor) writeAsciiStats(w *writer.Writer) {
	s := p.table.Snapshot()
	stat := func(name string, val interface{}) {
		writeAsciiLine(w, fmt.Sprintf("STAT %s %v\r\n", name, val))
	}
	stat("curr_items", s.ObjCount)
	stat("total_capacity", s.Capacity)
	stat("get_hits", s.Hits)
	stat("get_misses", s.Misses)
	stat("cmd_failures", s.Failures)
	stat("longest_probe", s.LongestProbes)
	stat("ninline_key_count", s.NinlineKeycnt)
	stat("ninline_value_count", s.NinlineValcnt)
	writeAsciiLine(w, proto.AsciiEnd)
}
