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
	"bytes"

	"github.com/edamame-kv/edamame/internal/cache"
	"github.com/edamame-kv/edamame/internal/proto"
	"github.com/edamame-kv/edamame/internal/writer"
)

// Conn is a per-connection parser instance. It is not safe for
// concurrent use -- §5 assumes a single goroutine owns a connection's
// reads at a time, so no locking is required inside it.
type Conn struct {
	state            State
	skipUntilNewline bool

	line    [lineMax]byte
	lineLen int
	// once the first whitespace-delimited token of a freshly-started
	// line is known, we check it for "get"/"gets" so multi-get can
	// bypass line buffering entirely, per §4.3.
	lineTokenChecked bool

	pending    Command
	valBuf     []byte
	valGot     int
	valBodylen int

	getWithCas bool
	getKey     [keyMax]byte
	getKeyLen  int

	hdrBuf [proto.HeaderSize]byte
	hdrGot int
	hdr    proto.Header

	curExtraLen int
	curValueLen int
	curExtras   cache.Extras
	curKey      []byte

	extraBuf [20]byte
	extraGot int

	keyBuf [keyMax]byte
	keyGot int

	binVal    []byte
	binValGot int

	table *cache.Table
	w     *writer.Writer
}

// NewConn builds a parser bound to a cache table (for ASCII multi-get
// streaming) and the connection's response Writer (for error frames and
// multi-get VALUE frames).
func NewConn(t *cache.Table, w *writer.Writer) *Conn {
	return &Conn{table: t, w: w}
}

// Feed advances the state machine over data, which may be any prefix of
// a larger logical stream -- the caller makes no promises about where
// command/value boundaries fall relative to chunk boundaries (§5's
// "parser is non-blocking: it consumes exactly the bytes currently
// available and returns, remembering its state", and §8's P9). It
// returns every Command that became ready during this call (pipelined
// commands can complete more than one per call) plus a close flag.
func (c *Conn) Feed(data []byte) (cmds []Command, closeConn bool, err error) {
	for {
		if c.skipUntilNewline {
			i := bytes.IndexByte(data, '\n')
			if i < 0 {
				return cmds, closeConn, nil
			}
			data = data[i+1:]
			c.skipUntilNewline = false
			c.state = CmdClean
			continue
		}

		switch c.state {
		case CmdClean:
			for len(data) > 0 && (data[0] == ' ' || data[0] == '\t') {
				data = data[1:]
			}
			if len(data) == 0 {
				return cmds, closeConn, nil
			}
			c.lineLen = 0
			c.lineTokenChecked = false
			if data[0] == proto.MagicRequest {
				c.state = BinaryPendingRawbuf
				c.hdrGot = 0
			} else {
				c.state = AsciiPendingRawbuf
			}
			continue

		case AsciiPendingRawbuf:
			var progressed bool
			data, progressed = c.feedAsciiRawbuf(data)
			if c.state == AsciiPendingRawbuf && !progressed {
				return cmds, closeConn, nil
			}
			continue

		case AsciiPendingGetMulti, AsciiPendingGetCasMulti:
			var done bool
			data, done = c.feedAsciiGetMulti(data)
			if !done {
				return cmds, closeConn, nil
			}
			c.state = CmdClean
			continue

		case AsciiPendingParseCmd:
			c.parseAsciiLine()
			continue

		case AsciiPendingValue:
			var done bool
			data, done = c.feedAsciiValue(data)
			if !done {
				return cmds, closeConn, nil
			}
			continue

		case AsciiCmdReady:
			cmds = append(cmds, c.pending)
			if c.pending.Kind == KindQuit {
				closeConn = true
			}
			c.pending = Command{}
			c.state = CmdClean
			continue

		case BinaryPendingRawbuf:
			var done bool
			data, done = c.feedBinaryHeader(data)
			if !done {
				return cmds, closeConn, nil
			}
			continue

		case BinaryPendingParseExtra:
			var done bool
			data, done = c.feedBinaryExtra(data)
			if !done {
				return cmds, closeConn, nil
			}
			continue

		case BinaryPendingParseKey:
			var done bool
			data, done = c.feedBinaryKey(data)
			if !done {
				return cmds, closeConn, nil
			}
			continue

		case BinaryPendingValue:
			var done bool
			data, done = c.feedBinaryValue(data)
			if !done {
				return cmds, closeConn, nil
			}
			continue

		case BinaryCmdReady:
			cmds = append(cmds, c.pending)
			if c.pending.Kind == KindQuit {
				closeConn = true
			}
			c.pending = Command{}
			c.state = CmdClean
			continue
		}
		return cmds, closeConn, nil
	}
}

// errorFrame queues a malformed-input response directly into the
// connection's Writer, per §4.3's "emit the appropriate error frame".
func (c *Conn) errorFrame(msg string) {
	b := []byte(msg)
	c.w.Reserve(len(b))
	c.w.Append(b)
}

func (c *Conn) resyncAfterError(msg string) {
	c.errorFrame(msg)
	c.skipUntilNewline = true
	c.state = CmdClean
	c.pending = Command{}
}
