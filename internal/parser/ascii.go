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
	"strconv"

	"github.com/edamame-kv/edamame/internal/cache"
	"github.com/edamame-kv/edamame/internal/proto"
)

// maxValueLen is the ASCII storage-command body-size ceiling; real
// memcached defaults to 1 MiB and rejects set/add/... bodies over that
// with "object too large for cache" before ever reading the body.
const maxValueLen = 1024 * 1024

// feedAsciiRawbuf accumulates one command line into c.line, watching
// for a leading "get"/"gets" token so multi-get can divert to streaming
// mode before the key list (which has no length limit of its own) ever
// has to fit in the 512-byte scratch buffer.
func (c *Conn) feedAsciiRawbuf(data []byte) ([]byte, bool) {
	progressed := false
	for len(data) > 0 {
		b := data[0]

		if !c.lineTokenChecked && (b == ' ' || b == '\n') {
			c.lineTokenChecked = true
			tok := string(c.line[:c.lineLen])
			if tok == "get" || tok == "gets" {
				data = data[1:]
				c.lineLen = 0
				c.getWithCas = tok == "gets"
				if b == ' ' {
					if c.getWithCas {
						c.state = AsciiPendingGetCasMulti
					} else {
						c.state = AsciiPendingGetMulti
					}
				} else {
					c.resyncAfterError(proto.AsciiError)
				}
				return data, true
			}
		}

		if b == '\n' {
			data = data[1:]
			if c.lineLen > 0 && c.line[c.lineLen-1] == '\r' {
				c.lineLen--
			}
			c.state = AsciiPendingParseCmd
			return data, true
		}

		if c.lineLen >= lineMax {
			c.resyncAfterError("ERROR line too long\r\n")
			return data, true
		}
		c.line[c.lineLen] = b
		c.lineLen++
		data = data[1:]
		progressed = true
	}
	return data, progressed
}

// feedAsciiGetMulti streams VALUE frames for each whitespace-separated
// key directly into c.w as keys complete, finishing with END\r\n; it
// never produces a Command, per §4.3's multi-get carve-out.
func (c *Conn) feedAsciiGetMulti(data []byte) ([]byte, bool) {
	withCas := c.state == AsciiPendingGetCasMulti
	for len(data) > 0 {
		b := data[0]
		data = data[1:]
		switch b {
		case ' ', '\t':
			if c.getKeyLen > 0 {
				c.emitGetMultiValue(withCas)
				c.getKeyLen = 0
			}
		case '\r':
			// swallowed; the matching '\n' ends the command below.
		case '\n':
			if c.getKeyLen > 0 {
				c.emitGetMultiValue(withCas)
				c.getKeyLen = 0
			}
			c.w.Reserve(len(proto.AsciiEnd))
			c.w.Append([]byte(proto.AsciiEnd))
			return data, true
		default:
			if c.getKeyLen < keyMax {
				c.getKey[c.getKeyLen] = b
				c.getKeyLen++
			}
		}
	}
	return data, false
}

func (c *Conn) emitGetMultiValue(withCas bool) {
	key := append([]byte(nil), c.getKey[:c.getKeyLen]...)
	res := c.table.GetAuto(key)
	if !res.Found {
		return
	}
	var val []byte
	if res.IsNumeric {
		val = []byte(strconv.FormatUint(res.Numeric, 10))
	} else {
		val = res.Value
	}
	hdr := proto.AsciiValueHeader(key, res.Flags, len(val), res.Cas, withCas)
	c.w.Reserve(len(hdr) + len(val) + 2)
	c.w.Append([]byte(hdr))
	c.w.Append(val)
	c.w.Append([]byte("\r\n"))
}

// feedAsciiValue reads the fixed-length body plus its trailing
// terminator for a storage command, §4.3's VALUE_READ state.
func (c *Conn) feedAsciiValue(data []byte) ([]byte, bool) {
	need := c.valBodylen + 2
	if c.valBuf == nil {
		c.valBuf = make([]byte, need)
		c.valGot = 0
	}
	n := copy(c.valBuf[c.valGot:], data)
	c.valGot += n
	data = data[n:]
	if c.valGot < need {
		return data, false
	}
	if c.valBuf[need-1] != '\n' {
		c.errorFrame(proto.AsciiClientError("bad data chunk"))
		c.valBuf = nil
		c.pending = Command{}
		c.state = CmdClean
		return data, true
	}
	c.pending.Value = c.valBuf[:c.valBodylen]
	c.valBuf = nil
	c.state = AsciiCmdReady
	return data, true
}

func (c *Conn) clientErrorAndReset(msg string) {
	c.errorFrame(proto.AsciiClientError(msg))
	c.pending = Command{}
	c.state = CmdClean
}

// parseAsciiLine dispatches a complete, CRLF-stripped command line
// (c.line[:c.lineLen]) to the matching verb parser, §4.3/§4.4.
func (c *Conn) parseAsciiLine() {
	fields := bytes.Fields(c.line[:c.lineLen])
	if len(fields) == 0 {
		c.errorFrame(proto.AsciiError)
		c.state = CmdClean
		return
	}
	verb := string(fields[0])
	args := fields[1:]
	switch verb {
	case "set", "add", "replace", "append", "prepend":
		c.parseStorage(verb, args)
	case "cas":
		c.parseCas(args)
	case "delete":
		c.parseDelete(args)
	case "incr", "decr":
		c.parseIncrDecr(verb, args)
	case "touch":
		c.parseTouch(args)
	case "flush_all":
		c.parseFlushAll(args)
	case "quit":
		c.pending = Command{Kind: KindQuit}
		c.state = AsciiCmdReady
	case "version":
		c.pending = Command{Kind: KindVersion}
		c.state = AsciiCmdReady
	case "stats":
		c.pending = Command{Kind: KindStat}
		c.state = AsciiCmdReady
	default:
		c.errorFrame(proto.AsciiError)
		c.state = CmdClean
	}
}

func verbFor(s string) cache.Verb {
	switch s {
	case "add":
		return cache.VerbAdd
	case "replace":
		return cache.VerbReplace
	case "append":
		return cache.VerbAppend
	case "prepend":
		return cache.VerbPrepend
	default:
		return cache.VerbSet
	}
}

func (c *Conn) parseStorage(verb string, args [][]byte) {
	if len(args) < 4 || len(args) > 5 {
		c.clientErrorAndReset("bad command line format")
		return
	}
	key := args[0]
	if len(key) < 1 || len(key) > keyMax {
		c.clientErrorAndReset("bad command line format")
		return
	}
	flags, err1 := strconv.ParseUint(string(args[1]), 10, 16)
	exptime, err2 := strconv.ParseInt(string(args[2]), 10, 64)
	bodylen, err3 := strconv.ParseUint(string(args[3]), 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		c.clientErrorAndReset("bad command line format")
		return
	}
	noreply := false
	if len(args) == 5 {
		if string(args[4]) != "noreply" {
			c.clientErrorAndReset("bad command line format")
			return
		}
		noreply = true
	}
	if bodylen > maxValueLen {
		c.clientErrorAndReset("object too large for cache")
		return
	}

	c.pending = Command{
		Kind:   KindStorage,
		Verb:   verbFor(verb),
		Key:    append([]byte(nil), key...),
		Extras: cache.Extras{Flags: uint16(flags), Expiration: exptime, Initial: cache.NoInitial},
		Quiet:  noreply,
	}
	c.valBodylen = int(bodylen)
	c.valBuf = nil
	c.state = AsciiPendingValue
}

func (c *Conn) parseCas(args [][]byte) {
	if len(args) < 5 || len(args) > 6 {
		c.clientErrorAndReset("bad command line format")
		return
	}
	key := args[0]
	if len(key) < 1 || len(key) > keyMax {
		c.clientErrorAndReset("bad command line format")
		return
	}
	flags, err1 := strconv.ParseUint(string(args[1]), 10, 16)
	exptime, err2 := strconv.ParseInt(string(args[2]), 10, 64)
	bodylen, err3 := strconv.ParseUint(string(args[3]), 10, 32)
	casUnique, err4 := strconv.ParseUint(string(args[4]), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		c.clientErrorAndReset("bad command line format")
		return
	}
	noreply := false
	if len(args) == 6 {
		if string(args[5]) != "noreply" {
			c.clientErrorAndReset("bad command line format")
			return
		}
		noreply = true
	}
	if bodylen > maxValueLen {
		c.clientErrorAndReset("object too large for cache")
		return
	}

	c.pending = Command{
		Kind:   KindStorage,
		Verb:   cache.VerbSet,
		Key:    append([]byte(nil), key...),
		Extras: cache.Extras{Flags: uint16(flags), Expiration: exptime, Initial: cache.NoInitial},
		Cas:    casUnique,
		Quiet:  noreply,
	}
	c.valBodylen = int(bodylen)
	c.valBuf = nil
	c.state = AsciiPendingValue
}

func (c *Conn) parseDelete(args [][]byte) {
	if len(args) < 1 || len(args) > 2 {
		c.clientErrorAndReset("bad command line format")
		return
	}
	key := args[0]
	if len(key) < 1 || len(key) > keyMax {
		c.clientErrorAndReset("bad command line format")
		return
	}
	noreply := false
	if len(args) == 2 {
		if string(args[1]) != "noreply" {
			c.clientErrorAndReset("bad command line format")
			return
		}
		noreply = true
	}
	c.pending = Command{Kind: KindDelete, Key: append([]byte(nil), key...), Quiet: noreply}
	c.state = AsciiCmdReady
}

func (c *Conn) parseIncrDecr(verb string, args [][]byte) {
	if len(args) < 2 || len(args) > 3 {
		c.clientErrorAndReset("invalid numeric delta argument")
		return
	}
	key := args[0]
	if len(key) < 1 || len(key) > keyMax {
		c.clientErrorAndReset("bad command line format")
		return
	}
	delta, err := strconv.ParseUint(string(args[1]), 10, 64)
	if err != nil {
		c.clientErrorAndReset("invalid numeric delta argument")
		return
	}
	noreply := false
	if len(args) == 3 {
		if string(args[2]) != "noreply" {
			c.clientErrorAndReset("bad command line format")
			return
		}
		noreply = true
	}
	v := cache.VerbIncr
	if verb == "decr" {
		v = cache.VerbDecr
	}
	c.pending = Command{
		Kind:   KindStorage,
		Verb:   v,
		Key:    append([]byte(nil), key...),
		Extras: cache.Extras{Addition: delta, Initial: cache.NoInitial},
		Quiet:  noreply,
	}
	c.state = AsciiCmdReady
}

func (c *Conn) parseTouch(args [][]byte) {
	if len(args) < 2 || len(args) > 3 {
		c.clientErrorAndReset("bad command line format")
		return
	}
	key := args[0]
	if len(key) < 1 || len(key) > keyMax {
		c.clientErrorAndReset("bad command line format")
		return
	}
	exptime, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		c.clientErrorAndReset("invalid exptime argument")
		return
	}
	noreply := false
	if len(args) == 3 {
		if string(args[2]) != "noreply" {
			c.clientErrorAndReset("bad command line format")
			return
		}
		noreply = true
	}
	c.pending = Command{
		Kind:   KindStorage,
		Verb:   cache.VerbTouch,
		Key:    append([]byte(nil), key...),
		Extras: cache.Extras{Expiration: exptime, Initial: cache.NoInitial},
		Quiet:  noreply,
	}
	c.state = AsciiCmdReady
}

// parseFlushAll accepts and discards an optional delay argument;
// flush_all is supplemented behavior (SPEC_FULL.md) implemented as an
// immediate flush regardless of any requested delay.
func (c *Conn) parseFlushAll(args [][]byte) {
	noreply := false
	switch len(args) {
	case 0:
	case 1:
		if string(args[0]) == "noreply" {
			noreply = true
		}
	case 2:
		if string(args[1]) != "noreply" {
			c.clientErrorAndReset("bad command line format")
			return
		}
		noreply = true
	default:
		c.clientErrorAndReset("bad command line format")
		return
	}
	c.pending = Command{Kind: KindFlushAll, Quiet: noreply}
	c.state = AsciiCmdReady
}
