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

// Package writer implements the per-connection response sink described
// in spec.md §4.1: a singly-linked chain of fixed-capacity segments that
// accumulates response bytes behind a possibly-blocked socket and drains
// them opportunistically, tolerating arbitrarily many partial writes.
package writer

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// DefaultSegmentSize is the 64 KiB default from §3.
const DefaultSegmentSize = 64 * 1024

type segment struct {
	buf             []byte
	sendIdx, fillIdx int
	next             *segment
}

func (s *segment) free() int { return len(s.buf) - s.fillIdx }

// Writer is a per-connection buffer chain. It is not safe for
// concurrent use: §5 assumes one worker goroutine owns a connection's
// parser and writer at a time.
type Writer struct {
	head, tail  *segment
	defaultSize int
}

// Init establishes one empty segment. Calling Init on an already-active
// Writer frees all non-head segments and resets the head, matching the
// "idempotent; re-init ... resets the head" contract in §4.1.
func (w *Writer) Init(defaultSegmentSize int) {
	if defaultSegmentSize <= 0 {
		defaultSegmentSize = DefaultSegmentSize
	}
	w.defaultSize = defaultSegmentSize
	if w.head == nil {
		w.head = &segment{buf: make([]byte, defaultSegmentSize)}
	} else {
		w.head.sendIdx = 0
		w.head.fillIdx = 0
		w.head.next = nil
	}
	w.tail = w.head
}

// Reserve ensures the tail segment has nbyte contiguous free bytes,
// appending a new segment sized max(nbyte, defaultSize) if not. It
// returns true iff a caller's next Append of nbyte bytes will land in
// the same segment that was the tail before this call -- callers that
// must retry a formatting loop when a new segment was spawned use this
// return value (§4.1, "used by callers that must retry ... see
// lru_get's formatting loop").
func (w *Writer) Reserve(nbyte int) bool {
	if w.tail.free() >= nbyte {
		return true
	}
	size := nbyte
	if w.defaultSize > size {
		size = w.defaultSize
	}
	seg := &segment{buf: make([]byte, size)}
	w.tail.next = seg
	w.tail = seg
	return false
}

// Append copies p into the tail segment. It fails if the tail doesn't
// have enough contiguous space; callers must pair every Append with a
// preceding Reserve for at least len(p) bytes.
func (w *Writer) Append(p []byte) bool {
	if w.tail.free() < len(p) {
		return false
	}
	n := copy(w.tail.buf[w.tail.fillIdx:], p)
	w.tail.fillIdx += n
	return true
}

// ErrWouldBlock is returned by nothing in this package directly; it
// documents the condition Flush treats as "stop, state preserved" per
// §4.1 rather than an error.
var ErrWouldBlock = errors.New("writer: fd would block")

// Flush repeatedly writes from the head segment's sendIdx to fillIdx,
// advancing on success and freeing fully-drained non-tail segments. On
// EWOULDBLOCK/EAGAIN (and EINTR) it returns (true, nil) with all state preserved --
// the caller is responsible for arranging a writability notification
// and calling Flush again. Any other write error tears the connection
// down (§4.1, §7).
func (w *Writer) Flush(fd int) (bool, error) {
	for {
		seg := w.head
		if seg.sendIdx >= seg.fillIdx {
			if seg.next == nil {
				return true, nil
			}
			w.head = seg.next
			continue
		}
		n, err := unix.Write(fd, seg.buf[seg.sendIdx:seg.fillIdx])
		if n > 0 {
			seg.sendIdx += n
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
				return true, nil
			}
			return false, fmt.Errorf("writer: flush: %w", err)
		}
	}
}

// Pending reports whether there are unflushed bytes, so the connection
// loop knows whether to wait for writability before reading more.
func (w *Writer) Pending() bool {
	for s := w.head; s != nil; s = s.next {
		if s.sendIdx < s.fillIdx {
			return true
		}
	}
	return false
}
