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

package server

import (
	"errors"
	"net"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/edamame-kv/edamame/internal/command"
	"github.com/edamame-kv/edamame/internal/parser"
	"github.com/edamame-kv/edamame/internal/writer"
)

const readBufSize = 64 * 1024

func (s *Server) serve(nc net.Conn) {
	id := uuid.New()
	s.logf("conn %s accepted from %s", id, nc.RemoteAddr())
	defer func() {
		nc.Close()
		s.logf("conn %s closed", id)
	}()

	if tc, ok := nc.(*net.TCPConn); ok {
		setNoDelay(tc, s, id)
	}

	var w writer.Writer
	w.Init(writer.DefaultSegmentSize)
	pc := parser.NewConn(s.table, &w)
	proc := command.NewProcessor(s.table)

	buf := make([]byte, readBufSize)
	for {
		n, rerr := nc.Read(buf)
		if n > 0 {
			cmds, closeConn, ferr := pc.Feed(buf[:n])
			if ferr != nil {
				s.logf("conn %s: protocol error: %s", id, ferr)
				return
			}
			for _, cmd := range cmds {
				if proc.Handle(cmd, &w) {
					closeConn = true
				}
			}
			if err := flush(nc, &w); err != nil {
				s.logf("conn %s: write error: %s", id, err)
				return
			}
			if closeConn {
				return
			}
		}
		if rerr != nil {
			return
		}
	}
}

// flush drains w against nc's raw file descriptor, using the
// connection's SyscallConn to let the runtime's netpoller handle
// EAGAIN/EWOULDBLOCK backoff instead of busy-looping (§4.1).
func flush(nc net.Conn, w *writer.Writer) error {
	if !w.Pending() {
		return nil
	}
	sc, ok := nc.(syscall.Conn)
	if !ok {
		return errors.New("server: connection has no raw descriptor")
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var flushErr error
	err = rc.Write(func(fd uintptr) bool {
		_, flushErr = w.Flush(int(fd))
		if flushErr != nil {
			return true
		}
		return !w.Pending()
	})
	if err != nil {
		return err
	}
	return flushErr
}

func setNoDelay(tc *net.TCPConn, s *Server, id uuid.UUID) {
	rc, err := tc.SyscallConn()
	if err != nil {
		return
	}
	rc.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			s.logf("conn %s: TCP_NODELAY: %s", id, err)
		}
	})
}
