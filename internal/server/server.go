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

// Package server implements the network front end, §5: one goroutine
// per accepted connection, each running the parser/command/writer
// pipeline against a single shared cache.Table. This is the idiomatic
// Go rendition of the original's fixed worker-thread event loop; the
// table itself, not a thread affinity scheme, is what's shared.
package server

import (
	"errors"
	"log"
	"net"
	"sync"

	"github.com/edamame-kv/edamame/internal/cache"
)

// Server accepts memcached-protocol connections against a single cache
// table.
type Server struct {
	table  *cache.Table
	logger *log.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// New builds a Server. A nil logger disables logging, matching
// cache.Options.Logger.
func New(t *cache.Table, logger *log.Logger) *Server {
	return &Server{table: t, logger: logger}
}

func (s *Server) logf(f string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(f, args...)
	}
}

// ListenAndServe binds addr and serves connections until Close is
// called, at which point it returns nil.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logf("edamame listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}
}

// Close stops accepting new connections. It does not wait for
// in-flight connections to drain; callers that need that should call
// Wait after Close.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

// Wait blocks until every accepted connection's goroutine has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}
