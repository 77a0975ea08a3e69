// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server contains the TCP server for the veil wire protocol.
//
// Each accepted connection carries exactly one exchange: the server performs a
// single read of up to BufferSize bytes, treats it as the whole request, writes
// one response and closes the connection. Requests longer than the buffer or
// split across several TCP segments are truncated; there is no length prefix.
// There are no read or write deadlines.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/GoogleCloudPlatform/veil/config"
	"github.com/GoogleCloudPlatform/veil/protocol"
	glog "github.com/golang/glog"
	"github.com/google/uuid"
)

var (
	// ErrBindFailed is returned when the listening socket cannot be opened.
	ErrBindFailed = errors.New("bind failed")
	// ErrAcceptFailed is returned when the listening socket fails.
	ErrAcceptFailed = errors.New("accept failed")
	// ErrReadFailed is logged when a request cannot be read.
	ErrReadFailed = errors.New("read failed")
	// ErrWriteFailed is logged when a response cannot be written.
	ErrWriteFailed = errors.New("write failed")
)

// TransportError is a socket level failure. Kind is one of the Err* values
// above; Err is the underlying network error.
type TransportError struct {
	Kind error
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Server accepts connections and answers one request on each.
type Server struct {
	listener   net.Listener
	dispatcher *protocol.Dispatcher
	bufferSize int

	wg sync.WaitGroup
}

// Listen binds addr and returns a Server that is ready to Serve.
func Listen(addr string, dispatcher *protocol.Dispatcher, bufferSize int) (*Server, error) {
	if bufferSize <= 0 {
		return nil, fmt.Errorf("buffer size must be positive, got %d", bufferSize)
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &TransportError{Kind: ErrBindFailed, Err: err}
	}
	return &Server{
		listener:   lis,
		dispatcher: dispatcher,
		bufferSize: bufferSize,
	}, nil
}

// New builds the dispatcher described by cfg and binds its listen address.
func New(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %v", err)
	}
	km, err := cfg.KeyMaterial()
	if err != nil {
		return nil, err
	}
	if cfg.UsesDemoKeyMaterial() {
		glog.Warningf("Block cipher is using the all-zero demo key or IV. This is insecure; set blockCipher.keyHex and blockCipher.ivHex.")
	}
	d, err := protocol.NewDispatcher(km)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	return Listen(cfg.ListenAddress, d, cfg.BufferSize)
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting new connections. Connections already accepted run to completion.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve accepts connections until ctx is cancelled or the listener is closed,
// handling each on its own goroutine. It returns nil after a shutdown and a
// *TransportError if accepting fails for any other reason. In-flight
// connections are waited for before returning.
func (s *Server) Serve(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.listener.Close()
		case <-done:
		}
	}()

	defer s.wg.Wait()

	glog.Infof("Serving on %v.", s.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				glog.Infof("Listener on %v closed.", s.Addr())
				return nil
			}
			return &TransportError{Kind: ErrAcceptFailed, Err: err}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	connID := uuid.NewString()

	buf := make([]byte, s.bufferSize)
	n, err := conn.Read(buf)
	if n == 0 {
		if err == nil {
			err = errors.New("empty read")
		}
		glog.Warningf("Connection %v from %v: %v", connID, conn.RemoteAddr(), &TransportError{Kind: ErrReadFailed, Err: err})
		return
	}

	request := string(buf[:n])
	verb := protocol.VerbOf(request)

	resp := s.dispatcher.Handle(request)
	if resp.Err != nil {
		glog.Warningf("Connection %v: %q request failed: %v", connID, verb, resp.Err)
	}

	out := resp.Bytes()
	if _, err := conn.Write(out); err != nil {
		glog.Warningf("Connection %v: %q response not sent: %v", connID, verb, &TransportError{Kind: ErrWriteFailed, Err: err})
		return
	}
	glog.Infof("Connection %v: processed %q request, wrote %d bytes.", connID, verb, len(out))
}
