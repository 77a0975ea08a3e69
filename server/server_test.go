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

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/GoogleCloudPlatform/veil/client"
	"github.com/GoogleCloudPlatform/veil/config"
	"github.com/GoogleCloudPlatform/veil/protocol"
	"github.com/GoogleCloudPlatform/veil/transform"
	"golang.org/x/sync/errgroup"
)

var lowerHex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

// startServer serves on an ephemeral port until the test ends.
func startServer(t *testing.T, bufferSize int) *Server {
	t.Helper()
	d, err := protocol.NewDispatcher(&transform.KeyMaterial{Key: make([]byte, 32), IV: make([]byte, 16)})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}
	srv, err := Listen("127.0.0.1:0", d, bufferSize)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-served; err != nil {
			t.Errorf("Serve() err = %v, want nil after shutdown", err)
		}
	})
	return srv
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestServeHash(t *testing.T) {
	srv := startServer(t, 4096)
	c := client.New(srv.Addr().String())

	got, err := c.Do(testContext(t), "hash|testmessage")
	if err != nil {
		t.Fatalf("Do(hash) err = %v", err)
	}
	if !lowerHex64.MatchString(got) {
		t.Errorf("Do(hash) = %q, want 64 lowercase hex characters", got)
	}
}

func TestServeSplitCombine(t *testing.T) {
	srv := startServer(t, 4096)
	c := client.New(srv.Addr().String())
	ctx := testContext(t)

	body, err := c.Do(ctx, client.SplitRequest("hello veil", 3, 5))
	if err != nil {
		t.Fatalf("Do(split) err = %v", err)
	}
	hexShares := client.ParseShares(body)
	if len(hexShares) != 5 {
		t.Fatalf("split returned %d shares, want 5", len(hexShares))
	}

	got, err := c.Do(ctx, client.CombineRequest(hexShares[1:4]))
	if err != nil {
		t.Fatalf("Do(combine) err = %v", err)
	}
	if got != "hello veil" {
		t.Errorf("Do(combine) = %q, want %q", got, "hello veil")
	}
}

func TestServeErrorKeepsServing(t *testing.T) {
	srv := startServer(t, 4096)
	c := client.New(srv.Addr().String())
	ctx := testContext(t)

	resp, err := c.Send(ctx, "split|secret|0|0")
	if err != nil {
		t.Fatalf("Send() err = %v", err)
	}
	if !strings.HasPrefix(resp, "Error: ") {
		t.Errorf("Send(split|secret|0|0) = %q, want an Error: prefix", resp)
	}

	if _, err := c.Do(ctx, "reverse|abc"); err != nil {
		t.Errorf("request after a failed one: err = %v", err)
	}
}

func TestServeUnknownCommand(t *testing.T) {
	srv := startServer(t, 4096)

	_, err := client.New(srv.Addr().String()).Do(testContext(t), "rot13|abc")
	var srvErr *client.ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("Do(rot13) err = %v, want *client.ServerError", err)
	}
}

func TestServeEmptyConnection(t *testing.T) {
	srv := startServer(t, 4096)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()

	// The server logs the read failure and keeps accepting.
	if _, err := client.New(srv.Addr().String()).Do(testContext(t), "reverse|ok"); err != nil {
		t.Errorf("request after an empty connection: err = %v", err)
	}
}

func TestServeConcurrentClients(t *testing.T) {
	srv := startServer(t, 4096)
	c := client.New(srv.Addr().String())

	g, ctx := errgroup.WithContext(testContext(t))
	for i := 0; i < 16; i++ {
		i := i
		g.Go(func() error {
			secret := fmt.Sprintf("secret-%d", i)
			body, err := c.Do(ctx, client.SplitRequest(secret, 2, 3))
			if err != nil {
				return err
			}
			got, err := c.Do(ctx, client.CombineRequest(client.ParseShares(body)[:2]))
			if err != nil {
				return err
			}
			if got != secret {
				return fmt.Errorf("client %d: combine = %q, want %q", i, got, secret)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Error(err)
	}
}

func TestListenBindFailure(t *testing.T) {
	srv := startServer(t, 4096)

	d, err := protocol.NewDispatcher(&transform.KeyMaterial{Key: make([]byte, 32), IV: make([]byte, 16)})
	if err != nil {
		t.Fatal(err)
	}
	_, err = Listen(srv.Addr().String(), d, 4096)
	if !errors.Is(err, ErrBindFailed) {
		t.Errorf("Listen(in-use address) err = %v, want %v", err, ErrBindFailed)
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("Listen(in-use address) err is %T, want *TransportError", err)
	}
}

func TestListenRejectsBadBufferSize(t *testing.T) {
	if _, err := Listen("127.0.0.1:0", nil, 0); err == nil {
		t.Errorf("Listen() with zero buffer size succeeded, want error")
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ListenAddress = "127.0.0.1:0"

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() err = %v", err)
	}
	defer srv.Close()

	if srv.Addr() == nil {
		t.Errorf("Addr() = nil after New")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.BlockCipher.KeyHex = "abcd"

	if _, err := New(cfg); err == nil {
		t.Errorf("New() with a short key succeeded, want error")
	}
}

func TestServeStopsOnClose(t *testing.T) {
	d, err := protocol.NewDispatcher(&transform.KeyMaterial{Key: make([]byte, 32), IV: make([]byte, 16)})
	if err != nil {
		t.Fatal(err)
	}
	srv, err := Listen("127.0.0.1:0", d, 4096)
	if err != nil {
		t.Fatal(err)
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background()) }()
	srv.Close()

	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve() err = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after Close")
	}
}
