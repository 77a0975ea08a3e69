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

package client

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/GoogleCloudPlatform/veil/transform"
	"github.com/google/go-cmp/cmp"
)

func TestRequestBuilders(t *testing.T) {
	testCases := []struct {
		name string
		got  string
		want string
	}{
		{name: "hash", got: TransformRequest(transform.Hash, "testmessage"), want: "hash|testmessage"},
		{name: "reverse", got: TransformRequest(transform.Reverse, "abc"), want: "reverse|abc"},
		{name: "aes", got: TransformRequest(transform.BlockCipher, ""), want: "aes|"},
		{name: "split", got: SplitRequest("hello veil", 3, 5), want: "split|hello veil|3|5"},
		{name: "combine", got: CombineRequest([]string{"01aa", "02bb"}), want: "combine|01aa,02bb"},
		{name: "mpc", got: MPCRequest([][]string{{"01", "02"}, {"03"}}), want: "mpc|01,02|03"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}

func TestParseShares(t *testing.T) {
	if diff := cmp.Diff([]string{"01aa", "02bb"}, ParseShares("01aa,02bb")); diff != "" {
		t.Errorf("ParseShares() mismatch (-want +got):\n%s", diff)
	}
	if got := ParseShares(""); got != nil {
		t.Errorf("ParseShares(\"\") = %v, want nil", got)
	}
}

// startFakeServer answers every connection with reply after reading the
// whole request, which it sends on the returned channel.
func startFakeServer(t *testing.T, reply string) (string, <-chan string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen failed: %v", err)
	}
	t.Cleanup(func() { lis.Close() })

	requests := make(chan string, 1)
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			req, _ := io.ReadAll(conn)
			requests <- string(req)
			io.WriteString(conn, reply)
			conn.Close()
		}
	}()
	return lis.Addr().String(), requests
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDoReturnsBody(t *testing.T) {
	addr, requests := startFakeServer(t, "cba")

	got, err := New(addr).Do(testContext(t), "reverse|abc")
	if err != nil {
		t.Fatalf("Do() err = %v", err)
	}
	if got != "cba" {
		t.Errorf("Do() = %q, want %q", got, "cba")
	}
	if req := <-requests; req != "reverse|abc" {
		t.Errorf("server received %q, want %q", req, "reverse|abc")
	}
}

func TestDoReturnsServerError(t *testing.T) {
	addr, _ := startFakeServer(t, "Error: unknown command")

	_, err := New(addr).Do(testContext(t), "rot13|abc")
	var srvErr *ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("Do() err = %v, want *ServerError", err)
	}
	if srvErr.Message != "unknown command" {
		t.Errorf("ServerError.Message = %q, want %q", srvErr.Message, "unknown command")
	}
}

func TestSendKeepsErrorPrefix(t *testing.T) {
	addr, _ := startFakeServer(t, "Error: boom")

	got, err := New(addr).Send(testContext(t), "hash|x")
	if err != nil {
		t.Fatalf("Send() err = %v", err)
	}
	if got != "Error: boom" {
		t.Errorf("Send() = %q, want the raw response", got)
	}
}

func TestDoEmptyResponse(t *testing.T) {
	addr, _ := startFakeServer(t, "")

	if _, err := New(addr).Do(testContext(t), "hash|x"); !errors.Is(err, ErrNoResponse) {
		t.Errorf("Do() err = %v, want %v", err, ErrNoResponse)
	}
}

func TestDoConnectionRefused(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	lis.Close()

	if _, err := New(addr).Do(testContext(t), "hash|x"); err == nil {
		t.Errorf("Do() against a closed port succeeded, want error")
	}
}
