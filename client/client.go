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

// Package client sends veil requests to a server and builds their wire form.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/GoogleCloudPlatform/veil/constants"
	"github.com/GoogleCloudPlatform/veil/protocol"
	"github.com/GoogleCloudPlatform/veil/transform"
	glog "github.com/golang/glog"
)

// ErrNoResponse is returned when the server closes the connection without writing.
var ErrNoResponse = errors.New("server closed the connection without a response")

// ServerError is a response carrying the server's error prefix.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// TransformRequest builds a hash, reverse or aes request.
func TransformRequest(kind transform.Kind, payload string) string {
	return kind.String() + constants.FieldDelimiter + payload
}

// SplitRequest builds a request to split secret into total shares, any
// threshold of which recover it.
func SplitRequest(secret string, threshold, total int) string {
	return strings.Join([]string{
		protocol.VerbSplit,
		secret,
		strconv.Itoa(threshold),
		strconv.Itoa(total),
	}, constants.FieldDelimiter)
}

// CombineRequest builds a request from hex encoded shares.
func CombineRequest(hexShares []string) string {
	return protocol.VerbCombine + constants.FieldDelimiter + strings.Join(hexShares, constants.ShareDelimiter)
}

// MPCRequest builds a request with one hex encoded share list per party.
func MPCRequest(parties [][]string) string {
	fields := make([]string, 0, len(parties)+1)
	fields = append(fields, protocol.VerbMPC)
	for _, p := range parties {
		fields = append(fields, strings.Join(p, constants.ShareDelimiter))
	}
	return strings.Join(fields, constants.FieldDelimiter)
}

// ParseShares splits the body of a successful split response.
func ParseShares(body string) []string {
	if body == "" {
		return nil
	}
	return strings.Split(body, constants.ShareDelimiter)
}

// Client talks to one veil server. Each request uses a fresh connection.
type Client struct {
	Addr   string
	Dialer net.Dialer
}

// New returns a Client for the server at addr.
func New(addr string) *Client {
	return &Client{Addr: addr}
}

// Send writes request on a new connection and returns the raw response,
// including any error prefix. The write side is half-closed after the
// request so the server sees a complete message.
func (c *Client) Send(ctx context.Context, request string) (string, error) {
	conn, err := c.Dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %v: %w", c.Addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return "", fmt.Errorf("failed to set deadline: %w", err)
		}
	}

	if _, err := io.WriteString(conn, request); err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			glog.Warningf("Failed to half-close connection to %v: %v", c.Addr, err)
		}
	}

	resp, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(resp), nil
}

// Do sends request and returns the response body. A response with the error
// prefix is returned as a *ServerError.
func (c *Client) Do(ctx context.Context, request string) (string, error) {
	resp, err := c.Send(ctx, request)
	if err != nil {
		return "", err
	}
	if resp == "" {
		return "", ErrNoResponse
	}
	if msg, ok := strings.CutPrefix(resp, constants.ErrorPrefix); ok {
		return "", &ServerError{Message: msg}
	}
	return resp, nil
}
