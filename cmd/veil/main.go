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

// This binary is the command line client for a veil server.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"flag"
	"github.com/GoogleCloudPlatform/veil/client"
	"github.com/GoogleCloudPlatform/veil/constants"
	glog "github.com/golang/glog"
	"github.com/google/subcommands"
)

// The current version, displayed via the `version` subcommand.
const veilVersion string = "0.1.0"

func addServerFlags(f *flag.FlagSet, addr *string, timeout *time.Duration) {
	f.StringVar(addr, "server", constants.DefaultListenAddress, "Address of the veil server.")
	f.DurationVar(timeout, "timeout", 30*time.Second, "Deadline for each request.")
}

// sendCmd sends one raw request.
type sendCmd struct {
	server  string
	timeout time.Duration
}

func (*sendCmd) Name() string     { return "send" }
func (*sendCmd) Synopsis() string { return "sends one request and prints the response" }
func (*sendCmd) Usage() string {
	return `Usage: veil send [--server=<addr>] <request>

Examples:
  Hash a message:
    $ veil send 'hash|testmessage'

  Split a secret into 5 shares, any 3 of which recover it:
    $ veil send 'split|hello veil|3|5'

  Read the request from stdin:
    $ echo -n 'reverse|abc' | veil send -

Flags:
`
}
func (s *sendCmd) SetFlags(f *flag.FlagSet) { addServerFlags(f, &s.server, &s.timeout) }

func (s *sendCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		glog.Errorf("Expected exactly one request argument, got %d", f.NArg())
		return subcommands.ExitUsageError
	}

	request := f.Arg(0)
	if request == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			glog.Errorf("Failed to read request from stdin: %v", err)
			return subcommands.ExitFailure
		}
		request = string(b)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := client.New(s.server).Do(ctx, request)
	var srvErr *client.ServerError
	switch {
	case errors.As(err, &srvErr):
		fmt.Fprintln(os.Stderr, constants.ErrorPrefix+srvErr.Message)
		return subcommands.ExitFailure
	case err != nil:
		glog.Errorf("Request failed: %v", err)
		return subcommands.ExitFailure
	}
	fmt.Println(resp)
	return subcommands.ExitSuccess
}

// replCmd reads requests line by line and prints each response.
type replCmd struct {
	server  string
	timeout time.Duration
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "sends each line of stdin as a request" }
func (*replCmd) Usage() string {
	return `Usage: veil repl [--server=<addr>]

Each non-empty line is sent as its own request. Type "exit" or send EOF to stop.

Flags:
`
}
func (r *replCmd) SetFlags(f *flag.FlagSet) { addServerFlags(f, &r.server, &r.timeout) }

func (r *replCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := runREPL(ctx, client.New(r.server), r.timeout, os.Stdin, os.Stdout); err != nil {
		glog.Errorf("REPL failed: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func runREPL(ctx context.Context, c *client.Client, timeout time.Duration, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintf(out, "Connected to %v. Enter requests such as hash|message.\n> ", c.Addr)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "exit" {
			return nil
		}
		if line != "" {
			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			resp, err := c.Send(reqCtx, line)
			cancel()
			if err != nil {
				// A dead connection ends only this request.
				fmt.Fprintf(out, "Request failed: %v\n", err)
			} else {
				fmt.Fprintf(out, "Server response: %s\n", resp)
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

// versionCmd handles CLI options for the version command.
type versionCmd struct{}

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "prints the current version" }
func (*versionCmd) Usage() string          { return "Usage: veil version" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}
func (*versionCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	fmt.Printf("veil version %s\n", veilVersion)
	return subcommands.ExitSuccess
}

func main() {
	flag.Parse()

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&sendCmd{}, "")
	subcommands.Register(&replCmd{}, "")
	subcommands.Register(&versionCmd{}, "")

	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
