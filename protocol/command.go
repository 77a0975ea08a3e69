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

// Package protocol parses the flat, pipe-delimited wire commands and
// dispatches them to a transform or to the secret sharing engine.
//
// Grammar (the delimiter is never escaped):
//
//	hash|<text>  reverse|<text>  aes|<text>
//	split|<secret>|<threshold>|<total>
//	combine|<hexshare>,<hexshare>,...
//	mpc|<hexshare>,...|<hexshare>,...|...
package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/GoogleCloudPlatform/veil/constants"
	"github.com/GoogleCloudPlatform/veil/transform"
)

// Command verbs.
const (
	VerbSplit   = "split"
	VerbCombine = "combine"
	VerbMPC     = "mpc"
)

var (
	// ErrUnknownCommand is returned for a verb the protocol does not define.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMalformedCommand is returned when a known verb has the wrong shape.
	ErrMalformedCommand = errors.New("malformed command")
)

// CommandError reports a parse failure together with the offending verb.
type CommandError struct {
	Verb   string
	Err    error
	Reason string
}

func (e *CommandError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %q", e.Err, e.Verb)
	}
	return fmt.Sprintf("%v: %q: %s", e.Err, e.Verb, e.Reason)
}

func (e *CommandError) Unwrap() error { return e.Err }

func malformed(verb, format string, args ...any) error {
	return &CommandError{Verb: verb, Err: ErrMalformedCommand, Reason: fmt.Sprintf(format, args...)}
}

// Command is one fully parsed request. The set of implementations is closed.
type Command interface {
	// Verb returns the wire verb the command was parsed from.
	Verb() string
	isCommand()
}

// TransformCommand applies a salted transform to Payload.
type TransformCommand struct {
	Kind    transform.Kind
	Payload []byte
	// Salt is filled in by the Dispatcher when empty. Commands parsed from
	// the wire never carry a salt.
	Salt []byte
}

// SplitCommand splits Secret into Total shares with the given Threshold.
type SplitCommand struct {
	Secret    []byte
	Threshold int
	Total     int
}

// CombineCommand reconstructs a secret from serialized shares.
type CombineCommand struct {
	Shares [][]byte
}

// AggregateMPCCommand combines each party's shares and XORs the results.
type AggregateMPCCommand struct {
	Parties [][][]byte
}

func (c *TransformCommand) Verb() string    { return c.Kind.String() }
func (c *SplitCommand) Verb() string        { return VerbSplit }
func (c *CombineCommand) Verb() string      { return VerbCombine }
func (c *AggregateMPCCommand) Verb() string { return VerbMPC }

func (*TransformCommand) isCommand()    {}
func (*SplitCommand) isCommand()        {}
func (*CombineCommand) isCommand()      {}
func (*AggregateMPCCommand) isCommand() {}

// VerbOf returns the verb portion of a wire request.
func VerbOf(wire string) string {
	verb, _, _ := strings.Cut(wire, constants.FieldDelimiter)
	return verb
}

// Parse turns a wire request into a Command. It either returns a complete
// Command or a *CommandError, never both.
func Parse(wire string) (Command, error) {
	verb, rest, found := strings.Cut(wire, constants.FieldDelimiter)

	kind, isTransform := transform.KindFromVerb(verb)
	switch {
	case isTransform, verb == VerbSplit, verb == VerbCombine, verb == VerbMPC:
	default:
		return nil, &CommandError{Verb: verb, Err: ErrUnknownCommand}
	}
	if !found {
		return nil, malformed(verb, "missing %q after verb", constants.FieldDelimiter)
	}

	switch {
	case isTransform:
		return &TransformCommand{Kind: kind, Payload: []byte(rest)}, nil
	case verb == VerbSplit:
		return parseSplit(rest)
	case verb == VerbCombine:
		blobs, err := parseShareList(verb, rest)
		if err != nil {
			return nil, err
		}
		return &CombineCommand{Shares: blobs}, nil
	default:
		parties := strings.Split(rest, constants.FieldDelimiter)
		cmd := &AggregateMPCCommand{Parties: make([][][]byte, 0, len(parties))}
		for _, p := range parties {
			blobs, err := parseShareList(verb, p)
			if err != nil {
				return nil, err
			}
			cmd.Parties = append(cmd.Parties, blobs)
		}
		return cmd, nil
	}
}

func parseSplit(rest string) (Command, error) {
	args := strings.Split(rest, constants.FieldDelimiter)
	if len(args) != 3 {
		return nil, malformed(VerbSplit, "expected 3 fields, got %d", len(args))
	}
	return &SplitCommand{
		Secret:    []byte(args[0]),
		Threshold: parseCount(args[1]),
		Total:     parseCount(args[2]),
	}, nil
}

// parseCount reads a non-negative integer, returning 0 when it cannot. Range
// checking is left to the secret sharing engine.
func parseCount(s string) int {
	n, err := strconv.ParseUint(s, 10, 31)
	if err != nil {
		return 0
	}
	return int(n)
}

func parseShareList(verb, s string) ([][]byte, error) {
	fields := strings.Split(s, constants.ShareDelimiter)
	blobs := make([][]byte, 0, len(fields))
	for i, f := range fields {
		b, err := hex.DecodeString(f)
		if err != nil {
			return nil, malformed(verb, "share %d is not hex: %v", i, err)
		}
		blobs = append(blobs, b)
	}
	return blobs, nil
}
