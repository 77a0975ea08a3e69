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

package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/GoogleCloudPlatform/veil/constants"
	"github.com/GoogleCloudPlatform/veil/shares"
	"github.com/GoogleCloudPlatform/veil/transform"
	"github.com/google/tink/go/subtle/random"
)

// Response is the outcome of one request: either a body or an error.
type Response struct {
	Body []byte
	Err  error
}

// Ok returns a successful Response.
func Ok(body []byte) Response { return Response{Body: body} }

// Failure returns an error Response.
func Failure(err error) Response { return Response{Err: err} }

// Bytes serializes the response for the wire.
func (r Response) Bytes() []byte {
	if r.Err != nil {
		return []byte(constants.ErrorPrefix + r.Err.Error())
	}
	return r.Body
}

// SaltSource returns the salt text appended to a transform payload.
type SaltSource func() []byte

// RandomSalt hex encodes constants.SaltBytes bytes from a CSPRNG.
func RandomSalt() []byte {
	return []byte(hex.EncodeToString(random.GetRandomBytes(constants.SaltBytes)))
}

// Dispatcher maps Commands to their implementation. It holds only read-only
// configuration and is safe for concurrent use.
type Dispatcher struct {
	transforms map[transform.Kind]*transform.Transform
	salt       SaltSource
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSaltSource overrides the salt generator, for tests.
func WithSaltSource(s SaltSource) Option {
	return func(d *Dispatcher) { d.salt = s }
}

// NewDispatcher builds every transform up front so that bad key material is
// reported here rather than on the first aes request.
func NewDispatcher(km *transform.KeyMaterial, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		transforms: make(map[transform.Kind]*transform.Transform),
		salt:       RandomSalt,
	}
	for _, kind := range []transform.Kind{transform.Hash, transform.Reverse, transform.BlockCipher} {
		t, err := transform.New(kind, km)
		if err != nil {
			return nil, fmt.Errorf("failed to create %v transform: %w", kind, err)
		}
		d.transforms[kind] = t
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Handle parses and dispatches one wire request.
func (d *Dispatcher) Handle(wire string) Response {
	cmd, err := Parse(wire)
	if err != nil {
		return Failure(err)
	}
	return d.Dispatch(cmd)
}

// Dispatch executes a parsed Command.
func (d *Dispatcher) Dispatch(cmd Command) Response {
	switch c := cmd.(type) {
	case *TransformCommand:
		t, ok := d.transforms[c.Kind]
		if !ok {
			return Failure(&CommandError{Verb: c.Verb(), Err: ErrUnknownCommand})
		}
		salt := c.Salt
		if len(salt) == 0 {
			salt = d.salt()
		}
		out, err := t.Encrypt(c.Payload, salt)
		if err != nil {
			return Failure(err)
		}
		return Ok([]byte(out))

	case *SplitCommand:
		byteShares, err := shares.Split(c.Secret, c.Threshold, c.Total)
		if err != nil {
			return Failure(err)
		}
		encoded := make([]string, 0, len(byteShares))
		for _, s := range byteShares {
			encoded = append(encoded, hex.EncodeToString(s))
		}
		return Ok([]byte(strings.Join(encoded, constants.ShareDelimiter)))

	case *CombineCommand:
		secret, err := shares.Combine(c.Shares)
		if err != nil {
			return Failure(err)
		}
		if !utf8.Valid(secret) {
			return Failure(fmt.Errorf("%w: recovered secret is not valid UTF-8", shares.ErrReconstructionFailure))
		}
		return Ok(secret)

	case *AggregateMPCCommand:
		aggregated, err := shares.AggregateMPC(c.Parties)
		if err != nil {
			return Failure(err)
		}
		return Ok([]byte(hex.EncodeToString(aggregated)))

	case nil:
		return Failure(&CommandError{Err: ErrMalformedCommand, Reason: "no command"})

	default:
		return Failure(&CommandError{Verb: cmd.Verb(), Err: ErrUnknownCommand})
	}
}
