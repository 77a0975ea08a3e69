// Copyright 2022 Google LLC
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

// Package field defines the prime field used for secret sharing: the scalar
// field of the NIST P-256 group. Elements have a canonical 32 byte big endian
// encoding. Not every 32 byte string is canonical, since the group order is
// smaller than 2^256.
package field

import (
	"crypto/elliptic"
	"errors"
	"fmt"
	"math/big"

	"github.com/GoogleCloudPlatform/veil/constants"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/nist"
)

// ErrNonCanonical is returned when a byte string does not encode a field element.
var ErrNonCanonical = errors.New("non-canonical scalar encoding")

// The suite is stateless apart from curve parameters and is safe to share.
var suite = nist.NewBlakeSHA256P256()

var order = elliptic.P256().Params().N

// Group returns the group whose scalar field shares are computed over.
func Group() kyber.Group {
	return suite
}

// ElementSize returns the size of each encoded element in bytes.
func ElementSize() int {
	return constants.ScalarBytes
}

// Decode reads a canonical big endian encoding of a field element.
func Decode(b []byte) (kyber.Scalar, error) {
	if len(b) != constants.ScalarBytes {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrNonCanonical, len(b), constants.ScalarBytes)
	}
	// Values at or above the group order must not be silently reduced.
	if new(big.Int).SetBytes(b).Cmp(order) >= 0 {
		return nil, fmt.Errorf("%w: value is not less than the group order", ErrNonCanonical)
	}
	s := suite.Scalar()
	if err := s.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonCanonical, err)
	}
	return s, nil
}

// Encode returns the canonical 32 byte big endian encoding of s.
func Encode(s kyber.Scalar) ([]byte, error) {
	b, err := s.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scalar: %v", err)
	}
	if len(b) > constants.ScalarBytes {
		return nil, fmt.Errorf("scalar encoding has length %d, expected at most %d", len(b), constants.ScalarBytes)
	}
	if len(b) < constants.ScalarBytes {
		padded := make([]byte, constants.ScalarBytes)
		copy(padded[constants.ScalarBytes-len(b):], b)
		b = padded
	}
	return b, nil
}
