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

// Package shares splits short secrets into threshold shares, combines them
// back, and aggregates several parties' secrets.
//
// A secret of up to 32 bytes is left-padded to 32 bytes and read as one scalar
// of the P-256 group order field. Each share is serialized as one identifier
// byte followed by the 32 byte value. Reconstruction strips the padding again,
// keeping at least one byte, so an all-zero secret comes back as a single zero
// byte.
package shares

import (
	"errors"
	"fmt"

	"github.com/GoogleCloudPlatform/veil/constants"
	"github.com/GoogleCloudPlatform/veil/internal/secret_sharing/field"
	"github.com/GoogleCloudPlatform/veil/internal/secret_sharing/secrets"
	"github.com/GoogleCloudPlatform/veil/internal/secret_sharing/shamir"
)

var (
	// ErrSecretTooLarge is returned when a secret does not fit in one field element.
	ErrSecretTooLarge = errors.New("secret too large")
	// ErrEmptySecret is returned when splitting a zero length secret.
	ErrEmptySecret = errors.New("secret must not be empty")
	// ErrInvalidThreshold is returned for a threshold outside [1, total] or a total above 255.
	ErrInvalidThreshold = errors.New("invalid threshold")
	// ErrInsufficientShares is returned when fewer than two shares are combined.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrMalformedShare is returned for a share with the wrong size or identifier.
	ErrMalformedShare = errors.New("malformed share")
	// ErrInvalidEncoding is returned when bytes do not encode a field element.
	ErrInvalidEncoding = errors.New("invalid scalar encoding")
	// ErrReconstructionFailure is returned when interpolation fails.
	ErrReconstructionFailure = errors.New("reconstruction failure")
	// ErrNoParties is returned when aggregating an empty party list.
	ErrNoParties = errors.New("no parties provided")
)

// Split takes a secret of at most 32 bytes and returns total shares, any
// threshold of which reconstruct it. Each share is 33 bytes.
func Split(secret []byte, threshold, total int) ([][]byte, error) {
	if len(secret) > constants.ScalarBytes {
		return nil, fmt.Errorf("%w: secret has length %d, max %d", ErrSecretTooLarge, len(secret), constants.ScalarBytes)
	}
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if threshold < 1 || threshold > total {
		return nil, fmt.Errorf("%w: threshold %d with %d total shares", ErrInvalidThreshold, threshold, total)
	}
	if total > constants.MaxShares {
		return nil, fmt.Errorf("%w: total %d exceeds %d", ErrInvalidThreshold, total, constants.MaxShares)
	}

	padded := make([]byte, constants.ScalarBytes)
	copy(padded[constants.ScalarBytes-len(secret):], secret)
	scalar, err := field.Decode(padded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}

	split, err := shamir.SplitSecret(scalar, threshold, total)
	if err != nil {
		return nil, fmt.Errorf("error splitting secret: %v", err)
	}

	byteShares := make([][]byte, 0, len(split))
	for _, s := range split {
		byteShares = append(byteShares, s.Marshal())
	}
	return byteShares, nil
}

// Combine reconstructs a secret from serialized shares. It needs at least two
// shares but cannot tell whether the original threshold is met: too few
// shares give a wrong secret, not an error.
func Combine(byteShares [][]byte) ([]byte, error) {
	if len(byteShares) < 2 {
		return nil, fmt.Errorf("%w: need at least 2, got %d", ErrInsufficientShares, len(byteShares))
	}

	parsed := make([]secrets.Share, 0, len(byteShares))
	for i, b := range byteShares {
		s, err := secrets.Unmarshal(b)
		if err != nil {
			return nil, fmt.Errorf("%w: share %d: %v", ErrMalformedShare, i, err)
		}
		parsed = append(parsed, s)
	}

	scalar, err := shamir.Reconstruct(parsed)
	switch {
	case errors.Is(err, field.ErrNonCanonical):
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	case errors.Is(err, shamir.ErrInvalidX), errors.Is(err, shamir.ErrDuplicateX):
		return nil, fmt.Errorf("%w: %v", ErrMalformedShare, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrReconstructionFailure, err)
	}

	secret, err := field.Encode(scalar)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReconstructionFailure, err)
	}
	return stripPadding(secret), nil
}

// stripPadding removes leading zero bytes but always leaves one byte.
func stripPadding(b []byte) []byte {
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}

// AggregateMPC combines each party's shares independently and folds the
// recovered secrets together with byte-wise XOR. Shorter secrets act as if
// zero-padded on the right. This shows composition of shared secrets; it is
// not a secure multi-party computation protocol.
func AggregateMPC(parties [][][]byte) ([]byte, error) {
	if len(parties) == 0 {
		return nil, ErrNoParties
	}

	var aggregated []byte
	for i, party := range parties {
		secret, err := Combine(party)
		if err != nil {
			return nil, fmt.Errorf("party %d: %w", i, err)
		}
		for j, b := range secret {
			if j < len(aggregated) {
				aggregated[j] ^= b
			} else {
				aggregated = append(aggregated, b)
			}
		}
	}
	return aggregated, nil
}
