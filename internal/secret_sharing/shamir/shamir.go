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

// Package shamir performs t-of-n [Shamir Secret Sharing] (SSS) of a single
// prime field element. SSS is based on the Lagrange interpolation theorem,
// which states that `k` points are enough to uniquely determine a polynomial
// of degree less than or equal to `k - 1`.
//
// This scheme is secure under the following assumptions:
//   - The scheme requires a trusted dealer to generate the shares. Participants
//     must trust the dealer with access to the secret and to properly generate the
//     shares.
//   - The scheme assumes a passive adversary which can observe (n - t) shares
//     without being able to reconstruct the secrets. However, this scheme
//     assumes the adversary isn't allowed to participate in the `reconstruct` step by
//     providing a chosen share.
//
// Polynomial evaluation and interpolation are delegated to kyber's share package.
//
// [Shamir Secret Sharing]: https://web.mit.edu/6.857/OldStuff/Fall03/ref/Shamir-HowToShareAsecrets.pdf
package shamir

import (
	"errors"
	"fmt"

	"github.com/GoogleCloudPlatform/veil/constants"
	"github.com/GoogleCloudPlatform/veil/internal/secret_sharing/field"
	"github.com/GoogleCloudPlatform/veil/internal/secret_sharing/secrets"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/util/random"
)

var (
	// ErrInvalidX is returned for a share whose X coordinate is zero.
	ErrInvalidX = errors.New("invalid X value")
	// ErrDuplicateX is returned when two shares carry the same X coordinate.
	ErrDuplicateX = errors.New("all shares should be unique points")
)

// SplitSecret splits secret into numShares shares where threshold or more
// shares can be combined to reconstruct it. Share X coordinates are 1..numShares.
//
// Every call draws fresh polynomial coefficients from crypto/rand.
func SplitSecret(secret kyber.Scalar, threshold, numShares int) ([]secrets.Share, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("threshold must be at least 1, got %d", threshold)
	}
	if threshold > numShares {
		return nil, fmt.Errorf("threshold (%d) should be smaller than or equal to numShares (%d)", threshold, numShares)
	}
	if numShares > constants.MaxShares {
		return nil, fmt.Errorf("numShares (%d) cannot exceed %d", numShares, constants.MaxShares)
	}

	// secret + R_1 * x^1 + ... + R_{t-1} * x^{t-1}
	poly := share.NewPriPoly(field.Group(), threshold, secret, random.New())

	out := make([]secrets.Share, 0, numShares)
	for _, ps := range poly.Shares(numShares) {
		// kyber indexes shares from 0 and evaluates at I + 1.
		enc, err := field.Encode(ps.V)
		if err != nil {
			return nil, err
		}
		s := secrets.Share{X: byte(ps.I + 1)}
		copy(s.Value[:], enc)
		out = append(out, s)
	}
	return out, nil
}

// Reconstruct interpolates the sharing polynomial at zero using every share
// provided. It has no knowledge of the original threshold: given fewer shares
// than the threshold it returns a wrong value rather than an error.
func Reconstruct(shares []secrets.Share) (kyber.Scalar, error) {
	if len(shares) < 2 {
		return nil, fmt.Errorf("must have at least 2 shares, got %d", len(shares))
	}

	seen := make(map[byte]bool, len(shares))
	priShares := make([]*share.PriShare, 0, len(shares))
	for i, s := range shares {
		if s.X == 0 {
			return nil, fmt.Errorf("share %d: %w", i, ErrInvalidX)
		}
		if seen[s.X] {
			return nil, fmt.Errorf("share %d: %w: X = %d", i, ErrDuplicateX, s.X)
		}
		seen[s.X] = true

		v, err := field.Decode(s.Value[:])
		if err != nil {
			return nil, fmt.Errorf("share %d: %w", i, err)
		}
		priShares = append(priShares, &share.PriShare{I: int(s.X) - 1, V: v})
	}

	secret, err := share.RecoverSecret(field.Group(), priShares, len(priShares), constants.MaxShares)
	if err != nil {
		return nil, fmt.Errorf("failed to interpolate shares: %v", err)
	}
	return secret, nil
}
