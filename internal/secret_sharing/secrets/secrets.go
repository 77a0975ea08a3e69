// Copyright 2024 Google LLC
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

// Package secrets contains types for secret sharing. A Share is the point
// (X, f(X)) of a sharing polynomial, stored with a fixed layout: one
// identifier byte followed by the 32 byte encoding of the value.
package secrets

import (
	"fmt"

	"github.com/GoogleCloudPlatform/veil/constants"
)

// Share represents one share of a shared secret without any metadata.
type Share struct {
	X     byte
	Value [constants.ScalarBytes]byte
}

// Marshal returns the 33 byte wire layout {X}{Value}.
func (s Share) Marshal() []byte {
	out := make([]byte, 0, constants.ShareBytes)
	out = append(out, s.X)
	return append(out, s.Value[:]...)
}

// Unmarshal parses the 33 byte wire layout. It checks only the length; whether
// Value is a field element is checked when the share is used.
func Unmarshal(b []byte) (Share, error) {
	if len(b) != constants.ShareBytes {
		return Share{}, fmt.Errorf("share has length %d, expected %d", len(b), constants.ShareBytes)
	}
	var s Share
	s.X = b[0]
	copy(s.Value[:], b[1:])
	return s, nil
}
