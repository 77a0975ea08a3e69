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

package secrets

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestShareLayout(t *testing.T) {
	s := Share{X: 7}
	s.Value[0] = 0xaa
	s.Value[31] = 0xbb

	b := s.Marshal()
	if len(b) != 33 {
		t.Fatalf("Marshal() has length %d, want 33", len(b))
	}
	if b[0] != 7 || b[1] != 0xaa || b[32] != 0xbb {
		t.Errorf("Marshal() = %x, identifier or value misplaced", b)
	}

	got, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal() err = %v, want nil", err)
	}
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("Unmarshal() mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 1, 32, 34} {
		if _, err := Unmarshal(make([]byte, n)); err == nil {
			t.Errorf("Unmarshal(%d bytes) succeeded, want error", n)
		}
	}
}
