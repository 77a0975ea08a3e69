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

// Package transform implements the salted payload transforms served over the wire:
// a SHA-256 digest, a character reversal, and AES-256-CBC encryption.
//
// The set of transforms is closed. A Transform is a tagged value selected by
// Kind and every operation switches on that tag, so adding a Kind means adding
// a case here and nowhere else.
package transform

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/GoogleCloudPlatform/veil/constants"
)

var (
	// ErrInvalidKeyMaterial is returned when a block cipher key or IV has the wrong size.
	ErrInvalidKeyMaterial = errors.New("invalid key material")
	// ErrCipherFailure is returned when the cipher cannot process a payload.
	ErrCipherFailure = errors.New("cipher failure")
)

// Kind identifies one of the supported transforms.
type Kind int

// Constants representing the supported transforms.
const (
	Hash Kind = 1 + iota
	Reverse
	BlockCipher
)

func (k Kind) String() string {
	switch k {
	case Hash:
		return "hash"
	case Reverse:
		return "reverse"
	case BlockCipher:
		return "aes"
	default:
		return fmt.Sprintf("unknown transform kind: %d", int(k))
	}
}

// KindFromVerb maps a wire verb to its Kind.
func KindFromVerb(verb string) (Kind, bool) {
	switch verb {
	case "hash":
		return Hash, true
	case "reverse":
		return Reverse, true
	case "aes":
		return BlockCipher, true
	default:
		return 0, false
	}
}

// KeyMaterial is the per-instance configuration of the BlockCipher transform.
type KeyMaterial struct {
	Key []byte
	IV  []byte
}

// Transform applies one salted transform. It is immutable once built and safe
// for concurrent use.
type Transform struct {
	kind  Kind
	block cipher.Block
	iv    []byte
}

// New builds a Transform of the given kind. Key material is required for
// BlockCipher and ignored otherwise; its sizes are validated here so that
// Encrypt never sees bad key material.
func New(kind Kind, km *KeyMaterial) (*Transform, error) {
	switch kind {
	case Hash, Reverse:
		return &Transform{kind: kind}, nil
	case BlockCipher:
		if km == nil {
			return nil, fmt.Errorf("%w: block cipher requires a key and IV", ErrInvalidKeyMaterial)
		}
		if len(km.Key) != constants.BlockCipherKeyBytes {
			return nil, fmt.Errorf("%w: key has length %d, expected %d", ErrInvalidKeyMaterial, len(km.Key), constants.BlockCipherKeyBytes)
		}
		if len(km.IV) != constants.BlockCipherIVBytes {
			return nil, fmt.Errorf("%w: IV has length %d, expected %d", ErrInvalidKeyMaterial, len(km.IV), constants.BlockCipherIVBytes)
		}
		block, err := aes.NewCipher(km.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
		}
		return &Transform{
			kind:  kind,
			block: block,
			iv:    append([]byte(nil), km.IV...),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported transform kind %v", ErrCipherFailure, kind)
	}
}

// Kind returns the transform's tag.
func (t *Transform) Kind() Kind { return t.kind }

// Encrypt applies the transform to payload followed by salt and returns the result as text.
func (t *Transform) Encrypt(payload, salt []byte) (string, error) {
	combined := make([]byte, 0, len(payload)+len(salt))
	combined = append(combined, payload...)
	combined = append(combined, salt...)

	switch t.kind {
	case Hash:
		digest := sha256.Sum256(combined)
		return hex.EncodeToString(digest[:]), nil
	case Reverse:
		return reverseRunes(combined), nil
	case BlockCipher:
		return t.encryptCBC(combined)
	default:
		return "", fmt.Errorf("%w: unsupported transform kind %v", ErrCipherFailure, t.kind)
	}
}

// reverseRunes reverses by character so that multi-byte UTF-8 text stays valid.
func reverseRunes(b []byte) string {
	runes := []rune(string(b))
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

func (t *Transform) encryptCBC(plaintext []byte) (string, error) {
	if t.block == nil {
		return "", fmt.Errorf("%w: block cipher not initialized", ErrCipherFailure)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	if len(padded)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: padded length %d is not a multiple of %d", ErrCipherFailure, len(padded), aes.BlockSize)
	}

	// A fresh encrypter per call restarts the chain at the configured IV.
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(t.block, t.iv)
	for i := 0; i < len(padded); i += aes.BlockSize {
		mode.CryptBlocks(ciphertext[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return hex.EncodeToString(ciphertext), nil
}

// pkcs7Pad appends between 1 and blockSize bytes, each holding the pad length.
// Block-aligned input gains a full block.
func pkcs7Pad(b []byte, blockSize int) []byte {
	padLen := blockSize - len(b)%blockSize
	out := make([]byte, len(b), len(b)+padLen)
	copy(out, b)
	for i := 0; i < padLen; i++ {
		out = append(out, byte(padLen))
	}
	return out
}
