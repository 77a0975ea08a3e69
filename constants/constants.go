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

// Package constants contains shared constants between the client and the server.
package constants

// SrvPort is the default TCP port the server listens on.
const SrvPort = 7878

// DefaultListenAddress is the address used when no configuration is given.
const DefaultListenAddress = "127.0.0.1:7878"

// RequestBufferSize is the size of the single read that makes up a request.
// Requests longer than this are truncated.
const RequestBufferSize = 4096

// SaltBytes is the number of random bytes generated per transform request.
// The salt is hex encoded before use, so it contributes twice as many characters.
const SaltBytes = 16

const (
	// BlockCipherKeyBytes is the AES-256 key size.
	BlockCipherKeyBytes = 32
	// BlockCipherIVBytes is the CBC initialization vector size.
	BlockCipherIVBytes = 16
)

const (
	// ScalarBytes is the size of one encoded field element.
	ScalarBytes = 32
	// ShareBytes is the size of one encoded share: identifier byte plus value.
	ShareBytes = 1 + ScalarBytes
	// MaxShares is the largest share count addressable by a one byte identifier.
	MaxShares = 255
)

// Wire delimiters.
const (
	FieldDelimiter = "|"
	ShareDelimiter = ","
)

// ErrorPrefix starts every error response written to the wire.
const ErrorPrefix = "Error: "
