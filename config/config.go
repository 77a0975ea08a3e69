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

// Package config loads the server configuration from YAML.
package config

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/GoogleCloudPlatform/veil/constants"
	"github.com/GoogleCloudPlatform/veil/transform"
	"sigs.k8s.io/yaml"
)

// BlockCipherConfig holds hex encoded AES key material.
type BlockCipherConfig struct {
	KeyHex string `json:"keyHex,omitempty"`
	IVHex  string `json:"ivHex,omitempty"`
}

// Config is the server configuration.
type Config struct {
	ListenAddress string            `json:"listenAddress,omitempty"`
	BufferSize    int               `json:"bufferSize,omitempty"`
	BlockCipher   BlockCipherConfig `json:"blockCipher,omitempty"`
}

// Default returns a configuration with the all-zero demo key and IV.
// The demo key material is insecure and callers are expected to override it.
func Default() *Config {
	return &Config{
		ListenAddress: constants.DefaultListenAddress,
		BufferSize:    constants.RequestBufferSize,
	}
}

// Load reads a YAML file and fills unset fields from Default.
func Load(path string) (*Config, error) {
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}
	return Parse(yamlBytes)
}

// Parse decodes YAML bytes and fills unset fields from Default.
func Parse(yamlBytes []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(yamlBytes, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks sizes without building any cipher.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listenAddress must not be empty")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("bufferSize must be positive, got %d", c.BufferSize)
	}
	if _, err := c.KeyMaterial(); err != nil {
		return err
	}
	return nil
}

// KeyMaterial decodes the block cipher key and IV, substituting zeros for
// whichever is unset.
func (c *Config) KeyMaterial() (*transform.KeyMaterial, error) {
	key, err := decodeOrZero("blockCipher.keyHex", c.BlockCipher.KeyHex, constants.BlockCipherKeyBytes)
	if err != nil {
		return nil, err
	}
	iv, err := decodeOrZero("blockCipher.ivHex", c.BlockCipher.IVHex, constants.BlockCipherIVBytes)
	if err != nil {
		return nil, err
	}
	return &transform.KeyMaterial{Key: key, IV: iv}, nil
}

// UsesDemoKeyMaterial reports whether the key or IV is the all-zero default.
func (c *Config) UsesDemoKeyMaterial() bool {
	km, err := c.KeyMaterial()
	if err != nil {
		return false
	}
	return isZero(km.Key) || isZero(km.IV)
}

func decodeOrZero(name, s string, size int) ([]byte, error) {
	if s == "" {
		return make([]byte, size), nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid hex: %v", name, err)
	}
	if len(b) != size {
		return nil, fmt.Errorf("%s has length %d bytes, expected %d", name, len(b), size)
	}
	return b, nil
}

func isZero(b []byte) bool {
	return bytes.Equal(b, make([]byte, len(b)))
}
