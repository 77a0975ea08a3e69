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

// Binary to run against a server to validate protocol conformance.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"flag"
	"github.com/GoogleCloudPlatform/veil/client"
	"github.com/GoogleCloudPlatform/veil/constants"
	"github.com/GoogleCloudPlatform/veil/transform"
	"github.com/alecthomas/colour"
	"golang.org/x/sync/errgroup"
)

var (
	serverAddr = flag.String("server", constants.DefaultListenAddress, "Address of the veil server under test")
	timeout    = flag.Duration("timeout", 30*time.Second, "Deadline for the whole run")
)

var lowerHex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

type conformanceTest struct {
	testName string
	run      func(ctx context.Context, c *client.Client) error
}

func expectServerError(err error) error {
	var srvErr *client.ServerError
	if errors.As(err, &srvErr) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("request succeeded, expected an error response")
	}
	return err
}

func testHash(ctx context.Context, c *client.Client) error {
	resp, err := c.Do(ctx, client.TransformRequest(transform.Hash, "testmessage"))
	if err != nil {
		return err
	}
	if !lowerHex64.MatchString(resp) {
		return fmt.Errorf("response %q is not 64 lowercase hex characters", resp)
	}
	return nil
}

func testBlockCipher(ctx context.Context, c *client.Client) error {
	resp, err := c.Do(ctx, client.TransformRequest(transform.BlockCipher, "hello"))
	if err != nil {
		return err
	}
	// 5 payload bytes and a 32 byte salt pad to 48 bytes.
	if b, err := hex.DecodeString(resp); err != nil || len(b) != 48 {
		return fmt.Errorf("response %q is not 48 bytes of hex ciphertext", resp)
	}
	return nil
}

// testEveryThreeOfFive combines every 3-subset of a 3-of-5 split.
func testEveryThreeOfFive(ctx context.Context, c *client.Client) error {
	const secret = "hello veil"
	body, err := c.Do(ctx, client.SplitRequest(secret, 3, 5))
	if err != nil {
		return err
	}
	s := client.ParseShares(body)
	if len(s) != 5 {
		return fmt.Errorf("got %d shares, want 5", len(s))
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < len(s); i++ {
		for j := i + 1; j < len(s); j++ {
			for k := j + 1; k < len(s); k++ {
				subset := []string{s[i], s[j], s[k]}
				g.Go(func() error {
					got, err := c.Do(ctx, client.CombineRequest(subset))
					if err != nil {
						return err
					}
					if got != secret {
						return fmt.Errorf("combine = %q, want %q", got, secret)
					}
					return nil
				})
			}
		}
	}
	return g.Wait()
}

func testBelowThreshold(ctx context.Context, c *client.Client) error {
	const secret = "hello veil"
	body, err := c.Do(ctx, client.SplitRequest(secret, 3, 5))
	if err != nil {
		return err
	}
	got, err := c.Do(ctx, client.CombineRequest(client.ParseShares(body)[:2]))
	if err == nil && got == secret {
		return fmt.Errorf("2 of 3 required shares recovered the secret")
	}
	return nil
}

func testMPC(ctx context.Context, c *client.Client) error {
	var parties [][]string
	for _, secret := range []string{"AAAA", "BBBB"} {
		body, err := c.Do(ctx, client.SplitRequest(secret, 2, 2))
		if err != nil {
			return err
		}
		parties = append(parties, client.ParseShares(body))
	}
	got, err := c.Do(ctx, client.MPCRequest(parties))
	if err != nil {
		return err
	}
	if got != "03030303" {
		return fmt.Errorf("mpc = %q, want %q", got, "03030303")
	}
	return nil
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	c := client.New(*serverAddr)

	fmt.Printf("Running conformance tests against %v...\n", *serverAddr)

	testCases := []conformanceTest{
		{testName: "hash returns a 64 character hex digest", run: testHash},
		{testName: "aes returns padded CBC ciphertext", run: testBlockCipher},
		{testName: "any 3 of 5 shares recover the secret", run: testEveryThreeOfFive},
		{testName: "2 of 3 required shares do not recover the secret", run: testBelowThreshold},
		{testName: "mpc returns the XOR of party secrets", run: testMPC},
		{
			testName: "zero threshold returns an error response",
			run: func(ctx context.Context, c *client.Client) error {
				_, err := c.Do(ctx, "split|secret|0|0")
				return expectServerError(err)
			},
		},
		{
			testName: "server keeps serving after an error response",
			run: func(ctx context.Context, c *client.Client) error {
				return testHash(ctx, c)
			},
		},
		{
			testName: "single share returns an error response",
			run: func(ctx context.Context, c *client.Client) error {
				_, err := c.Do(ctx, client.CombineRequest([]string{strings.Repeat("01", constants.ShareBytes)}))
				return expectServerError(err)
			},
		},
		{
			testName: "unknown verb returns an error response",
			run: func(ctx context.Context, c *client.Client) error {
				_, err := c.Do(ctx, "rot13|abc")
				return expectServerError(err)
			},
		},
	}

	failed := 0
	for _, testCase := range testCases {
		if err := testCase.run(ctx, c); err != nil {
			failed++
			colour.Printf("^1 - %v: %v^R\n", testCase.testName, err)
		} else {
			colour.Printf("^2 - %v^R\n", testCase.testName)
		}
	}

	if failed > 0 {
		fmt.Printf("%d of %d tests failed.\n", failed, len(testCases))
		os.Exit(1)
	}
}
