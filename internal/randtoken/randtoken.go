// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package randtoken generates the random suffix that makes shielded
// mailbox addresses unguessable.
package randtoken

import (
	"crypto/rand"
	"math/big"
)

// Alphabet is the set of symbols a token is drawn from.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generate returns a string of exactly length symbols, each picked
// independently and uniformly from Alphabet. A non-positive length yields
// an empty string.
func Generate(length int) string {
	if length <= 0 {
		return ""
	}

	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken.
			panic("randtoken: read random: " + err.Error())
		}
		b[i] = Alphabet[n.Int64()]
	}
	return string(b)
}
