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

package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// accountClaims are checked in order; Entra ID puts the sign-in name in
// upn or unique_name for v1 tokens and preferred_username for v2.
var accountClaims = []string{"upn", "unique_name", "preferred_username", "email"}

// TokenContext reads the session account from the claims of the access
// token the session authenticates with. The token is decoded without
// signature verification; it is only used as a hint.
type TokenContext struct {
	tokens oauth2.TokenSource
}

// NewTokenContext creates a context provider over ts.
func NewTokenContext(ts oauth2.TokenSource) *TokenContext {
	return &TokenContext{tokens: ts}
}

// Account returns the first non-empty account claim, or "" if the token
// carries none (app-only tokens have no user claims).
func (c *TokenContext) Account(_ context.Context) (string, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("acquire session token: %w", err)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err != nil {
		return "", fmt.Errorf("decode session token: %w", err)
	}

	for _, name := range accountClaims {
		if v, ok := claims[name].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", nil
}
