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

// Package auth builds OAuth2 token sources for the Microsoft 365 APIs
// mexveil talks to. App-only access uses the client credentials flow;
// a pre-acquired delegated token is served as-is.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/quedalytix/mexveil/internal/config"
)

// Resource scopes requested from the Microsoft identity platform.
const (
	GraphScope    = "https://graph.microsoft.com/.default"
	ExchangeScope = "https://outlook.office365.com/.default"
)

// TokenSource returns a token source for scope. With a delegated access
// token configured the scope is ignored: the token is used for every API
// and calls that reject its audience simply fail.
func TokenSource(ctx context.Context, cfg *config.Config, scope string) oauth2.TokenSource {
	if !cfg.UsesClientCredentials() {
		return oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.Tenant.AccessToken,
			TokenType:   "Bearer",
		})
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.Tenant.ClientID,
		ClientSecret: cfg.Tenant.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", cfg.AuthorityURL, cfg.Tenant.TenantID),
		Scopes:       []string{scope},
	}
	return creds.TokenSource(ctx)
}

// Client wraps ts in an HTTP client that attaches bearer tokens.
func Client(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	return oauth2.NewClient(ctx, ts)
}
