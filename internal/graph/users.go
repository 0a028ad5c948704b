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

// Package graph provides a minimal Microsoft Graph client for looking up
// directory users.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/quedalytix/mexveil/internal/identity"
)

// Client queries Graph user records. The httpClient must already handle
// authentication (e.g. an oauth2 transport).
type Client struct {
	httpClient   *http.Client
	graphBaseURL string
}

// NewClient creates a Graph API client.
func NewClient(httpClient *http.Client, graphBaseURL string) *Client {
	return &Client{
		httpClient:   httpClient,
		graphBaseURL: strings.TrimRight(graphBaseURL, "/"),
	}
}

// graphUser represents the selected fields of a Graph user resource.
type graphUser struct {
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// graphError is the standard Graph error envelope.
type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

const userSelect = "id,mail,displayName,userPrincipalName"

// SignedInUser returns the record behind the current token via /me.
// App-only tokens have no signed-in user; Graph answers those with an
// error, which is returned as-is.
func (c *Client) SignedInUser(ctx context.Context) (*identity.User, error) {
	return c.getUser(ctx, "me")
}

func (c *Client) getUser(ctx context.Context, path string) (*identity.User, error) {
	params := url.Values{}
	params.Set("$select", userSelect)
	u := fmt.Sprintf("%s/%s?%s", c.graphBaseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build user request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(path, resp)
	}

	var gu graphUser
	if err := json.NewDecoder(resp.Body).Decode(&gu); err != nil {
		return nil, fmt.Errorf("decode user response: %w", err)
	}

	return &identity.User{
		ID:                gu.ID,
		Mail:              gu.Mail,
		UserPrincipalName: gu.UserPrincipalName,
		DisplayName:       gu.DisplayName,
	}, nil
}

// StatusError reports a non-200 Graph response.
type StatusError struct {
	Path       string
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("Graph /%s returned HTTP %d (%s): %s", e.Path, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("Graph /%s returned HTTP %d", e.Path, e.StatusCode)
}

func newStatusError(path string, resp *http.Response) *StatusError {
	se := &StatusError{Path: path, StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var ge graphError
	if json.Unmarshal(body, &ge) == nil {
		se.Code = ge.Error.Code
		se.Message = ge.Error.Message
	}
	return se
}
