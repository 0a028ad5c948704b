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

package graph

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSignedInUser verifies the /me request shape and response mapping.
func TestSignedInUser(t *testing.T) {
	var gotPath, gotSelect, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSelect = r.URL.Query().Get("$select")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "48d31887-5fad-4d73-a9f5-3c356e68a038",
			"mail": "alice@contoso.com",
			"displayName": "Alice",
			"userPrincipalName": "alice@contoso.onmicrosoft.com"
		}`))
	}))
	defer server.Close()

	user, err := NewClient(server.Client(), server.URL+"/").SignedInUser(context.Background())
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, "/me", gotPath)
	assert.Equal(t, userSelect, gotSelect)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "alice@contoso.com", user.Mail)
	assert.Equal(t, "alice@contoso.onmicrosoft.com", user.UserPrincipalName)
	assert.Equal(t, "Alice", user.DisplayName)
}

// TestSignedInUser_NullMail verifies accounts without a mailbox decode
// with an empty Mail so callers can fall back to the principal name.
func TestSignedInUser_NullMail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"1","mail":null,"userPrincipalName":"svc@contoso.com"}`))
	}))
	defer server.Close()

	user, err := NewClient(server.Client(), server.URL).SignedInUser(context.Background())
	require.NoError(t, err)
	assert.Empty(t, user.Mail)
	assert.Equal(t, "svc@contoso.com", user.UserPrincipalName)
}

// TestSignedInUser_AppOnlyToken verifies the Graph error envelope is
// surfaced for tokens without a user context.
func TestSignedInUser_AppOnlyToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"BadRequest","message":"/me request is only valid with delegated authentication flow."}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.Client(), server.URL).SignedInUser(context.Background())
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "BadRequest", se.Code)
	assert.Contains(t, err.Error(), "delegated")
}

func TestSignedInUser_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	_, err := NewClient(server.Client(), server.URL).SignedInUser(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Graph /me returned HTTP 503", err.Error())
}

func TestSignedInUser_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(http.DefaultClient, url).SignedInUser(context.Background())
	assert.Error(t, err)
}
