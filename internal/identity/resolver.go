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

// Package identity resolves the email address of whoever is running
// mexveil. Resolution is best effort: lookups that fail are treated the
// same as lookups that find nothing.
package identity

import (
	"context"
	"log/slog"
	"strings"
)

// User is the subset of a directory user record used for resolution.
type User struct {
	ID                string
	Mail              string
	UserPrincipalName string
	DisplayName       string
}

// UserProvider returns the signed-in user's directory record, or nil when
// there is none.
type UserProvider interface {
	SignedInUser(ctx context.Context) (*User, error)
}

// ContextProvider returns the account identifier of the current session.
type ContextProvider interface {
	Account(ctx context.Context) (string, error)
}

// Resolver looks up the current user's email from a directory record first
// and the session context second. Either provider may be nil.
type Resolver struct {
	users    UserProvider
	sessions ContextProvider
}

// NewResolver creates a current-user email resolver.
func NewResolver(users UserProvider, sessions ContextProvider) *Resolver {
	return &Resolver{users: users, sessions: sessions}
}

// Resolve returns the current user's email and true, or "" and false when
// nothing usable was found. It never fails.
//
// Order: directory mail, directory principal name, then the session
// account if it looks like an address (contains "@").
func (r *Resolver) Resolve(ctx context.Context) (string, bool) {
	if r.users != nil {
		user, err := r.users.SignedInUser(ctx)
		if err != nil {
			slog.Debug("signed-in user lookup failed", "error", err)
		}
		if err == nil && user != nil {
			if user.Mail != "" {
				return user.Mail, true
			}
			if user.UserPrincipalName != "" {
				return user.UserPrincipalName, true
			}
		}
	}

	if r.sessions != nil {
		account, err := r.sessions.Account(ctx)
		if err != nil {
			slog.Debug("session account lookup failed", "error", err)
			return "", false
		}
		if strings.Contains(account, "@") {
			return account, true
		}
	}

	return "", false
}
