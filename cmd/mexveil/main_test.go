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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// platformServers fakes Graph and the Exchange admin endpoint.
type platformServers struct {
	mu      sync.Mutex
	cmdlets []string
	params  []map[string]any
	failOn  string

	graph    *httptest.Server
	exchange *httptest.Server
}

func newPlatformServers(t *testing.T) *platformServers {
	t.Helper()
	p := &platformServers{}

	// App-style token: /me is refused, so resolution falls back to claims.
	p.graph = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"InvalidAuthenticationToken","message":"Invalid audience."}}`))
	}))
	t.Cleanup(p.graph.Close)

	p.exchange = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			CmdletInput struct {
				CmdletName string         `json:"CmdletName"`
				Parameters map[string]any `json:"Parameters"`
			} `json:"CmdletInput"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		name := body.CmdletInput.CmdletName

		p.mu.Lock()
		p.cmdlets = append(p.cmdlets, name)
		p.params = append(p.params, body.CmdletInput.Parameters)
		fail := p.failOn == name
		p.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":"BadRequest","message":"rejected by test"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":[]}`))
	}))
	t.Cleanup(p.exchange.Close)

	return p
}

func (p *platformServers) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.cmdlets...)
}

func delegatedToken(t *testing.T, upn string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"upn": upn}).SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func setEnv(t *testing.T, p *platformServers, token string) {
	t.Helper()
	t.Setenv("MEXVEIL_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("MEXVEIL_TENANT_ID", "contoso-tenant")
	t.Setenv("MEXVEIL_CLIENT_ID", "")
	t.Setenv("MEXVEIL_CLIENT_SECRET", "")
	t.Setenv("MEXVEIL_ORGANIZATION", "")
	t.Setenv("MEXVEIL_LOG_LEVEL", "")
	t.Setenv("MEXVEIL_AUDIT_REDIS_URL", "")
	t.Setenv("MEXVEIL_AUDIT_DATABASE_URL", "")
	t.Setenv("MEXVEIL_ACCESS_TOKEN", token)
	t.Setenv("MEXVEIL_GRAPH_BASE_URL", p.graph.URL)
	t.Setenv("MEXVEIL_EXCHANGE_BASE_URL", p.exchange.URL)
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--help"}, strings.NewReader(""), &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Contains(t, stderr.String(), "Usage: mexveil")
	assert.Contains(t, stderr.String(), "-service")
	assert.Empty(t, stdout.String())
}

func TestRun_UnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--bogus"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 2, code)
}

// TestRun_LengthOutOfRange verifies bad lengths fail before any config or
// platform access.
func TestRun_LengthOutOfRange(t *testing.T) {
	p := newPlatformServers(t)
	setEnv(t, p, delegatedToken(t, "dana@contoso.com"))

	for _, l := range []string{"1", "21", "0"} {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), []string{"--service", "x", "--length", l}, strings.NewReader(""), &stdout, &stderr)
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr.String(), "random length must be between 2 and 20")
	}
	assert.Empty(t, p.calls())
}

func TestRun_MissingConfig(t *testing.T) {
	t.Setenv("MEXVEIL_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("MEXVEIL_TENANT_ID", "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--service", "x"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "tenant_id is required")
}

// TestRun_EndToEnd provisions against the fake platform, detecting the
// forwarding email from the session token.
func TestRun_EndToEnd(t *testing.T) {
	p := newPlatformServers(t)
	setEnv(t, p, delegatedToken(t, "dana@contoso.com"))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(),
		[]string{"--service", "Support", "--store", "--non-interactive"},
		strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	assert.Equal(t, []string{
		"Get-OrganizationConfig",
		"New-Mailbox",
		"Set-Mailbox",
		"Add-MailboxPermission",
		"Add-RecipientPermission",
	}, p.calls())

	addr := p.params[1]["PrimarySmtpAddress"].(string)
	assert.Regexp(t, regexp.MustCompile(`^support-[a-z0-9]{6}@contoso\.com$`), addr)
	assert.Equal(t, "smtp:dana@contoso.com", p.params[2]["ForwardingSmtpAddress"])
	assert.Equal(t, true, p.params[2]["DeliverToMailboxAndForward"])
	assert.Equal(t, addr, p.params[2]["Identity"])

	assert.Contains(t, stdout.String(), "Shared mailbox:   "+addr)
	assert.Contains(t, stdout.String(), "Forwarding to:    dana@contoso.com")
}

func TestRun_PromptsOnStdin(t *testing.T) {
	p := newPlatformServers(t)
	setEnv(t, p, delegatedToken(t, "no-at-sign"))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(),
		[]string{"--length", "8"},
		strings.NewReader("Shop\nerin@example.org\n"), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	assert.Contains(t, stdout.String(), "Service name: Forwarding email: ")
	assert.Regexp(t, regexp.MustCompile(`shop-[a-z0-9]{8}@example\.org`), stdout.String())
}

func TestRun_NonInteractiveMissingValue(t *testing.T) {
	p := newPlatformServers(t)
	setEnv(t, p, delegatedToken(t, "dana@contoso.com"))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--non-interactive"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "interactive prompt disabled")
	assert.Empty(t, p.calls())
}

func TestRun_InvalidEmail(t *testing.T) {
	p := newPlatformServers(t)
	setEnv(t, p, delegatedToken(t, "dana@contoso.com"))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--service", "s", "--email", "user@domain"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "invalid forwarding email")
	assert.Empty(t, p.calls())
}

// TestRun_PartialFailure verifies a rejected step aborts the rest and the
// half-configured mailbox is reported.
func TestRun_PartialFailure(t *testing.T) {
	p := newPlatformServers(t)
	p.failOn = "Add-MailboxPermission"
	setEnv(t, p, delegatedToken(t, "dana@contoso.com"))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--service", "s", "--email", "dana@contoso.com"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 1, code)

	assert.Equal(t, []string{"Get-OrganizationConfig", "New-Mailbox", "Set-Mailbox", "Add-MailboxPermission"}, p.calls())
	assert.Contains(t, stderr.String(), "rejected by test")
	assert.Contains(t, stderr.String(), "left partially configured (completed: create-mailbox, set-forwarding)")
	assert.Empty(t, stdout.String())
}
