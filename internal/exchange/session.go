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

// Package exchange drives Exchange Online administration through its REST
// command endpoint (the transport behind the ExchangeOnlineManagement
// PowerShell module). A Session is an explicit handle: obtain one with
// Connect and release it with Disconnect.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// systemMailbox routes app-only requests to the organization's
// arbitration mailbox.
const systemMailbox = "SystemMailbox{bb558c35-97f1-4cb9-8ff7-d53741dc928c}"

// ErrDisconnected is returned by commands issued on a closed session.
var ErrDisconnected = errors.New("exchange session is disconnected")

// ConnectConfig describes how to reach a tenant's admin endpoint.
type ConnectConfig struct {
	BaseURL      string
	TenantID     string
	// Organization is the tenant's *.onmicrosoft.com domain. When set,
	// requests carry an X-AnchorMailbox routing hint.
	Organization string
	Tokens       oauth2.TokenSource
}

// Session is an authenticated admin session for one tenant. It is not safe
// for concurrent use.
type Session struct {
	httpClient *http.Client
	endpoint   string
	anchor     string
	closed     bool
}

// Connect opens a session and verifies it with a read-only probe
// (Get-OrganizationConfig) so credential problems surface before any
// change is made.
func Connect(ctx context.Context, cfg ConnectConfig) (*Session, error) {
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("connect to Exchange Online: tenant ID is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("connect to Exchange Online: token source is required")
	}

	s := &Session{
		httpClient: oauth2.NewClient(ctx, cfg.Tokens),
		endpoint:   fmt.Sprintf("%s/adminapi/beta/%s/InvokeCommand", strings.TrimRight(cfg.BaseURL, "/"), cfg.TenantID),
	}
	if cfg.Organization != "" {
		s.anchor = fmt.Sprintf("UPN:%s@%s", systemMailbox, cfg.Organization)
	}

	if _, err := s.invoke(ctx, "Get-OrganizationConfig", map[string]any{}); err != nil {
		return nil, fmt.Errorf("connect to Exchange Online: %w", err)
	}

	slog.Info("connected to Exchange Online", "tenant", cfg.TenantID)
	return s, nil
}

// Disconnect releases the session. It is safe to call more than once.
func (s *Session) Disconnect() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.httpClient.CloseIdleConnections()
	slog.Info("disconnected from Exchange Online")
	return nil
}

// Mailbox is the subset of a mailbox object returned by New-Mailbox.
type Mailbox struct {
	Identity                  string `json:"Identity"`
	Name                      string `json:"Name"`
	Alias                     string `json:"Alias"`
	DisplayName               string `json:"DisplayName"`
	PrimarySmtpAddress        string `json:"PrimarySmtpAddress"`
	ExternalDirectoryObjectID string `json:"ExternalDirectoryObjectId"`
}

// ID returns the most stable identifier available for -Identity
// parameters.
func (m Mailbox) ID() string {
	switch {
	case m.ExternalDirectoryObjectID != "":
		return m.ExternalDirectoryObjectID
	case m.PrimarySmtpAddress != "":
		return m.PrimarySmtpAddress
	default:
		return m.Identity
	}
}

// CreateSharedMailbox creates a shared mailbox whose primary SMTP address
// is address. The local part doubles as name and alias.
func (s *Session) CreateSharedMailbox(ctx context.Context, address, displayName string) (Mailbox, error) {
	alias, _, _ := strings.Cut(address, "@")

	values, err := s.invoke(ctx, "New-Mailbox", map[string]any{
		"Shared":             true,
		"Name":               alias,
		"Alias":              alias,
		"DisplayName":        displayName,
		"PrimarySmtpAddress": address,
	})
	if err != nil {
		return Mailbox{}, err
	}

	mbx := Mailbox{Identity: alias, Alias: alias, DisplayName: displayName, PrimarySmtpAddress: address}
	if len(values) > 0 {
		if err := json.Unmarshal(values[0], &mbx); err != nil {
			return Mailbox{}, fmt.Errorf("decode New-Mailbox result: %w", err)
		}
	}

	slog.Info("shared mailbox created", "mailbox", mbx.PrimarySmtpAddress, "id", mbx.ID())
	return mbx, nil
}

// SetForwarding forwards all mail delivered to the mailbox to target. When
// retainCopy is true a copy is also kept in the mailbox.
func (s *Session) SetForwarding(ctx context.Context, mailboxID, target string, retainCopy bool) error {
	_, err := s.invoke(ctx, "Set-Mailbox", map[string]any{
		"Identity":                   mailboxID,
		"ForwardingSmtpAddress":      "smtp:" + target,
		"DeliverToMailboxAndForward": retainCopy,
	})
	if err != nil {
		return err
	}
	slog.Info("forwarding configured", "mailbox", mailboxID, "target", target, "store_copy", retainCopy)
	return nil
}

// GrantFullAccess lets trustee open and manage the mailbox.
func (s *Session) GrantFullAccess(ctx context.Context, mailboxID, trustee string) error {
	_, err := s.invoke(ctx, "Add-MailboxPermission", map[string]any{
		"Identity":        mailboxID,
		"User":            trustee,
		"AccessRights":    []string{"FullAccess"},
		"InheritanceType": "All",
	})
	if err != nil {
		return err
	}
	slog.Info("full access granted", "mailbox", mailboxID, "trustee", trustee)
	return nil
}

// GrantSendAs lets trustee send mail as the mailbox's address.
func (s *Session) GrantSendAs(ctx context.Context, mailboxID, trustee string) error {
	_, err := s.invoke(ctx, "Add-RecipientPermission", map[string]any{
		"Identity":     mailboxID,
		"Trustee":      trustee,
		"AccessRights": []string{"SendAs"},
		"Confirm":      false,
	})
	if err != nil {
		return err
	}
	slog.Info("send-as granted", "mailbox", mailboxID, "trustee", trustee)
	return nil
}

type cmdletInput struct {
	CmdletName string         `json:"CmdletName"`
	Parameters map[string]any `json:"Parameters"`
}

type invokeRequest struct {
	CmdletInput cmdletInput `json:"CmdletInput"`
}

type invokeResponse struct {
	Value []json.RawMessage `json:"value"`
}

// invoke runs a single cmdlet and returns its output objects.
func (s *Session) invoke(ctx context.Context, cmdlet string, params map[string]any) ([]json.RawMessage, error) {
	if s.closed {
		return nil, ErrDisconnected
	}

	body, err := json.Marshal(invokeRequest{CmdletInput: cmdletInput{CmdletName: cmdlet, Parameters: params}})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", cmdlet, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", cmdlet, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CmdletName", cmdlet)
	req.Header.Set("X-ResponseFormat", "json")
	req.Header.Set("X-ClientApplication", "ExoManagementModule")
	req.Header.Set("client-request-id", uuid.New().String())
	if s.anchor != "" {
		req.Header.Set("X-AnchorMailbox", s.anchor)
	}

	slog.Debug("invoking cmdlet", "cmdlet", cmdlet)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmdlet, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newCommandError(cmdlet, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", cmdlet, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var out invokeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", cmdlet, err)
	}
	return out.Value, nil
}
