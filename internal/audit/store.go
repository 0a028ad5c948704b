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

package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quedalytix/mexveil/internal/models"
)

// Entry is one row of the provisioned_mailboxes ledger.
type Entry struct {
	ID              int64
	RunID           string
	TenantID        string
	Mailbox         string
	Address         string
	ForwardingEmail string
	Domain          string
	StoreCopy       bool
	Completed       []string
	Status          string
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
	CreatedAt       time.Time
}

// Store persists provisioning runs in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a ledger store backed by the given Postgres pool.
// It ensures the ledger table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}
	slog.Debug("audit store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS provisioned_mailboxes (
			id               BIGSERIAL PRIMARY KEY,
			run_id           UUID NOT NULL UNIQUE,
			tenant_id        TEXT NOT NULL,
			mailbox          TEXT DEFAULT '',
			address          TEXT DEFAULT '',
			forwarding_email TEXT DEFAULT '',
			domain           TEXT DEFAULT '',
			store_copy       BOOLEAN DEFAULT FALSE,
			completed        TEXT[] NOT NULL DEFAULT '{}',
			status           TEXT NOT NULL,
			error            TEXT DEFAULT '',
			started_at       TIMESTAMPTZ NOT NULL,
			finished_at      TIMESTAMPTZ NOT NULL,
			created_at       TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_provisioned_address ON provisioned_mailboxes(address);
		CREATE INDEX IF NOT EXISTS idx_provisioned_status ON provisioned_mailboxes(status);
	`)
	return err
}

// Record inserts one ledger row for event.
func (s *Store) Record(ctx context.Context, event *models.ProvisionEvent) error {
	completed := event.Completed
	if completed == nil {
		completed = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO provisioned_mailboxes
			(run_id, tenant_id, mailbox, address, forwarding_email, domain,
			 store_copy, completed, status, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, event.RunID, event.TenantID, event.Mailbox, event.Address, event.ForwardingEmail,
		event.Domain, event.StoreCopy, completed, event.Status, event.Error,
		event.StartedAt, event.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert provisioning record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit ledger rows, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id::text, tenant_id, mailbox, address, forwarding_email,
		       domain, store_copy, completed, status, error, started_at,
		       finished_at, created_at
		FROM provisioned_mailboxes
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// collectEntries scans multiple rows into a slice of Entries.
func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.RunID, &e.TenantID, &e.Mailbox, &e.Address, &e.ForwardingEmail,
			&e.Domain, &e.StoreCopy, &e.Completed, &e.Status, &e.Error, &e.StartedAt,
			&e.FinishedAt, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
