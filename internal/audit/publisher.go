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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/quedalytix/mexveil/internal/models"
)

// Message types published to the queue.
const (
	TypeProvisioned     = "mailbox.provisioned"
	TypeProvisionFailed = "mailbox.provision_failed"
)

// envelope wraps an event for Redis transport.
type envelope struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	PublishedAt string                 `json:"published_at"`
	Event       *models.ProvisionEvent `json:"event"`
}

// Publisher pushes provisioning events onto a Redis list.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified list.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// Record serialises event and LPUSHes it to the queue. Consumers BRPOP
// from the other end to read events in order.
func (p *Publisher) Record(ctx context.Context, event *models.ProvisionEvent) error {
	msg, err := encodeEnvelope(event, time.Now().UTC())
	if err != nil {
		return err
	}

	if err := p.rdb.LPush(ctx, p.queueName, msg).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published provisioning event",
		"run_id", event.RunID,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}

func encodeEnvelope(event *models.ProvisionEvent, now time.Time) (string, error) {
	typ := TypeProvisioned
	if event.Status != models.StatusSucceeded {
		typ = TypeProvisionFailed
	}

	data, err := json.Marshal(envelope{
		ID:          uuid.New().String(),
		Type:        typ,
		PublishedAt: now.Format(time.RFC3339),
		Event:       event,
	})
	if err != nil {
		return "", fmt.Errorf("marshal provisioning event: %w", err)
	}
	return string(data), nil
}
