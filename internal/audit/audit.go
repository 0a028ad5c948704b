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

// Package audit records provisioning runs to optional sinks: a Redis list
// for downstream consumers and a Postgres ledger table.
package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/quedalytix/mexveil/internal/models"
)

// Sink receives one event per provisioning run.
type Sink interface {
	Record(ctx context.Context, event *models.ProvisionEvent) error
}

// Multi fans an event out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, event *models.ProvisionEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit records event on sink and logs, rather than returns, any failure.
// Auditing never changes the outcome of a run. A nil sink is a no-op.
func Emit(ctx context.Context, sink Sink, event *models.ProvisionEvent) {
	if sink == nil {
		return
	}
	if err := sink.Record(ctx, event); err != nil {
		slog.Warn("failed to record provisioning event",
			"run_id", event.RunID,
			"error", err,
		)
	}
}
