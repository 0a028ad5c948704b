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

// Package models defines the data structures shared across mexveil.
package models

import "time"

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ProvisionEvent records the outcome of one provisioning run. A failed run
// lists the platform steps that completed before the failure so a
// half-configured mailbox can be found and finished by hand.
type ProvisionEvent struct {
	RunID           string    `json:"run_id"`
	TenantID        string    `json:"tenant_id"`
	Mailbox         string    `json:"mailbox,omitempty"`
	Address         string    `json:"address,omitempty"`
	ForwardingEmail string    `json:"forwarding_email,omitempty"`
	Domain          string    `json:"domain,omitempty"`
	StoreCopy       bool      `json:"store_copy"`
	Completed       []string  `json:"completed"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}
