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

// Package provision creates a shielded shared mailbox: a randomized
// address that forwards to a real one and grants that address full
// access and send-as rights.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quedalytix/mexveil/internal/address"
	"github.com/quedalytix/mexveil/internal/audit"
	"github.com/quedalytix/mexveil/internal/exchange"
	"github.com/quedalytix/mexveil/internal/models"
	"github.com/quedalytix/mexveil/internal/prompt"
	"github.com/quedalytix/mexveil/internal/randtoken"
)

// Token length bounds.
const (
	DefaultLength = 6
	MinLength     = 2
	MaxLength     = 20
)

// Names of the platform steps, in execution order.
const (
	StepCreateMailbox   = "create-mailbox"
	StepSetForwarding   = "set-forwarding"
	StepGrantFullAccess = "grant-full-access"
	StepGrantSendAs     = "grant-send-as"
)

// Prompt labels.
const (
	LabelServiceName     = "Service name"
	LabelForwardingEmail = "Forwarding email"
	LabelDomain          = "Domain"
)

var (
	ErrInvalidEmail     = errors.New("invalid forwarding email")
	ErrLengthOutOfRange = fmt.Errorf("random length must be between %d and %d", MinLength, MaxLength)
)

// Platform is an open mail administration session.
type Platform interface {
	CreateSharedMailbox(ctx context.Context, address, displayName string) (exchange.Mailbox, error)
	SetForwarding(ctx context.Context, mailboxID, target string, retainCopy bool) error
	GrantFullAccess(ctx context.Context, mailboxID, trustee string) error
	GrantSendAs(ctx context.Context, mailboxID, trustee string) error
	Disconnect() error
}

// Connector opens a Platform session.
type Connector func(ctx context.Context) (Platform, error)

// EmailResolver finds the current user's email, best effort.
type EmailResolver interface {
	Resolve(ctx context.Context) (string, bool)
}

// Options are the per-run inputs. Empty strings are resolved or prompted
// for; a zero Length means DefaultLength.
type Options struct {
	ServiceName     string
	ForwardingEmail string
	Domain          string
	Length          int
	StoreCopy       bool
}

// Validate checks the inputs that can be checked before anything runs.
func (o Options) Validate() error {
	if o.Length == 0 {
		return nil
	}
	if o.Length < MinLength || o.Length > MaxLength {
		return fmt.Errorf("%w (got %d)", ErrLengthOutOfRange, o.Length)
	}
	return nil
}

// Result describes what a run produced. On failure it holds whatever was
// resolved before the failing step, and Completed lists the platform
// steps that succeeded.
type Result struct {
	RunID           string
	ServiceName     string
	ForwardingEmail string
	Domain          string
	Token           string
	MailboxName     string
	Address         string
	MailboxID       string
	StoreCopy       bool
	Completed       []string
}

// Config wires a Provisioner's collaborators.
type Config struct {
	Connect  Connector
	Resolver EmailResolver   // optional
	Prompter prompt.Prompter // optional; nil fails instead of prompting
	Audit    audit.Sink      // optional
	TenantID string

	// Generate overrides the token generator in tests.
	Generate func(length int) string
}

// Provisioner runs the provisioning sequence.
type Provisioner struct {
	connect  Connector
	resolver EmailResolver
	prompter prompt.Prompter
	sink     audit.Sink
	tenantID string
	generate func(int) string
	now      func() time.Time
}

// New creates a Provisioner.
func New(cfg Config) *Provisioner {
	gen := cfg.Generate
	if gen == nil {
		gen = randtoken.Generate
	}
	return &Provisioner{
		connect:  cfg.Connect,
		resolver: cfg.Resolver,
		prompter: cfg.Prompter,
		sink:     cfg.Audit,
		tenantID: cfg.TenantID,
		generate: gen,
		now:      time.Now,
	}
}

// step is one fallible unit of the sequence.
type step struct {
	name string
	run  func(ctx context.Context) error
}

// run carries state between the steps of a single invocation.
type run struct {
	p       *Provisioner
	opts    Options
	result  *Result
	session Platform
}

// Run resolves inputs, opens a platform session, and issues the four
// platform calls in order. The first failing step aborts the rest; the
// session, once opened, is disconnected exactly once whatever happens.
// Nothing is rolled back. The returned Result is non-nil whenever inputs
// passed Validate, including on failure.
func (p *Provisioner) Run(ctx context.Context, opts Options) (res *Result, err error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Length == 0 {
		opts.Length = DefaultLength
	}

	r := &run{
		p:    p,
		opts: opts,
		result: &Result{
			RunID:     uuid.New().String(),
			StoreCopy: opts.StoreCopy,
			Completed: []string{},
		},
	}
	started := p.now()

	defer func() { p.record(ctx, r.result, started, err) }()
	defer r.release(&err)

	for _, s := range r.steps() {
		if err := s.run(ctx); err != nil {
			slog.Error("provisioning step failed",
				"run_id", r.result.RunID,
				"step", s.name,
				"error", err,
			)
			return r.result, fmt.Errorf("step %s: %w", s.name, err)
		}
	}

	slog.Info("shielded mailbox provisioned",
		"run_id", r.result.RunID,
		"address", r.result.Address,
		"forwarding_to", r.result.ForwardingEmail,
		"store_copy", r.result.StoreCopy,
	)
	return r.result, nil
}

func (r *run) steps() []step {
	return []step{
		{"service-name", r.resolveServiceName},
		{"forwarding-email", r.resolveForwardingEmail},
		{"validate-email", r.validateEmail},
		{"domain", r.resolveDomain},
		{"token", r.generateToken},
		{"compose", r.compose},
		{"connect", r.openSession},
		{StepCreateMailbox, r.createMailbox},
		{StepSetForwarding, r.setForwarding},
		{StepGrantFullAccess, r.grantFullAccess},
		{StepGrantSendAs, r.grantSendAs},
	}
}

func (r *run) resolveServiceName(ctx context.Context) error {
	v, err := prompt.ResolveOrPrompt(ctx, r.opts.ServiceName, nil, r.p.prompter, LabelServiceName)
	if err != nil {
		return err
	}
	r.result.ServiceName = v
	return nil
}

func (r *run) resolveForwardingEmail(ctx context.Context) error {
	var detect prompt.ResolveFunc
	if r.p.resolver != nil {
		detect = r.p.resolver.Resolve
	}
	v, err := prompt.ResolveOrPrompt(ctx, r.opts.ForwardingEmail, detect, r.p.prompter, LabelForwardingEmail)
	if err != nil {
		return err
	}
	r.result.ForwardingEmail = v
	return nil
}

func (r *run) validateEmail(context.Context) error {
	if !address.Valid(r.result.ForwardingEmail) {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, r.result.ForwardingEmail)
	}
	return nil
}

func (r *run) resolveDomain(ctx context.Context) error {
	fromEmail := func(context.Context) (string, bool) {
		return address.DomainOf(r.result.ForwardingEmail)
	}
	v, err := prompt.ResolveOrPrompt(ctx, r.opts.Domain, fromEmail, r.p.prompter, LabelDomain)
	if err != nil {
		return err
	}
	r.result.Domain = v
	return nil
}

func (r *run) generateToken(context.Context) error {
	r.result.Token = r.p.generate(r.opts.Length)
	return nil
}

func (r *run) compose(context.Context) error {
	r.result.MailboxName = address.MailboxName(r.result.ServiceName, r.result.Token)
	r.result.Address = address.Compose(r.result.MailboxName, r.result.Domain)
	slog.Info("provisioning shielded mailbox",
		"run_id", r.result.RunID,
		"address", r.result.Address,
	)
	return nil
}

func (r *run) openSession(ctx context.Context) error {
	s, err := r.p.connect(ctx)
	if err != nil {
		return err
	}
	r.session = s
	return nil
}

func (r *run) createMailbox(ctx context.Context) error {
	mbx, err := r.session.CreateSharedMailbox(ctx, r.result.Address, r.result.MailboxName)
	if err != nil {
		return err
	}
	r.result.MailboxID = mbx.ID()
	return r.done(StepCreateMailbox)
}

func (r *run) setForwarding(ctx context.Context) error {
	if err := r.session.SetForwarding(ctx, r.result.MailboxID, r.result.ForwardingEmail, r.result.StoreCopy); err != nil {
		return err
	}
	return r.done(StepSetForwarding)
}

func (r *run) grantFullAccess(ctx context.Context) error {
	if err := r.session.GrantFullAccess(ctx, r.result.MailboxID, r.result.ForwardingEmail); err != nil {
		return err
	}
	return r.done(StepGrantFullAccess)
}

func (r *run) grantSendAs(ctx context.Context) error {
	if err := r.session.GrantSendAs(ctx, r.result.MailboxID, r.result.ForwardingEmail); err != nil {
		return err
	}
	return r.done(StepGrantSendAs)
}

func (r *run) done(name string) error {
	r.result.Completed = append(r.result.Completed, name)
	return nil
}

// release disconnects an open session. A disconnect failure after an
// earlier error is logged and dropped so the original error is reported;
// on an otherwise successful run it becomes the run's error.
func (r *run) release(errp *error) {
	if r.session == nil {
		return
	}
	derr := r.session.Disconnect()
	if derr == nil {
		return
	}
	if *errp != nil {
		slog.Warn("disconnect after failure failed", "run_id", r.result.RunID, "error", derr)
		return
	}
	*errp = fmt.Errorf("step disconnect: %w", derr)
}

func (p *Provisioner) record(ctx context.Context, res *Result, started time.Time, runErr error) {
	event := &models.ProvisionEvent{
		RunID:           res.RunID,
		TenantID:        p.tenantID,
		Mailbox:         res.MailboxName,
		Address:         res.Address,
		ForwardingEmail: res.ForwardingEmail,
		Domain:          res.Domain,
		StoreCopy:       res.StoreCopy,
		Completed:       res.Completed,
		Status:          models.StatusSucceeded,
		StartedAt:       started.UTC(),
		FinishedAt:      p.now().UTC(),
	}
	if runErr != nil {
		event.Status = models.StatusFailed
		event.Error = runErr.Error()
	}
	audit.Emit(ctx, p.sink, event)
}
