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

// mexveil — shielded mailbox provisioning
//
// Creates an Exchange Online shared mailbox with a randomized address
// (<service>-<token>@<domain>), forwards it to a real address, and grants
// that address full access and send-as rights. One mailbox per service
// keeps the real address out of sign-up forms and makes leaks traceable.
//
// Usage:
//
//	mexveil --service <name> [--email you@example.com] [--domain example.com] [--length 6] [--store]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/quedalytix/mexveil/internal/audit"
	"github.com/quedalytix/mexveil/internal/auth"
	"github.com/quedalytix/mexveil/internal/config"
	"github.com/quedalytix/mexveil/internal/exchange"
	"github.com/quedalytix/mexveil/internal/graph"
	"github.com/quedalytix/mexveil/internal/identity"
	"github.com/quedalytix/mexveil/internal/prompt"
	"github.com/quedalytix/mexveil/internal/provision"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is main without the process exit, so tests can drive it.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	// Structured JSON logging; the level is raised or lowered once config
	// is loaded.
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level})))

	// --- CLI Flags ---
	fs := flag.NewFlagSet("mexveil", flag.ContinueOnError)
	fs.SetOutput(stderr)
	serviceFlag := fs.String("service", "", "Service name used as the mailbox prefix (prompted if empty)")
	emailFlag := fs.String("email", "", "Forwarding email (auto-detected from the signed-in user, else prompted)")
	domainFlag := fs.String("domain", "", "Mailbox domain (defaults to the forwarding email's domain)")
	lengthFlag := fs.Int("length", provision.DefaultLength, fmt.Sprintf("Random token length (%d-%d)", provision.MinLength, provision.MaxLength))
	storeFlag := fs.Bool("store", false, "Keep a copy of forwarded mail in the shared mailbox")
	nonInteractiveFlag := fs.Bool("non-interactive", false, "Fail instead of prompting for missing values")
	configFlag := fs.String("config", "", "Path to config.yaml (default $MEXVEIL_CONFIG or ./config.yaml)")
	historyFlag := fs.Int("history", 0, "Print the N most recent runs from the audit database and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: mexveil [flags]\n\nProvision a shielded Exchange Online shared mailbox.\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *lengthFlag < provision.MinLength || *lengthFlag > provision.MaxLength {
		fmt.Fprintf(stderr, "Error: --length %d: %v\n", *lengthFlag, provision.ErrLengthOutOfRange)
		return 1
	}

	// --- Load Configuration ---
	cfg, err := config.Load(*configFlag)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	level.Set(cfg.LogLevel)

	if *historyFlag > 0 {
		return printHistory(ctx, cfg, *historyFlag, stdout, stderr)
	}

	sink, closeAudit := openAudit(ctx, cfg.Audit)
	defer closeAudit()

	// --- Current-user resolution (Graph /me, then token claims) ---
	graphClient := graph.NewClient(auth.Client(ctx, auth.TokenSource(ctx, cfg, auth.GraphScope)), cfg.GraphBaseURL)
	exchangeTokens := auth.TokenSource(ctx, cfg, auth.ExchangeScope)
	resolver := identity.NewResolver(graphClient, identity.NewTokenContext(exchangeTokens))

	var prompter prompt.Prompter = prompt.NewTerminal(stdin, stdout)
	if *nonInteractiveFlag {
		prompter = prompt.Disabled{}
	}

	prov := provision.New(provision.Config{
		Connect: func(ctx context.Context) (provision.Platform, error) {
			s, err := exchange.Connect(ctx, exchange.ConnectConfig{
				BaseURL:      cfg.ExchangeBaseURL,
				TenantID:     cfg.Tenant.TenantID,
				Organization: cfg.Tenant.Organization,
				Tokens:       exchangeTokens,
			})
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		Resolver: resolver,
		Prompter: prompter,
		Audit:    sink,
		TenantID: cfg.Tenant.TenantID,
	})

	res, err := prov.Run(ctx, provision.Options{
		ServiceName:     *serviceFlag,
		ForwardingEmail: *emailFlag,
		Domain:          *domainFlag,
		Length:          *lengthFlag,
		StoreCopy:       *storeFlag,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if res != nil && len(res.Completed) > 0 {
			fmt.Fprintf(stderr, "Mailbox %s was left partially configured (completed: %s)\n",
				res.Address, strings.Join(res.Completed, ", "))
		}
		return 1
	}

	// --- Summary ---
	fmt.Fprintf(stdout, "Shared mailbox:   %s\n", res.Address)
	fmt.Fprintf(stdout, "Forwarding to:    %s\n", res.ForwardingEmail)
	fmt.Fprintf(stdout, "Copy kept:        %t\n", res.StoreCopy)
	fmt.Fprintf(stdout, "Permissions:      FullAccess, SendAs for %s\n", res.ForwardingEmail)
	return 0
}

// openAudit connects the configured audit sinks. A sink that cannot be
// reached is skipped with a warning; auditing never blocks provisioning.
func openAudit(ctx context.Context, cfg config.AuditConfig) (audit.Sink, func()) {
	var sinks audit.Multi
	var closers []func()

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Warn("invalid audit redis_url, skipping", "error", err)
		} else {
			rdb := redis.NewClient(opt)
			publisher := audit.NewPublisher(rdb, cfg.Queue)
			if err := publisher.Ping(ctx); err != nil {
				slog.Warn("audit Redis unreachable, skipping", "error", err)
				rdb.Close()
			} else {
				sinks = append(sinks, publisher)
				closers = append(closers, func() { rdb.Close() })
			}
		}
	}

	if cfg.DatabaseURL != "" {
		store, pool, err := openStore(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Warn("audit database unavailable, skipping", "error", err)
		} else {
			sinks = append(sinks, store)
			closers = append(closers, pool.Close)
		}
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(sinks) == 0 {
		return nil, closeAll
	}
	return sinks, closeAll
}

func openStore(ctx context.Context, databaseURL string) (*audit.Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("create Postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	store, err := audit.NewStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

func printHistory(ctx context.Context, cfg *config.Config, limit int, stdout, stderr io.Writer) int {
	if cfg.Audit.DatabaseURL == "" {
		fmt.Fprintln(stderr, "Error: --history requires audit.database_url")
		return 1
	}
	store, pool, err := openStore(ctx, cfg.Audit.DatabaseURL)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer pool.Close()

	entries, err := store.ListRecent(ctx, limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: list history: %v\n", err)
		return 1
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tADDRESS\tFORWARDING\tSTATUS\tCOMPLETED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Format("2006-01-02 15:04:05"), e.Address, e.ForwardingEmail,
			e.Status, strings.Join(e.Completed, ","))
	}
	tw.Flush()
	return 0
}
