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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAuthorityURL    = "https://login.microsoftonline.com"
	DefaultGraphBaseURL    = "https://graph.microsoft.com/v1.0"
	DefaultExchangeBaseURL = "https://outlook.office365.com"
	DefaultAuditQueue      = "mexveil:events"
)

// TenantConfig holds credentials for the Microsoft 365 tenant that owns
// the shielded mailboxes.
type TenantConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Organization is the *.onmicrosoft.com name; app-only Exchange
	// sessions send it as X-AnchorMailbox routing hint.
	Organization string
	// AccessToken is a pre-acquired delegated token. When set it is used
	// instead of the client credentials flow.
	AccessToken  string
}

// AuditConfig enables the optional provisioning audit trail. Empty URLs
// disable the matching sink.
type AuditConfig struct {
	RedisURL    string
	Queue       string
	DatabaseURL string
}

// Config holds all configuration for mexveil.
type Config struct {
	Tenant TenantConfig
	Audit  AuditConfig

	AuthorityURL    string
	GraphBaseURL    string
	ExchangeBaseURL string
	LogLevel        slog.Level
}

// UsesClientCredentials reports whether the app-only flow should be used.
func (c *Config) UsesClientCredentials() bool {
	return c.Tenant.AccessToken == ""
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Tenant struct {
		TenantID     string `yaml:"tenant_id"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		Organization string `yaml:"organization"`
		AccessToken  string `yaml:"access_token"`
	} `yaml:"tenant"`
	AuthorityURL    string `yaml:"authority_url"`
	GraphBaseURL    string `yaml:"graph_base_url"`
	ExchangeBaseURL string `yaml:"exchange_base_url"`
	LogLevel        string `yaml:"log_level"`
	Audit           struct {
		RedisURL    string `yaml:"redis_url"`
		Queue       string `yaml:"queue"`
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"audit"`
}

// Load reads configuration from path (with env var expansion) and fills
// anything left empty from MEXVEIL_* environment variables. A missing file
// is not an error as long as the environment supplies credentials.
func Load(path string) (*Config, error) {
	if path == "" {
		path = envOrDefault("MEXVEIL_CONFIG", "config.yaml")
	}

	var raw rawConfig
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("config file not found, using environment only", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	level, err := parseLevel(firstNonEmpty(raw.LogLevel, os.Getenv("MEXVEIL_LOG_LEVEL")))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Tenant: TenantConfig{
			TenantID:     firstNonEmpty(raw.Tenant.TenantID, os.Getenv("MEXVEIL_TENANT_ID")),
			ClientID:     firstNonEmpty(raw.Tenant.ClientID, os.Getenv("MEXVEIL_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.Tenant.ClientSecret, os.Getenv("MEXVEIL_CLIENT_SECRET")),
			Organization: firstNonEmpty(raw.Tenant.Organization, os.Getenv("MEXVEIL_ORGANIZATION")),
			AccessToken:  firstNonEmpty(raw.Tenant.AccessToken, os.Getenv("MEXVEIL_ACCESS_TOKEN")),
		},
		Audit: AuditConfig{
			RedisURL:    firstNonEmpty(raw.Audit.RedisURL, os.Getenv("MEXVEIL_AUDIT_REDIS_URL")),
			Queue:       firstNonEmpty(raw.Audit.Queue, envOrDefault("MEXVEIL_AUDIT_QUEUE", DefaultAuditQueue)),
			DatabaseURL: firstNonEmpty(raw.Audit.DatabaseURL, os.Getenv("MEXVEIL_AUDIT_DATABASE_URL")),
		},
		AuthorityURL:    strings.TrimRight(firstNonEmpty(raw.AuthorityURL, envOrDefault("MEXVEIL_AUTHORITY_URL", DefaultAuthorityURL)), "/"),
		GraphBaseURL:    strings.TrimRight(firstNonEmpty(raw.GraphBaseURL, envOrDefault("MEXVEIL_GRAPH_BASE_URL", DefaultGraphBaseURL)), "/"),
		ExchangeBaseURL: strings.TrimRight(firstNonEmpty(raw.ExchangeBaseURL, envOrDefault("MEXVEIL_EXCHANGE_BASE_URL", DefaultExchangeBaseURL)), "/"),
		LogLevel:        level,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Tenant.TenantID == "" {
		return fmt.Errorf("tenant_id is required — set it in the config file or MEXVEIL_TENANT_ID")
	}
	if c.Tenant.AccessToken != "" {
		return nil
	}
	if c.Tenant.ClientID == "" || c.Tenant.ClientSecret == "" {
		return fmt.Errorf("either access_token or client_id + client_secret is required")
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return level, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
