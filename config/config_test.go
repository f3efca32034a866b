// file: config/config_test.go

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != "production" {
		t.Errorf("Environment = %s, want production", cfg.Environment)
	}
	if cfg.IsDevelopment() {
		t.Error("default config must not be in development mode")
	}
	if !cfg.Federation.GateEnabled {
		t.Error("GateEnabled should default to true")
	}
	if len(cfg.Federation.InboxPaths) != 1 || cfg.Federation.InboxPaths[0] != "/inbox" {
		t.Errorf("InboxPaths = %v, want [/inbox]", cfg.Federation.InboxPaths)
	}
	if cfg.Federation.PublishMode != "jetstream" {
		t.Errorf("PublishMode = %s, want jetstream", cfg.Federation.PublishMode)
	}
	if cfg.HTTP.Server.Address != ":8080" {
		t.Errorf("HTTP.Server.Address = %s, want :8080", cfg.HTTP.Server.Address)
	}
	if cfg.HTTP.Server.InboundWorkerCount != runtime.NumCPU() {
		t.Errorf("InboundWorkerCount = %d, want %d", cfg.HTTP.Server.InboundWorkerCount, runtime.NumCPU())
	}
	if cfg.HTTP.Client.Timeout != 10*time.Second {
		t.Errorf("HTTP.Client.Timeout = %v, want 10s", cfg.HTTP.Client.Timeout)
	}
	if !cfg.Resolver.KVEnabled {
		t.Error("KVEnabled should default to true")
	}
	if cfg.Resolver.KVBucket != "actors" {
		t.Errorf("KVBucket = %s, want actors", cfg.Resolver.KVBucket)
	}
	if cfg.Resolver.TombstoneSweepSchedule != "0 * * * *" {
		t.Errorf("TombstoneSweepSchedule = %s, want hourly", cfg.Resolver.TombstoneSweepSchedule)
	}
	if err := validateConfig(cfg); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "fedgate.yaml", `
environment: development
http:
  server:
    address: ":9090"
    inboundWorkerCount: 4
federation:
  gateEnabled: false
  inboxPaths: ["/inbox", "/users/shared/inbox"]
  subjectPrefix: ap.inbox
resolver:
  kvEnabled: false
  cacheTTL: 1m
logging:
  level: debug
  encoding: console
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.IsDevelopment() {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.HTTP.Server.Address != ":9090" {
		t.Errorf("Address = %s, want :9090", cfg.HTTP.Server.Address)
	}
	if cfg.HTTP.Server.InboundWorkerCount != 4 {
		t.Errorf("InboundWorkerCount = %d, want 4", cfg.HTTP.Server.InboundWorkerCount)
	}
	if cfg.Federation.GateEnabled {
		t.Error("explicit gateEnabled: false must be kept")
	}
	if len(cfg.Federation.InboxPaths) != 2 {
		t.Errorf("InboxPaths = %v, want 2 entries", cfg.Federation.InboxPaths)
	}
	if cfg.Federation.SubjectPrefix != "ap.inbox" {
		t.Errorf("SubjectPrefix = %s, want ap.inbox", cfg.Federation.SubjectPrefix)
	}
	if cfg.Resolver.KVEnabled {
		t.Error("explicit kvEnabled: false must be kept")
	}
	if cfg.Resolver.CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v, want 1m", cfg.Resolver.CacheTTL)
	}
	if cfg.Logging.Encoding != "console" {
		t.Errorf("Encoding = %s, want console", cfg.Logging.Encoding)
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfig(t, "fedgate.json", `{"environment":"staging","nats":{"urls":["nats://a:4222","nats://b:4222"]}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Environment != "staging" {
		t.Errorf("Environment = %s, want staging", cfg.Environment)
	}
	if len(cfg.NATS.URLs) != 2 {
		t.Errorf("NATS.URLs = %v, want 2 entries", cfg.NATS.URLs)
	}
	if !cfg.Federation.GateEnabled {
		t.Error("GateEnabled should default to true when absent")
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	path := writeConfig(t, "fedgate.yaml", "logging:\n  level: warn\n")
	t.Setenv("FEDGATE_ENVIRONMENT", "development")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.IsDevelopment() {
		t.Errorf("Environment = %s, want development from env", cfg.Environment)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(cfg *Config) {},
			wantErr: false,
		},
		{
			name: "conflicting NATS auth",
			mutate: func(cfg *Config) {
				cfg.NATS.Username = "user"
				cfg.NATS.Token = "token"
			},
			wantErr: true,
		},
		{
			name: "TLS cert without key",
			mutate: func(cfg *Config) {
				cfg.NATS.TLS.Enable = true
				cfg.NATS.TLS.CertFile = "cert.pem"
			},
			wantErr: true,
		},
		{
			name: "missing creds file",
			mutate: func(cfg *Config) {
				cfg.NATS.CredsFile = "/does/not/exist.creds"
			},
			wantErr: true,
		},
		{
			name: "inbox path without slash",
			mutate: func(cfg *Config) {
				cfg.Federation.InboxPaths = []string{"inbox"}
			},
			wantErr: true,
		},
		{
			name: "unknown publish mode",
			mutate: func(cfg *Config) {
				cfg.Federation.PublishMode = "kafka"
			},
			wantErr: true,
		},
		{
			name: "invalid sweep schedule",
			mutate: func(cfg *Config) {
				cfg.Resolver.TombstoneSweepSchedule = "every hour"
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			mutate: func(cfg *Config) {
				cfg.Logging.Level = "verbose"
			},
			wantErr: true,
		},
		{
			name: "invalid metrics interval",
			mutate: func(cfg *Config) {
				cfg.Metrics.Enabled = true
				cfg.Metrics.UpdateInterval = "soon"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides("development", ":7000", ":9100", 3)

	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.HTTP.Server.Address != ":7000" {
		t.Errorf("Address = %s, want :7000", cfg.HTTP.Server.Address)
	}
	if cfg.Metrics.Address != ":9100" {
		t.Errorf("Metrics.Address = %s, want :9100", cfg.Metrics.Address)
	}
	if cfg.HTTP.Server.InboundWorkerCount != 3 {
		t.Errorf("InboundWorkerCount = %d, want 3", cfg.HTTP.Server.InboundWorkerCount)
	}

	// Empty values leave config untouched
	cfg.ApplyOverrides("", "", "", 0)
	if cfg.Environment != "development" || cfg.HTTP.Server.Address != ":7000" {
		t.Error("empty overrides must not change config")
	}
}
