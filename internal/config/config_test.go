package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "wealthpilot.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("address = %q", cfg.Server.Address)
	}
	if cfg.Session.Driver != "memory" || cfg.Storage.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Fatalf("drivers = %q/%q/%q", cfg.Session.Driver, cfg.Storage.Driver, cfg.Queue.Driver)
	}
	if cfg.TurnTimeout() != 60*time.Second {
		t.Fatalf("turn timeout = %v", cfg.TurnTimeout())
	}
	if cfg.SessionTTL() != 120*time.Minute {
		t.Fatalf("session ttl = %v", cfg.SessionTTL())
	}
	if cfg.Features.LargeOrderUSD != 100000 {
		t.Fatalf("large order threshold = %v", cfg.Features.LargeOrderUSD)
	}
	if cfg.Queue.QueueName != "wealthpilot.feedback" {
		t.Fatalf("queue name = %q", cfg.Queue.QueueName)
	}
	if cfg.Router.PendingWritePolicy != "remind" {
		t.Fatalf("pending write policy = %q, want remind default", cfg.Router.PendingWritePolicy)
	}
}

func TestLoadPendingWritePolicyOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"router": {"pending_write_policy": "answer"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Router.PendingWritePolicy != "answer" {
		t.Fatalf("pending write policy = %q", cfg.Router.PendingWritePolicy)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
  "intent": {"rules_path": "rules.yaml"},
  "runtime": {"data_dir": "state"},
  "logging": {"audit_path": "logs/audit.log"}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Intent.RulesPath != filepath.Join(dir, "rules.yaml") {
		t.Fatalf("rules path = %q", cfg.Intent.RulesPath)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "state") {
		t.Fatalf("data dir = %q", cfg.Runtime.DataDir)
	}
	if cfg.Logging.AuditPath != filepath.Join(dir, "logs/audit.log") {
		t.Fatalf("audit path = %q", cfg.Logging.AuditPath)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WEALTHPILOT_API_KEY", "env-key")
	t.Setenv("WEALTHPILOT_AUTH_TOKEN", "env-token")
	t.Setenv("WEALTHPILOT_ENABLE_REAL_ESTATE", "true")

	dir := t.TempDir()
	path := writeConfig(t, dir, `{
  "llm": {"api_key": "file-key"},
  "server": {"auth_token": "file-token"},
  "features": {"enable_real_estate": false}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.LLM.APIKey != "env-key" {
		t.Fatalf("api key = %q", cfg.LLM.APIKey)
	}
	if cfg.Server.AuthToken != "env-token" {
		t.Fatalf("auth token = %q", cfg.Server.AuthToken)
	}
	if !cfg.Features.EnableRealEstate {
		t.Fatal("env override should enable real estate lookups")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("missing file should fail")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("empty path should fail")
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{broken`)
	if _, err := Load(path); err == nil {
		t.Fatal("malformed config should fail")
	}
}
