package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	path := writeYAML(t, "storage:\n  dsn: postgres://localhost/idp\n")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Addr != ":8080" {
		t.Fatalf("addr default: %q", c.Server.Addr)
	}
	if c.Storage.Driver != "postgres" {
		t.Fatalf("driver default: %q", c.Storage.Driver)
	}
	if c.MFA.Issuer != "poolhouse" || c.MFA.BackupCodeCount != 10 {
		t.Fatalf("mfa defaults: %+v", c.MFA)
	}
	if c.Flow.InteractionTTL != 10*time.Minute {
		t.Fatalf("ttl default: %v", c.Flow.InteractionTTL)
	}
	if c.Flow.AuthorizationEndpoint != "/auth" {
		t.Fatalf("auth endpoint default: %q", c.Flow.AuthorizationEndpoint)
	}
	if c.Bootstrap.DefaultPool.ID != "default" {
		t.Fatalf("default pool: %q", c.Bootstrap.DefaultPool.ID)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "10.0.0.5:6380")
	t.Setenv("FLOW_INTERACTION_TTL", "30m")
	path := writeYAML(t, "storage:\n  driver: postgres\n  dsn: postgres://x/y\n")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Storage.Driver != "redis" {
		t.Fatalf("env must win over yaml: %q", c.Storage.Driver)
	}
	if c.Storage.Redis.Addr != "10.0.0.5:6380" {
		t.Fatalf("redis addr: %q", c.Storage.Redis.Addr)
	}
	if c.Flow.InteractionTTL != 30*time.Minute {
		t.Fatalf("ttl: %v", c.Flow.InteractionTTL)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "redis")
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if c.Storage.Driver != "redis" || c.Server.Addr != ":8080" {
		t.Fatalf("got %+v", c.Storage)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	path := writeYAML(t, "storage:\n  driver: mongodb\n  dsn: x\n")
	if _, err := Load(path); err == nil {
		t.Fatal("unknown driver must fail validation")
	}
}

func TestBlacklistPathRelativeToYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "storage:\n  dsn: postgres://x/y\nsecurity:\n  password_blacklist_path: lists/common.txt\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := filepath.Join(dir, "lists", "common.txt")
	if c.Security.PasswordBlacklistPath != want {
		t.Fatalf("blacklist path: got %q, want %q", c.Security.PasswordBlacklistPath, want)
	}
}

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
