package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "CAMPFIN_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "campfin")
	requireMkdirAll(t, sub)

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(sub); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	_ = os.Unsetenv("CAMPFIN_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 env file loaded, got %d", n)
	}
	if got := os.Getenv("CAMPFIN_TEST_ENV_LOAD"); got != "ok" {
		t.Fatalf("expected env var loaded from repo root, got %q", got)
	}
}

func TestETLOptions_Validate(t *testing.T) {
	o := ETLOptions{BatchSize: 100, Timezone: "America/Denver", LockBackend: "", LockTTL: time.Minute}
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if o.LockBackend != "none" {
		t.Fatalf("expected lock backend to default to none, got %q", o.LockBackend)
	}
	if o.Location().String() != "America/Denver" {
		t.Fatalf("unexpected location %s", o.Location())
	}

	bad := []ETLOptions{
		{BatchSize: 0, Timezone: "UTC", LockTTL: time.Minute},
		{BatchSize: 10, Timezone: "UTC", LockBackend: "etcd", LockTTL: time.Minute},
		{BatchSize: 10, Timezone: "Nowhere/Land", LockTTL: time.Minute},
		{BatchSize: 10, Timezone: "UTC", LockTTL: 0},
	}
	for i, o := range bad {
		if err := o.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestLogrusLogLevel(t *testing.T) {
	c := &Configuration{LogLevel: "debug"}
	if c.LogrusLogLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level")
	}
	c.LogLevel = "bogus"
	if c.LogrusLogLevel() != logrus.ErrorLevel {
		t.Fatalf("expected error level fallback")
	}
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
