package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("default http_port = %d", cfg.Server.HTTPPort)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("default driver = %s", cfg.Database.Driver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[server]
http_port = 9999
auth_token = "secret"

[database]
driver = "memory"

[engine]
similarity_floor = 0.75
duplicate_threshold = 0.95

[telemetry]
log_level = "debug"
log_format = "json"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9999 {
		t.Errorf("http_port = %d", cfg.Server.HTTPPort)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("driver = %s", cfg.Database.Driver)
	}
	if cfg.Engine.SimilarityFloor != 0.75 {
		t.Errorf("similarity_floor = %v", cfg.Engine.SimilarityFloor)
	}
	if cfg.Engine.DuplicateThreshold != 0.95 {
		t.Errorf("duplicate_threshold = %v", cfg.Engine.DuplicateThreshold)
	}
	// Unset fields keep their defaults.
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("read_timeout = %v", cfg.Server.ReadTimeout)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("http_port = %d", cfg.Server.HTTPPort)
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := Default()
	cfg.Engine.DuplicateThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("threshold above 1 accepted")
	}

	cfg = Default()
	cfg.Database.Driver = "sqlite"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown driver accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POLICYSCOPE_DB_HOST", "db.internal")
	t.Setenv("POLICYSCOPE_HTTP_PORT", "8181")
	t.Setenv("POLICYSCOPE_AUTH_TOKEN", "from-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("host = %s", cfg.Database.Host)
	}
	if cfg.Server.HTTPPort != 8181 {
		t.Errorf("http_port = %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.AuthToken != "from-env" {
		t.Errorf("auth_token = %s", cfg.Server.AuthToken)
	}
}
