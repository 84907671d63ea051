package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, "QD_") {
			t.Setenv(k, "")
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.GitHubAPIURL != "https://api.github.com" {
		t.Errorf("GitHubAPIURL = %q", cfg.GitHubAPIURL)
	}
	if cfg.BuildTimeout != 5*time.Minute {
		t.Errorf("BuildTimeout = %v, want 5m", cfg.BuildTimeout)
	}
	if cfg.UploadConcurrency != 5 || cfg.RetryAttempts != 3 || cfg.RetryDelay != 2*time.Second {
		t.Errorf("transfer defaults = %d/%d/%v", cfg.UploadConcurrency, cfg.RetryAttempts, cfg.RetryDelay)
	}
	if cfg.MultipartThreshold != 10<<20 {
		t.Errorf("MultipartThreshold = %d", cfg.MultipartThreshold)
	}
	if cfg.TargetLock != "none" {
		t.Errorf("TargetLock = %q, want none", cfg.TargetLock)
	}
	if cfg.S3Timeout != 5*time.Minute {
		t.Errorf("S3Timeout = %v, want 5m", cfg.S3Timeout)
	}
	if cfg.S3Bucket != "" {
		t.Errorf("S3Bucket = %q, want empty", cfg.S3Bucket)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("QD_PORT", "9999")
	t.Setenv("QD_S3_BUCKET", "my-site")
	t.Setenv("QD_S3_USE_SSL", "false")
	t.Setenv("QD_BUILD_TIMEOUT", "90s")
	t.Setenv("QD_UPLOAD_CONCURRENCY", "8")
	t.Setenv("QD_TARGET_LOCK", "local")
	t.Setenv("QD_S3_TIMEOUT", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Port)
	}
	if cfg.S3Bucket != "my-site" || cfg.S3UseSSL {
		t.Errorf("S3 = %q ssl=%v", cfg.S3Bucket, cfg.S3UseSSL)
	}
	if cfg.BuildTimeout != 90*time.Second {
		t.Errorf("BuildTimeout = %v", cfg.BuildTimeout)
	}
	if cfg.UploadConcurrency != 8 {
		t.Errorf("UploadConcurrency = %d", cfg.UploadConcurrency)
	}
	if cfg.TargetLock != "local" {
		t.Errorf("TargetLock = %q", cfg.TargetLock)
	}
	if cfg.S3Timeout != 45*time.Second {
		t.Errorf("S3Timeout = %v", cfg.S3Timeout)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "qd.yaml")
	os.WriteFile(path, []byte(`
port: "7000"
s3_bucket: from-file
s3_region: eu-west-1
retry_delay: 500ms
workspace_max_age: 2h
`), 0o644)
	t.Setenv("QD_CONFIG_FILE", path)
	t.Setenv("QD_S3_BUCKET", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "7000" {
		t.Errorf("Port = %q, want file value", cfg.Port)
	}
	if cfg.S3Bucket != "from-env" {
		t.Errorf("S3Bucket = %q, env should win", cfg.S3Bucket)
	}
	if cfg.S3Region != "eu-west-1" {
		t.Errorf("S3Region = %q", cfg.S3Region)
	}
	if cfg.RetryDelay != 500*time.Millisecond || cfg.WorkspaceMaxAge != 2*time.Hour {
		t.Errorf("durations = %v, %v", cfg.RetryDelay, cfg.WorkspaceMaxAge)
	}
	if cfg.UploadConcurrency != 5 {
		t.Errorf("UploadConcurrency = %d, want default", cfg.UploadConcurrency)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"QD_BUILD_TIMEOUT": "soon"}},
		{"bad int", map[string]string{"QD_RETRY_ATTEMPTS": "three"}},
		{"bad bool", map[string]string{"QD_S3_USE_SSL": "maybe"}},
		{"bad lock", map[string]string{"QD_TARGET_LOCK": "etcd"}},
		{"zero concurrency", map[string]string{"QD_UPLOAD_CONCURRENCY": "0"}},
		{"tiny parts", map[string]string{"QD_MULTIPART_THRESHOLD": "1024"}},
		{"zero s3 timeout", map[string]string{"QD_S3_TIMEOUT": "0s"}},
		{"missing file", map[string]string{"QD_CONFIG_FILE": "/nonexistent/qd.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestOrigins(t *testing.T) {
	cfg := &Config{AllowedOrigins: " https://a.example , ,https://b.example"}
	got := cfg.Origins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("Origins() = %v", got)
	}
	if (&Config{}).Origins() != nil {
		t.Error("empty origins should be nil")
	}
}
