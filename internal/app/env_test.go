package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvFiles_LoadsKeyValues(t *testing.T) {
	t.Setenv("FOO", "")
	t.Setenv("BAR", "")

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "\n# sample dotenv file\nFOO=alpha\nBAR=beta\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}

	if err := LoadEnvFiles(envPath); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	if got := os.Getenv("FOO"); got != "alpha" {
		t.Fatalf("FOO=%q, want alpha", got)
	}
	if got := os.Getenv("BAR"); got != "beta" {
		t.Fatalf("BAR=%q, want beta", got)
	}
}

// Later files override earlier ones when loading multiple dotenv files.
func TestLoadEnvFiles_OverrideOrder(t *testing.T) {
	t.Setenv("K", "")
	dir := t.TempDir()
	a := filepath.Join(dir, ".env.a")
	b := filepath.Join(dir, ".env.b")
	if err := os.WriteFile(a, []byte("K=first\n"), 0o600); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(b, []byte("K=second\n"), 0o600); err != nil {
		t.Fatalf("write b: %v", err)
	}

	if err := LoadEnvFiles(a, b); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	if got := os.Getenv("K"); got != "second" {
		t.Fatalf("override order failed: got %q, want second", got)
	}
}

func TestLoadEnvFiles_MissingFileSkipped(t *testing.T) {
	if err := LoadEnvFiles(filepath.Join(t.TempDir(), "absent.env"), ""); err != nil {
		t.Fatalf("missing file should be skipped, got %v", err)
	}
}

func TestApplyEnvToConfig_FromEnv(t *testing.T) {
	t.Setenv("SEARX_URL", "")
	t.Setenv("SEARXNG_URL", "http://searxng.example")
	t.Setenv("CACHE_DIR", "/tmp/serpctx-cache")
	t.Setenv("CACHE_TTL", "3600")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("JUDGE_API_KEY", "judge-key")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "25")
	t.Setenv("VERBOSE", "yes")

	cfg := Config{ListenAddr: ":9000"}
	t.Setenv("LISTEN_ADDR", ":7000")
	ApplyEnvToConfig(&cfg)

	if cfg.SearxURL != "http://searxng.example" {
		t.Fatalf("SearxURL=%q, want fallback from SEARXNG_URL", cfg.SearxURL)
	}
	if cfg.CacheDir != "/tmp/serpctx-cache" {
		t.Fatalf("CacheDir=%q", cfg.CacheDir)
	}
	if cfg.CacheTTL != time.Hour {
		t.Fatalf("CacheTTL=%s, want 1h", cfg.CacheTTL)
	}
	if cfg.JudgeAPIKey != "judge-key" {
		t.Fatalf("JudgeAPIKey=%q", cfg.JudgeAPIKey)
	}
	if cfg.RateLimitPerMinute != 25 || !cfg.Verbose {
		t.Fatalf("unexpected limits %+v", cfg)
	}
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("explicit value must win over env, got %q", cfg.ListenAddr)
	}
}

func TestApplyEnvOverrides_WinsOverFile(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://env:6379/0")
	t.Setenv("CACHE_TTL", "6h")
	t.Setenv("SSL_VERIFY", "false")

	cfg := Config{RedisURL: "redis://file:6379/0", CacheTTL: time.Minute, SSLVerify: true}
	ApplyEnvOverrides(&cfg)
	if cfg.RedisURL != "redis://env:6379/0" {
		t.Fatalf("RedisURL=%q", cfg.RedisURL)
	}
	if cfg.CacheTTL != 6*time.Hour {
		t.Fatalf("CacheTTL=%s", cfg.CacheTTL)
	}
	if cfg.SSLVerify {
		t.Fatalf("SSL_VERIFY=false should disable verification")
	}
}

func TestEnvDuration_Invalid(t *testing.T) {
	t.Setenv("CACHE_TTL", "soon")
	if _, ok := envDuration("CACHE_TTL"); ok {
		t.Fatalf("expected invalid duration to be ignored")
	}
}
