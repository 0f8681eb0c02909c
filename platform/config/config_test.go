package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/leadflow")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("WEBHOOK_SECRET", "secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.NoResponseWindow != 2*time.Hour {
		t.Errorf("NoResponseWindow = %v, want 2h", cfg.NoResponseWindow)
	}
	if cfg.RateLimitPerSender != 30 || cfg.RateLimitGlobal != 100 {
		t.Errorf("rate limits = %d/%d, want 30/100", cfg.RateLimitPerSender, cfg.RateLimitGlobal)
	}
	if cfg.CostLimitMicros != 20_000_000 {
		t.Errorf("CostLimitMicros = %d, want 20000000", cfg.CostLimitMicros)
	}
	if cfg.MaxFollowUpAttempts != 3 {
		t.Errorf("MaxFollowUpAttempts = %d, want 3", cfg.MaxFollowUpAttempts)
	}
}

func TestLoadRejectsMissingRequiredSettings(t *testing.T) {
	setRequired(t)
	t.Setenv("WEBHOOK_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted an empty WEBHOOK_SECRET")
	}
}

// Malformed numeric and duration values parse to zero; a zero policy
// would fire timeouts on the next scan or reject every event, so Load
// must refuse them.
func TestLoadRejectsMalformedPolicyValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"malformed response window", "NO_RESPONSE_WINDOW", "two hours"},
		{"zero per-phone limit", "RATE_LIMIT_PER_PHONE", "0"},
		{"malformed global limit", "RATE_LIMIT_GLOBAL", "lots"},
		{"malformed scheduler interval", "SCHEDULER_INTERVAL", "5 minutes"},
		{"negative idempotency ttl", "IDEMPOTENCY_TTL", "-1h"},
		{"malformed attempt ceiling", "MAX_FOLLOWUP_ATTEMPTS", "abc"},
		{"malformed lead age", "LEAD_MAX_AGE", "7d"},
		{"malformed provider timeout", "OPENAI_TIMEOUT", "3seconds"},
		{"zero max tokens", "OPENAI_MAX_TOKENS", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.value)

			if _, err := Load(); err == nil {
				t.Fatalf("Load() accepted %s=%q", tc.key, tc.value)
			}
		})
	}
}
