// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides settings for Redis-backed components
// (idempotency set, scheduler queue).
type RedisConfig interface {
	GetRedisURL() string
}

// WebhookConfig provides settings for the inbound webhook gate.
type WebhookConfig interface {
	GetWebhookSecret() string
	GetIdempotencyTTL() time.Duration
}

// RateLimitConfig provides settings for the ingestion rate limiter.
type RateLimitConfig interface {
	GetRateLimitPerSender() int
	GetRateLimitGlobal() int
}

// OpenAIConfig provides settings for the generation provider.
type OpenAIConfig interface {
	GetOpenAIAPIKey() string
	GetOpenAIModel() string
	GetOpenAIMaxTokens() int64
	GetOpenAITemperature() float64
	GetOpenAITimeout() time.Duration
	GetPromptVersion() string
}

// BudgetConfig provides settings for the monthly spend enforcer.
// The limit is in micro-dollars (1e-6 USD) so fractional per-call
// provider costs accumulate without rounding loss.
type BudgetConfig interface {
	GetCostLimitMicros() int64
}

// FollowUpConfig provides the lead lifecycle timing policy.
type FollowUpConfig interface {
	GetNoResponseWindow() time.Duration
	GetReengageInterval() time.Duration
	GetMaxFollowUpAttempts() int
	GetLeadMaxAge() time.Duration
}

// RegionConfig provides the eligibility region sets.
type RegionConfig interface {
	GetEligibleRegions() []string
	GetInterestRegions() []string
}

// SchedulerConfig provides settings for the SLA scheduler worker.
type SchedulerConfig interface {
	RedisConfig
	GetSchedulerInterval() time.Duration
}

// EvolutionConfig provides settings for the outbound messaging gateway.
type EvolutionConfig interface {
	GetEvolutionURL() string
	GetEvolutionAPIKey() string
	GetEvolutionInstanceID() string
}

// SMTPConfig provides settings for alert email delivery.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUser() string
	GetSMTPPass() string
	GetSMTPFrom() string
	GetAlertEmail() string
	GetEmailEnabled() bool
}

// JWTConfig provides JWT validation settings for admin middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSOrigins() []string
	GetCORSAllowAll() bool
	GetHTTPRateLimitPerIP() float64
	GetHTTPRateLimitBurst() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	DatabaseURL           string
	RedisURL              string
	WebhookSecret         string
	JWTAccessSecret       string
	IdempotencyTTL        time.Duration
	RateLimitPerSender    int
	RateLimitGlobal       int
	OpenAIAPIKey          string
	OpenAIModel           string
	OpenAIMaxTokens       int64
	OpenAITemperature     float64
	OpenAITimeout         time.Duration
	PromptVersion         string
	SystemPromptPath      string
	CostLimitMicros       int64
	NoResponseWindow      time.Duration
	ReengageInterval      time.Duration
	MaxFollowUpAttempts   int
	LeadMaxAge            time.Duration
	SchedulerInterval     time.Duration
	EligibleRegions       []string
	InterestRegions       []string
	EvolutionURL          string
	EvolutionAPIKey       string
	EvolutionInstanceID   string
	SMTPHost              string
	SMTPPort              int
	SMTPUser              string
	SMTPPass              string
	SMTPFrom              string
	AlertEmail            string
	EmailEnabled          bool
	CORSOrigins           []string
	CORSAllowAll          bool
	HTTPRateLimitPerIP    float64
	HTTPRateLimitBurst    int
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

func (c *Config) GetRedisURL() string { return c.RedisURL }

func (c *Config) GetWebhookSecret() string          { return c.WebhookSecret }
func (c *Config) GetIdempotencyTTL() time.Duration  { return c.IdempotencyTTL }
func (c *Config) GetRateLimitPerSender() int        { return c.RateLimitPerSender }
func (c *Config) GetRateLimitGlobal() int           { return c.RateLimitGlobal }

func (c *Config) GetOpenAIAPIKey() string           { return c.OpenAIAPIKey }
func (c *Config) GetOpenAIModel() string            { return c.OpenAIModel }
func (c *Config) GetOpenAIMaxTokens() int64         { return c.OpenAIMaxTokens }
func (c *Config) GetOpenAITemperature() float64     { return c.OpenAITemperature }
func (c *Config) GetOpenAITimeout() time.Duration   { return c.OpenAITimeout }
func (c *Config) GetPromptVersion() string          { return c.PromptVersion }
func (c *Config) GetCostLimitMicros() int64         { return c.CostLimitMicros }

func (c *Config) GetNoResponseWindow() time.Duration { return c.NoResponseWindow }
func (c *Config) GetReengageInterval() time.Duration { return c.ReengageInterval }
func (c *Config) GetMaxFollowUpAttempts() int        { return c.MaxFollowUpAttempts }
func (c *Config) GetLeadMaxAge() time.Duration       { return c.LeadMaxAge }

func (c *Config) GetSchedulerInterval() time.Duration { return c.SchedulerInterval }

func (c *Config) GetEligibleRegions() []string { return c.EligibleRegions }
func (c *Config) GetInterestRegions() []string { return c.InterestRegions }

func (c *Config) GetEvolutionURL() string        { return c.EvolutionURL }
func (c *Config) GetEvolutionAPIKey() string     { return c.EvolutionAPIKey }
func (c *Config) GetEvolutionInstanceID() string { return c.EvolutionInstanceID }

func (c *Config) GetSMTPHost() string   { return c.SMTPHost }
func (c *Config) GetSMTPPort() int      { return c.SMTPPort }
func (c *Config) GetSMTPUser() string   { return c.SMTPUser }
func (c *Config) GetSMTPPass() string   { return c.SMTPPass }
func (c *Config) GetSMTPFrom() string   { return c.SMTPFrom }
func (c *Config) GetAlertEmail() string { return c.AlertEmail }
func (c *Config) GetEmailEnabled() bool { return c.EmailEnabled }

func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string            { return c.HTTPAddr }
func (c *Config) GetCORSOrigins() []string       { return c.CORSOrigins }
func (c *Config) GetCORSAllowAll() bool          { return c.CORSAllowAll }
func (c *Config) GetHTTPRateLimitPerIP() float64 { return c.HTTPRateLimitPerIP }
func (c *Config) GetHTTPRateLimitBurst() int     { return c.HTTPRateLimitBurst }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "*"))
	corsAllowAll := containsWildcard(corsOrigins)

	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")
	smtpHost := getEnv("SMTP_HOST", "smtp.gmail.com")

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		WebhookSecret:         getEnv("WEBHOOK_SECRET", ""),
		JWTAccessSecret:       getEnv("JWT_ACCESS_SECRET", ""),
		IdempotencyTTL:        mustDuration(getEnv("IDEMPOTENCY_TTL", "24h")),
		RateLimitPerSender:    mustInt(getEnv("RATE_LIMIT_PER_PHONE", "30")),
		RateLimitGlobal:       mustInt(getEnv("RATE_LIMIT_GLOBAL", "100")),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIMaxTokens:       int64(mustInt(getEnv("OPENAI_MAX_TOKENS", "500"))),
		OpenAITemperature:     mustFloat(getEnv("OPENAI_TEMPERATURE", "0.7")),
		OpenAITimeout:         mustDuration(getEnv("OPENAI_TIMEOUT", "3s")),
		PromptVersion:         getEnv("PROMPT_VERSION", "v1.0"),
		SystemPromptPath:      getEnv("SYSTEM_PROMPT_PATH", ""),
		CostLimitMicros:       int64(mustFloat(getEnv("OPENAI_COST_LIMIT_MONTHLY", "20.0")) * 1_000_000),
		NoResponseWindow:      mustDuration(getEnv("NO_RESPONSE_WINDOW", "2h")),
		ReengageInterval:      mustDuration(getEnv("REENGAGE_INTERVAL", "4h")),
		MaxFollowUpAttempts:   mustInt(getEnv("MAX_FOLLOWUP_ATTEMPTS", "3")),
		LeadMaxAge:            mustDuration(getEnv("LEAD_MAX_AGE", "168h")),
		SchedulerInterval:     mustDuration(getEnv("SCHEDULER_INTERVAL", "5m")),
		EligibleRegions:       splitCSV(getEnv("ELIGIBLE_REGIONS", "RS,SC,PR,SP,RJ,MG,ES,GO,MT,MS,DF")),
		InterestRegions:       splitCSV(getEnv("INTEREST_REGIONS", "BA,PE,CE,RN,PB,AL,SE,PI,MA,AP,AM,RR,AC,TO")),
		EvolutionURL:          getEnv("EVOLUTION_API_URL", ""),
		EvolutionAPIKey:       getEnv("EVOLUTION_API_KEY", ""),
		EvolutionInstanceID:   getEnv("EVOLUTION_INSTANCE_ID", ""),
		SMTPHost:              smtpHost,
		SMTPPort:              mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUser:              getEnv("SMTP_USER", ""),
		SMTPPass:              getEnv("SMTP_PASS", ""),
		SMTPFrom:              getEnv("SMTP_FROM", ""),
		AlertEmail:            getEnv("ALERT_EMAIL", ""),
		EmailEnabled:          emailEnabled,
		CORSOrigins:           corsOrigins,
		CORSAllowAll:          corsAllowAll,
		HTTPRateLimitPerIP:    mustFloat(getEnv("HTTP_RATE_LIMIT_PER_IP", "10")),
		HTTPRateLimitBurst:    mustInt(getEnv("HTTP_RATE_LIMIT_BURST", "20")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.CostLimitMicros <= 0 {
		return nil, fmt.Errorf("OPENAI_COST_LIMIT_MONTHLY must be positive")
	}
	// A malformed duration or count parses to zero; loading with a zero
	// policy would fire timeouts on the next scan or reject every event.
	if cfg.IdempotencyTTL <= 0 {
		return nil, fmt.Errorf("IDEMPOTENCY_TTL must be a positive duration")
	}
	if cfg.RateLimitPerSender <= 0 || cfg.RateLimitGlobal <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_PHONE and RATE_LIMIT_GLOBAL must be positive")
	}
	if cfg.NoResponseWindow <= 0 || cfg.ReengageInterval <= 0 || cfg.LeadMaxAge <= 0 {
		return nil, fmt.Errorf("NO_RESPONSE_WINDOW, REENGAGE_INTERVAL and LEAD_MAX_AGE must be positive durations")
	}
	if cfg.MaxFollowUpAttempts <= 0 {
		return nil, fmt.Errorf("MAX_FOLLOWUP_ATTEMPTS must be positive")
	}
	if cfg.SchedulerInterval <= 0 {
		return nil, fmt.Errorf("SCHEDULER_INTERVAL must be a positive duration")
	}
	if cfg.OpenAITimeout <= 0 || cfg.OpenAIMaxTokens <= 0 {
		return nil, fmt.Errorf("OPENAI_TIMEOUT and OPENAI_MAX_TOKENS must be positive")
	}
	if cfg.HTTPRateLimitPerIP <= 0 || cfg.HTTPRateLimitBurst <= 0 {
		return nil, fmt.Errorf("HTTP_RATE_LIMIT_PER_IP and HTTP_RATE_LIMIT_BURST must be positive")
	}
	if cfg.EmailEnabled && cfg.AlertEmail == "" {
		cfg.EmailEnabled = false
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
