package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"leadflow_backend/platform/logger"
)

type testOpenAIConfig struct {
	promptVersion string
}

func (c testOpenAIConfig) GetOpenAIAPIKey() string         { return "sk-test" }
func (c testOpenAIConfig) GetOpenAIModel() string          { return "gpt-4o-mini" }
func (c testOpenAIConfig) GetOpenAIMaxTokens() int64       { return 500 }
func (c testOpenAIConfig) GetOpenAITemperature() float64   { return 0.7 }
func (c testOpenAIConfig) GetOpenAITimeout() time.Duration { return 3 * time.Second }
func (c testOpenAIConfig) GetPromptVersion() string        { return c.promptVersion }

func TestNewResponderResolvesPrompt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "v2.txt"), []byte("prompt v2"), 0o600); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "custom.txt")
	if err := os.WriteFile(file, []byte("custom prompt"), 0o600); err != nil {
		t.Fatal(err)
	}
	log := logger.New("test")

	tests := []struct {
		name       string
		version    string
		promptPath string
		want       string
	}{
		{"empty path keeps built-in prompt", "v1.0", "", defaultSystemPrompt},
		{"file path overrides prompt", "v1.0", file, "custom prompt"},
		{"directory resolves by version", "v2", dir, "prompt v2"},
		{"missing version falls back to built-in", "v9", dir, defaultSystemPrompt},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResponder(testOpenAIConfig{promptVersion: tc.version}, tc.promptPath, log)
			if r.systemPrompt != tc.want {
				t.Errorf("systemPrompt = %q, want %q", r.systemPrompt, tc.want)
			}
		})
	}
}

func TestEstimateCostMicros(t *testing.T) {
	tests := []struct {
		tokensIn  int
		tokensOut int
		want      int64
	}{
		{0, 0, 0},
		{1000, 0, 150},
		{0, 1000, 600},
		{1000, 1000, 750},
		{100, 300, 195},  // 15 + 180
		{2000, 500, 600}, // 300 + 300
	}

	for _, tc := range tests {
		if got := EstimateCostMicros(tc.tokensIn, tc.tokensOut); got != tc.want {
			t.Errorf("EstimateCostMicros(%d, %d) = %d, want %d", tc.tokensIn, tc.tokensOut, got, tc.want)
		}
	}
}
