// Package agent wraps the language-generation provider used to produce
// qualification replies. Callers gate every request behind the budget
// enforcer and degrade to FallbackNotice on any provider failure.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

// FallbackNotice is sent instead of a generated reply when the provider
// fails, times out, or the monthly budget is exhausted.
const FallbackNotice = "Obrigado pela sua mensagem! Em breve um de nossos consultores entrará em contato com você."

// Pricing in micro-dollars per 1K tokens (gpt-4o-mini).
const (
	inputPricePer1K  = 150
	outputPricePer1K = 600
)

// historyWindow bounds how many past turns are replayed to the provider.
const historyWindow = 10

const defaultSystemPrompt = `Você é um assistente de qualificação de leads para uma rede de franquias.
Seu objetivo é coletar, de forma cordial e objetiva, quatro informações do interessado:
nome, estado (UF), interesse principal e disponibilidade para uma conversa.
Responda sempre em português, em no máximo três frases, e faça uma pergunta por vez.`

// Reply is the outcome of one successful provider call.
type Reply struct {
	Text        string
	TokensIn    int
	TokensOut   int
	TokensTotal int
	CostMicros  int64
	LatencyMs   int64
}

// Responder produces conversational replies through the OpenAI API.
type Responder struct {
	client       openai.Client
	cfg          config.OpenAIConfig
	log          *logger.Logger
	systemPrompt string
}

// NewResponder creates a responder. When promptPath names a file, its
// contents override the built-in system prompt; when it names a
// directory, the file for the configured prompt version
// (<dir>/<version>.txt) is loaded instead.
func NewResponder(cfg config.OpenAIConfig, promptPath string, log *logger.Logger) *Responder {
	prompt := defaultSystemPrompt
	if promptPath != "" {
		path := promptPath
		if info, err := os.Stat(promptPath); err == nil && info.IsDir() {
			path = filepath.Join(promptPath, cfg.GetPromptVersion()+".txt")
		}
		if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
			prompt = string(data)
		} else if err != nil {
			log.Warn("system prompt file unreadable, using built-in prompt",
				"path", path, "error", err)
		}
	}

	return &Responder{
		client:       openai.NewClient(option.WithAPIKey(cfg.GetOpenAIAPIKey())),
		cfg:          cfg,
		log:          log,
		systemPrompt: prompt,
	}
}

// Generate produces a reply for the inbound text given the lead's recent
// conversation history. The call is bounded by the configured timeout;
// errors and timeouts are returned for the caller's fallback path and
// must not be charged to the budget.
func (r *Responder) Generate(ctx context.Context, lead *domain.Lead, history []domain.ConversationTurn, inboundText string) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.GetOpenAITimeout())
	defer cancel()

	messages := r.buildMessages(history, inboundText)

	start := time.Now()
	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               openai.ChatModel(r.cfg.GetOpenAIModel()),
		Temperature:         openai.Float(r.cfg.GetOpenAITemperature()),
		MaxCompletionTokens: openai.Int(r.cfg.GetOpenAIMaxTokens()),
	})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}

	tokensIn := int(resp.Usage.PromptTokens)
	tokensOut := int(resp.Usage.CompletionTokens)
	reply := &Reply{
		Text:        resp.Choices[0].Message.Content,
		TokensIn:    tokensIn,
		TokensOut:   tokensOut,
		TokensTotal: int(resp.Usage.TotalTokens),
		CostMicros:  EstimateCostMicros(tokensIn, tokensOut),
		LatencyMs:   latency,
	}

	r.log.ProviderCall(lead.ID.String(), reply.TokensTotal, reply.LatencyMs, reply.CostMicros)
	return reply, nil
}

func (r *Responder) buildMessages(history []domain.ConversationTurn, inboundText string) []openai.ChatCompletionMessageParamUnion {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2*len(history)+2)
	messages = append(messages, openai.SystemMessage(r.systemPrompt))
	for _, turn := range history {
		if turn.InboundText != "" {
			messages = append(messages, openai.UserMessage(turn.InboundText))
		}
		if turn.OutboundText != "" {
			messages = append(messages, openai.AssistantMessage(turn.OutboundText))
		}
	}
	messages = append(messages, openai.UserMessage(inboundText))
	return messages
}

// EstimateCostMicros converts token usage to micro-dollars using the
// per-1K-token prices above.
func EstimateCostMicros(tokensIn, tokensOut int) int64 {
	return int64(tokensIn)*inputPricePer1K/1000 + int64(tokensOut)*outputPricePer1K/1000
}
