package llm

import (
	"context"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Generator-facing roles for context turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	// Last N context turns actually submitted to the provider. The storage
	// read cap in the chat service is wider; this bound controls token spend.
	maxContextTurns = 10
	// The latest user text is cut to this many runes before submission,
	// independent of the 4000-rune request validation limit.
	maxUserTextRunes = 1000
	// Hard ceiling on context tokens; oldest turns are dropped first.
	maxContextTokens = 2000

	generationTimeout = 30 * time.Second
	temperature       = 0.2
	maxOutputTokens   = 300
)

const personaPrompt = `You are the support assistant for the Shopdesk online store.

Store facts you may rely on:
- Standard shipping takes 3-5 business days; express shipping takes 1-2 business days.
- Orders can be returned within 30 days of delivery if unused and in original packaging.
- Refunds are issued to the original payment method within 5-10 business days of us receiving the return.
- Human support is available Mon-Fri 9:00-18:00 at support@shopdesk.example.

Answer briefly and politely. If a question is outside these store topics, or you
are not certain of the answer, do not guess: tell the customer to contact
support@shopdesk.example instead.`

// Fixed replies used when generation cannot succeed. The chat flow treats
// these as a normal assistant turn.
const (
	fallbackUnavailable = "Sorry, our assistant is temporarily unavailable. " +
		"Please email support@shopdesk.example (Mon-Fri 9:00-18:00) and we'll help you right away."
	fallbackNoAnswer = "Sorry, I couldn't come up with an answer for that. " +
		"Please reach our support team at support@shopdesk.example (Mon-Fri 9:00-18:00)."
)

// Turn is one context-window entry handed to the generator.
type Turn struct {
	Role string
	Text string
}

// Generator produces an assistant reply. Reply is a total function: it never
// fails, every error path yields a fixed fallback string.
type Generator interface {
	Reply(ctx context.Context, history []Turn, userText string) string
}

// New builds the provider-backed generator, or a fallback-only one when no
// credential is configured. Absence of the credential is not an error; the
// service keeps running in degraded mode.
func New(baseURL, token, model string, logger *zap.Logger) Generator {
	if token == "" {
		logger.Warn("no provider credential configured, replies will use fallback text")
		return &fallbackGenerator{}
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		logger.Error("failed to initialize provider client, replies will use fallback text", zap.Error(err))
		return &fallbackGenerator{}
	}

	var encoder *tiktoken.Tiktoken
	if enc, err := tiktoken.GetEncoding("cl100k_base"); err != nil {
		logger.Warn("tokenizer unavailable, token accounting disabled", zap.Error(err))
	} else {
		encoder = enc
	}

	return &openaiGenerator{llm: client, encoder: encoder, logger: logger}
}

type openaiGenerator struct {
	llm     llms.Model
	encoder *tiktoken.Tiktoken
	logger  *zap.Logger
}

func (g *openaiGenerator) Reply(ctx context.Context, history []Turn, userText string) string {
	userText = truncateRunes(userText, maxUserTextRunes)
	history = g.boundContext(history, userText)

	content := make([]llms.MessageContent, 0, len(history)+2)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, personaPrompt))
	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, turn.Text))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, userText))

	ctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	resp, err := g.llm.GenerateContent(ctx, content,
		llms.WithTemperature(temperature),
		llms.WithMaxTokens(maxOutputTokens),
	)
	if err != nil {
		g.logger.Warn("generation failed, using fallback reply", zap.Error(err))
		return fallbackUnavailable
	}
	if len(resp.Choices) == 0 {
		g.logger.Warn("provider returned no choices, using fallback reply")
		return fallbackNoAnswer
	}

	reply := strings.TrimSpace(resp.Choices[0].Content)
	if reply == "" {
		g.logger.Warn("provider returned empty completion, using fallback reply")
		return fallbackNoAnswer
	}
	return reply
}

// boundContext applies the turn cap, then the token ceiling, dropping oldest
// turns first so the most recent exchange always survives.
func (g *openaiGenerator) boundContext(history []Turn, userText string) []Turn {
	if len(history) > maxContextTurns {
		history = history[len(history)-maxContextTurns:]
	}
	if g.encoder == nil {
		return history
	}

	budget := maxContextTokens - g.countTokens(personaPrompt) - g.countTokens(userText)
	total := 0
	for _, turn := range history {
		total += g.countTokens(turn.Text)
	}
	for total > budget && len(history) > 0 {
		total -= g.countTokens(history[0].Text)
		history = history[1:]
	}

	g.logger.Debug("assembled generation context",
		zap.Int("turns", len(history)),
		zap.Int("context_tokens", total))
	return history
}

func (g *openaiGenerator) countTokens(text string) int {
	return len(g.encoder.Encode(text, nil, nil))
}

type fallbackGenerator struct{}

func (*fallbackGenerator) Reply(context.Context, []Turn, string) string {
	return fallbackUnavailable
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
