package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// fakeModel captures the submitted messages and returns a canned response.
type fakeModel struct {
	reply    string
	err      error
	received []llms.MessageContent
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	f.received = messages
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.reply}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return f.reply, f.err
}

func textOf(t *testing.T, mc llms.MessageContent) string {
	t.Helper()
	part, ok := mc.Parts[0].(llms.TextContent)
	if !ok {
		t.Fatalf("unexpected part type %T", mc.Parts[0])
	}
	return part.Text
}

func TestNewWithoutCredentialIsFallbackOnly(t *testing.T) {
	gen := New("", "", "gpt-4o-mini", zap.NewNop())

	reply := gen.Reply(context.Background(), nil, "where is my order?")
	if reply != fallbackUnavailable {
		t.Errorf("got %q, want the unavailable fallback", reply)
	}
}

func TestReplyUsesCompletion(t *testing.T) {
	fake := &fakeModel{reply: "  Standard shipping takes 3-5 business days.  "}
	gen := &openaiGenerator{llm: fake, logger: zap.NewNop()}

	reply := gen.Reply(context.Background(), nil, "how long does shipping take?")
	if reply != "Standard shipping takes 3-5 business days." {
		t.Errorf("got %q", reply)
	}

	// system persona + latest user text
	if len(fake.received) != 2 {
		t.Fatalf("got %d messages, want 2", len(fake.received))
	}
	if fake.received[0].Role != llms.ChatMessageTypeSystem {
		t.Errorf("first message role %q, want system", fake.received[0].Role)
	}
	if got := textOf(t, fake.received[1]); got != "how long does shipping take?" {
		t.Errorf("latest user text %q", got)
	}
}

func TestReplyProviderErrorFallsBack(t *testing.T) {
	fake := &fakeModel{err: errors.New("connection refused")}
	gen := &openaiGenerator{llm: fake, logger: zap.NewNop()}

	reply := gen.Reply(context.Background(), nil, "hello")
	if reply != fallbackUnavailable {
		t.Errorf("got %q, want the unavailable fallback", reply)
	}
}

func TestReplyEmptyCompletionFallsBack(t *testing.T) {
	fake := &fakeModel{reply: "   "}
	gen := &openaiGenerator{llm: fake, logger: zap.NewNop()}

	reply := gen.Reply(context.Background(), nil, "hello")
	if reply != fallbackNoAnswer {
		t.Errorf("got %q, want the no-answer fallback", reply)
	}
}

func TestReplyTruncatesUserText(t *testing.T) {
	fake := &fakeModel{reply: "ok"}
	gen := &openaiGenerator{llm: fake, logger: zap.NewNop()}

	long := strings.Repeat("ü", 3000)
	gen.Reply(context.Background(), nil, long)

	sent := textOf(t, fake.received[len(fake.received)-1])
	if got := utf8.RuneCountInString(sent); got != maxUserTextRunes {
		t.Errorf("submitted user text has %d runes, want %d", got, maxUserTextRunes)
	}
	if !strings.HasPrefix(long, sent) {
		t.Error("truncated text is not a prefix of the input")
	}
}

func TestReplyMapsHistoryRoles(t *testing.T) {
	fake := &fakeModel{reply: "ok"}
	gen := &openaiGenerator{llm: fake, logger: zap.NewNop()}

	history := []Turn{
		{Role: RoleUser, Text: "do you ship abroad?"},
		{Role: RoleAssistant, Text: "We ship within the country only."},
	}
	gen.Reply(context.Background(), history, "what about express?")

	if len(fake.received) != 4 {
		t.Fatalf("got %d messages, want 4", len(fake.received))
	}
	if fake.received[1].Role != llms.ChatMessageTypeHuman {
		t.Errorf("history user turn sent as %q", fake.received[1].Role)
	}
	if fake.received[2].Role != llms.ChatMessageTypeAI {
		t.Errorf("history assistant turn sent as %q", fake.received[2].Role)
	}
}

func TestBoundContextKeepsMostRecentTurns(t *testing.T) {
	gen := &openaiGenerator{logger: zap.NewNop()}

	var history []Turn
	for i := 0; i < 50; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		history = append(history, Turn{Role: role, Text: strings.Repeat("x", i+1)})
	}

	bounded := gen.boundContext(history, "latest")
	if len(bounded) != maxContextTurns {
		t.Fatalf("got %d turns, want %d", len(bounded), maxContextTurns)
	}
	for i, turn := range bounded {
		want := history[len(history)-maxContextTurns+i]
		if turn != want {
			t.Errorf("position %d: got %+v, want %+v", i, turn, want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 3); got != "hél" {
		t.Errorf("got %q, want hél", got)
	}
	if got := truncateRunes("short", 10); got != "short" {
		t.Errorf("got %q, want short", got)
	}
}
