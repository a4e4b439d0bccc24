package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tmc/langchaingo/llms"
	lcschema "github.com/tmc/langchaingo/schema"

	"github.com/zhouzirui/sahayak/backend/internal/model/persona"
)

type recordingChatModel struct {
	reply string
	err   error
	input []*schema.Message
}

func (m *recordingChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.input = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *recordingChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *recordingChatModel) BindTools(_ []*schema.ToolInfo) error { return nil }

func aanya(t *testing.T) persona.Persona {
	t.Helper()
	p, ok := persona.Resolve(persona.NewMemoryStore(persona.Seed()), persona.DefaultID)
	if !ok {
		t.Fatal("default persona missing")
	}
	return p
}

func TestServiceGenerateOrdersMessages(t *testing.T) {
	fake := &recordingChatModel{reply: "I'm here for you."}
	svc, err := NewService(context.Background(), fake, aanya(t), Options{})
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}

	history := []*schema.Message{
		schema.UserMessage("hi"),
		schema.AssistantMessage("hello!", nil),
	}
	reply, err := svc.Generate(context.Background(), history, "context\n\nUser: I {still} feel low")
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if reply != "I'm here for you." {
		t.Fatalf("unexpected reply %q", reply)
	}

	if len(fake.input) != 4 {
		t.Fatalf("expected system + 2 history + input, got %d", len(fake.input))
	}
	if fake.input[0].Role != schema.System || !strings.Contains(fake.input[0].Content, "You are Aanya") {
		t.Fatalf("unexpected system message: %+v", fake.input[0])
	}
	if fake.input[1].Content != "hi" || fake.input[2].Role != schema.Assistant {
		t.Fatalf("history out of order: %+v", fake.input[1:3])
	}
	if fake.input[3].Content != "context\n\nUser: I {still} feel low" {
		t.Fatalf("user input altered: %q", fake.input[3].Content)
	}
}

func TestServiceGenerateErrors(t *testing.T) {
	if _, err := NewService(context.Background(), nil, aanya(t), Options{}); !errors.Is(err, ErrModelRequired) {
		t.Fatalf("expected ErrModelRequired, got %v", err)
	}

	fake := &recordingChatModel{err: errors.New("boom")}
	svc, err := NewService(context.Background(), fake, aanya(t), Options{})
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	if _, err := svc.Generate(context.Background(), nil, "hi"); err == nil {
		t.Fatal("expected model error to surface")
	}

	fake.err = nil
	fake.reply = "   "
	if _, err := svc.Generate(context.Background(), nil, "hi"); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
}

func TestTrimHistoryKeepsNewest(t *testing.T) {
	messages := []*schema.Message{
		schema.SystemMessage("old system"),
		schema.UserMessage("1"),
		schema.AssistantMessage("2", nil),
		schema.UserMessage("3"),
	}
	got := trimHistory(messages, 2)
	if len(got) != 2 || got[0].Content != "2" || got[1].Content != "3" {
		t.Fatalf("unexpected trim result: %+v", got)
	}

	got = trimHistory(messages, 10)
	if len(got) != 3 {
		t.Fatalf("system messages should be dropped, got %d", len(got))
	}
}

func TestBuildSystemPromptFallsBackForUnknownPersona(t *testing.T) {
	prompt := NewPersonaPromptManager().BuildSystemPrompt(persona.Persona{
		ID:    "other",
		Name:  "Mira",
		Title: "Peer Listener",
		Tone:  "gentle",
	})
	if !strings.HasPrefix(prompt, "You are Mira, peer listener.") {
		t.Fatalf("unexpected fallback prompt: %s", prompt)
	}
}

type fakeLLM struct {
	messages []llms.MessageContent
	reply    string
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangchainServiceGenerate(t *testing.T) {
	llm := &fakeLLM{reply: "Achha, tell me more."}
	svc, err := NewLangchainService(llm, aanya(t), OpenAIConfig{}, Options{})
	if err != nil {
		t.Fatalf("NewLangchainService err: %v", err)
	}

	reply, err := svc.Generate(context.Background(), []*schema.Message{
		schema.UserMessage("hi"),
		schema.AssistantMessage("hello", nil),
	}, "exam tomorrow")
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if reply != "Achha, tell me more." {
		t.Fatalf("unexpected reply %q", reply)
	}

	roles := make([]lcschema.ChatMessageType, len(llm.messages))
	for i, m := range llm.messages {
		roles[i] = m.Role
	}
	want := []lcschema.ChatMessageType{lcschema.ChatMessageTypeSystem, lcschema.ChatMessageTypeHuman, lcschema.ChatMessageTypeAI, lcschema.ChatMessageTypeHuman}
	if len(roles) != len(want) {
		t.Fatalf("unexpected message count %d", len(roles))
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("role %d: got %s want %s", i, roles[i], want[i])
		}
	}
}
