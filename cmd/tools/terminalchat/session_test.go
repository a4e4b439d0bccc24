package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/sahayak/backend/internal/app"
	"github.com/zhouzirui/sahayak/backend/internal/config"
	"github.com/zhouzirui/sahayak/backend/internal/service/turn"
	"github.com/zhouzirui/sahayak/backend/internal/store"
)

func newTestApp(t *testing.T, sessions store.SessionStore) *app.App {
	t.Helper()
	cfg := &config.Config{
		AI:      config.AIConfig{Provider: config.ProviderArk},
		Emotion: config.EmotionConfig{HistoryLimit: 6, MaxTracked: 50},
		Crisis:  config.CrisisConfig{FailurePolicy: config.FailOpen},
		Turn:    config.TurnConfig{GenerationTimeout: time.Second, Location: time.UTC},
		Store:   config.StoreConfig{Backend: config.StoreMemory},
	}
	a, err := app.New(context.Background(), cfg, nil, app.Options{Store: sessions})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSessionRunsTurnsAndExits(t *testing.T) {
	sessions := store.NewMemoryStore()
	a := newTestApp(t, sessions)

	var out bytes.Buffer
	session := &terminalSession{
		turns:     a.Turns,
		userID:    "cli-user",
		assistant: "Aanya",
		greeting:  "Hi there.",
		in:        strings.NewReader("I feel a bit lonely\n\nhistory\nexit\nnever read\n"),
		out:       &out,
	}
	require.NoError(t, session.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Welcome, cli-user.")
	assert.Contains(t, text, "Aanya: Hi there.")
	assert.Contains(t, text, "Aanya: "+turn.FallbackText)
	assert.Contains(t, text, "You: I feel a bit lonely")
	assert.Contains(t, text, "Take care of yourself")

	record, err := sessions.Get(context.Background(), "cli-user")
	require.NoError(t, err)
	assert.Len(t, record.ChatHistory, 2)
}

func TestSessionWelcomesBackReturningUser(t *testing.T) {
	sessions := store.NewMemoryStore()
	first := newTestApp(t, sessions)
	_, err := first.Turns.Start(context.Background(), "cli-user")
	require.NoError(t, err)
	_, err = first.Turns.HandleTurn(context.Background(), "cli-user", "hello")
	require.NoError(t, err)

	second := newTestApp(t, sessions)
	var out bytes.Buffer
	session := &terminalSession{
		turns:  second.Turns,
		userID: "cli-user",
		in:     strings.NewReader("quit\n"),
		out:    &out,
	}
	require.NoError(t, session.Run(context.Background()))
	assert.Contains(t, out.String(), "Loaded 2 previous messages")
	assert.Contains(t, out.String(), "Assistant: Take care")
}

func TestSessionEndsOnEOF(t *testing.T) {
	a := newTestApp(t, store.NewMemoryStore())
	var out bytes.Buffer
	session := &terminalSession{turns: a.Turns, userID: "eof", in: strings.NewReader(""), out: &out}
	require.NoError(t, session.Run(context.Background()))
}
