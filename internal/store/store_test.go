package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/zhouzirui/sahayak/backend/internal/config"
	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

func sampleRecord() *chat.Record {
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	record := chat.NewRecord("u1", at)
	record.Append(chat.NewUserMessage("I want to die", at,
		chat.EmotionScores{{Label: "sadness", Score: 0.75}, {Label: "fear", Score: 0.25}},
		"sadness",
		chat.CrisisInfo{IsCrisis: true, RiskLevel: chat.RiskCrisis, MatchedTerms: []string{"want to die"}},
	))
	record.Append(chat.NewAssistantMessage("I'm here with you.", at.Add(time.Second)))
	record.NeedsImmediateAttention = true
	record.NeedsFollowUp = true
	return record
}

func exerciseStore(t *testing.T, s SessionStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, s.Put(ctx, &chat.Record{}), ErrUserIDRequired)

	record := sampleRecord()
	require.NoError(t, s.Put(ctx, record))

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, record, got)
	assert.Equal(t, "sadness", got.ChatHistory[0].Emotions[0].Label)

	// last writer wins
	record.Append(chat.NewUserMessage("ok", time.Now(), nil, "neutral", chat.CrisisInfo{}))
	record.NeedsFollowUp = false
	require.NoError(t, s.Put(ctx, record))

	got, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got.ChatHistory, 3)
	assert.False(t, got.NeedsFollowUp)

	got.ChatHistory[0].Content = "mutated"
	again, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "I want to die", again.ChatHistory[0].Content)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseStore(t, s)
}

func TestBadgerStoreInMemory(t *testing.T) {
	s, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "records.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, sampleRecord()))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.NeedsImmediateAttention)
}

func TestMongoDocumentConversionKeepsShape(t *testing.T) {
	record := sampleRecord()
	doc, err := recordToDocument(record)
	require.NoError(t, err)

	keys := make([]string, 0, len(doc))
	for _, elem := range doc {
		keys = append(keys, elem.Key)
	}
	assert.Equal(t, []string{"user_id", "created_at", "chat_history", "needs_immediate_attention", "needs_follow_up"}, keys)

	withID := append(bson.D{{Key: "_id", Value: "abc"}}, doc...)
	got, err := documentToRecord("u1", withID)
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Backend: "tape"}, nil)
	assert.Error(t, err)

	s, err := Open(context.Background(), config.StoreConfig{Backend: config.StoreMemory}, nil)
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}
