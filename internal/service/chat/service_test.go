package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/sahayak/backend/internal/service/chat"
)

func seedMessages() []chat.Message {
	now := time.Now()
	return []chat.Message{
		chat.NewUserMessage("hi", now, nil, "neutral", chat.CrisisInfo{}),
		chat.NewAssistantMessage("hello", now),
	}
}

func TestServiceOpenSeedsOnce(t *testing.T) {
	svc := chatservice.NewService()
	ctx := context.Background()

	session, created, err := svc.Open(ctx, "u1", seedMessages())
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	if !created || session.Messages != 2 {
		t.Fatalf("unexpected first open: created=%v session=%+v", created, session)
	}

	again, created, err := svc.Open(ctx, "u1", append(seedMessages(), seedMessages()...))
	if err != nil {
		t.Fatalf("second Open err: %v", err)
	}
	if created || again.ID != session.ID || again.Messages != 2 {
		t.Fatalf("second open must reuse the handle: created=%v session=%+v", created, again)
	}
}

func TestServiceAppendAndSnapshot(t *testing.T) {
	svc := chatservice.NewService()
	ctx := context.Background()

	if err := svc.Append(ctx, "u1", chat.RoleUser, "x"); !errors.Is(err, chatservice.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if _, _, err := svc.Open(ctx, "u1", seedMessages()); err != nil {
		t.Fatalf("Open err: %v", err)
	}
	if err := svc.Append(ctx, "u1", chat.RoleUser, "exam stress"); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	snapshot, err := svc.Snapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("Snapshot err: %v", err)
	}
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(snapshot))
	}
	if snapshot[0].Role != schema.User || snapshot[1].Role != schema.Assistant || snapshot[2].Content != "exam stress" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	snapshot[2].Content = "mutated"
	again, _ := svc.Snapshot(ctx, "u1")
	if again[2].Content != "exam stress" {
		t.Fatal("snapshot shares memory with the handle")
	}
}

func TestServiceRequiresUser(t *testing.T) {
	svc := chatservice.NewService()
	if _, _, err := svc.Open(context.Background(), "", nil); !errors.Is(err, chatservice.ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
	if svc.Active("") {
		t.Fatal("empty user must not be active")
	}
}
