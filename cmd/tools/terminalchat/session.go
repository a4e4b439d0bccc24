package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
	"github.com/zhouzirui/sahayak/backend/internal/service/turn"
)

type turnRunner interface {
	Start(ctx context.Context, userID string) (*chat.Record, error)
	HandleTurn(ctx context.Context, userID, text string) (turn.Result, error)
	History(ctx context.Context, userID string) (*chat.Record, error)
}

// terminalSession is the read-eval loop behind the command. "history" prints
// the persisted transcript and "exit" or "quit" ends the session.
type terminalSession struct {
	turns     turnRunner
	userID    string
	assistant string
	greeting  string
	location  *time.Location
	in        io.Reader
	out       io.Writer
}

func (s *terminalSession) Run(ctx context.Context) error {
	record, err := s.turns.Start(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	name := s.assistant
	if name == "" {
		name = "Assistant"
	}
	if len(record.ChatHistory) == 0 {
		fmt.Fprintf(s.out, "Welcome, %s. A new conversation has been started.\n", s.userID)
		if s.greeting != "" {
			fmt.Fprintf(s.out, "%s: %s\n", name, s.greeting)
		}
	} else {
		fmt.Fprintf(s.out, "Welcome back, %s. Loaded %d previous messages.\n", s.userID, len(record.ChatHistory))
	}
	fmt.Fprintln(s.out, "Type 'history' to see the conversation, 'exit' to leave.")

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(s.out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintf(s.out, "%s: Take care of yourself. I'm here whenever you want to talk.\n", name)
			return nil
		case "history":
			s.printHistory(ctx, name)
			continue
		}

		result, err := s.turns.HandleTurn(ctx, s.userID, line)
		switch {
		case err == nil, errors.Is(err, turn.ErrAssistantPersistFailed):
			fmt.Fprintf(s.out, "\n%s: %s\n", name, result.Text)
			if err != nil {
				fmt.Fprintln(s.out, "(this reply could not be saved)")
			}
		default:
			fmt.Fprintf(s.out, "\n%s: %s\n", name, result.Text)
			fmt.Fprintf(s.out, "(error: %v)\n", err)
		}
	}
}

func (s *terminalSession) printHistory(ctx context.Context, name string) {
	record, err := s.turns.History(ctx, s.userID)
	if err != nil {
		fmt.Fprintf(s.out, "(could not load history: %v)\n", err)
		return
	}
	if len(record.ChatHistory) == 0 {
		fmt.Fprintln(s.out, "(no messages yet)")
		return
	}

	loc := s.location
	if loc == nil {
		loc = time.UTC
	}
	for _, msg := range record.ChatHistory {
		speaker := name
		if msg.IsUser() {
			speaker = "You"
		}
		stamp := "--:--"
		if ts, ok := chat.ParseTimestamp(msg.Timestamp); ok {
			stamp = ts.In(loc).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(s.out, "[%s] %s: %s\n", stamp, speaker, msg.Content)
	}
}
