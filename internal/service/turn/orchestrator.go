// Package turn runs the per-turn state machine: crisis check, user message
// capture, context building, generation, escalation and persistence.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/sahayak/backend/internal/config"
	"github.com/zhouzirui/sahayak/backend/internal/logging"
	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
	"github.com/zhouzirui/sahayak/backend/internal/observability"
	chatservice "github.com/zhouzirui/sahayak/backend/internal/service/chat"
	"github.com/zhouzirui/sahayak/backend/internal/service/crisis"
	"github.com/zhouzirui/sahayak/backend/internal/service/emotion"
	"github.com/zhouzirui/sahayak/backend/internal/service/escalation"
	"github.com/zhouzirui/sahayak/backend/internal/store"
)

// Fixed user-visible texts.
const (
	FallbackText  = "I'm sorry, I'm having trouble processing that right now. Could you try again?"
	RetryText     = FallbackText
	NoSessionText = "Error: No active conversation. Please start or load a chat first."
)

// DefaultGenerationTimeout bounds a gateway call when none is configured.
const DefaultGenerationTimeout = 30 * time.Second

var (
	ErrUserIDRequired         = errors.New("user id is required")
	ErrEmptyMessage           = errors.New("message is empty")
	ErrNoActiveSession        = errors.New("no active session for user")
	ErrRecordNotFound         = errors.New("user record not found")
	ErrRecordLoadFailed       = errors.New("failed to load user record")
	ErrCrisisCheckBlocked     = errors.New("crisis check failed and policy blocks the turn")
	ErrUserPersistFailed      = errors.New("failed to persist user message")
	ErrAssistantPersistFailed = errors.New("failed to persist assistant message")
)

// EmotionTracker captures per-message emotions and exposes the aggregate.
// Detect has no side effects; Record adds a detection to the aggregate.
type EmotionTracker interface {
	Detect(ctx context.Context, text, userID string) (emotion.Detection, error)
	Record(userID string, detection emotion.Detection)
	Summary(userID string) emotion.Summary
}

// historyRestorer is implemented by trackers that can rebuild their per-user
// history from persisted messages.
type historyRestorer interface {
	Restore(userID string, messages []chat.Message) int
}

// CrisisClassifier produces the risk verdict for raw input.
type CrisisClassifier interface {
	Classify(ctx context.Context, text string) (crisis.Verdict, error)
}

// GenerationGateway produces the assistant reply.
type GenerationGateway interface {
	Generate(ctx context.Context, history []*schema.Message, input string) (string, error)
}

// ContextBuilder renders the context block for a turn.
type ContextBuilder interface {
	Build(userID string, record *chat.Record) string
}

// Dependencies are the collaborators of an Orchestrator. All are required
// except Metrics.
type Dependencies struct {
	Store     store.SessionStore
	Emotions  EmotionTracker
	Crisis    CrisisClassifier
	Context   ContextBuilder
	Generator GenerationGateway
	Handles   *chatservice.Service
	Policy    escalation.Policy
	Metrics   *observability.Metrics
}

// Options tunes failure handling.
type Options struct {
	// FailurePolicy is config.FailOpen (default) or config.FailClosed.
	FailurePolicy     string
	GenerationTimeout time.Duration
	Logger            *zap.SugaredLogger
	Now               func() time.Time
}

// Result is the outcome of HandleTurn. Text is always safe to show the user.
type Result struct {
	TurnID   string
	Text     string
	Risk     chat.RiskLevel
	Degraded bool
	Record   *chat.Record
}

// Orchestrator coordinates turns. Turns for the same user run one at a time.
type Orchestrator struct {
	store     store.SessionStore
	emotions  EmotionTracker
	crisis    CrisisClassifier
	context   ContextBuilder
	generator GenerationGateway
	handles   *chatservice.Service
	policy    escalation.Policy
	metrics   *observability.Metrics

	failClosed bool
	timeout    time.Duration
	logger     *zap.SugaredLogger
	now        func() time.Time

	locks   *keyedMutex
	history singleflight.Group

	// pending holds assistant messages whose write failed. They are written
	// ahead of the user's next message.
	pendingMu sync.Mutex
	pending   map[string]pendingReply
}

type pendingReply struct {
	message  chat.Message
	followUp bool
}

// New validates deps and builds an Orchestrator.
func New(deps Dependencies, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("turn: store is required")
	case deps.Emotions == nil:
		return nil, errors.New("turn: emotion tracker is required")
	case deps.Crisis == nil:
		return nil, errors.New("turn: crisis classifier is required")
	case deps.Context == nil:
		return nil, errors.New("turn: context builder is required")
	case deps.Generator == nil:
		return nil, errors.New("turn: generation gateway is required")
	}

	handles := deps.Handles
	if handles == nil {
		handles = chatservice.NewService()
	}

	var failClosed bool
	switch strings.ToLower(opts.FailurePolicy) {
	case "", config.FailOpen:
	case config.FailClosed:
		failClosed = true
	default:
		return nil, fmt.Errorf("turn: unknown crisis failure policy %q", opts.FailurePolicy)
	}

	timeout := opts.GenerationTimeout
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		store:      deps.Store,
		emotions:   deps.Emotions,
		crisis:     deps.Crisis,
		context:    deps.Context,
		generator:  deps.Generator,
		handles:    handles,
		policy:     deps.Policy,
		metrics:    deps.Metrics,
		failClosed: failClosed,
		timeout:    timeout,
		logger:     logging.OrNop(opts.Logger),
		now:        now,
		locks:      newKeyedMutex(),
		pending:    make(map[string]pendingReply),
	}, nil
}

// Start loads or creates the user's record and opens the session handle. A
// new record is persisted immediately. The handle is seeded from the
// persisted history only the first time per process.
func (o *Orchestrator) Start(ctx context.Context, userID string) (*chat.Record, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	unlock := o.locks.Lock(userID)
	defer unlock()

	record, err := o.store.Get(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		record = chat.NewRecord(userID, o.now())
		if err := o.store.Put(ctx, record); err != nil {
			o.metrics.PersistFailed("create")
			return nil, fmt.Errorf("create record for %s: %w", userID, err)
		}
		o.logger.Infow("[turn] created user record", "user", userID)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrRecordLoadFailed, err)
	default:
		o.logger.Infow("[turn] loaded user record", "user", userID, "messages", len(record.ChatHistory))
	}

	session, created, err := o.handles.Open(ctx, userID, record.ChatHistory)
	if err != nil {
		return nil, err
	}
	if created {
		o.metrics.SessionOpened()
		if restorer, ok := o.emotions.(historyRestorer); ok {
			restored := restorer.Restore(userID, record.ChatHistory)
			o.logger.Debugw("[turn] restored emotion history", "user", userID, "entries", restored)
		}
		o.logger.Debugw("[turn] session opened", "user", userID, "session", session.ID, "seeded", session.Messages)
	}
	return record, nil
}

// Active reports whether Start has run for userID in this process.
func (o *Orchestrator) Active(userID string) bool {
	return o.handles.Active(userID)
}

// HandleTurn runs one turn. On error Result.Text still carries the text to
// show the user; ErrAssistantPersistFailed comes with the full reply.
func (o *Orchestrator) HandleTurn(ctx context.Context, userID, text string) (Result, error) {
	started := o.now()
	result := Result{TurnID: uuid.NewString(), Text: RetryText, Risk: chat.RiskNone}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return result, ErrUserIDRequired
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return result, ErrEmptyMessage
	}

	unlock := o.locks.Lock(userID)
	defer unlock()

	if !o.handles.Active(userID) {
		result.Text = NoSessionText
		return result, ErrNoActiveSession
	}

	log := o.logger.With("user", userID, "turn", result.TurnID)

	// crisis check on the raw utterance, before any mutation
	verdict, err := o.crisis.Classify(ctx, text)
	if err != nil {
		if o.failClosed {
			o.metrics.TurnFailed("crisis_check")
			log.Warnw("[turn] crisis check failed, blocking turn", "error", err)
			return result, fmt.Errorf("%w: %v", ErrCrisisCheckBlocked, err)
		}
		log.Warnw("[turn] crisis check failed, continuing with none", "error", err)
		verdict = crisis.Verdict{Level: chat.RiskNone, Source: "fail-open"}
	}
	result.Risk = verdict.Level

	record, err := o.store.Get(ctx, userID)
	if err != nil {
		o.metrics.TurnFailed("load")
		if errors.Is(err, store.ErrNotFound) {
			return result, ErrRecordNotFound
		}
		return result, fmt.Errorf("%w: %v", ErrRecordLoadFailed, err)
	}

	history, err := o.handles.Snapshot(ctx, userID)
	if err != nil {
		result.Text = NoSessionText
		return result, ErrNoActiveSession
	}

	if o.replayPending(userID, record) {
		log.Infow("[turn] replaying unsaved assistant message")
	}

	// user message capture and first write
	detection, err := o.emotions.Detect(ctx, text, userID)
	if err != nil {
		log.Warnw("[turn] emotion detection failed, recording neutral", "error", err)
		detection = emotion.Detection{
			Emotions: chat.EmotionScores{{Label: "neutral", Score: 1}},
			Dominant: "neutral",
		}
	}

	captured := strongest(verdict.Info(), detection.Crisis)
	if captured.IsCrisis || verdict.Level == chat.RiskCrisis {
		record.NeedsImmediateAttention = true
	}
	record.Append(chat.NewUserMessage(text, o.now(), detection.Emotions, detection.Dominant, captured))

	if err := o.store.Put(ctx, record); err != nil {
		o.metrics.PersistFailed("user")
		o.metrics.TurnFailed("persist_user")
		log.Errorw("[turn] failed to persist user message", "error", err)
		return result, fmt.Errorf("%w: %v", ErrUserPersistFailed, err)
	}
	o.clearPending(userID)
	o.emotions.Record(userID, detection)
	if err := o.handles.Append(ctx, userID, chat.RoleUser, text); err != nil {
		log.Warnw("[turn] session handle append failed", "error", err)
	}

	input := o.context.Build(userID, record) + "\n\nUser: " + text

	reply, genErr := o.generate(ctx, history, input)
	if genErr != nil {
		log.Warnw("[turn] generation failed, using fallback", "error", genErr)
		reply = FallbackText
		result.Degraded = true
	}

	outcome := o.policy.Apply(verdict.Level, reply)
	if outcome.SetFollowUp {
		record.NeedsFollowUp = true
	}
	if outcome.Level != chat.RiskNone {
		o.metrics.Escalated(string(outcome.Level))
	}

	assistant := chat.NewAssistantMessage(outcome.Text, o.now())
	record.Append(assistant)
	if err := o.handles.Append(ctx, userID, chat.RoleAssistant, outcome.Text); err != nil {
		log.Warnw("[turn] session handle append failed", "error", err)
	}

	result.Text = outcome.Text
	result.Record = record.Clone()

	if err := o.store.Put(ctx, record); err != nil {
		o.metrics.PersistFailed("assistant")
		o.metrics.TurnFailed("persist_assistant")
		log.Errorw("[turn] failed to persist assistant message, kept for the next turn", "error", err)
		o.setPending(userID, pendingReply{message: assistant, followUp: outcome.SetFollowUp})
		return result, fmt.Errorf("%w: %v", ErrAssistantPersistFailed, err)
	}

	o.metrics.TurnCompleted(string(result.Risk), result.Degraded, o.now().Sub(started))
	log.Infow("[turn] completed", "risk", result.Risk, "degraded", result.Degraded, "messages", len(record.ChatHistory))
	return result, nil
}

// History returns the persisted record. Concurrent reads for the same user
// share one store call.
func (o *Orchestrator) History(ctx context.Context, userID string) (*chat.Record, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	// waiters share the read, so one caller's cancellation must not fail the rest
	readCtx := context.WithoutCancel(ctx)
	v, err, _ := o.history.Do(userID, func() (interface{}, error) {
		return o.store.Get(readCtx, userID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordLoadFailed, err)
	}
	return v.(*chat.Record).Clone(), nil
}

type generation struct {
	text string
	err  error
}

// generate calls the gateway under the turn timeout. A gateway that ignores
// its context is abandoned when the deadline passes.
func (o *Orchestrator) generate(ctx context.Context, history []*schema.Message, input string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := o.now()
	done := make(chan generation, 1)
	go func() {
		text, err := o.generator.Generate(genCtx, history, input)
		done <- generation{text: text, err: err}
	}()

	var out generation
	select {
	case out = <-done:
	case <-genCtx.Done():
		out = generation{err: genCtx.Err()}
	}

	outcome := "ok"
	switch {
	case errors.Is(out.err, context.DeadlineExceeded):
		outcome = "timeout"
	case out.err != nil:
		outcome = "error"
	case strings.TrimSpace(out.text) == "":
		outcome = "empty"
		out.err = errors.New("empty reply")
	}
	o.metrics.ObserveGeneration(outcome, o.now().Sub(started))
	return out.text, out.err
}

func (o *Orchestrator) setPending(userID string, reply pendingReply) {
	o.pendingMu.Lock()
	o.pending[userID] = reply
	o.pendingMu.Unlock()
}

func (o *Orchestrator) clearPending(userID string) {
	o.pendingMu.Lock()
	delete(o.pending, userID)
	o.pendingMu.Unlock()
}

// replayPending appends the user's unsaved assistant message to record unless
// the record already ends with it. It reports whether anything was added.
func (o *Orchestrator) replayPending(userID string, record *chat.Record) bool {
	o.pendingMu.Lock()
	reply, ok := o.pending[userID]
	o.pendingMu.Unlock()
	if !ok {
		return false
	}

	if n := len(record.ChatHistory); n > 0 {
		last := record.ChatHistory[n-1]
		if last.Role == reply.message.Role && last.Content == reply.message.Content && last.Timestamp == reply.message.Timestamp {
			o.clearPending(userID)
			return false
		}
	}
	record.Append(reply.message.Clone())
	if reply.followUp {
		record.NeedsFollowUp = true
	}
	return true
}

// strongest keeps the more severe of two crisis captures.
func strongest(a, b chat.CrisisInfo) chat.CrisisInfo {
	if b.RiskLevel.Rank() > a.RiskLevel.Rank() || (b.IsCrisis && !a.IsCrisis) {
		return b
	}
	if a.RiskLevel == "" {
		a.RiskLevel = chat.RiskNone
	}
	return a
}
