package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigduu/chatengine/llm"
)

// Engine owns every session and funnels all mutation through per-session
// locking, so at most one logical transition is in flight per session
// while distinct sessions progress independently.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	client   *llm.Client
	registry *Registry
	policy   *RolePolicy
	buffer   *ChunkBuffer
	signals  *Broadcaster
	store    Store
	logger   *slog.Logger
	defaults Config
	titles   bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStore sets the persistence backend. Defaults to an in-memory store.
func WithStore(store Store) EngineOption {
	return func(e *Engine) { e.store = store }
}

// WithLogger sets the structured logger. Nil means slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRegistry sets the capability registry.
func WithRegistry(reg *Registry) EngineOption {
	return func(e *Engine) { e.registry = reg }
}

// WithPolicy sets the role policy.
func WithPolicy(policy *RolePolicy) EngineOption {
	return func(e *Engine) { e.policy = policy }
}

// WithDefaults sets the configuration new sessions inherit.
func WithDefaults(cfg Config) EngineOption {
	return func(e *Engine) { e.defaults = cfg }
}

// WithTitleGeneration toggles background session title generation after
// the first completed assistant turn.
func WithTitleGeneration(enabled bool) EngineOption {
	return func(e *Engine) { e.titles = enabled }
}

// NewEngine creates an Engine around an LLM client.
func NewEngine(client *llm.Client, opts ...EngineOption) *Engine {
	e := &Engine{
		sessions: make(map[string]*Session),
		client:   client,
		registry: NewRegistry(),
		policy:   DefaultRolePolicy(),
		buffer:   NewChunkBuffer(),
		signals:  NewBroadcaster(),
		store:    NewMemoryStore(),
		logger:   slog.Default(),
		defaults: DefaultConfig(),
		titles:   true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the capability registry for wiring.
func (e *Engine) Registry() *Registry { return e.registry }

// Subscribe opens a signal stream for one session.
func (e *Engine) Subscribe(sessionID string) (<-chan Signal, func()) {
	return e.signals.Subscribe(sessionID)
}

// RunHeartbeat publishes heartbeats to every open subscription until ctx
// is cancelled.
func (e *Engine) RunHeartbeat(ctx context.Context) {
	e.signals.RunHeartbeat(ctx, DefaultHeartbeatInterval)
}

// Chunks reads streamed content for a message from the given sequence.
func (e *Engine) Chunks(messageID string, fromSequence int) ([]Chunk, int, bool, error) {
	if !e.buffer.Known(messageID) {
		return nil, 0, false, ErrMessageNotFound
	}
	chunks, next, hasMore := e.buffer.ReadFrom(messageID, fromSequence)
	return chunks, next, hasMore, nil
}

// CreateSession creates an Idle session. A nil config inherits the engine
// defaults; zero-valued budget fields are filled from the defaults.
func (e *Engine) CreateSession(ctx context.Context, cfg *Config) (*Session, error) {
	merged := e.defaults
	if cfg != nil {
		merged = mergeConfig(e.defaults, *cfg)
	}

	s := NewSession(merged)
	e.mu.Lock()
	e.sessions[s.ID] = s
	e.mu.Unlock()

	e.persist(ctx, s)
	e.logger.Info("session created", "session_id", s.ID, "role", merged.Role, "model", merged.Model)
	return s, nil
}

func mergeConfig(base, override Config) Config {
	out := override
	if out.Model == "" {
		out.Model = base.Model
	}
	if out.Provider == "" {
		out.Provider = base.Provider
	}
	if out.Role == "" {
		out.Role = base.Role
	}
	if out.MaxIterations == 0 {
		out.MaxIterations = base.MaxIterations
	}
	if out.WallClockTimeout == 0 {
		out.WallClockTimeout = base.WallClockTimeout
	}
	if out.ParseRetries == 0 {
		out.ParseRetries = base.ParseRetries
	}
	if out.ToolRetries == 0 {
		out.ToolRetries = base.ToolRetries
	}
	if out.ToolTimeout == 0 {
		out.ToolTimeout = base.ToolTimeout
	}
	if out.ContinuationPolicy == "" {
		out.ContinuationPolicy = base.ContinuationPolicy
	}
	if out.LoopDetectWindow == 0 {
		out.LoopDetectWindow = base.LoopDetectWindow
		out.EnableLoopDetect = base.EnableLoopDetect
	}
	if out.SystemPrompt == "" {
		out.SystemPrompt = base.SystemPrompt
	}
	return out
}

// GetSession returns a session by id.
func (e *Engine) GetSession(sessionID string) (*Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ListSessions returns all sessions, newest first.
func (e *Engine) ListSessions() []*Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// DeleteSession aborts any in-flight turn, releases buffered chunks, and
// removes the session from the engine and the store.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	if ok {
		delete(e.sessions, sessionID)
	}
	e.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.abortSession(s)

	for _, name := range s.BranchNames() {
		s.mu.Lock()
		b := s.branches[name]
		s.mu.Unlock()
		for _, msg := range b.Messages {
			e.buffer.Release(msg.ID)
		}
	}

	if err := e.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	e.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

// LoadSessions restores every stored session into the engine, typically at
// startup.
func (e *Engine) LoadSessions(ctx context.Context) error {
	snaps, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list stored sessions: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, snap := range snaps {
		e.sessions[snap.ID] = RestoreSession(snap)
	}
	e.logger.Info("sessions restored", "count", len(snaps))
	return nil
}

// SendMessage appends a user message to the active branch and starts a
// turn episode. The session must be Idle. It returns the user message id;
// the assistant message id arrives via a message_created signal.
func (e *Engine) SendMessage(ctx context.Context, sessionID, text string) (string, error) {
	s, err := e.GetSession(sessionID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: state %s", ErrSessionBusy, s.state)
	}

	msg := NewUserMessage(text)
	s.activeBranch().Append(msg)

	loopCtx, cancel := context.WithCancel(context.Background())
	s.loop = &loopState{startedAt: time.Now(), cancel: cancel, resumeCtx: loopCtx}
	s.mu.Unlock()

	e.signals.Publish(s.ID, Signal{Type: SignalMessageCreated, MessageID: msg.ID})
	e.setState(context.Background(), s, StateStreaming)

	go e.runTurn(loopCtx, s)
	return msg.ID, nil
}

// ToolCallResolution is one approval decision.
type ToolCallResolution struct {
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
}

// ResolveToolCalls applies approval decisions to the parked batch. It is
// the only way out of AwaitingToolApproval. Approving or rejecting an
// already-resolved call is a no-op. When every request in the batch has
// been resolved, execution resumes.
func (e *Engine) ResolveToolCalls(ctx context.Context, sessionID string, resolutions []ToolCallResolution) error {
	s, err := e.GetSession(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateAwaitingApproval || s.loop == nil {
		s.mu.Unlock()
		return ErrNotAwaitingApproval
	}

	byID := make(map[string]*ToolCallRequest, len(s.loop.pending))
	for _, req := range s.loop.pending {
		byID[req.ID] = req
	}
	for _, res := range resolutions {
		req, ok := byID[res.ID]
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownToolCall, res.ID)
		}
		if req.Resolved() {
			continue
		}
		req.Resolve(res.Approved)
	}

	for _, req := range s.loop.pending {
		if !req.Resolved() {
			s.mu.Unlock()
			e.persist(ctx, s)
			return nil
		}
	}

	batch := s.loop.pending
	continueHint := s.loop.continueHint
	s.loop.pending = nil
	if s.loop.cancel == nil {
		// Batch restored from a snapshot; the episode gets a fresh context.
		loopCtx, cancel := context.WithCancel(context.Background())
		s.loop.cancel = cancel
		s.loop.resumeCtx = loopCtx
	}
	resumeCtx := s.loop.resumeCtx
	s.mu.Unlock()

	if resumeCtx == nil {
		resumeCtx = context.Background()
	}
	go e.resumeTurn(resumeCtx, s, batch, continueHint)
	return nil
}

// Abort stops an in-flight turn. The in-flight message is marked
// terminated-incomplete, message_completed is still published, and the
// session returns to Idle. Aborting an Idle session is a no-op.
func (e *Engine) Abort(sessionID string) error {
	s, err := e.GetSession(sessionID)
	if err != nil {
		return err
	}
	e.abortSession(s)
	return nil
}

func (e *Engine) abortSession(s *Session) {
	s.mu.Lock()
	if s.loop == nil {
		s.mu.Unlock()
		return
	}
	s.loop.aborted = true
	if s.loop.cancel != nil {
		s.loop.cancel()
	}
	parked := s.state == StateAwaitingApproval
	var pending []*ToolCallRequest
	if parked {
		pending = s.loop.pending
		s.loop = nil
	}
	s.mu.Unlock()

	if parked {
		// No goroutine owns the episode while parked, so resolve here.
		for _, req := range pending {
			if !req.Resolved() {
				req.Resolve(false)
			}
		}
		e.setState(context.Background(), s, StateIdle)
		e.logger.Info("session aborted while awaiting approval", "session_id", s.ID)
	}
}

// Fork creates a new branch carrying the active branch's first atIndex
// messages. The session must be Idle.
func (e *Engine) Fork(ctx context.Context, sessionID, branchName string, atIndex int) error {
	s, err := e.GetSession(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrSessionBusy, s.state)
	}
	if _, exists := s.branches[branchName]; exists {
		s.mu.Unlock()
		return ErrBranchExists
	}

	fork, err := s.activeBranch().Fork(branchName, atIndex)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.branches[branchName] = fork
	s.UpdatedAt = time.Now()
	s.mu.Unlock()

	e.persist(ctx, s)
	e.logger.Info("branch forked", "session_id", s.ID, "branch", branchName, "at", atIndex)
	return nil
}

// SwitchBranch changes the active branch. Only allowed while Idle.
func (e *Engine) SwitchBranch(ctx context.Context, sessionID, branchName string) error {
	s, err := e.GetSession(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrSessionBusy, s.state)
	}
	if _, ok := s.branches[branchName]; !ok {
		s.mu.Unlock()
		return ErrBranchNotFound
	}
	s.active = branchName
	s.UpdatedAt = time.Now()
	s.mu.Unlock()

	e.persist(ctx, s)
	return nil
}

// AbandonTodoList marks the session's todo list abandoned. This is the
// explicit external action; the agent never does it.
func (e *Engine) AbandonTodoList(ctx context.Context, sessionID string) error {
	s, err := e.GetSession(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.todo == nil {
		s.mu.Unlock()
		return nil
	}
	s.todo.Abandon()
	s.UpdatedAt = time.Now()
	s.mu.Unlock()

	e.persist(ctx, s)
	e.signals.Publish(sessionID, Signal{Type: SignalTodoListUpdated})
	return nil
}

// setState applies a state transition, persists it, and only then
// publishes state_changed.
func (e *Engine) setState(ctx context.Context, s *Session, next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.UpdatedAt = time.Now()
	s.mu.Unlock()

	e.persist(ctx, s)
	e.signals.Publish(s.ID, Signal{Type: SignalStateChanged, State: next})
	e.logger.Debug("state transition", "session_id", s.ID, "from", prev, "to", next)
}

func (e *Engine) persist(ctx context.Context, s *Session) {
	if err := e.store.Save(ctx, s.Snapshot()); err != nil {
		e.logger.Error("persist session failed", "session_id", s.ID, "error", err)
	}
}
