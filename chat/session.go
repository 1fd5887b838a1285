package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is one of the five lifecycle states of a session. Exactly one
// holds at any time; Error is transient and resolves back to Idle.
type State string

const (
	StateIdle             State = "idle"
	StateStreaming        State = "streaming_response"
	StateAwaitingApproval State = "awaiting_tool_approval"
	StateExecutingTools   State = "executing_tools"
	StateError            State = "error"
)

// ContinuationPolicy decides whether tool results alone re-enter
// StreamingResponse after ExecutingTools.
type ContinuationPolicy string

const (
	// ContinueAlways re-invokes the model after every executed batch
	// until the budget runs out. This is the default.
	ContinueAlways ContinuationPolicy = "always"

	// ContinueOnSignal requires the model to have declared a continue
	// signal in its structured action; otherwise the turn resolves to
	// Idle after tool results are appended.
	ContinueOnSignal ContinuationPolicy = "on_signal"
)

// Config holds per-session configuration, including the agent loop's
// budgets.
type Config struct {
	Model              string             `json:"model"`
	Provider           string             `json:"provider,omitempty"`
	Role               Role               `json:"role"`
	Mode               string             `json:"mode,omitempty"`
	Params             map[string]string  `json:"params,omitempty"`
	MaxIterations      int                `json:"max_iterations"`
	WallClockTimeout   time.Duration      `json:"wall_clock_timeout"`
	ParseRetries       int                `json:"parse_retries"`
	ToolRetries        int                `json:"tool_retries"` // total attempts per tool call
	ToolTimeout        time.Duration      `json:"tool_timeout"`
	ContinuationPolicy ContinuationPolicy `json:"continuation_policy"`
	EnableLoopDetect   bool               `json:"enable_loop_detect"`
	LoopDetectWindow   int                `json:"loop_detect_window"`
	SystemPrompt       string             `json:"system_prompt,omitempty"`
}

// DefaultConfig returns the default budgets and policies.
func DefaultConfig() Config {
	return Config{
		Role:               RoleActor,
		MaxIterations:      10,
		WallClockTimeout:   300 * time.Second,
		ParseRetries:       3,
		ToolRetries:        3,
		ToolTimeout:        60 * time.Second,
		ContinuationPolicy: ContinueAlways,
		EnableLoopDetect:   true,
		LoopDetectWindow:   6,
	}
}

// loopState is the transient state of one turn episode, from user input to
// resolution. It is destroyed when the episode resolves to Idle or Error,
// except that a parked approval batch survives in the session so the
// episode can resume across a process restart.
type loopState struct {
	iterations   int
	startedAt    time.Time
	parseRetries int
	pending      []*ToolCallRequest // batch awaiting approval, request order
	pendingMsgID string             // message the pending batch belongs to
	continueHint bool               // model declared a continue signal for the parked batch
	cancel       context.CancelFunc
	resumeCtx    context.Context
	aborted      bool
}

// Session is one conversation: lifecycle state, branched history, config,
// the in-flight turn's loop state, and the optional todo list. All fields
// are guarded by mu; mutation is funneled through the Engine.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time

	state    State
	config   Config
	branches map[string]*Branch
	active   string
	todo     *TodoList
	loop     *loopState
	titled   bool

	mu sync.Mutex
}

// NewSession creates an Idle session with a single main branch.
func NewSession(cfg Config) *Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
		state:     StateIdle,
		config:    cfg,
		branches:  map[string]*Branch{DefaultBranchName: NewBranch(DefaultBranchName, cfg.SystemPrompt)},
		active:    DefaultBranchName,
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config returns a copy of the session configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// TitleText returns the session title, empty until one is generated.
func (s *Session) TitleText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Title
}

// ActiveBranch returns the name of the active branch.
func (s *Session) ActiveBranch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// BranchNames returns the names of all branches.
func (s *Session) BranchNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.branches))
	for name := range s.branches {
		names = append(names, name)
	}
	return names
}

// Messages returns a snapshot of the active branch. Messages are deep
// copied under the lock so callers can read them while a turn streams.
func (s *Session) Messages() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.branches[s.active]
	out := make([]*Message, len(b.Messages))
	for i, msg := range b.Messages {
		out[i] = msg.Clone()
	}
	return out
}

// Todo returns the current todo list, or nil.
func (s *Session) Todo() *TodoList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.todo
}

// PendingToolCalls returns the batch parked in AwaitingToolApproval, in
// request order. Empty outside that state.
func (s *Session) PendingToolCalls() []*ToolCallRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop == nil {
		return nil
	}
	out := make([]*ToolCallRequest, len(s.loop.pending))
	for i, req := range s.loop.pending {
		r := *req
		out[i] = &r
	}
	return out
}

// activeBranch returns the active branch. Caller holds mu.
func (s *Session) activeBranch() *Branch {
	return s.branches[s.active]
}
