package chat

import (
	"context"
	"sync"
	"time"
)

// Snapshot is the serializable image of a session, written at every
// durable transition. A parked approval batch is part of the snapshot, so
// an AwaitingToolApproval session survives a process restart; mid-stream
// and mid-execution states collapse to Idle on restore because their
// in-flight work is gone with the process.
type Snapshot struct {
	ID               string             `json:"id"`
	Title            string             `json:"title,omitempty"`
	State            State              `json:"state"`
	Config           Config             `json:"config"`
	ActiveBranch     string             `json:"active_branch"`
	Branches         []*Branch          `json:"branches"`
	Todo             *TodoList          `json:"todo,omitempty"`
	Pending          []*ToolCallRequest `json:"pending,omitempty"`
	PendingMessageID string             `json:"pending_message_id,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Store persists session snapshots. Implementations must be safe for
// concurrent use.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	List(ctx context.Context) ([]*Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// Snapshot captures the session's current durable state. Caller must not
// hold the session lock.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		ID:           s.ID,
		Title:        s.Title,
		State:        s.state,
		Config:       s.config,
		ActiveBranch: s.active,
		Todo:         s.todo,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	for _, b := range s.branches {
		snap.Branches = append(snap.Branches, b)
	}
	if s.loop != nil && s.state == StateAwaitingApproval {
		snap.Pending = append([]*ToolCallRequest(nil), s.loop.pending...)
		snap.PendingMessageID = s.loop.pendingMsgID
	}
	return snap
}

// RestoreSession rebuilds a session from a snapshot. Transient states that
// cannot be resumed collapse to Idle; a parked approval batch is restored
// so ResolveToolCalls can resume the turn.
func RestoreSession(snap *Snapshot) *Session {
	s := &Session{
		ID:        snap.ID,
		Title:     snap.Title,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
		state:     snap.State,
		config:    snap.Config,
		branches:  make(map[string]*Branch, len(snap.Branches)),
		active:    snap.ActiveBranch,
		todo:      snap.Todo,
		titled:    snap.Title != "",
	}
	for _, b := range snap.Branches {
		s.branches[b.Name] = b
	}
	if s.active == "" || s.branches[s.active] == nil {
		if s.branches[DefaultBranchName] == nil {
			s.branches[DefaultBranchName] = NewBranch(DefaultBranchName, snap.Config.SystemPrompt)
		}
		s.active = DefaultBranchName
	}

	switch snap.State {
	case StateAwaitingApproval:
		if len(snap.Pending) > 0 {
			s.loop = &loopState{
				startedAt:    time.Now(),
				pending:      snap.Pending,
				pendingMsgID: snap.PendingMessageID,
			}
		} else {
			s.state = StateIdle
		}
	case StateStreaming, StateExecutingTools, StateError:
		s.state = StateIdle
	}
	return s
}

// MemoryStore is an in-process Store for tests and single-node use.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]*Snapshot)}
}

func (m *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.ID] = snap
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return snap, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Snapshot, 0, len(m.snaps))
	for _, snap := range m.snaps {
		out = append(out, snap)
	}
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, sessionID)
	return nil
}
