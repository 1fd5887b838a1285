package chat

import (
	"context"
	"sync"
	"time"
)

// SignalType identifies a metadata-only notification.
type SignalType string

const (
	SignalStateChanged             SignalType = "state_changed"
	SignalMessageCreated           SignalType = "message_created"
	SignalContentDelta             SignalType = "content_delta"
	SignalMessageCompleted         SignalType = "message_completed"
	SignalTitleUpdated             SignalType = "title_updated"
	SignalTodoListUpdated          SignalType = "todo_list_updated"
	SignalAgentContinue            SignalType = "agent_continue"
	SignalContinuationLimitReached SignalType = "continuation_limit_reached"
	SignalHeartbeat                SignalType = "heartbeat"
)

// Signal is a lightweight notification. It never carries content bodies;
// MessageID and Sequence tell a subscriber what to pull.
type Signal struct {
	Type      SignalType `json:"type"`
	SessionID string     `json:"session_id,omitempty"`
	MessageID string     `json:"message_id,omitempty"`
	Sequence  *int       `json:"sequence,omitempty"`
	State     State      `json:"state,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// DefaultHeartbeatInterval is how often every open subscription receives a
// heartbeat, regardless of session activity.
const DefaultHeartbeatInterval = 15 * time.Second

type subscriber struct {
	sessionID string
	ch        chan Signal
}

// Broadcaster fans signals out to per-session subscribers. Each subscriber
// owns an independent buffered channel; a full channel drops the signal
// rather than blocking the producer. Signals are advisory, so a dropped
// one is recovered by pulling state directly.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscriber)}
}

// Subscribe opens a signal stream for one session. The returned cancel
// function closes the stream; a subscriber disconnecting never affects
// session progress.
func (b *Broadcaster) Subscribe(sessionID string) (<-chan Signal, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{sessionID: sessionID, ch: make(chan Signal, 64)}
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// Publish delivers a signal to every subscriber of the session.
func (b *Broadcaster) Publish(sessionID string, sig Signal) {
	sig.SessionID = sessionID
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.sessionID != sessionID {
			continue
		}
		select {
		case sub.ch <- sig:
		default:
			// Subscriber is not keeping up; it can re-derive state by pulling.
		}
	}
}

// RunHeartbeat publishes a heartbeat on every open subscription at the
// given interval until ctx is cancelled. Heartbeats distinguish a quiet
// session from a dead connection.
func (b *Broadcaster) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.heartbeatAll()
		}
	}
}

func (b *Broadcaster) heartbeatAll() {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		sig := Signal{Type: SignalHeartbeat, SessionID: sub.sessionID, Timestamp: now}
		select {
		case sub.ch <- sig:
		default:
		}
	}
}

// Close shuts down every subscription. Safe to call more than once.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
