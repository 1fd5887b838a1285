package chat

import "sync"

// Chunk is one published delta of a streaming message.
type Chunk struct {
	MessageID string `json:"message_id"`
	Sequence  int    `json:"sequence"`
	Delta     string `json:"delta"`
}

// ChunkBuffer stores the streamed output of in-flight messages. Append is
// the only mutator and assigns strictly increasing sequence numbers from 0
// per message; published chunks are immutable. Readers resume from any
// previously seen sequence and observe every later chunk in order with no
// gaps.
type ChunkBuffer struct {
	mu        sync.RWMutex
	chunks    map[string][]Chunk
	completed map[string]bool
}

// NewChunkBuffer creates an empty buffer.
func NewChunkBuffer() *ChunkBuffer {
	return &ChunkBuffer{
		chunks:    make(map[string][]Chunk),
		completed: make(map[string]bool),
	}
}

// Append publishes one delta for the message and returns its sequence
// number.
func (b *ChunkBuffer) Append(messageID, delta string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq := len(b.chunks[messageID])
	b.chunks[messageID] = append(b.chunks[messageID], Chunk{
		MessageID: messageID,
		Sequence:  seq,
		Delta:     delta,
	})
	return seq
}

// ReadFrom returns every chunk at or after fromSequence, the next sequence
// number a resuming reader should request, and whether more chunks may
// still arrive. hasMore is false only once MarkComplete has been called
// and everything up to completion has been delivered.
func (b *ChunkBuffer) ReadFrom(messageID string, fromSequence int) ([]Chunk, int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	all := b.chunks[messageID]
	if fromSequence < 0 {
		fromSequence = 0
	}

	var out []Chunk
	if fromSequence < len(all) {
		out = make([]Chunk, len(all)-fromSequence)
		copy(out, all[fromSequence:])
	}

	next := len(all)
	hasMore := !b.completed[messageID]
	return out, next, hasMore
}

// MarkComplete declares that no further chunks will be appended for the
// message. Safe to call more than once.
func (b *ChunkBuffer) MarkComplete(messageID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed[messageID] = true
}

// Completed reports whether the message has been marked complete.
func (b *ChunkBuffer) Completed(messageID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.completed[messageID]
}

// Known reports whether any chunk or completion mark exists for the
// message.
func (b *ChunkBuffer) Known(messageID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.chunks[messageID]
	return ok || b.completed[messageID]
}

// Release frees the stored chunks for a message, for session deletion.
func (b *ChunkBuffer) Release(messageID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.chunks, messageID)
	delete(b.completed, messageID)
}
