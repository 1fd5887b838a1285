package chat

import (
	"fmt"
	"testing"
)

func TestChunkBufferSequencesAreGapFree(t *testing.T) {
	buf := NewChunkBuffer()
	for i := 0; i < 20; i++ {
		seq := buf.Append("msg1", fmt.Sprintf("delta-%d", i))
		if seq != i {
			t.Fatalf("append %d: expected sequence %d, got %d", i, i, seq)
		}
	}

	chunks, next, hasMore := buf.ReadFrom("msg1", 0)
	if len(chunks) != 20 {
		t.Fatalf("expected 20 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Sequence != i {
			t.Errorf("chunk %d has sequence %d", i, c.Sequence)
		}
	}
	if next != 20 {
		t.Errorf("expected next sequence 20, got %d", next)
	}
	if !hasMore {
		t.Error("hasMore should be true before MarkComplete")
	}
}

func TestChunkBufferResumeFromSequence(t *testing.T) {
	buf := NewChunkBuffer()
	for i := 0; i < 10; i++ {
		buf.Append("msg1", fmt.Sprintf("d%d", i))
	}

	chunks, next, _ := buf.ReadFrom("msg1", 6)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks from sequence 6, got %d", len(chunks))
	}
	if chunks[0].Sequence != 6 {
		t.Errorf("first resumed chunk has sequence %d", chunks[0].Sequence)
	}
	if next != 10 {
		t.Errorf("expected next 10, got %d", next)
	}

	// Reading past the end returns nothing but stays consistent.
	chunks, next, _ = buf.ReadFrom("msg1", 10)
	if len(chunks) != 0 || next != 10 {
		t.Errorf("read past end: got %d chunks, next %d", len(chunks), next)
	}
}

func TestChunkBufferHasMoreSemantics(t *testing.T) {
	buf := NewChunkBuffer()
	buf.Append("msg1", "a")
	buf.Append("msg1", "b")

	if _, _, hasMore := buf.ReadFrom("msg1", 0); !hasMore {
		t.Error("hasMore must be true while the message is incomplete")
	}

	buf.MarkComplete("msg1")

	chunks, _, hasMore := buf.ReadFrom("msg1", 0)
	if hasMore {
		t.Error("hasMore must be false after MarkComplete")
	}
	if len(chunks) != 2 {
		t.Errorf("completion must not hide chunks, got %d", len(chunks))
	}

	// MarkComplete is idempotent.
	buf.MarkComplete("msg1")
	if _, _, hasMore := buf.ReadFrom("msg1", 0); hasMore {
		t.Error("hasMore flipped back after second MarkComplete")
	}
}

func TestChunkBufferPerMessageIsolation(t *testing.T) {
	buf := NewChunkBuffer()
	buf.Append("a", "1")
	buf.Append("b", "1")
	if seq := buf.Append("a", "2"); seq != 1 {
		t.Errorf("messages must have independent sequences, got %d", seq)
	}
	buf.MarkComplete("a")
	if _, _, hasMore := buf.ReadFrom("b", 0); !hasMore {
		t.Error("completing one message must not complete another")
	}
}

func TestChunkBufferRelease(t *testing.T) {
	buf := NewChunkBuffer()
	buf.Append("msg1", "a")
	buf.MarkComplete("msg1")
	if !buf.Known("msg1") {
		t.Fatal("message should be known")
	}
	buf.Release("msg1")
	if buf.Known("msg1") {
		t.Error("released message should be unknown")
	}
}
