package chat

import (
	"context"
	"strings"
	"time"

	"github.com/bigduu/chatengine/llm"
)

const titlePrompt = "Write a short title (at most 6 words) for a conversation that starts with the following message. " +
	"Reply with the title only, no quotes.\n\n"

// maybeGenerateTitle kicks off a background title generation after the
// first completed assistant turn. Failures are logged and ignored; the
// session simply stays untitled.
func (e *Engine) maybeGenerateTitle(s *Session) {
	if !e.titles {
		return
	}

	s.mu.Lock()
	if s.titled {
		s.mu.Unlock()
		return
	}
	var firstUser string
	for _, msg := range s.activeBranch().Messages {
		if msg.Role == llm.RoleUser && msg.Kind == KindText {
			firstUser = msg.Text()
			break
		}
	}
	hasAssistant := false
	for _, msg := range s.activeBranch().Messages {
		if msg.Role == llm.RoleAssistant && msg.Completed && !msg.Aborted {
			hasAssistant = true
			break
		}
	}
	if firstUser == "" || !hasAssistant {
		s.mu.Unlock()
		return
	}
	s.titled = true
	cfg := s.config
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		maxTokens := 32
		resp, err := e.client.Complete(ctx, llm.Request{
			Model:     cfg.Model,
			Provider:  cfg.Provider,
			Messages:  []llm.Message{llm.UserMessage(titlePrompt + firstUser)},
			MaxTokens: &maxTokens,
		})
		if err != nil {
			e.logger.Warn("title generation failed", "session_id", s.ID, "error", err)
			s.mu.Lock()
			s.titled = false
			s.mu.Unlock()
			return
		}

		title := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Text()), `"`))
		if title == "" {
			return
		}

		s.mu.Lock()
		s.Title = title
		s.UpdatedAt = time.Now()
		s.mu.Unlock()

		e.persist(ctx, s)
		e.signals.Publish(s.ID, Signal{Type: SignalTitleUpdated})
		e.logger.Info("session titled", "session_id", s.ID, "title", title)
	}()
}
