// Package httpapi exposes the chat engine over HTTP. State-changing
// operations are plain JSON endpoints; streamed content is delivered as
// lightweight signals over SSE plus a chunk replay endpoint, so a client
// that misses deltas can always catch up.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bigduu/chatengine/chat"
)

// Server routes HTTP requests to an engine.
type Server struct {
	engine *chat.Engine
	logger *slog.Logger
}

// NewServer builds the HTTP handler for an engine.
func NewServer(engine *chat.Engine, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: engine, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("POST /sessions/{id}/approvals", s.handleResolveToolCalls)
	mux.HandleFunc("POST /sessions/{id}/abort", s.handleAbort)
	mux.HandleFunc("POST /sessions/{id}/fork", s.handleFork)
	mux.HandleFunc("POST /sessions/{id}/branch", s.handleSwitchBranch)
	mux.HandleFunc("POST /sessions/{id}/todo/abandon", s.handleAbandonTodo)
	mux.HandleFunc("GET /sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /messages/{id}/chunks", s.handleChunks)
	return mux
}

type createSessionRequest struct {
	Model              string `json:"model,omitempty"`
	Provider           string `json:"provider,omitempty"`
	Role               string `json:"role,omitempty"`
	SystemPrompt       string `json:"system_prompt,omitempty"`
	MaxIterations      int    `json:"max_iterations,omitempty"`
	ContinuationPolicy string `json:"continuation_policy,omitempty"`
}

type sessionResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	State        string    `json:"state"`
	Role         string    `json:"role"`
	Model        string    `json:"model"`
	ActiveBranch string    `json:"active_branch"`
	Branches     []string  `json:"branches"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type messageResponse struct {
	ID        string             `json:"id"`
	Role      string             `json:"role"`
	Kind      string             `json:"kind"`
	Text      string             `json:"text,omitempty"`
	ToolCalls []toolCallResponse `json:"tool_calls,omitempty"`
	Completed bool               `json:"completed"`
	Aborted   bool               `json:"aborted,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

type toolCallResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Status    string          `json:"status"`
}

type getSessionResponse struct {
	Session  sessionResponse   `json:"session"`
	Messages []messageResponse `json:"messages"`
	Todo     *chat.TodoList    `json:"todo,omitempty"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	MessageID string `json:"message_id"`
}

type resolveRequest struct {
	Resolutions []struct {
		ID       string `json:"id"`
		Approved bool   `json:"approved"`
	} `json:"resolutions"`
}

type forkRequest struct {
	Branch  string `json:"branch"`
	AtIndex int    `json:"at_index"`
}

type switchBranchRequest struct {
	Branch string `json:"branch"`
}

type chunksResponse struct {
	Chunks       []chat.Chunk `json:"chunks"`
	NextSequence int          `json:"next_sequence"`
	HasMore      bool         `json:"has_more"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	cfg := &chat.Config{
		Model:              req.Model,
		Provider:           req.Provider,
		Role:               chat.Role(req.Role),
		SystemPrompt:       req.SystemPrompt,
		MaxIterations:      req.MaxIterations,
		ContinuationPolicy: chat.ContinuationPolicy(req.ContinuationPolicy),
	}
	session, err := s.engine.CreateSession(r.Context(), cfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.engine.ListSessions()
	out := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionResponse(session))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.engine.GetSession(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	msgs := session.Messages()
	resp := getSessionResponse{
		Session:  toSessionResponse(session),
		Messages: make([]messageResponse, 0, len(msgs)),
		Todo:     session.Todo(),
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text is required")
		return
	}

	messageID, err := s.engine.SendMessage(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// The turn runs asynchronously; progress arrives over the event
	// stream.
	writeJSON(w, http.StatusAccepted, sendMessageResponse{MessageID: messageID})
}

func (s *Server) handleResolveToolCalls(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if len(req.Resolutions) == 0 {
		badRequest(w, "resolutions is required")
		return
	}

	resolutions := make([]chat.ToolCallResolution, 0, len(req.Resolutions))
	for _, res := range req.Resolutions {
		resolutions = append(resolutions, chat.ToolCallResolution{ID: res.ID, Approved: res.Approved})
	}
	if err := s.engine.ResolveToolCalls(r.Context(), r.PathValue("id"), resolutions); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Abort(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFork(w http.ResponseWriter, r *http.Request) {
	var req forkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Branch == "" {
		badRequest(w, "branch is required")
		return
	}
	if err := s.engine.Fork(r.Context(), r.PathValue("id"), req.Branch, req.AtIndex); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSwitchBranch(w http.ResponseWriter, r *http.Request) {
	var req switchBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Branch == "" {
		badRequest(w, "branch is required")
		return
	}
	if err := s.engine.SwitchBranch(r.Context(), r.PathValue("id"), req.Branch); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAbandonTodo(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.AbandonTodoList(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChunks replays buffered content deltas for a message from a given
// sequence. has_more false means the message is complete and the client
// has everything.
func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	from := 0
	if raw := r.URL.Query().Get("from_sequence"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "from_sequence must be a non-negative integer")
			return
		}
		from = n
	}

	chunks, next, hasMore, err := s.engine.Chunks(r.PathValue("id"), from)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if chunks == nil {
		chunks = []chat.Chunk{}
	}
	writeJSON(w, http.StatusOK, chunksResponse{Chunks: chunks, NextSequence: next, HasMore: hasMore})
}

// handleEvents streams session signals as SSE. Signals carry metadata
// only; clients fetch content through the chunk endpoint.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, err := s.engine.GetSession(sessionID); err != nil {
		s.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	signals, cancel := s.engine.Subscribe(sessionID)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			data, err := json.Marshal(sig)
			if err != nil {
				s.logger.Error("failed to marshal signal", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", sig.Type, data)
			flusher.Flush()
		}
	}
}

func toSessionResponse(session *chat.Session) sessionResponse {
	cfg := session.Config()
	return sessionResponse{
		ID:           session.ID,
		Title:        session.TitleText(),
		State:        string(session.State()),
		Role:         string(cfg.Role),
		Model:        cfg.Model,
		ActiveBranch: session.ActiveBranch(),
		Branches:     session.BranchNames(),
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
	}
}

func toMessageResponse(m *chat.Message) messageResponse {
	resp := messageResponse{
		ID:        m.ID,
		Role:      string(m.Role),
		Kind:      string(m.Kind),
		Text:      m.Text(),
		Completed: m.Completed,
		Aborted:   m.Aborted,
		CreatedAt: m.CreatedAt,
	}
	for _, call := range m.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, toolCallResponse{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
			Status:    string(call.Status),
		})
	}
	return resp
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound),
		errors.Is(err, chat.ErrMessageNotFound),
		errors.Is(err, chat.ErrBranchNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, chat.ErrSessionBusy),
		errors.Is(err, chat.ErrNotAwaitingApproval),
		errors.Is(err, chat.ErrAlreadyResolved),
		errors.Is(err, chat.ErrBranchExists):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, chat.ErrUnknownToolCall):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
