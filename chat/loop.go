package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bigduu/chatengine/llm"
)

// errTurnAborted marks an episode stopped by external abort. The abort
// path already finalized the in-flight message.
var errTurnAborted = errors.New("turn aborted")

const correctiveParsePrompt = "Your previous response contained a malformed action block. " +
	"Reply again with a single valid JSON action block, or with plain text if no action is needed."

// runTurn drives one episode: invoke the model, stream output, route tool
// calls through approval and execution, repeat until the turn resolves or
// a budget is exhausted.
func (e *Engine) runTurn(ctx context.Context, s *Session) {
	for {
		if stop := e.checkBudget(s); stop {
			return
		}

		msg, resp, err := e.streamAssistant(ctx, s)
		if err != nil {
			if errors.Is(err, errTurnAborted) {
				e.finishTurn(ctx, s)
				return
			}
			e.failTurn(ctx, s, fmt.Sprintf("model invocation failed: %v", err))
			return
		}

		outcome := e.interpret(s, msg, resp)
		switch outcome.kind {
		case outcomeParseRetry:
			continue

		case outcomeDone:
			e.finishTurn(ctx, s)
			return

		case outcomeBatch:
			batch := e.createBatch(s, outcome)
			if e.parkIfApprovalNeeded(ctx, s, batch, outcome.continueHint) {
				return
			}
			for _, req := range batch {
				if !req.Resolved() {
					req.Resolve(true)
				}
			}
			if !e.executeAndContinue(ctx, s, batch, outcome.continueHint) {
				return
			}
		}
	}
}

// resumeTurn re-enters the loop after an approval batch has been fully
// resolved.
func (e *Engine) resumeTurn(ctx context.Context, s *Session, batch []*ToolCallRequest, continueHint bool) {
	if !e.executeAndContinue(ctx, s, batch, continueHint) {
		return
	}
	e.runTurn(ctx, s)
}

// checkBudget fails the turn when the iteration or wall-clock budget is
// already spent, before invoking the model again. Returns true when the
// episode is over.
func (e *Engine) checkBudget(s *Session) bool {
	s.mu.Lock()
	if s.loop == nil {
		s.mu.Unlock()
		return true
	}
	cfg := s.config
	iterations := s.loop.iterations
	elapsed := time.Since(s.loop.startedAt)
	aborted := s.loop.aborted
	s.mu.Unlock()

	ctx := context.Background()
	switch {
	case aborted:
		e.finishTurn(ctx, s)
		return true
	case iterations >= cfg.MaxIterations:
		e.signals.Publish(s.ID, Signal{Type: SignalContinuationLimitReached})
		e.failTurn(ctx, s, fmt.Sprintf("iteration budget exhausted after %d iterations", iterations))
		return true
	case elapsed >= cfg.WallClockTimeout:
		e.signals.Publish(s.ID, Signal{Type: SignalContinuationLimitReached})
		e.failTurn(ctx, s, fmt.Sprintf("turn exceeded wall-clock budget of %s", cfg.WallClockTimeout))
		return true
	}
	return false
}

// streamAssistant invokes the model with the branch history and permitted
// tool definitions, streaming text into the chunk buffer as it arrives.
func (e *Engine) streamAssistant(ctx context.Context, s *Session) (*Message, *llm.Response, error) {
	s.mu.Lock()
	cfg := s.config
	history := s.activeBranch().History()
	s.mu.Unlock()

	permitted := e.policy.PermittedTools(e.registry, cfg.Role)
	toolDefs := append(e.registry.Definitions(permitted), TodoWriteDefinition())
	history = append(history, llm.SystemMessage(BuildToolInstructions(toolDefs)))

	msg := NewMessage(llm.RoleAssistant, KindText)
	s.mu.Lock()
	s.activeBranch().Append(msg)
	s.mu.Unlock()
	e.signals.Publish(s.ID, Signal{Type: SignalMessageCreated, MessageID: msg.ID})

	req := llm.Request{
		Model:      cfg.Model,
		Provider:   cfg.Provider,
		Messages:   history,
		ToolDefs:   toolDefs,
		ToolChoice: &llm.ToolChoice{Mode: "auto"},
	}

	events, err := e.client.Stream(ctx, req)
	if err != nil {
		e.finalizeMessage(s, msg, e.isAbort(s, err))
		if e.isAbort(s, err) {
			return msg, nil, errTurnAborted
		}
		return msg, nil, err
	}

	var resp *llm.Response
	var streamErr error
	for ev := range events {
		switch ev.Type {
		case llm.TextDelta:
			s.mu.Lock()
			msg.AppendText(ev.Delta)
			s.mu.Unlock()
			seq := e.buffer.Append(msg.ID, ev.Delta)
			e.signals.Publish(s.ID, Signal{Type: SignalContentDelta, MessageID: msg.ID, Sequence: &seq})
		case llm.StreamFinish:
			// Tool calls ride on the final response, not on the
			// intermediate tool_call events.
			resp = ev.Response
		case llm.StreamError:
			streamErr = ev.Err
		}
	}

	if streamErr != nil {
		aborted := e.isAbort(s, streamErr)
		e.finalizeMessage(s, msg, aborted)
		if aborted {
			return msg, nil, errTurnAborted
		}
		return msg, nil, streamErr
	}
	if resp == nil {
		aborted := e.isAbort(s, nil)
		e.finalizeMessage(s, msg, aborted)
		if aborted {
			return msg, nil, errTurnAborted
		}
		return msg, nil, fmt.Errorf("stream ended without a final response")
	}

	e.finalizeMessage(s, msg, false)
	return msg, resp, nil
}

// finalizeMessage marks the message complete (aborted means
// terminated-incomplete) and always publishes message_completed so no
// subscriber hangs waiting.
func (e *Engine) finalizeMessage(s *Session, msg *Message, aborted bool) {
	s.mu.Lock()
	msg.Completed = true
	msg.Aborted = aborted
	s.mu.Unlock()
	e.buffer.MarkComplete(msg.ID)
	e.signals.Publish(s.ID, Signal{Type: SignalMessageCompleted, MessageID: msg.ID})
}

func (e *Engine) isAbort(s *Session, err error) bool {
	s.mu.Lock()
	aborted := s.loop != nil && s.loop.aborted
	s.mu.Unlock()
	if aborted {
		return true
	}
	var abortErr *llm.AbortError
	return errors.As(err, &abortErr)
}

type outcomeKind int

const (
	outcomeDone outcomeKind = iota
	outcomeParseRetry
	outcomeBatch
)

type turnOutcome struct {
	kind         outcomeKind
	calls        []llm.ToolCallData
	continueHint bool
}

// interpret decides what the finished assistant output means: native tool
// calls win; otherwise the text is scanned for a structured action block.
// Malformed blocks consume parse retries; once the budget is spent the
// output degrades to plain text.
func (e *Engine) interpret(s *Session, msg *Message, resp *llm.Response) turnOutcome {
	if native := resp.Message.ToolCalls(); len(native) > 0 {
		// A native tool_calls finish is itself the model's continue signal.
		return turnOutcome{kind: outcomeBatch, calls: native, continueHint: true}
	}

	action, err := ParseAction(msg.Text())
	if errors.Is(err, ErrNoAction) {
		return turnOutcome{kind: outcomeDone}
	}
	if err != nil {
		s.mu.Lock()
		retries := 0
		if s.loop != nil {
			retries = s.loop.parseRetries
		}
		cfg := s.config
		if s.loop != nil && retries < cfg.ParseRetries {
			s.loop.parseRetries++
			corrective := NewUserMessage(correctiveParsePrompt)
			s.activeBranch().Append(corrective)
			s.mu.Unlock()
			e.logger.Warn("malformed action block, re-prompting",
				"session_id", s.ID, "retry", retries+1, "error", err)
			return turnOutcome{kind: outcomeParseRetry}
		}
		s.mu.Unlock()
		e.logger.Warn("action parse budget exhausted, degrading to text", "session_id", s.ID)
		return turnOutcome{kind: outcomeDone}
	}

	switch action.Action {
	case ActionToolCalls:
		calls := make([]llm.ToolCallData, len(action.ToolCalls))
		for i, call := range action.ToolCalls {
			calls[i] = llm.ToolCallData{Name: call.Name, Arguments: call.Arguments}
		}
		return turnOutcome{kind: outcomeBatch, calls: calls, continueHint: action.Continue}

	case ActionPlan:
		plan := NewMessage(llm.RoleAssistant, KindPlan)
		for i, step := range action.Plan {
			if i > 0 {
				plan.AppendText("\n")
			}
			plan.AppendText(fmt.Sprintf("%d. %s", i+1, step))
		}
		plan.Completed = true
		e.appendAndAnnounce(s, plan)
		return turnOutcome{kind: outcomeDone}

	case ActionQuestion:
		q := NewMessage(llm.RoleAssistant, KindQuestion)
		q.AppendText(action.Question)
		q.Completed = true
		e.appendAndAnnounce(s, q)
		return turnOutcome{kind: outcomeDone}
	}
	return turnOutcome{kind: outcomeDone}
}

func (e *Engine) appendAndAnnounce(s *Session, msg *Message) {
	s.mu.Lock()
	s.activeBranch().Append(msg)
	s.mu.Unlock()
	e.buffer.MarkComplete(msg.ID)
	e.signals.Publish(s.ID, Signal{Type: SignalMessageCreated, MessageID: msg.ID})
	e.signals.Publish(s.ID, Signal{Type: SignalMessageCompleted, MessageID: msg.ID})
}

// createBatch classifies parsed calls under the active role policy and
// records them as a tool_call message. Calls naming forbidden tools are
// rejected on the spot; permitted calls start pending.
func (e *Engine) createBatch(s *Session, outcome turnOutcome) []*ToolCallRequest {
	cfg := s.Config()

	batch := make([]*ToolCallRequest, 0, len(outcome.calls))
	for _, call := range outcome.calls {
		req := NewToolCallRequest(call.Name, call.Arguments)
		if call.ID != "" {
			req.ID = call.ID
		}
		if call.Name != TodoWriteToolName && !e.policy.IsPermitted(e.registry, cfg.Role, call.Name) {
			req.Resolve(false)
			e.logger.Info("tool call rejected by role policy",
				"session_id", s.ID, "tool", call.Name, "role", cfg.Role)
		}
		batch = append(batch, req)
	}

	msg := NewMessage(llm.RoleAssistant, KindToolCall)
	msg.ToolCalls = batch
	msg.Completed = true
	e.appendAndAnnounce(s, msg)

	s.mu.Lock()
	if s.loop != nil {
		s.loop.pendingMsgID = msg.ID
	}
	s.mu.Unlock()
	return batch
}

// parkIfApprovalNeeded transitions to AwaitingToolApproval when any
// permitted call requires approval. The episode goroutine exits; the
// parked batch waits indefinitely for ResolveToolCalls.
func (e *Engine) parkIfApprovalNeeded(ctx context.Context, s *Session, batch []*ToolCallRequest, continueHint bool) bool {
	needsApproval := false
	for _, req := range batch {
		if req.Resolved() {
			continue
		}
		if req.Name == TodoWriteToolName {
			continue
		}
		if c := e.registry.Get(req.Name); c != nil && c.RequiresApproval() {
			needsApproval = true
			break
		}
	}
	if !needsApproval {
		return false
	}

	s.mu.Lock()
	if s.loop == nil {
		s.mu.Unlock()
		return true
	}
	s.loop.pending = batch
	s.loop.continueHint = continueHint
	s.mu.Unlock()

	e.setState(ctx, s, StateAwaitingApproval)
	return true
}

// executeAndContinue runs the resolved batch, appends results in request
// order, and decides continuation. Returns true when the loop should
// invoke the model again.
func (e *Engine) executeAndContinue(ctx context.Context, s *Session, batch []*ToolCallRequest, continueHint bool) bool {
	e.setState(ctx, s, StateExecutingTools)

	results := e.executeBatch(ctx, s, batch)
	for _, res := range results {
		e.appendAndAnnounce(s, res)
	}

	s.mu.Lock()
	if s.loop != nil {
		s.loop.iterations++
	}
	cfg := s.config
	active := s.activeBranch()
	loopDetected := cfg.EnableLoopDetect && DetectLoop(active, cfg.LoopDetectWindow)
	aborted := s.loop == nil || s.loop.aborted
	s.mu.Unlock()

	e.persist(ctx, s)

	if aborted {
		e.finishTurn(ctx, s)
		return false
	}

	if loopDetected {
		notice := NewUserMessage(fmt.Sprintf(
			"Notice: the last %d tool calls follow a repeating pattern. Try a different approach.",
			cfg.LoopDetectWindow))
		e.appendAndAnnounce(s, notice)
	}

	if cfg.ContinuationPolicy == ContinueOnSignal && !continueHint {
		e.finishTurn(ctx, s)
		return false
	}

	// Budget decisions happen at the batch boundary, before the model is
	// ever invoked again.
	s.mu.Lock()
	iterations := 0
	var elapsed time.Duration
	if s.loop != nil {
		iterations = s.loop.iterations
		elapsed = time.Since(s.loop.startedAt)
	}
	s.mu.Unlock()

	if iterations >= cfg.MaxIterations {
		e.signals.Publish(s.ID, Signal{Type: SignalContinuationLimitReached})
		e.failTurn(ctx, s, fmt.Sprintf("iteration budget exhausted after %d iterations", iterations))
		return false
	}
	if elapsed >= cfg.WallClockTimeout {
		e.signals.Publish(s.ID, Signal{Type: SignalContinuationLimitReached})
		e.failTurn(ctx, s, fmt.Sprintf("turn exceeded wall-clock budget of %s", cfg.WallClockTimeout))
		return false
	}

	e.signals.Publish(s.ID, Signal{Type: SignalAgentContinue})
	e.setState(ctx, s, StateStreaming)
	return true
}

// executeBatch dispatches the batch concurrently and returns one result
// message per request in request order. Rejected calls never execute and
// yield visible rejected results; failing tools are retried up to the
// attempt budget and then absorbed as failed results.
func (e *Engine) executeBatch(ctx context.Context, s *Session, batch []*ToolCallRequest) []*Message {
	cfg := s.Config()
	results := make([]*Message, len(batch))

	var wg sync.WaitGroup
	for i, req := range batch {
		if req.Status == ApprovalRejected {
			results[i] = NewToolResultMessage(req.ID,
				fmt.Sprintf("Tool call %q was rejected and did not execute.", req.Name), true)
			continue
		}
		wg.Add(1)
		go func(idx int, r *ToolCallRequest) {
			defer wg.Done()
			results[idx] = e.executeOne(ctx, s, cfg, r)
		}(i, req)
	}
	wg.Wait()
	return results
}

// executeOne runs a single approved call with per-attempt timeout and the
// total attempt budget, always with the same arguments.
func (e *Engine) executeOne(ctx context.Context, s *Session, cfg Config, req *ToolCallRequest) *Message {
	if req.Name == TodoWriteToolName {
		return e.executeTodoWrite(ctx, s, req)
	}

	c := e.registry.Get(req.Name)
	if c == nil {
		return NewToolResultMessage(req.ID, fmt.Sprintf("unknown tool %q", req.Name), true)
	}

	attempts := cfg.ToolRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.ToolTimeout)
		output, err := c.Execute(attemptCtx, req.Arguments)
		cancel()
		if err == nil {
			return NewToolResultMessage(req.ID, output, false)
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		e.logger.Warn("tool execution failed",
			"session_id", s.ID, "tool", req.Name, "attempt", attempt, "error", err)
	}

	return NewToolResultMessage(req.ID,
		fmt.Sprintf("tool %q failed after %d attempts: %v", req.Name, attempts, lastErr), true)
}

// executeTodoWrite is the built-in capability intercepted before registry
// dispatch: it replaces the session todo list and announces the change.
func (e *Engine) executeTodoWrite(ctx context.Context, s *Session, req *ToolCallRequest) *Message {
	list, err := ParseTodoWrite(req.Arguments)
	if err != nil {
		return NewToolResultMessage(req.ID, fmt.Sprintf("todo_write rejected: %v", err), true)
	}

	s.mu.Lock()
	s.todo = list
	s.UpdatedAt = time.Now()
	s.mu.Unlock()

	e.signals.Publish(s.ID, Signal{Type: SignalTodoListUpdated})

	snapshot, _ := json.Marshal(list)
	snap := NewMessage(llm.RoleAssistant, KindTodoSnapshot)
	snap.AppendText(string(snapshot))
	snap.Completed = true
	e.appendAndAnnounce(s, snap)

	return NewToolResultMessage(req.ID,
		fmt.Sprintf("todo list updated: %d items, status %s", len(list.Items), list.Status()), false)
}

// finishTurn resolves the episode to Idle and discards the loop state.
func (e *Engine) finishTurn(ctx context.Context, s *Session) {
	s.mu.Lock()
	if s.loop != nil && s.loop.cancel != nil {
		s.loop.cancel()
	}
	s.loop = nil
	s.mu.Unlock()

	e.setState(ctx, s, StateIdle)
	e.maybeGenerateTitle(s)
}

// failTurn surfaces a session-visible error: a diagnostic message is
// appended, the session passes through Error, and then returns to Idle.
func (e *Engine) failTurn(ctx context.Context, s *Session, diagnostic string) {
	e.logger.Error("turn failed", "session_id", s.ID, "diagnostic", diagnostic)

	diag := NewMessage(llm.RoleAssistant, KindText)
	diag.AppendText(diagnostic)
	diag.Completed = true
	e.appendAndAnnounce(s, diag)

	s.mu.Lock()
	if s.loop != nil && s.loop.cancel != nil {
		s.loop.cancel()
	}
	s.loop = nil
	s.mu.Unlock()

	e.setState(ctx, s, StateError)
	e.setState(ctx, s, StateIdle)
}
