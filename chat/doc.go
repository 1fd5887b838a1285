// Package chat is the orchestration core of the engine: it owns session
// lifecycle, branched message history, the agent loop with its budgets and
// retry policy, approval gating for tool calls, incremental content
// delivery through a sequenced chunk buffer, and metadata-only signal
// fan-out to subscribers.
//
// A Session moves through a small state machine (Idle, StreamingResponse,
// AwaitingToolApproval, ExecutingTools, Error). All mutation is funneled
// through the Engine so at most one logical transition is in flight per
// session. Content never travels over the signal channel; subscribers pull
// chunks and session state when a signal tells them something changed.
package chat
