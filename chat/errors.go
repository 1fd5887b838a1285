package chat

import "errors"

var (
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy is returned when an operation requires Idle but the
	// session is mid-turn.
	ErrSessionBusy = errors.New("session is busy")

	// ErrNotAwaitingApproval is returned by ResolveToolCalls when the
	// session has no pending approval batch.
	ErrNotAwaitingApproval = errors.New("session is not awaiting tool approval")

	// ErrAlreadyResolved is returned when a tool call request that has
	// left pending is resolved again.
	ErrAlreadyResolved = errors.New("tool call request already resolved")

	// ErrUnknownToolCall is returned when a resolution names a tool call
	// id outside the pending batch.
	ErrUnknownToolCall = errors.New("unknown tool call id")

	// ErrBranchNotFound is returned when a branch name is unknown.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrBranchExists is returned when forking to a name already in use.
	ErrBranchExists = errors.New("branch already exists")

	// ErrMessageNotFound is returned by chunk reads for unknown messages.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNoAction indicates assistant output carried no structured action
	// block. This is a normal outcome, not a parse failure.
	ErrNoAction = errors.New("no action block present")
)
