package chat

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// callSignature computes a deterministic signature for a tool call
// (name + hash of arguments).
func callSignature(name string, arguments json.RawMessage) string {
	h := sha256.Sum256(arguments)
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// recentCallSignatures walks the branch backwards collecting signatures of
// the most recent tool call requests, returned in chronological order.
func recentCallSignatures(b *Branch, count int) []string {
	var sigs []string
	for i := len(b.Messages) - 1; i >= 0 && len(sigs) < count; i-- {
		msg := b.Messages[i]
		if msg.Kind != KindToolCall {
			continue
		}
		for j := len(msg.ToolCalls) - 1; j >= 0 && len(sigs) < count; j-- {
			call := msg.ToolCalls[j]
			sigs = append(sigs, callSignature(call.Name, call.Arguments))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop reports whether the branch's last windowSize tool calls
// follow a repeating pattern of length 1, 2, or 3. The agent loop responds
// by injecting a steering notice, not by aborting the turn.
func DetectLoop(b *Branch, windowSize int) bool {
	sigs := recentCallSignatures(b, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
			if !allMatch {
				break
			}
		}
		if allMatch {
			return true
		}
	}

	return false
}
