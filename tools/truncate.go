package tools

import (
	"fmt"
	"strings"
)

// TruncationMode specifies which part of an oversized output survives.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Character limits per tool. Outputs beyond the limit are cut before they
// reach the model context.
var defaultCharLimits = map[string]int{
	"read_file":       50000,
	"execute_command": 30000,
	"search_files":    20000,
	"glob":            20000,
	"list_directory":  20000,
	"edit_file":       10000,
	"write_file":      1000,
}

var defaultTruncationModes = map[string]TruncationMode{
	"read_file":       TruncateHeadTail,
	"execute_command": TruncateHeadTail,
	"search_files":    TruncateTail,
	"glob":            TruncateTail,
	"list_directory":  TruncateTail,
	"edit_file":       TruncateTail,
	"write_file":      TruncateTail,
}

// Line limits per tool, applied after character truncation.
var defaultLineLimits = map[string]int{
	"execute_command": 256,
	"search_files":    200,
	"glob":            500,
}

// TruncateOutput applies character-based truncation.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}

	removed := len(output) - maxChars
	if mode == TruncateTail {
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", removed) +
			output[len(output)-maxChars:]
	}

	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"Re-run the tool with more targeted parameters if you need the missing parts.]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateLines applies line-based truncation using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// truncateToolOutput runs the full pipeline for a tool: character
// truncation first to bound pathological outputs, then line truncation
// for readability.
func truncateToolOutput(output, toolName string) string {
	maxChars, ok := defaultCharLimits[toolName]
	if !ok {
		maxChars = 30000
	}
	mode, ok := defaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	result := TruncateOutput(output, maxChars, mode)

	if maxLines, ok := defaultLineLimits[toolName]; ok {
		result = TruncateLines(result, maxLines)
	}
	return result
}
