package tools

import (
	"strings"
	"testing"
)

func TestTruncateOutputUnderLimit(t *testing.T) {
	out := TruncateOutput("short", 100, TruncateHeadTail)
	if out != "short" {
		t.Errorf("got %q", out)
	}
}

func TestTruncateOutputHeadTail(t *testing.T) {
	input := strings.Repeat("a", 500) + strings.Repeat("z", 500)
	out := TruncateOutput(input, 100, TruncateHeadTail)

	if !strings.HasPrefix(out, strings.Repeat("a", 50)) {
		t.Error("head not preserved")
	}
	if !strings.HasSuffix(out, strings.Repeat("z", 50)) {
		t.Error("tail not preserved")
	}
	if !strings.Contains(out, "truncated") {
		t.Error("missing truncation marker")
	}
}

func TestTruncateOutputTail(t *testing.T) {
	input := strings.Repeat("a", 500) + strings.Repeat("z", 100)
	out := TruncateOutput(input, 100, TruncateTail)

	if !strings.HasSuffix(out, strings.Repeat("z", 100)) {
		t.Error("tail not preserved")
	}
	if strings.Contains(out[len(out)-100:], "a") {
		t.Error("head survived tail truncation")
	}
}

func TestTruncateLines(t *testing.T) {
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, "line")
	}
	out := TruncateLines(strings.Join(lines, "\n"), 10)
	if !strings.Contains(out, "90 lines omitted") {
		t.Errorf("got %q", out)
	}

	short := "a\nb\nc"
	if TruncateLines(short, 10) != short {
		t.Error("short input modified")
	}
}

func TestTruncateToolOutputPipeline(t *testing.T) {
	// execute_command has both a character and a line limit.
	var lines []string
	for i := 0; i < 1000; i++ {
		lines = append(lines, "output line")
	}
	out := truncateToolOutput(strings.Join(lines, "\n"), "execute_command")
	if got := len(strings.Split(out, "\n")); got > 260 {
		t.Errorf("line limit not applied: %d lines", got)
	}
}
