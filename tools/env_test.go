package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReadFileLineNumbers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.txt")
	if err := os.WriteFile(path, []byte("alpha\nbeta\ngamma\n"), 0644); err != nil {
		t.Fatal(err)
	}

	env := NewLocalEnvironment(dir)
	out, err := env.ReadFile("sample.txt", 0, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(out, "1 | alpha") || !strings.Contains(out, "3 | gamma") {
		t.Errorf("missing line numbers: %q", out)
	}

	out, err = env.ReadFile("sample.txt", 2, 1)
	if err != nil {
		t.Fatalf("read with window: %v", err)
	}
	if !strings.Contains(out, "2 | beta") || strings.Contains(out, "alpha") {
		t.Errorf("offset/limit window wrong: %q", out)
	}
}

func TestWriteFileCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	env := NewLocalEnvironment(dir)

	if err := env.WriteFile("nested/deep/out.txt", "payload"); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := env.ReadFileRaw("nested/deep/out.txt")
	if err != nil || raw != "payload" {
		t.Errorf("round trip failed: %q %v", raw, err)
	}
	if !env.FileExists("nested/deep/out.txt") {
		t.Error("FileExists false for written file")
	}
}

func TestListDirectory(t *testing.T) {
	dir := t.TempDir()
	env := NewLocalEnvironment(dir)
	if err := env.WriteFile("a.txt", "x"); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	entries, err := env.ListDirectory(".")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestExecCommand(t *testing.T) {
	env := NewLocalEnvironment(t.TempDir())

	result, err := env.ExecCommand(context.Background(), "echo hello && echo warn >&2", 5*time.Second, "")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if !strings.Contains(result.Stdout, "hello") {
		t.Errorf("stdout %q", result.Stdout)
	}
	if !strings.Contains(result.Stderr, "warn") {
		t.Errorf("stderr %q", result.Stderr)
	}
	if result.ExitCode != 0 || result.TimedOut {
		t.Errorf("result %+v", result)
	}
}

func TestExecCommandNonZeroExit(t *testing.T) {
	env := NewLocalEnvironment(t.TempDir())
	result, err := env.ExecCommand(context.Background(), "exit 7", 5*time.Second, "")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if result.ExitCode != 7 {
		t.Errorf("exit code %d", result.ExitCode)
	}
}

func TestExecCommandTimeout(t *testing.T) {
	env := NewLocalEnvironment(t.TempDir())
	result, err := env.ExecCommand(context.Background(), "sleep 5", 50*time.Millisecond, "")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if !result.TimedOut {
		t.Error("expected timeout")
	}
}

func TestGlobRelativePaths(t *testing.T) {
	dir := t.TempDir()
	env := NewLocalEnvironment(dir)
	for _, name := range []string{"one.go", "two.go", "skip.txt"} {
		if err := env.WriteFile(name, ""); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := env.Glob("*.go", "")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("matches %v", matches)
	}
	for _, m := range matches {
		if filepath.IsAbs(m) {
			t.Errorf("match not relative: %s", m)
		}
	}
}

func TestSensitiveEnvFiltering(t *testing.T) {
	cases := []struct {
		name      string
		sensitive bool
	}{
		{"OPENAI_API_KEY", true},
		{"DB_PASSWORD", true},
		{"GITHUB_TOKEN", true},
		{"EDITOR", false},
		{"PATH", false},
	}
	for _, tc := range cases {
		if got := isSensitiveEnvVar(tc.name); got != tc.sensitive {
			t.Errorf("isSensitiveEnvVar(%q) = %v, want %v", tc.name, got, tc.sensitive)
		}
	}
}
