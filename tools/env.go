// Package tools provides the built-in filesystem and shell capabilities
// for a chat engine. Capabilities run against an Environment, so the same
// tool set can target the local machine or a sandboxed backend.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// DirEntry is one filesystem directory entry.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// SearchOptions configures content search.
type SearchOptions struct {
	GlobFilter      string `json:"glob_filter,omitempty"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
	MaxResults      int    `json:"max_results,omitempty"`
}

// Environment abstracts where tool operations run.
type Environment interface {
	ReadFile(path string, offset, limit int) (string, error)
	ReadFileRaw(path string) (string, error)
	WriteFile(path string, content string) error
	FileExists(path string) bool
	ListDirectory(path string) ([]DirEntry, error)

	ExecCommand(ctx context.Context, command string, timeout time.Duration, workingDir string) (*ExecResult, error)

	Search(ctx context.Context, pattern, path string, options SearchOptions) (string, error)
	Glob(pattern, path string) ([]string, error)

	WorkingDirectory() string
}

// sensitiveEnvSuffixes are case-insensitive suffixes for environment
// variables that are withheld from spawned commands.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "CARGO_HOME": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if safeEnvVars[parts[0]] || !isSensitiveEnvVar(parts[0]) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// LocalEnvironment runs tools on the local machine, resolving relative
// paths against a working directory.
type LocalEnvironment struct {
	workingDir string
}

// NewLocalEnvironment creates a local environment rooted at workingDir.
// An empty workingDir defaults to the process working directory.
func NewLocalEnvironment(workingDir string) *LocalEnvironment {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	return &LocalEnvironment{workingDir: workingDir}
}

func (e *LocalEnvironment) WorkingDirectory() string {
	return e.workingDir
}

func (e *LocalEnvironment) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workingDir, path)
}

// ReadFile returns line-numbered content. Offset is 1-based; limit 0 means
// unbounded.
func (e *LocalEnvironment) ReadFile(path string, offset, limit int) (string, error) {
	data, err := os.ReadFile(e.resolvePath(path))
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	start := 0
	if offset > 0 {
		start = offset - 1
	}
	if start >= len(lines) {
		return "", nil
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return sb.String(), nil
}

func (e *LocalEnvironment) ReadFileRaw(path string) (string, error) {
	data, err := os.ReadFile(e.resolvePath(path))
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	return string(data), nil
}

func (e *LocalEnvironment) WriteFile(path string, content string) error {
	resolved := e.resolvePath(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return fmt.Errorf("write_file: failed to create directory: %w", err)
	}
	return os.WriteFile(resolved, []byte(content), 0644)
}

func (e *LocalEnvironment) FileExists(path string) bool {
	_, err := os.Stat(e.resolvePath(path))
	return err == nil
}

func (e *LocalEnvironment) ListDirectory(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(e.resolvePath(path))
	if err != nil {
		return nil, fmt.Errorf("list_directory: %w", err)
	}

	var result []DirEntry
	for _, entry := range entries {
		de := DirEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			de.Size = info.Size()
		}
		result = append(result, de)
	}
	return result, nil
}

func (e *LocalEnvironment) ExecCommand(ctx context.Context, command string, timeout time.Duration, workingDir string) (*ExecResult, error) {
	if workingDir == "" {
		workingDir = e.workingDir
	} else {
		workingDir = e.resolvePath(workingDir)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell := "/bin/bash"
	shellArg := "-c"
	if runtime.GOOS == "windows" {
		shell = "cmd.exe"
		shellArg = "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = workingDir
	// Own process group so a timeout can kill the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = filterEnvironment()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("execute_command: %w", err)
		}
	}
	return result, nil
}

func (e *LocalEnvironment) Search(ctx context.Context, pattern, path string, options SearchOptions) (string, error) {
	if path == "" {
		path = e.workingDir
	} else {
		path = e.resolvePath(path)
	}

	rgPath, err := exec.LookPath("rg")
	if err != nil {
		return e.searchFallback(ctx, pattern, path, options)
	}

	args := []string{pattern, path, "--line-number", "--no-heading"}
	if options.CaseInsensitive {
		args = append(args, "-i")
	}
	if options.GlobFilter != "" {
		args = append(args, "--glob", options.GlobFilter)
	}
	if options.MaxResults > 0 {
		args = append(args, "--max-count", fmt.Sprintf("%d", options.MaxResults))
	}

	cmd := exec.CommandContext(ctx, rgPath, args...)
	cmd.Dir = e.workingDir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run() // rg exits 1 for no matches
	return stdout.String(), nil
}

func (e *LocalEnvironment) searchFallback(ctx context.Context, pattern, path string, options SearchOptions) (string, error) {
	args := []string{"-rn", pattern, path}
	if options.CaseInsensitive {
		args = append([]string{"-i"}, args...)
	}

	cmd := exec.CommandContext(ctx, "grep", args...)
	cmd.Dir = e.workingDir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()
	return stdout.String(), nil
}

func (e *LocalEnvironment) Glob(pattern, path string) ([]string, error) {
	if path == "" {
		path = e.workingDir
	} else {
		path = e.resolvePath(path)
	}

	matches, err := filepath.Glob(filepath.Join(path, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}

	result := make([]string, len(matches))
	for i, m := range matches {
		rel, err := filepath.Rel(e.workingDir, m)
		if err != nil {
			result[i] = m
		} else {
			result[i] = rel
		}
	}
	return result, nil
}
