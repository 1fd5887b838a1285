package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bigduu/chatengine/chat"
)

const (
	// DefaultCommandTimeout bounds execute_command when the model gives
	// no timeout_ms.
	DefaultCommandTimeout = 30 * time.Second
	// MaxCommandTimeout caps any model-requested timeout.
	MaxCommandTimeout = 10 * time.Minute
)

// RegisterAll registers the built-in capabilities on a registry, backed
// by the given environment.
func RegisterAll(reg *chat.Registry, env Environment) {
	reg.Register(ReadFile(env))
	reg.Register(WriteFile(env))
	reg.Register(EditFile(env))
	reg.Register(ListDirectory(env))
	reg.Register(SearchFiles(env))
	reg.Register(GlobFiles(env))
	reg.Register(ExecuteCommand(env))
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

// ReadFile returns the read_file capability: line-numbered file content
// with optional offset and limit.
func ReadFile(env Environment) chat.Capability {
	return &chat.FuncCapability{
		CapName:        "read_file",
		CapDescription: "Read a file from the filesystem. Returns line-numbered content.",
		CapParameters: objectSchema(map[string]any{
			"file_path": prop("string", "Path to the file to read."),
			"offset":    prop("integer", "1-based line number to start reading from."),
			"limit":     prop("integer", "Maximum number of lines to read. Default: 2000."),
		}, "file_path"),
		CapPermissions: []chat.Permission{chat.PermissionRead},
		Fn: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			var args struct {
				FilePath string `json:"file_path"`
				Offset   int    `json:"offset"`
				Limit    int    `json:"limit"`
			}
			if err := json.Unmarshal(arguments, &args); err != nil {
				return "", fmt.Errorf("read_file: invalid arguments: %w", err)
			}
			if args.FilePath == "" {
				return "", fmt.Errorf("file_path is required")
			}
			if args.Limit == 0 {
				args.Limit = 2000
			}
			out, err := env.ReadFile(args.FilePath, args.Offset, args.Limit)
			if err != nil {
				return "", err
			}
			return truncateToolOutput(out, "read_file"), nil
		},
	}
}

// WriteFile returns the write_file capability. Writes require approval.
func WriteFile(env Environment) chat.Capability {
	return &chat.FuncCapability{
		CapName:        "write_file",
		CapDescription: "Write content to a file. Creates the file and parent directories if needed.",
		CapParameters: objectSchema(map[string]any{
			"file_path": prop("string", "Path to write to."),
			"content":   prop("string", "The full file content to write."),
		}, "file_path", "content"),
		CapPermissions: []chat.Permission{chat.PermissionWrite},
		NeedsApproval:  true,
		Fn: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			var args struct {
				FilePath string  `json:"file_path"`
				Content  *string `json:"content"`
			}
			if err := json.Unmarshal(arguments, &args); err != nil {
				return "", fmt.Errorf("write_file: invalid arguments: %w", err)
			}
			if args.FilePath == "" {
				return "", fmt.Errorf("file_path is required")
			}
			if args.Content == nil {
				return "", fmt.Errorf("content is required")
			}
			if err := env.WriteFile(args.FilePath, *args.Content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Successfully wrote %d bytes to %s", len(*args.Content), args.FilePath), nil
		},
	}
}

// EditFile returns the edit_file capability: exact string replacement.
// The old string must be unique unless replace_all is set.
func EditFile(env Environment) chat.Capability {
	return &chat.FuncCapability{
		CapName: "edit_file",
		CapDescription: "Replace an exact string occurrence in a file. The old_string must be unique " +
			"in the file unless replace_all is true.",
		CapParameters: objectSchema(map[string]any{
			"file_path":   prop("string", "Path to the file to edit."),
			"old_string":  prop("string", "Exact text to find in the file."),
			"new_string":  prop("string", "Replacement text."),
			"replace_all": prop("boolean", "Replace all occurrences. Default: false."),
		}, "file_path", "old_string", "new_string"),
		CapPermissions: []chat.Permission{chat.PermissionWrite},
		NeedsApproval:  true,
		Fn: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			var args struct {
				FilePath   string `json:"file_path"`
				OldString  string `json:"old_string"`
				NewString  string `json:"new_string"`
				ReplaceAll bool   `json:"replace_all"`
			}
			if err := json.Unmarshal(arguments, &args); err != nil {
				return "", fmt.Errorf("edit_file: invalid arguments: %w", err)
			}
			if args.FilePath == "" {
				return "", fmt.Errorf("file_path is required")
			}
			if args.OldString == "" {
				return "", fmt.Errorf("old_string is required")
			}

			content, err := env.ReadFileRaw(args.FilePath)
			if err != nil {
				return "", fmt.Errorf("file not found: %s", args.FilePath)
			}

			count := strings.Count(content, args.OldString)
			if count == 0 {
				return "", fmt.Errorf("old_string not found in %s", args.FilePath)
			}
			if count > 1 && !args.ReplaceAll {
				return "", fmt.Errorf("old_string found %d times in %s. Provide more context to make it unique, or set replace_all=true",
					count, args.FilePath)
			}

			var updated string
			replacements := 1
			if args.ReplaceAll {
				updated = strings.ReplaceAll(content, args.OldString, args.NewString)
				replacements = count
			} else {
				updated = strings.Replace(content, args.OldString, args.NewString, 1)
			}
			if err := env.WriteFile(args.FilePath, updated); err != nil {
				return "", err
			}
			return fmt.Sprintf("Successfully replaced %d occurrence(s) in %s", replacements, args.FilePath), nil
		},
	}
}

// ListDirectory returns the list_directory capability.
func ListDirectory(env Environment) chat.Capability {
	return &chat.FuncCapability{
		CapName:        "list_directory",
		CapDescription: "List the entries of a directory. Directories are suffixed with a slash.",
		CapParameters: objectSchema(map[string]any{
			"path": prop("string", "Directory to list. Default: working directory."),
		}),
		CapPermissions: []chat.Permission{chat.PermissionRead},
		Fn: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			var args struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(arguments, &args); err != nil {
				return "", fmt.Errorf("list_directory: invalid arguments: %w", err)
			}
			if args.Path == "" {
				args.Path = "."
			}
			entries, err := env.ListDirectory(args.Path)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return "Directory is empty.", nil
			}
			var sb strings.Builder
			for _, entry := range entries {
				if entry.IsDir {
					fmt.Fprintf(&sb, "%s/\n", entry.Name)
				} else {
					fmt.Fprintf(&sb, "%s (%d bytes)\n", entry.Name, entry.Size)
				}
			}
			return truncateToolOutput(sb.String(), "list_directory"), nil
		},
	}
}

// SearchFiles returns the search_files capability: regex content search
// with file paths and line numbers.
func SearchFiles(env Environment) chat.Capability {
	return &chat.FuncCapability{
		CapName:        "search_files",
		CapDescription: "Search file contents using regex patterns. Returns matching lines with file paths and line numbers.",
		CapParameters: objectSchema(map[string]any{
			"pattern":          prop("string", "Regex pattern to search for."),
			"path":             prop("string", "Directory or file to search. Default: working directory."),
			"glob_filter":      prop("string", "File pattern filter (e.g., \"*.go\")."),
			"case_insensitive": prop("boolean", "Case insensitive search. Default: false."),
			"max_results":      prop("integer", "Maximum number of results. Default: 100."),
		}, "pattern"),
		CapPermissions: []chat.Permission{chat.PermissionRead},
		Fn: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			var args struct {
				Pattern         string `json:"pattern"`
				Path            string `json:"path"`
				GlobFilter      string `json:"glob_filter"`
				CaseInsensitive bool   `json:"case_insensitive"`
				MaxResults      int    `json:"max_results"`
			}
			if err := json.Unmarshal(arguments, &args); err != nil {
				return "", fmt.Errorf("search_files: invalid arguments: %w", err)
			}
			if args.Pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			if args.MaxResults <= 0 {
				args.MaxResults = 100
			}
			out, err := env.Search(ctx, args.Pattern, args.Path, SearchOptions{
				GlobFilter:      args.GlobFilter,
				CaseInsensitive: args.CaseInsensitive,
				MaxResults:      args.MaxResults,
			})
			if err != nil {
				return "", err
			}
			if out == "" {
				return "No matches found.", nil
			}
			return truncateToolOutput(out, "search_files"), nil
		},
	}
}

// GlobFiles returns the glob capability: file name matching by pattern.
func GlobFiles(env Environment) chat.Capability {
	return &chat.FuncCapability{
		CapName:        "glob",
		CapDescription: "Find files matching a glob pattern. Returns file paths relative to the working directory.",
		CapParameters: objectSchema(map[string]any{
			"pattern": prop("string", "Glob pattern (e.g., \"*.go\")."),
			"path":    prop("string", "Base directory. Default: working directory."),
		}, "pattern"),
		CapPermissions: []chat.Permission{chat.PermissionRead},
		Fn: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			var args struct {
				Pattern string `json:"pattern"`
				Path    string `json:"path"`
			}
			if err := json.Unmarshal(arguments, &args); err != nil {
				return "", fmt.Errorf("glob: invalid arguments: %w", err)
			}
			if args.Pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			matches, err := env.Glob(args.Pattern, args.Path)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "No files matched the pattern.", nil
			}
			return truncateToolOutput(strings.Join(matches, "\n"), "glob"), nil
		},
	}
}

// ExecuteCommand returns the execute_command capability. Commands always
// require approval.
func ExecuteCommand(env Environment) chat.Capability {
	return &chat.FuncCapability{
		CapName:        "execute_command",
		CapDescription: "Execute a shell command. Returns stdout, stderr, and exit code.",
		CapParameters: objectSchema(map[string]any{
			"command":     prop("string", "The command to run."),
			"timeout_ms":  prop("integer", "Override the default command timeout in milliseconds."),
			"description": prop("string", "Human-readable description of what this command does."),
		}, "command"),
		CapPermissions: []chat.Permission{chat.PermissionExecute},
		NeedsApproval:  true,
		Fn: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			var args struct {
				Command   string `json:"command"`
				TimeoutMs int    `json:"timeout_ms"`
			}
			if err := json.Unmarshal(arguments, &args); err != nil {
				return "", fmt.Errorf("execute_command: invalid arguments: %w", err)
			}
			if args.Command == "" {
				return "", fmt.Errorf("command is required")
			}
			timeout := DefaultCommandTimeout
			if args.TimeoutMs > 0 {
				timeout = time.Duration(args.TimeoutMs) * time.Millisecond
			}
			if timeout > MaxCommandTimeout {
				timeout = MaxCommandTimeout
			}

			result, err := env.ExecCommand(ctx, args.Command, timeout, "")
			if err != nil {
				return "", err
			}

			var sb strings.Builder
			sb.WriteString(result.Output())
			if result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[ERROR: Command timed out after %s. Partial output is shown above. "+
					"You can retry with a longer timeout by setting the timeout_ms parameter.]", timeout)
			}
			if result.ExitCode != 0 && !result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
			}
			return truncateToolOutput(sb.String(), "execute_command"), nil
		},
	}
}
