package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/m4xw311/codeloop/errors"
)

// ScriptTimeout bounds a single script run.
const ScriptTimeout = 30 * time.Second

// NoOutput is returned for a successful run that printed nothing.
const NoOutput = "No output produced."

// RunScriptTool runs a script from the working root with an interpreter.
type RunScriptTool struct {
	Interpreter string // e.g. "python3"
	Extension   string // e.g. ".py"

	// Timeout overrides ScriptTimeout when non-zero.
	Timeout time.Duration
}

func (t *RunScriptTool) Name() string { return "run_python_file" }
func (t *RunScriptTool) Description() string {
	return "Runs the specified python file."
}
func (t *RunScriptTool) Parameters() []Param {
	return []Param{{
		Name:        "file_path",
		Description: "The filepath to the python file that is being run.",
		Required:    true,
	}}
}

func (t *RunScriptTool) Execute(ctx context.Context, root string, args Args) (string, error) {
	filePath := args["file_path"]
	target, err := Resolve(root, filePath, "execute")
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(filePath, t.Extension) {
		return "", errors.E(errors.KindWrongExtension, "%q is not a %s file.", filePath, t.Extension)
	}
	if info, err := os.Stat(target); err != nil || !info.Mode().IsRegular() {
		return "", errors.E(errors.KindNotFound, "File %q not found.", filePath)
	}

	timeout := t.Timeout
	if timeout == 0 {
		timeout = ScriptTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Interpreter, target)
	cmd.Dir = root
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children that inherit the pipes must not keep Wait blocked past the kill.
	cmd.WaitDelay = time.Second

	err = cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", errors.E(errors.KindTimeout, "executing %q: timed out after %s", filePath, timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", errors.E(errors.KindProcessFailure, "executing %q: process exited with code %d\n%s",
				filePath, exitErr.ExitCode(), formatStreams(stdout.String(), stderr.String(), true))
		}
		return "", errors.EWrap(errors.KindProcessFailure, err, "executing %q", filePath)
	}

	if out := formatStreams(stdout.String(), stderr.String(), false); out != "" {
		return out, nil
	}
	return NoOutput, nil
}

// formatStreams labels stdout and stderr. Empty streams are skipped unless
// always is set.
func formatStreams(stdout, stderr string, always bool) string {
	var parts []string
	if stdout != "" || always {
		parts = append(parts, fmt.Sprintf("STDOUT:\n%s", stdout))
	}
	if stderr != "" || always {
		parts = append(parts, fmt.Sprintf("STDERR:\n%s", stderr))
	}
	return strings.Join(parts, "\n")
}

// Builtin returns the four sandboxed tools.
func Builtin(interpreter, extension string) []Tool {
	return []Tool{
		&ListFilesTool{},
		&ReadFileTool{},
		&RunScriptTool{Interpreter: interpreter, Extension: extension},
		&WriteFileTool{},
	}
}
