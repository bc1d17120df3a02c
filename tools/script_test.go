package tools

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m4xw311/codeloop/errors"
)

func shellTool(t *testing.T) *RunScriptTool {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	return &RunScriptTool{Interpreter: "sh", Extension: ".sh"}
}

func TestRunScriptOutputs(t *testing.T) {
	tool := shellTool(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "quiet.sh"), "exit 0\n")
	writeFile(t, filepath.Join(root, "out.sh"), "echo hello\n")
	writeFile(t, filepath.Join(root, "both.sh"), "echo hello\necho oops >&2\n")
	writeFile(t, filepath.Join(root, "cwd.sh"), "pwd\n")

	cases := []struct {
		file string
		want string
	}{
		{"quiet.sh", NoOutput},
		{"out.sh", "STDOUT:\nhello\n"},
		{"both.sh", "STDOUT:\nhello\n\nSTDERR:\noops\n"},
	}
	for _, tc := range cases {
		t.Run(tc.file, func(t *testing.T) {
			got, err := tool.Execute(context.Background(), root, Args{"file_path": tc.file})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}

	got, err := tool.Execute(context.Background(), root, Args{"file_path": "cwd.sh"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "STDERR") || !strings.HasPrefix(got, "STDOUT:\n") {
		t.Errorf("expected only stdout, got %q", got)
	}
}

func TestRunScriptFailureKeepsStreams(t *testing.T) {
	tool := shellTool(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "fail.sh"), "echo partial\necho broken >&2\nexit 3\n")

	_, err := tool.Execute(context.Background(), root, Args{"file_path": "fail.sh"})
	if errors.KindOf(err) != errors.KindProcessFailure {
		t.Fatalf("expected process failure, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"exited with code 3", "STDOUT:\npartial", "STDERR:\nbroken"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestRunScriptRejections(t *testing.T) {
	tool := shellTool(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "notes.txt"), "echo hi\n")

	cases := []struct {
		path string
		kind errors.Kind
	}{
		{"notes.txt", errors.KindWrongExtension},
		{"missing.sh", errors.KindNotFound},
		{"../escape.sh", errors.KindPathEscape},
	}
	for _, tc := range cases {
		_, err := tool.Execute(context.Background(), root, Args{"file_path": tc.path})
		if errors.KindOf(err) != tc.kind {
			t.Errorf("%s: expected %q, got %v", tc.path, tc.kind, err)
		}
	}
}

func TestRunScriptTimeout(t *testing.T) {
	tool := shellTool(t)
	tool.Timeout = 200 * time.Millisecond
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "slow.sh"), "sleep 10\n")

	start := time.Now()
	_, err := tool.Execute(context.Background(), root, Args{"file_path": "slow.sh"})
	if errors.KindOf(err) != errors.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
}
