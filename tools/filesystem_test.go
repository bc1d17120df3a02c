package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m4xw311/codeloop/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestListFilesEmptyDirectory(t *testing.T) {
	root := t.TempDir()
	out, err := (&ListFilesTool{}).Execute(context.Background(), root, Args{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty listing, got %q", out)
	}
}

func TestListFilesEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.py"), "print(1)\n")
	writeFile(t, filepath.Join(root, "pkg", "calc.py"), "x = 1\n")
	writeFile(t, filepath.Join(root, "README.md"), "")

	out, err := (&ListFilesTool{}).Execute(context.Background(), root, Args{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), out)
	}

	want := map[string]string{
		"README.md": "- README.md: file_size=0, is_dir=false",
		"main.py":   "- main.py: file_size=9, is_dir=false",
		"pkg":       "- pkg: file_size=",
	}
	for _, line := range lines {
		name := strings.TrimPrefix(strings.SplitN(line, ":", 2)[0], "- ")
		prefix, ok := want[name]
		if !ok {
			t.Errorf("unexpected entry %q", line)
			continue
		}
		if !strings.HasPrefix(line, prefix) {
			t.Errorf("expected %q to start with %q", line, prefix)
		}
	}
	if !strings.HasSuffix(lines[2], "is_dir=true") {
		t.Errorf("expected pkg to be listed last as a directory, got %q", lines[2])
	}
}

func TestListFilesSubdirectoryAndErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "calc.py"), "x = 1\n")
	tool := &ListFilesTool{}

	out, err := tool.Execute(context.Background(), root, Args{"directory": "pkg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "- calc.py: file_size=6, is_dir=false" {
		t.Errorf("unexpected listing %q", out)
	}

	_, err = tool.Execute(context.Background(), root, Args{"directory": "pkg/calc.py"})
	if errors.KindOf(err) != errors.KindNotADirectory {
		t.Errorf("expected not-a-directory, got %v", err)
	}
	_, err = tool.Execute(context.Background(), root, Args{"directory": "missing"})
	if errors.KindOf(err) != errors.KindNotADirectory {
		t.Errorf("expected not-a-directory for missing dir, got %v", err)
	}
}

func TestReadFileTruncation(t *testing.T) {
	root := t.TempDir()
	exact := strings.Repeat("a", MaxChars)
	writeFile(t, filepath.Join(root, "exact.txt"), exact)
	writeFile(t, filepath.Join(root, "over.txt"), exact+"b")
	tool := &ReadFileTool{}

	out, err := tool.Execute(context.Background(), root, Args{"file_path": "exact.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != exact {
		t.Errorf("expected file of exactly %d characters to be returned unmodified", MaxChars)
	}

	out, err = tool.Execute(context.Background(), root, Args{"file_path": "over.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := exact + ` [...File "over.txt" truncated at 10000 characters]`
	if out != want {
		t.Errorf("unexpected truncated output (len %d)", len(out))
	}
}

func TestReadFileCountsCharactersNotBytes(t *testing.T) {
	root := t.TempDir()
	content := strings.Repeat("é", MaxChars)
	writeFile(t, filepath.Join(root, "accents.txt"), content)

	out, err := (&ReadFileTool{}).Execute(context.Background(), root, Args{"file_path": "accents.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != content {
		t.Error("multi-byte content within the cap must not be truncated")
	}
}

func TestReadFileErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "blob.bin"), string([]byte{0xff, 0xfe, 0x00, 0x01}))
	writeFile(t, filepath.Join(root, "nul.bin"), "abc\x00def")
	if err := os.Mkdir(filepath.Join(root, "dir"), 0755); err != nil {
		t.Fatal(err)
	}
	tool := &ReadFileTool{}

	cases := []struct {
		path string
		kind errors.Kind
	}{
		{"missing.txt", errors.KindNotFound},
		{"dir", errors.KindNotFound},
		{"../outside.txt", errors.KindPathEscape},
	}
	for _, tc := range cases {
		_, err := tool.Execute(context.Background(), root, Args{"file_path": tc.path})
		if errors.KindOf(err) != tc.kind {
			t.Errorf("%s: expected %q, got %v", tc.path, tc.kind, err)
		}
	}

	for _, p := range []string{"blob.bin", "nul.bin"} {
		if _, err := tool.Execute(context.Background(), root, Args{"file_path": p}); err == nil {
			t.Errorf("%s: expected binary content to be rejected", p)
		}
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	write, read := &WriteFileTool{}, &ReadFileTool{}
	long := strings.Repeat("x", MaxChars+5)

	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"empty", "", ""},
		{"one char", "z", "z"},
		{"over cap", long, long[:MaxChars] + ` [...File "over cap.txt" truncated at 10000 characters]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := tc.name + ".txt"
			msg, err := write.Execute(context.Background(), root, Args{"file_path": path, "content": tc.content})
			if err != nil {
				t.Fatalf("write failed: %v", err)
			}
			wantMsg := fmt.Sprintf("Successfully wrote to %q (%d characters written)", path, len(tc.content))
			if msg != wantMsg {
				t.Errorf("expected %q, got %q", wantMsg, msg)
			}

			got, err := read.Execute(context.Background(), root, Args{"file_path": path})
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("round trip mismatch for %s", tc.name)
			}
		})
	}
}

func TestWriteFileOverwritesAndCreatesParents(t *testing.T) {
	root := t.TempDir()
	tool := &WriteFileTool{}

	if _, err := tool.Execute(context.Background(), root, Args{"file_path": "a/b/c.txt", "content": "first version"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := tool.Execute(context.Background(), root, Args{"file_path": "a/b/c.txt", "content": "v2"}); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "a", "b", "c.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v2" {
		t.Errorf("expected content to be replaced entirely, got %q", data)
	}
}

func TestEscapingPathsDoNotMutate(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "work")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatal(err)
	}

	escapes := []string{"../evil.txt", "../workxx/evil.txt", "sub/../../evil.txt", filepath.Join(parent, "evil.txt")}
	all := []Tool{&ListFilesTool{}, &ReadFileTool{}, &WriteFileTool{}, &RunScriptTool{Interpreter: "sh", Extension: ".txt"}}

	for _, p := range escapes {
		for _, tool := range all {
			args := Args{"file_path": p, "content": "pwned", "directory": p}
			_, err := tool.Execute(context.Background(), root, args)
			if errors.KindOf(err) != errors.KindPathEscape {
				t.Errorf("%s(%q): expected path escape, got %v", tool.Name(), p, err)
			}
		}
	}

	entries, err := os.ReadDir(parent)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected parent to contain only the root, found %d entries", len(entries))
	}
}
