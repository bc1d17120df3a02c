package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/m4xw311/codeloop/errors"
)

// MaxChars is the number of characters the read tool returns before
// truncating.
const MaxChars = 10000

// ListFilesTool lists the immediate children of a directory.
type ListFilesTool struct{}

func (t *ListFilesTool) Name() string { return "get_files_info" }
func (t *ListFilesTool) Description() string {
	return "Lists files in the specified directory along with their sizes, constrained to the working directory."
}
func (t *ListFilesTool) Parameters() []Param {
	return []Param{{
		Name:        "directory",
		Description: "The directory to list files from, relative to the working directory. If not provided, lists files in the working directory itself.",
	}}
}

// Execute emits one "- name: file_size=N, is_dir=B" line per entry, sorted by
// name.
func (t *ListFilesTool) Execute(ctx context.Context, root string, args Args) (string, error) {
	directory := args["directory"]
	if directory == "" {
		directory = "."
	}
	dir, err := Resolve(root, directory, "list")
	if err != nil {
		return "", err
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", errors.E(errors.KindNotADirectory, "%q is not a directory", directory)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrapf(err, "failed to list %q", directory)
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		// Stat follows symlinks so the size is that of the target.
		fi, err := os.Stat(filepath.Join(dir, e.Name()))
		if err != nil {
			return "", errors.Wrapf(err, "failed to stat %q", e.Name())
		}
		lines = append(lines, fmt.Sprintf("- %s: file_size=%d, is_dir=%t", e.Name(), fi.Size(), fi.IsDir()))
	}
	return strings.Join(lines, "\n"), nil
}

// ReadFileTool returns the text content of a file.
type ReadFileTool struct{}

func (t *ReadFileTool) Name() string { return "get_file_content" }
func (t *ReadFileTool) Description() string {
	return fmt.Sprintf("Reads the content of the specified file. Truncated at %d characters", MaxChars)
}
func (t *ReadFileTool) Parameters() []Param {
	return []Param{{
		Name:        "file_path",
		Description: "The filepath to read the contents of relative to the working directory.",
		Required:    true,
	}}
}

func (t *ReadFileTool) Execute(ctx context.Context, root string, args Args) (string, error) {
	filePath := args["file_path"]
	target, err := Resolve(root, filePath, "read")
	if err != nil {
		return "", err
	}

	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return "", errors.E(errors.KindNotFound, "File not found or is not a regular file: %q", filePath)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file %q", filePath)
	}
	content, _, err := transform.String(encoding.UTF8Validator, string(data))
	if err != nil || strings.IndexByte(content, 0) >= 0 {
		return "", errors.New("cannot read %q: file is not UTF-8 text", filePath)
	}

	if head, cut := truncate(content, MaxChars); cut {
		return fmt.Sprintf("%s [...File %q truncated at %d characters]", head, filePath, MaxChars), nil
	}
	return content, nil
}

// truncate returns the first n characters of s and whether anything was cut.
func truncate(s string, n int) (string, bool) {
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}

// WriteFileTool replaces the content of a file, creating it if needed.
type WriteFileTool struct{}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Writes the specified content to the specified file. If the file doesn't exist it is created."
}
func (t *WriteFileTool) Parameters() []Param {
	return []Param{
		{
			Name:        "file_path",
			Description: "The filepath to the file that is being written to or created.",
			Required:    true,
		},
		{
			Name:        "content",
			Description: "The content being written to the specified file",
			Required:    true,
		},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, root string, args Args) (string, error) {
	filePath, content := args["file_path"], args["content"]
	target, err := Resolve(root, filePath, "write")
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create parent directories for %q", filePath)
	}
	if err := os.WriteFile(target, []byte(content), 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write to file %q", filePath)
	}
	return fmt.Sprintf("Successfully wrote to %q (%d characters written)", filePath, utf8.RuneCountInString(content)), nil
}
