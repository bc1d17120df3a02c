package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFileOverridesOnlyPresentFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
llm: openai
model: gpt-4o-mini
max_iterations: 5
toolsets:
  - name: default
    tools: ["get_*"]
  - name: full
    tools: ["*"]
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := loadFromFile(path, cfg); err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}

	if cfg.LLMClient != "openai" || cfg.Model != "gpt-4o-mini" || cfg.MaxIterations != 5 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Interpreter != "python3" || cfg.ScriptExtension != ".py" {
		t.Errorf("defaults should survive: interpreter=%q ext=%q", cfg.Interpreter, cfg.ScriptExtension)
	}
	if cfg.SystemPrompt != DefaultSystemPrompt {
		t.Error("default system prompt should survive")
	}
	if len(cfg.Toolsets) != 2 {
		t.Fatalf("expected 2 toolsets, got %d", len(cfg.Toolsets))
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"ok", func(c *Config) { c.WorkingDirectory = dir }, false},
		{"zero iterations", func(c *Config) { c.WorkingDirectory = dir; c.MaxIterations = 0 }, true},
		{"missing dir", func(c *Config) { c.WorkingDirectory = filepath.Join(dir, "nope") }, true},
		{"file as dir", func(c *Config) { c.WorkingDirectory = file }, true},
		{"no interpreter", func(c *Config) { c.WorkingDirectory = dir; c.Interpreter = "" }, true},
		{"negative rpm", func(c *Config) { c.WorkingDirectory = dir; c.RequestsPerMinute = -1 }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("wantErr=%v, got %v", tc.wantErr, err)
			}
			if err == nil && !filepath.IsAbs(cfg.WorkingDirectory) {
				t.Errorf("expected absolute working directory, got %q", cfg.WorkingDirectory)
			}
		})
	}
}

func TestGetToolset(t *testing.T) {
	cfg := Default()
	cfg.Toolsets = append(cfg.Toolsets, Toolset{Name: "readonly", Tools: []string{"get_*"}})

	ts, err := cfg.GetToolset("readonly")
	if err != nil || ts.Name != "readonly" {
		t.Fatalf("expected readonly toolset, got %v (%v)", ts, err)
	}
	ts, err = cfg.GetToolset("unknown")
	if err != nil || ts.Name != "default" {
		t.Fatalf("expected fallback to default, got %v (%v)", ts, err)
	}

	cfg.Toolsets = nil
	if _, err := cfg.GetToolset(""); err == nil {
		t.Error("expected error without a default toolset")
	}
}
