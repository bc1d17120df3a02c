package config

import (
	"os"
	"path/filepath"

	"github.com/m4xw311/codeloop/errors"
	"gopkg.in/yaml.v3"
)

// Dir is the name of the directory holding config.yaml, both under the
// user's home and under the current working directory.
const Dir = ".codeloop"

const DefaultSystemPrompt = `You are a helpful AI coding agent.

When a user asks a question or makes a request, make a function call plan. You can perform the following operations:

- List files and directories
- Read file contents
- Execute Python files
- Write or overwrite files

All paths you provide should be relative to the working directory. You do not need to specify the working directory in your function calls as it is automatically injected for security reasons.
`

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type Tracing struct {
	Endpoint    string `yaml:"endpoint"`
	Protocol    string `yaml:"protocol"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

type Config struct {
	LLMClient         string    `yaml:"llm"`
	Model             string    `yaml:"model"`
	// Provider is the upstream provider for the gollm backend (openai,
	// anthropic, groq, ollama, ...).
	Provider          string    `yaml:"provider"`
	WorkingDirectory  string    `yaml:"working_directory"`
	MaxIterations     int       `yaml:"max_iterations"`
	SystemPrompt      string    `yaml:"system_prompt"`
	Interpreter       string    `yaml:"interpreter"`
	ScriptExtension   string    `yaml:"script_extension"`
	RequestsPerMinute int       `yaml:"requests_per_minute"`
	Toolsets          []Toolset `yaml:"toolsets"`
	Tracing           Tracing   `yaml:"tracing"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		LLMClient:        "gemini",
		Model:            "gemini-2.0-flash-001",
		WorkingDirectory: "./calculator",
		MaxIterations:    20,
		SystemPrompt:     DefaultSystemPrompt,
		Interpreter:      "python3",
		ScriptExtension:  ".py",
		Toolsets:         []Toolset{{Name: "default", Tools: []string{"*"}}},
	}
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		if err := loadIfExists(filepath.Join(home, Dir, "config.yaml"), cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading user config")
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	if err := loadIfExists(filepath.Join(wd, Dir, "config.yaml"), cfg); err != nil {
		return nil, errors.Wrapf(err, "error loading project config")
	}

	return cfg, nil
}

func loadIfExists(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return loadFromFile(path, cfg)
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Fields present in the YAML replace earlier values; absent ones are kept.
	return yaml.Unmarshal(data, cfg)
}

// Validate checks the config and makes WorkingDirectory absolute. The working
// directory must exist.
func (c *Config) Validate() error {
	if c.MaxIterations <= 0 {
		return errors.New("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.Interpreter == "" {
		return errors.New("interpreter must not be empty")
	}
	if c.RequestsPerMinute < 0 {
		return errors.New("requests_per_minute must not be negative")
	}
	abs, err := filepath.Abs(c.WorkingDirectory)
	if err != nil {
		return errors.Wrapf(err, "could not resolve working directory '%s'", c.WorkingDirectory)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return errors.Wrapf(err, "working directory '%s' is not accessible", abs)
	}
	if !info.IsDir() {
		return errors.New("working directory '%s' is not a directory", abs)
	}
	c.WorkingDirectory = abs
	return nil
}

// GetToolset finds a toolset by name. Returns the "default" toolset if the
// named one is not found or if an empty name is provided.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			return &ts, nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	// Fallback to default if a specific toolset was requested but not found
	return c.GetToolset("default")
}
