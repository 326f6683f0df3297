package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the journai configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Chat     ChatConfig     `yaml:"chat"`
	Inbox    InboxConfig    `yaml:"inbox"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects the sqlite driver and file.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" (pure Go) or "sqlite3" (cgo)
	Path   string `yaml:"path,omitempty"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

// LLMConfig describes the text generation backend.
type LLMConfig struct {
	Provider string        `yaml:"provider"` // openai, ollama, llamacpp, claude, gemini, none
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key,omitempty"`
	BaseURL  string        `yaml:"base_url,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

type AnalysisConfig struct {
	MaxTextChars  int     `yaml:"max_text_chars"`
	MaxTokens     int     `yaml:"max_tokens"`
	DyadThreshold float64 `yaml:"dyad_threshold"`
}

// ChatConfig holds the generation options of the journaling companion.
type ChatConfig struct {
	SystemPrompt      string   `yaml:"system_prompt"`
	MaxTokens         int      `yaml:"max_tokens"`
	Temperature       float64  `yaml:"temperature"`
	TopP              float64  `yaml:"top_p"`
	RepetitionPenalty float64  `yaml:"repetition_penalty"`
	Stop              []string `yaml:"stop,omitempty"`
}

// InboxConfig controls the journal inbox watcher.
type InboxConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Dir        string   `yaml:"dir,omitempty"`
	Extensions []string `yaml:"extensions,omitempty"`
}

type LogConfig struct {
	Mode string `yaml:"mode"` // development or production
}

const defaultSystemPrompt = "You are JournAI, a warm and attentive journaling companion. " +
	"Reply briefly, reflect what the user wrote and ask at most one gentle follow-up question."

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite"},
		Server: ServerConfig{
			Addr:        "127.0.0.1:8000",
			CORSOrigins: []string{"*"},
		},
		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1",
			BaseURL:  "http://localhost:11434",
			Timeout:  2 * time.Minute,
		},
		Analysis: AnalysisConfig{
			MaxTextChars:  4000,
			MaxTokens:     500,
			DyadThreshold: 0.40,
		},
		Chat: ChatConfig{
			SystemPrompt:      defaultSystemPrompt,
			MaxTokens:         400,
			Temperature:       0.7,
			TopP:              0.9,
			RepetitionPenalty: 1.1,
			Stop:              []string{"User", "System:", "JournAI:"},
		},
		Inbox: InboxConfig{
			Extensions: []string{".txt", ".md"},
		},
		Log: LogConfig{Mode: "development"},
	}
}

// GetConfigDir returns the XDG-compliant config directory
func GetConfigDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("JOURNAI_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "journai"), nil
}

// GetDataDir returns the platform-specific data directory
func GetDataDir() (string, error) {
	if override := os.Getenv("JOURNAI_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "JournAI"), nil
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "journai"), nil
	}

	return filepath.Join(home, ".local", "share", "journai"), nil
}

// Load loads config from the config file, then applies environment overrides.
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadFile(filepath.Join(configDir, "config.yaml"))
}

// LoadFile reads the config at path. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"JOURNAI_LLM_PROVIDER", &c.LLM.Provider},
		{"JOURNAI_LLM_MODEL", &c.LLM.Model},
		{"JOURNAI_LLM_API_KEY", &c.LLM.APIKey},
		{"JOURNAI_LLM_BASE_URL", &c.LLM.BaseURL},
		{"JOURNAI_SERVER_ADDR", &c.Server.Addr},
		{"JOURNAI_DB_DRIVER", &c.Database.Driver},
		{"JOURNAI_DB_PATH", &c.Database.Path},
		{"JOURNAI_INBOX_DIR", &c.Inbox.Dir},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.dst = v
		}
	}
}

// Validate rejects settings the rest of the program cannot work with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Analysis.DyadThreshold < 0 || c.Analysis.DyadThreshold > 1 {
		return fmt.Errorf("analysis.dyad_threshold must be within [0,1], got %v", c.Analysis.DyadThreshold)
	}
	if c.Analysis.MaxTextChars < 0 {
		return fmt.Errorf("analysis.max_text_chars must not be negative")
	}
	if c.Inbox.Enabled && c.Inbox.Dir == "" {
		return fmt.Errorf("inbox.dir is required when the inbox is enabled")
	}
	return nil
}

// Save saves the config to the config file
func (c *Config) Save() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
