package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Notion contains configuration for the Notion content source.
type Notion struct {
	Token          string `toml:"token"`
	BaseURL        string `toml:"base_url"`
	Version        string `toml:"version"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// GitHub contains configuration for the article publish target repository.
type GitHub struct {
	Token          string `toml:"token"`
	Owner          string `toml:"owner"`
	Repo           string `toml:"repo"`
	Branch         string `toml:"branch"`
	BaseURL        string `toml:"base_url"`
	ArticleDir     string `toml:"article_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LLM contains connection settings for the language-model collaborator.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Queue contains generation queue tuning.
type Queue struct {
	MaxConcurrent       int `toml:"max_concurrent"`
	MaxRetries          int `toml:"max_retries"`
	EnqueueDelayMinutes int `toml:"enqueue_delay_minutes"`
}

// Sync contains Notion sync sweep tuning.
type Sync struct {
	BatchSize     int `toml:"batch_size"`
	MaxConcurrent int `toml:"max_concurrent"`
	MaxRetries    int `toml:"max_retries"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for quill.
//
// Sections by subsystem:
//   - Paths: data and log directories
//   - Notion: content source API credentials
//   - GitHub: publish target repository
//   - LLM: analysis/generation model connection
//   - Queue: generation queue bounds and retry policy
//   - Sync: sync sweep batch size and retry policy
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Notion  Notion  `toml:"notion"`
	GitHub  GitHub  `toml:"github"`
	LLM     LLM     `toml:"llm"`
	Queue   Queue   `toml:"queue"`
	Sync    Sync    `toml:"sync"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/quill/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("quill.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Notion.Token = strings.TrimSpace(c.Notion.Token)
	c.GitHub.Token = strings.TrimSpace(c.GitHub.Token)
	c.GitHub.Owner = strings.TrimSpace(c.GitHub.Owner)
	c.GitHub.Repo = strings.TrimSpace(c.GitHub.Repo)
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)

	applyEnvOverrides(c)
	return nil
}

// applyEnvOverrides lets credentials come from the environment so config
// files can stay free of secrets.
func applyEnvOverrides(c *Config) {
	if v := strings.TrimSpace(os.Getenv("QUILL_NOTION_TOKEN")); v != "" {
		c.Notion.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("QUILL_GITHUB_TOKEN")); v != "" {
		c.GitHub.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("QUILL_LLM_API_KEY")); v != "" {
		c.LLM.APIKey = v
	}
}

// EnsureDirectories creates the configured data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "quill.db")
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// WriteSample writes the sample configuration to the given path, refusing to
// overwrite an existing file.
func WriteSample(path string) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(expanded); err == nil {
		return "", fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o600); err != nil {
		return "", fmt.Errorf("write sample config: %w", err)
	}
	return expanded, nil
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		path = filepath.Join(home, path[2:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}
