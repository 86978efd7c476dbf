package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGitHub(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateGitHub() error {
	// Owner and repo are needed before any publish can succeed; tokens can
	// arrive later via the environment.
	if c.GitHub.Owner != "" && c.GitHub.Repo == "" {
		return errors.New("github.repo must be set when github.owner is configured")
	}
	if strings.TrimSpace(c.GitHub.Branch) == "" {
		return errors.New("github.branch must be set")
	}
	if strings.TrimSpace(c.GitHub.ArticleDir) == "" {
		return errors.New("github.article_dir must be set")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.MaxConcurrent < 1 {
		return errors.New("queue.max_concurrent must be at least 1")
	}
	if c.Queue.MaxRetries < 1 {
		return errors.New("queue.max_retries must be at least 1")
	}
	if c.Queue.EnqueueDelayMinutes < 0 {
		return errors.New("queue.enqueue_delay_minutes must not be negative")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.BatchSize < 1 {
		return errors.New("sync.batch_size must be at least 1")
	}
	if c.Sync.MaxConcurrent < 1 {
		return errors.New("sync.max_concurrent must be at least 1")
	}
	if c.Sync.MaxRetries < 1 {
		return errors.New("sync.max_retries must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
