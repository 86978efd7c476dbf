package main

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/duplicate"
	"quill/internal/generation"
	"quill/internal/logging"
	"quill/internal/notionsync"
	"quill/internal/publisher"
	"quill/internal/services/github"
	"quill/internal/services/llm"
	"quill/internal/services/notion"
	"quill/internal/store"
	"quill/internal/sweep"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// runtime bundles the wired subsystems one command invocation needs. The
// store is opened lazily per invocation and closed when the command returns.
type runtime struct {
	cfg     *config.Config
	store   *store.Store
	notion  *notion.Client
	model   *llm.Client
	repo    *github.Client
	pub     *publisher.Publisher
	service *generation.Service
	engine  *notionsync.Engine
	runner  *sweep.Runner
}

func (c *commandContext) withRuntime(fn func(*runtime) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	logger, err := logging.NewFromDir(cfg.Paths.LogDir, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		logger = logging.NewNop()
	}

	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	notionClient := notion.NewClient(cfg.Notion)
	model := llm.NewClient(cfg.LLM)
	repo := github.NewClient(cfg.GitHub)
	pub := publisher.New(repo, cfg.GitHub.ArticleDir, logger)
	detector := duplicate.NewDetector(st, logger)
	service := generation.NewService(st, detector, model, pub, logger)

	enqueueDelay := time.Duration(cfg.Queue.EnqueueDelayMinutes) * time.Minute
	engine := notionsync.NewEngine(st, notionClient, service, notionsync.Options{
		EnqueueDelay:    enqueueDelay,
		QueueMaxRetries: cfg.Queue.MaxRetries,
		SweepWorkers:    cfg.Sync.MaxConcurrent,
	}, logger)

	return fn(&runtime{
		cfg:     cfg,
		store:   st,
		notion:  notionClient,
		model:   model,
		repo:    repo,
		pub:     pub,
		service: service,
		engine:  engine,
		runner:  sweep.NewRunner(cfg, engine, service, logger),
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
