package config

const (
	defaultDataDir             = "~/.local/share/quill"
	defaultLogDir              = "~/.local/share/quill/logs"
	defaultNotionBaseURL       = "https://api.notion.com/v1"
	defaultNotionVersion       = "2022-06-28"
	defaultNotionTimeout       = 30
	defaultGitHubBaseURL       = "https://api.github.com"
	defaultGitHubBranch        = "main"
	defaultGitHubArticleDir    = "articles"
	defaultGitHubTimeout       = 30
	defaultLLMBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel            = "anthropic/claude-sonnet-4.5"
	defaultLLMTimeout          = 120
	defaultQueueMaxConcurrent  = 3
	defaultQueueMaxRetries     = 3
	defaultEnqueueDelayMinutes = 5
	defaultSyncBatchSize       = 10
	defaultSyncMaxConcurrent   = 4
	defaultSyncMaxRetries      = 3
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Notion: Notion{
			BaseURL:        defaultNotionBaseURL,
			Version:        defaultNotionVersion,
			TimeoutSeconds: defaultNotionTimeout,
		},
		GitHub: GitHub{
			BaseURL:        defaultGitHubBaseURL,
			Branch:         defaultGitHubBranch,
			ArticleDir:     defaultGitHubArticleDir,
			TimeoutSeconds: defaultGitHubTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeout,
		},
		Queue: Queue{
			MaxConcurrent:       defaultQueueMaxConcurrent,
			MaxRetries:          defaultQueueMaxRetries,
			EnqueueDelayMinutes: defaultEnqueueDelayMinutes,
		},
		Sync: Sync{
			BatchSize:     defaultSyncBatchSize,
			MaxConcurrent: defaultSyncMaxConcurrent,
			MaxRetries:    defaultSyncMaxRetries,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
