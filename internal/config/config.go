package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration. It is built once at
// process start and passed by reference; nothing mutates it afterwards.
type Config struct {
	Thread struct {
		URL      string `yaml:"url"`
		Username string `yaml:"username"`
	} `yaml:"thread"`

	Storage struct {
		Provider string `yaml:"provider"` // local, s3, dropbox, postgres
		Local    struct {
			BaseDir string `yaml:"base_dir"`
		} `yaml:"local"`
		S3 struct {
			Bucket        string `yaml:"bucket"`
			Region        string `yaml:"region"`
			LimitRequests bool   `yaml:"limit_requests"`
			RequestBudget int    `yaml:"request_budget"`
			// FailoverToDbx defaults to on; a quota-limited bucket
			// without a standby would turn budget exhaustion into a
			// hard failure.
			FailoverToDbx *bool `yaml:"failover_to_dropbox"`
		} `yaml:"s3"`
	} `yaml:"storage"`

	Cache struct {
		// Disabled turns the seen cache off entirely: every post is
		// treated as unseen each cycle. Used for testing and replay.
		Disabled      bool `yaml:"disabled"`
		RetentionDays int  `yaml:"retention_days"`
	} `yaml:"cache"`

	Decision struct {
		UnwantedPhrases        []string `yaml:"unwanted_phrases"`
		UnwantedPhrasesLiteral []string `yaml:"unwanted_phrases_literal"`
		ScrapeTimeoutSeconds   int64    `yaml:"scrape_timeout_seconds"`
		RandomSleepMinMinutes  int64    `yaml:"random_sleep_time_min_minutes"`
		RandomSleepMaxMinutes  int64    `yaml:"random_sleep_time_max_minutes"`
		RandomSleepEnabled     bool     `yaml:"random_sleep_enabled"`
		MinPostGapMinutes      int64    `yaml:"min_post_gap_minutes"`
		MaxPostsPer24h         int      `yaml:"max_posts_per_24h"`
	} `yaml:"decision"`

	Approval struct {
		TimeoutMinutes      int64 `yaml:"timeout_minutes"`
		PollIntervalSeconds int64 `yaml:"poll_interval_seconds"`
		ReselectRejected    bool  `yaml:"reselect_rejected"`
	} `yaml:"approval"`

	Notifier struct {
		Provider       string `yaml:"provider"` // pushbullet, telegram
		TelegramChatID int64  `yaml:"telegram_chat_id"`
	} `yaml:"notifier"`

	Generator struct {
		Provider          string   `yaml:"provider"` // openai, gemini
		Model             string   `yaml:"model"`
		BaseURL           string   `yaml:"base_url"`
		MaxTokens         int      `yaml:"max_tokens"`
		Temperature       float64  `yaml:"temperature"`
		TopK              int      `yaml:"top_k"`
		TopP              float64  `yaml:"top_p"`
		RepetitionPenalty float64  `yaml:"repetition_penalty"`
		NoRepeatNgramSize int      `yaml:"no_repeat_ngram_size"`
		SpecialTokens     []string `yaml:"special_tokens"`
	} `yaml:"generator"`

	Scraper struct {
		Headless   bool     `yaml:"headless"`
		UserAgents []string `yaml:"user_agents"`
	} `yaml:"scraper"`

	Orchestrator struct {
		LockGraceMinutes int64 `yaml:"lock_grace_minutes"`
	} `yaml:"orchestrator"`

	API struct {
		Listen string `yaml:"listen"`
	} `yaml:"api"`

	// Secrets come from the environment, never from the YAML file.
	Secrets Secrets `yaml:"-"`
}

// Secrets are credentials read from the environment after the YAML file
// is decoded. A .env file is honored when main loads it with godotenv.
type Secrets struct {
	ForumUsername       string
	ForumPassword       string
	PushbulletToken     string
	TelegramBotToken    string
	DropboxRefreshToken string
	DropboxAppKey       string
	DropboxAppSecret    string
	OpenAIAPIKey        string
	GeminiAPIKey        string
	DatabaseURL         string
}

// LoadConfig reads configuration from the specified YAML file, then
// applies environment overrides and collects secrets.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()
	config.applyEnvOverrides()
	config.Secrets = secretsFromEnv()

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Provider == "" {
		c.Storage.Provider = "local"
	}
	if c.Storage.Local.BaseDir == "" {
		c.Storage.Local.BaseDir = "data"
	}
	if c.Storage.S3.RequestBudget == 0 {
		c.Storage.S3.RequestBudget = 2000
	}
	if c.Storage.S3.FailoverToDbx == nil {
		on := true
		c.Storage.S3.FailoverToDbx = &on
	}
	if c.Cache.RetentionDays == 0 {
		c.Cache.RetentionDays = 90
	}
	if c.Decision.ScrapeTimeoutSeconds == 0 {
		c.Decision.ScrapeTimeoutSeconds = 30
	}
	if c.Decision.RandomSleepMinMinutes == 0 {
		c.Decision.RandomSleepMinMinutes = 1
	}
	if c.Decision.RandomSleepMaxMinutes == 0 {
		c.Decision.RandomSleepMaxMinutes = 120
	}
	if c.Decision.MinPostGapMinutes == 0 {
		c.Decision.MinPostGapMinutes = 120
	}
	if c.Decision.MaxPostsPer24h == 0 {
		c.Decision.MaxPostsPer24h = 5
	}
	if c.Approval.TimeoutMinutes == 0 {
		c.Approval.TimeoutMinutes = 15
	}
	if c.Approval.PollIntervalSeconds == 0 {
		c.Approval.PollIntervalSeconds = 20
	}
	if c.Generator.MaxTokens == 0 {
		c.Generator.MaxTokens = 256
	}
	if c.Generator.Temperature == 0 {
		c.Generator.Temperature = 0.5
	}
	if c.Orchestrator.LockGraceMinutes == 0 {
		c.Orchestrator.LockGraceMinutes = 30
	}
}

// applyEnvOverrides keeps compatibility with the operational environment
// variables the deployment already uses: FILE_STORAGE, SHOULD_LIMIT_S3,
// NUM_LIMIT_S3_REQUESTS and USE_CACHE.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FILE_STORAGE"); v != "" {
		switch strings.ToUpper(v) {
		case "LOCAL":
			c.Storage.Provider = "local"
		case "AWS":
			c.Storage.Provider = "s3"
		case "DROPBOX":
			c.Storage.Provider = "dropbox"
		}
	}
	if v := os.Getenv("SHOULD_LIMIT_S3"); v != "" {
		c.Storage.S3.LimitRequests = envBool(v)
	}
	if v := os.Getenv("NUM_LIMIT_S3_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Storage.S3.RequestBudget = n
		}
	}
	if v := os.Getenv("USE_CACHE"); v != "" {
		c.Cache.Disabled = !envBool(v)
	}
}

func (c *Config) validate() error {
	switch c.Storage.Provider {
	case "local", "s3", "dropbox", "postgres":
	default:
		return fmt.Errorf("unknown storage provider: %q", c.Storage.Provider)
	}
	if c.Decision.RandomSleepMaxMinutes < c.Decision.RandomSleepMinMinutes {
		return fmt.Errorf("random sleep max (%d min) is below min (%d min)",
			c.Decision.RandomSleepMaxMinutes, c.Decision.RandomSleepMinMinutes)
	}
	return nil
}

func secretsFromEnv() Secrets {
	return Secrets{
		ForumUsername:       os.Getenv("FORUM_USERNAME"),
		ForumPassword:       os.Getenv("FORUM_PASSWORD"),
		PushbulletToken:     os.Getenv("PUSHBULLET_TOKEN"),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		DropboxRefreshToken: os.Getenv("DROPBOX_REFRESH_TOKEN"),
		DropboxAppKey:       os.Getenv("DROPBOX_APP_KEY"),
		DropboxAppSecret:    os.Getenv("DROPBOX_APP_SECRET"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
	}
}

func envBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y":
		return true
	}
	return false
}
