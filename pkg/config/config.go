package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultInterval is the pause between posts when none is configured.
const DefaultInterval = 2 * time.Hour

// Config represents the pedropost configuration
type Config struct {
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Social   SocialConfig   `json:"social" yaml:"social"`
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule"`
	Ideas    IdeasConfig    `json:"ideas" yaml:"ideas"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Debug    DebugConfig    `json:"debug" yaml:"debug"`
}

// ProviderConfig configures the generative-content provider
type ProviderConfig struct {
	Type           string  `json:"type" yaml:"type"` // "openai", "ollama" or "compatible"
	BaseURL        string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey         string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	ChatModel      string  `json:"chat_model" yaml:"chat_model"`
	ImageModel     string  `json:"image_model" yaml:"image_model"`
	ImageSize      string  `json:"image_size" yaml:"image_size"` // e.g. "1024x1024"
	Temperature    float64 `json:"temperature" yaml:"temperature"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int     `json:"max_retries" yaml:"max_retries"`

	// TextProvider moves post text generation to another API while images
	// stay on Type. Empty or "anthropic".
	TextProvider     string `json:"text_provider,omitempty" yaml:"text_provider,omitempty"`
	AnthropicAPIKey  string `json:"anthropic_api_key,omitempty" yaml:"anthropic_api_key,omitempty"`
	AnthropicBaseURL string `json:"anthropic_base_url,omitempty" yaml:"anthropic_base_url,omitempty"`
}

// SocialConfig configures the social-publishing provider
type SocialConfig struct {
	Platform       string `json:"platform" yaml:"platform"` // only "x" today
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	TokenURL       string `json:"token_url,omitempty" yaml:"token_url,omitempty"`
	ClientID       string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret   string `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	AccessToken    string `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	RefreshToken   string `json:"refresh_token,omitempty" yaml:"refresh_token,omitempty"`
	TokenFile      string `json:"token_file" yaml:"token_file"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxImageWidth  int    `json:"max_image_width" yaml:"max_image_width"`
	MaxImageHeight int    `json:"max_image_height" yaml:"max_image_height"`
	MaxImageBytes  int    `json:"max_image_bytes" yaml:"max_image_bytes"`
}

// ScheduleConfig contains scheduling settings
type ScheduleConfig struct {
	// Interval is a Go duration ("2h", "90s") or a bare number of minutes.
	// It wins over IntervalMinutes.
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`
	// IntervalMinutes is the older whole-minute form.
	IntervalMinutes int `json:"interval_minutes,omitempty" yaml:"interval_minutes,omitempty"`
	// Cron is a standard 5-field expression. When set, the bot waits for its
	// next activation after each post instead of the interval.
	Cron string `json:"cron,omitempty" yaml:"cron,omitempty"`
}

// IdeasConfig points at the rotation state file
type IdeasConfig struct {
	File string `json:"file" yaml:"file"`
}

// StorageConfig contains image staging and archive settings
type StorageConfig struct {
	BasePath         string   `json:"base_path,omitempty" yaml:"base_path,omitempty"`
	ArchiveGenerated bool     `json:"archive_generated" yaml:"archive_generated"`
	S3               S3Config `json:"s3,omitempty" yaml:"s3,omitempty"`
}

// S3Config sends the image archive to a bucket instead of base_path
type S3Config struct {
	Bucket   string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"` // MinIO, LocalStack
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// DatabaseConfig enables the optional PostgreSQL cycle history
type DatabaseConfig struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// MetricsConfig contains Prometheus exporter settings
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// DebugConfig contains debug settings
type DebugConfig struct {
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Load loads configuration from a file, applies environment overrides and defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return finish(&config)
}

// LoadDefault looks for .pedropost.{json,yaml,yml} in the current directory
// and then the home directory. With no file it builds the configuration from
// the environment alone.
func LoadDefault() (*Config, error) {
	names := []string{".pedropost.json", ".pedropost.yaml", ".pedropost.yml"}

	for _, name := range names {
		if _, err := os.Stat(name); err == nil {
			return Load(name)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		for _, name := range names {
			homePath := filepath.Join(home, name)
			if _, err := os.Stat(homePath); err == nil {
				return Load(homePath)
			}
		}
	}

	return finish(&Config{})
}

func finish(config *Config) (*Config, error) {
	if err := config.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnv overrides file values with environment variables. TWITTER_*
// names are accepted as aliases of the X_* names.
func (c *Config) applyEnv(getenv func(string) string) error {
	first := func(names ...string) string {
		for _, name := range names {
			if v := getenv(name); v != "" {
				return v
			}
		}
		return ""
	}
	set := func(dst *string, names ...string) {
		if v := first(names...); v != "" {
			*dst = v
		}
	}

	set(&c.Provider.APIKey, "OPENAI_API_KEY")
	set(&c.Provider.BaseURL, "OPENAI_BASE_URL")
	set(&c.Provider.ChatModel, "OPENAI_CHAT_MODEL")
	set(&c.Provider.ImageModel, "OPENAI_IMAGE_MODEL")
	set(&c.Provider.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	set(&c.Provider.AnthropicBaseURL, "ANTHROPIC_BASE_URL")

	set(&c.Social.ClientID, "X_CLIENT_ID", "TWITTER_CLIENT_ID")
	set(&c.Social.ClientSecret, "X_CLIENT_SECRET", "TWITTER_CLIENT_SECRET")
	set(&c.Social.AccessToken, "X_ACCESS_TOKEN", "TWITTER_ACCESS_TOKEN")
	set(&c.Social.RefreshToken, "X_REFRESH_TOKEN", "TWITTER_REFRESH_TOKEN")

	set(&c.Schedule.Cron, "POST_CRON")
	set(&c.Storage.S3.Bucket, "ARCHIVE_S3_BUCKET")

	set(&c.Ideas.File, "IDEAS_FILE")
	set(&c.Database.URL, "DATABASE_URL")
	set(&c.Metrics.Addr, "METRICS_ADDR")
	set(&c.Debug.LogLevel, "LOG_LEVEL")

	if v := getenv("POST_INTERVAL"); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return fmt.Errorf("invalid POST_INTERVAL %q: %w", v, err)
		}
		c.SetInterval(d)
	}

	return nil
}

// parseInterval accepts a Go duration ("90m", "2h") or a bare number of minutes.
func parseInterval(v string) (time.Duration, error) {
	if minutes, err := strconv.Atoi(v); err == nil {
		return time.Duration(minutes) * time.Minute, nil
	}
	return time.ParseDuration(v)
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	// Provider defaults
	if c.Provider.Type == "" {
		c.Provider.Type = "openai"
	}
	if c.Provider.ChatModel == "" {
		c.Provider.ChatModel = "gpt-4.1-mini"
		if c.Provider.TextProvider == "anthropic" {
			c.Provider.ChatModel = "claude-sonnet-4-5"
		}
	}
	if c.Provider.ImageModel == "" {
		c.Provider.ImageModel = "gpt-image-1"
	}
	if c.Provider.ImageSize == "" {
		c.Provider.ImageSize = "1024x1024"
	}
	if c.Provider.Temperature == 0 {
		c.Provider.Temperature = 0.8
	}
	if c.Provider.MaxTokens == 0 {
		c.Provider.MaxTokens = 600
	}
	if c.Provider.TimeoutSeconds == 0 {
		c.Provider.TimeoutSeconds = 120
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = 3
	}

	// Social defaults
	if c.Social.Platform == "" {
		c.Social.Platform = "x"
	}
	if c.Social.TokenFile == "" {
		c.Social.TokenFile = ".pedropost-token.json"
	}
	if c.Social.TimeoutSeconds == 0 {
		c.Social.TimeoutSeconds = 60
	}
	if c.Social.MaxImageWidth == 0 {
		c.Social.MaxImageWidth = 4096
	}
	if c.Social.MaxImageHeight == 0 {
		c.Social.MaxImageHeight = 4096
	}
	if c.Social.MaxImageBytes == 0 {
		c.Social.MaxImageBytes = 5 * 1024 * 1024
	}

	// Schedule defaults
	if c.Schedule.Interval == "" && c.Schedule.IntervalMinutes == 0 {
		c.Schedule.Interval = DefaultInterval.String()
	}

	if c.Ideas.File == "" {
		c.Ideas.File = "ideas.json"
	}

	if c.Debug.LogLevel == "" {
		c.Debug.LogLevel = "info"
	}
}

// Validate validates the structure of the configuration. Credentials are
// checked separately by ValidateCredentials so read-only commands work
// without them.
func (c *Config) Validate() error {
	switch c.Provider.Type {
	case "openai", "ollama", "compatible":
	default:
		return fmt.Errorf("invalid provider type: %s (must be 'openai', 'ollama' or 'compatible')", c.Provider.Type)
	}
	if c.Provider.Type == "compatible" && c.Provider.BaseURL == "" {
		return fmt.Errorf("base_url is required for compatible provider")
	}

	switch c.Provider.TextProvider {
	case "", "anthropic":
	default:
		return fmt.Errorf("invalid text provider: %s (must be empty or 'anthropic')", c.Provider.TextProvider)
	}

	if _, _, err := ParseImageSize(c.Provider.ImageSize); err != nil {
		return err
	}

	if c.Social.Platform != "x" {
		return fmt.Errorf("invalid social platform: %s (must be 'x')", c.Social.Platform)
	}

	if c.Schedule.IntervalMinutes < 0 {
		return fmt.Errorf("interval_minutes must be positive: %d", c.Schedule.IntervalMinutes)
	}
	if c.Schedule.Interval != "" {
		d, err := parseInterval(c.Schedule.Interval)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", c.Schedule.Interval, err)
		}
		if d <= 0 {
			return fmt.Errorf("interval must be positive: %s", c.Schedule.Interval)
		}
	}
	if c.Schedule.Cron != "" {
		if _, err := c.CronSchedule(); err != nil {
			return err
		}
	}

	switch c.Debug.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Debug.LogLevel)
	}

	return nil
}

// ValidateCredentials reports the first missing credential needed to post.
func (c *Config) ValidateCredentials() error {
	if c.Provider.Type == "openai" && c.Provider.APIKey == "" {
		return missingEnv("OPENAI_API_KEY")
	}
	if c.Provider.TextProvider == "anthropic" && c.Provider.AnthropicAPIKey == "" {
		return missingEnv("ANTHROPIC_API_KEY")
	}
	if c.Social.AccessToken == "" && c.Social.RefreshToken == "" {
		if _, err := os.Stat(c.Social.TokenFile); err != nil {
			return missingEnv("X_ACCESS_TOKEN")
		}
	}
	if c.Social.RefreshToken != "" && c.Social.ClientID == "" {
		return missingEnv("X_CLIENT_ID")
	}
	return nil
}

func missingEnv(name string) error {
	return fmt.Errorf("the environment variable %q must be set for the bot to run", name)
}

// Interval returns the pause between successful cycles.
func (c *Config) Interval() time.Duration {
	if c.Schedule.Interval != "" {
		if d, err := parseInterval(c.Schedule.Interval); err == nil && d > 0 {
			return d
		}
	}
	if c.Schedule.IntervalMinutes > 0 {
		return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
	}
	return DefaultInterval
}

// SetInterval stores d exactly.
func (c *Config) SetInterval(d time.Duration) {
	c.Schedule.Interval = d.String()
}

// CronSchedule parses Schedule.Cron. It returns nil when no cron is set.
func (c *Config) CronSchedule() (cron.Schedule, error) {
	if c.Schedule.Cron == "" {
		return nil, nil
	}
	schedule, err := cron.ParseStandard(c.Schedule.Cron)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", c.Schedule.Cron, err)
	}
	return schedule, nil
}

// ProviderTimeout returns the per-request timeout for the content provider.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// SocialTimeout returns the per-request timeout for the social provider.
func (c *Config) SocialTimeout() time.Duration {
	return time.Duration(c.Social.TimeoutSeconds) * time.Second
}

// ParseImageSize splits a "WIDTHxHEIGHT" specifier.
func ParseImageSize(size string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(size), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid image size: %s (want WIDTHxHEIGHT)", size)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid image size: %s (want WIDTHxHEIGHT)", size)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid image size: %s (want WIDTHxHEIGHT)", size)
	}
	return width, height, nil
}
