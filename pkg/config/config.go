package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the engine reads
const EnvPrefix = "IGSTORIES_"

// Config holds all configuration options for the story acquisition engine
type Config struct {
	Platform   PlatformConfig   `yaml:"platform" json:"platform"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" json:"rate_limit"`
	Captcha    CaptchaConfig    `yaml:"captcha" json:"captcha"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Strategies StrategiesConfig `yaml:"strategies" json:"strategies"`
	Download   DownloadConfig   `yaml:"download" json:"download"`
	Output     OutputConfig     `yaml:"output" json:"output"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// PlatformConfig describes the upstream platform
type PlatformConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	AppID          string        `yaml:"app_id" json:"app_id"`
	UserAgents     []string      `yaml:"user_agents" json:"user_agents"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	// HostInterval spaces consecutive outbound requests to the same host
	HostInterval   time.Duration `yaml:"host_interval" json:"host_interval"`
}

// LimitPolicy is one sliding-window rate limit
type LimitPolicy struct {
	MaxRequests      int           `yaml:"max_requests" json:"max_requests"`
	Window           time.Duration `yaml:"window" json:"window"`
	BlockDuration    time.Duration `yaml:"block_duration" json:"block_duration"`
	CaptchaThreshold int           `yaml:"captcha_threshold" json:"captcha_threshold"`
}

// RateLimitConfig holds the two limiter policies
type RateLimitConfig struct {
	Download      LimitPolicy   `yaml:"download" json:"download"`
	Platform      LimitPolicy   `yaml:"platform" json:"platform"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// CaptchaConfig holds challenge settings
type CaptchaConfig struct {
	TTL           time.Duration `yaml:"ttl" json:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// CacheConfig holds TTLs of the named caches
type CacheConfig struct {
	AccountIDTTL  time.Duration `yaml:"account_id_ttl" json:"account_id_ttl"`
	StoriesTTL    time.Duration `yaml:"stories_ttl" json:"stories_ttl"`
	DownloadTTL   time.Duration `yaml:"download_ttl" json:"download_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// StrategiesConfig configures the acquisition chain
type StrategiesConfig struct {
	// Order lists strategy names in the order they are attempted
	Order              []string      `yaml:"order" json:"order"`
	InterStrategyDelay time.Duration `yaml:"inter_strategy_delay" json:"inter_strategy_delay"`
	Browser            BrowserConfig `yaml:"browser" json:"browser"`
	Session            SessionConfig `yaml:"session" json:"session"`
	Scrape             ScrapeConfig  `yaml:"scrape" json:"scrape"`
}

// BrowserConfig configures the headless viewer strategy
type BrowserConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	ViewerURL         string        `yaml:"viewer_url" json:"viewer_url"`
	ExecPath          string        `yaml:"exec_path" json:"exec_path"`
	Headless          bool          `yaml:"headless" json:"headless"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	SigningTimeout    time.Duration `yaml:"signing_timeout" json:"signing_timeout"`
	ResponseTimeout   time.Duration `yaml:"response_timeout" json:"response_timeout"`
}

// SessionConfig configures the external-process strategy
type SessionConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Binary   string        `yaml:"binary" json:"binary"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	StoreDir string        `yaml:"store_dir" json:"store_dir"`
}

// ScrapeConfig configures the HTML scrape strategy
type ScrapeConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	MinFileSize         int64         `yaml:"min_file_size" json:"min_file_size"`
	MaxAttempts         int           `yaml:"max_attempts" json:"max_attempts"`
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
}

// OutputConfig holds output directory configuration for the CLI
type OutputConfig struct {
	BaseDirectory     string `yaml:"base_directory" json:"base_directory"`
	CreateUserFolders bool   `yaml:"create_user_folders" json:"create_user_folders"`
	OverwriteExisting bool   `yaml:"overwrite_existing" json:"overwrite_existing"`
	// WriteMetadata stores a <file>.json sidecar next to each story
	WriteMetadata     bool   `yaml:"write_metadata" json:"write_metadata"`
}

// ServerConfig holds HTTP surface settings
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	EnableMetrics   bool          `yaml:"enable_metrics" json:"enable_metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			BaseURL: "https://www.instagram.com",
			AppID:   "936619743392459",
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
				"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
			},
			RequestTimeout: 15 * time.Second,
			HostInterval:   500 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Download: LimitPolicy{
				MaxRequests:      10,
				Window:           time.Minute,
				BlockDuration:    5 * time.Minute,
				CaptchaThreshold: 3,
			},
			Platform: LimitPolicy{
				MaxRequests:      30,
				Window:           time.Minute,
				BlockDuration:    2 * time.Minute,
				CaptchaThreshold: 3,
			},
			SweepInterval: time.Minute,
		},
		Captcha: CaptchaConfig{
			TTL:           5 * time.Minute,
			SweepInterval: time.Minute,
		},
		Cache: CacheConfig{
			AccountIDTTL:  24 * time.Hour,
			StoriesTTL:    2 * time.Hour,
			DownloadTTL:   30 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Strategies: StrategiesConfig{
			Order:              []string{"browser", "session", "api", "scrape"},
			InterStrategyDelay: time.Second,
			Browser: BrowserConfig{
				Enabled:           true,
				ViewerURL:         "https://storiesig.info/en/",
				Headless:          true,
				NavigationTimeout: 60 * time.Second,
				SigningTimeout:    30 * time.Second,
				ResponseTimeout:   30 * time.Second,
			},
			Session: SessionConfig{
				Enabled: true,
				Binary:  "yt-dlp",
				Timeout: 90 * time.Second,
			},
			Scrape: ScrapeConfig{Enabled: true},
		},
		Download: DownloadConfig{
			Timeout:             60 * time.Second,
			MinFileSize:         1000,
			MaxAttempts:         2,
			ConcurrentDownloads: 3,
		},
		Output: OutputConfig{
			BaseDirectory:     "./downloads",
			CreateUserFolders: true,
			WriteMetadata:     true,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			EnableMetrics:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = d
	}
	setInt := func(name string, dst *int) {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = n
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}

	setString("BASE_URL", &c.Platform.BaseURL)
	setString("APP_ID", &c.Platform.AppID)
	if ua := os.Getenv(EnvPrefix + "USER_AGENT"); ua != "" {
		c.Platform.UserAgents = []string{ua}
	}
	setDuration("HOST_INTERVAL", &c.Platform.HostInterval)

	setInt("DOWNLOAD_LIMIT", &c.RateLimit.Download.MaxRequests)
	setInt("PLATFORM_LIMIT", &c.RateLimit.Platform.MaxRequests)

	if order := os.Getenv(EnvPrefix + "STRATEGIES"); order != "" {
		c.Strategies.Order = splitList(order)
	}
	setDuration("INTER_STRATEGY_DELAY", &c.Strategies.InterStrategyDelay)
	setBool("BROWSER_ENABLED", &c.Strategies.Browser.Enabled)
	setString("BROWSER_EXEC_PATH", &c.Strategies.Browser.ExecPath)
	setString("VIEWER_URL", &c.Strategies.Browser.ViewerURL)
	setBool("SESSION_ENABLED", &c.Strategies.Session.Enabled)
	setString("SESSION_BINARY", &c.Strategies.Session.Binary)
	setString("SESSION_DIR", &c.Strategies.Session.StoreDir)

	setDuration("DOWNLOAD_TIMEOUT", &c.Download.Timeout)
	setInt("CONCURRENT_DOWNLOADS", &c.Download.ConcurrentDownloads)
	setString("OUTPUT_DIR", &c.Output.BaseDirectory)
	setBool("WRITE_METADATA", &c.Output.WriteMetadata)

	setString("ADDR", &c.Server.Addr)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FORMAT", &c.Logging.Format)
	setString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".igstories.yaml",
		".igstories.yml",
		filepath.Join(home, ".config", "igstories", "config.yaml"),
		filepath.Join(home, ".config", "igstories", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Platform.BaseURL == "" {
		errs = append(errs, errors.New("platform base URL is required"))
	}
	if len(c.Platform.UserAgents) == 0 {
		errs = append(errs, errors.New("at least one user agent is required"))
	}

	for name, p := range map[string]LimitPolicy{
		"download": c.RateLimit.Download,
		"platform": c.RateLimit.Platform,
	} {
		if p.MaxRequests <= 0 {
			errs = append(errs, fmt.Errorf("%s limit: max requests must be positive", name))
		}
		if p.Window <= 0 {
			errs = append(errs, fmt.Errorf("%s limit: window must be positive", name))
		}
		if p.BlockDuration < 0 {
			errs = append(errs, fmt.Errorf("%s limit: block duration cannot be negative", name))
		}
	}

	if c.Captcha.TTL <= 0 {
		errs = append(errs, errors.New("captcha TTL must be positive"))
	}
	if c.Cache.AccountIDTTL <= 0 || c.Cache.StoriesTTL <= 0 || c.Cache.DownloadTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}

	known := map[string]bool{"browser": true, "session": true, "api": true, "scrape": true}
	if len(c.Strategies.Order) == 0 {
		errs = append(errs, errors.New("at least one strategy is required"))
	}
	for _, name := range c.Strategies.Order {
		if !known[name] {
			errs = append(errs, fmt.Errorf("unknown strategy %q", name))
		}
	}
	if c.Strategies.InterStrategyDelay < 0 {
		errs = append(errs, errors.New("inter-strategy delay cannot be negative"))
	}

	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.MinFileSize < 0 {
		errs = append(errs, errors.New("minimum file size cannot be negative"))
	}
	if c.Download.MaxAttempts <= 0 {
		errs = append(errs, errors.New("download attempts must be positive"))
	}
	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	if f := strings.ToLower(c.Logging.Format); f != "" && f != "console" && f != "json" {
		errs = append(errs, errors.New("invalid log format"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if addr, ok := flags["addr"].(string); ok && addr != "" {
		c.Server.Addr = addr
	}
	if order, ok := flags["strategies"].(string); ok && order != "" {
		c.Strategies.Order = splitList(order)
	}
	if headful, ok := flags["headful"].(bool); ok && headful {
		c.Strategies.Browser.Headless = false
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igstories.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
