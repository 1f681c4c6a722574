// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Provider names accepted by browser.provider.
const (
	ProviderCDP    = "cdp"
	ProviderStatic = "static"
)

// Config is the root configuration for a lancet run.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Target    TargetConfig    `mapstructure:"target" yaml:"target"`
	Timeouts  TimeoutConfig   `mapstructure:"timeouts" yaml:"timeouts"`
	Runner    RunnerConfig    `mapstructure:"runner" yaml:"runner"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Report    ReportConfig    `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls how a browser session is launched.
type BrowserConfig struct {
	// Provider selects the automation backend: "cdp" or "static".
	Provider      string         `mapstructure:"provider" yaml:"provider"`
	Headless      bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath      string         `mapstructure:"exec_path" yaml:"exec_path"`
	RemoteURL     string         `mapstructure:"remote_url" yaml:"remote_url"`
	Args          []string       `mapstructure:"args" yaml:"args"`
	Viewport      ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	LaunchTimeout time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	UserAgent     string         `mapstructure:"user_agent" yaml:"user_agent"`
}

// ViewportConfig is the fixed window size used for every session.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// TargetConfig points at the application under test.
type TargetConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// TimeoutConfig groups every bounded wait used during a run.
type TimeoutConfig struct {
	// Default is the per-operation timeout set on the browsing context.
	Default    time.Duration `mapstructure:"default" yaml:"default"`
	Navigation time.Duration `mapstructure:"navigation" yaml:"navigation"`
	Readiness  time.Duration `mapstructure:"readiness" yaml:"readiness"`
	Step       time.Duration `mapstructure:"step" yaml:"step"`
	Assertion  time.Duration `mapstructure:"assertion" yaml:"assertion"`
}

// RunnerConfig tunes the scenario runner.
type RunnerConfig struct {
	SettleDelay  time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	Concurrency  int           `mapstructure:"concurrency" yaml:"concurrency"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// Hold keeps a passing session open for a moment before cleanup.
	Hold time.Duration `mapstructure:"hold" yaml:"hold"`
}

// ArtifactsConfig controls what is written to disk when a scenario fails.
type ArtifactsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// ReportConfig names the report files written after a run. Empty disables.
type ReportConfig struct {
	JSON  string `mapstructure:"json" yaml:"json"`
	JUnit string `mapstructure:"junit" yaml:"junit"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "lancet")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.provider", ProviderCDP)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.args", []string{"--single-process", "--ipc=host"})
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 720)
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.user_agent", "")

	// -- Target --
	v.SetDefault("target.url", "http://localhost:5173")

	// -- Timeouts --
	v.SetDefault("timeouts.default", "5s")
	v.SetDefault("timeouts.navigation", "10s")
	v.SetDefault("timeouts.readiness", "3s")
	v.SetDefault("timeouts.step", "5s")
	v.SetDefault("timeouts.assertion", "3s")

	// -- Runner --
	v.SetDefault("runner.settle_delay", "3s")
	v.SetDefault("runner.concurrency", 1)
	v.SetDefault("runner.poll_interval", "100ms")
	v.SetDefault("runner.hold", "0s")

	// -- Artifacts --
	v.SetDefault("artifacts.enabled", true)
	v.SetDefault("artifacts.dir", "lancet-artifacts")

	// -- Report --
	v.SetDefault("report.json", "")
	v.SetDefault("report.junit", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// It also normalizes home-relative paths.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Browser.Provider) {
	case ProviderCDP, ProviderStatic:
		c.Browser.Provider = strings.ToLower(c.Browser.Provider)
	default:
		return fmt.Errorf("browser.provider must be %q or %q, got %q", ProviderCDP, ProviderStatic, c.Browser.Provider)
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport dimensions must be positive")
	}
	if c.Target.URL == "" {
		return fmt.Errorf("target.url is a required configuration field")
	}
	if _, err := url.ParseRequestURI(c.Target.URL); err != nil {
		return fmt.Errorf("target.url is not a valid URL: %w", err)
	}
	if err := c.Timeouts.Validate(); err != nil {
		return fmt.Errorf("timeouts configuration invalid: %w", err)
	}
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	if c.Runner.SettleDelay < 0 {
		return fmt.Errorf("runner.settle_delay cannot be negative")
	}
	if c.Runner.PollInterval <= 0 {
		return fmt.Errorf("runner.poll_interval must be a positive duration")
	}

	if c.Artifacts.Dir != "" {
		dir, err := homedir.Expand(c.Artifacts.Dir)
		if err != nil {
			return fmt.Errorf("artifacts.dir: %w", err)
		}
		c.Artifacts.Dir = dir
	}
	if c.Artifacts.Enabled && c.Artifacts.Dir == "" {
		return fmt.Errorf("artifacts.dir is required when artifacts are enabled")
	}
	return nil
}

// Validate checks that every timeout is a positive duration.
func (t *TimeoutConfig) Validate() error {
	checks := map[string]time.Duration{
		"default":    t.Default,
		"navigation": t.Navigation,
		"readiness":  t.Readiness,
		"step":       t.Step,
		"assertion":  t.Assertion,
	}
	for name, d := range checks {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	return nil
}
