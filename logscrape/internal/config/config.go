// Package config handles logscrape configuration from YAML files, the
// environment and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/chatlogs/logscrape/internal/extract"
	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// Config is the top-level logscrape configuration.
type Config struct {
	Network string `yaml:"network"`
	Channel string `yaml:"channel"`
	// Start and End accept YYYY-MM-DD (UTC midnight) or RFC 3339. Empty
	// Start means End minus Lookback; empty End means now.
	Start    string        `yaml:"start"`
	End      string        `yaml:"end"`
	Lookback time.Duration `yaml:"lookback"`
	SkipInfo *bool         `yaml:"skip_info"`

	// Output is the JSON transcript path. Empty selects the default
	// chatlogs/ path derived from the window.
	Output string `yaml:"output"`

	BaseURL       string `yaml:"base_url"`
	Driver        string `yaml:"driver"` // rod | replay
	DB            string `yaml:"db"`
	Resume        bool   `yaml:"resume"`
	StatusAddr    string `yaml:"status_addr"`
	ScreenshotDir string `yaml:"screenshot_dir"`

	Browser   BrowserConfig     `yaml:"browser"`
	Replay    ReplayConfig      `yaml:"replay"`
	Scroll    ScrollConfig      `yaml:"scroll"`
	Recovery  RecoveryConfig    `yaml:"recovery"`
	Selectors extract.Selectors `yaml:"selectors"`
	Sinks     []SinkConfig      `yaml:"sinks"`
}

// BrowserConfig controls the Chrome sessions.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
	Width            int           `yaml:"width"`
	Height           int           `yaml:"height"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
}

// ReplayConfig controls the HTTP replay driver.
type ReplayConfig struct {
	InitialRows int           `yaml:"initial_rows"`
	RowHeight   int           `yaml:"row_height"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	UserAgent   string        `yaml:"user_agent"`
}

// ScrollConfig controls the scroll loop.
type ScrollConfig struct {
	Pixels      int           `yaml:"pixels"`
	Pause       time.Duration `yaml:"pause"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// RecoveryConfig controls settle waits and driver replacement.
type RecoveryConfig struct {
	Settle         time.Duration `yaml:"settle"`
	EmptyRetries   int           `yaml:"empty_retries"`
	EmptyRetryWait time.Duration `yaml:"empty_retry_wait"`
	MaxRecoveries  int           `yaml:"max_recoveries"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type    string `yaml:"type"`    // file | stdout | sqlite | webhook
	Path    string `yaml:"path"`    // for file
	URL     string `yaml:"url"`     // for webhook
	Retries int    `yaml:"retries"` // for webhook
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Lookback <= 0 {
		c.Lookback = 30 * 24 * time.Hour
	}
	if c.SkipInfo == nil {
		skip := true
		c.SkipInfo = &skip
	}
	if c.Driver == "" {
		c.Driver = "rod"
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = "."
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.Width <= 0 {
		c.Browser.Width = 1120
	}
	if c.Browser.Height <= 0 {
		c.Browser.Height = 550
	}
	if c.Browser.CallTimeout <= 0 {
		c.Browser.CallTimeout = 20 * time.Second
	}
	if c.Browser.ResourceBlocking == nil {
		c.Browser.ResourceBlocking = []string{"images", "fonts", "media"}
	}
	if c.Scroll.Pixels <= 0 {
		c.Scroll.Pixels = 450
	}
	if c.Scroll.Pause == 0 {
		c.Scroll.Pause = 2 * time.Second
	}
	if c.Scroll.MaxAttempts <= 0 {
		c.Scroll.MaxAttempts = 20
	}
	if c.Recovery.Settle == 0 {
		c.Recovery.Settle = 4 * time.Second
	}
	if c.Recovery.MaxRecoveries <= 0 {
		c.Recovery.MaxRecoveries = 3
	}
	c.Selectors = c.Selectors.WithDefaults()
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
	}
}

// ErrBadTime is returned for dates in neither accepted layout.
var ErrBadTime = errors.New("config: time must be YYYY-MM-DD or RFC 3339")

// ParseTime reads a YYYY-MM-DD date (midnight UTC) or an RFC 3339 time.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, s)
}

// Resolve turns the configured range into a validated window. Relative
// defaults are computed against now.
func (c *Config) Resolve(now time.Time) (record.Window, error) {
	w := record.Window{Network: c.Network, Channel: c.Channel, End: now}
	if c.End != "" {
		end, err := ParseTime(c.End)
		if err != nil {
			return record.Window{}, fmt.Errorf("config: end: %w", err)
		}
		w.End = end
	}
	w.Start = w.End.Add(-c.Lookback)
	if c.Start != "" {
		start, err := ParseTime(c.Start)
		if err != nil {
			return record.Window{}, fmt.Errorf("config: start: %w", err)
		}
		w.Start = start
	}
	if err := w.Validate(); err != nil {
		return record.Window{}, fmt.Errorf("config: %w", err)
	}
	return w, nil
}

// Env variable names read by ApplyEnv.
const (
	EnvNetwork    = "LOGSCRAPE_NETWORK"
	EnvChannel    = "LOGSCRAPE_CHANNEL"
	EnvBaseURL    = "LOGSCRAPE_BASE_URL"
	EnvDB         = "LOGSCRAPE_DB"
	EnvRemote     = "LOGSCRAPE_BROWSER_REMOTE"
	EnvStatusAddr = "LOGSCRAPE_STATUS_ADDR"
	EnvWebhookURL = "LOGSCRAPE_WEBHOOK_URL"
	EnvSkipInfo   = "LOGSCRAPE_SKIP_INFO"
)

// ApplyEnv overrides fields from LOGSCRAPE_* variables found by lookup.
// A webhook URL appends a webhook sink.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	set(EnvNetwork, &c.Network)
	set(EnvChannel, &c.Channel)
	set(EnvBaseURL, &c.BaseURL)
	set(EnvDB, &c.DB)
	set(EnvRemote, &c.Browser.Remote)
	set(EnvStatusAddr, &c.StatusAddr)

	if v, ok := lookup(EnvSkipInfo); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvSkipInfo, err)
		}
		c.SkipInfo = &b
	}
	if v, ok := lookup(EnvWebhookURL); ok && v != "" {
		c.Sinks = append(c.Sinks, SinkConfig{Type: "webhook", URL: v, Retries: 3})
	}
	return nil
}
