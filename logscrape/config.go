package logscrape

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
	"github.com/hazyhaar/chatlogs/logscrape/internal/browser"
	"github.com/hazyhaar/chatlogs/logscrape/internal/config"
	"github.com/hazyhaar/chatlogs/logscrape/internal/replay"
	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// FileConfig is the YAML configuration of the logscrape binary.
// Re-exported from internal.
type FileConfig = config.Config

// BrowserConfig controls the Chrome sessions.
type BrowserConfig = config.BrowserConfig

// ReplayConfig controls the HTTP replay driver.
type ReplayConfig = config.ReplayConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*FileConfig, error) {
	return config.LoadFile(path)
}

// DefaultFileConfig returns a configuration with every default applied.
func DefaultFileConfig() *FileConfig {
	return config.Default()
}

// ParseTime reads a YYYY-MM-DD date (midnight UTC) or an RFC 3339 time.
func ParseTime(s string) (time.Time, error) {
	return config.ParseTime(s)
}

// ErrUnknownDriver is returned for a driver name other than rod or replay.
var ErrUnknownDriver = errors.New("logscrape: unknown driver")

// ScraperConfig maps a file configuration onto a Scraper Config.
func ScraperConfig(fc *FileConfig, logger *slog.Logger) Config {
	return Config{
		BaseURL:           fc.BaseURL,
		Settle:            fc.Recovery.Settle,
		ScrollPixels:      fc.Scroll.Pixels,
		ScrollPause:       fc.Scroll.Pause,
		MaxScrollAttempts: fc.Scroll.MaxAttempts,
		EmptyRetries:      fc.Recovery.EmptyRetries,
		EmptyRetryWait:    fc.Recovery.EmptyRetryWait,
		MaxRecoveries:     fc.Recovery.MaxRecoveries,
		ScreenshotDir:     fc.ScreenshotDir,
		Selectors:         fc.Selectors,
		Logger:            logger,
	}
}

// DriverFactory builds the driver factory named by fc.Driver: "rod" (a
// stealth Chrome per driver) or "replay" (plain HTTP fetches).
func DriverFactory(fc *FileConfig, logger *slog.Logger) (driver.Factory, error) {
	switch fc.Driver {
	case "rod", "browser", "":
		return browser.Factory(browser.Config{
			RemoteURL:        fc.Browser.Remote,
			Headful:          fc.Browser.Stealth == "headful",
			XvfbDisplay:      fc.Browser.XvfbDisplay,
			Width:            fc.Browser.Width,
			Height:           fc.Browser.Height,
			CallTimeout:      fc.Browser.CallTimeout,
			NavigateTimeout:  fc.Browser.NavigateTimeout,
			ResourceBlocking: fc.Browser.ResourceBlocking,
			Logger:           logger,
		}), nil
	case "replay":
		return replay.Factory(replay.Config{
			Container:   containerOf(fc.Selectors.Entry),
			InitialRows: fc.Replay.InitialRows,
			RowHeight:   fc.Replay.RowHeight,
			Timeout:     fc.Replay.Timeout,
			Retries:     fc.Replay.Retries,
			UserAgent:   fc.Replay.UserAgent,
			Logger:      logger,
		}), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, fc.Driver)
}

// containerOf derives the replay container from an entry selector of the
// form "container > child". Other shapes fall back to the replay default.
func containerOf(entry string) string {
	i := strings.LastIndex(entry, ">")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(entry[:i])
}

// OutputPath is the JSON transcript path for w: fc.Output when set,
// DefaultOutputPath otherwise.
func OutputPath(fc *FileConfig, w record.Window) string {
	if fc.Output != "" {
		return fc.Output
	}
	return DefaultOutputPath(w)
}
