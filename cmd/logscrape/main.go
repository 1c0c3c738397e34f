// Command logscrape extracts a channel's history from an infinite-scroll
// chat archive into a JSON transcript.
//
// Usage:
//
//	logscrape -network freenode -channel docker -start 2016-01-01 -end 2016-02-01
//	logscrape -config logscrape.yaml
//	logscrape -test                          # freenode/docker, last 24h
//	logscrape -config logscrape.yaml -db logs.db -resume
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hazyhaar/chatlogs/logscrape"
	"github.com/hazyhaar/chatlogs/logscrape/record"
)

type options struct {
	configPath string
	envFile    string
	test       bool
	set        map[string]bool

	network, channel string
	start, end       string
	output           string
	skipInfo         bool
	driver           string
	db               string
	resume           bool
	statusAddr       string
	baseURL          string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to logscrape.yaml config file")
	flag.StringVar(&o.envFile, "env", ".env", "dotenv file with LOGSCRAPE_* overrides (ignored if missing)")
	flag.BoolVar(&o.test, "test", false, "scrape freenode/docker over the last 24 hours")
	flag.StringVar(&o.network, "network", "", "archive network, e.g. freenode")
	flag.StringVar(&o.channel, "channel", "", "channel name, e.g. docker")
	flag.StringVar(&o.start, "start", "", "window start: YYYY-MM-DD or RFC 3339 (default: 30 days before end)")
	flag.StringVar(&o.end, "end", "", "window end: YYYY-MM-DD or RFC 3339 (default: now)")
	flag.StringVar(&o.output, "output", "", "transcript path (default: chatlogs/<network>_<channel>_<start>_<end>.json)")
	flag.BoolVar(&o.skipInfo, "skip-info", true, "drop join/quit/nick lines")
	flag.StringVar(&o.driver, "driver", "", "page driver: rod | replay (default: rod)")
	flag.StringVar(&o.db, "db", "", "SQLite database for runs and messages")
	flag.BoolVar(&o.resume, "resume", false, "start at the last position recorded in -db for this channel")
	flag.StringVar(&o.statusAddr, "status-addr", "", "serve progress on this address, e.g. :8089")
	flag.StringVar(&o.baseURL, "base-url", "", "archive scheme and host (default: "+logscrape.DefaultBaseURL+")")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	o.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("logscrape: dotenv", "file", o.envFile, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		var abort *logscrape.AbortError
		if errors.As(err, &abort) {
			logger.Error("logscrape: incomplete transcript written", "error", err)
			os.Exit(2)
		}
		logger.Error("logscrape: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	fc, err := loadConfig(o)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	w, err := fc.Resolve(now)
	if err != nil {
		return err
	}

	var st *logscrape.Store
	if fc.DB != "" {
		st, err = logscrape.OpenStore(fc.DB, logger)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
	}

	if fc.Resume {
		if st == nil {
			return fmt.Errorf("-resume needs -db")
		}
		if w, err = resumeWindow(ctx, st, w, *fc.SkipInfo, logger); err != nil {
			return err
		}
	}

	var runID string
	if st != nil {
		runID, err = st.BeginRun(ctx, w, *fc.SkipInfo)
		if err != nil {
			return err
		}
		if !hasSink(fc, "sqlite") {
			fc.Sinks = append(fc.Sinks, logscrape.SinkConfig{Type: "sqlite"})
		}
	}

	sinks, err := logscrape.BuildSinks(fc, w, st, runID, logger)
	if err != nil {
		return err
	}
	defer sinks.Close()

	factory, err := logscrape.DriverFactory(fc, logger)
	if err != nil {
		return err
	}

	var statusSrv *logscrape.StatusServer
	if fc.StatusAddr != "" {
		statusSrv = logscrape.NewStatusServer(logger)
		go func() {
			if err := statusSrv.ListenAndServe(ctx, fc.StatusAddr); err != nil {
				logger.Error("logscrape: status server", "error", err)
			}
		}()
	}

	scfg := logscrape.ScraperConfig(fc, logger)
	lastState := ""
	scfg.OnProgress = func(p record.Progress) {
		if statusSrv != nil {
			statusSrv.Update(p)
		}
		if st == nil {
			return
		}
		if err := st.UpdateProgress(ctx, runID, p); err != nil {
			logger.Warn("logscrape: store progress", "error", err)
		}
		if p.State != lastState {
			st.RecordEvent(ctx, runID, p.State,
				fmt.Sprintf("current_end=%s recoveries=%d", p.CurrentEnd.Format(time.RFC3339), p.Recoveries))
			lastState = p.State
		}
	}

	logger.Info("logscrape: starting",
		"network", w.Network, "channel", w.Channel, "start", w.Start, "end", w.End,
		"driver", fc.Driver, "skip_info", *fc.SkipInfo, "output", logscrape.OutputPath(fc, w))

	res, runErr := logscrape.New(scfg, factory).Run(ctx, w, *fc.SkipInfo)
	tr := res.Transcript(w, runErr)

	// Sinks get written even after a signal: a partial transcript is still
	// worth keeping.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := sinks.Write(wctx, tr); err != nil {
		logger.Error("logscrape: write sinks", "error", err)
		if runErr == nil {
			return err
		}
	}

	if runErr != nil {
		logger.Error("logscrape: run aborted",
			"reason", runErr, "current_end", tr.CurrentEnd, "messages", len(tr.Messages))
		return runErr
	}
	logger.Info("logscrape: done",
		"messages", len(tr.Messages), "recoveries", res.Recoveries, "output", logscrape.OutputPath(fc, w))
	return nil
}

// resumeWindow moves the start of w to the cursor of an earlier run that
// already captured w up to that point. Runs over other windows never move
// it, so nothing before the cursor is left unscraped.
func resumeWindow(ctx context.Context, st *logscrape.Store, w record.Window, skipInfo bool, logger *slog.Logger) (record.Window, error) {
	pos, ok, err := st.ResumePoint(ctx, w, skipInfo)
	if err != nil {
		return w, err
	}
	if !ok {
		logger.Info("logscrape: nothing to resume", "network", w.Network, "channel", w.Channel, "start", w.Start)
		return w, nil
	}
	logger.Info("logscrape: resuming", "from", pos, "requested_start", w.Start)
	w.Start = pos
	return w, nil
}

// loadConfig layers the configuration: file (or defaults), then LOGSCRAPE_*
// environment, then explicit flags, then -test.
func loadConfig(o options) (*logscrape.FileConfig, error) {
	fc := logscrape.DefaultFileConfig()
	if o.configPath != "" {
		var err error
		if fc, err = logscrape.LoadConfigFile(o.configPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := fc.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	str := func(name, v string, dst *string) {
		if o.set[name] {
			*dst = v
		}
	}
	str("network", o.network, &fc.Network)
	str("channel", o.channel, &fc.Channel)
	str("start", o.start, &fc.Start)
	str("end", o.end, &fc.End)
	str("output", o.output, &fc.Output)
	str("driver", o.driver, &fc.Driver)
	str("db", o.db, &fc.DB)
	str("status-addr", o.statusAddr, &fc.StatusAddr)
	str("base-url", o.baseURL, &fc.BaseURL)
	if o.set["skip-info"] {
		skip := o.skipInfo
		fc.SkipInfo = &skip
	}
	if o.set["resume"] {
		fc.Resume = o.resume
	}

	if o.test {
		fc.Network, fc.Channel = "freenode", "docker"
		fc.Start, fc.End = "", ""
		fc.Lookback = 24 * time.Hour
	}
	return fc, nil
}

func hasSink(fc *logscrape.FileConfig, typ string) bool {
	for _, sc := range fc.Sinks {
		if sc.Type == typ {
			return true
		}
	}
	return false
}
