package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"snap2sched/internal/config"
	"snap2sched/internal/extract"
	"snap2sched/internal/feed"
	"snap2sched/internal/ics"
	appLog "snap2sched/internal/log"
	"snap2sched/internal/metrics"
	"snap2sched/internal/source"
	"snap2sched/internal/web"
)

const version = "0.1.0"

func newApp() *cli.App {
	return &cli.App{
		Name:    "snap2sched",
		Usage:   "Turn schedule text into calendar events.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "./snap2sched.yaml",
				Usage:   "Path to the YAML config file (created with defaults if missing)",
				EnvVars: []string{"SNAP2SCHED_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides config)",
			},
		},
		Commands: []*cli.Command{
			parseCommand(),
			serveCommand(),
			feedCommand(),
		},
	}
}

// loadConfig reads the config file, applies environment overrides and sets
// up logging.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	appLog.Setup(c.App.ErrWriter, appLog.ParseLevel(level))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newEngine(cfg *config.Config, m *metrics.Metrics) (*extract.Engine, error) {
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	if m != nil {
		opts = append(opts, extract.WithObserver(m))
	}
	return extract.NewEngine(opts...), nil
}

func newFeedBuilder(cfg *config.Config, engine *extract.Engine, m *metrics.Metrics) *feed.Builder {
	var opts []feed.Option
	if m != nil {
		opts = append(opts, feed.WithRecorder(m))
	}
	return feed.NewBuilder(
		engine,
		source.NewFetcher(cfg.CacheDir),
		cfg.Sources,
		cfg.ParseConfig(),
		ics.EncodeOptions{CalendarName: cfg.CalendarName, Timezone: cfg.Timezone},
		opts...,
	)
}

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Parse a schedule file (or stdin) and print the events.",
		ArgsUsage: "[FILE|-]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "year", Usage: "Year for dates that name none (overrides config)"},
			&cli.StringFlag{Name: "timezone", Usage: "IANA timezone attached to the events (overrides config)"},
			&cli.StringFlag{Name: "format", Value: "json", Usage: "Output format: json or ics"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("year") {
				cfg.DefaultYear = c.Int("year")
			}
			if c.IsSet("timezone") {
				cfg.Timezone = c.String("timezone")
			}

			text, err := readInput(c)
			if err != nil {
				return err
			}

			engine, err := newEngine(cfg, nil)
			if err != nil {
				return err
			}
			res := engine.Parse(c.Context, source.NormalizeText(text), cfg.ParseConfig())
			for _, w := range res.Warnings {
				appLog.Warn("parse warning", "warning", w)
			}

			switch c.String("format") {
			case "json":
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(web.NewParseResponse(res))
			case "ics":
				body, err := ics.Encode(res.Events, ics.EncodeOptions{
					CalendarName: cfg.CalendarName,
					Timezone:     cfg.Timezone,
					Stamp:        time.Now().UTC(),
				})
				if err != nil {
					return err
				}
				_, err = c.App.Writer.Write(body)
				return err
			default:
				return fmt.Errorf("unknown format %q", c.String("format"))
			}
		},
	}
}

func readInput(c *cli.Context) (string, error) {
	path := c.Args().First()
	if path == "" || path == "-" {
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and refresh the published feed on schedule.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("listen") {
				cfg.Listen = c.String("listen")
			}

			appLog.Info("effective config",
				"listen", cfg.Listen,
				"timezone", cfg.Timezone,
				"default_year", cfg.DefaultYear,
				"weekday_order", cfg.WeekdayOrder,
				"refresh", cfg.RefreshCron,
				"source_count", len(cfg.Sources),
			)

			m := metrics.New(nil)
			engine, err := newEngine(cfg, m)
			if err != nil {
				return err
			}

			var fs web.FeedSource
			g, ctx := errgroup.WithContext(c.Context)

			if len(cfg.Sources) > 0 {
				builder := newFeedBuilder(cfg, engine, m)
				fs = builder

				sched, err := builder.Schedule(ctx, cfg.RefreshCron)
				if err != nil {
					return err
				}
				g.Go(func() error {
					if _, err := builder.Refresh(ctx); err != nil {
						appLog.Error("initial feed refresh failed", err)
					}
					<-ctx.Done()
					<-sched.Stop().Done()
					return nil
				})
			} else {
				appLog.Warn("no sources configured; feed endpoints will answer 503")
			}

			srv := web.NewServer(cfg, engine, fs, m)
			g.Go(func() error {
				return srv.Run(ctx)
			})

			if err := g.Wait(); err != nil {
				return err
			}
			appLog.Info("snap2sched exiting")
			return nil
		},
	}
}

func feedCommand() *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "Refresh the feed once and write the calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "Output file (default stdout)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if len(cfg.Sources) == 0 {
				return errors.New("no sources configured")
			}
			engine, err := newEngine(cfg, nil)
			if err != nil {
				return err
			}

			snap, err := newFeedBuilder(cfg, engine, nil).Refresh(c.Context)
			if err != nil {
				return err
			}
			for _, w := range snap.Warnings {
				appLog.Warn("feed warning", "warning", w)
			}
			for _, e := range snap.Errors {
				appLog.Warn("feed source error", "error", e)
			}

			out := c.String("out")
			if out == "" {
				_, err := c.App.Writer.Write(snap.ICS)
				return err
			}
			if err := os.WriteFile(out, snap.ICS, 0o644); err != nil {
				return err
			}
			appLog.Info("feed written", "path", out, "events", len(snap.Events))
			return nil
		},
	}
}
