// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/annotit/config"
	"github.com/urfave/cli/v2"
)

// errRunFailed makes the process exit non-zero after a run whose summary
// reports failed intervals.
var errRunFailed = errors.New("run finished with failed intervals")

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "annotit",
		Usage: "Annotate dated documents with an NLP service and store the results",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{config.EnvPrefix + "_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{config.EnvPrefix + "_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log output format (text, json)",
				Value:   "text",
				EnvVars: []string{config.EnvPrefix + "_LOG_FORMAT"},
			},
		}, runFlags()...),
		Before: setupLogger,
		Action: runCommand,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Annotate the configured date range, once or on the configured schedule",
				Action: runCommand,
				Flags:  runFlags(),
			},
			{
				Name:   "seed",
				Usage:  "Load documents into the source store from JSON lines or generate fake ones",
				Action: seedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "JSON-lines file of document bodies (\"-\" reads stdin)",
					},
					&cli.IntFlag{
						Name:  "count",
						Usage: "Number of fake documents to generate when no file is given",
						Value: 100,
					},
					&cli.Int64Flag{
						Name:  "seed",
						Usage: "Random seed for fake documents",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Documents written per bulk request",
						Value: 500,
					},
				},
			},
			{
				Name:   "count",
				Usage:  "Print document counts of the source and sink indexes",
				Action: countCommand,
			},
			{
				Name:   "wait",
				Usage:  "Wait until the configured wait-for services are reachable",
				Action: waitCommand,
			},
			{
				Name:  "config",
				Usage: "Inspect the configuration",
				Subcommands: []*cli.Command{
					{
						Name:   "schema",
						Usage:  "Print the JSON schema of the configuration file",
						Action: schemaCommand,
					},
					{
						Name:   "show",
						Usage:  "Print the effective configuration with secrets masked",
						Action: showCommand,
					},
				},
			},
		},
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "once",
			Usage: "Run a single pass even when a schedule is configured",
		},
		&cli.BoolFlag{
			Name:  "progress",
			Usage: "Report interval progress on stderr",
		},
	}
}

// loadConfig loads the configuration and applies its log settings where
// the command line left them unset.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	level, format := c.String("log-level"), c.String("log-format")
	if !c.IsSet("log-level") && cfg.Log.Level != "" {
		level = cfg.Log.Level
	}
	if !c.IsSet("log-format") && cfg.Log.Format != "" {
		format = cfg.Log.Format
	}
	if err := configureLogger(c.App.ErrWriter, level, format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogger(c *cli.Context) error {
	return configureLogger(c.App.ErrWriter, c.String("log-level"), c.String("log-format"))
}

func configureLogger(w io.Writer, levelStr, format string) error {
	levelStr = strings.ToLower(levelStr)

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func elapsed(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
