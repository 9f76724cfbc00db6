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
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/poiesic/medvec"
	"github.com/poiesic/medvec/config"
	"github.com/poiesic/medvec/generate"
	"github.com/urfave/cli/v2"
)

const inspectPreview = 5

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// newApp builds the command tree. Database options are passed to every
// command that opens the database.
func newApp(dbOpts ...medvec.DatabaseOption) *cli.App {
	return &cli.App{
		Name:      "medvec",
		Usage:     "Local semantic search over PubMed abstracts",
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML configuration file",
				Value:   "medvec.toml",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write a configuration file with default values",
				Action: initCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing configuration file",
					},
				},
			},
			{
				Name:   "embed",
				Usage:  "Embed PubMed records into the vector store",
				Action: withDatabase(dbOpts, embedCommand),
				Flags: append(overrideFlags(),
					&cli.BoolFlag{
						Name:  "append",
						Usage: "Keep stored vectors and embed only records not yet stored",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of records to visit (0 for all)",
					},
					&cli.IntFlag{
						Name:  "page-size",
						Usage: "Number of records fetched from the source at a time",
					},
				),
			},
			{
				Name:      "search",
				Usage:     "Find the records most similar to a query",
				ArgsUsage: "<query>",
				Action:    withDatabase(dbOpts, searchCommand),
				Flags: append(overrideFlags(),
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results to return",
					},
				),
			},
			{
				Name:   "inspect",
				Usage:  "Show the size, dimension and first identifiers of the vector store",
				Action: withDatabase(dbOpts, inspectCommand),
				Flags:  overrideFlags(),
			},
			{
				Name:      "verify",
				Usage:     "Re-embed a stored record and compare it with its stored vector",
				ArgsUsage: "<pmid>",
				Action:    withDatabase(dbOpts, verifyCommand),
				Flags: append(overrideFlags(),
					&cli.Float64Flag{
						Name:  "tolerance",
						Usage: "Largest per-element difference accepted as a match",
						Value: generate.DefaultTolerance,
					},
				),
			},
		},
	}
}

// overrideFlags are accepted by every command that opens the database and
// take precedence over the configuration file.
func overrideFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "source",
			Usage: "Path to the PubMed SQLite database",
		},
		&cli.StringFlag{
			Name:  "store",
			Usage: "Directory of the persisted vector store",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Vector store backend (files, badger)",
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Number of texts sent to the embedding service per request",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Number of embedding requests in flight",
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Maximum attempts per embedding request",
		},
		&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Base delay for exponential backoff",
		},
	}
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("source") {
		cfg.Source.Path = c.String("source")
	}
	if c.IsSet("store") {
		cfg.Store.Path = c.String("store")
	}
	if c.IsSet("backend") {
		cfg.Store.Backend = c.String("backend")
	}
	if c.IsSet("embedding-host") {
		cfg.Embedding.Host = c.String("embedding-host")
	}
	if c.IsSet("embedding-model") {
		cfg.Embedding.Model = c.String("embedding-model")
	}
	if c.IsSet("batch-size") {
		cfg.Embedding.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("concurrency") {
		cfg.Embedding.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("max-retries") {
		cfg.Embedding.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("retry-delay") {
		cfg.Embedding.RetryDelay = c.Duration("retry-delay").String()
	}
	if c.IsSet("limit") {
		cfg.Source.Limit = c.Int("limit")
	}
	if c.IsSet("page-size") {
		cfg.Source.PageSize = c.Int("page-size")
	}
	if c.IsSet("top-k") {
		cfg.Search.TopK = c.Int("top-k")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type databaseAction func(c *cli.Context, db *medvec.Database) error

func withDatabase(opts []medvec.DatabaseOption, action databaseAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		db, err := medvec.Open(c.Context, cfg, opts...)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		return action(c, db)
	}
}

func initCommand(c *cli.Context) error {
	path := c.String("config")
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}
	if err := config.Write(path, config.Default()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}

func embedCommand(c *cli.Context, db *medvec.Database) error {
	mode := generate.ModeRebuild
	if c.Bool("append") {
		mode = generate.ModeAppend
	}

	cfg := db.Config()
	fmt.Fprintf(c.App.ErrWriter, "Source: %s\n", cfg.Source.Path)
	fmt.Fprintf(c.App.ErrWriter, "Store: %s (%s)\n", cfg.Store.Path, cfg.Store.Backend)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s at %s\n", cfg.Embedding.Model, cfg.Embedding.Host)
	fmt.Fprintln(c.App.ErrWriter)

	builder, err := db.NewBuilder(mode, generate.WithProgress(c.App.ErrWriter))
	if err != nil {
		return err
	}
	report, err := builder.Run(c.Context)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Embedded %d of %d records (%d skipped, %d invalid); store holds %d vectors of dimension %d\n",
		report.Embedded, report.Visited, report.Skipped, report.Invalid, report.Rows, report.Dim)
	return nil
}

func searchCommand(c *cli.Context, db *medvec.Database) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("a query is required")
	}

	searcher, err := db.NewSearcher()
	if err != nil {
		return err
	}
	results, err := searcher.Search(c.Context, query, db.Config().Search.TopK)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "No results")
		return nil
	}
	for i, result := range results {
		line := fmt.Sprintf("%d. %s [%0.4f]", i+1, result.ID, result.Score)
		if result.Reference != "" {
			line += " " + result.Reference
		}
		fmt.Fprintln(c.App.Writer, line)
	}
	return nil
}

func inspectCommand(c *cli.Context, db *medvec.Database) error {
	if err := db.StoreError(); err != nil {
		return err
	}
	snap := db.Store().Snapshot()
	fmt.Fprintf(c.App.Writer, "Vectors: %d\n", snap.Len())
	fmt.Fprintf(c.App.Writer, "Dimension: %d\n", snap.Dim())

	preview := snap.IDs()
	if len(preview) > inspectPreview {
		preview = preview[:inspectPreview]
	}
	fmt.Fprintf(c.App.Writer, "First identifiers: %s\n", strings.Join(preview, ", "))
	return nil
}

func verifyCommand(c *cli.Context, db *medvec.Database) error {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return errors.New("a PMID is required")
	}

	verifier, err := db.NewVerifier(generate.WithTolerance(c.Float64("tolerance")))
	if err != nil {
		return err
	}
	result, err := verifier.Verify(c.Context, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%s stored at rows %v, max deviation %g\n", id, result.Positions, result.MaxDeviation)
	if !result.OK {
		return fmt.Errorf("stored vector for %s does not match a fresh embedding", id)
	}
	fmt.Fprintf(c.App.Writer, "Matching rows: %v\n", result.MatchingRows)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
