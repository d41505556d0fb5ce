package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/catcoverage/internal"
	pkgconfig "github.com/starford/catcoverage/pkg/config"
)

var version = "dev"

// command adapts an application entry point to a cli action.
func command(run func(context.Context, ...internal.Option) error, extra func(*cli.Command) []internal.Option) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg := internal.NewDefaultConfig()
		if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		if wd := cmd.String("workdir"); wd != "" {
			cfg.Workdir.Path = wd
		}
		if cmd.Bool("no-color") {
			cfg.Report.NoColor = true
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
		}
		if extra != nil {
			opts = append(opts, extra(cmd)...)
		}

		if err := run(ctx, opts...); err != nil {
			return fmt.Errorf("%s: %w", cmd.Name, err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "catcoverage",
		Version: version,
		Usage:   "Audit how much of a data archive is accounted for by the catalogue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "workdir",
				Aliases: []string{"w"},
				Usage:   "Directory holding input, output and cache files",
				Sources: cli.EnvVars("APP_WORKDIR"),
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored report output",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "find-missing",
				Usage: "Walk the archive and annotate every directory the catalogue does not cover",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "incremental",
						Usage: "Seed from the missing and pattern-match files of the previous run",
					},
					&cli.StringFlag{
						Name:  "catalogue-file",
						Usage: "Read catalogue records from a JSON snapshot instead of the catalogue service",
					},
				},
				Action: command(internal.FindMissing, func(cmd *cli.Command) []internal.Option {
					return []internal.Option{
						internal.WithIncremental(cmd.Bool("incremental")),
						internal.WithCatalogueFile(cmd.String("catalogue-file")),
					}
				}),
			},
			{
				Name:  "report",
				Usage: "Print coverage tables for the saved annotation file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "tree",
						Usage: "Also print a tree of the directories that are not ok",
					},
				},
				Action: command(internal.ReportCoverage, func(cmd *cli.Command) []internal.Option {
					return []internal.Option{internal.WithTree(cmd.Bool("tree"))}
				}),
			},
			{
				Name:   "serve",
				Usage:  "Serve coverage reports over HTTP, reloading when the annotation file changes",
				Action: command(internal.Serve, nil),
			},
			{
				Name:  "mcp",
				Usage: "Answer coverage questions over MCP on stdin/stdout",
				Action: command(func(ctx context.Context, opts ...internal.Option) error {
					return internal.ServeMCP(ctx, version, opts...)
				}, nil),
			},
			{
				Name:  "retag-missing",
				Usage: "Rename missing annotations to missing_<collection> in the saved annotation file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "pattern",
						Usage: "Regexp with a (?P<collection>...) group",
					},
				},
				Action: command(internal.RetagMissing, func(cmd *cli.Command) []internal.Option {
					return []internal.Option{internal.WithRetagPattern(cmd.String("pattern"))}
				}),
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}
