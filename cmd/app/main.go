package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/scanvault/internal"
	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/pipeline"
	pkgconfig "github.com/starford/scanvault/pkg/config"
)

var version = "dev"

func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(configPath, "", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

// quiet sends logs to stderr so stdout carries only the JSON result.
func quiet(opts []internal.Option) []internal.Option {
	return append(opts, internal.WithLogOutput(os.Stderr))
}

func readInput(name string) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func bootstrap(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.Bootstrap(ctx, quiet(opts)...)
}

func ingest(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	data, err := readInput(cmd.String("file"))
	if err != nil {
		return fmt.Errorf("read scan request: %w", err)
	}
	var req pipeline.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode scan request: %w", err)
	}
	res, err := internal.Ingest(ctx, req, cmd.String("mode"), quiet(opts)...)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func apply(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	data, err := readInput(cmd.String("file"))
	if err != nil {
		return fmt.Errorf("read operations: %w", err)
	}
	var ops []models.FileOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		return fmt.Errorf("decode operations: %w", err)
	}
	sum, err := internal.Apply(ctx, ops, quiet(opts)...)
	if err != nil {
		return err
	}
	return printJSON(sum)
}

func syncVault(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	res, err := internal.Sync(ctx, cmd.String("dest"), quiet(opts)...)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func reset(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") {
		return fmt.Errorf("reset deletes every file in the vault; pass --yes to confirm")
	}
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.Reset(ctx, quiet(opts)...)
}

func fileFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "JSON input file, or - for stdin",
		Value:   "-",
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "scanvault",
		Usage:   "Records scanned handwritten pages as Markdown notes in a local vault",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (.yaml or .toml)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:   "bootstrap",
				Usage:  "Create the vault folder taxonomy",
				Action: bootstrap,
			},
			{
				Name:  "ingest",
				Usage: "Record one scan from a JSON request",
				Flags: []cli.Flag{
					fileFlag(),
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Processing mode override (fast, balanced, accurate)",
					},
				},
				Action: ingest,
			},
			{
				Name:   "apply",
				Usage:  "Apply a JSON array of file operations",
				Flags:  []cli.Flag{fileFlag()},
				Action: apply,
			},
			{
				Name:  "sync",
				Usage: "Mirror the vault into a folder",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dest",
						Usage: "Destination folder (defaults to vault.mirror.path)",
					},
				},
				Action: syncVault,
			},
			{
				Name:  "reset",
				Usage: "Delete every file in the vault and rebuild the folders",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm the reset",
					},
				},
				Action: reset,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
