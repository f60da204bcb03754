package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/vaultgate/internal"
	pkgconfig "github.com/starford/vaultgate/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	err := pkgconfig.LoadOptional(cmd.String("config"), cfg, func(c *internal.Config) {
		if cmd.IsSet("upstream-url") {
			c.Upstream.URL = cmd.String("upstream-url")
		}
		if cmd.IsSet("api-key") {
			c.Upstream.APIKey = cmd.String("api-key")
		}
		if cmd.IsSet("vault-path") {
			c.Upstream.Backend = internal.BackendFS
			c.Upstream.Path = cmd.String("vault-path")
		}
		if cmd.IsSet("port") {
			c.App.HTTP.Port = int(cmd.Int("port"))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "vaultgate",
		Usage:   "Gateway to an Obsidian vault with targeted partial updates and revertible history",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (optional)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "upstream-url",
				Usage:   "Obsidian Local REST API base URL",
				Sources: cli.EnvVars("OBSIDIAN_API_URL"),
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Obsidian Local REST API key",
				Sources: cli.EnvVars("OBSIDIAN_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "vault-path",
				Usage:   "Edit this vault directory directly instead of using the REST API",
				Sources: cli.EnvVars("VAULT_PATH"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "HTTP listen port",
				Sources: cli.EnvVars("SERVER_PORT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP gateway (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the vault tools over MCP stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
