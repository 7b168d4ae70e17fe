package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/ui"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"
)

// newService builds the catalog named by search.service. A nil service is
// returned when credentials are missing; commands that need it report that.
func newService(ctx context.Context, config *shared.Config, logger *log.Logger) services.Service {
	switch config.Search.Service {
	case "youtube":
		yt := config.Credentials.YouTube
		return services.NewYouTubeService(yt.ProxyURL, yt.HeadersPath)
	default:
		svc, err := services.NewSpotifyService(ctx, config.Credentials.Spotify)
		if err != nil {
			logger.Debug("spotify service unavailable", "error", err)
			return nil
		}
		return svc
	}
}

func main() {
	logger := shared.NewLogger(nil)

	configPath := "config.toml"
	if p := os.Getenv("PLSYNC_CONFIG"); p != "" {
		configPath = p
	}

	if err := shared.LoadEnv(".env"); err != nil {
		logger.Warn("failed to load .env", "error", err)
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		}
	}
	config.ApplyEnv()
	shared.SetLogLevel(logger, shared.ParseLogLevel(config.Logging.Level))

	if err := config.Validate(); err != nil {
		logger.Fatal("invalid configuration", "path", configPath, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	service := newService(ctx, config, logger)
	runner := NewRunner(RunnerOpts{
		Config:      config,
		ConfigPath:  configPath,
		Catalog:     service,
		Writer:      service,
		Logger:      logger,
		Interactive: isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stderr.Fd()),
	})

	app := &cli.Command{
		Name:    "plsync",
		Usage:   "Reconcile local playlist files against a streaming catalog",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				shared.SetLogLevel(logger, log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: runner.register(),
	}

	if err := app.Run(ctx, os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrAuthFailed):
			logger.Error("catalog rejected the credentials; refresh the access token in config.toml or .env and rerun",
				"service", config.Search.Service, "error", err)
			os.Exit(2)
		case errors.Is(err, shared.ErrMissingCredentials), errors.Is(err, shared.ErrServiceUnavailable):
			logger.Error("catalog is not configured; run 'plsync setup config' and fill in [credentials]", "error", err)
			os.Exit(2)
		case errors.Is(err, ui.ErrReviewAborted), errors.Is(err, context.Canceled):
			logger.Warn("run aborted", "error", err)
			os.Exit(130)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}
