package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hopkins385/mcp-google-vertex/internal/generation"
	"github.com/hopkins385/mcp-google-vertex/internal/infra"
	"github.com/hopkins385/mcp-google-vertex/internal/ledger"
	"github.com/hopkins385/mcp-google-vertex/internal/mcp"
	"github.com/hopkins385/mcp-google-vertex/internal/pricing"
	"github.com/hopkins385/mcp-google-vertex/internal/storage"
	"github.com/hopkins385/mcp-google-vertex/internal/vertex"
)

const (
	serverName    = "mcp-google-vertex"
	serverVersion = "0.1.0"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}

	// The stdio transport owns stdout for the JSON-RPC stream, so logs move
	// to stderr there.
	logOut := io.Writer(os.Stdout)
	if cfg.Transport == infra.TransportStdio {
		logOut = os.Stderr
	}
	logger := infra.NewLogger(cfg.AppEnv, logOut)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := vertex.NewClient(vertex.Options{
		APIKey:     cfg.GoogleAPIKey,
		BaseURL:    cfg.VertexBaseURL,
		ImageModel: cfg.ImageModel,
		VideoModel: cfg.VideoModel,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure vertex client")
	}
	logger.Info().
		Str("image_model", client.ImageModel()).
		Str("video_model", client.VideoModel()).
		Msg("vertex client ready")

	svc := generation.NewService(client, nil, logger)

	var store *storage.FileStore
	if cfg.OutputDir != "" {
		outputDir := cfg.OutputDir
		if !filepath.IsAbs(outputDir) {
			if abs, err := filepath.Abs(outputDir); err == nil {
				outputDir = abs
			}
		}
		store, err = storage.NewFileStore(outputDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure artifact storage")
		}
		logger.Info().Str("dir", store.BasePath()).Msg("artifact storage ready")
	}

	opts := mcp.ServerOptions{
		Name:               serverName,
		Version:            serverVersion,
		ImageModel:         cfg.ImageModel,
		VideoModel:         cfg.VideoModel,
		Generator:          svc,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}
	if store != nil {
		opts.Store = store
	}

	// The usage ledger is optional; without a database every call still runs.
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()

		pg := ledger.NewPGLedger(infra.NewSQLRunner(pool, logger))
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare generation ledger")
		}
		if entries, costUSD, err := pg.Totals(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to read ledger totals")
		} else {
			logger.Info().Int64("entries", entries).Str("lifetime_cost", pricing.FormatUSD(costUSD)).Msg("generation ledger ready")
		}
		opts.Ledger = pg
	}

	srv, err := mcp.NewServer(opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build mcp server")
	}

	switch cfg.Transport {
	case infra.TransportHTTP:
		serveHTTP(ctx, cfg, srv, logger)
	default:
		serveStdio(ctx, srv, logger)
	}
}

func serveStdio(ctx context.Context, srv *mcp.Server, logger infra.Logger) {
	logger.Info().Msg("mcp server listening on stdio")
	if err := srv.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("stdio transport failed")
	}
	logger.Info().Msg("server stopped")
}

func serveHTTP(ctx context.Context, cfg *infra.Config, srv *mcp.Server, logger infra.Logger) {
	server := infra.NewHTTPServer(cfg, srv.Router())

	logger.Info().Msgf("mcp server listening on :%s", cfg.Port)
	if err := server.Run(ctx, cfg.HTTPIdleTimeout); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}
