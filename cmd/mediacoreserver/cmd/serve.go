package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mediacore/hlsengine/internal/catalog"
	"github.com/mediacore/hlsengine/internal/config"
	"github.com/mediacore/hlsengine/internal/database"
	internalhttp "github.com/mediacore/hlsengine/internal/http"
	"github.com/mediacore/hlsengine/internal/mediacache"
	"github.com/mediacore/hlsengine/internal/observability"
	"github.com/mediacore/hlsengine/internal/streamapi"
	"github.com/mediacore/hlsengine/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HLS serving engine",
	Long: `Start the HTTP server that serves HLS playlists, init segments, media
segments and direct downloads for catalogued MP4 files.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = viper.GetString("server.host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = viper.GetInt("server.port")
	}

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)
	observability.SetRequestLogging(true)

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	cache := mediacache.New(cfg.Cache.Capacity, cfg.Cache.IdleTTL)

	cat := catalog.New(db.DB, cache)
	if err := cat.Migrate(); err != nil {
		return fmt.Errorf("migrating catalog: %w", err)
	}

	sweeper := cron.New()
	sweepSpec := fmt.Sprintf("@every %s", cfg.Cache.SweepInterval)
	if _, err := sweeper.AddFunc(sweepSpec, func() {
		removed := cache.Sweep()
		if removed > 0 {
			logger.Info("swept idle prepared-media entries", slog.Int("removed", removed))
		}
	}); err != nil {
		return fmt.Errorf("scheduling cache sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	serverConfig := internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.ReadTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
	}
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	streamHandler := &streamapi.Handler{
		Catalog:              cat,
		Cache:                cache,
		TargetSegmentSeconds: cfg.Cache.TargetSegmentSeconds,
		Logger:               logger,
	}
	streamHandler.Mount(server.Router())

	server.Router().Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting mediacoreserver",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}
