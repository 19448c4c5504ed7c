package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slog"

	"github.com/campbelljlowman/auxparty-api/api"
	"github.com/campbelljlowman/auxparty-api/cache"
	"github.com/campbelljlowman/auxparty-api/config"
	"github.com/campbelljlowman/auxparty-api/database"
	"github.com/campbelljlowman/auxparty-api/session"
	"github.com/campbelljlowman/auxparty-api/streaming"
	"github.com/campbelljlowman/auxparty-api/utils"
)

const shutdownTimeout = 10 * time.Second

var configFile string

var rootCmd = &cobra.Command{
	Use:   "auxparty-api",
	Short: "Shared group playback queue for one playback device",
	RunE:  runServer,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./config.yaml)")
	flags.String("port", "", "HTTP port")
	flags.Bool("mock-player", false, "use an in-memory player instead of Spotify")
	flags.String("log-level", "", "debug, info, warn or error")

	viper.BindPFlag("server.port", flags.Lookup("port"))
	viper.BindPFlag("spotify.mock_player", flags.Lookup("mock-player"))
	viper.BindPFlag("server.log_level", flags.Lookup("log-level"))
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper(), configFile)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streamingService := newStreamingService(ctx, cfg)

	var sessionOptions []session.Option
	var playHistory *database.PlayHistoryGorm
	if cfg.Postgres.URL != "" {
		gormDB, err := database.NewPostgresClient(cfg.Postgres.URL)
		if err != nil {
			return utils.LogAndReturnError("Unable to connect to database", err)
		}
		playHistory, err = database.NewPlayHistoryGorm(gormDB)
		if err != nil {
			return utils.LogAndReturnError("Unable to migrate play history", err)
		}
		sessionOptions = append(sessionOptions, session.WithPlayObserver(playHistory))
	}

	if cfg.Redis.URL != "" {
		redisClient, err := cache.GetRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return utils.LogAndReturnError("Unable to connect to redis", err)
		}
		defer redisClient.Close()
		sessionOptions = append(sessionOptions, session.WithSnapshotObserver(cache.NewSnapshotMirror(redisClient, cfg.Redis.SnapshotTTL)))
	}

	s, err := session.NewSession(cfg.SessionConfig(), streamingService, streamingService, sessionOptions...)
	if err != nil {
		return err
	}

	session.RegisterMetrics(prometheus.DefaultRegisterer)

	routerOptions := api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MetricsHandler: promhttp.Handler(),
	}
	if playHistory != nil {
		routerOptions.PlayHistory = playHistory
	}
	router := api.InitializeRoutes(s, routerOptions)

	runCtx, cancelRun := context.WithCancel(ctx)
	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		s.Run(runCtx)
	}()

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", cfg.Server.Port, "mock_player", cfg.Spotify.MockPlayer)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
	case err := <-serverErr:
		if err != nil {
			slog.Error("Server stopped", "error", err)
		}
	}

	cancelRun()
	<-sessionDone
	s.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Error shutting down server", "error", err)
	}

	if playHistory != nil {
		if err := playHistory.WriteCompletedSessionMetrics(shutdownCtx, s.Metrics()); err != nil {
			slog.Warn("Error writing completed session metrics", "error", err)
		}
	}
	return nil
}

func newStreamingService(ctx context.Context, cfg *config.Config) streaming.StreamingService {
	if cfg.Spotify.MockPlayer {
		mock := streaming.NewMockStreamingService()
		if cfg.Spotify.FallbackPlaylistID != "" {
			mock.SetPlaylist("mock:track:1", "mock:track:2", "mock:track:3")
		}
		return mock
	}

	return streaming.NewSpotifyClient(ctx, streaming.SpotifyCredentials{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		AccessToken:  cfg.Spotify.AccessToken,
		RefreshToken: cfg.Spotify.RefreshToken,
	})
}

func setupLogging(cfg *config.Config) {
	options := &slog.HandlerOptions{Level: cfg.LogLevel()}

	var handler slog.Handler
	if cfg.Server.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, options)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, options)
	}
	slog.SetDefault(slog.New(handler))
}
