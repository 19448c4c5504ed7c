package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/exp/slog"

	"github.com/campbelljlowman/auxparty-api/session"
)

type Config struct {
	Server struct {
		Port           string   `mapstructure:"port"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
		LogLevel       string   `mapstructure:"log_level"`
		LogFormat      string   `mapstructure:"log_format"`
	} `mapstructure:"server"`
	Spotify struct {
		ClientID           string `mapstructure:"client_id"`
		ClientSecret       string `mapstructure:"client_secret"`
		AccessToken        string `mapstructure:"access_token"`
		RefreshToken       string `mapstructure:"refresh_token"`
		FallbackPlaylistID string `mapstructure:"fallback_playlist_id"`
		MockPlayer         bool   `mapstructure:"mock_player"`
	} `mapstructure:"spotify"`
	Playback struct {
		SessionID          string        `mapstructure:"session_id"`
		PollInterval       time.Duration `mapstructure:"poll_interval"`
		EndBuffer          time.Duration `mapstructure:"end_buffer"`
		RecoveryCooldown   time.Duration `mapstructure:"recovery_cooldown"`
		CallTimeout        time.Duration `mapstructure:"call_timeout"`
		StartupGraceTicks  int           `mapstructure:"startup_grace_ticks"`
		RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`
		RetryMaxDelay      time.Duration `mapstructure:"retry_max_delay"`
		MaxDispatchRetries int           `mapstructure:"max_dispatch_retries"`
		HistoryLimit       int           `mapstructure:"history_limit"`
	} `mapstructure:"playback"`
	Votes struct {
		RemoveThreshold       int  `mapstructure:"remove_threshold"`
		PromoteThreshold      int  `mapstructure:"promote_threshold"`
		RemoveSkipsNowPlaying bool `mapstructure:"remove_skips_now_playing"`
	} `mapstructure:"votes"`
	Redis struct {
		URL         string        `mapstructure:"url"`
		SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
	} `mapstructure:"redis"`
	Postgres struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"postgres"`
}

var envKeys = []string{
	"server.port",
	"server.allowed_origins",
	"server.log_level",
	"server.log_format",
	"spotify.client_id",
	"spotify.client_secret",
	"spotify.access_token",
	"spotify.refresh_token",
	"spotify.fallback_playlist_id",
	"spotify.mock_player",
	"playback.session_id",
	"playback.poll_interval",
	"playback.end_buffer",
	"playback.recovery_cooldown",
	"playback.call_timeout",
	"playback.startup_grace_ticks",
	"playback.retry_base_delay",
	"playback.retry_max_delay",
	"playback.max_dispatch_retries",
	"playback.history_limit",
	"votes.remove_threshold",
	"votes.promote_threshold",
	"votes.remove_skips_now_playing",
	"redis.url",
	"redis.snapshot_ttl",
	"postgres.url",
}

func setDefaults(v *viper.Viper) {
	defaults := session.DefaultConfig()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("playback.session_id", defaults.SessionID)
	v.SetDefault("playback.poll_interval", defaults.PollInterval)
	v.SetDefault("playback.end_buffer", defaults.EndBuffer)
	v.SetDefault("playback.recovery_cooldown", defaults.RecoveryCooldown)
	v.SetDefault("playback.call_timeout", defaults.CallTimeout)
	v.SetDefault("playback.startup_grace_ticks", defaults.StartupGraceTicks)
	v.SetDefault("playback.retry_base_delay", defaults.RetryBaseDelay)
	v.SetDefault("playback.retry_max_delay", defaults.RetryMaxDelay)
	v.SetDefault("playback.max_dispatch_retries", defaults.MaxDispatchRetries)
	v.SetDefault("playback.history_limit", defaults.HistoryLimit)

	v.SetDefault("votes.remove_threshold", defaults.RemoveVoteThreshold)
	v.SetDefault("votes.promote_threshold", defaults.PromoteVoteThreshold)
	v.SetDefault("votes.remove_skips_now_playing", defaults.RemoveVoteSkipsNowPlaying)

	v.SetDefault("redis.snapshot_ttl", 24*time.Hour)
}

// Load reads config.yaml (or configFile when set) and AUXPARTY_* environment variables, environment winning.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	v.SetEnvPrefix("AUXPARTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("config.yaml not found, using environment variables only")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if !c.Spotify.MockPlayer && c.Spotify.AccessToken == "" && c.Spotify.RefreshToken == "" {
		return errors.New("spotify access or refresh token is required (AUXPARTY_SPOTIFY_ACCESS_TOKEN) unless the mock player is used")
	}
	if c.Spotify.RefreshToken != "" && (c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "") {
		return errors.New("spotify client id and secret are required to refresh tokens")
	}
	return c.SessionConfig().Validate()
}

func (c *Config) SessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.SessionID = c.Playback.SessionID
	cfg.FallbackPlaylistID = c.Spotify.FallbackPlaylistID
	cfg.PollInterval = c.Playback.PollInterval
	cfg.EndBuffer = c.Playback.EndBuffer
	cfg.RecoveryCooldown = c.Playback.RecoveryCooldown
	cfg.CallTimeout = c.Playback.CallTimeout
	cfg.StartupGraceTicks = c.Playback.StartupGraceTicks
	cfg.RetryBaseDelay = c.Playback.RetryBaseDelay
	cfg.RetryMaxDelay = c.Playback.RetryMaxDelay
	cfg.MaxDispatchRetries = c.Playback.MaxDispatchRetries
	cfg.HistoryLimit = c.Playback.HistoryLimit
	cfg.RemoveVoteThreshold = c.Votes.RemoveThreshold
	cfg.PromoteVoteThreshold = c.Votes.PromoteThreshold
	cfg.RemoveVoteSkipsNowPlaying = c.Votes.RemoveSkipsNowPlaying
	return cfg
}

func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Server.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
