package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUXPARTY_SPOTIFY_MOCK_PLAYER", "true")
	chdir(t, t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	if cfg.Server.Port != "8080" {
		t.Errorf("Load() port failed! Wanted: %v, got: %v", "8080", cfg.Server.Port)
	}
	if cfg.Playback.PollInterval != 2*time.Second {
		t.Errorf("Load() poll interval failed! Wanted: %v, got: %v", 2*time.Second, cfg.Playback.PollInterval)
	}
	if cfg.Votes.RemoveThreshold != 2 || cfg.Votes.PromoteThreshold != 2 {
		t.Errorf("Load() thresholds failed! Wanted 2 and 2, got: %v and %v", cfg.Votes.RemoveThreshold, cfg.Votes.PromoteThreshold)
	}
	if !cfg.Spotify.MockPlayer {
		t.Errorf("Load() mock player failed! Wanted true from the environment")
	}
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	contents := []byte(`
server:
  port: "9000"
  log_level: debug
spotify:
  access_token: from-file
playback:
  poll_interval: 1s
votes:
  promote_threshold: 3
`)
	require.NoError(t, os.WriteFile(configFile, contents, 0o600))
	t.Setenv("AUXPARTY_VOTES_PROMOTE_THRESHOLD", "4")

	cfg, err := Load(viper.New(), configFile)
	require.NoError(t, err)

	if cfg.Server.Port != "9000" {
		t.Errorf("Load() port failed! Wanted: %v, got: %v", "9000", cfg.Server.Port)
	}
	if cfg.Playback.PollInterval != time.Second {
		t.Errorf("Load() poll interval failed! Wanted: %v, got: %v", time.Second, cfg.Playback.PollInterval)
	}
	if cfg.Votes.PromoteThreshold != 4 {
		t.Errorf("Load() promote threshold failed! Wanted: %v, got: %v", 4, cfg.Votes.PromoteThreshold)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Errorf("LogLevel() failed! Wanted: %v, got: %v", slog.LevelDebug, cfg.LogLevel())
	}

	sessionConfig := cfg.SessionConfig()
	if sessionConfig.PromoteVoteThreshold != 4 || sessionConfig.PollInterval != time.Second {
		t.Errorf("SessionConfig() failed! Got: %+v", sessionConfig)
	}
}

var validateTests = []struct {
	name        string
	mutate      func(*Config)
	expectError bool
}{
	{"mock player needs no token", func(c *Config) { c.Spotify.MockPlayer = true }, false},
	{"access token only", func(c *Config) { c.Spotify.AccessToken = "token" }, false},
	{"missing token", func(c *Config) {}, true},
	{"refresh without client", func(c *Config) { c.Spotify.RefreshToken = "refresh" }, true},
	{"zero threshold", func(c *Config) { c.Spotify.MockPlayer = true; c.Votes.RemoveThreshold = 0 }, true},
}

func TestValidate(t *testing.T) {
	for _, testCase := range validateTests {
		t.Run(testCase.name, func(t *testing.T) {
			cfg := validConfig()
			testCase.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != testCase.expectError {
				t.Errorf("Validate() failed! Wanted error: %v, got: %v", testCase.expectError, err)
			}
		})
	}
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.Playback.SessionID = "main"
	cfg.Playback.PollInterval = 2 * time.Second
	cfg.Playback.EndBuffer = 2 * time.Second
	cfg.Playback.RecoveryCooldown = 5 * time.Second
	cfg.Playback.CallTimeout = 5 * time.Second
	cfg.Votes.RemoveThreshold = 2
	cfg.Votes.PromoteThreshold = 2
	return cfg
}

func chdir(t *testing.T, dir string) {
	previous, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(previous) })
}
