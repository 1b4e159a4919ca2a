// Package commands defines the caller CLI.
//
// Commands
//
//   - run        Join the relay and place or take calls with live captions
//   - history    List finished calls or hourly call metrics from the relay API
//   - languages  Print the supported caption languages
//
// Defaults come from LIVECAPTION_* environment variables (a .env file in the
// working directory is loaded first) and can be overridden with flags.
package commands

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
)

type Config struct {
	Relay             string `envconfig:"RELAY" default:"ws://localhost:9000/peerjs"`
	API               string `envconfig:"API" default:"http://localhost:9000/api/v1"`
	ID                string `envconfig:"ID"`
	Language          string `envconfig:"LANGUAGE" default:"tr"`
	TranslateEndpoint string `envconfig:"TRANSLATE_ENDPOINT"`
	TranslateCache    int    `envconfig:"TRANSLATE_CACHE_SIZE" default:"1024"`
	// REDIS_ADDR shares the translation cache between callers when set
	RedisAddr   string        `envconfig:"REDIS_ADDR"`
	WordDelay   time.Duration `envconfig:"WORD_DELAY" default:"150ms"`
	RingTimeout time.Duration `envconfig:"RING_TIMEOUT" default:"60s"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"warn"`
	NoColor     bool          `envconfig:"NO_COLOR" default:"false"`
}

func LoadConfig() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	err := envconfig.Process("livecaption", &cfg)
	return cfg, err
}

var cfg Config

func Execute() error {
	loaded, err := LoadConfig()
	if err != nil {
		return err
	}
	cfg = loaded

	root := &cobra.Command{
		Use:          "caller",
		Short:        "Two-party calls with live translated captions",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfg.API, "api", cfg.API, "relay API base URL")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	root.PersistentFlags().BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "disable colored output")

	root.AddCommand(runCmd(), historyCmd(), languagesCmd())
	return root.Execute()
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
