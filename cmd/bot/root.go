package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/highest-aircraft/internal/config"
	"github.com/sakif/highest-aircraft/internal/model"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootFlags struct {
	configPath string
	logLevel   string
}

var rootCmd = &cobra.Command{
	Use:   "bot",
	Short: "Announce the highest and fastest flights on X",
	Long: `bot searches FlightAware AeroAPI for the highest (and the fastest) flight
in the air, remembers the last one it announced, and posts to X whenever the
leader changes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(rootFlags.configPath)
		if err != nil {
			return err
		}
		if rootFlags.logLevel != "" {
			cfg.Log.Level = rootFlags.logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger = newLogger(cfg.Log)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.configPath, "config", os.Getenv("BOT_CONFIG"), "path to YAML config file (env: BOT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "", "override log level: debug|info|warn|error")
}

func newLogger(c config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(c.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// categoryArg parses a category positional argument.
func categoryArg(raw string) (model.Category, error) {
	category, err := model.ParseCategory(raw)
	if err != nil {
		return "", fmt.Errorf("%w (want altitude or groundspeed)", err)
	}
	return category, nil
}
