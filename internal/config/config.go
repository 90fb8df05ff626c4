// Package config loads the bot's configuration.
//
// Values are layered, later layers winning:
//
//  1. Defaults (Default)
//  2. An optional YAML file (--config flag or BOT_CONFIG)
//  3. Environment variables, for secrets and per-deployment values
//
// Secrets (API key, client secrets, JWT secret, seal key) are normally left
// out of the file and provided through the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sakif/highest-aircraft/internal/apperror"
	"github.com/sakif/highest-aircraft/internal/model"
	"github.com/sakif/highest-aircraft/internal/scheduler"
)

// Config is the complete bot configuration.
type Config struct {
	AeroAPI        AeroAPIConfig `yaml:"aeroapi"`
	X              XConfig       `yaml:"x"`
	Store          StoreConfig   `yaml:"store"`
	Admin          AdminConfig   `yaml:"admin"`
	Log            LogConfig     `yaml:"log"`
	SessionSealKey string        `yaml:"session_seal_key"`
	Jobs           JobsConfig    `yaml:"jobs"`
}

type AeroAPIConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// XConfig configures posting and the interactive authorization flow.
type XConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	CallbackAddr    string        `yaml:"callback_addr"`
	CallbackURL     string        `yaml:"callback_url"`
	CallbackTimeout time.Duration `yaml:"callback_timeout"`
}

// StoreConfig selects the store. DatabaseURL (Postgres) wins over DBPath
// (SQLite) when both are set.
type StoreConfig struct {
	DBPath      string `yaml:"db_path"`
	DatabaseURL string `yaml:"database_url"`
}

// AdminConfig configures the admin HTTP API. An empty Addr disables it.
type AdminConfig struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type JobsConfig struct {
	Altitude    JobConfig `yaml:"altitude"`
	Groundspeed JobConfig `yaml:"groundspeed"`
}

// JobConfig is one category's search, ranking, schedule and X app.
type JobConfig struct {
	Disabled bool `yaml:"disabled"`

	StartThreshold  int      `yaml:"start_threshold"`
	Step            int      `yaml:"step"`
	Floor           int      `yaml:"floor"`
	MaxAttempts     int      `yaml:"max_attempts"`
	RankingCount    int      `yaml:"ranking_count"`
	ExcludePrefixes []string `yaml:"exclude_prefixes"`
	Diff            string   `yaml:"diff"`

	// Schedule is a cron expression (optional seconds field) evaluated in
	// UTC. When empty, Interval is used as "@every <interval>".
	Schedule   string        `yaml:"schedule"`
	Interval   time.Duration `yaml:"interval"`
	RunTimeout time.Duration `yaml:"run_timeout"`

	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		AeroAPI: AeroAPIConfig{
			BaseURL: "https://aeroapi.flightaware.com/aeroapi",
			Timeout: 30 * time.Second,
		},
		X: XConfig{
			BaseURL:         "https://api.twitter.com/2",
			Timeout:         30 * time.Second,
			CallbackAddr:    "0.0.0.0:8000",
			CallbackURL:     "http://127.0.0.1:8000/callback",
			CallbackTimeout: 10 * time.Minute,
		},
		Store: StoreConfig{
			DBPath: "data/bot.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Jobs: JobsConfig{
			// Flight levels: FL450 down to FL300.
			Altitude: JobConfig{
				StartThreshold:  450,
				Step:            10,
				Floor:           300,
				MaxAttempts:     30,
				RankingCount:    3,
				ExcludePrefixes: []string{"HBAL"},
				Diff:            "ident",
				Schedule:        scheduler.DefaultSchedule,
				RunTimeout:      15 * time.Minute,
			},
			// Knots: 650 down to 400.
			Groundspeed: JobConfig{
				StartThreshold: 650,
				Step:           10,
				Floor:          400,
				MaxAttempts:    30,
				RankingCount:   3,
				Diff:           "ident",
				Schedule:       scheduler.DefaultSchedule,
				RunTimeout:     15 * time.Minute,
			},
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// decode overlays YAML onto cfg. Keys absent from the file keep their
// current value; unknown keys are an error so typos do not pass silently.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.AeroAPI.APIKey, "AERO_API_KEY")
	setString(&c.Jobs.Altitude.ClientID, "X_ALT_CLIENT_ID")
	setString(&c.Jobs.Altitude.ClientSecret, "X_ALT_CLIENT_SECRET")
	setString(&c.Jobs.Groundspeed.ClientID, "X_GSPD_CLIENT_ID")
	setString(&c.Jobs.Groundspeed.ClientSecret, "X_GSPD_CLIENT_SECRET")
	setString(&c.Store.DBPath, "DB_PATH")
	setString(&c.Store.DatabaseURL, "DATABASE_URL")
	setString(&c.Admin.Addr, "ADMIN_ADDR")
	setString(&c.Admin.JWTSecret, "ADMIN_JWT_SECRET")
	setString(&c.SessionSealKey, "SESSION_SEAL_KEY")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.X.CallbackAddr, "CALLBACK_ADDR")
	setString(&c.X.CallbackURL, "CALLBACK_URL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// ScheduleSpec returns the cron expression the job runs on.
func (j JobConfig) ScheduleSpec() string {
	if j.Schedule == "" && j.Interval > 0 {
		return "@every " + j.Interval.String()
	}
	return j.Schedule
}

// Job returns the configuration for category.
func (c *Config) Job(category model.Category) JobConfig {
	if category == model.CategoryGroundspeed {
		return c.Jobs.Groundspeed
	}
	return c.Jobs.Altitude
}

// EnabledCategories lists the categories whose job is not disabled.
func (c *Config) EnabledCategories() []model.Category {
	var out []model.Category
	for _, category := range model.Categories() {
		if !c.Job(category).Disabled {
			out = append(out, category)
		}
	}
	return out
}

// Validate checks the structure of the configuration. Every problem is
// reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		errs = append(errs, apperror.Config("log.level", fmt.Sprintf("unknown log level %q", c.Log.Level)))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, apperror.Config("log.format", fmt.Sprintf("unknown log format %q", c.Log.Format)))
	}
	if c.Store.DBPath == "" && c.Store.DatabaseURL == "" {
		errs = append(errs, apperror.Config("store", "db_path or database_url is required"))
	}
	if c.X.CallbackTimeout <= 0 {
		errs = append(errs, apperror.Config("x.callback_timeout", "callback timeout must be positive"))
	}
	if len(c.EnabledCategories()) == 0 {
		errs = append(errs, apperror.Config("jobs", "every job is disabled"))
	}

	for _, category := range c.EnabledCategories() {
		errs = append(errs, c.Job(category).validate(strings.ToLower(string(category)))...)
	}

	return errors.Join(errs...)
}

// ValidateForRun additionally requires what the scheduler needs at runtime.
func (c *Config) ValidateForRun() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.AeroAPI.APIKey == "" {
		errs = append(errs, apperror.Config("AERO_API_KEY", "flight search API key is required"))
	}
	if c.Admin.Addr != "" && len(c.Admin.JWTSecret) < 16 {
		errs = append(errs, apperror.Config("ADMIN_JWT_SECRET", "admin API needs a JWT secret of at least 16 characters"))
	}
	return errors.Join(errs...)
}

func (j JobConfig) validate(name string) []error {
	var errs []error
	field := func(f string) string { return "jobs." + name + "." + f }

	if j.Step <= 0 {
		errs = append(errs, apperror.Config(field("step"), "step must be positive"))
	}
	if j.Floor > j.StartThreshold {
		errs = append(errs, apperror.Config(field("floor"), "floor must not exceed start_threshold"))
	}
	if j.MaxAttempts <= 0 {
		errs = append(errs, apperror.Config(field("max_attempts"), "max_attempts must be positive"))
	}
	if j.RankingCount <= 0 {
		errs = append(errs, apperror.Config(field("ranking_count"), "ranking_count must be positive"))
	}
	if j.Diff != "ident" && j.Diff != "full" {
		errs = append(errs, apperror.Config(field("diff"), fmt.Sprintf("diff must be ident or full, got %q", j.Diff)))
	}
	switch {
	case j.Schedule == "" && j.Interval <= 0:
		errs = append(errs, apperror.Config(field("schedule"), "schedule or a positive interval is required"))
	case j.Schedule != "":
		if _, err := scheduler.ParseSchedule(j.Schedule); err != nil {
			errs = append(errs, apperror.Config(field("schedule"), err.Error()))
		}
	}
	return errs
}
