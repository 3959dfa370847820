// Package daemon wires pfp's services together and owns configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/tutu-network/pfp/internal/domain"
	"github.com/tutu-network/pfp/internal/infra/report"
)

// Config holds all pfp configuration.
type Config struct {
	Workers WorkersConfig `toml:"workers"`
	Walk    WalkConfig    `toml:"walk"`
	Report  ReportConfig  `toml:"report"`
	Store   StoreConfig   `toml:"store"`
	Events  EventsConfig  `toml:"events"`
	API     APIConfig     `toml:"api"`
	Logging LoggingConfig `toml:"logging"`
}

// WorkersConfig sizes the worker pool.
type WorkersConfig struct {
	Count int `toml:"count"`
}

// WalkConfig controls file enumeration.
type WalkConfig struct {
	Extensions   []string `toml:"extensions"`
	SkipHidden   bool     `toml:"skip_hidden"`
	MaxFileBytes int64    `toml:"max_file_bytes"`
}

// ReportConfig controls where results are written.
type ReportConfig struct {
	Path   string `toml:"path"`
	Format string `toml:"format"`
}

// StoreConfig selects the run history backend: sqlite, postgres or none.
type StoreConfig struct {
	Driver string `toml:"driver"`
	Dir    string `toml:"dir"`
	DSN    string `toml:"dsn"`
}

// EventsConfig enables NATS result events when URL is set.
type EventsConfig struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// APIConfig controls the HTTP status server.
type APIConfig struct {
	Listen string `toml:"listen"`
}

// LoggingConfig controls logging and OpenTelemetry export.
type LoggingConfig struct {
	Level    string `toml:"level"`
	Format   string `toml:"format"`
	OTel     bool   `toml:"otel"`
	OTelFile string `toml:"otel_file"`
}

// DefaultWorkers is used when no valid worker count is given.
const DefaultWorkers = 4

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := pfpHome()
	return Config{
		Workers: WorkersConfig{Count: DefaultWorkers},
		Report: ReportConfig{
			Path:   report.DefaultPath,
			Format: string(report.FormatText),
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Dir:    homeDir,
		},
		API: APIConfig{
			Listen: "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			OTelFile: filepath.Join(homeDir, "telemetry.jsonl"),
		},
	}
}

// LoadEnv reads a .env file from the working directory if one exists.
func LoadEnv() {
	_ = godotenv.Load()
}

// LoadConfig reads config from path, or ~/.pfp/config.toml when path is
// empty, falling back to defaults. Environment overrides apply last.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides file values with PFP_* environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("PFP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PFP_WORKERS: %w", err)
		}
		cfg.Workers.Count = n
	}
	if v := os.Getenv("PFP_REPORT_PATH"); v != "" {
		cfg.Report.Path = v
	}
	if v := os.Getenv("PFP_REPORT_FORMAT"); v != "" {
		cfg.Report.Format = v
	}
	if v := os.Getenv("PFP_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("PFP_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("PFP_NATS_URL"); v != "" {
		cfg.Events.NATSURL = v
	}
	if v := os.Getenv("PFP_API_LISTEN"); v != "" {
		cfg.API.Listen = v
	}
	if v := os.Getenv("PFP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PFP_OTEL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PFP_OTEL: %w", err)
		}
		cfg.Logging.OTel = b
	}
	return nil
}

// Validate rejects configurations the runtime cannot honor.
func (c Config) Validate() error {
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be at least 1, got %d", c.Workers.Count)
	}
	if _, err := report.ParseFormat(c.Report.Format); err != nil {
		return fmt.Errorf("report.format: %w", err)
	}
	switch strings.ToLower(c.Store.Driver) {
	case "", "none", "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver %q: %w", c.Store.Driver, domain.ErrUnknownStore)
	}
	return nil
}

// SaveConfig writes the config to ~/.pfp/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ConfigPath is the default config file location.
func ConfigPath() string {
	return filepath.Join(pfpHome(), "config.toml")
}

// pfpHome returns the pfp data directory.
func pfpHome() string {
	if env := os.Getenv("PFP_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pfp")
}

// Home is exported for use by other packages.
func Home() string {
	return pfpHome()
}

// ParseWorkers converts a worker count argument, falling back to
// DefaultWorkers when it is not a positive integer.
func ParseWorkers(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return DefaultWorkers, false
	}
	return n, true
}
