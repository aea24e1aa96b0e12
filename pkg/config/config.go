// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < --config < .env < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/logflow/pmdash/pkg/engine"
	lferrors "github.com/logflow/pmdash/pkg/errors"
	"github.com/logflow/pmdash/pkg/eventlog"
	"github.com/logflow/pmdash/pkg/render"
	"github.com/logflow/pmdash/pkg/storage"
	"github.com/logflow/pmdash/pkg/telemetry"
)

// Config holds all pmdash configuration.
type Config struct {
	Version int `yaml:"version"`

	Loader    LoaderConfig     `yaml:"loader"`
	Engine    EngineConfig     `yaml:"engine"`
	Render    render.Options   `yaml:"render"`
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Storage   StorageConfig    `yaml:"storage"`
}

// LoaderConfig controls how event logs are read.
type LoaderConfig struct {
	Columns         eventlog.Columns `yaml:"columns"`
	Format          string           `yaml:"format"`    // csv | xlsx | "" (sniff)
	Delimiter       string           `yaml:"delimiter"` // "," ";" "tab" "|" or "" (detect)
	TimestampLayout string           `yaml:"timestamp_layout"`
	DateOrder       string           `yaml:"date_order"` // auto | dmy | mdy
	Sheet           string           `yaml:"sheet"`
}

// EngineConfig selects the aggregation engine.
type EngineConfig struct {
	Default string `yaml:"default"` // native | duckdb
}

// ServerConfig for the HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	MaxUploadSize   string        `yaml:"max_upload_size"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	// WriteTimeout of zero leaves event streams open.
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig for pkg/logger.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// StorageConfig for remote sources and sinks.
type StorageConfig struct {
	S3 storage.S3Config `yaml:"s3"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Loader: LoaderConfig{
			Columns:   eventlog.DefaultColumns(),
			DateOrder: "auto",
		},
		Engine: EngineConfig{
			Default: engine.NameNative,
		},
		Render: render.DefaultOptions(),
		Server: ServerConfig{
			Port:            8080,
			Host:            "localhost",
			MaxUploadSize:   "500MB",
			CORSOrigins:     []string{"*"},
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // Disabled for /api/events
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Telemetry: telemetry.DefaultConfig(),
		Storage: StorageConfig{
			S3: storage.DefaultS3Config(),
		},
	}
}

// Options converts the loader section to eventlog options.
func (l LoaderConfig) Options() (eventlog.Options, error) {
	opts := eventlog.DefaultOptions()
	opts.Columns = l.Columns
	opts.TimestampLayout = l.TimestampLayout
	opts.Sheet = l.Sheet
	if l.DateOrder != "" {
		opts.DateOrder = l.DateOrder
	}

	if l.Format != "" {
		opts.Format = eventlog.ParseFormat(l.Format)
		if opts.Format == eventlog.FormatUnknown {
			return opts, lferrors.New(lferrors.CodeInvalidFormat,
				fmt.Sprintf("unknown input format %q", l.Format))
		}
	}

	d, err := ParseDelimiter(l.Delimiter)
	if err != nil {
		return opts, err
	}
	opts.Delimiter = d

	switch strings.ToLower(opts.DateOrder) {
	case "auto", "dmy", "mdy":
	default:
		return opts, lferrors.New(lferrors.CodeInvalidFormat,
			fmt.Sprintf("unknown date order %q", l.DateOrder))
	}
	return opts, nil
}

// ParseDelimiter accepts a single character or one of the names tab,
// comma, semicolon, pipe. Empty means auto-detect.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, lferrors.New(lferrors.CodeInvalidFormat,
			fmt.Sprintf("delimiter must be a single character, got %q", s))
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' {
		return 0, lferrors.New(lferrors.CodeInvalidFormat,
			fmt.Sprintf("invalid delimiter %q", s))
	}
	return r, nil
}

// ParseSize parses sizes like "500MB", "1.5GB" or "1024" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	units := []struct {
		suffix string
		mult   float64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	mult := 1.0
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			mult = u.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, lferrors.New(lferrors.CodeInvalidFormat, fmt.Sprintf("invalid size %q", s))
	}
	return int64(v * mult), nil
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded

	// explicit is the --config file; required to exist when set.
	explicit string
	// dotenv is the .env file; optional.
	dotenv string
	// search overrides the system/user/project paths in tests.
	search []string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
		dotenv: ".env",
	}
}

// WithFile sets an explicit config file loaded after the search paths.
func (m *Manager) WithFile(path string) *Manager {
	m.explicit = path
	return m
}

// WithDotenv sets the .env path. Empty disables .env loading.
func (m *Manager) WithDotenv(path string) *Manager {
	m.dotenv = path
	return m
}

// WithSearchPaths replaces the default search paths.
func (m *Manager) WithSearchPaths(paths ...string) *Manager {
	m.search = paths
	return m
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with defaults
	m.config = Default()
	m.paths = nil

	// Load from paths in order (later overrides earlier)
	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but fail on broken ones
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	if m.explicit != "" {
		if err := m.loadFile(m.explicit); err != nil {
			return err
		}
		m.paths = append(m.paths, m.explicit)
	}

	// .env never overrides variables already set in the environment
	if m.dotenv != "" {
		if err := godotenv.Load(m.dotenv); err != nil && !os.IsNotExist(err) {
			return lferrors.Wrap(err, lferrors.CodeInvalidFormat, "failed to load .env").
				WithContext("path", m.dotenv)
		}
	}

	// Override with environment variables
	m.loadEnv()

	return m.validate()
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	if m.search != nil {
		return m.search
	}

	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/pmdash/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".pmdash", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".pmdash.yaml"))
	}

	return paths
}

// loadFile decodes a config file over the current values. Keys absent
// from the file keep their existing value.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, m.config); err != nil {
		return lferrors.Wrap(err, lferrors.CodeInvalidFormat, "invalid config file").
			WithContext("path", path)
	}
	return nil
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	// PMDASH_ENGINE
	if v := os.Getenv("PMDASH_ENGINE"); v != "" {
		m.config.Engine.Default = v
	}

	// PMDASH_HOST
	if v := os.Getenv("PMDASH_HOST"); v != "" {
		m.config.Server.Host = v
	}

	// PMDASH_PORT
	if v := os.Getenv("PMDASH_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			m.config.Server.Port = port
		}
	}

	// PMDASH_MAX_UPLOAD_SIZE
	if v := os.Getenv("PMDASH_MAX_UPLOAD_SIZE"); v != "" {
		m.config.Server.MaxUploadSize = v
	}

	// PMDASH_LOG_LEVEL
	if v := os.Getenv("PMDASH_LOG_LEVEL"); v != "" {
		m.config.Logging.Level = v
	}

	// PMDASH_OTLP_ENDPOINT turns tracing on
	if v := os.Getenv("PMDASH_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Endpoint = v
		m.config.Telemetry.Enabled = true
	}

	// PMDASH_S3_ENDPOINT, PMDASH_S3_REGION
	if v := os.Getenv("PMDASH_S3_ENDPOINT"); v != "" {
		m.config.Storage.S3.Endpoint = v
		m.config.Storage.S3.UsePathStyle = true
	}
	if v := os.Getenv("PMDASH_S3_REGION"); v != "" {
		m.config.Storage.S3.Region = v
	}
}

func (m *Manager) validate() error {
	c := m.config
	known := false
	for _, n := range engine.Names() {
		if c.Engine.Default == n {
			known = true
		}
	}
	if !known {
		return lferrors.New(lferrors.CodeInvalidFormat,
			fmt.Sprintf("unknown engine %q (want one of %s)", c.Engine.Default, strings.Join(engine.Names(), ", ")))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return lferrors.New(lferrors.CodeInvalidFormat, fmt.Sprintf("invalid port %d", c.Server.Port))
	}
	if _, err := ParseSize(c.Server.MaxUploadSize); err != nil {
		return err
	}
	if _, err := c.Loader.Options(); err != nil {
		return err
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to path, or the user config file when
// path is empty.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		path = filepath.Join(home, ".pmdash", "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
