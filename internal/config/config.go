// Package config provides configuration management for the Concert View server.
// Configuration is resolved from defaults, an optional TOML file and
// environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultPort     = 8000
	DefaultHost     = "127.0.0.1"
	DefaultLogLevel = "info"
	DefaultDataDir  = ".concertview"

	// Environment variable names
	EnvConfigFile = "CONCERTVIEW_CONFIG"
	EnvPort       = "CONCERTVIEW_PORT"
	EnvHost       = "CONCERTVIEW_HOST"
	EnvLogLevel   = "CONCERTVIEW_LOG_LEVEL"
	EnvDataDir    = "CONCERTVIEW_DATA_DIR"
	EnvUploadDir  = "UPLOAD_DIR"
	EnvOutputDir  = "OUTPUT_DIR"
	EnvCORSOrigin = "CONCERTVIEW_CORS_ORIGINS"

	// Render environment variable names
	EnvRenderWorkers     = "CONCERTVIEW_RENDER_WORKERS"
	EnvQueueSize         = "CONCERTVIEW_QUEUE_SIZE"
	EnvQueuePollInterval = "CONCERTVIEW_QUEUE_POLL_SECONDS"
	EnvRenderTimeout     = "CONCERTVIEW_RENDER_TIMEOUT_SECONDS"
	EnvFFmpegPath        = "CONCERTVIEW_FFMPEG"
	EnvFFprobePath       = "CONCERTVIEW_FFPROBE"
	EnvSyncMaxLag        = "CONCERTVIEW_SYNC_MAX_LAG_SECONDS"
	EnvMaxUploadBytes    = "CONCERTVIEW_MAX_UPLOAD_BYTES"

	// Database filename
	DBFilename = "concertview.db"

	// Lock filename guarding the data directory
	LockFilename = "concertview.lock"

	// Render defaults
	DefaultRenderWorkers     = 2
	DefaultQueueSize         = 64
	DefaultQueuePollInterval = 5    // seconds
	DefaultRenderTimeout     = 7200 // 2 hours
	DefaultFFmpegPath        = "ffmpeg"
	DefaultFFprobePath       = "ffprobe"
	DefaultSyncMaxLag        = 30 // seconds

	DefaultMaxUploadBytes = 20 * 1024 * 1024 * 1024 // 20GB
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	Host() string
	LogLevel() string
	DataDir() string
	DBPath() string
	LockPath() string
	UploadDir() string
	OutputDir() string
	RenderWorkers() int
	QueueSize() int
	QueuePollInterval() time.Duration
	RenderTimeout() time.Duration
	FFmpegPath() string
	FFprobePath() string
	SyncMaxLag() time.Duration
	MaxUploadBytes() int64
	CORSOrigins() []string
}

// fileConfig mirrors the optional TOML file. Zero values mean "not set".
type fileConfig struct {
	Server struct {
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
		LogLevel    string   `toml:"log_level"`
		CORSOrigins []string `toml:"cors_origins"`
	} `toml:"server"`
	Paths struct {
		DataDir   string `toml:"data_dir"`
		UploadDir string `toml:"upload_dir"`
		OutputDir string `toml:"output_dir"`
	} `toml:"paths"`
	Render struct {
		Workers           int    `toml:"workers"`
		QueueSize         int    `toml:"queue_size"`
		QueuePollSeconds  int    `toml:"queue_poll_seconds"`
		TimeoutSeconds    int    `toml:"timeout_seconds"`
		FFmpeg            string `toml:"ffmpeg"`
		FFprobe           string `toml:"ffprobe"`
		SyncMaxLagSeconds int    `toml:"sync_max_lag_seconds"`
		MaxUploadBytes    int64  `toml:"max_upload_bytes"`
	} `toml:"render"`
}

// EnvConfig reads configuration from a TOML file and environment variables
type EnvConfig struct {
	port      int
	host      string
	logLevel  string
	dataDir   string
	uploadDir string
	outputDir string
	corsOrigins []string

	renderWorkers     int
	queueSize         int
	queuePollInterval int
	renderTimeout     int
	ffmpegPath        string
	ffprobePath       string
	syncMaxLag        int
	maxUploadBytes    int64
}

// New creates a new EnvConfig with defaults, then applies the optional TOML
// file and environment variable overrides. A .env file in the working
// directory is loaded first; variables already set in the process win.
func New() (*EnvConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &EnvConfig{
		port:              DefaultPort,
		host:              DefaultHost,
		logLevel:          DefaultLogLevel,
		corsOrigins:       []string{"*"},
		dataDir:           defaultDataDir(),
		renderWorkers:     DefaultRenderWorkers,
		queueSize:         DefaultQueueSize,
		queuePollInterval: DefaultQueuePollInterval,
		renderTimeout:     DefaultRenderTimeout,
		ffmpegPath:        DefaultFFmpegPath,
		ffprobePath:       DefaultFFprobePath,
		syncMaxLag:        DefaultSyncMaxLag,
		maxUploadBytes:    DefaultMaxUploadBytes,
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("invalid port %d: port must be between 1 and 65535", cfg.port)
	}
	if cfg.renderWorkers < 1 {
		return nil, fmt.Errorf("invalid render workers %d: must be at least 1", cfg.renderWorkers)
	}
	if cfg.queueSize < 1 {
		return nil, fmt.Errorf("invalid queue size %d: must be at least 1", cfg.queueSize)
	}

	return cfg, nil
}

func (c *EnvConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.host, fc.Server.Host)
	setInt(&c.port, fc.Server.Port)
	setString(&c.logLevel, fc.Server.LogLevel)
	if len(fc.Server.CORSOrigins) > 0 {
		c.corsOrigins = fc.Server.CORSOrigins
	}
	setString(&c.dataDir, fc.Paths.DataDir)
	setString(&c.uploadDir, fc.Paths.UploadDir)
	setString(&c.outputDir, fc.Paths.OutputDir)
	setInt(&c.renderWorkers, fc.Render.Workers)
	setInt(&c.queueSize, fc.Render.QueueSize)
	setInt(&c.queuePollInterval, fc.Render.QueuePollSeconds)
	setInt(&c.renderTimeout, fc.Render.TimeoutSeconds)
	setString(&c.ffmpegPath, fc.Render.FFmpeg)
	setString(&c.ffprobePath, fc.Render.FFprobe)
	setInt(&c.syncMaxLag, fc.Render.SyncMaxLagSeconds)
	if fc.Render.MaxUploadBytes > 0 {
		c.maxUploadBytes = fc.Render.MaxUploadBytes
	}
	return nil
}

func (c *EnvConfig) loadEnv() error {
	ints := []struct {
		env string
		dst *int
	}{
		{EnvPort, &c.port},
		{EnvRenderWorkers, &c.renderWorkers},
		{EnvQueueSize, &c.queueSize},
		{EnvQueuePollInterval, &c.queuePollInterval},
		{EnvRenderTimeout, &c.renderTimeout},
		{EnvSyncMaxLag, &c.syncMaxLag},
	}
	for _, e := range ints {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", e.env, err)
		}
		*e.dst = n
	}

	if v := os.Getenv(EnvMaxUploadBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxUploadBytes, err)
		}
		c.maxUploadBytes = n
	}

	if v := os.Getenv(EnvCORSOrigin); v != "" {
		c.corsOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.corsOrigins = append(c.corsOrigins, o)
			}
		}
	}

	setString(&c.host, os.Getenv(EnvHost))
	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.dataDir, os.Getenv(EnvDataDir))
	setString(&c.uploadDir, os.Getenv(EnvUploadDir))
	setString(&c.outputDir, os.Getenv(EnvOutputDir))
	setString(&c.ffmpegPath, os.Getenv(EnvFFmpegPath))
	setString(&c.ffprobePath, os.Getenv(EnvFFprobePath))
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// Host returns the HTTP bind host
func (c *EnvConfig) Host() string {
	return c.host
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LockPath returns the lock file guarding the data directory
func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

// UploadDir returns where attached feed media is stored
func (c *EnvConfig) UploadDir() string {
	if c.uploadDir != "" {
		return c.uploadDir
	}
	return filepath.Join(c.dataDir, "uploads")
}

// OutputDir returns where rendered files are written
func (c *EnvConfig) OutputDir() string {
	if c.outputDir != "" {
		return c.outputDir
	}
	return filepath.Join(c.dataDir, "output")
}

func (c *EnvConfig) RenderWorkers() int {
	return c.renderWorkers
}

func (c *EnvConfig) QueueSize() int {
	return c.queueSize
}

func (c *EnvConfig) QueuePollInterval() time.Duration {
	return time.Duration(c.queuePollInterval) * time.Second
}

func (c *EnvConfig) RenderTimeout() time.Duration {
	return time.Duration(c.renderTimeout) * time.Second
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) SyncMaxLag() time.Duration {
	return time.Duration(c.syncMaxLag) * time.Second
}

func (c *EnvConfig) MaxUploadBytes() int64 {
	return c.maxUploadBytes
}

// CORSOrigins returns the browser origins allowed to call the API; "*"
// allows any.
func (c *EnvConfig) CORSOrigins() []string {
	return c.corsOrigins
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
