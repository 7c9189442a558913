package domain

import (
	"path/filepath"
	"time"
)

// Store backends.
const (
	BackendFile     = "file"     // Line-oriented file (default)
	BackendKV       = "kv"       // Remote key-value service
	BackendMemory   = "memory"   // No persistence
	BackendPostgres = "postgres" // PostgreSQL tables
)

// IsKnownBackend reports whether name is a supported store backend.
func IsKnownBackend(name string) bool {
	switch name {
	case BackendFile, BackendKV, BackendMemory, BackendPostgres:
		return true
	default:
		return false
	}
}

// Config represents the application configuration.
// Fields are ordered to minimize memory padding.
type Config struct {
	Warnings []string       `toml:"-"`
	Store    StoreConfig    `toml:"store"`
	KV       KVConfig       `toml:"kv"`
	Postgres PostgresConfig `toml:"postgres"`
	Server   ServerConfig   `toml:"server"`
	KVServer KVServerConfig `toml:"kv_server"`
	Log      LogConfig      `toml:"log"`
}

// StoreConfig holds settings from the [store] section.
type StoreConfig struct {
	Backend string `toml:"backend,omitempty"` // file | kv | memory | postgres
	Path    string `toml:"path,omitempty"`    // File path for the file backend
}

// KVConfig holds settings from the [kv] section.
type KVConfig struct {
	URL        string `toml:"url,omitempty"`         // Base URL of the KV service
	Timeout    string `toml:"timeout,omitempty"`     // Per-request timeout (Go duration)
	EncryptKey string `toml:"encrypt_key,omitempty"` // Hex AES-256 key; values are stored encrypted when set
}

// TimeoutDuration parses Timeout, falling back to DefaultKVTimeout.
func (c KVConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return DefaultKVTimeout
	}
	return d
}

// PostgresConfig holds settings from the [postgres] section.
type PostgresConfig struct {
	DSN string `toml:"dsn,omitempty"` // lib/pq connection string or URL
}

// ServerConfig holds settings from the [server] section.
type ServerConfig struct {
	Addr           string   `toml:"addr,omitempty"`
	AllowedOrigins []string `toml:"allowed_origins,omitempty"`
}

// KVServerConfig holds settings from the [kv_server] section.
type KVServerConfig struct {
	Addr   string `toml:"addr,omitempty"`
	Secret string `toml:"secret,omitempty"` // HMAC secret for session tokens (random if empty)
}

// LogConfig holds settings from the [log] section.
type LogConfig struct {
	Level string `toml:"level,omitempty"` // debug, info, warn, error
}

// Default configuration values.
const (
	DefaultStorePath  = "tasks.csv"
	DefaultKVURL      = "http://localhost:8078"
	DefaultKVTimeout  = 5 * time.Second
	DefaultServerAddr = ":8080"
	DefaultKVAddr     = ":8078"
	DefaultLogLevel   = "info"
)

// Directory and file names.
const (
	TrackerDirName = ".tracker"    // Per-project directory
	AppName        = "tracker"     // Global config directory name
	ConfigFileName = "config.toml" // Config file name
	LogFileName    = "tracker.log" // Log file name
)

// NewDefaultConfig returns a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendFile,
			Path:    DefaultStorePath,
		},
		KV: KVConfig{
			URL:     DefaultKVURL,
			Timeout: DefaultKVTimeout.String(),
		},
		Server: ServerConfig{
			Addr:           DefaultServerAddr,
			AllowedOrigins: []string{"*"},
		},
		KVServer: KVServerConfig{
			Addr: DefaultKVAddr,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// ProjectDir returns the tracker directory for a project root.
func ProjectDir(root string) string {
	return filepath.Join(root, TrackerDirName)
}

// ProjectConfigPath returns the project config path.
func ProjectConfigPath(root string) string {
	return filepath.Join(ProjectDir(root), ConfigFileName)
}

// GlobalDir returns the global tracker directory.
// configHome is typically XDG_CONFIG_HOME or ~/.config (resolved by caller).
func GlobalDir(configHome string) string {
	return filepath.Join(configHome, AppName)
}

// GlobalConfigPath returns the global config path.
func GlobalConfigPath(configHome string) string {
	return filepath.Join(GlobalDir(configHome), ConfigFileName)
}

// LogPath returns the log file path under a tracker directory.
func LogPath(trackerDir string) string {
	return filepath.Join(trackerDir, "logs", LogFileName)
}

// ResolveStorePath resolves a store path relative to the tracker directory.
func ResolveStorePath(trackerDir, path string) string {
	if path == "" {
		path = DefaultStorePath
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(trackerDir, path)
}
