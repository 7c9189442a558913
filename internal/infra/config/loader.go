// Package config provides configuration loading functionality.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/runoshun/tracker/internal/domain"
)

// Environment variables that override file configuration.
const (
	EnvStore     = "TRACKER_STORE"
	EnvStorePath = "TRACKER_STORE_PATH"
	EnvKVURL     = "TRACKER_KV_URL"
	EnvPostgres  = "TRACKER_POSTGRES_DSN"
	EnvAddr      = "TRACKER_ADDR"
	EnvLogLevel  = "TRACKER_LOG_LEVEL"
)

// Loader loads configuration from TOML files and the environment.
type Loader struct {
	getenv        func(string) string
	projectDir    string // Path to the .tracker directory
	globalConfDir string // Path to global config directory (e.g., ~/.config/tracker)
}

// NewLoader creates a new Loader.
func NewLoader(projectDir string) *Loader {
	return &Loader{
		getenv:        os.Getenv,
		projectDir:    projectDir,
		globalConfDir: defaultGlobalConfigDir(),
	}
}

// NewLoaderWithGlobalDir creates a new Loader with a custom global config
// directory and environment lookup. This is useful for testing.
func NewLoaderWithGlobalDir(projectDir, globalConfDir string, getenv func(string) string) *Loader {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	return &Loader{
		getenv:        getenv,
		projectDir:    projectDir,
		globalConfDir: globalConfDir,
	}
}

// defaultGlobalConfigDir returns the default global config directory.
func defaultGlobalConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return domain.GlobalDir(configHome)
}

// Load returns the merged configuration.
// Precedence: default <- global <- project <- environment.
func (l *Loader) Load() (*domain.Config, error) {
	base := domain.NewDefaultConfig()

	global, err := l.LoadGlobal()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if global != nil {
		base = mergeConfigs(base, global)
	}

	project, err := l.LoadProject()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if project != nil {
		base = mergeConfigs(base, project)
	}

	l.applyEnv(base)

	if err := validate(base); err != nil {
		return nil, err
	}
	return base, nil
}

// LoadGlobal returns only the global configuration.
func (l *Loader) LoadGlobal() (*domain.Config, error) {
	if l.globalConfDir == "" {
		return nil, os.ErrNotExist
	}
	return loadFile(filepath.Join(l.globalConfDir, domain.ConfigFileName))
}

// LoadProject returns only the project configuration.
func (l *Loader) LoadProject() (*domain.Config, error) {
	return loadFile(filepath.Join(l.projectDir, domain.ConfigFileName))
}

// loadFile loads a configuration from a file. Unknown keys become warnings.
func loadFile(path string) (*domain.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg domain.Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	err = dec.Decode(&cfg)

	var strict *toml.StrictMissingError
	switch {
	case err == nil:
		return &cfg, nil
	case errors.As(err, &strict):
		cfg = domain.Config{}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for _, e := range strict.Errors {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown key in %s: %s", filepath.Base(path), strings.Join(e.Key(), ".")))
		}
		sort.Strings(cfg.Warnings)
		return &cfg, nil
	default:
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
}

// applyEnv overrides cfg from environment variables.
func (l *Loader) applyEnv(cfg *domain.Config) {
	if v := l.getenv(EnvStore); v != "" {
		cfg.Store.Backend = v
	}
	if v := l.getenv(EnvStorePath); v != "" {
		cfg.Store.Path = v
	}
	if v := l.getenv(EnvKVURL); v != "" {
		cfg.KV.URL = v
	}
	if v := l.getenv(EnvPostgres); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := l.getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := l.getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
}

func validate(cfg *domain.Config) error {
	if !domain.IsKnownBackend(cfg.Store.Backend) {
		return fmt.Errorf("store backend %q: %w", cfg.Store.Backend, domain.ErrUnknownBackend)
	}
	return nil
}

// mergeConfigs merges two configs, with override taking precedence.
func mergeConfigs(base, override *domain.Config) *domain.Config {
	result := *base
	result.Warnings = append(append([]string{}, base.Warnings...), override.Warnings...)

	if override.Store.Backend != "" {
		result.Store.Backend = override.Store.Backend
	}
	if override.Store.Path != "" {
		result.Store.Path = override.Store.Path
	}
	if override.KV.URL != "" {
		result.KV.URL = override.KV.URL
	}
	if override.KV.Timeout != "" {
		result.KV.Timeout = override.KV.Timeout
	}
	if override.KV.EncryptKey != "" {
		result.KV.EncryptKey = override.KV.EncryptKey
	}
	if override.Postgres.DSN != "" {
		result.Postgres.DSN = override.Postgres.DSN
	}
	if override.Server.Addr != "" {
		result.Server.Addr = override.Server.Addr
	}
	if len(override.Server.AllowedOrigins) > 0 {
		result.Server.AllowedOrigins = append([]string{}, override.Server.AllowedOrigins...)
	}
	if override.KVServer.Addr != "" {
		result.KVServer.Addr = override.KVServer.Addr
	}
	if override.KVServer.Secret != "" {
		result.KVServer.Secret = override.KVServer.Secret
	}
	if override.Log.Level != "" {
		result.Log.Level = override.Log.Level
	}

	return &result
}
