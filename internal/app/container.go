// Package app provides the dependency injection container for the application.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/runoshun/tracker/internal/domain"
	"github.com/runoshun/tracker/internal/httpapi"
	"github.com/runoshun/tracker/internal/infra/config"
	"github.com/runoshun/tracker/internal/infra/crypto"
	"github.com/runoshun/tracker/internal/infra/filestore"
	"github.com/runoshun/tracker/internal/infra/kvclient"
	"github.com/runoshun/tracker/internal/infra/kvserver"
	"github.com/runoshun/tracker/internal/infra/kvstore"
	"github.com/runoshun/tracker/internal/infra/logging"
	"github.com/runoshun/tracker/internal/infra/pgstore"
	"github.com/runoshun/tracker/internal/manager"
)

// Config holds the application paths.
type Config struct {
	Root       string // Project root directory
	TrackerDir string // Path to <root>/.tracker
}

// newConfig derives the paths for a project root.
func newConfig(root string) Config {
	return Config{
		Root:       root,
		TrackerDir: domain.ProjectDir(root),
	}
}

// Options adjusts how a container is built.
type Options struct {
	Backend string // Overrides the configured store backend when non-empty
	Verbose bool   // Echo log lines to stderr
}

// Container provides dependency injection for the application.
// The manager and its store are created on first use.
type Container struct {
	// Ports (interfaces bound to implementations)
	Store         domain.StateStore
	ConfigLoader  *config.Loader
	ConfigManager *config.Manager

	// Pointer fields
	Logger    *slog.Logger
	AppConfig *domain.Config
	manager   *manager.Manager
	closer    io.Closer

	// Configuration
	Config Config
}

// New creates a container for the project rooted at root.
func New(root string, opts Options) (*Container, error) {
	cfg := newConfig(root)

	configLoader := config.NewLoader(cfg.TrackerDir)
	appConfig, err := configLoader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.Backend != "" {
		appConfig.Store.Backend = opts.Backend
	}

	logger, closer, err := logging.Open(cfg.TrackerDir, logging.ParseLevel(appConfig.Log.Level), opts.Verbose)
	if err != nil {
		return nil, err
	}

	store, err := newStore(cfg, appConfig, logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &Container{
		Store:         store,
		ConfigLoader:  configLoader,
		ConfigManager: config.NewManager(cfg.TrackerDir),
		Logger:        logger,
		AppConfig:     appConfig,
		closer:        closer,
		Config:        cfg,
	}, nil
}

// NewWithDeps creates a new Container with custom dependencies for testing.
// A nil store keeps the state in memory only.
func NewWithDeps(cfg Config, appConfig *domain.Config, store domain.StateStore, logger *slog.Logger) *Container {
	if appConfig == nil {
		appConfig = domain.NewDefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Container{
		Store:         store,
		ConfigManager: config.NewManager(cfg.TrackerDir),
		Logger:        logger,
		AppConfig:     appConfig,
		Config:        cfg,
	}
}

// newStore builds the state store selected by the configuration.
func newStore(cfg Config, appConfig *domain.Config, logger *slog.Logger) (domain.StateStore, error) {
	switch appConfig.Store.Backend {
	case domain.BackendFile:
		path := domain.ResolveStorePath(cfg.TrackerDir, appConfig.Store.Path)
		return filestore.New(path, logger.With("category", "store")), nil
	case domain.BackendKV:
		client := kvclient.New(appConfig.KV.URL, kvclient.WithTimeout(appConfig.KV.TimeoutDuration()))
		opts := []kvstore.Option{kvstore.WithLogger(logger.With("category", "kv"))}
		if appConfig.KV.EncryptKey != "" {
			enc, err := crypto.NewEncryptor(appConfig.KV.EncryptKey)
			if err != nil {
				return nil, fmt.Errorf("kv encrypt_key: %w", err)
			}
			opts = append(opts, kvstore.WithCipher(enc))
		}
		return kvstore.New(client, opts...), nil
	case domain.BackendPostgres:
		store, err := pgstore.Open(appConfig.Postgres.DSN, pgstore.WithLogger(logger.With("category", "postgres")))
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		return store, nil
	case domain.BackendMemory:
		return nil, nil
	default:
		return nil, fmt.Errorf("store backend %q: %w", appConfig.Store.Backend, domain.ErrUnknownBackend)
	}
}

// Manager returns the tracker core, loading persisted state on first use.
func (c *Container) Manager() (*manager.Manager, error) {
	if c.manager != nil {
		return c.manager, nil
	}
	opts := []manager.Option{manager.WithLogger(c.Logger.With("category", "core"))}
	if c.Store != nil {
		opts = append(opts, manager.WithStore(c.Store))
	}
	m, err := manager.Open(opts...)
	if err != nil {
		return nil, err
	}
	c.manager = m
	return m, nil
}

// HTTPServer returns the HTTP front end over the tracker core.
func (c *Container) HTTPServer() (*httpapi.Server, error) {
	m, err := c.Manager()
	if err != nil {
		return nil, err
	}
	return httpapi.New(m, c.Logger, c.AppConfig.Server.AllowedOrigins), nil
}

// KVServer returns a key-value service using the configured secret.
func (c *Container) KVServer() (*kvserver.Server, error) {
	return kvserver.New([]byte(c.AppConfig.KVServer.Secret), c.Logger.With("category", "kv-server"))
}

// Close releases the store connection, if any, and the log file.
func (c *Container) Close() error {
	var errs []error
	if sc, ok := c.Store.(io.Closer); ok {
		errs = append(errs, sc.Close())
	}
	if c.closer != nil {
		errs = append(errs, c.closer.Close())
	}
	return errors.Join(errs...)
}
