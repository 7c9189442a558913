package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/runoshun/tracker/internal/domain"
	"github.com/runoshun/tracker/internal/infra/filestore"
	"github.com/runoshun/tracker/internal/infra/kvstore"
	"github.com/runoshun/tracker/internal/infra/pgstore"
	"github.com/runoshun/tracker/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	cfg := newConfig(t.TempDir())
	logger := slog.New(slog.DiscardHandler)

	appConfig := domain.NewDefaultConfig()
	store, err := newStore(cfg, appConfig, logger)
	require.NoError(t, err)
	fs, ok := store.(*filestore.Store)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(cfg.TrackerDir, domain.DefaultStorePath), fs.Path())

	appConfig.Store.Backend = domain.BackendKV
	store, err = newStore(cfg, appConfig, logger)
	require.NoError(t, err)
	assert.IsType(t, &kvstore.Store{}, store)

	appConfig.KV.EncryptKey = "short"
	_, err = newStore(cfg, appConfig, logger)
	assert.ErrorContains(t, err, "encrypt_key")

	appConfig.KV.EncryptKey = strings.Repeat("0f", 32)
	_, err = newStore(cfg, appConfig, logger)
	assert.NoError(t, err)

	appConfig.Store.Backend = domain.BackendPostgres
	_, err = newStore(cfg, appConfig, logger)
	assert.ErrorIs(t, err, pgstore.ErrEmptyDSN)

	appConfig.Store.Backend = domain.BackendMemory
	store, err = newStore(cfg, appConfig, logger)
	require.NoError(t, err)
	assert.Nil(t, store)

	appConfig.Store.Backend = "s3"
	_, err = newStore(cfg, appConfig, logger)
	assert.ErrorIs(t, err, domain.ErrUnknownBackend)
}

func TestNew_FileBackendPersists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := t.TempDir()

	c, err := New(root, Options{})
	require.NoError(t, err)
	m, err := c.Manager()
	require.NoError(t, err)
	same, err := c.Manager()
	require.NoError(t, err)
	assert.Same(t, m, same)

	id, err := m.Create(domain.NewTask("persisted", ""))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = os.Stat(domain.LogPath(c.Config.TrackerDir))
	assert.NoError(t, err)

	c2, err := New(root, Options{})
	require.NoError(t, err)
	defer func() { _ = c2.Close() }()
	m2, err := c2.Manager()
	require.NoError(t, err)
	got, err := m2.Peek(id)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Name)
}

func TestNew_BackendOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := t.TempDir()

	c, err := New(root, Options{Backend: domain.BackendMemory})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	assert.Nil(t, c.Store)

	_, err = New(root, Options{Backend: "tape"})
	assert.ErrorIs(t, err, domain.ErrUnknownBackend)
}

func TestNewWithDeps(t *testing.T) {
	c := NewWithDeps(newConfig(t.TempDir()), nil, nil, nil)
	assert.NotNil(t, c.AppConfig)
	assert.NotNil(t, c.Logger)
	assert.NoError(t, c.Close())

	srv, err := c.HTTPServer()
	require.NoError(t, err)
	assert.NotNil(t, srv.Handler())

	kv, err := c.KVServer()
	require.NoError(t, err)
	assert.NotNil(t, kv)
}

type closingStore struct {
	*testutil.MockStore
	closed int
}

func (s *closingStore) Close() error {
	s.closed++
	return nil
}

func TestClose_ClosesStore(t *testing.T) {
	store := &closingStore{MockStore: testutil.NewMockStore(nil)}
	c := NewWithDeps(newConfig(t.TempDir()), nil, store, nil)
	require.NoError(t, c.Close())
	assert.Equal(t, 1, store.closed)
}
