package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/runoshun/tracker/internal/domain"
)

// configHeader is prepended to generated config files.
const configHeader = `# tracker configuration
# Precedence: defaults <- global config <- this file <- TRACKER_* environment variables.

`

// Manager manages configuration files.
type Manager struct {
	projectDir string // Path to the .tracker directory
}

// NewManager creates a new Manager.
func NewManager(projectDir string) *Manager {
	return &Manager{projectDir: projectDir}
}

// ProjectConfigPath returns the project config path.
func (m *Manager) ProjectConfigPath() string {
	return filepath.Join(m.projectDir, domain.ConfigFileName)
}

// InitProjectConfig writes cfg as the project config file.
// It fails with domain.ErrConfigExists if the file is already present.
func (m *Manager) InitProjectConfig(cfg *domain.Config) error {
	path := m.ProjectConfigPath()
	if _, err := os.Stat(path); err == nil {
		return domain.ErrConfigExists
	}

	if err := os.MkdirAll(m.projectDir, 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	content, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, append([]byte(configHeader), content...), 0o600)
}
