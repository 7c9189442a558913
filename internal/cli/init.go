package cli

import (
	"fmt"
	"os"

	"github.com/runoshun/tracker/internal/domain"
	"github.com/runoshun/tracker/internal/infra/config"
	"github.com/spf13/cobra"
)

// newInitCommand creates the init command.
func newInitCommand(s *session) *cobra.Command {
	var opts struct {
		Backend string
		DSN     string
	}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the project config",
		Long: `Create .tracker/config.toml in the project directory with the default
settings.

With --backend postgres, --dsn records the connection string. It can also
be supplied later through TRACKER_POSTGRES_DSN.

Error conditions:
- Config already exists: "config file already exists"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root := s.root
			if root == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("get current directory: %w", err)
				}
				root = cwd
			}

			cfg := domain.NewDefaultConfig()
			if opts.Backend != "" {
				cfg.Store.Backend = opts.Backend
			}
			if !domain.IsKnownBackend(cfg.Store.Backend) {
				return fmt.Errorf("store backend %q: %w", cfg.Store.Backend, domain.ErrUnknownBackend)
			}
			cfg.Postgres.DSN = opts.DSN

			m := config.NewManager(domain.ProjectDir(root))
			if err := m.InitProjectConfig(cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", m.ProjectConfigPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Backend, "backend", "", "Store backend to write (file, kv, memory, postgres)")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "PostgreSQL connection string to write")
	return cmd
}
