// Package cli provides the command-line interface for tracker.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/runoshun/tracker/internal/app"
	"github.com/runoshun/tracker/internal/domain"
	"github.com/runoshun/tracker/internal/manager"
	"github.com/spf13/cobra"
)

// Command group IDs.
const (
	groupSetup  = "setup"
	groupItem   = "item"
	groupServer = "server"
)

// ContainerFactory builds the container for a project root.
type ContainerFactory func(root string, opts app.Options) (*app.Container, error)

// session carries the global flags and the container built from them.
// Fields are ordered to minimize memory padding.
type session struct {
	factory ContainerFactory
	c       *app.Container
	root    string
	opts    app.Options
}

// container builds the container on first use.
func (s *session) container() (*app.Container, error) {
	if s.c != nil {
		return s.c, nil
	}
	root := s.root
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get current directory: %w", err)
		}
		root = cwd
	}
	c, err := s.factory(root, s.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	s.c = c
	return c, nil
}

// manager returns the tracker core of the container.
func (s *session) manager() (*manager.Manager, error) {
	c, err := s.container()
	if err != nil {
		return nil, err
	}
	return c.Manager()
}

func (s *session) close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}

// NewRootCommand creates the root command for tracker.
// It receives the container factory for dependency injection and version for display.
func NewRootCommand(factory ContainerFactory, version string) *cobra.Command {
	s := &session{factory: factory}

	root := &cobra.Command{
		Use:   "tracker",
		Short: "Task, epic and subtask tracker",
		Long: `tracker keeps tasks, epics and subtasks with optional schedules.

Scheduled tasks and subtasks may not overlap. An epic's status and schedule
are derived from its subtasks. State is written through to a CSV file or a
remote key-value service or PostgreSQL after every change.`,
		Version: version,
		// SilenceUsage prevents usage from being printed on errors
		SilenceUsage: true,
		// SilenceErrors prevents Cobra from printing errors (we handle it in main)
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// init must work even when the existing config is broken
			if cmd.Name() == "init" {
				return nil
			}
			c, err := s.container()
			if err != nil {
				return err
			}
			for _, w := range c.AppConfig.Warnings {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
			}
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return s.close()
		},
	}

	root.PersistentFlags().StringVar(&s.root, "dir", "", "Project root directory (default: current directory)")
	root.PersistentFlags().StringVar(&s.opts.Backend, "store", "", "Store backend override (file, kv, memory, postgres)")
	root.PersistentFlags().BoolVar(&s.opts.Verbose, "verbose", false, "Echo log lines to stderr")

	root.AddGroup(
		&cobra.Group{ID: groupSetup, Title: "Setup Commands:"},
		&cobra.Group{ID: groupItem, Title: "Item Management:"},
		&cobra.Group{ID: groupServer, Title: "Servers:"},
	)

	initCmd := newInitCommand(s)
	initCmd.GroupID = groupSetup

	importCmd := newImportCommand(s)
	importCmd.GroupID = groupSetup

	itemCmds := []*cobra.Command{
		newAddCommand(s),
		newEditCommand(s),
		newShowCommand(s),
		newListCommand(s),
		newRmCommand(s),
		newLinkCommand(s),
		newSubtasksCommand(s),
		newHistoryCommand(s),
		newPrioritizedCommand(s),
	}
	for _, cmd := range itemCmds {
		cmd.GroupID = groupItem
	}

	serveCmd := newServeCommand(s)
	serveCmd.GroupID = groupServer

	kvServerCmd := newKVServerCommand(s)
	kvServerCmd.GroupID = groupServer

	root.AddCommand(initCmd, importCmd, serveCmd, kvServerCmd)
	root.AddCommand(itemCmds...)

	return root
}

// storageWarning turns a persistence failure into a warning. The change it
// reports was applied in memory, so the command still succeeds.
func storageWarning(cmd *cobra.Command, err error) error {
	if err == nil || !errors.Is(err, domain.ErrStorageWrite) {
		return err
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: change not persisted: %v\n", err)
	return nil
}
