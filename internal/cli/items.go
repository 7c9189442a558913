package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/runoshun/tracker/internal/domain"
	"github.com/spf13/cobra"
)

// itemFlags holds the flags shared by add and edit.
type itemFlags struct {
	Description string
	Status      string
	Start       string
	Duration    string
	Name        string
	Epic        int
}

func (f *itemFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Description, "desc", "", "Description")
	cmd.Flags().StringVar(&f.Status, "status", "", "Status (new, in_progress, done)")
	cmd.Flags().StringVar(&f.Start, "start", "", `Start time "dd-MM-yyyy HH:mm" (UTC)`)
	cmd.Flags().StringVar(&f.Duration, "duration", "", "Duration (e.g. 90m, 1h30m, PT1H30M)")
	cmd.Flags().IntVar(&f.Epic, "epic", 0, "Epic ID (subtasks only)")
}

// apply copies the flags that were set onto it.
func (f *itemFlags) apply(cmd *cobra.Command, it *domain.Item) error {
	flags := cmd.Flags()
	if flags.Changed("name") {
		it.Name = f.Name
	}
	if flags.Changed("desc") {
		it.Description = f.Description
	}
	if flags.Changed("status") {
		st, err := domain.ParseStatus(f.Status)
		if err != nil {
			return fmt.Errorf("--status %q: %w", f.Status, err)
		}
		it.Status = st
	}
	if flags.Changed("start") {
		start, err := domain.ParseStart(f.Start)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		it.Start = start
	}
	if flags.Changed("duration") {
		d, err := parseDuration(f.Duration)
		if err != nil {
			return fmt.Errorf("--duration: %w", err)
		}
		it.Duration = d
	}
	if flags.Changed("epic") {
		if it.Kind != domain.KindSubtask {
			return fmt.Errorf("--epic applies to subtasks only: %w", domain.ErrInvalidArgument)
		}
		it.EpicID = f.Epic
	}
	return nil
}

// newAddCommand creates the add command for creating items.
func newAddCommand(s *session) *cobra.Command {
	var opts itemFlags

	cmd := &cobra.Command{
		Use:   "add <task|epic|subtask> <name>",
		Short: "Create an item",
		Long: `Create a task, epic or subtask.

Scheduled tasks and subtasks must not overlap any other scheduled task or
subtask. An epic takes its status and schedule from its subtasks, so
--status, --start and --duration are rejected for epics.

Examples:
  # Create an unscheduled task
  tracker add task "Write report"

  # Create a scheduled task
  tracker add task "Standup" --start "06-01-2025 09:00" --duration 15m

  # Create an epic and a subtask in it
  tracker add epic "Release 1.0"
  tracker add subtask "Write changelog" --epic 2 --status in_progress`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return fmt.Errorf("%q: %w", args[0], err)
			}
			if kind == domain.KindEpic && (cmd.Flags().Changed("status") || cmd.Flags().Changed("start") || cmd.Flags().Changed("duration")) {
				return fmt.Errorf("epic status and schedule are derived from its subtasks: %w", domain.ErrInvalidArgument)
			}

			it := &domain.Item{Kind: kind, Name: args[1]}
			if err := opts.apply(cmd, it); err != nil {
				return err
			}

			m, err := s.manager()
			if err != nil {
				return err
			}
			id, err := m.Create(it)
			if id == 0 {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s #%d\n", kind.Slug(), id)
			return storageWarning(cmd, err)
		},
	}

	opts.register(cmd)
	return cmd
}

// newEditCommand creates the edit command for updating items.
func newEditCommand(s *session) *cobra.Command {
	var opts itemFlags

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update an item",
		Long: `Update the fields of an item. Only the flags given are changed.

Passing an empty --start removes the schedule. For epics only --name and
--desc have an effect.

Examples:
  # Rename item #1
  tracker edit 1 --name "Write final report"

  # Mark a subtask done
  tracker edit 3 --status done

  # Move a subtask to another epic
  tracker edit 3 --epic 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return fmt.Errorf("invalid item ID: %w", err)
			}

			m, err := s.manager()
			if err != nil {
				return err
			}
			it, err := m.Peek(id)
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, it); err != nil {
				return err
			}
			if err := storageWarning(cmd, m.Update(id, it)); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated %s #%d\n", it.Kind.Slug(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Name")
	opts.register(cmd)
	return cmd
}

// newShowCommand creates the show command for displaying an item.
func newShowCommand(s *session) *cobra.Command {
	var opts struct {
		JSON bool
	}

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an item",
		Long: `Show the details of an item and record it in the history.

Examples:
  # Show item #1
  tracker show 1

  # Show item #1 as JSON
  tracker show 1 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return fmt.Errorf("invalid item ID: %w", err)
			}

			m, err := s.manager()
			if err != nil {
				return err
			}
			it, err := m.Get(id)
			if it == nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.JSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(it); err != nil {
					return err
				}
			} else {
				printItem(w, it)
			}
			return storageWarning(cmd, err)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output as JSON")
	return cmd
}

// newListCommand creates the list command.
func newListCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [task|epic|subtask]",
		Short: "List items",
		Long: `List items of one kind, or of every kind, ordered by ID.

Examples:
  # List everything
  tracker list

  # List epics only
  tracker list epic`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := domain.AllKinds()
			if len(args) == 1 {
				kind, err := domain.ParseKind(args[0])
				if err != nil {
					return fmt.Errorf("%q: %w", args[0], err)
				}
				kinds = []domain.Kind{kind}
			}

			m, err := s.manager()
			if err != nil {
				return err
			}
			var items []*domain.Item
			for _, kind := range kinds {
				list, err := m.List(kind)
				if err != nil {
					return err
				}
				items = append(items, list...)
			}
			slices.SortFunc(items, func(a, b *domain.Item) int { return a.ID - b.ID })
			return printItems(cmd.OutOrStdout(), items)
		},
	}
	return cmd
}

// newRmCommand creates the rm command.
func newRmCommand(s *session) *cobra.Command {
	var opts struct {
		All string
	}

	cmd := &cobra.Command{
		Use:   "rm <id> | rm --all <task|epic|subtask>",
		Short: "Delete items",
		Long: `Delete an item, or every item of a kind.

Deleting an epic deletes its subtasks. Deleting a subtask updates its epic.

Examples:
  # Delete item #1
  tracker rm 1

  # Delete every subtask
  tracker rm --all subtask`,
		Args: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("all") {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := s.manager()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("all") {
				kind, err := domain.ParseKind(opts.All)
				if err != nil {
					return fmt.Errorf("%q: %w", opts.All, err)
				}
				if err := storageWarning(cmd, m.DeleteAll(kind)); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted all %ss\n", kind.Slug())
				return nil
			}

			id, err := parseItemID(args[0])
			if err != nil {
				return fmt.Errorf("invalid item ID: %w", err)
			}
			if err := storageWarning(cmd, m.Delete(id)); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted #%d\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.All, "all", "", "Delete every item of this kind")
	return cmd
}

// newLinkCommand creates the link command.
func newLinkCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "link <subtask-id> <epic-id>",
		Short: "Attach a subtask to an epic",
		Long: `Attach a subtask to an epic. A subtask owned by another epic is moved.

Examples:
  tracker link 3 2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			subtaskID, err := parseItemID(args[0])
			if err != nil {
				return fmt.Errorf("invalid subtask ID: %w", err)
			}
			epicID, err := parseItemID(args[1])
			if err != nil {
				return fmt.Errorf("invalid epic ID: %w", err)
			}

			m, err := s.manager()
			if err != nil {
				return err
			}
			if err := storageWarning(cmd, m.Link(subtaskID, epicID)); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Linked subtask #%d to epic #%d\n", subtaskID, epicID)
			return nil
		},
	}
}

// newSubtasksCommand creates the subtasks command.
func newSubtasksCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "subtasks <epic-id>",
		Short: "List the subtasks of an epic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			epicID, err := parseItemID(args[0])
			if err != nil {
				return fmt.Errorf("invalid epic ID: %w", err)
			}
			m, err := s.manager()
			if err != nil {
				return err
			}
			items, err := m.EpicSubtasks(epicID)
			if err != nil {
				return err
			}
			return printItems(cmd.OutOrStdout(), items)
		},
	}
}

// newHistoryCommand creates the history command.
func newHistoryCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List recently viewed items, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := s.manager()
			if err != nil {
				return err
			}
			return printItems(cmd.OutOrStdout(), m.History())
		},
	}
}

// newPrioritizedCommand creates the prioritized command.
func newPrioritizedCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "prioritized",
		Short: "List tasks and subtasks by start time",
		Long: `List tasks and subtasks ordered by start time. Unscheduled items come
last, in creation order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := s.manager()
			if err != nil {
				return err
			}
			return printItems(cmd.OutOrStdout(), m.Prioritized())
		},
	}
}

// parseItemID parses an item ID string to int.
func parseItemID(s string) (int, error) {
	// Remove leading # if present
	id, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("item ID must be positive")
	}
	return id, nil
}

// parseDuration accepts Go durations ("90m") and ISO-8601 durations ("PT1H30M").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(strings.ToUpper(s), "P") {
		return domain.ParseISODuration(s)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration: %w", domain.ErrInvalidArgument)
	}
	return d, nil
}
