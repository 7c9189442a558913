package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/runoshun/tracker/internal/usecase"
	"github.com/spf13/cobra"
)

// newImportCommand creates the import command for creating items from a file.
func newImportCommand(s *session) *cobra.Command {
	var opts struct {
		From   string
		DryRun bool
		Edit   bool
	}

	cmd := &cobra.Command{
		Use:   "import (--from <file> | --edit)",
		Short: "Create items from a Markdown file",
		Long: `Create items from a Markdown file of frontmatter blocks.

Items are created in file order, so overlapping schedules are rejected the
same way as with 'tracker add'. Import stops at the first item that cannot
be created; items before it are kept.

Examples:
  # Import items
  tracker import --from items.md

  # Preview items without creating them
  tracker import --from items.md --dry-run

  # Write the items in $EDITOR first
  tracker import --edit

File format:
  ---
  kind: epic
  name: Release 1.0
  ---
  Epic description.

  ---
  kind: subtask
  name: Write changelog
  epic: 1              # Relative: refers to the 1st item in this file
  start: 06-01-2025 09:00
  duration: 45m
  ---

  ---
  kind: subtask
  name: Tag release
  epic: "#12"          # Absolute: refers to existing epic #12
  status: done
  ---`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				content []byte
				err     error
			)
			if opts.Edit {
				content, err = editDraft()
			} else {
				content, err = os.ReadFile(opts.From)
			}
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			c, err := s.container()
			if err != nil {
				return err
			}
			m, err := c.Manager()
			if err != nil {
				return err
			}

			uc := usecase.NewImportItems(m, c.Logger)
			out, execErr := uc.Execute(cmd.Context(), usecase.ImportItemsInput{
				Content: string(content),
				DryRun:  opts.DryRun,
			})
			if out == nil {
				return execErr
			}

			printImported(cmd, out, opts.DryRun)
			if execErr != nil {
				return execErr
			}
			return storageWarning(cmd, out.StorageErr)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "Markdown file to import")
	cmd.Flags().BoolVar(&opts.Edit, "edit", false, "Write the items in $EDITOR")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Preview items without creating")
	cmd.MarkFlagsOneRequired("from", "edit")
	cmd.MarkFlagsMutuallyExclusive("from", "edit")

	return cmd
}

func printImported(cmd *cobra.Command, out *usecase.ImportItemsOutput, dryRun bool) {
	w := cmd.OutOrStdout()
	if dryRun {
		_, _ = fmt.Fprintln(w, "Dry run - items that would be created:")
		_, _ = fmt.Fprintln(w, "")
	}

	for i, imp := range out.Items {
		it := imp.Item
		if dryRun {
			_, _ = fmt.Fprintf(w, "Item %d (%s):\n", imp.ID, it.Kind.Slug())
		} else {
			_, _ = fmt.Fprintf(w, "Created %s #%d:\n", it.Kind.Slug(), imp.ID)
		}
		_, _ = fmt.Fprintf(w, "  Name: %s\n", it.Name)
		if imp.EpicID != 0 {
			if dryRun && imp.Relative {
				_, _ = fmt.Fprintf(w, "  Epic: item %d (in this file)\n", imp.EpicID)
			} else {
				_, _ = fmt.Fprintf(w, "  Epic: #%d\n", imp.EpicID)
			}
		}
		if it.HasStart() {
			_, _ = fmt.Fprintf(w, "  Schedule: %s for %s\n", formatStart(it), it.Duration)
		}
		if it.Description != "" {
			// Show first line of description
			lines := strings.Split(it.Description, "\n")
			preview := lines[0]
			if len(preview) > 50 {
				preview = preview[:50] + "..."
			}
			if len(lines) > 1 {
				preview += " ..."
			}
			_, _ = fmt.Fprintf(w, "  Description: %s\n", preview)
		}
		if i < len(out.Items)-1 {
			_, _ = fmt.Fprintln(w, "")
		}
	}

	if !dryRun {
		_, _ = fmt.Fprintf(w, "\nImported %d items\n", len(out.Items))
	}
}
