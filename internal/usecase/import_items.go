// Package usecase contains application use cases.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/runoshun/tracker/internal/domain"
)

// ItemCreator is the part of the tracker core used by imports.
type ItemCreator interface {
	Create(item *domain.Item) (int, error)
	Peek(id int) (*domain.Item, error)
}

// ImportItemsInput contains the parameters for importing items from a file.
type ImportItemsInput struct {
	Content string // File content (Markdown with frontmatter)
	DryRun  bool   // If true, parse and validate without creating items
}

// ImportedItem represents an item that was created from file input.
// In dry-run mode ID and EpicID are 1-based positions for items of the same
// file, or real IDs for existing epics.
// Fields are ordered to minimize memory padding.
type ImportedItem struct {
	Item     *domain.Item
	EpicID   int
	ID       int
	Relative bool // EpicID refers to an item of the same file
}

// ImportItemsOutput contains the result of importing items.
type ImportItemsOutput struct {
	// StorageErr is set when some items were created but not persisted.
	StorageErr error
	Items      []ImportedItem
}

// ImportItems is the use case for creating items from a file.
type ImportItems struct {
	core   ItemCreator
	logger *slog.Logger
}

// NewImportItems creates a new ImportItems use case.
func NewImportItems(core ItemCreator, logger *slog.Logger) *ImportItems {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ImportItems{core: core, logger: logger}
}

// Execute creates items from the given file content, in file order.
// It stops at the first item that cannot be created; items created before
// it are kept and returned together with the error.
func (uc *ImportItems) Execute(_ context.Context, in ImportItemsInput) (*ImportItemsOutput, error) {
	drafts, err := domain.ParseItemDrafts(in.Content)
	if err != nil {
		return nil, err
	}

	if in.DryRun {
		return uc.dryRun(drafts)
	}
	return uc.createItems(drafts)
}

// dryRun validates and returns the items that would be created.
func (uc *ImportItems) dryRun(drafts []domain.ItemDraft) (*ImportItemsOutput, error) {
	out := &ImportItemsOutput{Items: make([]ImportedItem, 0, len(drafts))}

	// In dry-run, 1-based positions stand in for the IDs to be created.
	positions := make([]int, 0, len(drafts))
	for i, draft := range drafts {
		epicID, relative, err := uc.resolveEpic(draft, drafts[:i], positions)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		positions = append(positions, i+1)
		out.Items = append(out.Items, ImportedItem{
			Item:     draft.ToItem(epicID),
			EpicID:   epicID,
			ID:       i + 1,
			Relative: relative,
		})
	}
	return out, nil
}

// createItems creates items from drafts.
func (uc *ImportItems) createItems(drafts []domain.ItemDraft) (*ImportItemsOutput, error) {
	out := &ImportItemsOutput{Items: make([]ImportedItem, 0, len(drafts))}

	created := make([]int, 0, len(drafts))
	for i, draft := range drafts {
		epicID, relative, err := uc.resolveEpic(draft, drafts[:i], created)
		if err != nil {
			return out, fmt.Errorf("item %d: %w", i+1, err)
		}

		item := draft.ToItem(epicID)
		id, err := uc.core.Create(item)
		switch {
		case err == nil:
		case id != 0 && errors.Is(err, domain.ErrStorageWrite):
			out.StorageErr = err
		default:
			return out, fmt.Errorf("item %d (%s): %w", i+1, draft.Name, err)
		}

		created = append(created, id)
		uc.logger.Info("item imported", "category", "import", "id", id, "kind", item.Kind)

		stored, err := uc.core.Peek(id)
		if err != nil {
			return out, fmt.Errorf("item %d: %w", i+1, err)
		}
		out.Items = append(out.Items, ImportedItem{
			Item:     stored,
			EpicID:   epicID,
			ID:       id,
			Relative: relative,
		})
	}
	return out, nil
}

// resolveEpic resolves a draft's epic reference against the drafts before it
// and the IDs they received. Absolute references must name an existing epic.
func (uc *ImportItems) resolveEpic(draft domain.ItemDraft, earlier []domain.ItemDraft, ids []int) (int, bool, error) {
	if draft.EpicRef == "" {
		return 0, false, nil
	}

	relative := draft.EpicRef[0] != '#'
	epicID, err := draft.ResolveEpicRef(ids)
	if err != nil {
		return 0, false, err
	}

	if relative {
		// ResolveEpicRef has checked the position is in range.
		idx, _ := strconv.Atoi(draft.EpicRef)
		idx--
		if earlier[idx].Kind != domain.KindEpic {
			return 0, false, fmt.Errorf("epic reference %q is a %s: %w", draft.EpicRef, earlier[idx].Kind.Slug(), domain.ErrInvalidArgument)
		}
		return epicID, true, nil
	}

	epic, err := uc.core.Peek(epicID)
	if err != nil {
		return 0, false, fmt.Errorf("epic #%d: %w", epicID, err)
	}
	if epic.Kind != domain.KindEpic {
		return 0, false, fmt.Errorf("item #%d is a %s: %w", epicID, epic.Kind.Slug(), domain.ErrNoSuchItem)
	}
	return epicID, false, nil
}
