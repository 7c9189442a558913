package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ItemDraft represents an item to be created from file input.
// EpicRef can be either a relative index (1-based, within the same file)
// or an absolute item ID prefixed with "#".
// Fields are ordered to minimize memory padding.
type ItemDraft struct {
	Start       time.Time
	Name        string
	Description string
	EpicRef     string
	Kind        Kind
	Status      Status
	Duration    time.Duration
}

// draftFrontmatter is the YAML shape of a draft header.
type draftFrontmatter struct {
	Epic     any    `yaml:"epic"`
	Kind     string `yaml:"kind"`
	Name     string `yaml:"name"`
	Status   string `yaml:"status"`
	Start    string `yaml:"start"`
	Duration string `yaml:"duration"`
}

// ParseItemDrafts parses a markdown file containing one or more item definitions.
// Items are separated by frontmatter blocks starting with "---".
//
// Format:
//
//	---
//	kind: epic
//	name: Release 1.0
//	---
//	Epic description here.
//
//	---
//	kind: subtask
//	name: Write changelog
//	epic: 1
//	start: 02-01-2023 12:00
//	duration: 30m
//	---
//	Subtask description.
//
// Epic references:
//   - Relative: "epic: 1" refers to the 1st item in this file
//   - Absolute: `epic: "#123"` refers to existing item ID 123 (quote it, # starts a YAML comment)
func ParseItemDrafts(content string) ([]ItemDraft, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyFile
	}

	blocks := splitDraftBlocks(content)
	if len(blocks) == 0 {
		return nil, ErrNoItemsInFile
	}

	drafts := make([]ItemDraft, 0, len(blocks))
	for i, block := range blocks {
		draft, err := parseDraftBlock(block)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

// draftBlock holds the raw frontmatter and body of one item.
type draftBlock struct {
	header []string
	body   []string
}

var frontmatterKeyRe = regexp.MustCompile(`^(kind|name|status|start|duration|epic):`)

// splitDraftBlocks splits content into separate item blocks.
// A "---" line followed by a frontmatter key starts a new block; any other
// "---" inside a description is kept as text.
func splitDraftBlocks(content string) []draftBlock {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	var (
		blocks   []draftBlock
		current  *draftBlock
		inHeader bool
	)
	for i, line := range lines {
		if line == "---" {
			startsBlock := i+1 < len(lines) && frontmatterKeyRe.MatchString(lines[i+1])
			switch {
			case current != nil && inHeader:
				inHeader = false
				continue
			case startsBlock:
				if current != nil {
					blocks = append(blocks, *current)
				}
				current = &draftBlock{}
				inHeader = true
				continue
			}
		}
		if current == nil {
			continue
		}
		if inHeader {
			current.header = append(current.header, line)
		} else {
			current.body = append(current.body, line)
		}
	}
	if current != nil {
		blocks = append(blocks, *current)
	}
	return blocks
}

// parseDraftBlock parses a single item block.
func parseDraftBlock(block draftBlock) (ItemDraft, error) {
	var fm draftFrontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(block.header, "\n")), &fm); err != nil {
		return ItemDraft{}, fmt.Errorf("parse frontmatter: %w", err)
	}

	name := strings.TrimSpace(fm.Name)
	if name == "" {
		return ItemDraft{}, ErrEmptyName
	}

	kind := KindTask
	if fm.Kind != "" {
		k, err := ParseKind(fm.Kind)
		if err != nil {
			return ItemDraft{}, err
		}
		kind = k
	}

	status, err := ParseStatus(fm.Status)
	if err != nil {
		return ItemDraft{}, err
	}

	start, err := ParseStart(fm.Start)
	if err != nil {
		return ItemDraft{}, err
	}

	var d time.Duration
	if s := strings.TrimSpace(fm.Duration); s != "" {
		if strings.HasPrefix(strings.ToUpper(s), "P") {
			d, err = ParseISODuration(s)
		} else {
			d, err = time.ParseDuration(s)
		}
		if err != nil {
			return ItemDraft{}, fmt.Errorf("duration: %w", err)
		}
	}

	epicRef := ""
	if fm.Epic != nil {
		epicRef = strings.TrimSpace(fmt.Sprint(fm.Epic))
	}
	if epicRef != "" && kind != KindSubtask {
		return ItemDraft{}, fmt.Errorf("epic reference on a %s: %w", kind.Slug(), ErrInvalidArgument)
	}
	if kind == KindEpic && (!start.IsZero() || d != 0 || fm.Status != "") {
		return ItemDraft{}, fmt.Errorf("epic status and schedule are derived: %w", ErrInvalidArgument)
	}

	return ItemDraft{
		Kind:        kind,
		Name:        name,
		Description: strings.TrimSpace(strings.Join(block.body, "\n")),
		Status:      status,
		Start:       start,
		Duration:    d,
		EpicRef:     epicRef,
	}, nil
}

// ResolveEpicRef resolves a draft's epic reference.
// created holds the IDs of the items already created from the same file, in order.
// It returns 0 when the draft has no reference.
func (d ItemDraft) ResolveEpicRef(created []int) (int, error) {
	ref := d.EpicRef
	if ref == "" {
		return 0, nil
	}
	if strings.HasPrefix(ref, "#") {
		id, err := strconv.Atoi(ref[1:])
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid epic reference %q: %w", ref, ErrInvalidArgument)
		}
		return id, nil
	}
	idx, err := strconv.Atoi(ref)
	if err != nil || idx <= 0 {
		return 0, fmt.Errorf("invalid epic reference %q: %w", ref, ErrInvalidArgument)
	}
	if idx > len(created) {
		return 0, fmt.Errorf("epic reference %q points to a later item: %w", ref, ErrInvalidArgument)
	}
	return created[idx-1], nil
}

// ToItem converts the draft into an unsaved item linked to epicID.
func (d ItemDraft) ToItem(epicID int) *Item {
	var it *Item
	switch d.Kind {
	case KindEpic:
		return NewEpic(d.Name, d.Description)
	case KindSubtask:
		it = NewSubtask(d.Name, d.Description, epicID)
	case KindTask:
		it = NewTask(d.Name, d.Description)
	default:
		it = NewTask(d.Name, d.Description)
	}
	it.Status = d.Status
	return it.Schedule(d.Start, d.Duration)
}
