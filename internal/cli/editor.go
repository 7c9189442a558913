package cli

import (
	"fmt"
	"os"
	"os/exec"
)

// draftTemplate seeds the file opened by 'tracker import --edit'.
// Text before the first block is ignored on import.
const draftTemplate = `Add one block per item below this line and save. Delete everything to cancel.

Example:
  ---
  kind: task
  name: Review pull requests
  start: 06-01-2025 09:00
  duration: 1h
  ---
  Optional description.
`

// getEditor returns the user's preferred editor from environment variables.
// It checks EDITOR, then VISUAL, and defaults to vim if neither is set.
func getEditor() string {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		editor = "vim"
	}
	return editor
}

// openEditor opens the specified file in the user's editor.
// It returns an error if the editor cannot be started or exits with a non-zero status.
func openEditor(filePath string) error {
	editor := getEditor()

	cmd := exec.Command(editor, filePath) //nolint:gosec // editor comes from the user's environment
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor %s: %w", editor, err)
	}

	return nil
}

// editDraft opens a temporary draft file seeded with draftTemplate and
// returns what the user saved.
func editDraft() ([]byte, error) {
	f, err := os.CreateTemp("", "tracker-items-*.md")
	if err != nil {
		return nil, fmt.Errorf("create draft file: %w", err)
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()

	if _, err := f.WriteString(draftTemplate); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write draft file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close draft file: %w", err)
	}

	if err := openEditor(path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
