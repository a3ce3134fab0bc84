package scaffold

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dhkts1/yoga-app-sub002/internal/config"
)

//go:embed templates/yoga.yml.tmpl
var configTemplate []byte

// Initialize writes a commented default configuration to path.
// If force is true, an existing file at path is replaced.
func Initialize(path string, force bool) error {
	if !force {
		if err := CheckExisting(path); err != nil {
			return err
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, configTemplate, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	// The template must stay loadable by the same code that reads it back.
	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("created %s is not a valid configuration: %w", path, err)
	}
	return nil
}

// PrintSuccess prints the created file and the next steps.
func PrintSuccess(w io.Writer, path string) {
	fmt.Fprintf(w, "\nCreated:\n")
	fmt.Fprintf(w, "  ✓ %s\n", path)
	fmt.Fprintf(w, "\nNext steps:\n")
	fmt.Fprintf(w, "  1. Add '.yoga/' to your .gitignore file\n")
	fmt.Fprintf(w, "  2. Switch storage.backend to redis to share state between machines\n")
	fmt.Fprintf(w, "  3. Run 'yoga status' to check the stores\n")
}
