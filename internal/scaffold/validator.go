package scaffold

import (
	"errors"
	"fmt"
	"os"
)

// ErrAlreadyInitialized is returned by CheckExisting when the file exists.
var ErrAlreadyInitialized = errors.New("configuration already initialized")

// CheckExisting returns ErrAlreadyInitialized if path already exists.
func CheckExisting(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return fmt.Errorf("%w: found existing %s", ErrAlreadyInitialized, path)
}
