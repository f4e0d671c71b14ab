package atlas

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultAuthFile returns the per-user location of the API key file,
// $HOME/.atlas/auth.
func DefaultAuthFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".atlas", "auth")
	}
	return filepath.Join(home, ".atlas", "auth")
}

// ReadKey reads the API key from the first line of path. It fails with
// ErrAuthFileNotFound when the file does not exist and ErrAuthFileEmpty
// when it holds no key.
func ReadKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrAuthFileNotFound, path)
		}
		return "", fmt.Errorf("reading authentication file %s: %w", path, err)
	}
	key, _, _ := strings.Cut(string(data), "\n")
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: %s", ErrAuthFileEmpty, path)
	}
	return key, nil
}
