package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kilometers.ai/appdeploy/internal/application/ports"
)

// Cleaner removes build directories before a deployment
type Cleaner struct {
	logger ports.LoggingGateway
}

// NewCleaner creates a new directory cleaner. logger may be nil.
func NewCleaner(logger ports.LoggingGateway) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean removes every directory in dirs with all of its contents. A directory
// that does not exist counts as removed. The first failure stops the clean.
func (c *Cleaner) Clean(ctx context.Context, dirs []string) error {
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}

		path, err := safePath(dir)
		if err != nil {
			return err
		}

		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}

		if c.logger != nil {
			c.logger.Log(ports.LogLevelDebug, "Removed directory", map[string]interface{}{"path": path})
		}
	}

	return nil
}

// safePath expands and cleans dir, refusing paths that would wipe a
// filesystem root or the home directory.
func safePath(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("refusing to remove empty path")
	}

	path, err := filepath.Abs(ExpandPath(dir))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	if path == filepath.VolumeName(path)+string(filepath.Separator) {
		return "", fmt.Errorf("refusing to remove filesystem root %s", path)
	}
	if home, err := os.UserHomeDir(); err == nil && filepath.Clean(home) == path {
		return "", fmt.Errorf("refusing to remove home directory %s", path)
	}

	return path, nil
}

// ExpandPath expands a leading ~ to the user's home directory
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
