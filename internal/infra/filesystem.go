package infra

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// GetWorkDir expands base (which may start with ~), joins path and makes sure
// the directory exists.
func GetWorkDir(base string, path ...string) (string, error) {
	parts := append([]string{base}, path...)
	workDir, err := homedir.Expand(filepath.Join(parts...))
	if err != nil {
		return "", fmt.Errorf("expand work dir: %w", err)
	}
	if err = os.MkdirAll(workDir, 0o750); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return workDir, nil
}
