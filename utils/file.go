package utils

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// EnsureUploadDir creates the uploads directory if it doesn't exist
func EnsureUploadDir(dir string) error {
	return os.MkdirAll(dir, os.ModePerm)
}

// IconKey returns a fresh object key under icons/, keeping the upload's
// extension.
func IconKey(filename string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "icons/" + id.String() + strings.ToLower(filepath.Ext(filename))
}

// LocalFiles stores uploads on disk and serves them from BaseURL.
type LocalFiles struct {
	Dir     string
	BaseURL string
}

func NewLocalFiles(dir, baseURL string) (*LocalFiles, error) {
	if err := EnsureUploadDir(dir); err != nil {
		return nil, fmt.Errorf("failed to ensure upload dir: %w", err)
	}
	return &LocalFiles{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *LocalFiles) Save(_ context.Context, key, _ string, data []byte) (string, error) {
	clean := path.Clean("/" + key)
	dest := filepath.Join(l.Dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return l.BaseURL + clean, nil
}
