package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Dir implements FileStore on a local directory.
type Dir struct {
	root string
}

// NewDir creates a Dir store rooted at dir, creating it if needed.
func NewDir(dir string) (*Dir, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &Dir{root: abs}, nil
}

func (d *Dir) resolve(p string) (string, error) {
	if err := checkPath(p); err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(p)), nil
}

func (d *Dir) Read(_ context.Context, p string) (io.ReadCloser, error) {
	full, err := d.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return f, nil
}

func (d *Dir) Write(_ context.Context, p string) (io.WriteCloser, error) {
	full, err := d.resolve(p)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("storage: write %s: %w", p, err)
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("storage: write %s: %w", p, err)
	}
	return f, nil
}

func (d *Dir) Delete(_ context.Context, p string) error {
	full, err := d.resolve(p)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (d *Dir) Exists(_ context.Context, p string) (bool, error) {
	full, err := d.resolve(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
