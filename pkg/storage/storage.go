// Package storage defines the FileStore interface the bridge uses to
// archive call artifacts (recordings), with local-directory and S3
// backends.
//
// Paths are forward-slash separated, relative to the store root, and must
// be valid in the io/fs sense: no leading slash, no "." or ".." segments.
// Implementations are safe for concurrent use.
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
)

// FileStore is a minimal file-oriented store.
type FileStore interface {
	// Read opens the named file. The caller closes the returned reader.
	// A missing file yields an error wrapping os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating any existing
	// content and creating parents as needed. The caller must close the
	// returned writer to flush.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Missing files delete cleanly.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// checkPath rejects paths that could escape the store root. Call ids and
// track names come off the wire, so every backend validates before use.
func checkPath(p string) error {
	if !fs.ValidPath(p) {
		return fmt.Errorf("storage: invalid path %q", p)
	}
	return nil
}
