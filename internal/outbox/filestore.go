// Package outbox implements the Outbox Sender (spec.md §4.F): a poll
// loop that atomically claims one pending outgoing message at a time and
// dispatches it through the upstream client.
package outbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DiskFileStore resolves an attachment's storage key to bytes from a
// flat directory on local disk. Cloud object storage is explicitly out
// of scope; this is the minimal concrete FileStore the sender needs to
// exercise the upstream.FileStore interface end to end.
type DiskFileStore struct {
	root string
}

// NewDiskFileStore builds a store rooted at dir.
func NewDiskFileStore(dir string) *DiskFileStore {
	return &DiskFileStore{root: dir}
}

// Fetch implements upstream.FileStore.
func (s *DiskFileStore) Fetch(ctx context.Context, storageKey string) ([]byte, string, error) {
	clean := filepath.Clean("/" + storageKey) // reject any ../ escape out of root
	path := filepath.Join(s.root, clean)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read attachment %s: %w", storageKey, err)
	}
	return data, filepath.Base(path), nil
}
