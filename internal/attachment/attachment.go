// Package attachment defines the shape and narrow client interface the job
// service consumes from the external attachment store (AttachmentSrv), plus
// a filesystem-backed implementation for the single-node deployment path and
// for tests.
package attachment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Attachment is a reference to stored binary content: the payload of a
// job's `attachment` field or an artifact's `attachment` field.
type Attachment struct {
	ID          string
	Name        string
	ContentType string
	Size        int64
	Hash        string // sha256, hex-encoded
}

// Store is the narrow interface the job service depends on for binary
// payloads. A real implementation is an external collaborator
// (AttachmentSrv); FSStore below is a filesystem-backed implementation good
// enough to run the service and its tests standalone.
type Store interface {
	// Save reads all of r and stores it under a new attachment ID.
	Save(r io.Reader, name, contentType string) (Attachment, error)
	// Source opens the stored content for reading. The caller must Close it.
	Source(id string) (io.ReadCloser, error)
}

// FSStore stores attachments as files under a root directory, named by
// attachment ID, with a sidecar JSON-free metadata map kept in memory
// (filled in by Save, not persisted across restarts — acceptable for the
// single-node deployment path this store targets).
type FSStore struct {
	root string
	meta map[string]Attachment
}

// NewFSStore creates a filesystem-backed Store rooted at dir. dir is
// created if it does not exist.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment root %s: %w", dir, err)
	}
	return &FSStore{root: dir, meta: make(map[string]Attachment)}, nil
}

// Save implements Store.
func (s *FSStore) Save(r io.Reader, name, contentType string) (Attachment, error) {
	id := uuid.NewString()
	path := s.path(id)

	f, err := os.Create(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("create attachment file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(f, io.TeeReader(r, h))
	if err != nil {
		os.Remove(path)
		return Attachment{}, fmt.Errorf("write attachment content: %w", err)
	}

	a := Attachment{
		ID:          id,
		Name:        name,
		ContentType: contentType,
		Size:        size,
		Hash:        hex.EncodeToString(h.Sum(nil)),
	}
	s.meta[id] = a
	return a, nil
}

// Source implements Store.
func (s *FSStore) Source(id string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("attachment %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("open attachment %s: %w", id, err)
	}
	return f, nil
}

// Metadata returns the Attachment record for id, if this FSStore instance
// created it (metadata is in-memory only, not reloaded across restarts).
func (s *FSStore) Metadata(id string) (Attachment, bool) {
	a, ok := s.meta[id]
	return a, ok
}

func (s *FSStore) path(id string) string {
	return filepath.Join(s.root, id)
}

// ErrNotFound is returned by Store.Source when the requested attachment
// does not exist.
var ErrNotFound = fmt.Errorf("attachment: not found")
