package attachment

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
)

func TestFSStore_SaveAndSource(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(filepath.Join(dir, "attachments"))
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	content := []byte("hello analyzer")
	a, err := store.Save(bytes.NewReader(content), "sample.bin", "application/octet-stream")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if a.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", a.Size, len(content))
	}
	if a.Hash == "" {
		t.Errorf("Hash is empty")
	}

	rc, err := store.Source(a.ID)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	meta, ok := store.Metadata(a.ID)
	if !ok || meta.Name != "sample.bin" {
		t.Errorf("Metadata(%s) = %+v, %v", a.ID, meta, ok)
	}
}

func TestFSStore_SourceMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	if _, err := store.Source("does-not-exist"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Source(missing) = %v, want ErrNotFound", err)
	}
}
