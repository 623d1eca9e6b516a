package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.snapshot")

	src := NewMatchIndex(NewLinearStrategy(), 3)
	mustUpsert(t, src, record("a", "alice", 0, 1, 0, 0))
	mustUpsert(t, src, record("b", "bob", 1, 0, 1, 0))
	if err := src.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	dst := NewMatchIndex(NewHNSWStrategy(), 3)
	meta, err := dst.LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if meta.RecordCount != 2 || meta.Dim != 3 {
		t.Errorf("metadata = %+v, want 2 records of dim 3", meta)
	}

	res, err := dst.Query([]float32{0, 1, 0}, DefaultMatchThreshold)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !res.Matched() || res.Identity.Name != "bob" {
		t.Errorf("Query after load = %+v, want bob", res)
	}
}

func TestSnapshotMissing(t *testing.T) {
	idx := NewMatchIndex(NewLinearStrategy(), 3)
	_, err := idx.LoadSnapshot(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadSnapshot(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestSnapshotDimMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.snapshot")
	src := NewMatchIndex(NewLinearStrategy(), 3)
	mustUpsert(t, src, record("a", "alice", 0, 1, 0, 0))
	if err := src.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	dst := NewMatchIndex(NewLinearStrategy(), 4)
	if _, err := dst.LoadSnapshot(path); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("LoadSnapshot with wrong dim error = %v, want ErrValidationFailed", err)
	}
}
