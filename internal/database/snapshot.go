package database

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SaveSnapshot writes the indexed records to path (gob) and their metadata
// to path+".meta" (JSON). Files are replaced atomically.
func (m *MatchIndex) SaveSnapshot(path string) error {
	if path == "" {
		return nil
	}
	records := m.Records()

	if err := writeFileAtomic(path, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(records)
	}); err != nil {
		return fmt.Errorf("writing index snapshot: %w", err)
	}

	meta := IndexSnapshotMetadata{
		RecordCount: len(records),
		Dim:         m.dim,
		SavedAt:     time.Now().UTC(),
		Version:     snapshotVersion,
	}
	if err := writeFileAtomic(path+".meta", func(f *os.File) error {
		return json.NewEncoder(f).Encode(meta)
	}); err != nil {
		return fmt.Errorf("writing index snapshot metadata: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the index content with a snapshot written by
// SaveSnapshot. A missing snapshot returns os.ErrNotExist.
func (m *MatchIndex) LoadSnapshot(path string) (IndexSnapshotMetadata, error) {
	var meta IndexSnapshotMetadata

	metaData, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return meta, fmt.Errorf("reading index snapshot metadata: %w", err)
	}
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return meta, fmt.Errorf("parsing index snapshot metadata: %w", err)
	}
	if meta.Version != snapshotVersion {
		return meta, fmt.Errorf("index snapshot version %d not supported", meta.Version)
	}
	if meta.Dim != m.dim {
		return meta, fmt.Errorf("%w: snapshot dimension %d, index dimension %d", ErrValidationFailed, meta.Dim, m.dim)
	}

	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return meta, fmt.Errorf("opening index snapshot: %w", err)
	}
	defer f.Close()

	var records []IdentityRecord
	if err := gob.NewDecoder(f).Decode(&records); err != nil {
		return meta, fmt.Errorf("decoding index snapshot: %w", err)
	}
	if len(records) != meta.RecordCount {
		return meta, errors.New("index snapshot does not match its metadata")
	}
	if err := m.Replace(records); err != nil {
		return meta, err
	}
	return meta, nil
}

func writeFileAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
