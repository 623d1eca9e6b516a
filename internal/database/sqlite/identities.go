package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
)

const identityColumns = `id, name, name_key, embedding, accepted, registered_at`

// GetAll returns every identity in registration order.
func (b *Backend) GetAll(ctx context.Context) ([]database.IdentityRecord, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY registered_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var records []database.IdentityRecord
	for rows.Next() {
		rec, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return records, nil
}

// Get retrieves one identity by ID.
func (b *Backend) Get(ctx context.Context, id string) (*database.IdentityRecord, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
	rec, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity %s: %w", id, database.ErrNotFound)
	}
	return rec, err
}

// Count returns the number of registered identities.
func (b *Backend) Count(ctx context.Context) (int, error) {
	var count int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Put upserts rec on its name key and returns the replaced ID.
func (b *Backend) Put(ctx context.Context, rec database.IdentityRecord) (string, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT id FROM identities WHERE name_key = ?`, rec.NameKey).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup identity: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO identities (id, name, name_key, embedding, dim, accepted, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name_key) DO UPDATE SET
			id = excluded.id,
			name = excluded.name,
			embedding = excluded.embedding,
			dim = excluded.dim,
			accepted = excluded.accepted,
			registered_at = excluded.registered_at
	`, rec.ID, rec.Name, rec.NameKey, database.EncodeEmbedding(rec.Embedding),
		len(rec.Embedding), rec.Accepted, rec.RegisteredAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("upsert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit identity: %w", err)
	}
	if prev == rec.ID {
		return "", nil
	}
	return prev, nil
}

// Delete removes an identity.
func (b *Backend) Delete(ctx context.Context, id string) error {
	result, err := b.db.ExecContext(ctx, "DELETE FROM identities WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("identity %s: %w", id, database.ErrNotFound)
	}
	return nil
}

// LogRecognition appends recognition events in one transaction.
func (b *Backend) LogRecognition(ctx context.Context, entries []database.RecognitionEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, e := range entries {
		bbox, err := json.Marshal(e.BBox)
		if err != nil {
			return fmt.Errorf("marshal bbox: %w", err)
		}
		identityID := sql.NullString{String: e.IdentityID, Valid: e.IdentityID != ""}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recognition_logs (identity_id, name, score, bbox, created_at) VALUES (?, ?, ?, ?, ?)`,
			identityID, e.Name, e.Score, string(bbox), e.CreatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert recognition log: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recognition log: %w", err)
	}
	return nil
}

// RecognitionCount returns the number of logged recognition events.
func (b *Backend) RecognitionCount(ctx context.Context) (int, error) {
	var count int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recognition_logs").Scan(&count); err != nil {
		return 0, fmt.Errorf("count recognition logs: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*database.IdentityRecord, error) {
	var rec database.IdentityRecord
	var blob []byte
	var registeredAt int64
	if err := row.Scan(&rec.ID, &rec.Name, &rec.NameKey, &blob, &rec.Accepted, &registeredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	emb, err := database.DecodeEmbedding(blob)
	if err != nil {
		return nil, fmt.Errorf("decode embedding for %s: %w", rec.ID, err)
	}
	rec.Embedding = emb
	rec.RegisteredAt = time.Unix(0, registeredAt).UTC()
	return &rec, nil
}

// Compile-time interface checks
var (
	_ database.Backend           = (*Backend)(nil)
	_ database.RecognitionLogger = (*Backend)(nil)
)
