package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
)

// IdentityRepository stores identities in MariaDB. Embeddings are kept as
// JSON arrays.
type IdentityRepository struct {
	db *sql.DB
}

const identityColumns = `id, name, name_key, embedding, accepted, registered_at`

func (r *IdentityRepository) GetAll(ctx context.Context) ([]database.IdentityRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY registered_at, id`)
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

func (r *IdentityRepository) Get(ctx context.Context, id string) (*database.IdentityRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
	rec, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity %s: %w", id, database.ErrNotFound)
	}
	return rec, err
}

func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Put upserts rec on its name key inside a transaction and returns the
// replaced ID.
func (r *IdentityRepository) Put(ctx context.Context, rec database.IdentityRecord) (string, error) {
	data, err := json.Marshal(rec.Embedding)
	if err != nil {
		return "", fmt.Errorf("marshal embedding: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT id FROM identities WHERE name_key = ? FOR UPDATE`, rec.NameKey).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lock identity: %w", err)
	}

	query := `
		INSERT INTO identities (id, name, name_key, embedding, dim, accepted, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			id = VALUES(id),
			name = VALUES(name),
			embedding = VALUES(embedding),
			dim = VALUES(dim),
			accepted = VALUES(accepted),
			registered_at = VALUES(registered_at)
	`
	if _, err := tx.ExecContext(ctx, query,
		rec.ID, rec.Name, rec.NameKey, data, len(rec.Embedding), rec.Accepted, rec.RegisteredAt.UTC(),
	); err != nil {
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

func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM identities WHERE id = ?", id)
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

// LogRecognition appends recognition events.
func (r *IdentityRepository) LogRecognition(ctx context.Context, entries []database.RecognitionEntry) error {
	for _, e := range entries {
		bbox, err := json.Marshal(e.BBox)
		if err != nil {
			return fmt.Errorf("marshal bbox: %w", err)
		}
		identityID := sql.NullString{String: e.IdentityID, Valid: e.IdentityID != ""}
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO recognition_logs (identity_id, name, score, bbox, created_at) VALUES (?, ?, ?, ?, ?)`,
			identityID, e.Name, e.Score, string(bbox), e.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert recognition log: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*database.IdentityRecord, error) {
	var rec database.IdentityRecord
	var data []byte
	if err := row.Scan(&rec.ID, &rec.Name, &rec.NameKey, &data, &rec.Accepted, &rec.RegisteredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	if err := json.Unmarshal(data, &rec.Embedding); err != nil {
		return nil, fmt.Errorf("unmarshal embedding for %s: %w", rec.ID, err)
	}
	rec.RegisteredAt = rec.RegisteredAt.UTC()
	return &rec, nil
}

var (
	_ database.Backend           = (*Backend)(nil)
	_ database.RecognitionLogger = (*Backend)(nil)
)
