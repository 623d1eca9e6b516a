package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// IdentityRepository provides PostgreSQL-backed identity storage.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

const identityColumns = `id, name, name_key, embedding, accepted, registered_at`

// GetAll returns every identity in registration order.
func (r *IdentityRepository) GetAll(ctx context.Context) ([]database.IdentityRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY registered_at, id`)
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
func (r *IdentityRepository) Get(ctx context.Context, id string) (*database.IdentityRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	rec, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity %s: %w", id, database.ErrNotFound)
	}
	return rec, err
}

// Count returns the number of registered identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Put inserts rec, replacing the row that holds the same name key in the
// same statement. It returns the replaced ID.
func (r *IdentityRepository) Put(ctx context.Context, rec database.IdentityRecord) (string, error) {
	query := `
		WITH prev AS (SELECT id FROM identities WHERE name_key = $3)
		INSERT INTO identities (id, name, name_key, embedding, dim, accepted, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name_key) DO UPDATE SET
			id = EXCLUDED.id,
			name = EXCLUDED.name,
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			accepted = EXCLUDED.accepted,
			registered_at = EXCLUDED.registered_at
		RETURNING (SELECT id FROM prev)
	`

	var prev sql.NullString
	err := r.pool.QueryRow(ctx, query,
		rec.ID, rec.Name, rec.NameKey, pgvector.NewVector(rec.Embedding),
		len(rec.Embedding), rec.Accepted, rec.RegisteredAt,
	).Scan(&prev)
	if err != nil {
		return "", fmt.Errorf("upsert identity: %w", err)
	}
	if !prev.Valid || prev.String == rec.ID {
		return "", nil
	}
	return prev.String, nil
}

// Delete removes an identity.
func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM identities WHERE id = $1", id)
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
func (r *IdentityRepository) LogRecognition(ctx context.Context, entries []database.RecognitionEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recognition_logs (identity_id, name, score, bbox, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("prepare recognition log insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		identityID := sql.NullString{String: e.IdentityID, Valid: e.IdentityID != ""}
		if _, err := stmt.ExecContext(ctx, identityID, e.Name, e.Score, pq.Array(e.BBox[:]), e.CreatedAt); err != nil {
			return fmt.Errorf("insert recognition log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recognition log: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*database.IdentityRecord, error) {
	var rec database.IdentityRecord
	var vec pgvector.Vector
	if err := row.Scan(&rec.ID, &rec.Name, &rec.NameKey, &vec, &rec.Accepted, &rec.RegisteredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	rec.Embedding = vec.Slice()
	rec.RegisteredAt = rec.RegisteredAt.UTC()
	return &rec, nil
}

var (
	_ database.Backend           = (*Backend)(nil)
	_ database.RecognitionLogger = (*Backend)(nil)
)
