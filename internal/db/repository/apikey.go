package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adamscao/ctapi/internal/models"
)

// ErrKeyNotFound is returned when no active key matches
var ErrKeyNotFound = errors.New("api key not found")

// APIKeyRepository handles API key data access
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create creates a new API key
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (name, key_hash, enabled)
		VALUES (?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query, key.Name, key.KeyHash, boolToInt(key.Enabled))
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	key.ID = id
	key.CreatedAt = time.Now()

	return nil
}

// Validate returns the enabled key with the given hash
func (r *APIKeyRepository) Validate(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := `
		SELECT id, name, key_hash, enabled, created_at, last_used_at
		FROM api_keys
		WHERE key_hash = ? AND enabled = 1
	`

	key, err := scanKey(r.db.QueryRowContext(ctx, query, keyHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate api key: %w", err)
	}

	return key, nil
}

// UpdateLastUsed updates the last_used_at timestamp
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id int64) error {
	query := `
		UPDATE api_keys
		SET last_used_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}

	return nil
}

// Revoke disables a key by ID
func (r *APIKeyRepository) Revoke(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE api_keys SET enabled = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrKeyNotFound
	}

	return nil
}

// List lists all keys, newest first
func (r *APIKeyRepository) List(ctx context.Context) ([]*models.APIKey, error) {
	query := `
		SELECT id, name, key_hash, enabled, created_at, last_used_at
		FROM api_keys
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

func scanKey(row rowScanner) (*models.APIKey, error) {
	key := &models.APIKey{}
	var enabled int
	var lastUsedAt sql.NullTime

	err := row.Scan(
		&key.ID,
		&key.Name,
		&key.KeyHash,
		&enabled,
		&key.CreatedAt,
		&lastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	key.Enabled = enabled == 1
	if lastUsedAt.Valid {
		key.LastUsedAt = &lastUsedAt.Time
	}

	return key, nil
}
