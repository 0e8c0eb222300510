package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"aicoo/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKey stores a hashed API key. KeyHash must already contain the hashed value.
func (r Repo) InsertAPIKey(ctx context.Context, key domain.APIKey) error {
	if key.ID == "" {
		return errors.New("id required")
	}
	if key.OwnerEmail == "" {
		return errors.New("owner_email required")
	}
	if key.KeyHash == "" {
		return errors.New("key_hash required")
	}
	if key.CreatedAt == "" {
		key.CreatedAt = time.Now().UTC().Format(TimeLayout)
	}
	_, err := r.exec(ctx, nil, `INSERT INTO api_keys(id, owner_email, name, key_hash, created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.OwnerEmail, nullable(key.Name), key.KeyHash, key.CreatedAt)
	return err
}

// GetAPIKeyByHash returns an API key by its hashed value.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	row := r.queryRow(ctx, nil, `SELECT id, owner_email, COALESCE(name,''), key_hash, created_at FROM api_keys WHERE key_hash=? LIMIT 1`, hash)
	var key domain.APIKey
	err := row.Scan(&key.ID, &key.OwnerEmail, &key.Name, &key.KeyHash, &key.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.APIKey{}, ErrNotFound
	}
	if err != nil {
		return domain.APIKey{}, err
	}
	return key, nil
}

// ListAPIKeys returns the API keys of one owner, newest first.
func (r Repo) ListAPIKeys(ctx context.Context, ownerEmail string) ([]domain.APIKey, error) {
	rows, err := r.query(ctx, nil, `SELECT id, owner_email, COALESCE(name,''), key_hash, created_at FROM api_keys WHERE owner_email=? ORDER BY created_at DESC`, ownerEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.APIKey
	for rows.Next() {
		var key domain.APIKey
		if err := rows.Scan(&key.ID, &key.OwnerEmail, &key.Name, &key.KeyHash, &key.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteAPIKey deletes an owner's API key by ID.
func (r Repo) DeleteAPIKey(ctx context.Context, id, ownerEmail string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	res, err := r.exec(ctx, nil, `DELETE FROM api_keys WHERE id=? AND owner_email=?`, id, ownerEmail)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
