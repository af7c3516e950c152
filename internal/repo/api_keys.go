package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"upkeep/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKeyTx stores a hashed API key. KeyHash must already contain the hashed value.
func (r Repo) InsertAPIKeyTx(ctx context.Context, tx *sql.Tx, key domain.APIKey) error {
	switch {
	case key.ID == "":
		return errors.New("id required")
	case key.AccountID == "":
		return errors.New("account_id required")
	case key.KeyHash == "":
		return errors.New("key_hash required")
	case key.CreatedAt == "":
		return errors.New("created_at required")
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO api_keys(id, account_id, name, key_hash, created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.AccountID, nullable(key.Name), key.KeyHash, key.CreatedAt)
	return err
}

// GetAPIKeyByHash returns an API key by its hashed value.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, account_id, COALESCE(name,''), key_hash, created_at FROM api_keys WHERE key_hash=? LIMIT 1`, hash)
	var key domain.APIKey
	err := row.Scan(&key.ID, &key.AccountID, &key.Name, &key.KeyHash, &key.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.APIKey{}, ErrNotFound
	}
	if err != nil {
		return domain.APIKey{}, err
	}
	return key, nil
}

// ListAPIKeys returns the account's API keys, newest first.
func (r Repo) ListAPIKeys(ctx context.Context, accountID string) ([]domain.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, account_id, COALESCE(name,''), key_hash, created_at FROM api_keys WHERE account_id=? ORDER BY created_at DESC, id ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := []domain.APIKey{}
	for rows.Next() {
		var key domain.APIKey
		if err := rows.Scan(&key.ID, &key.AccountID, &key.Name, &key.KeyHash, &key.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteAPIKeyTx deletes one of the account's API keys.
func (r Repo) DeleteAPIKeyTx(ctx context.Context, tx *sql.Tx, accountID, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	return execOne(tx.ExecContext(ctx, `DELETE FROM api_keys WHERE id=? AND account_id=?`, id, accountID))
}
