package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// APIKey represents a row in the api_keys table. The plaintext key is
// never stored; only its bcrypt hash and an indexable prefix.
type APIKey struct {
	ID        string
	Name      string
	KeyHash   string
	KeyPrefix string
	Disabled  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GenerateAPIKey creates a new rgk_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the user once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := "rgk_" + hex.EncodeToString(raw) // 68 chars total

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}

	prefix := fullKey[:8] // "rgk_abcd"
	return fullKey, string(hashBytes), prefix, nil
}

// CreateAPIKey inserts a new API key and returns the row plus the
// plaintext key (shown once).
func (s *Store) CreateAPIKey(ctx context.Context, name string) (*APIKey, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("CreateAPIKey: %w", err)
	}

	var k APIKey
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO api_keys (name, key_hash, key_prefix)
		VALUES ($1, $2, $3)
		RETURNING id, name, key_hash, key_prefix, disabled, created_at, updated_at`,
		name, keyHash, keyPrefix,
	).Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Disabled, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("CreateAPIKey: %w", err)
	}
	return &k, fullKey, nil
}

// ListAPIKeys returns all API keys ordered by created_at DESC.
func (s *Store) ListAPIKeys(ctx context.Context) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, key_hash, key_prefix, disabled, created_at, updated_at
		FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListAPIKeys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix,
			&k.Disabled, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListAPIKeys: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey marks a key disabled. Revoked keys stay listed for audit.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET disabled = true, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("RevokeAPIKey: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LookupKeyByPrefix finds an active API key by prefix (first 8 chars).
// Used by auth to narrow candidates before bcrypt verify.
func (s *Store) LookupKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	var k APIKey
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, key_hash, key_prefix, disabled, created_at, updated_at
		FROM api_keys WHERE key_prefix = $1 AND NOT disabled`, prefix,
	).Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Disabled, &k.CreatedAt, &k.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupKeyByPrefix: %w", err)
	}
	return &k, nil
}
