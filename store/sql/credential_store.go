package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-redirects/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type CredentialOption func(*CredentialStore)

// WithSecretProvider seals tokens before they reach the table.
func WithSecretProvider(provider core.SecretProvider) CredentialOption {
	return func(s *CredentialStore) {
		s.secrets = provider
	}
}

// CredentialStore persists the session credential in redirect_credentials,
// one row per storage key.
type CredentialStore struct {
	db      *bun.DB
	repo    repository.Repository[*credentialRecord]
	secrets core.SecretProvider
}

func NewCredentialStore(db *bun.DB, opts ...CredentialOption) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	store := &CredentialStore{db: db, repo: repo}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *CredentialStore) Load(ctx context.Context, key string) (core.Credential, bool, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, false, fmt.Errorf("sqlstore: credential store is not configured")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return core.Credential{}, false, err
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("storage_key", "=", key),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credential{}, false, err
	}
	if len(records) == 0 || strings.TrimSpace(records[0].Token) == "" {
		return core.Credential{}, false, nil
	}
	token, err := s.open(ctx, records[0])
	if err != nil {
		return core.Credential{}, false, err
	}
	return core.Credential{Token: token}, true, nil
}

// Save upserts the credential for key; the row id survives overwrites.
func (s *CredentialStore) Save(ctx context.Context, key string, cred core.Credential) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	token, sealed, err := s.seal(ctx, cred.Token)
	if err != nil {
		return err
	}
	record := newCredentialRecord(key, token, sealed, time.Now().UTC())
	record.ID = uuid.NewString()
	_, err = s.db.NewInsert().
		Model(record).
		On("CONFLICT (storage_key) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("sealed = EXCLUDED.sealed").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: save credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	_, err = s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("storage_key = ?", key).
		Exec(ctx)
	return err
}

func (s *CredentialStore) seal(ctx context.Context, token string) (string, bool, error) {
	if s.secrets == nil {
		return token, false, nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(token))
	if err != nil {
		return "", false, fmt.Errorf("sqlstore: seal credential: %w", err)
	}
	return string(sealed), true, nil
}

func (s *CredentialStore) open(ctx context.Context, record *credentialRecord) (string, error) {
	if !record.Sealed {
		return record.Token, nil
	}
	if s.secrets == nil {
		return "", fmt.Errorf("sqlstore: credential %q is sealed but no secret provider is configured", record.StorageKey)
	}
	opened, err := s.secrets.Decrypt(ctx, []byte(record.Token))
	if err != nil {
		return "", fmt.Errorf("sqlstore: open credential: %w", err)
	}
	return string(opened), nil
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("sqlstore: storage key is required")
	}
	return key, nil
}
