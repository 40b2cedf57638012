package sqlstore

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// credentialRecord holds the one credential persisted per storage key.
type credentialRecord struct {
	bun.BaseModel `bun:"table:redirect_credentials,alias:rc"`

	ID         string    `bun:"id,pk"`
	StorageKey string    `bun:"storage_key,notnull"`
	Token      string    `bun:"token,notnull"`
	Sealed     bool      `bun:"sealed,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newCredentialRecord(key string, token string, sealed bool, now time.Time) *credentialRecord {
	return &credentialRecord{
		StorageKey: strings.TrimSpace(key),
		Token:      token,
		Sealed:     sealed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
