package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-redirects/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialCacheKeyPrefix = "go-redirects::credential::v1"

// CachedCredentialStore fronts a persister with a read cache. Writes go to
// the base store first and then drop the cached entry.
type CachedCredentialStore struct {
	base  core.CredentialPersister
	cache repositorycache.CacheService
}

type cachedCredential struct {
	Token   string
	Present bool
}

func NewCachedCredentialStore(
	base core.CredentialPersister,
	cacheService repositorycache.CacheService,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

// CredentialCacheKey returns go-redirects::credential::v1::<storage_key>
// with the key URL-path escaped.
func CredentialCacheKey(key string) (string, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{credentialCacheKeyPrefix, url.PathEscape(key)}, "::"), nil
}

func (s *CachedCredentialStore) Load(ctx context.Context, key string) (core.Credential, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, false, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(key)
	if err != nil {
		return core.Credential{}, false, err
	}
	entry, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (cachedCredential, error) {
		cred, ok, fetchErr := s.base.Load(ctx, key)
		if fetchErr != nil {
			return cachedCredential{}, fetchErr
		}
		return cachedCredential{Token: cred.Token, Present: ok}, nil
	})
	if err != nil {
		return core.Credential{}, false, err
	}
	if !entry.Present {
		return core.Credential{}, false, nil
	}
	return core.Credential{Token: entry.Token}, true, nil
}

func (s *CachedCredentialStore) Save(ctx context.Context, key string, cred core.Credential) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.Save(ctx, key, cred); err != nil {
		return err
	}
	return s.invalidate(ctx, key)
}

func (s *CachedCredentialStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.Delete(ctx, key); err != nil {
		return err
	}
	return s.invalidate(ctx, key)
}

func (s *CachedCredentialStore) invalidate(ctx context.Context, key string) error {
	cacheKey, err := CredentialCacheKey(key)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
