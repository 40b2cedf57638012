package sqlstore

import "github.com/goliatone/go-redirects/core"

var (
	_ core.CredentialPersister = (*CredentialStore)(nil)
	_ core.CredentialPersister = (*CachedCredentialStore)(nil)
)
