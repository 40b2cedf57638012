package session

import (
	"context"
	"sync"

	"github.com/goliatone/go-redirects/core"
)

// MemoryPersister keeps credentials for the life of the process.
type MemoryPersister struct {
	mu     sync.RWMutex
	values map[string]core.Credential
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{values: map[string]core.Credential{}}
}

func (p *MemoryPersister) Load(_ context.Context, key string) (core.Credential, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cred, ok := p.values[key]
	return cred, ok, nil
}

func (p *MemoryPersister) Save(_ context.Context, key string, cred core.Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = cred
	return nil
}

func (p *MemoryPersister) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, key)
	return nil
}

var _ core.CredentialPersister = (*MemoryPersister)(nil)
