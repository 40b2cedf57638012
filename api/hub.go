package api

import (
	"context"
	"sort"
	"sync"

	"github.com/goliatone/go-redirects/core"
)

// AuthorizationHub fans authorization failures out to every subscriber.
type AuthorizationHub struct {
	mu        sync.RWMutex
	next      uint64
	listeners map[uint64]core.AuthorizationListener
}

func NewAuthorizationHub() *AuthorizationHub {
	return &AuthorizationHub{listeners: map[uint64]core.AuthorizationListener{}}
}

// Subscribe registers listener and returns a function that removes it.
func (h *AuthorizationHub) Subscribe(listener core.AuthorizationListener) func() {
	if h == nil || listener == nil {
		return func() {}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners == nil {
		h.listeners = map[uint64]core.AuthorizationListener{}
	}
	id := h.next
	h.next++
	h.listeners[id] = listener
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners, id)
		})
	}
}

// Publish notifies listeners in subscription order. Listeners run on the
// caller's goroutine after the hub lock is released.
func (h *AuthorizationHub) Publish(ctx context.Context, failed core.Credential, err error) {
	if h == nil {
		return
	}
	h.mu.RLock()
	ids := make([]uint64, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]core.AuthorizationListener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, h.listeners[id])
	}
	h.mu.RUnlock()

	for _, listener := range listeners {
		listener(ctx, failed, err)
	}
}

func (h *AuthorizationHub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
