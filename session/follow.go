package session

import (
	"context"

	"github.com/goliatone/go-redirects/core"
)

// WatchEvent reports that the persisted credential under Key changed
// outside this process. Removed is set when no credential remains.
type WatchEvent struct {
	Key        string
	Credential core.Credential
	Removed    bool
}

type Watcher interface {
	Watch(ctx context.Context, key string) (<-chan WatchEvent, error)
}

// Follow drops the in-memory session when another process removes or
// replaces the persisted credential. It blocks until ctx is done or the
// watcher stops.
func (s *Store) Follow(ctx context.Context, watcher Watcher) error {
	if watcher == nil {
		return nil
	}
	events, err := watcher.Watch(ctx, s.key)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			s.observeExternal(ctx, event)
		}
	}
}

func (s *Store) observeExternal(ctx context.Context, event WatchEvent) {
	current, ok := s.Current()
	if !ok {
		return
	}
	if !event.Removed && current.Credential.Equal(event.Credential) {
		return
	}
	s.dropMemory(ctx, ReasonExternalChange)
}
