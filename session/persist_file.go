package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-redirects/core"
)

const (
	defaultSessionDir  = "go-redirects"
	defaultSessionFile = "session.json"
)

// DefaultSessionPath returns the session document location under the user
// config directory.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("session: resolve config dir: %w", err)
	}
	return filepath.Join(dir, defaultSessionDir, defaultSessionFile), nil
}

type FileOption func(*FilePersister)

// WithSecretProvider seals stored values.
func WithSecretProvider(provider core.SecretProvider) FileOption {
	return func(p *FilePersister) {
		p.secrets = provider
	}
}

func WithFileLogger(logger core.Logger) FileOption {
	return func(p *FilePersister) {
		p.logger = glog.Ensure(logger)
	}
}

// FilePersister stores credentials in a JSON object keyed by storage key.
// Writes go through a temp file and rename so readers never observe a
// partial document.
type FilePersister struct {
	path    string
	secrets core.SecretProvider
	logger  core.Logger
	mu      sync.Mutex
}

func NewFilePersister(path string, opts ...FileOption) (*FilePersister, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		resolved, err := DefaultSessionPath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	persister := &FilePersister{path: filepath.Clean(path), logger: glog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(persister)
		}
	}
	return persister, nil
}

func (p *FilePersister) Path() string {
	return p.path
}

func (p *FilePersister) Load(ctx context.Context, key string) (core.Credential, bool, error) {
	p.mu.Lock()
	doc, err := p.read()
	p.mu.Unlock()
	if err != nil {
		return core.Credential{}, false, err
	}
	stored, ok := doc[key]
	if !ok || strings.TrimSpace(stored) == "" {
		return core.Credential{}, false, nil
	}
	token, err := p.open(ctx, stored)
	if err != nil {
		return core.Credential{}, false, err
	}
	return core.Credential{Token: token}, true, nil
}

func (p *FilePersister) Save(ctx context.Context, key string, cred core.Credential) error {
	value, err := p.seal(ctx, cred.Token)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, err := p.read()
	if err != nil {
		return err
	}
	doc[key] = value
	return p.write(doc)
}

func (p *FilePersister) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, err := p.read()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return p.write(doc)
}

// Watch emits an event whenever the credential under key changes on disk.
// The parent directory is watched because writes replace the file.
func (p *FilePersister) Watch(ctx context.Context, key string) (<-chan WatchEvent, error) {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("session: create session dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("session: create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("session: watch %s: %w", dir, err)
	}

	last, _, _ := p.Load(ctx, key)
	events := make(chan WatchEvent, 1)
	go func() {
		defer close(events)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != p.path {
					continue
				}
				cred, present, err := p.Load(ctx, key)
				if err != nil {
					p.logger.Warn("session file unreadable", "path", p.path, "error", err)
					continue
				}
				if present && cred.Equal(last) {
					continue
				}
				if !present && last.IsZero() {
					continue
				}
				last = cred
				select {
				case events <- WatchEvent{Key: key, Credential: cred, Removed: !present}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warn("session watcher error", "path", p.path, "error", err)
			}
		}
	}()
	return events, nil
}

func (p *FilePersister) read() (map[string]string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("session: read %s: %w", p.path, err)
	}
	doc := map[string]string{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", p.path, err)
	}
	return doc, nil
}

func (p *FilePersister) write(doc map[string]string) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("session: create session dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode session document: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p.path)+".*")
	if err != nil {
		return fmt.Errorf("session: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session: chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		return fmt.Errorf("session: replace %s: %w", p.path, err)
	}
	return nil
}

func (p *FilePersister) seal(ctx context.Context, token string) (string, error) {
	if p.secrets == nil {
		return token, nil
	}
	sealed, err := p.secrets.Encrypt(ctx, []byte(token))
	if err != nil {
		return "", fmt.Errorf("session: seal credential: %w", err)
	}
	return string(sealed), nil
}

func (p *FilePersister) open(ctx context.Context, stored string) (string, error) {
	if p.secrets == nil {
		return stored, nil
	}
	opened, err := p.secrets.Decrypt(ctx, []byte(stored))
	if err != nil {
		return "", fmt.Errorf("session: open credential: %w", err)
	}
	return string(opened), nil
}

var (
	_ core.CredentialPersister = (*FilePersister)(nil)
	_ Watcher                  = (*FilePersister)(nil)
)
