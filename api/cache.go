package api

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-redirects/core"
	"golang.org/x/sync/singleflight"
)

type BaseURLResolver interface {
	ResolveBaseURL(ctx context.Context) (string, error)
}

type BaseURLFunc func(ctx context.Context) (string, error)

func (f BaseURLFunc) ResolveBaseURL(ctx context.Context) (string, error) {
	return f(ctx)
}

type StaticBaseURL string

func (s StaticBaseURL) ResolveBaseURL(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// Cache owns the single Client for its lifetime. The base address is
// resolved on first use; concurrent first calls share one resolution and a
// failed resolution is retried on the next call.
type Cache struct {
	resolver BaseURLResolver
	options  []ClientOption
	hub      *AuthorizationHub

	group  singleflight.Group
	mu     sync.RWMutex
	client *Client
}

func NewCache(resolver BaseURLResolver, opts ...ClientOption) *Cache {
	if resolver == nil {
		resolver = StaticBaseURL("")
	}
	return &Cache{
		resolver: resolver,
		options:  append([]ClientOption(nil), opts...),
		hub:      NewAuthorizationHub(),
	}
}

func (c *Cache) Get(ctx context.Context) (*Client, error) {
	if client := c.cached(); client != nil {
		return client, nil
	}
	// The resolution is shared by every waiting caller, so one caller's
	// cancellation must not fail the others.
	flightCtx := context.WithoutCancel(ctx)
	value, err, _ := c.group.Do("client", func() (any, error) {
		if client := c.cached(); client != nil {
			return client, nil
		}
		baseURL, err := c.resolver.ResolveBaseURL(flightCtx)
		if err != nil {
			return nil, err
		}
		opts := append(append([]ClientOption(nil), c.options...), WithAuthorizationHub(c.hub))
		client, err := NewClient(baseURL, opts...)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.client = client
		c.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Client), nil
}

func (c *Cache) Resolve(ctx context.Context) (core.API, error) {
	client, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Subscribe registers listener for authorization failures observed by the
// cached client.
func (c *Cache) Subscribe(listener core.AuthorizationListener) func() {
	return c.hub.Subscribe(listener)
}

func (c *Cache) Hub() *AuthorizationHub {
	return c.hub
}

func (c *Cache) cached() *Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

var _ core.APIResolver = (*Cache)(nil)
