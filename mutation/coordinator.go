// Package mutation applies create, update and delete against the remote
// service and folds each confirmed result into the page window. Local state
// changes only after the server confirms.
package mutation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-redirects/core"
	"github.com/goliatone/go-redirects/pagination"
	"github.com/google/uuid"
)

const pendingPrefix = "pending:"

// Folder is the window owner confirmed mutations are folded into.
// *pagination.Engine satisfies it.
type Folder interface {
	Window() (*core.Window, pagination.State)
	Append(record core.Redirect) bool
	Replace(record core.Redirect) bool
	Remove(id string) bool
}

// UpdateResult reports whether a confirmed update reached the local window.
// Applied is false when the record was not in the window.
type UpdateResult struct {
	Record  core.Redirect
	Applied bool
}

type Option func(*Coordinator)

func WithLogger(logger core.Logger) Option {
	return func(c *Coordinator) {
		c.telemetry.Logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(c *Coordinator) {
		c.telemetry.Metrics = recorder
	}
}

type Coordinator struct {
	resolver  core.APIResolver
	sessions  core.SessionReader
	folder    Folder
	telemetry core.Telemetry

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewCoordinator(resolver core.APIResolver, sessions core.SessionReader, folder Folder, opts ...Option) *Coordinator {
	coordinator := &Coordinator{
		resolver: resolver,
		sessions: sessions,
		folder:   folder,
		inFlight: map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(coordinator)
		}
	}
	coordinator.telemetry = core.NewTelemetry(coordinator.telemetry.Logger, coordinator.telemetry.Metrics)
	return coordinator
}

// Create stores a new record and appends the server's copy to the end of
// the window. A key collision is returned as an already exists error and
// leaves the window unchanged.
func (c *Coordinator) Create(ctx context.Context, key string, target string) (created core.Redirect, err error) {
	startedAt := time.Now()
	marker := pendingPrefix + uuid.NewString()
	defer func() {
		c.observe(ctx, startedAt, "create", err, map[string]any{"marker": marker, "key": key, "id": created.ID})
	}()

	key, target, err = normalizeFields(key, target)
	if err != nil {
		return core.Redirect{}, err
	}
	api, sess, err := c.prepare(ctx, "create")
	if err != nil {
		return core.Redirect{}, err
	}
	release, err := c.acquire(marker, "create:"+key)
	if err != nil {
		return core.Redirect{}, err
	}
	defer release()

	created, err = api.CreateRedirect(ctx, sess.Credential, key, target)
	if err != nil {
		return core.Redirect{}, err
	}
	if !c.folder.Append(created) {
		c.telemetry.Log(ctx, "warn", "created redirect not appended to window", map[string]any{"id": created.ID})
	}
	return created, nil
}

// Update changes key and target of id and replaces the record in place.
func (c *Coordinator) Update(ctx context.Context, id string, key string, target string) (result UpdateResult, err error) {
	startedAt := time.Now()
	defer func() {
		c.observe(ctx, startedAt, "update", err, map[string]any{"id": id, "applied": result.Applied})
	}()

	id = strings.TrimSpace(id)
	if id == "" {
		return UpdateResult{}, core.NewBadInputError("id", "redirect id is required")
	}
	key, target, err = normalizeFields(key, target)
	if err != nil {
		return UpdateResult{}, err
	}
	api, sess, err := c.prepare(ctx, "update")
	if err != nil {
		return UpdateResult{}, err
	}
	release, err := c.acquire(id)
	if err != nil {
		return UpdateResult{}, err
	}
	defer release()

	record := core.Redirect{ID: id, Key: key, Target: target}
	if err := api.UpdateRedirect(ctx, sess.Credential, record); err != nil {
		return UpdateResult{}, err
	}
	result = UpdateResult{Record: record, Applied: c.folder.Replace(record)}
	if !result.Applied {
		c.telemetry.Log(ctx, "warn", "updated redirect is not in the current window", map[string]any{"id": id})
	}
	return result, nil
}

// Delete removes id remotely and filters it out of the window.
func (c *Coordinator) Delete(ctx context.Context, id string) (err error) {
	startedAt := time.Now()
	defer func() {
		c.observe(ctx, startedAt, "delete", err, map[string]any{"id": id})
	}()

	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewBadInputError("id", "redirect id is required")
	}
	api, sess, err := c.prepare(ctx, "delete")
	if err != nil {
		return err
	}
	release, err := c.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	if err := api.DeleteRedirect(ctx, sess.Credential, id); err != nil {
		return err
	}
	if !c.folder.Remove(id) {
		c.telemetry.Log(ctx, "debug", "deleted redirect was not in the current window", map[string]any{"id": id})
	}
	return nil
}

// InFlight reports whether a mutation for id is pending.
func (c *Coordinator) InFlight(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.inFlight[strings.TrimSpace(id)]
	return busy
}

func (c *Coordinator) prepare(ctx context.Context, operation string) (core.API, core.Session, error) {
	if c.sessions == nil {
		return nil, core.Session{}, core.NewNotAuthenticatedError(operation)
	}
	sess, ok := c.sessions.Current()
	if !ok {
		return nil, core.Session{}, core.NewNotAuthenticatedError(operation)
	}
	if c.folder == nil {
		return nil, core.Session{}, core.NewNoWindowError(operation)
	}
	if window, _ := c.folder.Window(); window == nil {
		return nil, core.Session{}, core.NewNoWindowError(operation)
	}
	if c.resolver == nil {
		return nil, core.Session{}, core.NewInternalError("mutation: api resolver is not configured")
	}
	api, err := c.resolver.Resolve(ctx)
	if err != nil {
		return nil, core.Session{}, err
	}
	return api, sess, nil
}

// acquire marks every key busy or none of them.
func (c *Coordinator) acquire(keys ...string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if _, busy := c.inFlight[key]; busy {
			return nil, core.NewMutationInFlightError(key)
		}
	}
	for _, key := range keys {
		c.inFlight[key] = struct{}{}
	}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, key := range keys {
			delete(c.inFlight, key)
		}
	}, nil
}

func (c *Coordinator) observe(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	c.telemetry.Observe(ctx, core.MetricMutations, startedAt, operation, err, fields)
}

func normalizeFields(key string, target string) (string, string, error) {
	key = strings.TrimSpace(key)
	target = strings.TrimSpace(target)
	if key == "" {
		return "", "", core.NewBadInputError("key", "key is required")
	}
	if target == "" {
		return "", "", core.NewBadInputError("target", "target is required")
	}
	return key, target, nil
}
