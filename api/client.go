package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-redirects/core"
	"github.com/goliatone/go-redirects/transport"
)

const (
	OperationExchangeToken  = "exchange_token"
	OperationGetIdentity    = "get_identity"
	OperationListRedirects  = "list_redirects"
	OperationCreateRedirect = "create_redirect"
	OperationUpdateRedirect = "update_redirect"
	OperationDeleteRedirect = "delete_redirect"
)

type ClientOption func(*Client)

func WithTransport(adapter core.TransportAdapter) ClientOption {
	return func(c *Client) {
		if adapter != nil {
			c.transport = adapter
		}
	}
}

// WithHTTPClient runs requests through a REST adapter wrapping doer.
func WithHTTPClient(doer transport.HTTPDoer) ClientOption {
	return func(c *Client) {
		if doer != nil {
			c.transport = transport.NewRESTAdapter(doer)
		}
	}
}

func WithAuthorizationHub(hub *AuthorizationHub) ClientOption {
	return func(c *Client) {
		c.hub = hub
	}
}

func WithLogger(logger core.Logger) ClientOption {
	return func(c *Client) {
		c.telemetry.Logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) ClientOption {
	return func(c *Client) {
		c.telemetry.Metrics = recorder
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithMaxResponseBodyBytes(limit int64) ClientOption {
	return func(c *Client) {
		c.maxResponseBodyBytes = limit
	}
}

// Client is stateless beyond its base address and collaborators and is safe
// for concurrent use. It never retries.
type Client struct {
	baseURL              string
	transport            core.TransportAdapter
	hub                  *AuthorizationHub
	telemetry            core.Telemetry
	timeout              time.Duration
	maxResponseBodyBytes int64
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, core.NewBadInputError("api_url", "api base url is required")
	}
	if parsed, err := url.Parse(baseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, core.NewBadInputError("api_url", "api base url must be absolute")
	}
	client := &Client{baseURL: baseURL}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.transport == nil {
		client.transport = transport.NewRESTAdapter(nil)
	}
	client.telemetry = core.NewTelemetry(client.telemetry.Logger, client.telemetry.Metrics)
	return client, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type exchangeRequest struct {
	AuthorizationCode string `json:"authorization_code"`
}

type exchangeResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
}

type redirectBody struct {
	Key    string `json:"key"`
	Target string `json:"target"`
}

func (c *Client) ExchangeToken(ctx context.Context, code string) (cred core.Credential, err error) {
	startedAt := time.Now()
	defer func() {
		c.telemetry.Observe(ctx, core.MetricAPIRequests, startedAt, OperationExchangeToken, err, nil)
	}()

	code = strings.TrimSpace(code)
	if code == "" {
		return core.Credential{}, core.NewBadInputError("authorization_code", "authorization code is required")
	}
	var payload exchangeResponse
	if err := c.call(ctx, OperationExchangeToken, core.Credential{}, http.MethodPost, "/auth/callback", nil, exchangeRequest{AuthorizationCode: code}, &payload); err != nil {
		return core.Credential{}, err
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return core.Credential{}, decodeError(OperationExchangeToken, errMissingAccessToken)
	}
	return core.NewCredential(payload.TokenType, payload.AccessToken), nil
}

func (c *Client) GetIdentity(ctx context.Context, cred core.Credential) (identity core.Identity, err error) {
	startedAt := time.Now()
	defer func() {
		c.telemetry.Observe(ctx, core.MetricAPIRequests, startedAt, OperationGetIdentity, err, nil)
	}()

	if err := requireCredential(OperationGetIdentity, cred); err != nil {
		return core.Identity{}, err
	}
	if err := c.call(ctx, OperationGetIdentity, cred, http.MethodGet, "/me", nil, nil, &identity); err != nil {
		return core.Identity{}, err
	}
	return identity, nil
}

// ListRedirects fetches one page. after and limit are only sent when set.
func (c *Client) ListRedirects(ctx context.Context, cred core.Credential, params core.ListParams) (page core.RedirectPage, err error) {
	startedAt := time.Now()
	defer func() {
		c.telemetry.Observe(ctx, core.MetricAPIRequests, startedAt, OperationListRedirects, err, map[string]any{
			"after": params.After,
			"limit": params.Limit,
			"count": len(page.Data),
		})
	}()

	if err := requireCredential(OperationListRedirects, cred); err != nil {
		return core.RedirectPage{}, err
	}
	query := map[string]string{}
	if after := strings.TrimSpace(params.After); after != "" {
		query["after"] = after
	}
	if params.Limit > 0 {
		query["limit"] = strconv.Itoa(params.Limit)
	}
	if err := c.call(ctx, OperationListRedirects, cred, http.MethodGet, "/urls", query, nil, &page); err != nil {
		return core.RedirectPage{}, err
	}
	if page.Data == nil {
		page.Data = []core.Redirect{}
	}
	return page, nil
}

func (c *Client) CreateRedirect(ctx context.Context, cred core.Credential, key string, target string) (created core.Redirect, err error) {
	startedAt := time.Now()
	defer func() {
		c.telemetry.Observe(ctx, core.MetricAPIRequests, startedAt, OperationCreateRedirect, err, map[string]any{"key": key})
	}()

	if err := requireCredential(OperationCreateRedirect, cred); err != nil {
		return core.Redirect{}, err
	}
	body := redirectBody{Key: key, Target: target}
	if err := c.call(ctx, OperationCreateRedirect, cred, http.MethodPost, "/urls", nil, body, &created); err != nil {
		return core.Redirect{}, err
	}
	if created.Pending() {
		return core.Redirect{}, decodeError(OperationCreateRedirect, errMissingID)
	}
	return created, nil
}

func (c *Client) UpdateRedirect(ctx context.Context, cred core.Credential, redirect core.Redirect) (err error) {
	startedAt := time.Now()
	defer func() {
		c.telemetry.Observe(ctx, core.MetricAPIRequests, startedAt, OperationUpdateRedirect, err, map[string]any{"id": redirect.ID})
	}()

	if err := requireCredential(OperationUpdateRedirect, cred); err != nil {
		return err
	}
	if redirect.Pending() {
		return core.NewBadInputError("id", "redirect id is required")
	}
	body := redirectBody{Key: redirect.Key, Target: redirect.Target}
	return c.call(ctx, OperationUpdateRedirect, cred, http.MethodPatch, "/urls/"+url.PathEscape(redirect.ID), nil, body, nil)
}

func (c *Client) DeleteRedirect(ctx context.Context, cred core.Credential, id string) (err error) {
	startedAt := time.Now()
	defer func() {
		c.telemetry.Observe(ctx, core.MetricAPIRequests, startedAt, OperationDeleteRedirect, err, map[string]any{"id": id})
	}()

	if err := requireCredential(OperationDeleteRedirect, cred); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewBadInputError("id", "redirect id is required")
	}
	return c.call(ctx, OperationDeleteRedirect, cred, http.MethodDelete, "/urls/"+url.PathEscape(id), nil, nil, nil)
}

// call executes one request, classifies the response and decodes the body
// into out when out is non nil. Authorization failures are published to the
// hub before being returned.
func (c *Client) call(
	ctx context.Context,
	operation string,
	cred core.Credential,
	method string,
	path string,
	query map[string]string,
	body any,
	out any,
) error {
	req := core.TransportRequest{
		Method:               method,
		URL:                  c.baseURL + path,
		Query:                query,
		Headers:              map[string]string{},
		Timeout:              c.timeout,
		MaxResponseBodyBytes: c.maxResponseBodyBytes,
		Metadata:             map[string]any{"operation": operation},
	}
	if !cred.IsZero() {
		req.Headers["Authorization"] = cred.Token
	}
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return core.NewInternalError("api: encode request body: " + err.Error())
		}
		req.Body = encoded
	}

	res, err := c.transport.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := classify(operation, res); err != nil {
		if core.IsAuthorization(err) {
			c.hub.Publish(ctx, cred, err)
		}
		return err
	}
	if out == nil || len(res.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return decodeError(operation, err)
	}
	return nil
}

func requireCredential(operation string, cred core.Credential) error {
	if cred.IsZero() {
		return core.NewNotAuthenticatedError(operation)
	}
	return nil
}

var _ core.API = (*Client)(nil)
