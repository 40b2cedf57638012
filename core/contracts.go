package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type IdentityAPI interface {
	ExchangeToken(ctx context.Context, code string) (Credential, error)
	GetIdentity(ctx context.Context, cred Credential) (Identity, error)
}

type RedirectAPI interface {
	ListRedirects(ctx context.Context, cred Credential, params ListParams) (RedirectPage, error)
	CreateRedirect(ctx context.Context, cred Credential, key string, target string) (Redirect, error)
	UpdateRedirect(ctx context.Context, cred Credential, redirect Redirect) error
	DeleteRedirect(ctx context.Context, cred Credential, id string) error
}

type API interface {
	IdentityAPI
	RedirectAPI
}

// APIResolver hands out the shared API client, resolving it on first use.
type APIResolver interface {
	Resolve(ctx context.Context) (API, error)
}

type SessionReader interface {
	Current() (Session, bool)
}

// AuthorizationListener is notified whenever a remote call is rejected with
// an authorization failure. failed is the credential the call carried and is
// zero for unauthenticated calls.
type AuthorizationListener func(ctx context.Context, failed Credential, err error)

// CredentialPersister stores the credential that survives a restart under a
// single well-known key.
type CredentialPersister interface {
	Load(ctx context.Context, key string) (Credential, bool, error)
	Save(ctx context.Context, key string, cred Credential) error
	Delete(ctx context.Context, key string) error
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
