package api

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-redirects/core"
)

var (
	errMissingAccessToken = errors.New("token exchange returned no access token")
	errMissingID          = errors.New("created redirect has no id")
)

// classify maps a raw response onto the error taxonomy. It is the only place
// status codes are interpreted.
func classify(operation string, res core.TransportResponse) error {
	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return core.NewAuthorizationError(operation)
	case res.StatusCode == http.StatusConflict:
		return core.NewAlreadyExistsError(operation)
	case res.StatusCode < 200 || res.StatusCode > 299:
		return core.NewRequestFailedError(operation, res.StatusCode)
	}
	return nil
}

func decodeError(operation string, source error) error {
	err := goerrors.Wrap(source, goerrors.CategoryExternal, "api: malformed response payload").
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ErrorRequestFailed)
	err.WithMetadata(map[string]any{"operation": operation})
	return err
}
