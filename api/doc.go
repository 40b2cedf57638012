// Package api is the typed request layer for the shortener service. Client
// translates operations into HTTP calls and classifies every response into
// success, an authorization failure, a key conflict or a generic failure.
// Cache lazily builds one Client per resolved base address and fans
// authorization failures out to subscribers.
package api
