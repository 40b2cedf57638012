// Package core contains the redirects domain contracts, entities, error
// taxonomy and configuration. Adapters (api, session, pagination, mutation,
// stores) depend on this package; core must not depend on any of them.
package core
