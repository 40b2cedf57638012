// Package session owns the authenticated session: the credential that
// survives restarts and the identity derived from it.
//
// A Store restores the persisted credential, revalidates it against the
// identity endpoint, exchanges authorization codes and clears itself on any
// authorization failure published by the api layer.
package session
