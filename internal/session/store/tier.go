// Package store persists the credential across restarts through a cascade of
// storage tiers. Tier failures degrade durability but are never fatal to the
// caller: the worst outcome is a session that lives only as long as the
// process does.
package store

import "github.com/darceymckelvey/codestrata-auth/internal/session/domain"

// Tier is one storage backend in the cascade. Implementations must treat an
// absent credential as (nil, nil), reserving errors for backend failures.
type Tier interface {
	Name() string

	// Read returns the stored credential, or nil when the tier is empty.
	Read() (*domain.Credential, error)

	// Write replaces the stored credential.
	Write(domain.Credential) error

	// Clear removes any stored credential. Clearing an empty tier is not an
	// error.
	Clear() error

	// Probe verifies the backend accepts writes, using throwaway data that
	// never touches the real credential.
	Probe() error
}
