package store

import (
	"log/slog"
	"sync"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
)

// verifyRetries bounds the write/read-back loop against the durable tier
// before the store gives up and demotes itself.
const verifyRetries = 3

// Store is the single authority for credential persistence. It keeps an
// unconditional in-memory copy and writes through a tier cascade in
// precedence order; reads come from the first tier holding a value, with the
// memory copy as final fallback.
//
// Once a durable-tier write cannot be verified (or a read fails), the store
// permanently demotes to memory-only for the rest of the process lifetime:
// no tier is touched again, and the session survives only as long as the
// process. Demotion is deliberate: a backend that silently drops writes is
// worse than no backend, because it makes two tiers disagree about which
// credential is current.
type Store struct {
	log *slog.Logger

	mu      sync.Mutex
	tiers   []Tier // precedence order, most ephemeral first
	durable Tier   // the tier subject to verification and demotion
	mem     *domain.Credential
	memOnly bool
}

// New builds a store over the given tiers. durable must be one of tiers.
func New(log *slog.Logger, durable Tier, tiers ...Tier) *Store {
	return &Store{log: log, tiers: tiers, durable: durable}
}

// SetTokens writes the credential to memory unconditionally, then attempts
// write-through to every tier. Individual tier failures are logged and
// swallowed. The durable tier is read back and verified; a persistent
// mismatch demotes the store to memory-only.
func (s *Store) SetTokens(access, refresh string, version *int) {
	cred := domain.Credential{AccessToken: access, RefreshToken: refresh, TokenVersion: version}
	if version != nil {
		cred = cred.Clone() // own the pointer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := cred
	s.mem = &c

	if s.memOnly {
		return
	}

	for _, tier := range s.tiers {
		if err := tier.Write(cred); err != nil {
			s.log.Warn("tier write failed", "tier", tier.Name(), "error", err)
		}
	}

	s.verifyDurableLocked(cred)
}

// verifyDurableLocked reads the durable tier back and retries the write a
// bounded number of times before demoting.
func (s *Store) verifyDurableLocked(want domain.Credential) {
	for attempt := 0; attempt < verifyRetries; attempt++ {
		got, err := s.durable.Read()
		if err == nil && got != nil && got.Equal(want) {
			return
		}
		if err != nil {
			s.log.Warn("durable tier verify read failed",
				"tier", s.durable.Name(), "attempt", attempt+1, "error", err)
		}
		if err := s.durable.Write(want); err != nil {
			s.log.Warn("durable tier rewrite failed",
				"tier", s.durable.Name(), "attempt", attempt+1, "error", err)
		}
	}

	s.demoteLocked("durable tier failed write verification")
}

func (s *Store) demoteLocked(why string) {
	if s.memOnly {
		return
	}
	s.memOnly = true
	s.log.Error("token store demoted to memory-only", "reason", why)
}

// Credential returns the current credential following the tier precedence
// cascade. The zero Credential means none is stored anywhere.
func (s *Store) Credential() domain.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credentialLocked()
}

func (s *Store) credentialLocked() domain.Credential {
	if s.memOnly {
		if s.mem != nil {
			return s.mem.Clone()
		}
		return domain.Credential{}
	}

	for i, tier := range s.tiers {
		cred, err := tier.Read()
		if err != nil {
			if tier == s.durable {
				s.log.Warn("durable tier read failed", "error", err)
				s.demoteLocked("durable tier read failure")
				break
			}
			s.log.Warn("tier read failed", "tier", tier.Name(), "error", err)
			continue
		}
		if cred == nil {
			continue
		}

		// Mirror the hit into memory and backfill emptier tiers below it.
		c := cred.Clone()
		s.mem = &c
		s.backfillLocked(i, *cred)
		return cred.Clone()
	}

	if s.mem != nil {
		return s.mem.Clone()
	}
	return domain.Credential{}
}

// backfillLocked writes the found credential into later (more durable)
// tiers that are currently empty.
func (s *Store) backfillLocked(foundAt int, cred domain.Credential) {
	for _, tier := range s.tiers[foundAt+1:] {
		existing, err := tier.Read()
		if err != nil || existing != nil {
			continue
		}
		if err := tier.Write(cred); err != nil {
			s.log.Warn("tier backfill failed", "tier", tier.Name(), "error", err)
		}
	}
}

// Token returns the current access token, empty when none is stored.
func (s *Store) Token() string {
	return s.Credential().AccessToken
}

// RefreshToken returns the current refresh token, empty when none is stored.
func (s *Store) RefreshToken() string {
	return s.Credential().RefreshToken
}

// TokenVersion returns the stored token version, nil when unknown.
func (s *Store) TokenVersion() *int {
	return s.Credential().TokenVersion
}

// ClearTokens wipes memory and best-effort clears every tier, verifying
// that nothing is left behind. Residue is logged, never returned.
func (s *Store) ClearTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem = nil

	if s.memOnly {
		return
	}

	for _, tier := range s.tiers {
		if err := tier.Clear(); err != nil {
			s.log.Warn("tier clear failed", "tier", tier.Name(), "error", err)
			continue
		}
		if residue, err := tier.Read(); err == nil && residue != nil {
			s.log.Warn("tier retains credential after clear", "tier", tier.Name())
		}
	}
}

// Available probes the durable tier with throwaway data.
func (s *Store) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.memOnly {
		return false
	}
	if err := s.durable.Probe(); err != nil {
		s.log.Warn("durable tier probe failed", "error", err)
		return false
	}
	return true
}

// MemoryOnly reports whether the store has demoted itself.
func (s *Store) MemoryOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memOnly
}
