package store

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
)

// Cookie names mirror the keys the backend reads when a cookie-backed
// session is in play. The wire contract pins these.
const (
	CookieToken        = "strata_token"
	CookieRefreshToken = "strata_refresh_token"
	CookieTokenVersion = "strata_token_version"
)

type cookieRecord struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path"`
	Expires time.Time `json:"expires,omitempty"`
}

// CookieTier is the HTTP-readable side channel: the credential replicated as
// cookie records that an embedding HTTP client can attach to requests when
// the backend signals useCookies.
type CookieTier struct {
	path string
	ttl  time.Duration
}

func NewCookieTier(dir string, ttl time.Duration) *CookieTier {
	return &CookieTier{path: filepath.Join(dir, "cookies.json"), ttl: ttl}
}

func (t *CookieTier) Name() string { return "cookie" }

func (t *CookieTier) Read() (*domain.Credential, error) {
	records, err := t.load()
	if err != nil {
		return nil, err
	}

	var cred domain.Credential
	now := time.Now()
	for _, r := range records {
		if !r.Expires.IsZero() && now.After(r.Expires) {
			continue
		}
		switch r.Name {
		case CookieToken:
			cred.AccessToken = r.Value
		case CookieRefreshToken:
			cred.RefreshToken = r.Value
		case CookieTokenVersion:
			var v int
			if _, err := fmt.Sscanf(r.Value, "%d", &v); err == nil {
				cred.TokenVersion = &v
			}
		}
	}
	if cred.IsZero() {
		return nil, nil
	}
	return &cred, nil
}

func (t *CookieTier) Write(cred domain.Credential) error {
	expires := time.Now().Add(t.ttl)
	records := []cookieRecord{
		{Name: CookieToken, Value: cred.AccessToken, Path: "/", Expires: expires},
		{Name: CookieRefreshToken, Value: cred.RefreshToken, Path: "/", Expires: expires},
	}
	if cred.TokenVersion != nil {
		records = append(records, cookieRecord{
			Name: CookieTokenVersion, Value: fmt.Sprintf("%d", *cred.TokenVersion),
			Path: "/", Expires: expires,
		})
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("cookie tier encode: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0o600); err != nil {
		return fmt.Errorf("cookie tier write: %w", err)
	}
	return nil
}

func (t *CookieTier) Clear() error {
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cookie tier clear: %w", err)
	}
	return nil
}

func (t *CookieTier) Probe() error {
	probe := t.path + ".probe"
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return err
	}
	return os.Remove(probe)
}

// Cookies renders the stored records as http.Cookie values for callers that
// talk to the backend with cookie-backed sessions.
func (t *CookieTier) Cookies() []*http.Cookie {
	records, err := t.load()
	if err != nil {
		return nil
	}

	out := make([]*http.Cookie, 0, len(records))
	for _, r := range records {
		out = append(out, &http.Cookie{
			Name:    r.Name,
			Value:   r.Value,
			Path:    r.Path,
			Expires: r.Expires,
		})
	}
	return out
}

func (t *CookieTier) load() ([]cookieRecord, error) {
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cookie tier read: %w", err)
	}

	var records []cookieRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("cookie tier decode: %w", err)
	}
	return records, nil
}
