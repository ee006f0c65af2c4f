package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
)

// FileTier is the short-lived tier: a plain JSON file scoped to the current
// login session, typically under the OS runtime/temp directory so it does
// not outlive a reboot.
type FileTier struct {
	path string
}

func NewFileTier(dir string) *FileTier {
	return &FileTier{path: filepath.Join(dir, "session-tokens.json")}
}

func (t *FileTier) Name() string { return "file" }

func (t *FileTier) Read() (*domain.Credential, error) {
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file tier read: %w", err)
	}

	var cred domain.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("file tier decode: %w", err)
	}
	if cred.IsZero() {
		return nil, nil
	}
	return &cred, nil
}

func (t *FileTier) Write(cred domain.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("file tier encode: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0o600); err != nil {
		return fmt.Errorf("file tier write: %w", err)
	}
	return nil
}

func (t *FileTier) Clear() error {
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file tier clear: %w", err)
	}
	return nil
}

func (t *FileTier) Probe() error {
	probe := t.path + ".probe"
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return err
	}
	return os.Remove(probe)
}
