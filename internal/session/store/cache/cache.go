// Package cache is the offline fallback behind degraded mode: the last-known
// user profile and the user's owned vaults, persisted locally so a backend
// outage does not blank the UI. Its presence is what downgrades a forced
// logout to a degraded session instead.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
	"github.com/darceymckelvey/codestrata-auth/internal/session/store/cache/migrations"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

// Vault is a cached summary of a vault the user owns. Only what degraded
// mode needs to render a list.
type Vault struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Cache struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database and applies pending
// migrations.
func Open(dsn string) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	c := &Cache{db: db}
	if err := c.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) applyMigrations() error {
	driver, err := migratesqlite.WithInstance(c.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	src, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", src, "", driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (c *Cache) Close() error { return c.db.Close() }

// SaveProfile replaces the cached profile snapshot.
func (c *Cache) SaveProfile(ctx context.Context, p *domain.UserProfile) error {
	if p == nil {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO profile (id, user_id, username, email, role, settings, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			username = excluded.username,
			email = excluded.email,
			role = excluded.role,
			settings = excluded.settings,
			saved_at = excluded.saved_at`,
		p.ID, p.Username, p.Email, p.Role, []byte(p.Settings), time.Now().UTC())
	return err
}

// Profile returns the cached profile, or nil when none has been saved.
func (c *Cache) Profile(ctx context.Context) (*domain.UserProfile, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT user_id, username, email, role, settings FROM profile WHERE id = 1`)

	var p domain.UserProfile
	var settings []byte
	err := row.Scan(&p.ID, &p.Username, &p.Email, &p.Role, &settings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Settings = settings
	return &p, nil
}

// SaveVaults replaces the cached owned-vaults snapshot.
func (c *Cache) SaveVaults(ctx context.Context, vaults []Vault) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM owned_vaults`); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, v := range vaults {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO owned_vaults (id, name, description, saved_at) VALUES (?, ?, ?, ?)`,
			v.ID, v.Name, v.Description, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Vaults returns the cached owned-vaults snapshot, oldest ID first.
func (c *Cache) Vaults(ctx context.Context) ([]Vault, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, description FROM owned_vaults ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Vault
	for rows.Next() {
		var v Vault
		if err := rows.Scan(&v.ID, &v.Name, &v.Description); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// HasSnapshot reports whether any cached profile or owned-vaults data
// exists. This is the predicate degraded mode keys off.
func (c *Cache) HasSnapshot(ctx context.Context) bool {
	var n int
	if err := c.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM profile) + (SELECT COUNT(*) FROM owned_vaults)`,
	).Scan(&n); err != nil {
		return false
	}
	return n > 0
}

// Clear drops all cached data. Called on explicit logout so the next user
// of the machine cannot see the previous user's vaults.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM profile`); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, `DELETE FROM owned_vaults`)
	return err
}
