// Package platform resolves platform API keys to the organizations that own
// them, reading the platform's Postgres database.
package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrOrganizationNotFound is returned when a key or its organization is unknown.
var ErrOrganizationNotFound = errors.New("organization not found")

// Config describes the platform database connection. URL is a postgres
// connection string (DATABASE_URL) and Schema names the schema holding the
// platform_key and organization tables (DB_SCHEMA).
type Config struct {
	URL          string
	Schema       string
	PingTimeout  time.Duration
	MaxOpenConns int
	MaxIdleConns int
}

// Validate checks required fields and pool limits.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Schema == "" {
		return errors.New("DB_SCHEMA is required")
	}
	if c.PingTimeout <= 0 {
		return errors.New("ping timeout must be positive")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("max open conns must be >= 1")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max idle conns must be <= max open conns")
	}
	return nil
}

// DefaultConfig returns pool settings suited to a single runner instance.
func DefaultConfig(url, schema string) Config {
	return Config{
		URL:          url,
		Schema:       schema,
		PingTimeout:  2 * time.Second,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}
}

// Open connects using the pgx stdlib driver and verifies the connection.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// Organizations looks organizations up by platform key.
type Organizations struct {
	db       *sql.DB
	keyQuery string
	orgQuery string
	ownsDB   bool
}

// NewOrganizations queries tables in schema through db.
func NewOrganizations(db *sql.DB, schema string) *Organizations {
	s := pgx.Identifier{schema}.Sanitize()
	return &Organizations{
		db:       db,
		keyQuery: "SELECT organization_id FROM " + s + ".platform_key WHERE key = $1",
		orgQuery: "SELECT organization_id FROM " + s + ".organization WHERE id = $1",
	}
}

// OpenOrganizations opens the database described by cfg. Close releases it.
func OpenOrganizations(ctx context.Context, cfg Config) (*Organizations, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	orgs := NewOrganizations(db, cfg.Schema)
	orgs.ownsDB = true
	return orgs, nil
}

// FromPlatformKey returns the numeric id and the string identifier of the
// organization that owns key.
func (o *Organizations) FromPlatformKey(ctx context.Context, key string) (int64, string, error) {
	var uid int64
	err := o.db.QueryRowContext(ctx, o.keyQuery, key).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ErrOrganizationNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("lookup platform key: %w", err)
	}

	var identifier string
	err = o.db.QueryRowContext(ctx, o.orgQuery, uid).Scan(&identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ErrOrganizationNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("lookup organization %d: %w", uid, err)
	}
	return uid, identifier, nil
}

// Ping checks the database connection.
func (o *Organizations) Ping(ctx context.Context) error {
	return o.db.PingContext(ctx)
}

// Close closes the database when it was opened by OpenOrganizations.
func (o *Organizations) Close() error {
	if o.ownsDB {
		return o.db.Close()
	}
	return nil
}
