package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"missing url", func(c *Config) { c.URL = "" }, "DATABASE_URL is required"},
		{"missing schema", func(c *Config) { c.Schema = "" }, "DB_SCHEMA is required"},
		{"zero ping timeout", func(c *Config) { c.PingTimeout = 0 }, "ping timeout must be positive"},
		{"no connections", func(c *Config) { c.MaxOpenConns = 0 }, "max open conns must be >= 1"},
		{"idle above open", func(c *Config) { c.MaxIdleConns = 10 }, "max idle conns must be <= max open conns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("postgres://unstract@localhost/unstract", "unstract")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}

func TestNewOrganizationsQuotesSchema(t *testing.T) {
	orgs := NewOrganizations(nil, `tenant"x`)

	assert.Equal(t, `SELECT organization_id FROM "tenant""x".platform_key WHERE key = $1`, orgs.keyQuery)
	assert.Equal(t, `SELECT organization_id FROM "tenant""x".organization WHERE id = $1`, orgs.orgQuery)
}

func TestCloseBorrowedDB(t *testing.T) {
	orgs := NewOrganizations(nil, "unstract")
	assert.NoError(t, orgs.Close(), "Close must not touch a caller-owned DB")
}
