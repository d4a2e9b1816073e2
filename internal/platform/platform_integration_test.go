//go:build integration

package platform

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "unstract",
				"POSTGRES_PASSWORD": "unstract",
				"POSTGRES_DB":       "unstract",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, c)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://unstract:unstract@%s:%s/unstract?sslmode=disable", host, port.Port())
}

func TestFromPlatformKeyPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg := DefaultConfig(startPostgres(t), "unstract")
	cfg.PingTimeout = 10 * time.Second

	orgs, err := OpenOrganizations(ctx, cfg)
	require.NoError(t, err)
	defer orgs.Close()

	for _, stmt := range []string{
		`CREATE SCHEMA unstract`,
		`CREATE TABLE unstract.organization (id BIGINT PRIMARY KEY, organization_id TEXT NOT NULL)`,
		`CREATE TABLE unstract.platform_key (key TEXT PRIMARY KEY, organization_id BIGINT NOT NULL)`,
		`INSERT INTO unstract.organization VALUES (7, 'org_acme')`,
		`INSERT INTO unstract.platform_key VALUES ('pk-live', 7), ('pk-orphan', 99)`,
	} {
		_, err := orgs.db.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}

	uid, identifier, err := orgs.FromPlatformKey(ctx, "pk-live")
	require.NoError(t, err)
	assert.Equal(t, int64(7), uid)
	assert.Equal(t, "org_acme", identifier)

	_, _, err = orgs.FromPlatformKey(ctx, "pk-unknown")
	assert.ErrorIs(t, err, ErrOrganizationNotFound)

	_, _, err = orgs.FromPlatformKey(ctx, "pk-orphan")
	assert.ErrorIs(t, err, ErrOrganizationNotFound)

	assert.NoError(t, orgs.Ping(ctx))
}
