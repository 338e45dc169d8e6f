// Package pgtest starts a throwaway postgres with the chotrivia schema for tests.
package pgtest

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/victornm/chotrivia/internal/store"
)

const (
	image = "postgres:16-alpine"
	user  = "chotrivia"
	pass  = "chotrivia"
	name  = "chotrivia"
)

// New runs a postgres container migrated to the latest schema and returns a pool connected
// to it. The test is skipped in short mode or when no container runtime is available.
func New(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("postgres container skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     user,
				"POSTGRES_PASSWORD": pass,
				"POSTGRES_DB":       name,
			},
			// postgres restarts once after the init scripts ran
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port.Port(), name)

	m, err := store.NewMigrate(url)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err, "migrate up")
	}
	srcErr, dbErr := m.Close()
	require.NoError(t, stderrors.Join(srcErr, dbErr))

	db, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Ping(ctx))

	return db
}
