package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"

	assert.Equal(t,
		"host=localhost port=5432 dbname=leaderboard user=postgres password=secret sslmode=disable connect_timeout=10",
		cfg.DSN())

	cfg.URL = "postgres://u:p@db:5432/lb?sslmode=require"
	assert.Equal(t, cfg.URL, cfg.DSN())
}

func TestConfig_PoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConns = 7

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, int32(1), pc.MinConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, "localhost", pc.ConnConfig.Host)
	assert.Equal(t, "leaderboard", pc.ConnConfig.Database)
}

func TestConfig_PoolConfigInvalid(t *testing.T) {
	_, err := Config{URL: "postgres://%zz"}.PoolConfig()
	assert.Error(t, err)
}

func TestMigrations(t *testing.T) {
	migs := Migrations()
	require.Len(t, migs, 1)
	assert.Equal(t, 1, migs[0].Version)
	assert.Contains(t, migs[0].UpSQL, "CREATE TABLE IF NOT EXISTS queue_messages")
	assert.Contains(t, migs[0].DownSQL, "DROP TABLE IF EXISTS queue_messages")
}

func TestNew_Defaults(t *testing.T) {
	b := New(nil, Config{})
	assert.Equal(t, 200*time.Millisecond, b.cfg.PollInterval)
	assert.Equal(t, 30*time.Second, b.cfg.Lease)
	assert.False(t, b.isClosed())
}
