package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pong")
	t.Setenv("MATCHMAKER_API_KEY", "secret")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, RoleAll, cfg.Role)
	assert.Equal(t, "5200", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.LockLease)
	assert.Equal(t, 100*time.Millisecond, cfg.LockRetryDelay)
	assert.Equal(t, 0, cfg.LockMaxAttempts)
	assert.Equal(t, 30*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 3, cfg.MaxPoints)
	assert.True(t, cfg.RunsMatchmaker())
	assert.True(t, cfg.RunsGameServer())
	assert.False(t, cfg.ArchiveEnabled())
}

func TestParseOrigins(t *testing.T) {
	t.Setenv("MATCHMAKER_API_KEY", "secret")
	t.Setenv("APP_ROLE", "GAME")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, RoleGame, cfg.Role)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.False(t, cfg.RunsMatchmaker())
}

func TestParseRejectsMissingDatabase(t *testing.T) {
	t.Setenv("APP_ROLE", "matchmaker")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MATCHMAKER_API_KEY", "secret")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestParseRejectsUnknownRole(t *testing.T) {
	t.Setenv("APP_ROLE", "referee")
	t.Setenv("MATCHMAKER_API_KEY", "secret")

	_, err := Parse()
	require.Error(t, err)
}

func TestParseRejectsBadDuration(t *testing.T) {
	t.Setenv("MATCHMAKER_API_KEY", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/pong")
	t.Setenv("LOCK_LEASE", "soon")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}
