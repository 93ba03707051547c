package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_PASSWORD", "p@ss")
	t.Setenv("DB_HOST", "db")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 8, cfg.DBMaxConns)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, "postgres://postgres:p%40ss@db:5432/settlement?sslmode=disable", cfg.DBURL)
}

func TestLoadConfig_ExplicitURL(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_URL", "postgres://u:p@h:1/x")
	t.Setenv("DB_MAX_CONNS", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h:1/x", cfg.DBURL)
	assert.Equal(t, 8, cfg.DBMaxConns)
}

func TestLoadConfig_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}
