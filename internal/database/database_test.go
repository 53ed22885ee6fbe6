package database

import (
	"testing"
	"time"

	"GasMonitorAPI/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFailsWhenServerUnreachable(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:            "127.0.0.1",
		Port:            1,
		User:            "gasmonitor",
		Password:        "secret",
		Database:        "gasmonitor",
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
	}

	db, err := New(cfg)
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to ping database")
}
