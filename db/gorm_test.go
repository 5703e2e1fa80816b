package db

import (
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Replayer/config"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		DBHost:     "db.local",
		DBPort:     "3307",
		DBUser:     "replayer",
		DBPassword: "p@ss:word",
		DBName:     "cues",
	}

	parsed, err := mysqldriver.ParseDSN(DSN(cfg))
	require.NoError(t, err)
	assert.Equal(t, "replayer", parsed.User)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db.local:3307", parsed.Addr)
	assert.Equal(t, "cues", parsed.DBName)
	assert.True(t, parsed.ParseTime)
}

func TestAutoMigrateWithoutConnection(t *testing.T) {
	GormDB = nil
	assert.Error(t, AutoMigrate())
	assert.NoError(t, CloseGormDB())
}
