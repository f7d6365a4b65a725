package sqlserver

import (
	"testing"

	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pancaim/cdm/pkg/storage"
)

func TestDSN(t *testing.T) {
	dsn := DSN(storage.Params{
		Host:     "db.local",
		Database: "pancaim",
		Username: "reader",
		Password: "p@ss word",
		Query:    map[string]string{"encrypt": "disable"},
	})

	cfg, err := msdsn.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db.local", cfg.Host)
	assert.Equal(t, uint64(1433), cfg.Port)
	assert.Equal(t, "pancaim", cfg.Database)
	assert.Equal(t, "reader", cfg.User)
	assert.Equal(t, "p@ss word", cfg.Password)

	assert.Equal(t, "sqlserver://h", DSN(storage.Params{DSN: "sqlserver://h"}))
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, storage.Drivers(), DriverName)
	assert.Contains(t, storage.Drivers(), "mssql")
}
