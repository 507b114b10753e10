package sqlserver

import (
	"net/url"
	"testing"

	"github.com/gvangeel/yellow/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverDSN_DefaultConnectionString(t *testing.T) {
	db := config.Database{Host: "127.0.0.1", Port: "1444", User: "sa", Password: "SqlPassword!", Name: "YellowDB"}

	dsn, err := driverDSN(db.ConnectionString())
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", u.Scheme)
	assert.Equal(t, "127.0.0.1:1444", u.Host)
	assert.Equal(t, "sa", u.User.Username())
	pwd, _ := u.User.Password()
	assert.Equal(t, "SqlPassword!", pwd)
	assert.Equal(t, "YellowDB", u.Query().Get("database"))
}

func TestDriverDSN_Variants(t *testing.T) {
	tests := []struct {
		name     string
		conn     string
		wantHost string
		wantDB   string
		wantUser string
	}{
		{"no tcp prefix", "Server=db.internal,1433;Database=App;UID=app;PWD=x;", "db.internal:1433", "App", "app"},
		{"no port", "Server=tcp:db.internal;Database=App;UID=app;PWD=x;", "db.internal", "App", "app"},
		{"ado long keys", "Data Source=db;Initial Catalog=App;User ID=app;Password=x", "db", "App", "app"},
		{"mixed case keys", "SERVER=tcp:db,1500;database=App;uid=app;pwd=x;", "db:1500", "App", "app"},
		{"ipv6 host", "Server=tcp:::1,1433;Database=App;UID=app;PWD=x;", "[::1]:1433", "App", "app"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := driverDSN(tt.conn)
			require.NoError(t, err)

			u, err := url.Parse(dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, u.Host)
			assert.Equal(t, tt.wantDB, u.Query().Get("database"))
			assert.Equal(t, tt.wantUser, u.User.Username())
		})
	}
}

func TestDriverDSN_EscapesSpecialCharacters(t *testing.T) {
	dsn, err := driverDSN("Server=tcp:db,1433;Database=App;UID=sa;PWD=p@ss/w:rd?#;")
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	pwd, _ := u.User.Password()
	assert.Equal(t, "p@ss/w:rd?#", pwd)
}

func TestDriverDSN_PassesUnknownKeys(t *testing.T) {
	dsn, err := driverDSN("Server=db;Database=App;encrypt=disable;")
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "disable", u.Query().Get("encrypt"))
	assert.Nil(t, u.User)
}

func TestDriverDSN_Errors(t *testing.T) {
	_, err := driverDSN("Database=App;UID=sa;")
	assert.Error(t, err, "no server")

	_, err = driverDSN("Server=db;garbage;")
	assert.Error(t, err, "segment without =")
}

func TestWithDatabase(t *testing.T) {
	got := withDatabase("Server=tcp:h,1444;Database=YellowDB;UID=sa;PWD=x;", "master")
	assert.Equal(t, "Server=tcp:h,1444;UID=sa;PWD=x;Database=master;", got)
	assert.Equal(t, "master", databaseName(got))
}

func TestDatabaseName(t *testing.T) {
	assert.Equal(t, "YellowDB", databaseName("Server=tcp:h,1444;Database=YellowDB;UID=sa;PWD=x;"))
	assert.Equal(t, "Cat", databaseName("Server=h;Initial Catalog=Cat"))
	assert.Empty(t, databaseName("Server=h;"))
}
