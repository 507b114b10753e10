package config

import (
	"fmt"
	"time"
)

// Database holds the SQL Server connection settings.
//
// Defaults apply only when a variable is unset; a variable set to the empty
// string is used as-is.
type Database struct {
	Host     string `env:"DBHOST" default:"127.0.0.1"`
	Port     string `env:"DBPORT" default:"1444"`
	User     string `env:"DBUSER" default:"sa"`
	Password string `env:"DBPASSWORD" default:"SqlPassword!"`
	Name     string `env:"DBNAME" default:"YellowDB"`

	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"30s"`
}

// ConnectionString renders the settings as
// Server=tcp:{host},{port};Database={db};UID={user};PWD={pwd};
// The values are interpolated verbatim.
func (d Database) ConnectionString() string {
	return fmt.Sprintf("Server=tcp:%s,%s;Database=%s;UID=%s;PWD=%s;", d.Host, d.Port, d.Name, d.User, d.Password)
}

// Redacted returns the connection string with the password masked, for logs.
func (d Database) Redacted() string {
	masked := d
	if masked.Password != "" {
		masked.Password = "****"
	}
	return masked.ConnectionString()
}
