// Package config provides environment-based configuration.
//
// Loads from .env file (godotenv), maps to Config struct via go-simpler/env struct tags.
// The database block keeps the DBHOST/DBPORT/DBUSER/DBPASSWORD/DBNAME variables and
// their defaults, and renders the SQL Server connection string from them.
package config
