package sqlserver

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// driverDSN turns an ADO-style connection string such as
//
//	Server=tcp:127.0.0.1,1444;Database=YellowDB;UID=sa;PWD=secret;
//
// into the sqlserver:// URL form the driver parses unambiguously. The
// tcp: prefix and the comma-separated port are ADO conventions the URL
// form has no room for.
func driverDSN(connString string) (string, error) {
	u := &url.URL{Scheme: "sqlserver"}
	query := url.Values{}

	var host, port, user, password string
	for _, part := range strings.Split(connString, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return "", fmt.Errorf("malformed connection string segment %q", part)
		}

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "server", "data source", "address", "addr":
			host, port = splitServer(strings.TrimSpace(value))
		case "database", "initial catalog":
			query.Set("database", value)
		case "uid", "user id", "user":
			user = value
		case "pwd", "password":
			password = value
		default:
			query.Set(strings.TrimSpace(key), value)
		}
	}

	if host == "" {
		return "", fmt.Errorf("connection string has no server")
	}

	u.Host = host
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	}
	if user != "" {
		u.User = url.UserPassword(user, password)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// withDatabase returns connString pointing at database instead.
func withDatabase(connString, database string) string {
	var parts []string
	for _, part := range strings.Split(connString, ";") {
		key, _, _ := strings.Cut(part, "=")
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "database", "initial catalog":
			continue
		case "":
			continue
		}
		parts = append(parts, part)
	}
	parts = append(parts, "Database="+database)
	return strings.Join(parts, ";") + ";"
}

// databaseName extracts the Database value from connString.
func databaseName(connString string) string {
	for _, part := range strings.Split(connString, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "database", "initial catalog":
			return value
		}
	}
	return ""
}

func splitServer(server string) (host, port string) {
	server = strings.TrimPrefix(server, "tcp:")
	if h, p, ok := strings.Cut(server, ","); ok {
		return strings.TrimSpace(h), strings.TrimSpace(p)
	}
	return server, ""
}
