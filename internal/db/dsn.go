package db

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildDSN assembles a postgres:// URL from libpq-style parts. User and
// password are escaped.
func BuildDSN(host, port, user, password, database, sslmode string) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   host + ":" + port,
		Path:   "/" + strings.TrimPrefix(database, "/"),
	}
	if password != "" {
		u.User = url.UserPassword(user, password)
	} else if user != "" {
		u.User = url.User(user)
	}
	if sslmode != "" {
		u.RawQuery = url.Values{"sslmode": {sslmode}}.Encode()
	}
	return u.String()
}

// Redact returns dsn with any password masked, for logging. Supports
// postgres:// and postgresql:// schemes.
func Redact(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("empty DSN")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	return u.Redacted(), nil
}
