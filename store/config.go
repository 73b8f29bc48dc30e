package store

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the Store.
//
// Explicit fields take precedence over values parsed from ConnectionString.
// UseOptimisticConcurrency is enabled when either source enables it.
type Config struct {
	// ServerURL is the root URL of the server, e.g. "http://localhost:8080".
	ServerURL string

	// ConnectionString is a ';' or ',' separated list of key=value pairs.
	// Recognized keys: Url, Database, UseOptimisticConcurrency.
	ConnectionString string

	// DatabaseName scopes document and index operations to a named database.
	// Empty means the server's default database.
	DatabaseName string

	// UseOptimisticConcurrency sends the document etag as a write precondition.
	UseOptimisticConcurrency bool

	// MaxRetries is the number of retries after a connection-level failure.
	// HTTP statuses are never retried.
	// Default: 3
	MaxRetries int

	// RetryWaitMin and RetryWaitMax bound the backoff between retries.
	// Default: 100ms and 2s
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// RequestsPerSecond throttles outgoing requests. Zero disables throttling.
	RequestsPerSecond float64

	// HTTPClient is the client used by the default transport.
	// Default: a pooled client from go-cleanhttp.
	HTTPClient *http.Client

	// Transport replaces the default HTTP transport entirely.
	Transport Transport

	// KeyGenerator assigns keys to new documents.
	// Default: UUIDKeyGenerator
	KeyGenerator KeyGenerator

	// Conventions maps entity names to collection names.
	Conventions *Conventions

	// Logger receives request logs. Default: slog.Default()
	Logger *slog.Logger

	// Metrics records per-operation counters and latencies. Nil disables metrics.
	Metrics *Metrics
}

// DefaultConfig returns sensible defaults for a single server.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryWaitMin <= 0 {
		c.RetryWaitMin = 100 * time.Millisecond
	}
	if c.RetryWaitMax < c.RetryWaitMin {
		c.RetryWaitMax = c.RetryWaitMin
	}
	if c.RequestsPerSecond < 0 {
		c.RequestsPerSecond = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Conventions == nil {
		c.Conventions = NewConventions()
	}
	if c.KeyGenerator == nil {
		c.KeyGenerator = NewUUIDKeyGenerator()
	}
}

// connection is the resolved routing state of a store.
type connection struct {
	serverURL                string
	database                 string
	useOptimisticConcurrency bool
}

// resolve merges the connection string with the explicit fields.
func (c *Config) resolve() (connection, error) {
	var conn connection
	if c.ConnectionString != "" {
		cs, err := ParseConnectionString(c.ConnectionString)
		if err != nil {
			return connection{}, err
		}
		conn.serverURL = cs.URL
		conn.database = cs.Database
		conn.useOptimisticConcurrency = cs.UseOptimisticConcurrency
	}
	if c.ServerURL != "" {
		conn.serverURL = c.ServerURL
	}
	if c.DatabaseName != "" {
		conn.database = c.DatabaseName
	}
	if c.UseOptimisticConcurrency {
		conn.useOptimisticConcurrency = true
	}

	conn.serverURL = strings.TrimSuffix(strings.TrimSpace(conn.serverURL), "/")
	if conn.serverURL == "" {
		return connection{}, &ConfigError{Field: "ServerURL", Err: ErrNoServerURL}
	}
	return conn, nil
}

// ConnectionString is the parsed form of a connection string.
type ConnectionString struct {
	URL                      string
	Database                 string
	UseOptimisticConcurrency bool
}

// ParseConnectionString parses "Url=http://host:8080;Database=Northwind".
// Pairs may be separated by ';' or ','. Keys are case-insensitive and
// unknown keys are ignored.
func ParseConnectionString(s string) (ConnectionString, error) {
	var cs ConnectionString
	pairs := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return ConnectionString{}, &ConfigError{
				Field: "ConnectionString",
				Err:   fmt.Errorf("malformed pair %q", pair),
			}
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case "url":
			cs.URL = value
		case "database":
			cs.Database = value
		case "useoptimisticconcurrency":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return ConnectionString{}, &ConfigError{
					Field: "ConnectionString",
					Err:   fmt.Errorf("UseOptimisticConcurrency: %w", err),
				}
			}
			cs.UseOptimisticConcurrency = b
		}
	}
	return cs, nil
}

// String renders the connection string in canonical form.
func (cs ConnectionString) String() string {
	parts := []string{"Url=" + cs.URL}
	if cs.Database != "" {
		parts = append(parts, "Database="+cs.Database)
	}
	if cs.UseOptimisticConcurrency {
		parts = append(parts, "UseOptimisticConcurrency=true")
	}
	return strings.Join(parts, ";")
}
