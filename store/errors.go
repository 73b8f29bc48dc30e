package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNoServerURL is returned when neither a server URL nor a connection string resolves to a URL.
	ErrNoServerURL = errors.New("ravenstore: no server url configured")

	// ErrMissingMetadata is returned when a document without an entity name is stored.
	ErrMissingMetadata = errors.New("ravenstore: document has no entity name metadata")

	// ErrNilDocument is returned when a nil document is written.
	ErrNilDocument = errors.New("ravenstore: document is nil")

	// ErrEmptyEntityName is returned when a key is requested for an empty entity name.
	ErrEmptyEntityName = errors.New("ravenstore: entity name is empty")

	// ErrInvalidDatabaseName is returned when a database name contains forbidden characters.
	ErrInvalidDatabaseName = errors.New("ravenstore: invalid database name")

	// ErrUnexpectedStatus is returned when the server answers with a status the protocol does not expect.
	ErrUnexpectedStatus = errors.New("ravenstore: unexpected response status")
)

// ConfigError reports a store that cannot be constructed from its configuration.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("ravenstore: config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ContractError reports a programmer error: the call was rejected before any I/O.
type ContractError struct {
	Op  string
	Err error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("ravenstore: %s: %v", e.Op, e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

// ValidationError reports an argument rejected before any network call.
type ValidationError struct {
	Name   string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v %q: %s", e.Err, e.Name, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransportError reports a request that failed to execute: either the
// exchange itself failed or the server answered with an unexpected status.
//
// The HTTP status, when there was one, is available via StatusCode.
type TransportError struct {
	Method string
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ravenstore: %s %s: status %d: %v", e.Method, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("ravenstore: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status of the failed exchange, or 0 when no response was received.
func (e *TransportError) StatusCode() int { return e.Status }

// KeyGenerationError reports a failure to assign a document key.
type KeyGenerationError struct {
	EntityName string
	Err        error
}

func (e *KeyGenerationError) Error() string {
	if e.EntityName == "" {
		return fmt.Sprintf("ravenstore: generate key: %v", e.Err)
	}
	return fmt.Sprintf("ravenstore: generate key for %q: %v", e.EntityName, e.Err)
}

func (e *KeyGenerationError) Unwrap() error { return e.Err }

// statusOf extracts the HTTP status carried by err, if any.
func statusOf(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Status
	}
	return 0
}
