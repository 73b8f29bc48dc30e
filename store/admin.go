package store

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// forbiddenDatabaseChars may not appear in database names.
const forbiddenDatabaseChars = `/\<>'"`

// ValidateDatabaseName returns a *ValidationError wrapping
// ErrInvalidDatabaseName when name is empty or contains any of / \ < > ' ".
func ValidateDatabaseName(name string) error {
	if name == "" {
		return &ValidationError{Name: name, Reason: "name is empty", Err: ErrInvalidDatabaseName}
	}
	if i := strings.IndexAny(name, forbiddenDatabaseChars); i >= 0 {
		return &ValidationError{
			Name:   name,
			Reason: fmt.Sprintf("contains forbidden character %q", name[i]),
			Err:    ErrInvalidDatabaseName,
		}
	}
	return nil
}

// databaseDocument is the body of a database creation request.
type databaseDocument struct {
	Settings map[string]string `json:"Settings"`
	Disabled bool              `json:"Disabled"`
}

// EnsureDatabaseExists creates the named database unless it already exists.
//
// The name is validated before any request; an invalid name fails with a
// *ValidationError. Creation is idempotent: an existing database is also
// OutcomeSuccess. Concurrent calls for the same name share one request.
func (s *Store) EnsureDatabaseExists(ctx context.Context, name string) (Result, error) {
	if err := ValidateDatabaseName(name); err != nil {
		return Result{Outcome: OutcomeFailure}, err
	}

	v, err, shared := s.creating.Do(name, func() (interface{}, error) {
		return s.createDatabase(ctx, name)
	})
	if shared {
		s.logger.Debug("joined in-flight database creation", "database", name)
	}
	res, _ := v.(Result)
	return res, err
}

func (s *Store) createDatabase(ctx context.Context, name string) (res Result, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("ensure_database", res.Outcome, time.Since(start)) }()

	body, err := json.Marshal(databaseDocument{
		Settings: map[string]string{"Raven/DataDir": "~/Databases/" + name},
	})
	if err != nil {
		return failure(err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")

	url := s.serverURL + "/admin/databases/" + name
	resp, err := s.do(ctx, http.MethodPut, url, header, body)
	if err != nil {
		return failure(err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		s.logger.Info("database ensured", "database", name, "status", resp.StatusCode)
		return Result{Outcome: OutcomeSuccess, StatusCode: resp.StatusCode}, nil
	case http.StatusConflict:
		s.logger.Debug("database already exists", "database", name)
		return Result{Outcome: OutcomeSuccess, StatusCode: resp.StatusCode}, nil
	default:
		return failure(s.unexpected(http.MethodPut, url, resp))
	}
}

// DatabaseNames lists the databases on the server.
func (s *Store) DatabaseNames(ctx context.Context) (names []string, err error) {
	start := time.Now()
	defer func() {
		outcome := OutcomeSuccess
		if err != nil {
			outcome = OutcomeFailure
		}
		s.metrics.observe("list_databases", outcome, time.Since(start))
	}()

	url := s.serverURL + "/databases"
	resp, err := s.do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, s.unexpected(http.MethodGet, url, resp)
	}

	names, err = decodeDatabaseNames(resp.Body)
	if err != nil {
		return nil, &TransportError{
			Method: http.MethodGet,
			URL:    url,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("decode database names: %w", err),
		}
	}
	return names, nil
}

// decodeDatabaseNames accepts either ["a","b"] or [{"Name":"a"}, ...].
func decodeDatabaseNames(data []byte) ([]string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(raw))
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			names = append(names, name)
			continue
		}
		var obj struct {
			Name string `json:"Name"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, err
		}
		if obj.Name != "" {
			names = append(names, obj.Name)
		}
	}
	return names, nil
}
