package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Headers of the document protocol.
const (
	HeaderEntityName   = "Raven-Entity-Name"
	HeaderETag         = "ETag"
	HeaderLastModified = "Last-Modified"

	// HeaderPrecondition carries the etag a conditional write expects the
	// stored document to have. The server answers 409 when it differs.
	HeaderPrecondition = "If-None-Match"
)

// getDocumentsLimit bounds the concurrent reads issued by GetDocuments.
const getDocumentsLimit = 8

// Store is a client for one server and one active database.
// It is safe for concurrent use and never caches documents or etags.
type Store struct {
	transport   Transport
	logger      *slog.Logger
	metrics     *Metrics
	conventions *Conventions
	serverURL   string
	occ         bool

	mu       sync.RWMutex
	database string
	baseURL  string
	keyGen   KeyGenerator

	creating singleflight.Group
}

// Open creates a Store for a bare server URL with default settings.
func Open(serverURL string) (*Store, error) {
	cfg := DefaultConfig()
	cfg.ServerURL = serverURL
	return New(cfg)
}

// New creates a new Store instance.
//
// It fails with a *ConfigError wrapping ErrNoServerURL when neither
// config.ServerURL nor config.ConnectionString yields a URL.
func New(config Config) (*Store, error) {
	conn, err := config.resolve()
	if err != nil {
		return nil, err
	}
	config.validate()

	transport := config.Transport
	if transport == nil {
		transport = NewHTTPTransport(HTTPTransportConfig{
			HTTPClient:        config.HTTPClient,
			MaxRetries:        config.MaxRetries,
			RetryWaitMin:      config.RetryWaitMin,
			RetryWaitMax:      config.RetryWaitMax,
			RequestsPerSecond: config.RequestsPerSecond,
			Logger:            config.Logger,
		})
	}

	s := &Store{
		transport:   transport,
		logger:      config.Logger,
		metrics:     config.Metrics,
		conventions: config.Conventions,
		serverURL:   conn.serverURL,
		occ:         conn.useOptimisticConcurrency,
		keyGen:      config.KeyGenerator,
	}
	s.setDatabaseLocked(conn.database)
	return s, nil
}

// BaseURL returns the URL document and index requests are issued against:
// the server URL, or "<server>/databases/<name>" when a database is active.
func (s *Store) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseURL
}

// ServerURL returns the server root used for administrative requests.
func (s *Store) ServerURL() string {
	return s.serverURL
}

// Database returns the active database name, or "" for the default database.
func (s *Store) Database() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.database
}

// UseOptimisticConcurrency reports whether writes carry an etag precondition.
func (s *Store) UseOptimisticConcurrency() bool {
	return s.occ
}

// UseDatabase switches subsequent requests to the named database.
// An empty name switches back to the server's default database.
func (s *Store) UseDatabase(name string) {
	s.mu.Lock()
	s.setDatabaseLocked(name)
	s.mu.Unlock()
	s.logger.Info("using database", "database", name, "baseURL", s.BaseURL())
}

func (s *Store) setDatabaseLocked(name string) {
	s.database = name
	if name == "" {
		s.baseURL = s.serverURL
		return
	}
	s.baseURL = s.serverURL + "/databases/" + name
}

// KeyGenerator returns the active key generator.
func (s *Store) KeyGenerator() KeyGenerator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keyGen
}

// SetKeyGenerator replaces the key generator. Nil restores the default.
func (s *Store) SetKeyGenerator(g KeyGenerator) {
	if g == nil {
		g = NewUUIDKeyGenerator()
	}
	s.mu.Lock()
	s.keyGen = g
	s.mu.Unlock()
}

// Conventions returns the entity naming conventions.
func (s *Store) Conventions() *Conventions {
	return s.conventions
}

// GenerateDocumentKey assigns a key to doc when it has none and returns the
// document's key. A nil doc only generates a key.
func (s *Store) GenerateDocumentKey(ctx context.Context, entityName string, doc *Document) (string, error) {
	if entityName == "" {
		return "", &KeyGenerationError{Err: ErrEmptyEntityName}
	}
	if doc != nil && doc.ID != "" {
		return doc.ID, nil
	}

	key, err := s.KeyGenerator().GenerateKey(ctx, s.conventions.CollectionName(entityName))
	if err != nil {
		return "", &KeyGenerationError{EntityName: entityName, Err: err}
	}
	if doc != nil {
		doc.ID = key
	}
	return key, nil
}

// StoreDocument writes doc, generating a key first when doc.ID is empty.
//
// A document without Metadata.EntityName is a programmer error: it is
// rejected with a *ContractError wrapping ErrMissingMetadata before a key is
// generated or any request is made.
func (s *Store) StoreDocument(ctx context.Context, doc *Document) (Result, error) {
	if doc == nil {
		return Result{}, &ContractError{Op: "store", Err: ErrNilDocument}
	}
	if doc.Metadata.EntityName == "" {
		return Result{}, &ContractError{Op: "store", Err: ErrMissingMetadata}
	}
	if _, err := s.GenerateDocumentKey(ctx, doc.Metadata.EntityName, doc); err != nil {
		return Result{}, err
	}
	return s.PutDocument(ctx, doc.ID, doc)
}

// PutDocument writes doc under key.
//
// With optimistic concurrency enabled and a known etag, the write is
// conditional: a stale etag yields OutcomeConflict and a nil error. On
// success doc.ID is set to key and doc.Metadata.ETag to the new version.
func (s *Store) PutDocument(ctx context.Context, key string, doc *Document) (res Result, err error) {
	if doc == nil {
		return Result{}, &ContractError{Op: "put", Err: ErrNilDocument}
	}
	start := time.Now()
	defer func() { s.metrics.observe("put", res.Outcome, time.Since(start)) }()

	body, err := encodeFields(doc.Fields)
	if err != nil {
		return failure(fmt.Errorf("ravenstore: encode %s: %w", key, err))
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if doc.Metadata.EntityName != "" {
		header.Set(HeaderEntityName, doc.Metadata.EntityName)
	}
	if s.occ && doc.Metadata.ETag != "" {
		header.Set(HeaderPrecondition, doc.Metadata.ETag)
	}

	url := s.docURL(key)
	resp, err := s.do(ctx, http.MethodPut, url, header, body)
	if err != nil {
		return failure(err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		etag := writtenETag(resp)
		doc.ID = key
		if etag != "" {
			doc.Metadata.ETag = etag
		}
		return Result{Outcome: OutcomeSuccess, StatusCode: resp.StatusCode, Document: doc, ETag: etag}, nil
	case http.StatusConflict:
		s.logger.Warn("document version conflict",
			"key", key,
			"etag", doc.Metadata.ETag,
		)
		return Result{Outcome: OutcomeConflict, StatusCode: resp.StatusCode}, nil
	default:
		return failure(s.unexpected(http.MethodPut, url, resp))
	}
}

// GetDocument reads the document stored under key.
// A missing document yields OutcomeNotFound, a nil Document and a nil error.
// Fields are decoded as generic JSON, so numbers come back as float64.
func (s *Store) GetDocument(ctx context.Context, key string) (res Result, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("get", res.Outcome, time.Since(start)) }()

	url := s.docURL(key)
	resp, err := s.do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return failure(err)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return Result{Outcome: OutcomeNotFound, StatusCode: resp.StatusCode}, nil
	case http.StatusOK:
		doc, err := decodeDocument(key, resp)
		if err != nil {
			return failure(&TransportError{
				Method: http.MethodGet,
				URL:    url,
				Status: resp.StatusCode,
				Err:    fmt.Errorf("decode document: %w", err),
			})
		}
		return Result{
			Outcome:    OutcomeSuccess,
			StatusCode: resp.StatusCode,
			Document:   doc,
			ETag:       doc.Metadata.ETag,
		}, nil
	default:
		return failure(s.unexpected(http.MethodGet, url, resp))
	}
}

// GetDocuments reads several documents concurrently. Results are in key
// order. The first failed read cancels the remaining ones.
func (s *Store) GetDocuments(ctx context.Context, keys ...string) ([]Result, error) {
	results := make([]Result, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(getDocumentsLimit)

	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			res, err := s.GetDocument(ctx, key)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// DeleteDocument removes the document stored under key. With optimistic
// concurrency enabled and a non-empty etag, the delete is conditional.
func (s *Store) DeleteDocument(ctx context.Context, key, etag string) (res Result, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("delete", res.Outcome, time.Since(start)) }()

	header := http.Header{}
	if s.occ && etag != "" {
		header.Set(HeaderPrecondition, etag)
	}

	url := s.docURL(key)
	resp, err := s.do(ctx, http.MethodDelete, url, header, nil)
	if err != nil {
		return failure(err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return Result{Outcome: OutcomeSuccess, StatusCode: resp.StatusCode}, nil
	case http.StatusNotFound:
		return Result{Outcome: OutcomeNotFound, StatusCode: resp.StatusCode}, nil
	case http.StatusConflict:
		s.logger.Warn("document version conflict on delete", "key", key, "etag", etag)
		return Result{Outcome: OutcomeConflict, StatusCode: resp.StatusCode}, nil
	default:
		return failure(s.unexpected(http.MethodDelete, url, resp))
	}
}

// docURL returns the document endpoint. Keys are not escaped.
func (s *Store) docURL(key string) string {
	return s.BaseURL() + "/docs/" + key
}

// do performs one exchange and wraps transport failures.
func (s *Store) do(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	resp, err := s.transport.Do(ctx, &Request{
		Method: method,
		URL:    url,
		Header: header,
		Body:   body,
	})
	if err != nil {
		s.logger.Error("request failed",
			"method", method,
			"url", url,
			"error", err,
		)
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}
	s.logger.Debug("request completed",
		"method", method,
		"url", url,
		"status", resp.StatusCode,
	)
	return resp, nil
}

// unexpected builds the error for a status the protocol does not expect.
func (s *Store) unexpected(method, url string, resp *Response) error {
	detail := string(resp.Body)
	if len(detail) > 256 {
		detail = detail[:256]
	}
	s.logger.Warn("unexpected response status",
		"method", method,
		"url", url,
		"status", resp.StatusCode,
	)
	return &TransportError{
		Method: method,
		URL:    url,
		Status: resp.StatusCode,
		Err:    fmt.Errorf("%w: %s", ErrUnexpectedStatus, detail),
	}
}

// encodeFields encodes the data fields as the request body.
func encodeFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(fields)
}

// writtenETag reads the new etag from a write response body, falling back
// to the ETag header.
func writtenETag(resp *Response) string {
	var body struct {
		ETag string `json:"ETag"`
	}
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &body) == nil && body.ETag != "" {
		return trimETag(body.ETag)
	}
	return trimETag(resp.Header.Get(HeaderETag))
}

// decodeDocument builds a document from a read response.
// Metadata comes from the response headers.
func decodeDocument(key string, resp *Response) (*Document, error) {
	var m map[string]any
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &m); err != nil {
			return nil, err
		}
	}
	doc := documentFromMap(m)
	doc.ID = key
	if v := resp.Header.Get(HeaderEntityName); v != "" {
		doc.Metadata.EntityName = v
	}
	if v := resp.Header.Get(HeaderETag); v != "" {
		doc.Metadata.ETag = trimETag(v)
	}
	if v := resp.Header.Get(HeaderLastModified); v != "" {
		doc.Metadata.LastModified = v
	}
	return doc, nil
}
