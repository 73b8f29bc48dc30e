// Package ravenfake provides an in-memory document server speaking the
// HTTP protocol the store package expects. It is meant for tests.
package ravenfake

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Server is an httptest.Server backed by in-memory databases.
// The default database always exists; named databases must be created.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	databases map[string]*database
	etagSeq   int64
	requests  int
}

type database struct {
	docs    map[string]*document
	indexes map[string]*index
}

type document struct {
	fields     map[string]any
	entityName string
	etag       string
	modified   time.Time
}

type index struct {
	entityName string
	stale      bool
}

func newDatabase() *database {
	return &database{
		docs:    make(map[string]*document),
		indexes: make(map[string]*index),
	}
}

// New starts a Server. Call Close when done.
func New() *Server {
	s := &Server{
		databases: map[string]*database{"": newDatabase()},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	return s
}

// Requests returns the number of requests served so far.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// CreateDatabase creates a named database if it does not exist.
func (s *Server) CreateDatabase(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.databases[name]; !ok {
		s.databases[name] = newDatabase()
	}
}

// Put stores a document directly and returns its etag.
// The database is created if needed.
func (s *Server) Put(db, key, entityName string, fields map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.databases[db]
	if !ok {
		d = newDatabase()
		s.databases[db] = d
	}
	return s.storeLocked(d, key, entityName, fields)
}

// Doc returns a stored document's fields, entity name and etag.
func (s *Server) Doc(db, key string) (fields map[string]any, entityName, etag string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, found := s.databases[db]
	if !found {
		return nil, "", "", false
	}
	doc, found := d.docs[strings.ToLower(key)]
	if !found {
		return nil, "", "", false
	}
	return doc.fields, doc.entityName, doc.etag, true
}

// DefineIndex creates an index over documents of entityName.
// An empty entityName indexes every document.
func (s *Server) DefineIndex(db, name, entityName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.databases[db]
	if !ok {
		d = newDatabase()
		s.databases[db] = d
	}
	d.indexes[name] = &index{entityName: entityName}
}

// SetStale marks an index as lagging behind writes. Stale indexes report
// IsStale unless the query asks to wait for non-stale results.
func (s *Server) SetStale(db, name string, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.databases[db]; ok {
		if idx, ok := d.indexes[name]; ok {
			idx.stale = stale
		}
	}
}

func (s *Server) storeLocked(d *database, key, entityName string, fields map[string]any) string {
	s.etagSeq++
	etag := fmt.Sprintf("00000000-0000-0000-0000-%012d", s.etagSeq)
	if fields == nil {
		fields = map[string]any{}
	}
	d.docs[strings.ToLower(key)] = &document{
		fields:     fields,
		entityName: entityName,
		etag:       etag,
		modified:   time.Now().UTC(),
	}
	return etag
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	path := r.URL.Path
	dbName := ""
	if rest, ok := strings.CutPrefix(path, "/databases/"); ok {
		name, sub, found := strings.Cut(rest, "/")
		if !found {
			writeError(w, http.StatusNotFound, "no such endpoint")
			return
		}
		dbName = name
		path = "/" + sub
	}

	switch {
	case path == "/databases" && dbName == "" && r.Method == http.MethodGet:
		s.listDatabases(w)
	case strings.HasPrefix(path, "/admin/databases/") && dbName == "" && r.Method == http.MethodPut:
		s.createDatabase(w, strings.TrimPrefix(path, "/admin/databases/"))
	case strings.HasPrefix(path, "/docs/"):
		d, ok := s.databases[dbName]
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "Could not find a database named: "+dbName)
			return
		}
		s.serveDocument(w, r, d, strings.TrimPrefix(path, "/docs/"))
	case strings.HasPrefix(path, "/indexes/") && r.Method == http.MethodGet:
		d, ok := s.databases[dbName]
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "Could not find a database named: "+dbName)
			return
		}
		s.queryIndex(w, r, d, strings.TrimPrefix(path, "/indexes/"))
	default:
		writeError(w, http.StatusNotFound, "no such endpoint")
	}
}

func (s *Server) listDatabases(w http.ResponseWriter) {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) createDatabase(w http.ResponseWriter, name string) {
	if _, ok := s.databases[name]; ok {
		writeJSON(w, http.StatusOK, map[string]string{"Name": name})
		return
	}
	s.databases[name] = newDatabase()
	writeJSON(w, http.StatusCreated, map[string]string{"Name": name})
}

func (s *Server) serveDocument(w http.ResponseWriter, r *http.Request, d *database, key string) {
	id := strings.ToLower(key)
	existing, exists := d.docs[id]
	expected := strings.Trim(r.Header.Get("If-None-Match"), `"`)

	switch r.Method {
	case http.MethodGet:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Raven-Entity-Name", existing.entityName)
		w.Header().Set("ETag", `"`+existing.etag+`"`)
		w.Header().Set("Last-Modified", existing.modified.Format(http.TimeFormat))
		writeJSON(w, http.StatusOK, existing.fields)

	case http.MethodPut:
		if exists && expected != "" && expected != existing.etag {
			writeError(w, http.StatusConflict, "PUT attempted on document '"+key+"' using a non current etag")
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		etag := s.storeLocked(d, key, r.Header.Get("Raven-Entity-Name"), fields)
		w.Header().Set("ETag", `"`+etag+`"`)
		writeJSON(w, http.StatusCreated, map[string]string{"Key": key, "ETag": etag})

	case http.MethodDelete:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if expected != "" && expected != existing.etag {
			writeError(w, http.StatusConflict, "DELETE attempted on document '"+key+"' using a non current etag")
			return
		}
		delete(d.docs, id)
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, r.Method)
	}
}

type term struct {
	field string
	value string
}

func (s *Server) queryIndex(w http.ResponseWriter, r *http.Request, d *database, name string) {
	idx, ok := d.indexes[name]
	if !ok {
		writeError(w, http.StatusNotFound, "index not found: "+name)
		return
	}

	q := r.URL.Query()
	var terms []term
	for _, part := range strings.Fields(q.Get("query")) {
		field, value, _ := strings.Cut(part, ":")
		terms = append(terms, term{field: field, value: value})
	}

	keys := make([]string, 0, len(d.docs))
	for id, doc := range d.docs {
		if idx.entityName != "" && doc.entityName != idx.entityName {
			continue
		}
		if matchesAny(id, doc, terms) {
			keys = append(keys, id)
		}
	}
	sort.Strings(keys)

	total := len(keys)
	start, _ := strconv.Atoi(q.Get("start"))
	if start > len(keys) {
		start = len(keys)
	}
	keys = keys[start:]
	if pageSize, _ := strconv.Atoi(q.Get("pageSize")); pageSize > 0 && pageSize < len(keys) {
		keys = keys[:pageSize]
	}

	results := make([]map[string]any, 0, len(keys))
	for _, id := range keys {
		doc := d.docs[id]
		item := make(map[string]any, len(doc.fields)+1)
		for k, v := range doc.fields {
			item[k] = v
		}
		item["@metadata"] = map[string]any{
			"Raven-Entity-Name": doc.entityName,
			"@id":               id,
			"@etag":             doc.etag,
		}
		results = append(results, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"IndexName":    name,
		"IsStale":      idx.stale && q.Get("waitForNonStaleResults") != "true",
		"TotalResults": total,
		"Results":      results,
	})
}

// matchesAny applies Lucene's default OR operator. No terms matches all.
func matchesAny(id string, doc *document, terms []term) bool {
	if len(terms) == 0 {
		return true
	}
	for _, t := range terms {
		var actual string
		switch strings.ToLower(t.field) {
		case "id", "__document_id":
			actual = id
		default:
			v, ok := doc.fields[t.field]
			if !ok {
				continue
			}
			actual = fmt.Sprint(v)
		}
		if matches(actual, t.value) {
			return true
		}
	}
	return false
}

// matches compares case-insensitively; a trailing '*' matches any suffix.
func matches(actual, pattern string) bool {
	actual = strings.ToLower(actual)
	pattern = strings.ToLower(pattern)
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(actual, prefix)
	}
	return actual == pattern
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"Error": msg})
}
