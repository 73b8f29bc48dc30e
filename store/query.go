package store

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Term is a single field:value criterion. Value may contain '*' wildcards.
type Term struct {
	Field string
	Value string
}

// Criteria is an ordered list of terms. Order is preserved in the encoded query.
type Criteria []Term

// Where starts a Criteria with one term.
func Where(field, value string) Criteria {
	return Criteria{{Field: field, Value: value}}
}

// And appends a term.
func (c Criteria) And(field, value string) Criteria {
	return append(c, Term{Field: field, Value: value})
}

// String returns the unencoded query, e.g. "Name:Chris Surname:Sainty".
func (c Criteria) String() string {
	parts := make([]string, len(c))
	for i, t := range c {
		parts[i] = t.Field + ":" + t.Value
	}
	return strings.Join(parts, " ")
}

// BuildQuery encodes criteria for the query parameter of an index request:
// "field:value" pairs joined by spaces, in order, with the whole string
// percent-encoded as by JavaScript's encodeURIComponent.
//
//	BuildQuery(Where("Name", "Chris").And("Surname", "Sainty"))
//	// "Name%3AChris%20Surname%3ASainty"
func BuildQuery(c Criteria) string {
	if len(c) == 0 {
		return ""
	}
	return encodeURIComponent(c.String())
}

// uriComponentUnescape restores the characters encodeURIComponent leaves
// alone but url.QueryEscape encodes.
var uriComponentUnescape = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

func encodeURIComponent(s string) string {
	return uriComponentUnescape.Replace(url.QueryEscape(s))
}

// QueryOptions configures QueryIndex.
type QueryOptions struct {
	Query Criteria

	// WaitForNonStaleResults asks the server to wait until the index has
	// caught up. The client neither retries nor polls.
	WaitForNonStaleResults bool

	// Start and PageSize page through results. Zero values are not sent.
	Start    int
	PageSize int
}

// QueryResult is the answer of an index query.
//
// Outcome is OutcomeNotFound when the index does not exist; the remaining
// fields are then empty.
type QueryResult struct {
	Outcome      Outcome
	StatusCode   int
	IndexName    string
	IsStale      bool
	TotalResults int
	Results      []*Document
}

// queryResponse is the wire form of QueryResult.
type queryResponse struct {
	IndexName    string           `json:"IndexName"`
	IsStale      bool             `json:"IsStale"`
	TotalResults int              `json:"TotalResults"`
	Results      []map[string]any `json:"Results"`
}

// QueryIndex queries a named index. Staleness is reported as returned by the
// server. An unknown index yields OutcomeNotFound and a nil error; any other
// status except 200 is returned as a *TransportError.
func (s *Store) QueryIndex(ctx context.Context, indexName string, opts QueryOptions) (qr *QueryResult, err error) {
	start := time.Now()
	defer func() {
		outcome := OutcomeFailure
		if err == nil {
			outcome = qr.Outcome
		}
		s.metrics.observe("query", outcome, time.Since(start))
	}()

	u := s.indexURL(indexName, opts)
	resp, err := s.do(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		s.logger.Debug("index not found", "index", indexName)
		return &QueryResult{Outcome: OutcomeNotFound, StatusCode: resp.StatusCode, IndexName: indexName}, nil
	default:
		return nil, s.unexpected(http.MethodGet, u, resp)
	}

	var wire queryResponse
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, &TransportError{
			Method: http.MethodGet,
			URL:    u,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("decode query result: %w", err),
		}
	}

	qr = &QueryResult{
		Outcome:      OutcomeSuccess,
		StatusCode:   resp.StatusCode,
		IndexName:    wire.IndexName,
		IsStale:      wire.IsStale,
		TotalResults: wire.TotalResults,
		Results:      make([]*Document, 0, len(wire.Results)),
	}
	for _, raw := range wire.Results {
		qr.Results = append(qr.Results, documentFromMap(raw))
	}

	s.logger.Debug("index queried",
		"index", indexName,
		"query", opts.Query.String(),
		"isStale", qr.IsStale,
		"totalResults", qr.TotalResults,
	)
	return qr, nil
}

// indexURL builds "<base>/indexes/<name>?query=...". The query value is
// already encoded and is appended verbatim.
func (s *Store) indexURL(indexName string, opts QueryOptions) string {
	var b strings.Builder
	b.WriteString(s.BaseURL())
	b.WriteString("/indexes/")
	b.WriteString(indexName)
	b.WriteString("?query=")
	b.WriteString(BuildQuery(opts.Query))
	if opts.WaitForNonStaleResults {
		b.WriteString("&waitForNonStaleResults=true")
	}
	if opts.Start > 0 {
		b.WriteString("&start=")
		b.WriteString(strconv.Itoa(opts.Start))
	}
	if opts.PageSize > 0 {
		b.WriteString("&pageSize=")
		b.WriteString(strconv.Itoa(opts.PageSize))
	}
	return b.String()
}
