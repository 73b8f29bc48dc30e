package store

// Outcome discriminates the result of an operation.
type Outcome int

const (
	// OutcomeFailure means the operation did not execute; the accompanying error says why.
	OutcomeFailure Outcome = iota

	// OutcomeSuccess means the operation executed and the server accepted it.
	OutcomeSuccess

	// OutcomeConflict means a conditional write was rejected because the etag was stale.
	OutcomeConflict

	// OutcomeNotFound means the addressed document does not exist.
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeConflict:
		return "conflict"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "failure"
	}
}

// Result describes an executed request.
//
// Conflict and NotFound are routine outcomes and are never reported through
// the error return.
type Result struct {
	Outcome Outcome

	// StatusCode is the HTTP status of the exchange (0 when none was received).
	StatusCode int

	// Document is set by reads that found a document and by successful writes.
	Document *Document

	// ETag is the version tag reported by the server, if any.
	ETag string
}

// OK reports whether the outcome is OutcomeSuccess.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

func failure(err error) (Result, error) {
	return Result{Outcome: OutcomeFailure, StatusCode: statusOf(err)}, err
}
