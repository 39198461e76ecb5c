package models

import "fmt"

// SimilarityMatch is one semantic search result. Similarity is
// 1 - cosine_distance; floating-point noise may push it fractionally
// outside [0,1] and is left as-is.
type SimilarityMatch struct {
	ContactID    string  `json:"contact_id"`
	Name         string  `json:"name"`
	Organization string  `json:"organization,omitempty"`
	Role         string  `json:"role,omitempty"`
	Similarity   float64 `json:"similarity"`
}

// ItemError records a per-contact failure during a batch run.
type ItemError struct {
	ContactID string `json:"contact_id"`
	Message   string `json:"error"`
}

func (e ItemError) String() string {
	return fmt.Sprintf("%s: %s", e.ContactID, e.Message)
}

// BatchOutcome aggregates the result of one embedding batch run.
// Errors preserves the order in which failures occurred. A populated
// Errors list still counts as a successful run; only request-level
// validation failures abort a batch.
type BatchOutcome struct {
	Processed int         `json:"processed"`
	Created   int         `json:"created"`
	Updated   int         `json:"updated"`
	Skipped   int         `json:"skipped"`
	Errors    []ItemError `json:"errors"`
}

// ErrorStrings renders the error list in "contact_id: message" form
// for the HTTP response shape.
func (o *BatchOutcome) ErrorStrings() []string {
	out := make([]string, 0, len(o.Errors))
	for _, e := range o.Errors {
		out = append(out, e.String())
	}
	return out
}
