package stt

import "encoding/json"

// Status classifies one poll answer.
type Status int

const (
	// NotReady means the provider answered but has no text yet.
	NotReady Status = iota
	// Ready means the answer carried non-empty text.
	Ready
	// Failed means the query itself broke (transport, unreadable body).
	// The poll loop still retries.
	Failed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case NotReady:
		return "not_ready"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// PollOutcome is the typed answer of one query.
type PollOutcome struct {
	Status Status
	Text   string
	Reason string

	// StatusCode is the HTTP status, 0 if no response arrived.
	StatusCode int

	// Raw is the decoded document of a successful answer, nil otherwise.
	Raw json.RawMessage

	// RawText is the body as received. Responded is false when there was
	// no body at all.
	RawText   string
	Responded bool

	// Provider-level status echoed in headers, kept for diagnostics.
	ProviderCode    string
	ProviderMessage string
}
