package model

import (
	"fmt"
	"strings"
)

// Status is the llm_status of a row.
type Status string

const (
	StatusNew     Status = "NEW"
	StatusPending Status = "PENDING"
	StatusDone    Status = "DONE"
	StatusError   Status = "ERROR"
)

// ParseStatus normalises a stored status cell. Unknown values are kept
// upper-cased so they survive a round trip, but never select for enrichment.
func ParseStatus(s string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// AwaitsEnrichment reports whether a row in this status is selected by the
// enrichment stage: NEW or empty.
func (s Status) AwaitsEnrichment() bool {
	n := ParseStatus(string(s))
	return n == StatusNew || n == ""
}

// transitions lists the allowed llm_status moves. The empty status behaves as
// NEW. ERROR re-enters PENDING on retry; DONE moves to ERROR when publication
// of an enriched row fails.
var transitions = map[Status][]Status{
	"":            {StatusPending},
	StatusNew:     {StatusPending},
	StatusError:   {StatusPending},
	StatusPending: {StatusDone, StatusError},
	StatusDone:    {StatusDone, StatusError},
}

// Transition checks that a row may move from one status to another.
func Transition(from, to Status) error {
	from, to = ParseStatus(string(from)), ParseStatus(string(to))
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("illegal llm_status transition %q -> %q", from, to)
}
