package model

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes a per-row failure.
type ErrorKind string

const (
	// KindValidation marks an enrichment result that failed schema checks.
	KindValidation ErrorKind = "validation"

	// KindCollaborator marks a fault raised by the enrichment model or the
	// hosted store.
	KindCollaborator ErrorKind = "collaborator"

	// KindPanic marks a panic recovered while processing a single row.
	KindPanic ErrorKind = "panic"
)

// RowError is the tagged error recorded for one row. It never propagates out
// of a stage; its Message becomes the row's error_msg.
type RowError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *RowError) Unwrap() error {
	return e.Err
}

// NewRowError builds a RowError whose message is the cause's text.
func NewRowError(kind ErrorKind, err error) *RowError {
	return &RowError{Kind: kind, Message: err.Error(), Err: err}
}

// KindOf returns the ErrorKind of err, or "" when err is not a RowError.
func KindOf(err error) ErrorKind {
	var re *RowError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// Outcome is the typed result of processing one row in a stage.
type Outcome struct {
	// Index is the row's position in the stage's row slice.
	Index int

	// Key is the row's identity key.
	Key string

	// Status is the row's llm_status after the stage.
	Status Status

	// RecordID is the external record written by the publication stage.
	RecordID string

	// Created is true when the publication stage created the external record.
	Created bool

	// Err is nil on success.
	Err *RowError
}

// OK reports whether the row succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Tally counts outcomes by result.
type Tally struct {
	Done    int `json:"done"`
	Errors  int `json:"errors"`
	Created int `json:"created,omitempty"`
	Updated int `json:"updated,omitempty"`
}

// Count tallies a stage's outcomes.
func Count(outcomes []Outcome) Tally {
	var t Tally
	for _, o := range outcomes {
		if !o.OK() {
			t.Errors++
			continue
		}
		t.Done++
		if o.RecordID != "" {
			if o.Created {
				t.Created++
			} else {
				t.Updated++
			}
		}
	}
	return t
}
