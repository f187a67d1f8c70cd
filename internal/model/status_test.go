package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusNew, ParseStatus(" new "))
	assert.Equal(t, Status(""), ParseStatus("   "))
	assert.Equal(t, StatusError, ParseStatus("Error"))
}

func TestAwaitsEnrichment(t *testing.T) {
	assert.True(t, Status("").AwaitsEnrichment())
	assert.True(t, StatusNew.AwaitsEnrichment())
	assert.True(t, Status("new").AwaitsEnrichment())
	assert.False(t, StatusDone.AwaitsEnrichment())
	assert.False(t, StatusError.AwaitsEnrichment())
	assert.False(t, StatusPending.AwaitsEnrichment())
}

func TestTransition(t *testing.T) {
	allowed := [][2]Status{
		{"", StatusPending},
		{StatusNew, StatusPending},
		{StatusError, StatusPending},
		{StatusPending, StatusDone},
		{StatusPending, StatusError},
		{StatusDone, StatusDone},
		{StatusDone, StatusError},
	}
	for _, tr := range allowed {
		assert.NoError(t, Transition(tr[0], tr[1]), "%q -> %q", tr[0], tr[1])
	}

	denied := [][2]Status{
		{StatusNew, StatusDone},
		{StatusDone, StatusPending},
		{StatusError, StatusDone},
		{StatusPending, StatusNew},
	}
	for _, tr := range denied {
		assert.Error(t, Transition(tr[0], tr[1]), "%q -> %q", tr[0], tr[1])
	}
}

func TestRowErrorKind(t *testing.T) {
	re := NewRowError(KindValidation, errors.New("next_action invalid: banana"))
	wrapped := fmt.Errorf("row 3: %w", re)

	assert.Equal(t, KindValidation, KindOf(wrapped))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, "next_action invalid: banana", re.Message)
}

func TestCount(t *testing.T) {
	outcomes := []Outcome{
		{Status: StatusDone, RecordID: "p1", Created: true},
		{Status: StatusDone, RecordID: "p2"},
		{Status: StatusError, Err: &RowError{Kind: KindCollaborator, Message: "boom"}},
		{Status: StatusDone},
	}

	assert.Equal(t, Tally{Done: 3, Errors: 1, Created: 1, Updated: 1}, Count(outcomes))
}

func TestStamp(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	ts := time.Date(2026, 3, 1, 10, 0, 5, 900_000_000, loc)

	assert.Equal(t, "2026-03-01T09:00:05Z", Stamp(ts))
}
