package pipeline

import (
	"context"
	"slices"
	"strings"

	"github.com/roach88/jobtrail/internal/document"
	"github.com/roach88/jobtrail/internal/model"
)

// Snapshot is a decoded local working copy.
type Snapshot struct {
	Rows    []model.Row
	Columns []string
}

// ReadLocal reads and decodes the local working copy. A copy that does not
// exist yet fails with an error wrapping document.ErrNotFound.
func ReadLocal(ctx context.Context, src document.Source, fields []string) (Snapshot, error) {
	t, err := src.Read(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Rows: model.Decode(t, fields), Columns: t.Columns}, nil
}

// WriteLocal encodes rows with the snapshot's columns first and replaces the
// local working copy.
func WriteLocal(ctx context.Context, st document.Store, s Snapshot, fields []string) error {
	return st.Write(ctx, model.Encode(s.Rows, s.Columns, fields))
}

// StatusSummary counts the rows of a local copy by llm_status.
type StatusSummary struct {
	Total     int            `json:"total" yaml:"total"`
	ByStatus  map[string]int `json:"by_status" yaml:"by_status"`
	Published int            `json:"published" yaml:"published"`
	Errors    []ErrorRow     `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// ErrorRow is a row in ERROR.
type ErrorRow struct {
	Row          int    `json:"row" yaml:"row"`
	Key          string `json:"key" yaml:"key"`
	Subject      string `json:"subject" yaml:"subject"`
	ProcessedUTC string `json:"processed_utc" yaml:"processed_utc"`
	Message      string `json:"message" yaml:"message"`
}

// Summarize builds a StatusSummary. An empty status counts as NEW.
func Summarize(rows []model.Row) StatusSummary {
	s := StatusSummary{Total: len(rows), ByStatus: map[string]int{}}
	for i, r := range rows {
		st := model.ParseStatus(string(r.Status))
		if st == "" {
			st = model.StatusNew
		}
		s.ByStatus[string(st)]++
		if r.ExternalID != "" {
			s.Published++
		}
		if st == model.StatusError {
			s.Errors = append(s.Errors, ErrorRow{
				Row:          i,
				Key:          short(r.Key()),
				Subject:      r.Intrinsic.Subject,
				ProcessedUTC: r.ProcessedUTC,
				Message:      r.ErrorMsg,
			})
		}
	}
	return s
}

// StatusNames returns the statuses present in s, known statuses first in
// lifecycle order.
func (s StatusSummary) StatusNames() []string {
	known := []string{string(model.StatusNew), string(model.StatusPending), string(model.StatusDone), string(model.StatusError)}
	var names, other []string
	for _, k := range known {
		if s.ByStatus[k] > 0 {
			names = append(names, k)
		}
	}
	for k := range s.ByStatus {
		if !slices.Contains(known, k) {
			other = append(other, k)
		}
	}
	slices.Sort(other)
	return append(names, other...)
}

// Reset moves rows in status from back to NEW so the next run enriches them
// again. Only rows whose identity key starts with one of prefixes are reset;
// no prefixes selects every row in from. The error message is cleared;
// enrichment fields and the external record id are kept, so a re-published
// row updates its existing record. Reset returns the new rows and how many
// were changed.
//
// Reset is an operator action outside the transition table: DONE and ERROR
// both move straight to NEW.
func Reset(rows []model.Row, from model.Status, prefixes []string) ([]model.Row, int) {
	out := model.CloneRows(rows)
	from = model.ParseStatus(string(from))
	n := 0
	for i := range out {
		r := &out[i]
		if model.ParseStatus(string(r.Status)) != from {
			continue
		}
		if len(prefixes) > 0 && !hasPrefix(r.Key(), prefixes) {
			continue
		}
		r.Status = model.StatusNew
		r.ErrorMsg = ""
		n++
	}
	return out, n
}

func hasPrefix(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(key, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
