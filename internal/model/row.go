package model

import (
	"maps"
	"slices"
	"strings"
)

// Intrinsic column names. These are the only columns read from the master
// document for identity and prompt construction.
const (
	ColFrom           = "from"
	ColSubject        = "subject"
	ColCompany        = "company"
	ColReceivedUTC    = "received_utc"
	ColBody           = "body"
	ColMessageID      = "message_id"
	ColConversationID = "conversation_id"
)

// Processing-state column names, owned by the local working copy.
const (
	ColStatus       = "llm_status"
	ColProcessedUTC = "llm_processed_utc"
	ColErrorMsg     = "error_msg"
	ColExternalID   = "external_record_id"
)

// ColIdentityKey is a virtual column: it is never stored in a document but
// resolves to the row's identity key through Row.Value.
const ColIdentityKey = "identity_key"

// IntrinsicColumns lists intrinsic columns in canonical column order.
var IntrinsicColumns = []string{
	ColFrom,
	ColSubject,
	ColCompany,
	ColReceivedUTC,
	ColBody,
	ColMessageID,
	ColConversationID,
}

// StateColumns lists processing-state columns in canonical column order.
var StateColumns = []string{
	ColStatus,
	ColProcessedUTC,
	ColErrorMsg,
	ColExternalID,
}

// Intrinsic holds the immutable fields of a correspondence record.
type Intrinsic struct {
	From           string `json:"from"`
	Subject        string `json:"subject"`
	Company        string `json:"company"`
	ReceivedUTC    string `json:"received_utc"`
	Body           string `json:"body"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

// Get returns the intrinsic value stored under column name.
func (in Intrinsic) Get(col string) (string, bool) {
	switch col {
	case ColFrom:
		return in.From, true
	case ColSubject:
		return in.Subject, true
	case ColCompany:
		return in.Company, true
	case ColReceivedUTC:
		return in.ReceivedUTC, true
	case ColBody:
		return in.Body, true
	case ColMessageID:
		return in.MessageID, true
	case ColConversationID:
		return in.ConversationID, true
	}
	return "", false
}

func (in *Intrinsic) set(col, value string) bool {
	switch col {
	case ColFrom:
		in.From = value
	case ColSubject:
		in.Subject = value
	case ColCompany:
		in.Company = value
	case ColReceivedUTC:
		in.ReceivedUTC = value
	case ColBody:
		in.Body = value
	case ColMessageID:
		in.MessageID = value
	case ColConversationID:
		in.ConversationID = value
	default:
		return false
	}
	return true
}

// IsZero reports whether every intrinsic field is blank.
func (in Intrinsic) IsZero() bool {
	for _, col := range IntrinsicColumns {
		if v, _ := in.Get(col); strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Fields maps enrichment field names to their stored values.
type Fields map[string]string

// Row is one tracked correspondence record.
type Row struct {
	Intrinsic Intrinsic

	// Extra carries user columns of the master document that jobtrail does not
	// interpret. They follow the same sourcing rules as intrinsic fields.
	Extra map[string]string

	Enrichment Fields

	Status       Status
	ProcessedUTC string
	ErrorMsg     string
	ExternalID   string
}

// Key returns the row's identity key.
func (r Row) Key() string {
	return IdentityKey(r.Intrinsic)
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	out := r
	out.Extra = maps.Clone(r.Extra)
	out.Enrichment = maps.Clone(r.Enrichment)
	return out
}

// CloneRows deep-copies a row slice. Stages call it on entry so their input is
// never mutated.
func CloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// SetEnrichment stores an enrichment value, allocating the map on first use.
func (r *Row) SetEnrichment(name, value string) {
	if r.Enrichment == nil {
		r.Enrichment = Fields{}
	}
	r.Enrichment[name] = value
}

// Value returns the value of any column of the row, in the layout used by
// the local working copy.
func (r Row) Value(col string) string {
	if v, ok := r.Intrinsic.Get(col); ok {
		return v
	}
	switch col {
	case ColStatus:
		return string(r.Status)
	case ColProcessedUTC:
		return r.ProcessedUTC
	case ColErrorMsg:
		return r.ErrorMsg
	case ColExternalID:
		return r.ExternalID
	case ColIdentityKey:
		return r.Key()
	}
	if v, ok := r.Enrichment[col]; ok {
		return v
	}
	return r.Extra[col]
}

// EnrichmentNames returns the row's enrichment field names, sorted.
func (r Row) EnrichmentNames() []string {
	return slices.Sorted(maps.Keys(r.Enrichment))
}
