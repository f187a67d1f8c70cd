package testutil

import (
	"fmt"
	"maps"

	"github.com/roach88/jobtrail/internal/model"
)

// Mail builds a NEW row identified by message id.
func Mail(id, subject string) model.Row {
	return model.Row{
		Intrinsic: model.Intrinsic{
			From:        "recruiter@example.com",
			Subject:     subject,
			Company:     "Example Corp",
			ReceivedUTC: "2026-03-01T09:00:00Z",
			Body:        "Body of " + subject,
			MessageID:   id,
		},
		Status: model.StatusNew,
	}
}

// Mails builds n NEW rows with ids m1..mn.
func Mails(n int) []model.Row {
	rows := make([]model.Row, n)
	for i := range rows {
		rows[i] = Mail(fmt.Sprintf("m%d", i+1), fmt.Sprintf("Subject %d", i+1))
	}
	return rows
}

// Done marks r as successfully enriched with the given next action.
func Done(r model.Row, action string) model.Row {
	r = r.Clone()
	r.Status = model.StatusDone
	r.ProcessedUTC = "2026-03-01T10:00:00Z"
	r.ErrorMsg = ""
	r.SetEnrichment("next_action", action)
	return r
}

// Master strips a row down to what a master document carries.
func Master(r model.Row) model.Row {
	return model.Row{Intrinsic: r.Intrinsic, Extra: maps.Clone(r.Extra)}
}
