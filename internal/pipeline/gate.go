package pipeline

import "github.com/roach88/jobtrail/internal/merge"

// Decision is the run gate's verdict after a merge.
type Decision string

const (
	// DecisionNothingChanged stops the run: the merge saw no rows at all.
	DecisionNothingChanged Decision = "nothing_changed"

	// DecisionNothingPending keeps the merge but skips enrichment and
	// publication: rows changed, none await enrichment.
	DecisionNothingPending Decision = "nothing_pending"

	// DecisionProceed runs enrichment and then publication.
	DecisionProceed Decision = "proceed"
)

// Decide gates the enrichment and publication stages on a merge's audit
// triple.
func Decide(s merge.Stats) Decision {
	switch {
	case s.Added == 0 && s.Kept == 0 && s.Pending == 0:
		return DecisionNothingChanged
	case s.Pending == 0:
		return DecisionNothingPending
	default:
		return DecisionProceed
	}
}

// Proceeds reports whether the stages after the merge run.
func (d Decision) Proceeds() bool {
	return d == DecisionProceed
}
