package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/jobtrail/internal/journal"
	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/testutil"
)

// AssertionContext holds the final state assertions are evaluated against.
type AssertionContext struct {
	Ctx      context.Context
	Rows     []model.Row
	Store    *testutil.FakeStore // nil when the scenario has no store
	Enricher *testutil.ScriptedEnricher
	Journal  *journal.Journal
}

// AssertionError is returned when an assertion fails.
// It includes the final rows to help debug the failure.
type AssertionError struct {
	Type     string      // Assertion type for categorization
	Expected string      // Human-readable expected outcome
	Actual   string      // Human-readable actual outcome
	Rows     []model.Row // Final local rows for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Rows) > 0 {
		fmt.Fprintf(&buf, "\nLocal rows:\n")
		for i, r := range e.Rows {
			fmt.Fprintf(&buf, "  [%d] %s %s %q\n", i, r.Intrinsic.MessageID, r.Status, r.Intrinsic.Subject)
		}
	}

	return buf.String()
}

// EvaluateAssertions evaluates all assertions and returns failure messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertRowState:
		return assertRowState(actx.Rows, a)
	case AssertRowCount:
		return assertRowCount(actx.Rows, a)
	case AssertRecordCount:
		n := 0
		if actx.Store != nil {
			n = len(actx.Store.Records())
		}
		return assertCount(a.Type, "external records", a.Count, n, actx.Rows)
	case AssertEnrichCalls:
		return assertCount(a.Type, "enrichment calls", a.Count, actx.Enricher.CallCount(), actx.Rows)
	case AssertJournalOutcomes:
		return assertJournalOutcomes(actx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// matchRow reports whether every where column has the given value.
func matchRow(r model.Row, where map[string]string) bool {
	for col, want := range where {
		if r.Value(col) != want {
			return false
		}
	}
	return true
}

func selectRows(rows []model.Row, where map[string]string) []model.Row {
	var out []model.Row
	for _, r := range rows {
		if matchRow(r, where) {
			out = append(out, r)
		}
	}
	return out
}

// assertRowState checks that at least one row matches where and that every
// matching row has the expected column values.
func assertRowState(rows []model.Row, a Assertion) error {
	matched := selectRows(rows, a.Where)
	if len(matched) == 0 {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("a row where %s", describe(a.Where)),
			Actual:   "no matching row",
			Rows:     rows,
		}
	}

	for _, r := range matched {
		for _, col := range slices.Sorted(maps.Keys(a.Expect)) {
			if got := r.Value(col); got != a.Expect[col] {
				return &AssertionError{
					Type:     a.Type,
					Expected: fmt.Sprintf("%s = %q where %s", col, a.Expect[col], describe(a.Where)),
					Actual:   fmt.Sprintf("%s = %q", col, got),
					Rows:     rows,
				}
			}
		}
	}
	return nil
}

func assertRowCount(rows []model.Row, a Assertion) error {
	what := "local rows"
	if len(a.Where) > 0 {
		rows = selectRows(rows, a.Where)
		what = "local rows where " + describe(a.Where)
	}
	return assertCount(a.Type, what, a.Count, len(rows), nil)
}

func assertJournalOutcomes(actx *AssertionContext, a Assertion) error {
	runs, err := actx.Journal.ListRuns(actx.Ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	n := 0
	for _, run := range runs {
		outcomes, err := actx.Journal.Outcomes(actx.Ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to read outcomes of %s: %w", run.ID, err)
		}
		for _, o := range outcomes {
			if o.Stage == a.Stage && (a.Status == "" || o.Status == a.Status) {
				n++
			}
		}
	}

	what := a.Stage + " outcomes"
	if a.Status != "" {
		what = fmt.Sprintf("%s %s outcomes", a.Stage, a.Status)
	}
	return assertCount(a.Type, what, a.Count, n, nil)
}

func assertCount(typ, what string, want, got int, rows []model.Row) error {
	if want == got {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%d %s", want, what),
		Actual:   fmt.Sprintf("%d", got),
		Rows:     rows,
	}
}

// describe renders a where clause deterministically.
func describe(where map[string]string) string {
	parts := make([]string, 0, len(where))
	for _, k := range slices.Sorted(maps.Keys(where)) {
		parts = append(parts, fmt.Sprintf("%s=%q", k, where[k]))
	}
	return strings.Join(parts, " ")
}
