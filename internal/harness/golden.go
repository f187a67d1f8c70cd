package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/jobtrail/internal/model"
)

// Snapshot renders a result as deterministic text: each run's markers and
// report, then one line per final local row. Timestamps are left out so the
// snapshot does not depend on how often the clock was read.
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", name)
	for i, run := range result.Runs {
		fmt.Fprintf(&b, "\n## run %d\n", i+1)
		b.WriteString(run.Output)
		b.WriteString("--\n")
		b.WriteString(run.Report.Text())
	}

	fmt.Fprintf(&b, "\n## rows\n")
	for _, r := range result.Rows {
		b.WriteString(rowLine(r))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func rowLine(r model.Row) string {
	fields := []string{
		orDash(r.Intrinsic.MessageID),
		orDash(string(r.Status)),
		orDash(r.Value("next_action")),
		orDash(r.ExternalID),
	}
	if r.ErrorMsg != "" {
		fields = append(fields, r.ErrorMsg)
	}
	return strings.Join(fields, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
