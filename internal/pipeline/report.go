package pipeline

import (
	"fmt"
	"strings"

	"github.com/roach88/jobtrail/internal/merge"
	"github.com/roach88/jobtrail/internal/model"
)

// Report summarizes one pipeline run.
type Report struct {
	RunID        string           `json:"run_id" yaml:"run_id"`
	Master       string           `json:"master" yaml:"master"`
	Local        string           `json:"local" yaml:"local"`
	ForceRefresh bool             `json:"force_refresh" yaml:"force_refresh"`
	DryRun       bool             `json:"dry_run" yaml:"dry_run"`
	Stats        merge.Stats      `json:"stats" yaml:"stats"`
	Duplicates   int              `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
	Refreshed    int              `json:"refreshed,omitempty" yaml:"refreshed,omitempty"`
	Conflicts    []merge.Conflict `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Decision     Decision         `json:"decision,omitempty" yaml:"decision,omitempty"`
	Enriched     model.Tally      `json:"enriched" yaml:"enriched"`
	Published    model.Tally      `json:"published" yaml:"published"`
	Failures     []Failure        `json:"failures,omitempty" yaml:"failures,omitempty"`
	Error        string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failure is a row that ended a stage in ERROR.
type Failure struct {
	Stage   string `json:"stage" yaml:"stage"`
	Row     int    `json:"row" yaml:"row"`
	Key     string `json:"key" yaml:"key"`
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

// OK reports whether the run finished without a run-level error and with no
// failed rows.
func (r Report) OK() bool {
	return r.Error == "" && len(r.Failures) == 0
}

func (r *Report) addFailures(stage string, outcomes []model.Outcome) {
	for _, o := range outcomes {
		if o.OK() {
			continue
		}
		r.Failures = append(r.Failures, Failure{
			Stage:   stage,
			Row:     o.Index,
			Key:     short(o.Key),
			Kind:    string(o.Err.Kind),
			Message: o.Err.Message,
		})
	}
}

// Text renders the report as aligned plain text. The output is deterministic
// for a given report.
func (r Report) Text() string {
	var b strings.Builder
	line := func(label, format string, args ...any) {
		fmt.Fprintf(&b, "%-10s %s\n", label+":", fmt.Sprintf(format, args...))
	}

	line("run", "%s", r.RunID)
	line("master", "%s", r.Master)
	line("local", "%s", r.Local)
	var flags []string
	if r.ForceRefresh {
		flags = append(flags, "force-refresh")
	}
	if r.DryRun {
		flags = append(flags, "dry-run")
	}
	if len(flags) > 0 {
		line("flags", "%s", strings.Join(flags, " "))
	}
	line("merge", "added=%d kept=%d pending=%d", r.Stats.Added, r.Stats.Kept, r.Stats.Pending)
	if r.Duplicates > 0 || r.Refreshed > 0 {
		line("rows", "duplicates=%d refreshed=%d", r.Duplicates, r.Refreshed)
	}
	if len(r.Conflicts) > 0 {
		b.WriteString("conflicts:\n")
		for _, c := range r.Conflicts {
			fmt.Fprintf(&b, "  %s row %d (%s): same key as row %d\n", c.Source, c.Row, short(c.Key), c.First)
		}
	}
	if r.Decision != "" {
		line("decision", "%s", r.Decision)
	}
	if r.Decision.Proceeds() && !r.DryRun {
		line("enrich", "done=%d errors=%d", r.Enriched.Done, r.Enriched.Errors)
		line("publish", "done=%d errors=%d created=%d updated=%d",
			r.Published.Done, r.Published.Errors, r.Published.Created, r.Published.Updated)
	}
	if len(r.Failures) > 0 {
		b.WriteString("failures:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  %s row %d (%s): %s: %s\n", f.Stage, f.Row, f.Key, f.Kind, f.Message)
		}
	}
	if r.Error != "" {
		line("error", "%s", r.Error)
	}
	return b.String()
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
