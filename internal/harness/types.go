package harness

import (
	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/pipeline"
)

// RunTrace is what one pipeline run produced.
type RunTrace struct {
	// Output holds the progress markers the run printed.
	Output string `json:"output"`

	Report pipeline.Report `json:"report"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every run expectation and assertion matched.
	Pass bool `json:"pass"`

	// Runs holds one trace per executed run, in order.
	Runs []RunTrace `json:"runs"`

	// Rows is the local working copy after the last run.
	Rows []model.Row `json:"-"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Runs:   []RunTrace{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
