package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/jobtrail/internal/document"
	"github.com/roach88/jobtrail/internal/journal"
	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/pipeline"
	"github.com/roach88/jobtrail/internal/publish"
	"github.com/roach88/jobtrail/internal/schema"
	"github.com/roach88/jobtrail/internal/testutil"
)

// Names printed by scenario runs for the master and the local copy.
const (
	MasterName = "master.xlsx"
	LocalName  = "data/master.xlsx"
)

// Harness holds the collaborators of one scenario.
// Every scenario gets fresh in-memory documents, a scripted enricher, an
// in-memory store and an in-memory journal, so runs are isolated and
// reproducible.
type Harness struct {
	schema   *schema.Schema
	master   *document.Memory
	local    *document.Memory
	enricher *testutil.ScriptedEnricher
	store    *testutil.FakeStore
	journal  *journal.Journal
	clock    *testutil.StepClock
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Build in-memory documents, store and journal
// 2. Execute runs in order, checking each run's expectations
// 3. Evaluate assertions against the final state
// 4. Return result with pass/fail and errors
//
// An error is returned only when the harness itself cannot run; a failed
// expectation is recorded on the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.journal.Close()

	result := NewResult()
	for i, step := range scenario.Runs {
		trace, err := h.execute(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		result.Runs = append(result.Runs, trace)
		for _, msg := range checkExpect(i, step.Expect, trace.Report) {
			result.AddError(msg)
		}
	}

	if t, ok := h.local.Table(); ok {
		result.Rows = model.Decode(t, h.schema.FieldNames())
	}

	actx := &AssertionContext{
		Ctx:      ctx,
		Rows:     result.Rows,
		Store:    h.store,
		Enricher: h.enricher,
		Journal:  h.journal,
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	s, err := schema.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	clock := testutil.NewStepClock(testutil.DefaultEpoch, time.Second)
	j, err := journal.Open(":memory:", journal.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}

	h := &Harness{
		schema:   s,
		master:   document.NewMemory(table(scenario.Master)),
		local:    &document.Memory{},
		enricher: testutil.NewScriptedEnricher(),
		journal:  j,
		clock:    clock,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in scenarios
	}
	if len(scenario.Local) > 0 {
		h.local = document.NewMemory(table(scenario.Local))
	}

	if d := scenario.Enricher.Default; d.Fields != nil || d.Error != "" {
		h.enricher.Default(response(d))
	}
	for match, reply := range scenario.Enricher.Replies {
		h.enricher.On(match, response(reply))
	}

	if spec := scenario.Store; spec != nil {
		h.store = testutil.NewFakeStore()
		for _, rec := range spec.Seed {
			h.store.Seed(rec)
		}
		if spec.EnsureError != "" {
			h.store.EnsureErr = errors.New(spec.EnsureError)
		}
	}
	return h, nil
}

func response(r Reply) testutil.Response {
	if r.Error != "" {
		return testutil.Response{Err: errors.New(r.Error)}
	}
	return testutil.Response{Fields: r.Fields}
}

// execute runs the pipeline once.
func (h *Harness) execute(ctx context.Context, i int, step RunStep) (RunTrace, error) {
	if step.Master != nil {
		if err := h.master.Write(ctx, table(step.Master)); err != nil {
			return RunTrace{}, fmt.Errorf("failed to replace master: %w", err)
		}
	}

	runID := step.RunID
	if runID == "" {
		runID = defaultRunID(i)
	}

	// A nil *FakeStore must reach the pipeline as a nil interface.
	var store publish.Store
	if h.store != nil {
		store = h.store
	}

	var out bytes.Buffer
	p := pipeline.New(h.master, h.local, h.schema, h.enricher, store,
		pipeline.WithNames(MasterName, LocalName),
		pipeline.WithClock(h.clock),
		pipeline.WithRunIDs(testutil.NewFixedRunID(runID)),
		pipeline.WithJournal(h.journal),
		pipeline.WithOutput(&out),
		pipeline.WithLogger(h.logger),
	)
	rep, err := p.Run(ctx, pipeline.Options{ForceRefresh: step.ForceRefresh, DryRun: step.DryRun})
	if err != nil && rep.Error == "" {
		rep.Error = err.Error()
	}
	return RunTrace{Output: out.String(), Report: rep}, nil
}

// checkExpect compares a report with a run's expectations.
func checkExpect(i int, want *RunExpect, got pipeline.Report) []string {
	if want == nil {
		return nil
	}
	var errs []string
	fail := func(field string, want, got any) {
		errs = append(errs, fmt.Sprintf("run %d: %s: expected %v, got %v", i+1, field, want, got))
	}

	if want.Decision != "" && want.Decision != string(got.Decision) {
		fail("decision", want.Decision, got.Decision)
	}
	if s := want.Stats; s != nil {
		if s.Added != got.Stats.Added || s.Kept != got.Stats.Kept || s.Pending != got.Stats.Pending {
			fail("stats", *s, got.Stats)
		}
	}
	if t := want.Enriched; t != nil && !tallyMatches(*t, got.Enriched) {
		fail("enriched", *t, got.Enriched)
	}
	if t := want.Published; t != nil && !tallyMatches(*t, got.Published) {
		fail("published", *t, got.Published)
	}
	if want.Failures != nil && *want.Failures != len(got.Failures) {
		fail("failures", *want.Failures, len(got.Failures))
	}
	switch {
	case want.Error == "" && got.Error != "":
		fail("error", "none", got.Error)
	case want.Error != "" && !strings.Contains(got.Error, want.Error):
		fail("error", fmt.Sprintf("containing %q", want.Error), fmt.Sprintf("%q", got.Error))
	}
	return errs
}

func tallyMatches(want TallySpec, got model.Tally) bool {
	return want.Done == got.Done && want.Errors == got.Errors &&
		want.Created == got.Created && want.Updated == got.Updated
}
