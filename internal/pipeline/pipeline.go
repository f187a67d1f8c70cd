// Package pipeline runs one jobtrail invocation: merge the master document
// into the local working copy, gate on the audit triple, enrich pending rows
// and publish enriched rows.
//
// Each stage takes a row collection and returns a new one. Persistence of the
// local copy is an explicit step after the merge and after each stage; a
// document read or write failure aborts the run with an IntegrityError and
// leaves the previously written copy in place.
//
// Progress markers go to the configured output writer:
//
//	[STEP 1] Read master and merge into local copy
//	[AUDIT] added=3, kept=0, pending=3
//	[STEP 2] Enrichment start
//	[STEP 2] Enrichment done: done=3, errors=0
//	[STEP 3] Publication start
//	[STEP 3] Publication done: done=3, errors=0
//	[DONE] Local file: data/master.xlsx
//	[INFO] To sync back to the master, copy data/master.xlsx -> master.xlsx
//
// A [WARN] marker follows the merge when rows of one input share an identity
// key while their content differs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/jobtrail/internal/document"
	"github.com/roach88/jobtrail/internal/enrich"
	"github.com/roach88/jobtrail/internal/journal"
	"github.com/roach88/jobtrail/internal/logging"
	"github.com/roach88/jobtrail/internal/merge"
	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/publish"
	"github.com/roach88/jobtrail/internal/schema"
)

// Options controls one run.
type Options struct {
	// ForceRefresh re-sources intrinsic fields of kept rows from the master.
	ForceRefresh bool

	// DryRun merges and gates without writing the local copy, the journal or
	// calling any collaborator.
	DryRun bool
}

// Journal records runs and row outcomes. *journal.Journal implements it.
type Journal interface {
	publish.Ledger
	BeginRun(ctx context.Context, r journal.Run) error
	FinishRun(ctx context.Context, r journal.Run) error
	WriteOutcomes(ctx context.Context, runID, stage string, outcomes []model.Outcome) error
}

// Marker renders a progress tag such as "STEP 1" for display.
type Marker func(tag string) string

// PlainMarker renders tags as "[TAG]".
func PlainMarker(tag string) string {
	return "[" + tag + "]"
}

// Pipeline wires the documents and collaborators of a run.
type Pipeline struct {
	master document.Source
	local  document.Store
	schema *schema.Schema

	enricher enrich.Enricher
	store    publish.Store

	masterName string
	localName  string

	journal  Journal
	selector publish.Selector
	clock    model.Clock
	runIDs   RunIDGenerator
	out      io.Writer
	marker   Marker
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithJournal records runs, outcomes and external ids in j.
func WithJournal(j Journal) Option {
	return func(p *Pipeline) {
		p.journal = j
	}
}

// WithSelector overrides which rows the publication stage selects.
func WithSelector(s publish.Selector) Option {
	return func(p *Pipeline) {
		p.selector = s
	}
}

// WithClock sets the clock used for row stamps and run times.
func WithClock(c model.Clock) Option {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// WithRunIDs sets the run id generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(p *Pipeline) {
		p.runIDs = g
	}
}

// WithOutput sets where progress markers are written.
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) {
		p.out = w
	}
}

// WithMarker sets how progress tags are rendered.
func WithMarker(m Marker) Option {
	return func(p *Pipeline) {
		p.marker = m
	}
}

// WithLogger sets the logger. Each stage logs with its own component name.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithNames sets the master and local names shown in markers and reports.
func WithNames(master, local string) Option {
	return func(p *Pipeline) {
		p.masterName = master
		p.localName = local
	}
}

// New creates a Pipeline. store may be nil, in which case publication is
// skipped.
func New(master document.Source, local document.Store, s *schema.Schema, e enrich.Enricher, store publish.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		master:     master,
		local:      local,
		schema:     s,
		enricher:   e,
		store:      store,
		masterName: "master",
		localName:  "local",
		selector:   publish.Enriched,
		clock:      model.SystemClock{},
		runIDs:     UUIDv7Generator{},
		out:        io.Discard,
		marker:     PlainMarker,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one invocation and returns its report. The report is filled
// as far as the run got, also when an error is returned.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Report, error) {
	rep := Report{
		RunID:        p.runIDs.Generate(),
		Master:       p.masterName,
		Local:        p.localName,
		ForceRefresh: opts.ForceRefresh,
		DryRun:       opts.DryRun,
	}
	logger := p.logger.With("run_id", rep.RunID)

	journaled := p.journal != nil && !opts.DryRun
	run := journal.Run{
		ID:           rep.RunID,
		StartedUTC:   model.Stamp(p.clock.Now()),
		Master:       p.masterName,
		LocalPath:    p.localName,
		ForceRefresh: opts.ForceRefresh,
		DryRun:       opts.DryRun,
	}
	if journaled {
		if err := p.journal.BeginRun(ctx, run); err != nil {
			logger.Warn("journal begin failed", "error", err)
			journaled = false
		}
	}

	err := p.run(ctx, opts, &rep, logger, journaled)
	if err != nil {
		rep.Error = err.Error()
	}

	if journaled {
		run.FinishedUTC = model.Stamp(p.clock.Now())
		run.Stats = rep.Stats
		run.Decision = string(rep.Decision)
		run.Enriched = rep.Enriched
		run.Published = rep.Published
		run.Error = rep.Error
		if ferr := p.journal.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
			logger.Warn("journal finish failed", "error", ferr)
		}
	}
	return rep, err
}

func (p *Pipeline) run(ctx context.Context, opts Options, rep *Report, logger *slog.Logger, journaled bool) error {
	fields := p.schema.FieldNames()

	p.mark("STEP 1", "Read master and merge into local copy")
	masterTable, err := p.master.Read(ctx)
	if err != nil {
		return &IntegrityError{Op: "read master", Location: p.masterName, Err: err}
	}
	localTable, err := p.local.Read(ctx)
	switch {
	case errors.Is(err, document.ErrNotFound):
		logger.Info("no local copy yet", "local", p.localName)
		localTable = model.Table{}
	case err != nil:
		return &IntegrityError{Op: "read local", Location: p.localName, Err: err}
	}

	prior := localTable.Columns
	if len(prior) == 0 {
		prior = masterTable.Columns
	}

	res := merge.Merge(model.Decode(masterTable, fields), model.Decode(localTable, fields), merge.Options{ForceRefresh: opts.ForceRefresh})
	rep.Stats = res.Stats
	rep.Duplicates = res.Duplicates
	rep.Refreshed = res.Refreshed
	rep.Conflicts = res.Conflicts
	if res.Duplicates > 0 {
		logger.Warn("duplicate identity keys skipped", "count", res.Duplicates)
	}
	for _, c := range res.Conflicts {
		logger.Warn("identity key conflict", "source", c.Source, "row", c.Row, "first", c.First, "key", c.Key)
	}
	if n := len(res.Conflicts); n > 0 {
		p.mark("WARN", fmt.Sprintf("%d row(s) share an identity key with a different earlier row", n))
	}

	rows := res.Rows
	if !opts.DryRun {
		if err := p.persist(ctx, rows, prior, fields); err != nil {
			return err
		}
	}
	p.mark("AUDIT", fmt.Sprintf("added=%d, kept=%d, pending=%d", res.Stats.Added, res.Stats.Kept, res.Stats.Pending))

	rep.Decision = Decide(res.Stats)
	switch rep.Decision {
	case DecisionNothingChanged:
		p.mark("STOP", "No changes detected. Abort.")
		return nil
	case DecisionNothingPending:
		p.mark("STOP", "Changes detected but no pending rows. Enrichment/publication skipped.")
		p.done(opts)
		return nil
	}

	if opts.DryRun {
		p.mark("DRY RUN", fmt.Sprintf("%d rows would be enriched. Nothing written.", len(enrich.Selected(rows))))
		return nil
	}

	p.mark("STEP 2", "Enrichment start")
	driver := enrich.New(p.enricher, p.schema,
		enrich.WithClock(p.clock),
		enrich.WithLogger(logging.Component(logger, "enrich")))
	rows, outcomes := driver.Run(ctx, rows)
	rep.Enriched = model.Count(outcomes)
	rep.addFailures(journal.StageEnrich, outcomes)
	if err := p.persist(ctx, rows, prior, fields); err != nil {
		return err
	}
	p.record(ctx, logger, journaled, rep.RunID, journal.StageEnrich, outcomes)
	p.mark("STEP 2", fmt.Sprintf("Enrichment done: done=%d, errors=%d", rep.Enriched.Done, rep.Enriched.Errors))
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enrichment interrupted: %w", err)
	}

	if p.store == nil {
		p.mark("SKIP", "No external store configured. Publication skipped.")
		p.done(opts)
		return nil
	}

	p.mark("STEP 3", "Publication start")
	popts := []publish.Option{
		publish.WithSelector(p.selector),
		publish.WithLogger(logging.Component(logger, "publish")),
	}
	if journaled {
		popts = append(popts, publish.WithLedger(p.journal))
	}
	rows, outcomes, err = publish.New(p.store, p.schema, popts...).Run(ctx, rows)
	if err != nil {
		return fmt.Errorf("publication: %w", err)
	}
	rep.Published = model.Count(outcomes)
	rep.addFailures(journal.StagePublish, outcomes)
	if err := p.persist(ctx, rows, prior, fields); err != nil {
		return err
	}
	p.record(ctx, logger, journaled, rep.RunID, journal.StagePublish, outcomes)
	p.mark("STEP 3", fmt.Sprintf("Publication done: done=%d, errors=%d", rep.Published.Done, rep.Published.Errors))
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publication interrupted: %w", err)
	}

	p.done(opts)
	return nil
}

// persist writes the full row set to the local copy.
func (p *Pipeline) persist(ctx context.Context, rows []model.Row, prior, fields []string) error {
	t := model.Encode(rows, prior, fields)
	if err := p.local.Write(context.WithoutCancel(ctx), t); err != nil {
		return &IntegrityError{Op: "write local", Location: p.localName, Err: err}
	}
	return nil
}

func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, journaled bool, runID, stage string, outcomes []model.Outcome) {
	if !journaled {
		return
	}
	if err := p.journal.WriteOutcomes(context.WithoutCancel(ctx), runID, stage, outcomes); err != nil {
		logger.Warn("journal outcomes failed", "stage", stage, "error", err)
	}
}

func (p *Pipeline) done(opts Options) {
	if opts.DryRun {
		return
	}
	p.mark("DONE", "Local file: "+p.localName)
	p.mark("INFO", fmt.Sprintf("To sync back to the master, copy %s -> %s", p.localName, p.masterName))
}

func (p *Pipeline) mark(tag, msg string) {
	fmt.Fprintf(p.out, "%s %s\n", p.marker(tag), msg)
}
