// Package enrich drives the per-row enrichment state machine.
//
// A Driver walks the rows whose llm_status is NEW or empty in index order.
// Each selected row moves to PENDING, is sent to the Enricher, has the result
// validated against the declared schema, and settles in DONE or ERROR. Every
// failure, including a panic, is captured as a typed model.Outcome for that
// row only; the driver always continues with the next row.
//
// The driver works on a copy of its input and never persists anything. The
// caller writes the returned rows once after the stage.
package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/schema"
)

// Input is what the enrichment collaborator sees of one row.
type Input struct {
	// Key is the row's identity key, for logging and request correlation.
	Key string

	Intrinsic model.Intrinsic

	// Fields are the enrichment fields to produce, in column order.
	Fields []schema.Field

	// NextActions are the allowed next_action values.
	NextActions []string
}

// Enricher produces enrichment fields for one row. Any returned error is
// recorded as a collaborator failure of that row.
type Enricher interface {
	Enrich(ctx context.Context, in Input) (map[string]any, error)
}

// Schema is the part of the enrichment schema the driver needs.
type Schema interface {
	Fields() []schema.Field
	NextActions() []string
	Normalize(result map[string]any) map[string]any
	Validate(result map[string]any) error
}

// Driver runs the enrichment stage.
type Driver struct {
	enricher Enricher
	schema   Schema
	clock    model.Clock
	logger   *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the clock used for llm_processed_utc stamps.
func WithClock(c model.Clock) Option {
	return func(d *Driver) {
		d.clock = c
	}
}

// WithLogger sets the driver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = l
	}
}

// New creates a Driver.
func New(e Enricher, s Schema, opts ...Option) *Driver {
	d := &Driver{
		enricher: e,
		schema:   s,
		clock:    model.SystemClock{},
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Selected returns the indexes of rows the stage will process.
func Selected(rows []model.Row) []int {
	var idx []int
	for i, r := range rows {
		if r.Status.AwaitsEnrichment() {
			idx = append(idx, i)
		}
	}
	return idx
}

// Run enriches every selected row and returns the updated copy of rows plus
// one outcome per processed row.
//
// When ctx is cancelled the driver stops before the next row; rows not yet
// reached keep their status and are picked up by the next run.
func (d *Driver) Run(ctx context.Context, rows []model.Row) ([]model.Row, []model.Outcome) {
	out := model.CloneRows(rows)
	selected := Selected(out)
	outcomes := make([]model.Outcome, 0, len(selected))

	for n, i := range selected {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("enrichment interrupted", "processed", n, "remaining", len(selected)-n, "error", err)
			break
		}
		o := d.process(ctx, i, &out[i])
		if o.OK() {
			d.logger.Debug("row enriched", "index", i, "key", short(o.Key))
		} else {
			d.logger.Warn("row failed", "index", i, "key", short(o.Key), "kind", o.Err.Kind, "error", o.Err.Message)
		}
		outcomes = append(outcomes, o)
	}
	return out, outcomes
}

func (d *Driver) process(ctx context.Context, i int, row *model.Row) (o model.Outcome) {
	key := row.Key()

	defer func() {
		if r := recover(); r != nil {
			o = d.fail(i, key, row, &model.RowError{
				Kind:    model.KindPanic,
				Message: fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	setStatus(row, model.StatusPending)

	result, err := d.enricher.Enrich(ctx, Input{
		Key:         key,
		Intrinsic:   row.Intrinsic,
		Fields:      d.schema.Fields(),
		NextActions: d.schema.NextActions(),
	})
	if err != nil {
		return d.fail(i, key, row, model.NewRowError(model.KindCollaborator, err))
	}
	result = d.schema.Normalize(result)
	if err := d.schema.Validate(result); err != nil {
		return d.fail(i, key, row, model.NewRowError(model.KindValidation, err))
	}

	for name, v := range result {
		if reserved(name) {
			d.logger.Warn("ignoring reserved field in enrichment result", "key", short(key), "field", name)
			continue
		}
		row.SetEnrichment(name, schema.Stringify(v))
	}
	setStatus(row, model.StatusDone)
	row.ProcessedUTC = model.Stamp(d.clock.Now())
	row.ErrorMsg = ""

	return model.Outcome{Index: i, Key: key, Status: model.StatusDone}
}

func (d *Driver) fail(i int, key string, row *model.Row, re *model.RowError) model.Outcome {
	if err := model.Transition(row.Status, model.StatusError); err != nil {
		d.logger.Error("forcing row to ERROR", "key", short(key), "error", err)
	}
	row.Status = model.StatusError
	row.ProcessedUTC = model.Stamp(d.clock.Now())
	row.ErrorMsg = re.Message
	return model.Outcome{Index: i, Key: key, Status: model.StatusError, Err: re}
}

// setStatus applies a checked llm_status transition. An illegal move is a
// programming error and panics; process recovers it into a panic outcome.
func setStatus(row *model.Row, to model.Status) {
	if err := model.Transition(row.Status, to); err != nil {
		panic(err)
	}
	row.Status = to
}

// reserved reports whether a result field would shadow a master-owned or
// state column.
func reserved(name string) bool {
	var probe model.Intrinsic
	if _, ok := probe.Get(name); ok {
		return true
	}
	switch name {
	case model.ColStatus, model.ColProcessedUTC, model.ColErrorMsg, model.ColExternalID, model.ColIdentityKey:
		return true
	}
	return false
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
