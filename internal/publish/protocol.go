// Package publish writes enriched rows to the hosted store without ever
// creating two external records for one identity key.
//
// The protocol reconciles the store's property schema once, then for every
// selected row looks up an existing record by the canonical Identity property
// or any legacy fallback property. A match is updated in place; otherwise a
// new record tagged with the Identity property is created. The resulting
// record id is written back to the row's external_record_id.
//
// Running the protocol any number of times over the same rows leaves exactly
// one external record per identity key, provided Find sees every record
// previously created.
package publish

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/jobtrail/internal/model"
)

// Lookup identifies the external record of a row.
type Lookup struct {
	// Key is the canonical identity key, matched against the Identity property.
	Key string

	// Fallbacks are legacy properties for records created without Identity.
	Fallbacks []model.Fallback
}

// Store is the hosted external store. Every call may fail with a generic
// error; the protocol contains it to the row being processed.
type Store interface {
	// EnsureSchema makes every named property exist with the given type.
	// It must be idempotent.
	EnsureSchema(ctx context.Context, properties map[string]string) error

	// Find returns the id of a record matching the Identity property or any
	// fallback. When several records match, one matching Identity is
	// preferred.
	Find(ctx context.Context, l Lookup) (id string, found bool, err error)

	Create(ctx context.Context, values map[string]string) (string, error)
	Update(ctx context.Context, id string, values map[string]string) error
}

// Ledger remembers which external record was written for an identity key.
// It is advisory: the hosted store stays authoritative.
type Ledger interface {
	ExternalID(ctx context.Context, key string) (string, bool, error)
	RecordExternal(ctx context.Context, key, id string) error
}

// Properties maps rows onto hosted properties.
type Properties interface {
	PropertyTypes() map[string]string
	PropertyValues(r model.Row) map[string]string
}

// Selector picks the rows the stage publishes.
type Selector func(model.Row) bool

// Enriched selects rows whose enrichment completed: llm_status DONE.
func Enriched(r model.Row) bool {
	return model.ParseStatus(string(r.Status)) == model.StatusDone
}

// Protocol runs the publication stage.
type Protocol struct {
	store    Store
	props    Properties
	selector Selector
	ledger   Ledger
	logger   *slog.Logger
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithSelector replaces the default Enriched selector.
func WithSelector(s Selector) Option {
	return func(p *Protocol) {
		p.selector = s
	}
}

// WithLedger records every written record id in l.
func WithLedger(l Ledger) Option {
	return func(p *Protocol) {
		p.ledger = l
	}
}

// WithLogger sets the protocol's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Protocol) {
		p.logger = l
	}
}

// New creates a Protocol.
func New(s Store, props Properties, opts ...Option) *Protocol {
	p := &Protocol{
		store:    s,
		props:    props,
		selector: Enriched,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run publishes every selected row and returns the updated copy of rows plus
// one outcome per processed row.
//
// A failed schema reconciliation aborts the stage before any row is touched;
// the rows are then returned unchanged together with the error. Any other
// failure is recorded on its row and the stage continues.
func (p *Protocol) Run(ctx context.Context, rows []model.Row) ([]model.Row, []model.Outcome, error) {
	out := model.CloneRows(rows)

	if err := p.store.EnsureSchema(ctx, p.props.PropertyTypes()); err != nil {
		return out, nil, fmt.Errorf("ensure schema: %w", err)
	}

	var outcomes []model.Outcome
	for i := range out {
		if !p.selector(out[i]) {
			continue
		}
		if err := ctx.Err(); err != nil {
			p.logger.Warn("publication interrupted", "index", i, "error", err)
			break
		}
		o := p.process(ctx, i, &out[i])
		if o.OK() {
			p.logger.Debug("row published", "index", i, "key", short(o.Key), "record", o.RecordID, "created", o.Created)
		} else {
			p.logger.Warn("row failed", "index", i, "key", short(o.Key), "kind", o.Err.Kind, "error", o.Err.Message)
		}
		outcomes = append(outcomes, o)
	}
	return out, outcomes, nil
}

func (p *Protocol) process(ctx context.Context, i int, row *model.Row) (o model.Outcome) {
	key := row.Key()

	defer func() {
		if r := recover(); r != nil {
			o = p.fail(i, key, row, &model.RowError{
				Kind:    model.KindPanic,
				Message: fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	values := p.props.PropertyValues(*row)
	values[model.PropertyIdentity] = key

	id, found, err := p.store.Find(ctx, Lookup{Key: key, Fallbacks: model.FallbackKeys(row.Intrinsic)})
	if err != nil {
		return p.fail(i, key, row, model.NewRowError(model.KindCollaborator, fmt.Errorf("find: %w", err)))
	}

	if found {
		if err := p.store.Update(ctx, id, values); err != nil {
			return p.fail(i, key, row, model.NewRowError(model.KindCollaborator, fmt.Errorf("update %s: %w", id, err)))
		}
	} else {
		p.warnIfKnown(ctx, key, row.ExternalID)
		id, err = p.store.Create(ctx, values)
		if err != nil {
			return p.fail(i, key, row, model.NewRowError(model.KindCollaborator, fmt.Errorf("create: %w", err)))
		}
	}

	row.ExternalID = id
	if model.ParseStatus(string(row.Status)) == model.StatusDone {
		row.ErrorMsg = ""
	}

	if p.ledger != nil {
		if err := p.ledger.RecordExternal(ctx, key, id); err != nil {
			p.logger.Warn("ledger write failed", "key", short(key), "error", err)
		}
	}

	return model.Outcome{Index: i, Key: key, Status: row.Status, RecordID: id, Created: !found}
}

// warnIfKnown logs when a row about to be created already had a record. That
// record was deleted remotely or lost its identifying properties.
func (p *Protocol) warnIfKnown(ctx context.Context, key, rowID string) {
	known := rowID
	if known == "" && p.ledger != nil {
		id, ok, err := p.ledger.ExternalID(ctx, key)
		if err != nil {
			p.logger.Warn("ledger read failed", "key", short(key), "error", err)
		}
		if ok {
			known = id
		}
	}
	if known != "" {
		p.logger.Warn("previous external record not found, creating a new one", "key", short(key), "previous", known)
	}
}

func (p *Protocol) fail(i int, key string, row *model.Row, re *model.RowError) model.Outcome {
	if err := model.Transition(row.Status, model.StatusError); err != nil {
		p.logger.Error("forcing row to ERROR", "key", short(key), "error", err)
	}
	row.Status = model.StatusError
	row.ErrorMsg = re.Message
	return model.Outcome{Index: i, Key: key, Status: model.StatusError, Err: re}
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
