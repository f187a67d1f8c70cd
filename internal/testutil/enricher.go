package testutil

import (
	"context"
	"maps"
	"sync"

	"github.com/roach88/jobtrail/internal/enrich"
)

// Response is a scripted enrichment reply.
type Response struct {
	Fields map[string]any
	Err    error

	// Panic, when non-nil, is raised instead of returning.
	Panic any
}

// DefaultFields is what a ScriptedEnricher returns for unscripted rows.
func DefaultFields() map[string]any {
	return map[string]any{
		"category":    "other",
		"summary":     "scripted",
		"next_action": "reply",
	}
}

// ScriptedEnricher is an enrich.Enricher with canned replies keyed by message
// id, falling back to subject and then to a default reply.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ScriptedEnricher struct {
	mu      sync.Mutex
	replies map[string]Response
	def     Response
	calls   []enrich.Input
}

// NewScriptedEnricher creates an enricher that answers DefaultFields.
func NewScriptedEnricher() *ScriptedEnricher {
	return &ScriptedEnricher{
		replies: map[string]Response{},
		def:     Response{Fields: DefaultFields()},
	}
}

// On scripts the reply for rows whose message id or subject equals match.
func (e *ScriptedEnricher) On(match string, r Response) *ScriptedEnricher {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replies[match] = r
	return e
}

// Default replaces the reply for unscripted rows.
func (e *ScriptedEnricher) Default(r Response) *ScriptedEnricher {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.def = r
	return e
}

// Enrich implements enrich.Enricher.
func (e *ScriptedEnricher) Enrich(ctx context.Context, in enrich.Input) (map[string]any, error) {
	e.mu.Lock()
	e.calls = append(e.calls, in)
	r, ok := e.replies[in.Intrinsic.MessageID]
	if !ok {
		r, ok = e.replies[in.Intrinsic.Subject]
	}
	if !ok {
		r = e.def
	}
	e.mu.Unlock()

	if r.Panic != nil {
		panic(r.Panic)
	}
	if r.Err != nil {
		return nil, r.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return maps.Clone(r.Fields), nil
}

// Calls returns the inputs seen so far, in call order.
func (e *ScriptedEnricher) Calls() []enrich.Input {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]enrich.Input, len(e.calls))
	copy(out, e.calls)
	return out
}

// CallCount returns the number of Enrich calls.
func (e *ScriptedEnricher) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}
