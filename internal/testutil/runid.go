package testutil

// FixedRunID returns the same run id every time.
//
// A pipeline run with a FixedRunID and a StepClock produces byte-identical
// reports and journal rows, which golden tests rely on.
//
// Thread-safety: FixedRunID is stateless and safe for concurrent use.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a generator returning id.
// If id is empty, Generate returns "test-run-default".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed run id.
func (g *FixedRunID) Generate() string {
	return g.id
}
