package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/jobtrail/internal/model"
)

// Scenario defines a pipeline scenario.
// Scenarios run the pipeline one or more times against in-memory documents,
// a scripted enricher and an in-memory external store, then assert on the
// final local copy, the store and the journal.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Master holds the master document records, one map per row.
	Master []Record `yaml:"master"`

	// Local seeds the local working copy. Empty starts without one.
	Local []Record `yaml:"local,omitempty"`

	// Enricher scripts the language model.
	Enricher EnricherSpec `yaml:"enricher,omitempty"`

	// Store configures the external store. Nil runs without publication.
	Store *StoreSpec `yaml:"store,omitempty"`

	// Runs lists the pipeline runs, executed in order.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the state after the last run.
	Assertions []Assertion `yaml:"assertions"`
}

// Record is one document row keyed by column name.
type Record map[string]string

// EnricherSpec scripts enrichment replies.
type EnricherSpec struct {
	// Default is the reply for rows without a scripted one. Empty fields use
	// the scripted enricher's defaults.
	Default Reply `yaml:"default,omitempty"`

	// Replies maps a message id or subject to its reply.
	Replies map[string]Reply `yaml:"replies,omitempty"`
}

// Reply is a scripted enrichment reply.
type Reply struct {
	Fields map[string]any `yaml:"fields,omitempty"`
	Error  string         `yaml:"error,omitempty"`
}

// StoreSpec configures the in-memory external store.
type StoreSpec struct {
	// Seed inserts records before the first run, as if created earlier.
	Seed []Record `yaml:"seed,omitempty"`

	// EnsureError fails schema reconciliation with this message.
	EnsureError string `yaml:"ensure_error,omitempty"`
}

// RunStep is one pipeline run.
type RunStep struct {
	// RunID defaults to run-<n>, counting from 1.
	RunID        string `yaml:"run_id,omitempty"`
	ForceRefresh bool   `yaml:"force_refresh,omitempty"`
	DryRun       bool   `yaml:"dry_run,omitempty"`

	// Master replaces the master document before this run.
	Master []Record `yaml:"master,omitempty"`

	// Expect checks the run's report. Nil skips the check.
	Expect *RunExpect `yaml:"expect,omitempty"`
}

// RunExpect specifies the expected report of a run.
type RunExpect struct {
	Decision  string     `yaml:"decision,omitempty"`
	Stats     *StatsSpec `yaml:"stats,omitempty"`
	Enriched  *TallySpec `yaml:"enriched,omitempty"`
	Published *TallySpec `yaml:"published,omitempty"`
	Failures  *int       `yaml:"failures,omitempty"`

	// Error is a substring of the run error. Empty expects no error.
	Error string `yaml:"error,omitempty"`
}

// StatsSpec is an expected audit triple.
type StatsSpec struct {
	Added   int `yaml:"added"`
	Kept    int `yaml:"kept"`
	Pending int `yaml:"pending"`
}

// TallySpec is an expected stage tally.
type TallySpec struct {
	Done    int `yaml:"done"`
	Errors  int `yaml:"errors"`
	Created int `yaml:"created"`
	Updated int `yaml:"updated"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "row_state": rows matching Where have the Expect column values
	// - "row_count": the local copy has Count rows (matching Where, if set)
	// - "record_count": the external store holds Count records
	// - "enrich_calls": the enricher was called Count times
	// - "journal_outcomes": the journal holds Count outcomes for Stage
	Type string `yaml:"type"`

	// Where filters rows by column value. All fields must match exactly.
	Where map[string]string `yaml:"where,omitempty"`

	// Expect contains expected column values (used by row_state).
	Expect map[string]string `yaml:"expect,omitempty"`

	// Count is the expected number (row_count, record_count, enrich_calls,
	// journal_outcomes).
	Count int `yaml:"count,omitempty"`

	// Stage is the journal stage (used by journal_outcomes).
	Stage string `yaml:"stage,omitempty"`

	// Status filters journal outcomes by status (used by journal_outcomes).
	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertRowState        = "row_state"
	AssertRowCount        = "row_count"
	AssertRecordCount     = "record_count"
	AssertEnrichCalls     = "enrich_calls"
	AssertJournalOutcomes = "journal_outcomes"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := map[string]bool{}
	for i, run := range s.Runs {
		id := run.RunID
		if id == "" {
			id = defaultRunID(i)
		}
		if seen[id] {
			return fmt.Errorf("runs[%d]: duplicate run_id %q", i, id)
		}
		seen[id] = true
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRowState:
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for row_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for row_state", index)
		}
	case AssertRowCount, AssertRecordCount, AssertEnrichCalls:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertJournalOutcomes:
		if a.Stage == "" {
			return fmt.Errorf("assertions[%d]: stage is required for journal_outcomes", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func defaultRunID(i int) string {
	return fmt.Sprintf("run-%d", i+1)
}

// table converts records to a document table. Intrinsic columns come first
// in canonical order, then the remaining columns sorted by name.
func table(records []Record) model.Table {
	var extra []string
	for _, r := range records {
		for col := range r {
			col = model.NormalizeColumn(col)
			if !slices.Contains(model.IntrinsicColumns, col) && !slices.Contains(extra, col) {
				extra = append(extra, col)
			}
		}
	}
	sort.Strings(extra)

	t := model.Table{Columns: append(slices.Clone(model.IntrinsicColumns), extra...)}
	for _, r := range records {
		rec := make(map[string]string, len(t.Columns))
		for _, col := range t.Columns {
			rec[col] = ""
		}
		for col, v := range r {
			rec[model.NormalizeColumn(col)] = strings.TrimSpace(v)
		}
		t.Records = append(t.Records, rec)
	}
	return t
}
