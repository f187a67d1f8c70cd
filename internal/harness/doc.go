// Package harness runs end-to-end pipeline scenarios described in YAML.
//
// A scenario seeds a master document (and optionally a local working copy),
// scripts the enricher and the external store, runs the pipeline one or more
// times and then asserts on the final state.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	master:
//	  - { message_id: m1, subject: "Interview invite", company: Acme }
//	enricher:
//	  default: { fields: { category: interview, summary: s, next_action: schedule } }
//	  replies:
//	    m2: { error: "model overloaded" }
//	store:
//	  seed:
//	    - { "Message ID": m1, Name: "Page created by hand" }
//	runs:
//	  - expect:
//	      decision: proceed
//	      stats: { added: 1, kept: 0, pending: 1 }
//	  - force_refresh: true
//	    master:
//	      - { message_id: m1, subject: "Interview invite (moved)" }
//	assertions:
//	  - type: row_state
//	    where: { message_id: m1 }
//	    expect: { llm_status: DONE, external_record_id: page-1 }
//	  - type: record_count
//	    count: 1
//
// # Assertion Types
//
//   - row_state: every local row matching where has the expected column values
//   - row_count: the local copy holds count rows (matching where, if given)
//   - record_count: the external store holds count records
//   - enrich_calls: the enricher was called count times over all runs
//   - journal_outcomes: the journal holds count outcomes for a stage
//
// # Deterministic Testing
//
// Runs use a step clock, fixed run ids (run-1, run-2, ... unless given) and
// fresh in-memory collaborators, so a scenario's snapshot is identical on
// every execution and can be compared against a golden file.
package harness
