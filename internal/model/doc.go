// Package model defines the row-level data model shared by every jobtrail stage.
//
// A Row is one tracked correspondence record. Its fields fall into three groups:
//   - Intrinsic fields (from, subject, company, ...) and Extra columns, always
//     sourced from the master document.
//   - Enrichment fields produced by the language model.
//   - Processing state: llm_status, llm_processed_utc, error_msg and
//     external_record_id, owned by the local working copy.
//
// Stages never share mutable rows: each stage receives a slice, clones it with
// CloneRows and returns the updated copy. Persistence is an explicit step
// performed by the pipeline.
//
// This package imports nothing internal; every other package may import it.
package model
