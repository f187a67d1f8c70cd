// Package merge reconciles the master document with the local working copy.
//
// Merge is a pure function: it never touches storage. The pipeline persists
// the result as a separate atomic step, so a failure anywhere before that
// step leaves the prior local copy unchanged.
//
// Reconciliation is keyed by model.IdentityKey:
//
//   - added: key in master only. A fresh row is built from the master row's
//     intrinsic and extra fields with status NEW. Any status or enrichment
//     columns found in the master are ignored.
//   - kept: key in both. The local row wins. With ForceRefresh its intrinsic
//     and extra fields are refreshed from master; status, enrichment and the
//     external reference are always preserved.
//   - local-only: key in local only. The row is retained unchanged; absence
//     from the master never deletes local history.
//
// Pending is counted over the merged result, not over the diff.
//
// Two rows of one input with the same key are either duplicates (identical
// intrinsic content, the later one is dropped) or conflicts (different
// content). A conflicting master row is skipped and reported; a conflicting
// local row is retained unchanged so its enrichment is never lost.
package merge

import (
	"maps"

	"github.com/roach88/jobtrail/internal/model"
)

// Options controls a merge.
type Options struct {
	// ForceRefresh re-sources intrinsic fields of kept rows from the master.
	ForceRefresh bool
}

// Stats is the audit triple of a merge.
type Stats struct {
	Added   int `json:"added" yaml:"added"`
	Kept    int `json:"kept" yaml:"kept"`
	Pending int `json:"pending" yaml:"pending"`
}

// Conflict is a row whose identity key equals the key of an earlier row in
// the same input while its intrinsic content differs.
type Conflict struct {
	// Source is "master" or "local".
	Source string `json:"source" yaml:"source"`

	// Row is the conflicting row's index in its input; First is the index
	// of the earlier row holding the key.
	Row   int    `json:"row" yaml:"row"`
	First int    `json:"first" yaml:"first"`
	Key   string `json:"key" yaml:"key"`
}

// Conflict sources.
const (
	SourceMaster = "master"
	SourceLocal  = "local"
)

// Result is the merged row set plus its audit counters.
type Result struct {
	Rows  []model.Row
	Stats Stats

	// Duplicates counts input rows skipped because an earlier row in the same
	// input had the same identity key and identical intrinsic content.
	Duplicates int

	// Conflicts lists rows sharing a key with a different earlier row.
	Conflicts []Conflict

	// Refreshed counts kept rows whose intrinsic fields were changed by
	// ForceRefresh.
	Refreshed int
}

// Merge reconciles master against local. Neither input is modified.
//
// Output order is master order for keys present in the master, followed by
// local-only rows in local order, then conflicting local rows in local order.
// Within one input the first occurrence of a key wins. Master rows with no
// intrinsic content are ignored.
func Merge(master, local []model.Row, opts Options) Result {
	var res Result

	localByKey := make(map[string]model.Row, len(local))
	localFirst := make(map[string]int, len(local))
	localOrder := make([]string, 0, len(local))
	var retained []model.Row
	for i, r := range local {
		k := r.Key()
		if first, dup := localFirst[k]; dup {
			if localByKey[k].Intrinsic == r.Intrinsic {
				res.Duplicates++
				continue
			}
			res.Conflicts = append(res.Conflicts, Conflict{Source: SourceLocal, Row: i, First: first, Key: k})
			retained = append(retained, r.Clone())
			continue
		}
		localByKey[k] = r
		localFirst[k] = i
		localOrder = append(localOrder, k)
	}

	masterFirst := make(map[string]int, len(master))
	emitted := make(map[string]bool, len(master)+len(local))
	res.Rows = make([]model.Row, 0, len(master)+len(local))

	for i, m := range master {
		if m.Intrinsic.IsZero() {
			continue
		}
		k := m.Key()
		if first, dup := masterFirst[k]; dup {
			if master[first].Intrinsic == m.Intrinsic {
				res.Duplicates++
			} else {
				res.Conflicts = append(res.Conflicts, Conflict{Source: SourceMaster, Row: i, First: first, Key: k})
			}
			continue
		}
		masterFirst[k] = i
		emitted[k] = true

		l, ok := localByKey[k]
		if !ok {
			res.Stats.Added++
			res.Rows = append(res.Rows, fromMaster(m))
			continue
		}

		res.Stats.Kept++
		row := l.Clone()
		if opts.ForceRefresh && refresh(&row, m) {
			res.Refreshed++
		}
		res.Rows = append(res.Rows, row)
	}

	for _, k := range localOrder {
		if emitted[k] {
			continue
		}
		emitted[k] = true
		res.Rows = append(res.Rows, localByKey[k].Clone())
	}
	res.Rows = append(res.Rows, retained...)

	for _, r := range res.Rows {
		if r.Status.AwaitsEnrichment() {
			res.Stats.Pending++
		}
	}
	return res
}

// fromMaster builds a new local row. Only master-owned fields are copied.
func fromMaster(m model.Row) model.Row {
	return model.Row{
		Intrinsic: m.Intrinsic,
		Extra:     maps.Clone(m.Extra),
		Status:    model.StatusNew,
	}
}

// refresh overwrites intrinsic fields and master-provided extras of row with
// the master's values. Extras the master does not carry are left alone, and
// a master column the local row holds as enrichment is never copied.
// Reports whether any intrinsic field changed.
func refresh(row *model.Row, m model.Row) bool {
	changed := row.Intrinsic != m.Intrinsic
	row.Intrinsic = m.Intrinsic
	for col, v := range m.Extra {
		if _, enriched := row.Enrichment[col]; enriched {
			continue
		}
		if row.Extra == nil {
			row.Extra = make(map[string]string, len(m.Extra))
		}
		row.Extra[col] = v
	}
	return changed
}
