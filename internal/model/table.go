package model

import (
	"maps"
	"slices"
	"strings"
)

// Table is the document-level view of a row set: ordered column names and one
// record per row. Absent cells are empty strings.
type Table struct {
	Columns []string
	Records []map[string]string

	// Enrichment names the columns holding enrichment values. Encode fills
	// it and documents able to keep metadata persist it, so an enrichment
	// column outside the declared schema is not read back as a master
	// column.
	Enrichment []string
}

// NormalizeColumn maps a spreadsheet header to its column name:
// "Received UTC" and "received-utc" both become "received_utc".
func NormalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	return name
}

// NewTable builds a table from raw spreadsheet cells. Header names are
// normalised; blank or duplicate headers drop their column. Short rows are
// padded and fully blank rows are skipped.
func NewTable(header []string, cells [][]string) Table {
	t := Table{}
	index := make([]int, 0, len(header))
	seen := map[string]bool{}
	for i, h := range header {
		col := NormalizeColumn(h)
		if col == "" || seen[col] {
			continue
		}
		seen[col] = true
		t.Columns = append(t.Columns, col)
		index = append(index, i)
	}

	for _, line := range cells {
		rec := make(map[string]string, len(t.Columns))
		blank := true
		for j, col := range t.Columns {
			v := ""
			if i := index[j]; i < len(line) {
				v = line[i]
			}
			if strings.TrimSpace(v) != "" {
				blank = false
			}
			rec[col] = v
		}
		if !blank {
			t.Records = append(t.Records, rec)
		}
	}
	return t
}

// Cells renders the table as a header line plus value lines in column order.
func (t Table) Cells() (header []string, lines [][]string) {
	header = slices.Clone(t.Columns)
	lines = make([][]string, len(t.Records))
	for i, rec := range t.Records {
		line := make([]string, len(t.Columns))
		for j, col := range t.Columns {
			line[j] = rec[col]
		}
		lines[i] = line
	}
	return header, lines
}

// Decode converts table records into rows. Columns named in enrichment or in
// t.Enrichment are read as enrichment fields; any other unknown column
// becomes an Extra.
func Decode(t Table, enrichment []string) []Row {
	declared := make(map[string]bool, len(enrichment)+len(t.Enrichment))
	for _, name := range slices.Concat(enrichment, t.Enrichment) {
		declared[name] = true
	}

	rows := make([]Row, 0, len(t.Records))
	for _, rec := range t.Records {
		var r Row
		for col, v := range rec {
			if r.Intrinsic.set(col, v) {
				continue
			}
			switch col {
			case ColStatus:
				r.Status = ParseStatus(v)
				continue
			case ColProcessedUTC:
				r.ProcessedUTC = v
				continue
			case ColErrorMsg:
				r.ErrorMsg = v
				continue
			case ColExternalID:
				r.ExternalID = strings.TrimSpace(v)
				continue
			}
			if v == "" {
				continue
			}
			if declared[col] {
				r.SetEnrichment(col, v)
				continue
			}
			if r.Extra == nil {
				r.Extra = map[string]string{}
			}
			r.Extra[col] = v
		}
		rows = append(rows, r)
	}
	return rows
}

// Encode converts rows back into a table. Columns keep the order of prior and
// new columns are appended: intrinsic, extras, declared enrichment, other
// enrichment, then state columns. A column present in prior is never dropped,
// so the local copy's schema only grows.
func Encode(rows []Row, prior []string, enrichment []string) Table {
	t := Table{}
	seen := map[string]bool{}
	add := func(cols ...string) {
		for _, c := range cols {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			t.Columns = append(t.Columns, c)
		}
	}

	add(prior...)
	add(IntrinsicColumns...)

	extras := map[string]bool{}
	others := map[string]bool{}
	declared := make(map[string]bool, len(enrichment))
	for _, name := range enrichment {
		declared[name] = true
	}
	for _, r := range rows {
		for k := range r.Extra {
			extras[k] = true
		}
		for k := range r.Enrichment {
			if !declared[k] {
				others[k] = true
			}
		}
	}
	add(slices.Sorted(maps.Keys(extras))...)
	add(enrichment...)
	add(slices.Sorted(maps.Keys(others))...)
	add(StateColumns...)

	for _, col := range t.Columns {
		if declared[col] || others[col] {
			t.Enrichment = append(t.Enrichment, col)
		}
	}

	t.Records = make([]map[string]string, len(rows))
	for i, r := range rows {
		rec := make(map[string]string, len(t.Columns))
		for _, col := range t.Columns {
			rec[col] = r.Value(col)
		}
		t.Records[i] = rec
	}
	return t
}
