// Package document reads and writes the row tables of the master document and
// the local working copy.
//
// A Source only reads; the master document is never written by jobtrail. A
// Store also writes and is used for the local working copy. Writes replace
// the whole table atomically: either the new table is fully in place or the
// previous file is untouched.
package document

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roach88/jobtrail/internal/model"
)

// ErrNotFound is wrapped by Read when the document does not exist yet.
var ErrNotFound = errors.New("document not found")

// Source reads a full row table.
type Source interface {
	Read(ctx context.Context) (model.Table, error)
}

// Store reads and writes a full row table.
type Store interface {
	Source
	Write(ctx context.Context, t model.Table) error
}

// SheetScheme prefixes Google Sheets master locations:
// gsheet://<spreadsheet-id>/<sheet>.
const SheetScheme = "gsheet://"

// Location is a parsed master location.
type Location struct {
	// Path is set for workbook files.
	Path string

	// SpreadsheetID and Sheet are set for Google Sheets.
	SpreadsheetID string
	Sheet         string
}

// IsSheet reports whether the location names a Google Sheet.
func (l Location) IsSheet() bool {
	return l.SpreadsheetID != ""
}

// ParseLocation parses a master location: a file path or a gsheet:// URL.
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Location{}, errors.New("empty document location")
	}
	rest, ok := strings.CutPrefix(s, SheetScheme)
	if !ok {
		return Location{Path: s}, nil
	}
	id, sheet, _ := strings.Cut(rest, "/")
	if id == "" {
		return Location{}, fmt.Errorf("missing spreadsheet id in %q", s)
	}
	return Location{SpreadsheetID: id, Sheet: sheet}, nil
}

// LocalPath returns the local working copy path for a master location:
// the master's base name inside dir, or <spreadsheet-id>.xlsx for sheets.
func LocalPath(dir string, master Location) string {
	if master.IsSheet() {
		return filepath.Join(dir, master.SpreadsheetID+".xlsx")
	}
	return filepath.Join(dir, filepath.Base(master.Path))
}

// OpenSource opens the master document at loc. credentials is the service
// account key file used for Google Sheets.
func OpenSource(ctx context.Context, loc Location, credentials string) (Source, error) {
	if loc.IsSheet() {
		return NewSheetSource(ctx, credentials, loc.SpreadsheetID, loc.Sheet)
	}
	return NewWorkbook(loc.Path, ""), nil
}
