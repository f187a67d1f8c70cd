package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/xuri/excelize/v2"

	"github.com/roach88/jobtrail/internal/model"
)

// DefaultSheet is the sheet written when none is configured.
const DefaultSheet = "Sheet1"

// MetaSheet is the hidden sheet listing the table's enrichment columns.
const MetaSheet = "jobtrail"

const metaHeader = "enrichment_columns"

// Workbook is an xlsx document on disk.
type Workbook struct {
	path  string
	sheet string
}

// NewWorkbook returns a workbook at path. An empty sheet reads the first sheet
// and writes DefaultSheet.
func NewWorkbook(path, sheet string) *Workbook {
	return &Workbook{path: path, sheet: sheet}
}

// Path returns the workbook's file path.
func (w *Workbook) Path() string {
	return w.path
}

// Read loads the table from the workbook. The first row is the header. A
// missing file yields an error wrapping ErrNotFound.
func (w *Workbook) Read(_ context.Context) (model.Table, error) {
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.Table{}, fmt.Errorf("%w: %s", ErrNotFound, w.path)
		}
		return model.Table{}, fmt.Errorf("open workbook %s: %w", w.path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	sheet := w.sheet
	if sheet == "" {
		if len(sheets) == 0 {
			return model.Table{}, nil
		}
		sheet = sheets[0]
	}

	lines, err := f.GetRows(sheet)
	if err != nil {
		return model.Table{}, fmt.Errorf("read sheet %q of %s: %w", sheet, w.path, err)
	}
	if len(lines) == 0 {
		return model.Table{}, nil
	}
	t := model.NewTable(lines[0], lines[1:])

	if sheet != MetaSheet && slices.Contains(sheets, MetaSheet) {
		meta, err := f.GetRows(MetaSheet)
		if err != nil {
			return model.Table{}, fmt.Errorf("read sheet %q of %s: %w", MetaSheet, w.path, err)
		}
		t.Enrichment = metaColumns(meta)
	}
	return t, nil
}

// metaColumns reads the enrichment column names below the meta header.
func metaColumns(lines [][]string) []string {
	var cols []string
	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		if i == 0 && line[0] == metaHeader {
			continue
		}
		if col := model.NormalizeColumn(line[0]); col != "" {
			cols = append(cols, col)
		}
	}
	return cols
}

// Write replaces the workbook with t. The file is written to a temporary
// file in the same directory and renamed over the target, so a failure leaves
// the previous workbook intact.
func (w *Workbook) Write(_ context.Context, t model.Table) error {
	sheet := w.sheet
	if sheet == "" {
		sheet = DefaultSheet
	}

	f := excelize.NewFile()
	defer f.Close()
	if sheet != DefaultSheet {
		if err := f.SetSheetName(DefaultSheet, sheet); err != nil {
			return fmt.Errorf("name sheet: %w", err)
		}
	}

	header, lines := t.Cells()
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, line := range lines {
		if err := setRow(f, sheet, i+2, line); err != nil {
			return err
		}
	}
	if len(t.Enrichment) > 0 {
		if err := writeMeta(f, t.Enrichment); err != nil {
			return err
		}
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".jobtrail-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("encode workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("replace %s: %w", w.path, err)
	}
	return nil
}

// writeMeta records the enrichment columns in the hidden MetaSheet.
func writeMeta(f *excelize.File, cols []string) error {
	if _, err := f.NewSheet(MetaSheet); err != nil {
		return fmt.Errorf("create meta sheet: %w", err)
	}
	if err := setRow(f, MetaSheet, 1, []string{metaHeader}); err != nil {
		return err
	}
	for i, col := range cols {
		if err := setRow(f, MetaSheet, i+2, []string{col}); err != nil {
			return err
		}
	}
	if err := f.SetSheetVisible(MetaSheet, false); err != nil {
		return fmt.Errorf("hide meta sheet: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = clipCell(v)
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("write row %d: %w", n, err)
	}
	return nil
}

// clipCell keeps a value within the xlsx cell limit.
func clipCell(s string) string {
	if len(s) <= excelize.TotalCellChars {
		return s
	}
	r := []rune(s)
	if len(r) <= excelize.TotalCellChars {
		return s
	}
	return string(r[:excelize.TotalCellChars])
}
