package document

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/roach88/jobtrail/internal/model"
)

// SheetSource reads a master document kept in Google Sheets. It is read-only:
// the service account only needs the spreadsheets.readonly scope.
type SheetSource struct {
	svc           *sheets.Service
	spreadsheetID string
	sheet         string
}

// NewSheetSource authenticates with a service account key file and returns a
// source for one sheet. An empty sheet reads the first sheet.
func NewSheetSource(ctx context.Context, credentialsFile, spreadsheetID, sheet string) (*SheetSource, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("google sheets master requires a credentials file")
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return NewSheetSourceWithOptions(ctx, spreadsheetID, sheet, option.WithHTTPClient(conf.Client(ctx)))
}

// NewSheetSourceWithOptions builds a source from explicit client options.
func NewSheetSourceWithOptions(ctx context.Context, spreadsheetID, sheet string, opts ...option.ClientOption) (*SheetSource, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetSource{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}, nil
}

// Read fetches every value of the sheet. The first row is the header.
func (s *SheetSource) Read(ctx context.Context) (model.Table, error) {
	sheet := s.sheet
	if sheet == "" {
		first, err := s.firstSheet(ctx)
		if err != nil {
			return model.Table{}, err
		}
		sheet = first
	}

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, sheet).
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return model.Table{}, fmt.Errorf("read sheet %q of %s: %w", sheet, s.spreadsheetID, err)
	}
	if len(resp.Values) == 0 {
		return model.Table{}, nil
	}

	lines := make([][]string, len(resp.Values))
	for i, raw := range resp.Values {
		line := make([]string, len(raw))
		for j, v := range raw {
			line[j] = fmt.Sprint(v)
		}
		lines[i] = line
	}
	return model.NewTable(lines[0], lines[1:]), nil
}

func (s *SheetSource) firstSheet(ctx context.Context) (string, error) {
	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("get spreadsheet %s: %w", s.spreadsheetID, err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return "", fmt.Errorf("spreadsheet %s has no sheets", s.spreadsheetID)
	}
	return ss.Sheets[0].Properties.Title, nil
}
