// Package sheets is a thin wrapper over the shared Google Sheets document
// that persists registrations and submissions. Worksheet titles are the
// primary keys: one "Registered_Users" worksheet plus one worksheet per
// calendar date, created lazily with a fixed header row.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	registeredUsersTitle = "Registered_Users"

	// Worksheets are created with a fixed capacity, mirroring the shared
	// document's existing tabs.
	defaultRowCount = 200
)

var (
	registeredUsersHeader = []interface{}{"Discord Username", "Real Name"}
	daySheetHeader        = []interface{}{"Date", "Username", "Screenshot", "Problem Name"}
)

// ErrWorksheetNotFound is returned when a worksheet title does not exist in
// the document. Callers use it to tell "no day sheet yet" apart from a
// transient API failure.
var ErrWorksheetNotFound = errors.New("worksheet not found")

// Store wraps the remote spreadsheet document.
type Store struct {
	svc           *sheets.Service
	spreadsheetID string
}

// New builds a Store from service-account credentials. Inline JSON takes
// priority over the key file path.
func New(ctx context.Context, spreadsheetID, credsJSON, credsFile string) (*Store, error) {
	data := []byte(credsJSON)
	if credsJSON == "" {
		b, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		data = b
	}

	jwtCfg, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Store{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// LoadRegisteredUsers reads all registered users from the document,
// creating the registered-users worksheet if it does not exist yet.
// Returns username -> real name.
func (s *Store) LoadRegisteredUsers(ctx context.Context) (map[string]string, error) {
	created, err := s.ensureWorksheet(ctx, registeredUsersTitle, registeredUsersHeader)
	if err != nil {
		return nil, err
	}

	users := make(map[string]string)
	if created {
		return users, nil
	}

	rows, err := s.rows(ctx, registeredUsersTitle)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue // header or short row
		}
		username, _ := row[0].(string)
		realName, _ := row[1].(string)
		if username != "" {
			users[username] = realName
		}
	}
	return users, nil
}

// AppendRegisteredUser appends a (username, real name) row to the
// registered-users worksheet.
func (s *Store) AppendRegisteredUser(ctx context.Context, username, realName string) error {
	if _, err := s.ensureWorksheet(ctx, registeredUsersTitle, registeredUsersHeader); err != nil {
		return err
	}
	return s.appendRow(ctx, registeredUsersTitle, []interface{}{username, realName})
}

// AppendSubmission appends a submission row to the day sheet for the given
// date (YYYY-MM-DD), creating the sheet if this is the day's first
// submission.
func (s *Store) AppendSubmission(ctx context.Context, date, username, imageURL, problemName string) error {
	if _, err := s.ensureWorksheet(ctx, date, daySheetHeader); err != nil {
		return err
	}
	return s.appendRow(ctx, date, []interface{}{date, username, imageURL, problemName})
}

// SubmittedUsernames returns the set of usernames with a row in the given
// date's sheet. Returns ErrWorksheetNotFound when no sheet exists for that
// date.
func (s *Store) SubmittedUsernames(ctx context.Context, date string) (map[string]bool, error) {
	exists, err := s.worksheetExists(ctx, date)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrWorksheetNotFound, date)
	}

	rows, err := s.rows(ctx, date)
	if err != nil {
		return nil, err
	}

	submitted := make(map[string]bool)
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue // header or short row
		}
		if username, _ := row[1].(string); username != "" {
			submitted[username] = true
		}
	}
	return submitted, nil
}

// worksheetExists checks for a worksheet by exact title match.
func (s *Store) worksheetExists(ctx context.Context, title string) (bool, error) {
	doc, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("failed to fetch spreadsheet: %w", err)
	}
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return true, nil
		}
	}
	return false, nil
}

// ensureWorksheet creates the worksheet with its header row if missing.
// Lookup-or-create, no locking: a concurrent creator could race, but only
// one process runs. Reports whether the worksheet was created.
func (s *Store) ensureWorksheet(ctx context.Context, title string, header []interface{}) (bool, error) {
	exists, err := s.worksheetExists(ctx, title)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title: title,
					GridProperties: &sheets.GridProperties{
						RowCount:    defaultRowCount,
						ColumnCount: int64(len(header)),
					},
				},
			},
		}},
	}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return false, fmt.Errorf("failed to create worksheet %q: %w", title, err)
	}

	if err := s.appendRow(ctx, title, header); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) appendRow(ctx context.Context, title string, row []interface{}) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{row}}
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, title, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append row to %q: %w", title, err)
	}
	return nil
}

func (s *Store) rows(ctx context.Context, title string) ([][]interface{}, error) {
	vr, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, title).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %q: %w", title, err)
	}
	return vr.Values, nil
}
