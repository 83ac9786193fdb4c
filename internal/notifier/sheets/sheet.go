package sheets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/content-curator/internal/config"
	"github.com/content-curator/internal/models"
	"github.com/content-curator/pkg/logger"
	"github.com/content-curator/pkg/ratelimit"
)

// Columns are the header row of the delivery log
var Columns = []string{
	"Delivered At",
	"Title",
	"URL",
	"Author",
	"Message",
}

// previewLen bounds the message column
const previewLen = 200

// Log appends each delivered message as a row of a Google Sheet
type Log struct {
	name          string
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	limiter       *ratelimit.MultiLimiter
	log           *logger.Logger
	now           func() time.Time

	mu          sync.Mutex
	initialized bool
}

// New creates a sheet log. opts override the credentials from cfg.
func New(ctx context.Context, cfg config.SheetsConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger, opts ...option.ClientOption) (*Log, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("notifiers.sheets.spreadsheet_id is required")
	}

	if len(opts) == 0 {
		switch {
		case cfg.ServiceAccountJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
		case cfg.CredentialsFile != "":
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		default:
			return nil, fmt.Errorf("no Google credentials provided: set credentials_file or service_account_json")
		}
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = "sheets"
	}
	sheetName := cfg.SheetName
	if sheetName == "" {
		sheetName = "Deliveries"
	}

	return &Log{
		name:          name,
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		limiter:       limiter,
		log:           log.WithNotifier(name),
		now:           time.Now,
	}, nil
}

// Name returns the notifier reference name
func (l *Log) Name() string {
	return l.name
}

// Deliver appends one row for msg, creating the sheet and headers on first use
func (l *Log) Deliver(ctx context.Context, msg *models.Message) error {
	if err := l.ensureInitialized(ctx); err != nil {
		return err
	}

	if err := l.limiter.Wait(ctx, ratelimit.LimiterSheets); err != nil {
		return err
	}

	row := Row(msg, l.now())
	_, err := l.service.Spreadsheets.Values.Append(l.spreadsheetID, l.sheetName+"!A:E", &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}

	l.log.Debug().Interface("title", row[1]).Msg("Delivery logged")
	return nil
}

// Test writes the header row if missing, proving access to the spreadsheet
func (l *Log) Test(ctx context.Context) error {
	return l.ensureInitialized(ctx)
}

// Row renders msg as a sheet row. Title, url and author come from the first embed.
func Row(msg *models.Message, at time.Time) []interface{} {
	var title, url, author string
	if len(msg.Embeds) > 0 {
		e := msg.Embeds[0]
		title, url = e.Title, e.URL
		if e.Author != nil {
			author = e.Author.Name
		}
	}

	preview := []rune(msg.Content)
	content := msg.Content
	if len(preview) > previewLen {
		content = string(preview[:previewLen]) + "..."
	}

	return []interface{}{at.UTC().Format(time.RFC3339), title, url, author, content}
}

func (l *Log) ensureInitialized(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return nil
	}
	if err := l.ensureSheetExists(ctx); err != nil {
		return err
	}

	resp, err := l.service.Spreadsheets.Values.Get(l.spreadsheetID, l.sheetName+"!A1:E1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}

	if len(resp.Values) == 0 {
		l.log.Info().Msg("Initializing sheet with headers")
		if err := l.writeHeaders(ctx); err != nil {
			return err
		}
	}

	l.initialized = true
	return nil
}

// ensureSheetExists creates the sheet if it doesn't exist
func (l *Log) ensureSheetExists(ctx context.Context) error {
	spreadsheet, err := l.service.Spreadsheets.Get(l.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == l.sheetName {
			return nil
		}
	}

	l.log.Info().Str("sheet", l.sheetName).Msg("Creating new sheet")
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: l.sheetName,
					},
				},
			},
		},
	}

	if _, err := l.service.Spreadsheets.BatchUpdate(l.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	return nil
}

func (l *Log) writeHeaders(ctx context.Context) error {
	header := make([]interface{}, 0, len(Columns))
	for _, col := range Columns {
		header = append(header, col)
	}

	_, err := l.service.Spreadsheets.Values.Update(l.spreadsheetID, l.sheetName+"!A1", &sheets.ValueRange{
		Values: [][]interface{}{header},
	}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	return nil
}
