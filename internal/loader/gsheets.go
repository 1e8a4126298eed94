package loader

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"kpidash/internal/config"
)

// SheetsOptions configures access to Google Sheets sources.
type SheetsOptions struct {
	APIKey          string
	CredentialsFile string
	// Endpoint overrides the API base URL.
	Endpoint string
}

// SheetsOptionsFromConfig maps the configuration section.
func SheetsOptionsFromConfig(cfg config.GoogleSheetsConfig) SheetsOptions {
	return SheetsOptions{
		APIKey:          cfg.APIKey,
		CredentialsFile: cfg.CredentialsFile,
		Endpoint:        cfg.Endpoint,
	}
}

func (o SheetsOptions) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case o.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(o.CredentialsFile))
	case o.APIKey != "":
		opts = append(opts, option.WithAPIKey(o.APIKey))
	default:
		opts = append(opts, option.WithoutAuthentication())
	}
	if o.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(o.Endpoint))
	}
	return opts
}

type gsheetSource struct {
	id      string
	service *sheets.Service
}

func openGoogleSheets(ctx context.Context, ref string, opts SheetsOptions) (*gsheetSource, error) {
	id := strings.TrimPrefix(ref, config.GoogleSheetsScheme)
	service, err := sheets.NewService(ctx, opts.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &gsheetSource{id: id, service: service}, nil
}

func (s *gsheetSource) SheetNames(ctx context.Context) ([]string, error) {
	resp, err := s.service.Spreadsheets.Get(s.id).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch spreadsheet %s: %w", s.id, err)
	}

	names := make([]string, 0, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			names = append(names, sh.Properties.Title)
		}
	}
	return names, nil
}

func (s *gsheetSource) Rows(ctx context.Context, sheet string) ([][]string, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.id, a1Sheet(sheet)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch values: %w", err)
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		rows[i] = cells
	}
	return rows, nil
}

func (s *gsheetSource) Parallel() bool { return true }

func (s *gsheetSource) Close() error { return nil }

// a1Sheet quotes a sheet title for use as an A1 range
func a1Sheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
