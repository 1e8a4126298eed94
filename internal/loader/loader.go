package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"kpidash/internal/config"
	"kpidash/internal/dataset"
)

var (
	// ErrFileNotFound is returned when the workbook path does not exist.
	ErrFileNotFound = errors.New("file not found")
	// ErrSheetNotFound is returned when a requested sheet is absent.
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrUnsupportedFormat is returned for extensions no source can read.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrEmptySheet is returned when a sheet has no header row.
	ErrEmptySheet = errors.New("empty sheet")
)

// Policy decides what happens when a requested sheet is missing.
type Policy string

const (
	// PolicyWarn skips the sheet and records a Warning.
	PolicyWarn Policy = "warn"
	// PolicyFail aborts the load with a *SheetError.
	PolicyFail Policy = "fail"
)

// ParsePolicy maps a configured value to a Policy; anything but "fail"
// warns.
func ParsePolicy(s string) Policy {
	if strings.EqualFold(strings.TrimSpace(s), string(PolicyFail)) {
		return PolicyFail
	}
	return PolicyWarn
}

// SheetError reports a sheet that could not be used.
type SheetError struct {
	Sheet string
	Err   error
}

func (e *SheetError) Error() string {
	return fmt.Sprintf("sheet %q: %v", e.Sheet, e.Err)
}

func (e *SheetError) Unwrap() error {
	return e.Err
}

// Warning is a skipped sheet under PolicyWarn.
type Warning struct {
	Sheet string `json:"sheet"`
	Err   error  `json:"-"`
}

// Message is the JSON-friendly form of the warning.
func (w Warning) Message() string {
	return (&SheetError{Sheet: w.Sheet, Err: w.Err}).Error()
}

// Request describes one load.
type Request struct {
	Path          string
	Sheets        []string
	MissingSheets Policy
}

// Result is a loaded dataset with the sheets it came from.
type Result struct {
	Dataset   *dataset.Dataset
	Format    Format
	Sheets    []string
	Available []string
	Warnings  []Warning
	LoadedAt  time.Time
	Cached    bool
}

// source is one readable workbook, database or spreadsheet
type source interface {
	SheetNames(ctx context.Context) ([]string, error)
	Rows(ctx context.Context, sheet string) ([][]string, error)
	// Parallel reports whether Rows may be called concurrently.
	Parallel() bool
	Close() error
}

// Loader reads workbooks into datasets.
type Loader struct {
	logger *slog.Logger
	sheets SheetsOptions
}

// Option configures a Loader.
type Option func(*Loader)

// WithSheetsOptions sets how Google Sheets sources are reached.
func WithSheetsOptions(opts SheetsOptions) Option {
	return func(l *Loader) { l.sheets = opts }
}

// New creates a Loader.
func New(logger *slog.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger.With(slog.String("component", "loader"))}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the requested sheets of req.Path. With no sheets requested the
// first sheet is used. Several sheets are concatenated with a
// dataset.SourceSheetColumn recording each row's origin.
func (l *Loader) Load(ctx context.Context, req Request) (*Result, error) {
	format, err := DetectFormat(req.Path)
	if err != nil {
		return nil, err
	}
	if format != FormatGoogleSheets {
		if _, err := os.Stat(req.Path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, req.Path)
			}
			return nil, fmt.Errorf("stat %s: %w", req.Path, err)
		}
	}

	src, err := l.open(ctx, format, req.Path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	available, err := src.SheetNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sheets of %s: %w", req.Path, err)
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("%s: %w", req.Path, ErrEmptySheet)
	}

	result := &Result{Format: format, Available: available}

	selected, err := l.resolveSheets(req, available, result)
	if err != nil {
		return nil, err
	}

	tables, err := l.readSheets(ctx, src, selected, req.MissingSheets, result)
	if err != nil {
		return nil, err
	}

	ds, err := dataset.New(dataset.Concat(tables))
	if err != nil {
		return nil, fmt.Errorf("build dataset from %s: %w", req.Path, err)
	}

	result.Dataset = ds
	result.LoadedAt = time.Now()

	l.logger.InfoContext(ctx, "dataset loaded",
		slog.String("path", req.Path),
		slog.String("format", string(format)),
		slog.Any("sheets", result.Sheets),
		slog.Int("rows", ds.Len()),
		slog.Int("columns", len(ds.Columns())),
		slog.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

func (l *Loader) resolveSheets(req Request, available []string, result *Result) ([]string, error) {
	if len(req.Sheets) == 0 {
		return available[:1], nil
	}

	var selected []string
	for _, want := range req.Sheets {
		name, ok := matchSheet(want, available)
		if ok {
			selected = append(selected, name)
			continue
		}
		if req.MissingSheets == PolicyFail {
			return nil, &SheetError{Sheet: want, Err: ErrSheetNotFound}
		}
		l.logger.Warn("requested sheet not found, skipping",
			slog.String("sheet", want),
			slog.Any("available", available),
		)
		result.Warnings = append(result.Warnings, Warning{Sheet: want, Err: ErrSheetNotFound})
	}

	if len(selected) == 0 {
		return nil, &SheetError{Sheet: strings.Join(req.Sheets, ", "), Err: ErrSheetNotFound}
	}
	return selected, nil
}

// matchSheet finds want exactly, then ignoring case and whitespace
func matchSheet(want string, available []string) (string, bool) {
	for _, name := range available {
		if name == want {
			return name, true
		}
	}
	folded := foldSheetName(want)
	for _, name := range available {
		if foldSheetName(name) == folded {
			return name, true
		}
	}
	return "", false
}

func foldSheetName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func (l *Loader) readSheets(ctx context.Context, src source, names []string, policy Policy, result *Result) ([]dataset.Table, error) {
	records := make([][][]string, len(names))

	g, gctx := errgroup.WithContext(ctx)
	if src.Parallel() {
		g.SetLimit(4)
	} else {
		g.SetLimit(1)
	}
	for i, name := range names {
		g.Go(func() error {
			rows, err := src.Rows(gctx, name)
			if err != nil {
				return &SheetError{Sheet: name, Err: err}
			}
			records[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tables := make([]dataset.Table, 0, len(names))
	for i, name := range names {
		t, err := dataset.NewTable(name, records[i])
		if err != nil {
			if policy == PolicyFail {
				return nil, &SheetError{Sheet: name, Err: ErrEmptySheet}
			}
			l.logger.Warn("sheet has no header row, skipping", slog.String("sheet", name))
			result.Warnings = append(result.Warnings, Warning{Sheet: name, Err: ErrEmptySheet})
			continue
		}
		tables = append(tables, t)
		result.Sheets = append(result.Sheets, name)
	}

	if len(tables) == 0 {
		return nil, &SheetError{Sheet: strings.Join(names, ", "), Err: ErrEmptySheet}
	}
	return tables, nil
}

func (l *Loader) open(ctx context.Context, format Format, path string) (source, error) {
	switch format {
	case FormatXLSX:
		return openXLSX(path)
	case FormatXLS:
		return openXLS(path)
	case FormatCSV, FormatCSVGzip, FormatCSVLZ4, FormatZip:
		return openCSV(path, format)
	case FormatSQLite:
		return openSQLite(ctx, path)
	case FormatGoogleSheets:
		return openGoogleSheets(ctx, path, l.sheets)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Format names a supported input kind.
type Format string

const (
	FormatXLSX         Format = "xlsx"
	FormatXLS          Format = "xls"
	FormatCSV          Format = "csv"
	FormatCSVGzip      Format = "csv.gz"
	FormatCSVLZ4       Format = "csv.lz4"
	FormatZip          Format = "zip"
	FormatSQLite       Format = "sqlite"
	FormatGoogleSheets Format = "gsheets"
)

// DetectFormat picks the source kind from the path.
func DetectFormat(path string) (Format, error) {
	if config.IsRemoteSource(path) {
		return FormatGoogleSheets, nil
	}

	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".csv.gz"):
		return FormatCSVGzip, nil
	case strings.HasSuffix(name, ".csv.lz4"):
		return FormatCSVLZ4, nil
	}

	switch filepath.Ext(name) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	case ".csv":
		return FormatCSV, nil
	case ".zip":
		return FormatZip, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}
