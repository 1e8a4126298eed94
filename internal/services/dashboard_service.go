package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"kpidash/internal/aggregate"
	"kpidash/internal/classify"
	"kpidash/internal/config"
	"kpidash/internal/dataset"
	apierrors "kpidash/internal/errors"
	"kpidash/internal/exporter"
	"kpidash/internal/files"
	"kpidash/internal/filter"
	"kpidash/internal/infrastructure"
	"kpidash/internal/loader"
	"kpidash/internal/presenter"
)

// Loader is the part of the load cache the dashboard needs.
type Loader interface {
	Get(ctx context.Context, req loader.Request) (*loader.Result, error)
}

// SourceRequest names the data to load. Empty fields fall back to the
// configured source and sheets.
type SourceRequest struct {
	Source string   `json:"source,omitempty" validate:"omitempty,filename|startswith=gsheet://"`
	Sheets []string `json:"sheets,omitempty" validate:"omitempty,max=32,dive,sheetname"`
}

// RenderRequest is one dashboard selection, as sent by the HTTP API, the
// websocket channel and the CLI.
type RenderRequest struct {
	SourceRequest

	Identifiers      []string `json:"identifiers" validate:"omitempty,max=1000,dive,max=256"`
	From             string   `json:"from,omitempty" validate:"omitempty,isodate"`
	To               string   `json:"to,omitempty" validate:"omitempty,isodate"`
	Buckets          []string `json:"buckets" validate:"omitempty,max=1000"`
	TrendMetric      string   `json:"trend_metric,omitempty" validate:"omitempty,max=256"`
	ComparisonMetric string   `json:"comparison_metric,omitempty" validate:"omitempty,max=256"`
	TopN             int      `json:"top_n,omitempty" validate:"omitempty,min=1,max=100"`
	Reducer          string   `json:"reducer,omitempty" validate:"omitempty,oneof=mean sum count min max"`
}

// Selection converts the request filters. Dates are YYYY-MM-DD.
func (r RenderRequest) Selection() (filter.Selection, error) {
	sel := filter.Selection{Identifiers: r.Identifiers, Buckets: r.Buckets}

	parse := func(field, value string) (*time.Time, error) {
		if value == "" {
			return nil, nil
		}
		t, err := time.Parse(time.DateOnly, value)
		if err != nil {
			return nil, apierrors.NewAppValidationError(fmt.Sprintf("%s must be a date in YYYY-MM-DD form", field), err)
		}
		return &t, nil
	}

	var err error
	if sel.From, err = parse("from", r.From); err != nil {
		return filter.Selection{}, err
	}
	if sel.To, err = parse("to", r.To); err != nil {
		return filter.Selection{}, err
	}
	if err := sel.Validate(); err != nil {
		return filter.Selection{}, apierrors.NewAppValidationError("invalid date range", err)
	}
	return sel, nil
}

// ColumnInfo describes one column of the loaded dataset.
type ColumnInfo struct {
	Name string        `json:"name"`
	Type string        `json:"type"`
	Role classify.Role `json:"role"`
}

// TimeRange is the span of parsed dates in the time column.
type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Schema is what a client needs to build the selection controls.
type Schema struct {
	Source      string           `json:"source"`
	Format      loader.Format    `json:"format"`
	Sheets      []string         `json:"sheets"`
	Available   []string         `json:"available_sheets"`
	Rows        int              `json:"rows"`
	Columns     []ColumnInfo     `json:"columns"`
	Roles       classify.Roles   `json:"roles"`
	Identifiers []string         `json:"identifiers,omitempty"`
	Buckets     []string         `json:"buckets,omitempty"`
	TimeRange   *TimeRange       `json:"time_range,omitempty"`
	TopN        presenter.Bounds `json:"top_n"`
	Warnings    []string         `json:"warnings,omitempty"`
	LoadedAt    time.Time        `json:"loaded_at"`
	Cached      bool             `json:"cached"`
}

// Notifier tells live clients that the data changed.
type Notifier interface {
	BroadcastRefresh(source string)
}

// DashboardService loads the configured KPI source and renders or exports
// selections of it.
type DashboardService struct {
	cfg      *config.Config
	paths    *config.Paths
	loader   Loader
	metrics  *infrastructure.DashboardMetrics
	notifier Notifier
	logger   *slog.Logger
}

// NewDashboardService creates the dashboard service. paths and metrics may
// be nil.
func NewDashboardService(cfg *config.Config, paths *config.Paths, l Loader, metrics *infrastructure.DashboardMetrics, logger *slog.Logger) *DashboardService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}

	logger.Info("DashboardService initialized",
		slog.String("source", cfg.Data.Source),
		slog.Any("sheets", cfg.Data.Sheets),
		slog.String("missing_sheets", cfg.Data.MissingSheets))

	return &DashboardService{
		cfg:     cfg,
		paths:   paths,
		loader:  l,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "dashboard_service")),
	}
}

// SetNotifier sets who is told about reloads
func (s *DashboardService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Reload drops cached loads so the next request reads the source again, and
// tells live clients to re-render.
func (s *DashboardService) Reload(ctx context.Context) {
	if inv, ok := s.loader.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
	s.logger.InfoContext(ctx, "data source reloaded", slog.String("source", s.cfg.Data.Source))
	if s.notifier != nil {
		s.notifier.BroadcastRefresh(s.cfg.Data.Source)
	}
}

// Sources lists the data files in the data directory, newest first.
func (s *DashboardService) Sources(ctx context.Context) ([]files.Source, error) {
	if s.paths == nil || s.paths.DataDir == "" {
		return nil, apierrors.NewConfigError("no data directory configured", ErrNoDataSource)
	}

	found, err := files.NewDiscovery(s.paths.DataDir, s.logger).FindSources("")
	if err != nil {
		return nil, apierrors.NewNotFoundError("data directory", err)
	}
	s.logger.DebugContext(ctx, "listed data sources", slog.Int("count", len(found)))
	return found, nil
}

// ExportFileName is the download name for CSV exports.
func (s *DashboardService) ExportFileName() string {
	if s.cfg.Data.ExportFileName == "" {
		return "employee_filtered_data.csv"
	}
	return s.cfg.Data.ExportFileName
}

// Options are the presenter options for req on top of the configuration.
func (s *DashboardService) Options(req RenderRequest) presenter.Options {
	opts := presenter.Options{
		CardMetrics:      s.cfg.Data.CardMetrics,
		TrendMetric:      req.TrendMetric,
		ComparisonMetric: req.ComparisonMetric,
		TopN:             req.TopN,
		TopNMin:          s.cfg.Data.TopNMin,
		TopNMax:          s.cfg.Data.TopNMax,
		PreviewRows:      s.cfg.Data.PreviewRows,
	}
	if by, err := aggregate.ParseReducer(req.Reducer); err == nil {
		opts.Reducer = by
	}
	return opts
}

type loaded struct {
	result *loader.Result
	roles  classify.Roles
}

func (s *DashboardService) load(ctx context.Context, req SourceRequest) (*loaded, error) {
	source := req.Source
	if source == "" {
		source = s.cfg.Data.Source
	}
	if source == "" {
		return nil, apierrors.NewConfigError("no data source configured", ErrNoDataSource)
	}
	if s.loader == nil {
		return nil, apierrors.NewConfigError("no loader configured", ErrServiceUnavailable)
	}

	path := source
	if s.paths != nil {
		path = s.paths.DataPath(source)
	}
	sheets := req.Sheets
	if len(sheets) == 0 {
		sheets = s.cfg.Data.Sheets
	}

	res, err := s.loader.Get(ctx, loader.Request{
		Path:          path,
		Sheets:        sheets,
		MissingSheets: loader.ParsePolicy(s.cfg.Data.MissingSheets),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "load failed",
			slog.String("source", source),
			slog.String("error", err.Error()))
		return nil, loadError(source, err)
	}

	roles := classify.Classify(res.Dataset, classify.Hints{
		Identifier: s.cfg.Data.IdentifierColumn,
		Time:       s.cfg.Data.TimeColumn,
	})
	return &loaded{result: res, roles: roles}, nil
}

// loadError maps loader failures onto the application error taxonomy.
func loadError(source string, err error) error {
	var appErr *apierrors.AppError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, loader.ErrFileNotFound):
		appErr = apierrors.NewNotFoundError("data source", err)
	case errors.Is(err, loader.ErrSheetNotFound):
		appErr = apierrors.NewNotFoundError("sheet", err)
	case errors.Is(err, loader.ErrUnsupportedFormat):
		appErr = apierrors.NewAppValidationError("unsupported data source format", err)
	case errors.Is(err, loader.ErrEmptySheet), errors.Is(err, dataset.ErrNoColumns), errors.Is(err, dataset.ErrNoHeader):
		appErr = apierrors.NewParsingError("data source has no usable rows", err)
	default:
		appErr = apierrors.NewLoadError("failed to load data source", err)
	}

	var sheetErr *loader.SheetError
	if errors.As(err, &sheetErr) {
		appErr.WithContext("sheet", sheetErr.Sheet)
	}
	return appErr.WithContext("source", source)
}

// Schema describes the dataset behind req.
func (s *DashboardService) Schema(ctx context.Context, req SourceRequest) (*Schema, error) {
	l, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}
	ds := l.result.Dataset

	schema := &Schema{
		Source:    ds.Name(),
		Format:    l.result.Format,
		Sheets:    l.result.Sheets,
		Available: l.result.Available,
		Rows:      ds.Len(),
		Roles:     l.roles,
		Warnings:  warnings(l.result),
		LoadedAt:  l.result.LoadedAt,
		Cached:    l.result.Cached,
	}

	for _, name := range ds.Columns() {
		typ, _ := ds.Type(name)
		schema.Columns = append(schema.Columns, ColumnInfo{Name: name, Type: string(typ), Role: l.roles.RoleOf(name)})
	}

	if ds.HasColumn(l.roles.Identifier) {
		if schema.Identifiers, err = ds.Distinct(l.roles.Identifier); err != nil {
			return nil, apierrors.NewRenderError("failed to list identifiers", err)
		}
	}
	if l.roles.HasTime() {
		if schema.Buckets, err = sortedBuckets(ds, l.roles.Time); err != nil {
			return nil, apierrors.NewRenderError("failed to list time buckets", err)
		}
		from, to, ok, err := ds.TimeRange(l.roles.Time)
		if err != nil {
			return nil, apierrors.NewRenderError("failed to compute time range", err)
		}
		if ok {
			schema.TimeRange = &TimeRange{From: from.Format(time.DateOnly), To: to.Format(time.DateOnly)}
		}
	}

	opts := s.Options(RenderRequest{})
	schema.TopN = presenter.Bounds{Min: presenter.DefaultTopNMin, Max: presenter.DefaultTopNMax}
	if opts.TopNMin > 0 {
		schema.TopN.Min = opts.TopNMin
	}
	if opts.TopNMax >= schema.TopN.Min {
		schema.TopN.Max = opts.TopNMax
	}
	schema.TopN.Max = min(schema.TopN.Max, max(schema.TopN.Min, len(schema.Identifiers)))

	return schema, nil
}

func sortedBuckets(ds *dataset.Dataset, col string) ([]string, error) {
	labels, err := ds.Distinct(col)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(labels, func(i, j int) bool {
		return dataset.ParseBucket(labels[i]).Compare(dataset.ParseBucket(labels[j])) < 0
	})
	return labels, nil
}

func warnings(res *loader.Result) []string {
	out := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		out = append(out, w.Message())
	}
	return out
}

// Render builds the dashboard model for req.
func (s *DashboardService) Render(ctx context.Context, req RenderRequest) (*presenter.RenderModel, error) {
	start := time.Now()
	model, format, err := s.render(ctx, req)

	rows := 0
	if model != nil {
		rows = model.RowCount
	}
	s.metrics.RecordRender(ctx, format, rows, time.Since(start), err)

	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "render completed",
		slog.String("source", model.Source),
		slog.Int("rows", model.RowCount),
		slog.Bool("empty", model.Empty),
		slog.Duration("duration", time.Since(start)))
	return model, nil
}

func (s *DashboardService) render(ctx context.Context, req RenderRequest) (*presenter.RenderModel, string, error) {
	sel, err := req.Selection()
	if err != nil {
		return nil, "", err
	}
	l, err := s.load(ctx, req.SourceRequest)
	if err != nil {
		return nil, "", err
	}
	format := string(l.result.Format)

	model, err := presenter.Render(l.result.Dataset, l.roles, sel, s.Options(req))
	if err != nil {
		if errors.Is(err, filter.ErrInvalidRange) {
			return nil, format, apierrors.NewAppValidationError("invalid date range", err)
		}
		return nil, format, apierrors.NewRenderError("failed to render dashboard", err)
	}
	model.Notices = append(warnings(l.result), model.Notices...)
	return &model, format, nil
}

// View returns the filtered rows for req.
func (s *DashboardService) View(ctx context.Context, req RenderRequest) (*dataset.Dataset, error) {
	sel, err := req.Selection()
	if err != nil {
		return nil, err
	}
	l, err := s.load(ctx, req.SourceRequest)
	if err != nil {
		return nil, err
	}

	view, err := filter.Apply(l.result.Dataset, l.roles, sel)
	if err != nil {
		return nil, apierrors.NewAppValidationError("invalid selection", err)
	}
	return view, nil
}

// Export writes the filtered rows for req to w as CSV.
func (s *DashboardService) Export(ctx context.Context, req RenderRequest, w io.Writer) error {
	view, err := s.View(ctx, req)
	if err != nil {
		return err
	}
	if err := exporter.WriteView(w, view); err != nil {
		return apierrors.NewRenderError("failed to write csv", err)
	}

	if s.metrics != nil {
		s.metrics.ExportsTotal.Add(ctx, 1)
	}
	s.logger.InfoContext(ctx, "export completed",
		slog.String("source", view.Name()),
		slog.Int("rows", view.Len()))
	return nil
}
