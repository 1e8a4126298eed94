package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kpidash/internal/classify"
	"kpidash/internal/config"
	apierrors "kpidash/internal/errors"
	"kpidash/internal/filter"
	"kpidash/internal/loader"
	"kpidash/internal/middleware"
	"kpidash/internal/presenter"
	"kpidash/internal/shared/testutil"
)

func newTestService(t *testing.T) *DashboardService {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteKPISource(t, dir, "kpis.csv")

	cfg := config.Default()
	cfg.Data.Source = "kpis.csv"
	cache := loader.NewCache(loader.New(testutil.QuietLogger()), 4, 0, nil)
	return NewDashboardService(cfg, &config.Paths{DataDir: dir}, cache, nil, testutil.QuietLogger())
}

func appErrorType(t *testing.T, err error) apierrors.ErrorType {
	t.Helper()
	var appErr *apierrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.Type
}

func TestDashboardService_Schema(t *testing.T) {
	svc := newTestService(t)

	schema, err := svc.Schema(context.Background(), SourceRequest{})
	require.NoError(t, err)

	assert.Equal(t, loader.FormatCSV, schema.Format)
	assert.Equal(t, 4, schema.Rows)
	assert.Equal(t, "Employee_ID", schema.Roles.Identifier)
	assert.Equal(t, "Reporting_Period", schema.Roles.Time)
	assert.Equal(t, []string{"E1", "E2", "E3"}, schema.Identifiers)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29"}, schema.Buckets)
	assert.Equal(t, &TimeRange{From: "2024-01-31", To: "2024-02-29"}, schema.TimeRange)
	assert.Equal(t, presenter.Bounds{Min: 3, Max: 3}, schema.TopN)
	assert.False(t, schema.Cached)

	require.Len(t, schema.Columns, 5)
	assert.Equal(t, ColumnInfo{Name: "Employee_ID", Type: "string", Role: classify.RoleIdentifier}, schema.Columns[0])
	assert.Equal(t, classify.RoleMetric, schema.Columns[4].Role)

	again, err := svc.Schema(context.Background(), SourceRequest{})
	require.NoError(t, err)
	assert.True(t, again.Cached)
}

func TestDashboardService_Render(t *testing.T) {
	svc := newTestService(t)

	model, err := svc.Render(context.Background(), RenderRequest{From: "2024-02-01"})
	require.NoError(t, err)
	assert.Equal(t, 2, model.RowCount)
	require.NotNil(t, model.Comparison)
	assert.Equal(t, 3, model.Comparison.N)

	empty, err := svc.Render(context.Background(), RenderRequest{Identifiers: []string{"E9"}})
	require.NoError(t, err)
	assert.True(t, empty.Empty)
	assert.Contains(t, empty.Notices, presenter.NoticeNoData)

	none, err := svc.Render(context.Background(), RenderRequest{Identifiers: []string{}})
	require.NoError(t, err)
	assert.Equal(t, 0, none.RowCount)
	assert.True(t, none.Empty)

	total, err := svc.Render(context.Background(), RenderRequest{Reducer: "sum"})
	require.NoError(t, err)
	require.NotNil(t, total.Trend)
	assert.Equal(t, "Total Time Low Value Tasks Hours over time", total.Trend.Title)
	assert.Equal(t, 6.0, total.Trend.Points[0].Value.Float())
	assert.Equal(t, 4.0, total.Trend.Points[1].Value.Float())
}

func TestDashboardService_RenderErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RenderRequest
		want apierrors.ErrorType
	}{
		{"inverted range", RenderRequest{From: "2024-03-01", To: "2024-01-01"}, apierrors.ErrTypeValidation},
		{"bad date", RenderRequest{From: "31/01/2024"}, apierrors.ErrTypeValidation},
		{"missing file", RenderRequest{SourceRequest: SourceRequest{Source: "nope.xlsx"}}, apierrors.ErrTypeNotFound},
		{"unsupported format", RenderRequest{SourceRequest: SourceRequest{Source: "kpis.pdf"}}, apierrors.ErrTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Render(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.want, appErrorType(t, err))
		})
	}

	_, err := svc.Render(ctx, RenderRequest{From: "2024-03-01", To: "2024-01-01"})
	assert.ErrorIs(t, err, filter.ErrInvalidRange)
}

func TestDashboardService_NoSource(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Source = ""
	svc := NewDashboardService(cfg, nil, new(MockLoader), nil, testutil.QuietLogger())

	_, err := svc.Render(context.Background(), RenderRequest{})
	assert.ErrorIs(t, err, ErrNoDataSource)
	assert.Equal(t, apierrors.ErrTypeConfig, appErrorType(t, err))
}

func TestDashboardService_LoadErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apierrors.ErrorType
	}{
		{"sheet", &loader.SheetError{Sheet: "Q9", Err: loader.ErrSheetNotFound}, apierrors.ErrTypeNotFound},
		{"empty", fmt.Errorf("read: %w", loader.ErrEmptySheet), apierrors.ErrTypeParsing},
		{"other", errors.New("disk on fire"), apierrors.ErrTypeLoad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := new(MockLoader)
			l.On("Get", mock.Anything, mock.MatchedBy(func(req loader.Request) bool {
				return req.Path == "kpis.xlsx" && req.MissingSheets == loader.PolicyWarn
			})).Return(nil, tt.err)

			cfg := config.Default()
			cfg.Data.Source = "kpis.xlsx"
			svc := NewDashboardService(cfg, nil, l, nil, testutil.QuietLogger())

			_, err := svc.Schema(context.Background(), SourceRequest{})
			require.Error(t, err)
			assert.Equal(t, tt.want, appErrorType(t, err))
			assert.ErrorIs(t, err, tt.err)
			l.AssertExpectations(t)
		})
	}

	l := new(MockLoader)
	l.On("Get", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)
	svc := NewDashboardService(config.Default(), nil, l, nil, testutil.QuietLogger())
	_, err := svc.Schema(context.Background(), SourceRequest{})
	assert.Equal(t, context.DeadlineExceeded, err)
}

func TestDashboardService_Export(t *testing.T) {
	svc := newTestService(t)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(context.Background(), RenderRequest{Identifiers: []string{"E1"}}, &buf))
	assert.Equal(t,
		"Employee_ID,Reporting_Period,Time_Low_Value_Tasks_Hours,Total_Work_Time_Hours,Cost_Per_Hour\n"+
			"E1,2024-01-31,2,40,50\n"+
			"E1,2024-02-29,3,41,52\n",
		buf.String())
	assert.Equal(t, "employee_filtered_data.csv", svc.ExportFileName())
}

func TestRenderRequest_Validation(t *testing.T) {
	v := middleware.NewValidator()

	tests := []struct {
		name    string
		req     RenderRequest
		wantErr bool
	}{
		{"empty", RenderRequest{}, false},
		{"full", RenderRequest{
			SourceRequest: SourceRequest{Source: "kpis.xlsx", Sheets: []string{"Q1"}},
			Identifiers:   []string{"E1"},
			From:          "2024-01-01",
			To:            "2024-02-01",
			TopN:          5,
		}, false},
		{"remote source", RenderRequest{SourceRequest: SourceRequest{Source: "gsheet://abc"}}, false},
		{"path source", RenderRequest{SourceRequest: SourceRequest{Source: "../etc/passwd"}}, true},
		{"bad sheet", RenderRequest{SourceRequest: SourceRequest{Sheets: []string{"a/b"}}}, true},
		{"bad date", RenderRequest{From: "Jan 2024"}, true},
		{"top n", RenderRequest{TopN: 1000}, true},
		{"sum reducer", RenderRequest{Reducer: "sum"}, false},
		{"unknown reducer", RenderRequest{Reducer: "median"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := middleware.ValidateStruct(v, tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type recordingNotifier struct {
	sources []string
}

func (n *recordingNotifier) BroadcastRefresh(source string) {
	n.sources = append(n.sources, source)
}

func TestDashboardService_Reload(t *testing.T) {
	svc := newTestService(t)
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)

	_, err := svc.Schema(context.Background(), SourceRequest{})
	require.NoError(t, err)

	svc.Reload(context.Background())
	assert.Equal(t, []string{"kpis.csv"}, notifier.sources)

	schema, err := svc.Schema(context.Background(), SourceRequest{})
	require.NoError(t, err)
	assert.False(t, schema.Cached)
}

func TestDashboardService_Sources(t *testing.T) {
	svc := newTestService(t)

	sources, err := svc.Sources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "kpis.csv", sources[0].Name)
	assert.Equal(t, loader.FormatCSV, sources[0].Format)

	noPaths := NewDashboardService(config.Default(), nil, nil, nil, testutil.QuietLogger())
	_, err = noPaths.Sources(context.Background())
	assert.Equal(t, apierrors.ErrTypeConfig, appErrorType(t, err))
}
