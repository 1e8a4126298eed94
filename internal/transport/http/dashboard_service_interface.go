package http

import (
	"context"
	"io"

	"kpidash/internal/files"
	"kpidash/internal/presenter"
	"kpidash/internal/services"
)

// DashboardServiceInterface defines the dashboard operations the handler needs
type DashboardServiceInterface interface {
	Schema(ctx context.Context, req services.SourceRequest) (*services.Schema, error)
	Sources(ctx context.Context) ([]files.Source, error)
	Render(ctx context.Context, req services.RenderRequest) (*presenter.RenderModel, error)
	Export(ctx context.Context, req services.RenderRequest, w io.Writer) error
	ExportFileName() string
	Reload(ctx context.Context)
}
