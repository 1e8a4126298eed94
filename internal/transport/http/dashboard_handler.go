package http

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "kpidash/internal/errors"
	"kpidash/internal/middleware"
	"kpidash/internal/presenter"
	"kpidash/internal/services"
)

// DashboardHandler serves the KPI dashboard over HTTP with RFC 7807 errors
type DashboardHandler struct {
	service      DashboardServiceInterface
	validate     *validator.Validate
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(service DashboardServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{
		service:      service,
		validate:     middleware.NewValidator(),
		logger:       logger.With(slog.String("component", "dashboard_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the dashboard routes
func (h *DashboardHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/schema", h.GetSchema)
		r.Get("/sources", h.GetSources)
		r.Get("/render", h.GetRender)
		r.Post("/render", h.PostRender)
		r.Post("/reload", h.Reload)
	})

	// Non-JSON representations
	r.Get("/export", h.Export)
	r.Get("/charts", h.Charts)
	r.Get("/charts/{kind}.png", h.ChartPNG)

	return r
}

// GetSchema handles GET /api/dashboard/schema
func (h *DashboardHandler) GetSchema(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := services.SourceRequest{Source: q.Get("source"), Sheets: q["sheet"]}
	if err := middleware.ValidateStruct(h.validate, req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	schema, err := h.service.Schema(r.Context(), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   schema,
	})
}

// GetSources handles GET /api/dashboard/sources
func (h *DashboardHandler) GetSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.service.Sources(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   sources,
		"count":  len(sources),
	})
}

// GetRender handles GET /api/dashboard/render with the selection in the query
func (h *DashboardHandler) GetRender(w http.ResponseWriter, r *http.Request) {
	req, ok := h.queryRequest(w, r)
	if !ok {
		return
	}
	h.respondModel(w, r, req)
}

// PostRender handles POST /api/dashboard/render with a JSON selection
func (h *DashboardHandler) PostRender(w http.ResponseWriter, r *http.Request) {
	var req services.RenderRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := middleware.ValidateStruct(h.validate, req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.respondModel(w, r, req)
}

func (h *DashboardHandler) respondModel(w http.ResponseWriter, r *http.Request, req services.RenderRequest) {
	model, err := h.service.Render(r.Context(), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   model,
	})
}

// Reload handles POST /api/dashboard/reload
func (h *DashboardHandler) Reload(w http.ResponseWriter, r *http.Request) {
	h.service.Reload(r.Context())
	render.JSON(w, r, map[string]interface{}{
		"status":  "success",
		"message": "data source will be read again on the next request",
	})
}

// Export handles GET /api/dashboard/export, downloading the filtered rows
func (h *DashboardHandler) Export(w http.ResponseWriter, r *http.Request) {
	req, ok := h.queryRequest(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), req, &buf); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "export downloaded",
		slog.String("request_id", middleware.GetRequestID(r.Context())),
		slog.Int("bytes", buf.Len()))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.service.ExportFileName()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Charts handles GET /api/dashboard/charts, the interactive HTML dashboard
func (h *DashboardHandler) Charts(w http.ResponseWriter, r *http.Request) {
	req, ok := h.queryRequest(w, r)
	if !ok {
		return
	}
	model, err := h.service.Render(r.Context(), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := presenter.WriteHTML(&buf, *model); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewRenderError("failed to render charts", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ChartPNG handles GET /api/dashboard/charts/{kind}.png
func (h *DashboardHandler) ChartPNG(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if kind != presenter.PNGTrend && kind != presenter.PNGComparison {
		h.errorHandler.HandleError(w, r, apierrors.ErrChartNotFound)
		return
	}

	req, ok := h.queryRequest(w, r)
	if !ok {
		return
	}
	model, err := h.service.Render(r.Context(), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := presenter.WritePNG(&buf, *model, kind); err != nil {
		if errors.Is(err, presenter.ErrNoChart) {
			h.errorHandler.HandleError(w, r, apierrors.NewNotFoundError("chart", err))
			return
		}
		h.errorHandler.HandleError(w, r, apierrors.NewRenderError("failed to render chart", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// queryRequest reads a selection from the query string. Lists repeat their
// parameter: ?id=E1&id=E2&sheet=Q1. A bare ?id= selects no identifiers;
// leaving id out selects all of them.
func (h *DashboardHandler) queryRequest(w http.ResponseWriter, r *http.Request) (services.RenderRequest, bool) {
	req, err := parseRenderQuery(r.URL.Query())
	if err == nil {
		err = middleware.ValidateStruct(h.validate, req)
	}
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return services.RenderRequest{}, false
	}
	return req, true
}

func parseRenderQuery(q url.Values) (services.RenderRequest, error) {
	req := services.RenderRequest{
		SourceRequest: services.SourceRequest{
			Source: q.Get("source"),
			Sheets: q["sheet"],
		},
		Identifiers:      listParam(q, "id"),
		From:             q.Get("from"),
		To:               q.Get("to"),
		Buckets:          listParam(q, "bucket"),
		TrendMetric:      q.Get("trend_metric"),
		ComparisonMetric: q.Get("comparison_metric"),
		Reducer:          q.Get("reducer"),
	}

	if raw := q.Get("top_n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, apierrors.FieldError("top_n", "top_n must be an integer")
		}
		req.TopN = n
	}
	return req, nil
}

// listParam is nil when key is absent and the non-blank values otherwise,
// so a present but blank key gives an empty, non-nil list.
func listParam(q url.Values, key string) []string {
	values, ok := q[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
