package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/eugenenazirov/stock-cutter/internal/cutting"
	"github.com/eugenenazirov/stock-cutter/internal/importer"
	"github.com/eugenenazirov/stock-cutter/internal/report"
	"github.com/eugenenazirov/stock-cutter/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const defaultMaxUploadBytes = 10 << 20

// Handler wires the planner and storage dependencies into HTTP handlers.
type Handler struct {
	planner *cutting.Planner
	storage storage.Storage
	plans   storage.PlanStore

	clock          func() time.Time
	maxUploadBytes int64

	mu             sync.RWMutex
	stockUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithMaxUploadBytes limits the size of imported demand files.
func WithMaxUploadBytes(limit int64) HandlerOption {
	return func(h *Handler) {
		if limit > 0 {
			h.maxUploadBytes = limit
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(planner *cutting.Planner, store storage.Storage, plans storage.PlanStore, opts ...HandlerOption) *Handler {
	h := &Handler{
		planner:        planner,
		storage:        store,
		plans:          plans,
		maxUploadBytes: defaultMaxUploadBytes,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.stockUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	_ = r
	stock, err := h.storage.GetStock()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.stockResponse(stock, ""))
}

func (h *Handler) handlePutStock(w http.ResponseWriter, r *http.Request) {
	var req cutting.RawStock
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := h.storage.SetStock(req); err != nil {
		if errors.Is(err, storage.ErrInvalidStock) {
			writeError(w, http.StatusBadRequest, "Invalid stock", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	h.markStockUpdated()

	stock, err := h.storage.GetStock()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.stockResponse(stock, "Stock updated successfully"))
}

func (h *Handler) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if len(req.Demands) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", "demands must contain at least one row")
		return
	}

	stock, err := h.storage.GetStock()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if req.Stock != nil {
		if err := storage.ValidateStock(*req.Stock); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid stock", err.Error())
			return
		}
		stock = *req.Stock
	}

	cmp, err := h.planner.Plan(r.Context(), req.Demands, stock)
	if err != nil {
		if errors.Is(err, cutting.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "Invalid demands", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	if cmp.Optimal.Err != nil && cmp.Baseline.Err != nil {
		writeError(w, http.StatusUnprocessableEntity, "No cutting plan found", cmp.Optimal.Err.Error(),
			"Check that every piece fits the usable length of the raw stock")
		return
	}

	record, err := h.plans.Save(cmp, h.clock())
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newPlanResponse(record))
}

func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	_ = r
	records, err := h.plans.List()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := planListResponse{Plans: make([]planListItem, 0, len(records))}
	for _, record := range records {
		recommended, fallback := record.Comparison.Recommended()
		resp.Plans = append(resp.Plans, planListItem{
			ID:          record.ID,
			CreatedAt:   record.CreatedAt,
			Stock:       record.Comparison.Stock,
			Rows:        len(record.Comparison.Demands),
			Recommended: recommended.Plan.Method,
			TotalUnits:  recommended.Plan.TotalUnits,
			Fallback:    fallback,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	record, ok := h.lookupPlan(w, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newPlanResponse(record))
}

func (h *Handler) handlePlanReport(w http.ResponseWriter, r *http.Request) {
	record, ok := h.lookupPlan(w, r.PathValue("id"))
	if !ok {
		return
	}

	var outcome cutting.Outcome
	switch method := cutting.Method(r.URL.Query().Get("method")); method {
	case "":
		outcome, _ = record.Comparison.Recommended()
	case cutting.MethodOptimal:
		outcome = record.Comparison.Optimal
	case cutting.MethodBaseline:
		outcome = record.Comparison.Baseline
	default:
		writeError(w, http.StatusBadRequest, "Invalid request", fmt.Sprintf("unknown method %q", method))
		return
	}
	if outcome.Err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Plan unavailable", outcome.Err.Error())
		return
	}

	header := report.Header{
		Stock:   record.Comparison.Stock,
		Summary: cutting.Summarize(outcome.Plan, record.Comparison.Demands, record.Comparison.Stock),
	}
	var buf bytes.Buffer
	if err := report.Write(&buf, outcome.Plan, header); err != nil {
		writeInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"cut-list-%s.pdf\"", record.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleImportDemands(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large",
				fmt.Sprintf("uploads are limited to %d bytes", h.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request", "expected a multipart form with a file field")
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "missing file field")
		return
	}
	defer file.Close()

	format, err := importer.FormatFromName(fileHeader.Filename)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported file", err.Error())
		return
	}

	result := importer.Import(file, format)
	resp := importResponse{
		Demands:  result.Demands,
		Labels:   result.Labels,
		Errors:   result.Errors,
		Warnings: result.Warnings,
	}
	if resp.Demands == nil {
		resp.Demands = []cutting.PieceDemand{}
	}

	status := http.StatusOK
	if !result.OK() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleExportDemands(w http.ResponseWriter, r *http.Request) {
	format := importer.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = importer.FormatCSV
	}

	var req exportRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	var buf bytes.Buffer
	if err := importer.Export(&buf, format, req.Demands); err != nil {
		if errors.Is(err, importer.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	contentType := "text/csv"
	if format == importer.FormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"demands.%s\"", format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// decodeJSON reads a size-limited JSON body into dst and writes the error
// response itself when that fails.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request too large",
				fmt.Sprintf("request bodies are limited to %d bytes", h.maxUploadBytes))
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return false
	}
	return true
}

func (h *Handler) lookupPlan(w http.ResponseWriter, id string) (storage.PlanRecord, bool) {
	record, err := h.plans.Get(id)
	if err != nil {
		if errors.Is(err, storage.ErrPlanNotFound) {
			writeError(w, http.StatusNotFound, "Plan not found", err.Error())
			return storage.PlanRecord{}, false
		}
		writeInternalError(w, err)
		return storage.PlanRecord{}, false
	}
	return record, true
}

func (h *Handler) stockResponse(stock cutting.RawStock, message string) stockResponse {
	return stockResponse{
		Stock:        stock,
		UsableLength: stock.UsableLength(),
		UpdatedAt:    h.currentStockUpdatedAt(),
		Message:      message,
	}
}

func (h *Handler) currentStockUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stockUpdatedAt
}

func (h *Handler) markStockUpdated() {
	h.mu.Lock()
	h.stockUpdatedAt = h.clock()
	h.mu.Unlock()
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func newPlanResponse(record storage.PlanRecord) planResponse {
	cmp := record.Comparison
	recommended, fallback := cmp.Recommended()
	return planResponse{
		ID:          record.ID,
		CreatedAt:   record.CreatedAt,
		Stock:       cmp.Stock,
		Demands:     cmp.Demands,
		Optimal:     newOutcomeResponse(cmp.Optimal, cmp),
		Baseline:    newOutcomeResponse(cmp.Baseline, cmp),
		Recommended: recommended.Plan.Method,
		Fallback:    fallback,
	}
}

func newOutcomeResponse(outcome cutting.Outcome, cmp cutting.Comparison) outcomeResponse {
	resp := outcomeResponse{DurationMs: outcome.Duration.Milliseconds()}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
		return resp
	}
	plan := outcome.Plan
	summary := cutting.Summarize(plan, cmp.Demands, cmp.Stock)
	resp.Plan = &plan
	resp.Summary = &summary
	return resp
}

type optimizeRequest struct {
	Demands []cutting.PieceDemand `json:"demands"`
	Stock   *cutting.RawStock     `json:"stock,omitempty"`
}

type exportRequest struct {
	Demands []cutting.PieceDemand `json:"demands"`
}

type outcomeResponse struct {
	Plan       *cutting.SolutionPlan `json:"plan,omitempty"`
	Summary    *cutting.Summary      `json:"summary,omitempty"`
	DurationMs int64                 `json:"durationMs"`
	Error      string                `json:"error,omitempty"`
}

type planResponse struct {
	ID          string                `json:"id"`
	CreatedAt   time.Time             `json:"createdAt"`
	Stock       cutting.RawStock      `json:"stock"`
	Demands     []cutting.PieceDemand `json:"demands"`
	Optimal     outcomeResponse       `json:"optimal"`
	Baseline    outcomeResponse       `json:"baseline"`
	Recommended cutting.Method        `json:"recommended"`
	Fallback    bool                  `json:"fallback"`
}

type planListItem struct {
	ID          string           `json:"id"`
	CreatedAt   time.Time        `json:"createdAt"`
	Stock       cutting.RawStock `json:"stock"`
	Rows        int              `json:"rows"`
	Recommended cutting.Method   `json:"recommended"`
	TotalUnits  int              `json:"totalUnits"`
	Fallback    bool             `json:"fallback"`
}

type planListResponse struct {
	Plans []planListItem `json:"plans"`
}

type stockResponse struct {
	Stock        cutting.RawStock `json:"stock"`
	UsableLength int              `json:"usableLength"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	Message      string           `json:"message,omitempty"`
}

type importResponse struct {
	Demands  []cutting.PieceDemand `json:"demands"`
	Labels   []string              `json:"labels,omitempty"`
	Errors   []string              `json:"errors,omitempty"`
	Warnings []string              `json:"warnings,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
