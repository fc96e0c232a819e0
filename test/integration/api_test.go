package integration

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/stock-cutter/internal/api"
	"github.com/eugenenazirov/stock-cutter/internal/application"
	"github.com/eugenenazirov/stock-cutter/internal/config"
	"github.com/eugenenazirov/stock-cutter/internal/cutting"
	"github.com/eugenenazirov/stock-cutter/internal/storage"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := zaptest.NewLogger(t)
	cfg := config.Config{MaxIterations: cutting.DefaultMaxIterations, SolverTimeout: 10 * time.Second}
	planner := application.NewPlanner(cfg, logger)
	handler := api.NewHandler(planner, storage.NewMemoryStorage(), storage.NewMemoryPlanStore(10))
	return api.NewRouter(handler, logger)
}

func performRequest(t *testing.T, handler http.Handler, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

var jsonHeaders = map[string]string{"Content-Type": "application/json"}

type outcome struct {
	Plan *struct {
		TotalUnits int `json:"totalUnits"`
		Patterns   []struct {
			Count       int    `json:"count"`
			Description string `json:"description"`
		} `json:"patterns"`
	} `json:"plan"`
	Summary *struct {
		Shortage int `json:"shortage"`
	} `json:"summary"`
}

func TestIntegrationFlow(t *testing.T) {
	handler := newRouter(t)

	rec := performRequest(t, handler, http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", rec.Code)
	}

	stockPayload, _ := json.Marshal(map[string]int{"length": 10, "wasteAllowance": 0, "available": 2})
	rec = performRequest(t, handler, http.MethodPut, "/api/stock", stockPayload, jsonHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from stock update, got %d", rec.Code)
	}

	var upload bytes.Buffer
	mw := multipart.NewWriter(&upload)
	part, err := mw.CreateFormFile("file", "demands.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("Length,Quantity\n4,2\n3,4\n"))
	_ = mw.Close()
	rec = performRequest(t, handler, http.MethodPost, "/api/demands/import", upload.Bytes(),
		map[string]string{"Content-Type": mw.FormDataContentType()})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from import, got %d: %s", rec.Code, rec.Body.String())
	}
	var imported struct {
		Demands []cutting.PieceDemand `json:"demands"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&imported); err != nil {
		t.Fatalf("decode import: %v", err)
	}

	body, _ := json.Marshal(map[string]any{"demands": imported.Demands})
	rec = performRequest(t, handler, http.MethodPost, "/api/optimize", body, jsonHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from optimize, got %d: %s", rec.Code, rec.Body.String())
	}

	var run struct {
		ID          string  `json:"id"`
		Optimal     outcome `json:"optimal"`
		Baseline    outcome `json:"baseline"`
		Recommended string  `json:"recommended"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if run.Optimal.Plan == nil || run.Optimal.Plan.TotalUnits != 2 {
		t.Fatalf("expected optimal plan of 2 units, got %+v", run.Optimal.Plan)
	}
	if run.Baseline.Plan == nil || run.Baseline.Plan.TotalUnits != 3 {
		t.Fatalf("expected baseline plan of 3 units, got %+v", run.Baseline.Plan)
	}
	if run.Recommended != "optimal" {
		t.Fatalf("expected optimal recommendation, got %s", run.Recommended)
	}
	if run.Optimal.Summary.Shortage != 0 || run.Baseline.Summary.Shortage != 1 {
		t.Fatalf("unexpected shortages %d/%d", run.Optimal.Summary.Shortage, run.Baseline.Summary.Shortage)
	}
	if len(run.Optimal.Plan.Patterns) != 1 || run.Optimal.Plan.Patterns[0].Description != "1x 4mm + 2x 3mm" {
		t.Fatalf("unexpected optimal patterns %+v", run.Optimal.Plan.Patterns)
	}

	rec = performRequest(t, handler, http.MethodGet, "/api/plans/"+run.ID+"/report", nil, nil)
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected PDF report, got %d", rec.Code)
	}

	rec = performRequest(t, handler, http.MethodPost, "/api/demands/export?format=csv", body, jsonHeaders)
	if rec.Code != http.StatusOK || rec.Body.String() != "Length,Quantity\n4,2\n3,4\n" {
		t.Fatalf("unexpected export %d %q", rec.Code, rec.Body.String())
	}
}
