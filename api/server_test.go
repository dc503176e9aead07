package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/isabella-tue/retrofit/internal/log"
	"github.com/isabella-tue/retrofit/internal/optimize"
	"github.com/isabella-tue/retrofit/internal/retrofit"
)

// newTestServer builds a server over the analytic predictor with no
// database and no chat flow.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	predictor := retrofit.NewPredictor("", log.NewNop())
	runner := optimize.NewRunner(predictor,
		optimize.Params{PopSize: 10, Generations: 5}, 42, log.NewNop())

	s, err := NewServer(Deps{
		Predictor: predictor,
		Optimizer: runner,
		Logger:    log.NewNop(),
	}, Options{
		RateBurst:      10000, // tests fire many requests from one address
		PrimaryModel:   "gpt-4o",
		CheapModel:     "gpt-4o-mini",
		FallbackModels: []string{"gpt-4o", "gpt-4o-mini"},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec, body := doJSON(t, s, "GET", "/api/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["database"] != "unconfigured" {
		t.Errorf("database = %v", body["database"])
	}
	if body["surrogate_loaded"] != false {
		t.Errorf("surrogate_loaded = %v", body["surrogate_loaded"])
	}
}

func TestModelsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec, body := doJSON(t, s, "GET", "/api/models", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	prediction, _ := body["prediction"].(map[string]any)
	if prediction["active"] != "analytic" {
		t.Errorf("active model = %v", prediction["active"])
	}
	chatInfo, _ := body["chat"].(map[string]any)
	if chatInfo["primary_model"] != "gpt-4o" {
		t.Errorf("primary model = %v", chatInfo["primary_model"])
	}
}

func TestInferenceEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	req := InferenceRequest{DesignVariables: []retrofit.DesignVariables{
		{TimeHorizon: 2020, WindowU: 1.2, FloorR: 3.0, WallR: 4.0, RoofR: 5.0},
		{TimeHorizon: 2050, WindowU: 2.9, FloorR: 0.41, WallR: 0.45, RoofR: 0.48},
	}}

	rec, body := doJSON(t, s, "POST", "/api/inference", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	predictions, _ := body["predictions"].([]any)
	if len(predictions) != 2 {
		t.Fatalf("got %d predictions, want 2", len(predictions))
	}
	first, _ := predictions[0].(map[string]any)
	if first["annual_energy_GJ"].(float64) <= 0 {
		t.Errorf("energy = %v", first["annual_energy_GJ"])
	}
	if body["model_used"] != "analytic" {
		t.Errorf("model_used = %v", body["model_used"])
	}
}

func TestInferenceValidation(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	// Empty batch.
	rec, _ := doJSON(t, s, "POST", "/api/inference", InferenceRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty batch status = %d", rec.Code)
	}

	// Out-of-range window U-factor.
	rec, body := doJSON(t, s, "POST", "/api/inference", InferenceRequest{
		DesignVariables: []retrofit.DesignVariables{
			{TimeHorizon: 2020, WindowU: 99, FloorR: 3, WallR: 4, RoofR: 5},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid variables status = %d", rec.Code)
	}
	errBody, _ := body["error"].(map[string]any)
	if errBody["code"] != "VALIDATION_ERROR" {
		t.Errorf("error code = %v", errBody["code"])
	}
}

func TestOptimizeSync(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec, body := doJSON(t, s, "POST", "/api/optimize", map[string]any{
		"pop_size":      10,
		"n_generations": 5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	solutions, _ := body["pareto_solutions"].([]any)
	if len(solutions) == 0 {
		t.Fatal("no pareto solutions returned")
	}
	rankings, _ := body["rankings"].([]any)
	if len(rankings) != len(solutions) {
		t.Errorf("got %d rankings for %d solutions", len(rankings), len(solutions))
	}
}

func TestOptimizeAsync(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec, body := doJSON(t, s, "POST", "/api/optimize", map[string]any{
		"pop_size":      10,
		"n_generations": 5,
		"async":         true,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatal("no job_id returned")
	}

	// Poll until the background run finishes.
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, body = doJSON(t, s, "GET", "/api/optimize/"+jobID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("job status = %d", rec.Code)
		}
		if body["status"] == "completed" {
			break
		}
		if body["status"] == "failed" {
			t.Fatalf("job failed: %v", body["error"])
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete, status %v", body["status"])
		}
		time.Sleep(20 * time.Millisecond)
	}

	result, _ := body["result"].(map[string]any)
	if result == nil {
		t.Fatal("completed job has no result")
	}
	if solutions, _ := result["pareto_solutions"].([]any); len(solutions) == 0 {
		t.Error("completed job has no solutions")
	}
}

func TestOptimizeJobErrors(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec, _ := doJSON(t, s, "GET", "/api/optimize/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}

	rec, _ = doJSON(t, s, "GET", "/api/optimize/00000000-0000-0000-0000-000000000000", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d", rec.Code)
	}
}

func TestMCDMEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec, body := doJSON(t, s, "POST", "/api/mcdm", map[string]any{
		"solutions": []map[string]any{
			{"id": "a", "energy": 40, "cost": 25000, "co2": 800, "comfort": 130},
			{"id": "b", "energy": 70, "cost": 6000, "co2": 1500, "comfort": 85},
		},
		"weights": map[string]any{"energy": 1, "cost": 0, "co2": 0, "comfort": 0},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rankings, _ := body["rankings"].([]any)
	if len(rankings) != 2 {
		t.Fatalf("got %d rankings", len(rankings))
	}
	best, _ := rankings[0].(map[string]any)
	if best["id"] != "a" {
		t.Errorf("energy-only weights should rank the low-energy solution first, got %v", best["id"])
	}

	// Empty candidate set is a validation error.
	rec, _ = doJSON(t, s, "POST", "/api/mcdm", map[string]any{"solutions": []any{}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty solutions status = %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec, _ := doJSON(t, s, "GET", "/api/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}
