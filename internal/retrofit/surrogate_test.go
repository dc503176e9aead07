package retrofit

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/isabella-tue/retrofit/internal/log"
)

func testLogger() log.Logger {
	return log.NewNop()
}

// linearWeights builds a single linear layer that copies four of the five
// standardized inputs straight through, so expected outputs are easy to
// compute by hand.
func linearWeights() weightsFile {
	return weightsFile{
		Input: scalerSpec{
			Mean:  []float64{2020, 0, 0, 0, 0},
			Scale: []float64{1, 1, 1, 1, 1},
		},
		Layers: []layerSpec{{
			Weights: [][]float64{
				{0, 1, 0, 0, 0},
				{0, 0, 1, 0, 0},
				{0, 0, 0, 1, 0},
				{0, 0, 0, 0, 1},
			},
			Bias:       []float64{0, 0, 0, 0},
			Activation: "linear",
		}},
		Outputs: []scalerSpec{
			{Mean: []float64{10}, Scale: []float64{2}},
			{Mean: []float64{0}, Scale: []float64{100}},
			{Mean: []float64{0}, Scale: []float64{10}},
			{Mean: []float64{200}, Scale: []float64{1}},
		},
	}
}

func TestSurrogateForwardPass(t *testing.T) {
	s, err := newSurrogate(linearWeights())
	if err != nil {
		t.Fatalf("newSurrogate() = %v", err)
	}

	dv := DesignVariables{TimeHorizon: 2020, WindowU: 1.5, FloorR: 2.0, WallR: 3.0, RoofR: 4.0}
	out := s.Predict(dv)

	// Each head is input * scale + mean of its output scaler.
	if math.Abs(out.AnnualEnergyGJ-(1.5*2+10)) > 1e-9 {
		t.Errorf("energy = %v, want 13", out.AnnualEnergyGJ)
	}
	if math.Abs(out.TotalCostEUR-200) > 1e-9 {
		t.Errorf("cost = %v, want 200", out.TotalCostEUR)
	}
	if math.Abs(out.TotalCO2Kg-30) > 1e-9 {
		t.Errorf("co2 = %v, want 30", out.TotalCO2Kg)
	}
	if math.Abs(out.ComfortDays-204) > 1e-9 {
		t.Errorf("comfort = %v, want 204", out.ComfortDays)
	}
}

func TestSurrogateReLU(t *testing.T) {
	wf := linearWeights()
	// Negate the window weight; ReLU should clamp the head to zero.
	wf.Layers[0].Weights[0][1] = -1
	wf.Layers[0].Activation = "relu"

	s, err := newSurrogate(wf)
	if err != nil {
		t.Fatalf("newSurrogate() = %v", err)
	}

	out := s.Predict(DesignVariables{TimeHorizon: 2020, WindowU: 1.5})
	if math.Abs(out.AnnualEnergyGJ-10) > 1e-9 { // 0 * 2 + 10
		t.Errorf("energy = %v, want 10 after ReLU clamp", out.AnnualEnergyGJ)
	}
}

func TestNewSurrogateRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*weightsFile)
	}{
		{"no layers", func(wf *weightsFile) { wf.Layers = nil }},
		{"bias mismatch", func(wf *weightsFile) { wf.Layers[0].Bias = []float64{0} }},
		{"ragged weights", func(wf *weightsFile) { wf.Layers[0].Weights[1] = []float64{1} }},
		{"wrong input width", func(wf *weightsFile) {
			wf.Layers[0].Weights = [][]float64{{1, 2}, {1, 2}, {1, 2}, {1, 2}}
		}},
		{"wrong head count", func(wf *weightsFile) { wf.Outputs = wf.Outputs[:2] }},
		{"wrong final width", func(wf *weightsFile) {
			wf.Layers[0].Weights = wf.Layers[0].Weights[:3]
			wf.Layers[0].Bias = wf.Layers[0].Bias[:3]
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := linearWeights()
			tt.mutate(&wf)
			if _, err := newSurrogate(wf); !errors.Is(err, ErrBadWeights) {
				t.Fatalf("newSurrogate() = %v, want ErrBadWeights", err)
			}
		})
	}
}

func TestLoadSurrogateFromFile(t *testing.T) {
	data, err := json.Marshal(linearWeights())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "weights.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSurrogate(path)
	if err != nil {
		t.Fatalf("LoadSurrogate() = %v", err)
	}

	p := NewPredictor(path, testLogger())
	if !p.SurrogateLoaded() {
		t.Fatal("predictor should load surrogate from file")
	}

	dv := DesignVariables{TimeHorizon: 2020, WindowU: 1.0, FloorR: 1.0, WallR: 1.0, RoofR: 1.0}
	got, err := p.Predict(dv)
	if err != nil {
		t.Fatalf("Predict() = %v", err)
	}
	if got != s.Predict(dv) {
		t.Error("predictor should delegate to the loaded surrogate")
	}
}

func TestLoadSurrogateBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSurrogate(path); !errors.Is(err, ErrBadWeights) {
		t.Fatalf("LoadSurrogate() = %v, want ErrBadWeights", err)
	}
}
