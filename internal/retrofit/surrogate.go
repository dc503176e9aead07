package retrofit

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// ErrBadWeights indicates the exported weights file is malformed.
var ErrBadWeights = errors.New("bad surrogate weights")

// surrogateTargets is the number of regression heads (energy, cost, CO2, comfort).
const surrogateTargets = 4

// layerSpec is one dense layer in the exported weights file.
// Weights are row-major: weights[i] holds the input coefficients of output unit i.
type layerSpec struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"` // "relu" or "linear"
}

// scalerSpec is a standard scaler (z = (x - mean) / scale).
type scalerSpec struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// weightsFile is the on-disk format produced by the training pipeline's
// export step: input scaler, dense layers, and one output scaler per target.
type weightsFile struct {
	Input   scalerSpec   `json:"input"`
	Layers  []layerSpec  `json:"layers"`
	Outputs []scalerSpec `json:"outputs"`
}

// Surrogate is a small multi-task feedforward network evaluated with gonum.
// It predicts the four retrofit targets from the 5-feature input vector.
type Surrogate struct {
	input   scalerSpec
	weights []*mat.Dense
	biases  []*mat.VecDense
	relu    []bool
	outputs []scalerSpec
}

// LoadSurrogate reads exported network weights from a JSON file.
func LoadSurrogate(path string) (*Surrogate, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading weights file: %w", err)
	}

	var wf weightsFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadWeights, err)
	}
	return newSurrogate(wf)
}

func newSurrogate(wf weightsFile) (*Surrogate, error) {
	if len(wf.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrBadWeights)
	}
	if len(wf.Input.Mean) != len(wf.Input.Scale) {
		return nil, fmt.Errorf("%w: input scaler mean/scale length mismatch", ErrBadWeights)
	}
	if len(wf.Outputs) != surrogateTargets {
		return nil, fmt.Errorf("%w: expected %d output scalers, got %d",
			ErrBadWeights, surrogateTargets, len(wf.Outputs))
	}

	s := &Surrogate{input: wf.Input, outputs: wf.Outputs}
	prevDim := len(wf.Input.Mean)

	for i, layer := range wf.Layers {
		rows := len(layer.Weights)
		if rows == 0 || rows != len(layer.Bias) {
			return nil, fmt.Errorf("%w: layer %d shape", ErrBadWeights, i)
		}
		cols := len(layer.Weights[0])
		if cols != prevDim {
			return nil, fmt.Errorf("%w: layer %d expects %d inputs, got %d",
				ErrBadWeights, i, cols, prevDim)
		}

		w := mat.NewDense(rows, cols, nil)
		for r, row := range layer.Weights {
			if len(row) != cols {
				return nil, fmt.Errorf("%w: layer %d ragged weights", ErrBadWeights, i)
			}
			w.SetRow(r, row)
		}

		s.weights = append(s.weights, w)
		s.biases = append(s.biases, mat.NewVecDense(rows, layer.Bias))
		s.relu = append(s.relu, layer.Activation != "linear")
		prevDim = rows
	}

	if prevDim != surrogateTargets {
		return nil, fmt.Errorf("%w: final layer has %d outputs, expected %d",
			ErrBadWeights, prevDim, surrogateTargets)
	}
	return s, nil
}

// Predict runs the forward pass for one scenario.
func (s *Surrogate) Predict(dv DesignVariables) Outputs {
	features := dv.Features()

	// Standardize inputs
	x := mat.NewVecDense(len(features), nil)
	for i, v := range features {
		scale := s.input.Scale[i]
		if scale == 0 {
			scale = 1
		}
		x.SetVec(i, (v-s.input.Mean[i])/scale)
	}

	for i, w := range s.weights {
		rows, _ := w.Dims()
		z := mat.NewVecDense(rows, nil)
		z.MulVec(w, x)
		z.AddVec(z, s.biases[i])
		if s.relu[i] {
			for j := 0; j < rows; j++ {
				z.SetVec(j, math.Max(0, z.AtVec(j)))
			}
		}
		x = z
	}

	// Inverse-transform each regression head
	denorm := func(i int) float64 {
		return x.AtVec(i)*s.outputs[i].Scale[0] + s.outputs[i].Mean[0]
	}
	return Outputs{
		AnnualEnergyGJ: denorm(0),
		TotalCostEUR:   denorm(1),
		TotalCO2Kg:     denorm(2),
		ComfortDays:    denorm(3),
	}
}
