package retrofit

import (
	"github.com/isabella-tue/retrofit/internal/log"
)

// Predictor serves retrofit predictions, preferring the surrogate network
// and falling back to the analytic model when no weights are loaded.
type Predictor struct {
	surrogate *Surrogate
	logger    log.Logger
}

// NewPredictor creates a predictor. weightsPath may be empty; a missing or
// unreadable weights file degrades to the analytic model with a warning
// rather than failing startup.
func NewPredictor(weightsPath string, logger log.Logger) *Predictor {
	p := &Predictor{logger: logger}

	if weightsPath == "" {
		logger.Info("no surrogate weights configured, using analytic model")
		return p
	}

	s, err := LoadSurrogate(weightsPath)
	if err != nil {
		logger.Warn("loading surrogate weights failed, using analytic model",
			"path", weightsPath, "error", err)
		return p
	}

	p.surrogate = s
	logger.Info("surrogate model loaded", "path", weightsPath)
	return p
}

// SurrogateLoaded reports whether the surrogate network is available.
func (p *Predictor) SurrogateLoaded() bool {
	return p.surrogate != nil
}

// Predict validates the scenario and returns its predicted outcomes.
func (p *Predictor) Predict(dv DesignVariables) (Outputs, error) {
	if err := dv.Validate(); err != nil {
		return Outputs{}, err
	}
	if p.surrogate != nil {
		return p.surrogate.Predict(dv), nil
	}
	return PredictAnalytic(dv), nil
}

// PredictBatch predicts outcomes for several scenarios.
// The whole batch is rejected if any scenario is invalid.
func (p *Predictor) PredictBatch(dvs []DesignVariables) ([]Outputs, error) {
	for _, dv := range dvs {
		if err := dv.Validate(); err != nil {
			return nil, err
		}
	}
	out := make([]Outputs, len(dvs))
	for i, dv := range dvs {
		if p.surrogate != nil {
			out[i] = p.surrogate.Predict(dv)
		} else {
			out[i] = PredictAnalytic(dv)
		}
	}
	return out, nil
}

// Evaluate is the unchecked prediction path used by the optimizer, which
// only generates candidates inside the search bounds.
func (p *Predictor) Evaluate(dv DesignVariables) Outputs {
	if p.surrogate != nil {
		return p.surrogate.Predict(dv)
	}
	return PredictAnalytic(dv)
}
