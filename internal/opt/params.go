package opt

import "fmt"

// Param describes one tunable hyperparameter as shown in forms.
type Param struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

var (
	paramLR         = Param{Key: "lr", Label: "learning rate"}
	paramMomentum   = Param{Key: "momentum", Label: "momentum"}
	paramRho        = Param{Key: "rho", Label: "rho"}
	paramBeta1      = Param{Key: "beta1", Label: "beta1"}
	paramBeta2      = Param{Key: "beta2", Label: "beta2"}
	paramEpsilon    = Param{Key: "epsilon", Label: "epsilon"}
	paramAccum      = Param{Key: "init", Label: "initial accumulator"}
	paramIterations = Param{Key: "iters", Label: "iterations"}
)

// Params returns the hyperparameters kind reads, iterations last.
func Params(kind Kind) []Param {
	var ps []Param
	switch kind {
	case GD:
		ps = []Param{paramLR}
	case Momentum, Nesterov:
		ps = []Param{paramLR, paramMomentum}
	case Adagrad:
		ps = []Param{paramLR, paramAccum, paramEpsilon}
	case RMSprop, Adadelta:
		ps = []Param{paramLR, paramRho, paramEpsilon}
	case Adam, Adamax, Nadam:
		ps = []Param{paramLR, paramBeta1, paramBeta2, paramEpsilon}
	}
	return append(ps, paramIterations)
}

// Get returns the value of the hyperparameter named key.
func (c Config) Get(key string) (float64, error) {
	switch key {
	case paramLR.Key:
		return c.LearningRate, nil
	case paramMomentum.Key:
		return c.Momentum, nil
	case paramRho.Key:
		return c.Rho, nil
	case paramBeta1.Key:
		return c.Beta1, nil
	case paramBeta2.Key:
		return c.Beta2, nil
	case paramEpsilon.Key:
		return c.Epsilon, nil
	case paramAccum.Key:
		return c.InitialAccumulator, nil
	case paramIterations.Key:
		return float64(c.Iterations), nil
	}
	return 0, fmt.Errorf("unknown hyperparameter %q", key)
}

// Uses reports whether kind reads the hyperparameter named key.
func (k Kind) Uses(key string) bool {
	for _, p := range Params(k) {
		if p.Key == key {
			return true
		}
	}
	return false
}

// Set assigns the hyperparameter named key. The key must be one of
// Params(c.Kind) and iterations must be a whole number.
func (c *Config) Set(key string, v float64) error {
	if _, err := c.Get(key); err != nil {
		return err
	}
	if !c.Kind.Uses(key) {
		return fmt.Errorf("%s has no hyperparameter %q", c.Kind, key)
	}

	switch key {
	case paramLR.Key:
		c.LearningRate = v
	case paramMomentum.Key:
		c.Momentum = v
	case paramRho.Key:
		c.Rho = v
	case paramBeta1.Key:
		c.Beta1 = v
	case paramBeta2.Key:
		c.Beta2 = v
	case paramEpsilon.Key:
		c.Epsilon = v
	case paramAccum.Key:
		c.InitialAccumulator = v
	case paramIterations.Key:
		if v != float64(int(v)) {
			return fmt.Errorf("iterations must be a whole number, got %g", v)
		}
		c.Iterations = int(v)
	}
	return nil
}
