package opt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Kind names one of the supported first-order update rules.
type Kind string

const (
	GD       Kind = "gd"
	Momentum Kind = "momentum"
	Nesterov Kind = "nesterov"
	Adagrad  Kind = "adagrad"
	RMSprop  Kind = "rmsprop"
	Adadelta Kind = "adadelta"
	Adam     Kind = "adam"
	Adamax   Kind = "adamax"
	Nadam    Kind = "nadam"
)

// MaxIterations bounds the iteration budget of a single run.
const MaxIterations = 10000

// ErrUnknownKind is returned when a kind name is not recognised.
var ErrUnknownKind = errors.New("unknown optimizer kind")

var kinds = []Kind{GD, Momentum, Nesterov, Adagrad, RMSprop, Adadelta, Adam, Adamax, Nadam}

// Kinds returns every supported kind in display order.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

// ParseKind resolves a kind from its name. Matching ignores case and accepts a
// few common aliases.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case "sgd", "gradient-descent":
		return GD, nil
	case "nag":
		return Nesterov, nil
	default:
		for _, known := range kinds {
			if k == known {
				return k, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Config is the user-chosen configuration of one optimizer run. Every field
// is used as given: build configs from DefaultConfig and override fields, so
// that an explicit zero (momentum 0, beta1 0) stays zero.
type Config struct {
	Kind               Kind    `json:"kind" yaml:"kind"`
	LearningRate       float64 `json:"learningRate" yaml:"learning_rate"`
	Momentum           float64 `json:"momentum" yaml:"momentum"`
	Rho                float64 `json:"rho" yaml:"rho"`
	Beta1              float64 `json:"beta1" yaml:"beta1"`
	Beta2              float64 `json:"beta2" yaml:"beta2"`
	Epsilon            float64 `json:"epsilon" yaml:"epsilon"`
	InitialAccumulator float64 `json:"initialAccumulator" yaml:"initial_accumulator"`
	Iterations         int     `json:"iterations" yaml:"iterations"`
}

// UnmarshalJSON decodes over the defaults of the encoded kind: fields
// missing from the input keep their default, fields present are taken as
// sent, zeros included. Unknown fields are rejected.
func (c *Config) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	kind, err := ParseKind(string(head.Kind))
	if err != nil {
		// left for Validate to report
		kind = head.Kind
	}

	type plain Config
	cfg := plain(DefaultConfig(kind))
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return err
	}
	cfg.Kind = kind
	*c = Config(cfg)
	return nil
}

// DefaultIterations is the iteration budget used when none is given.
const DefaultIterations = 50

// DefaultConfig returns the defaults for kind. Learning rates are chosen so
// that every kind makes visible progress on the catalog within a few dozen
// steps; the remaining coefficients follow the usual library defaults.
func DefaultConfig(kind Kind) Config {
	c := Config{Kind: kind, Iterations: DefaultIterations}
	switch kind {
	case GD:
		c.LearningRate = 0.05
	case Momentum, Nesterov:
		c.LearningRate = 0.05
		c.Momentum = 0.9
	case Adagrad:
		c.LearningRate = 0.5
		c.InitialAccumulator = 0.1
		c.Epsilon = 1e-7
	case RMSprop:
		c.LearningRate = 0.05
		c.Rho = 0.9
		c.Epsilon = 1e-7
	case Adadelta:
		c.LearningRate = 1.0
		c.Rho = 0.95
		c.Epsilon = 1e-6
	case Adam, Adamax, Nadam:
		c.LearningRate = 0.1
		c.Beta1 = 0.9
		c.Beta2 = 0.999
		c.Epsilon = 1e-7
	}
	return c
}

// ConfigError reports an invalid hyperparameter.
type ConfigError struct {
	Kind   Kind
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s = %g %s", e.Kind, e.Field, e.Value, e.Reason)
}

// Validate checks the hyperparameters used by c.Kind.
func (c Config) Validate() error {
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return err
	}
	if c.Iterations < 1 || c.Iterations > MaxIterations {
		return &ConfigError{c.Kind, "iterations", float64(c.Iterations), fmt.Sprintf("outside allowed range [1, %d]", MaxIterations)}
	}
	if !(c.LearningRate > 0) || math.IsInf(c.LearningRate, 0) {
		return &ConfigError{c.Kind, "learningRate", c.LearningRate, "must be positive and finite"}
	}

	unit := func(field string, v float64) error {
		if v < 0 || v >= 1 || math.IsNaN(v) {
			return &ConfigError{c.Kind, field, v, "outside allowed range [0, 1)"}
		}
		return nil
	}
	positive := func(field string, v float64) error {
		if !(v > 0) || math.IsInf(v, 0) {
			return &ConfigError{c.Kind, field, v, "must be positive and finite"}
		}
		return nil
	}

	switch c.Kind {
	case Momentum, Nesterov:
		return unit("momentum", c.Momentum)
	case Adagrad:
		if c.InitialAccumulator < 0 || math.IsNaN(c.InitialAccumulator) {
			return &ConfigError{c.Kind, "initialAccumulator", c.InitialAccumulator, "cannot be negative"}
		}
		return positive("epsilon", c.Epsilon)
	case RMSprop, Adadelta:
		if err := unit("rho", c.Rho); err != nil {
			return err
		}
		return positive("epsilon", c.Epsilon)
	case Adam, Adamax, Nadam:
		if err := unit("beta1", c.Beta1); err != nil {
			return err
		}
		if err := unit("beta2", c.Beta2); err != nil {
			return err
		}
		return positive("epsilon", c.Epsilon)
	}
	return nil
}
