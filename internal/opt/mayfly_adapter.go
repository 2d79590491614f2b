package opt

import (
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the mayfly library to conform to the Searcher interface.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a mayfly searcher. popSize below 20 is raised to 20,
// which is the smallest population the library accepts.
func NewMayfly(maxIters, popSize int, seed int64) Searcher {
	if popSize < 20 {
		popSize = 20
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the mayfly search.
//
// The library only takes scalar bounds, so the search runs on the unit cube and
// every candidate is mapped into [lower, upper] before evaluation.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	scale := func(u []float64) []float64 {
		p := make([]float64, dim)
		for i := range p {
			p[i] = lower[i] + u[i]*(upper[i]-lower[i])
		}
		return p
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 { return eval(scale(u)) }
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		// fall back to the box centre
		centre := make([]float64, dim)
		for i := range centre {
			centre[i] = 0.5
		}
		p := scale(centre)
		return p, eval(p)
	}

	best := scale(result.GlobalBest.Position)
	return best, result.GlobalBest.Cost
}
