package opt

// Searcher is a derivative-free global search over a bounded box.
type Searcher interface {
	// Run minimizes eval inside [lower, upper] and returns the best point
	// found and its value.
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// Stepper applies one optimizer update in place.
//
// Implementations keep their own state (velocities, moment estimates) between
// calls, so a Stepper belongs to exactly one trajectory.
type Stepper interface {
	Step(x, grad []float64)
}
