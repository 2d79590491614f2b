package trajectory

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/minimizeme/internal/catalog"
	"github.com/cwbudde/minimizeme/internal/opt"
)

func mustGet(t *testing.T, key string) *catalog.Function {
	t.Helper()
	f, err := catalog.Get(key)
	require.NoError(t, err)
	return f
}

// configFor returns the defaults of kind with the given iteration budget.
func configFor(kind opt.Kind, iters int) opt.Config {
	cfg := opt.DefaultConfig(kind)
	cfg.Iterations = iters
	return cfg
}

func gd(lr float64, iters int) opt.Config {
	cfg := configFor(opt.GD, iters)
	cfg.LearningRate = lr
	return cfg
}

func TestRunBowlGradientDescent(t *testing.T) {
	bowl := mustGet(t, "bowl")

	tr, err := Run(bowl, 3, 3, gd(0.1, 20))
	require.NoError(t, err)
	require.Len(t, tr.States, 21)
	assert.True(t, tr.Completed())
	assert.Equal(t, State{X: 3, Y: 3, Z: 18}, tr.States[0])

	for i := 1; i < len(tr.States); i++ {
		assert.LessOrEqual(t, tr.States[i].Z, tr.States[i-1].Z+1e-12, "step %d", i)
	}

	// each step scales the point by 1 - 2*lr
	last := tr.Last()
	want := 3 * math.Pow(0.8, 20)
	assert.InDelta(t, want, last.X, 1e-9)
	assert.InDelta(t, want, last.Y, 1e-9)
	assert.Less(t, last.Z, 0.01)
}

func TestRunLengthForEveryKind(t *testing.T) {
	for _, f := range catalog.List() {
		for _, kind := range opt.Kinds() {
			tr, err := Run(f, f.Start.X, f.Start.Y, configFor(kind, 15))
			if err != nil {
				var evalErr *EvalError
				require.True(t, errors.As(err, &evalErr), "%s/%s: %v", f.Key, kind, err)
				assert.Less(t, len(tr.States), 16)
			} else {
				assert.Len(t, tr.States, 16, "%s/%s", f.Key, kind)
			}
			assert.Equal(t, f.Start.X, tr.States[0].X)
			assert.Equal(t, f.Start.Y, tr.States[0].Y)
		}
	}
}

func TestRunIsDeterministic(t *testing.T) {
	f := mustGet(t, "rosenbrock")
	cfg := configFor(opt.Adam, 100)

	a, err := Run(f, f.Start.X, f.Start.Y, cfg)
	require.NoError(t, err)
	b, err := Run(f, f.Start.X, f.Start.Y, cfg)
	require.NoError(t, err)
	assert.Equal(t, a.States, b.States)
}

func TestRunStopsOnSingularity(t *testing.T) {
	f, err := catalog.NewFunction("pole", "Pole", "1/x + y^2", catalog.Bounds{XMin: -1, XMax: 1, YMin: -1, YMax: 1}, nil, math.NaN())
	require.NoError(t, err)

	tr, err := Run(f, 0, 0.5, configFor(opt.GD, 10))
	var evalErr *EvalError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, 0, evalErr.Step)
	require.Len(t, tr.States, 1)
	assert.Equal(t, 0.0, tr.States[0].X)
	assert.Equal(t, 0.5, tr.States[0].Y)
	assert.NotEmpty(t, tr.Err)
	assert.False(t, tr.Completed())

	// a non-finite start value still encodes
	data, err := json.Marshal(tr)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"z":null`)
}

func TestRunStopsWhenGradientIsUndefined(t *testing.T) {
	ackley := mustGet(t, "ackley")

	tr, err := Run(ackley, 0, 0, configFor(opt.Momentum, 10))
	var evalErr *EvalError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, 1, evalErr.Step)
	require.Len(t, tr.States, 1)
	assert.InDelta(t, 0, tr.States[0].Z, 1e-12)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	tr, err := Run(mustGet(t, "bowl"), 1, 1, gd(-1, 5))
	assert.Nil(t, tr)
	var cfgErr *opt.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestRunUsesConfigAsGiven(t *testing.T) {
	bowl := mustGet(t, "bowl")

	// zero momentum follows plain gradient descent exactly
	heavy := configFor(opt.Momentum, 20)
	heavy.LearningRate = 0.1
	heavy.Momentum = 0
	a, err := Run(bowl, 3, 3, heavy)
	require.NoError(t, err)
	assert.Equal(t, 0.0, a.Config.Momentum)

	b, err := Run(bowl, 3, 3, gd(0.1, 20))
	require.NoError(t, err)
	assert.Equal(t, b.States, a.States)

	// a zero learning rate is an error, not a default
	tr, err := Run(bowl, 3, 3, gd(0, 20))
	assert.Nil(t, tr)
	var cfgErr *opt.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

type panicky struct{}

func (panicky) Eval(x, y float64) float64 {
	if x < 0.5 {
		panic("out of range")
	}
	return x*x + y*y
}

func (panicky) Grad(x, y float64) (float64, float64) { return 2 * x, 2 * y }

func TestRunRecoversFromPanics(t *testing.T) {
	tr, err := Run(panicky{}, 1, 0, gd(0.4, 5))
	var evalErr *EvalError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, 1, evalErr.Step)
	assert.Contains(t, evalErr.Reason, "panicked")
	assert.Len(t, tr.States, 1)
}

func TestRunAllKeepsOrderAndIsolatesFailures(t *testing.T) {
	bowl := mustGet(t, "bowl")
	cfgs := []opt.Config{
		configFor(opt.Adam, 30),
		gd(-0.1, 30),
		gd(1.5, 3000),
		configFor(opt.Momentum, 30),
	}

	results, err := RunAll(context.Background(), bowl, 3, 3, cfgs)
	require.NoError(t, err)
	require.Len(t, results, len(cfgs))

	assert.Equal(t, opt.Adam, results[0].Kind)
	assert.True(t, results[0].Completed())

	// invalid config: start point only, error recorded
	assert.Equal(t, opt.GD, results[1].Kind)
	assert.Len(t, results[1].States, 1)
	assert.NotEmpty(t, results[1].Err)

	// lr 1.5 doubles |x| every step until it overflows
	assert.NotEmpty(t, results[2].Err)
	assert.Less(t, len(results[2].States), 3001)

	assert.Equal(t, opt.Momentum, results[3].Kind)
	assert.True(t, results[3].Completed())

	single, err := Run(bowl, 3, 3, cfgs[0])
	require.NoError(t, err)
	assert.Equal(t, single.States, results[0].States)
}

func TestRunAllHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunAll(ctx, mustGet(t, "bowl"), 3, 3, []opt.Config{configFor(opt.GD, 10)})
	assert.ErrorIs(t, err, context.Canceled)
}
