package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/minimizeme/internal/catalog"
	"github.com/cwbudde/minimizeme/internal/expr"
)

var origin = []catalog.Point{{X: 0, Y: 0}}

func TestBowlIsValid(t *testing.T) {
	v := Expression("x^2 + y^2", origin)
	assert.True(t, v.Valid, v.Message)
	assert.Empty(t, v.Check)
	assert.Empty(t, v.Message)
}

func TestFailures(t *testing.T) {
	cases := []struct {
		name   string
		src    string
		minima []catalog.Point
		check  Check
		substr string
	}{
		{"syntax", "x +* y", nil, Parse, ""},
		{"unknown function", "foo(x)", nil, Parse, ""},
		{"division by zero", "1/x + y^2", nil, Stability, "resulted in"},
		{"log of negative", "log(x) + y", nil, Stability, "NaN"},
		{"step", "floor(x) + y^2", nil, Differentiability, "respect to x"},
		{"steep walls", "exp(x^2)", nil, Gradients, "exploding"},
		{"exploding", "10000000000*x^2 + y^2", origin, Gradients, "exploding"},
		{"vanishing", "1 - exp(-(x^2 + y^2))", origin, Gradients, "vanishing"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Expression(tc.src, tc.minima)
			assert.False(t, v.Valid)
			assert.Equal(t, tc.check, v.Check)
			assert.NotEmpty(t, v.Message)
			if tc.substr != "" {
				assert.Contains(t, v.Message, tc.substr)
			}
		})
	}
}

// Values outside the sampled grid are not inspected.
func TestGrowthBeyondGridIsValid(t *testing.T) {
	v := Expression("exp(x^2/3) + y^2", nil)
	assert.True(t, v.Valid, v.Message)
}

func TestLargeInputsFlagsOverflowOnGrid(t *testing.T) {
	v := newValidator(expr.MustParse("exp(x^4) + y"), nil, DefaultSettings())
	verdict := v.largeInputs()
	assert.False(t, verdict.Valid)
	assert.Equal(t, LargeInputs, verdict.Check)
	assert.Contains(t, verdict.Message, "overflow")

	v = newValidator(expr.MustParse("exp(x^2) + y"), nil, DefaultSettings())
	assert.True(t, v.largeInputs().Valid)
}

func TestVanishingCheckSkippedWithoutMinima(t *testing.T) {
	v := Expression("1 - exp(-(x^2 + y^2))", nil)
	assert.True(t, v.Valid, v.Message)
}

func TestFlatPointAwayFromDeclaredMinimum(t *testing.T) {
	// the origin is sampled and flat, but the declared minimum is elsewhere
	v := Expression("x^2 + y^2", []catalog.Point{{X: 3, Y: 3}})
	assert.False(t, v.Valid)
	assert.Equal(t, Gradients, v.Check)
	assert.Contains(t, v.Message, "vanishing")
}

func TestCatalogFunctionsWithFiniteMinimaPass(t *testing.T) {
	for _, key := range []string{"bowl", "ellipse", "booth", "himmelblau"} {
		f, err := catalog.Get(key)
		require.NoError(t, err)
		v := Validate(f.Node(), f.Minima, DefaultSettings())
		assert.True(t, v.Valid, "%s: %s", key, v.Message)
	}
}

func TestInvalidSettings(t *testing.T) {
	s := DefaultSettings()
	s.Points = 1
	v := Validate(expr.MustParse("x"), nil, s)
	assert.False(t, v.Valid)
	assert.Equal(t, InvalidSettings, v.Check)
	assert.Contains(t, v.Message, "settings")

	s = DefaultSettings()
	s.Lo, s.Hi = 1, -1
	v = Validate(expr.MustParse("x"), nil, s)
	assert.Equal(t, InvalidSettings, v.Check)
}
