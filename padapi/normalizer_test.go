package padapi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	n := DefaultTuning().Normalizer()

	type testCase struct {
		raw      int16
		expected float64
	}
	testCases := []testCase{
		{raw: 0, expected: 0},
		{raw: 32767, expected: 1},
		{raw: -32768, expected: -1},
		{raw: 16384, expected: 0.5},
		{raw: -16384, expected: -0.5},
		// 0.0799 is inside the 0.08 dead zone.
		{raw: 2620, expected: 0},
		{raw: -2620, expected: 0},
		{raw: 2622, expected: 0.08},
		{raw: 1000, expected: 0},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, n.Normalize(tc.raw), "raw %d", tc.raw)
	}
}

func TestNormalizeRange(t *testing.T) {
	n := DefaultTuning().Normalizer()
	for raw := math.MinInt16; raw <= math.MaxInt16; raw += 7 {
		v := n.Normalize(int16(raw))
		assert.GreaterOrEqual(t, v, -1.0)
		assert.LessOrEqual(t, v, 1.0)
		if math.Abs(Scale(int16(raw))) < n.DeadZone {
			assert.Zero(t, v, "raw %d", raw)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, n := range []Normalizer{
		DefaultTuning().Normalizer(),
		{DeadZone: 0.0795, Digits: 3},
		{DeadZone: 0, Digits: 1},
	} {
		for raw := math.MinInt16; raw <= math.MaxInt16; raw += 13 {
			v := n.Normalize(int16(raw))
			assert.Equal(t, v, n.Apply(v), "raw %d, normalizer %+v", raw, n)
		}
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.5, Round(0.4996, 3))
	assert.Equal(t, -0.5, Round(-0.4996, 3))
	assert.Equal(t, 0.13, Round(0.125, 2))
	assert.Equal(t, -0.13, Round(-0.125, 2))
}
