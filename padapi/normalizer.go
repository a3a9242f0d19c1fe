package padapi

import "math"

const (
	rawNegativeRange = 32768.0
	rawPositiveRange = 32767.0
)

// Normalizer maps raw signed 16-bit samples onto [-1, 1].
//
// Negative samples are divided by 32768 and positive ones by 32767 so that both
// extremes land exactly on -1 and 1. Values whose magnitude is below DeadZone are
// reported as exactly zero. Everything else is rounded half away from zero to
// Digits fractional digits.
type Normalizer struct {
	DeadZone float64
	Digits   int
}

// Scale converts a raw sample to [-1, 1] without dead zone or rounding.
func Scale(raw int16) float64 {
	if raw < 0 {
		return float64(raw) / rawNegativeRange
	}
	return float64(raw) / rawPositiveRange
}

// Round rounds v half away from zero to the given number of fractional digits.
func Round(v float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}

func (n Normalizer) Normalize(raw int16) float64 {
	return n.Apply(Scale(raw))
}

// Apply applies the dead zone and rounding to an already scaled value. A value that
// rounds into the dead zone is also reported as zero, which keeps Apply idempotent.
func (n Normalizer) Apply(v float64) float64 {
	if math.Abs(v) < n.DeadZone {
		return 0
	}
	r := Round(v, n.Digits)
	if math.Abs(r) < n.DeadZone {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}
