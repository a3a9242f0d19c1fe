package padapi

import (
	"math"
	"sync"

	"go.uber.org/atomic"
)

// positionRate converts a per-second stick speed into a per-tick step at the
// nominal 50ms poll interval.
const positionRate = 50.0

// IntegratorConfig controls how stick deflection turns into position movement.
type IntegratorConfig struct {
	Exponent    float64 `json:"exponent"`
	SpeedScalar float64 `json:"speedScalar"`
	Digits      int     `json:"digits"`
}

// Position is an accumulated absolute position, each coordinate in [-1, 1].
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Integrator accumulates one thumbstick into an absolute position, advancing once
// per poll cycle. It implements PollHook.
type Integrator struct {
	stick Stick
	cfg   atomic.Pointer[IntegratorConfig]

	mu  sync.Mutex
	pos Position
}

func NewIntegrator(stick Stick, cfg IntegratorConfig) *Integrator {
	i := &Integrator{stick: stick}
	i.Configure(cfg)
	return i
}

func (i *Integrator) Stick() Stick {
	return i.stick
}

// Configure replaces the integrator settings. The accumulated position is kept.
func (i *Integrator) Configure(cfg IntegratorConfig) {
	i.cfg.Store(&cfg)
}

func (i *Integrator) Config() IntegratorConfig {
	return *i.cfg.Load()
}

func (i *Integrator) Position() Position {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pos
}

func (i *Integrator) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pos = Position{}
}

// Step advances the position by one tick for the given normalized stick input.
// A centered stick leaves the position untouched.
func (i *Integrator) Step(sx, sy float64) (Position, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if sx == 0 && sy == 0 {
		return i.pos, false
	}
	cfg := i.Config()
	next := Position{
		X: Round(clamp(i.pos.X+cfg.delta(sx)), cfg.Digits),
		Y: Round(clamp(i.pos.Y+cfg.delta(sy)), cfg.Digits),
	}
	changed := next != i.pos
	i.pos = next
	return next, changed
}

func (cfg IntegratorConfig) delta(s float64) float64 {
	speed := math.Pow(math.Abs(s), cfg.Exponent)
	if s < 0 {
		speed = -speed
	}
	return speed * cfg.SpeedScalar / positionRate
}

// OnPoll reads the controller's stick and emits AbsolutePositionChanged when the
// position moved.
func (i *Integrator) OnPoll(c *Controller) {
	x, y := c.Thumbstick(i.stick)
	pos, changed := i.Step(x, y)
	if !changed {
		return
	}
	c.Emit(AbsolutePositionChanged{
		Controller: c.Index(),
		Stick:      i.stick,
		X:          pos.X,
		Y:          pos.Y,
	})
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
