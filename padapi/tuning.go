package padapi

import (
	"fmt"
	"time"
)

// Tuning holds every runtime-adjustable parameter of a controller and its
// position integrators.
type Tuning struct {
	PollIntervalMs       int     `json:"pollIntervalMs"`
	DeadZoneThreshold    float64 `json:"deadZoneThreshold"`
	RoundingDigits       int     `json:"roundingDigits"`
	TriggerMinDelta      int     `json:"triggerMinDelta"`
	MaxEventsPerCycle    int     `json:"maxEventsPerCycle"`
	AccelerationExponent float64 `json:"accelerationExponent"`
	LeftSpeedScalar      float64 `json:"leftSpeedScalar"`
	RightSpeedScalar     float64 `json:"rightSpeedScalar"`
	PositionDigits       int     `json:"positionDigits"`
}

func DefaultTuning() Tuning {
	return Tuning{
		PollIntervalMs:       50,
		DeadZoneThreshold:    0.08,
		RoundingDigits:       3,
		TriggerMinDelta:      5,
		MaxEventsPerCycle:    256,
		AccelerationExponent: 2.0,
		LeftSpeedScalar:      2,
		RightSpeedScalar:     2,
		PositionDigits:       3,
	}
}

func (t Tuning) Validate() error {
	switch {
	case t.PollIntervalMs <= 0:
		return fmt.Errorf("%w: pollIntervalMs must be positive, got %d", ErrInvalidTuning, t.PollIntervalMs)
	case t.DeadZoneThreshold < 0 || t.DeadZoneThreshold >= 1:
		return fmt.Errorf("%w: deadZoneThreshold must be in [0, 1), got %v", ErrInvalidTuning, t.DeadZoneThreshold)
	case t.RoundingDigits < 1 || t.RoundingDigits > 6:
		return fmt.Errorf("%w: roundingDigits must be in [1, 6], got %d", ErrInvalidTuning, t.RoundingDigits)
	case t.PositionDigits < 1 || t.PositionDigits > 6:
		return fmt.Errorf("%w: positionDigits must be in [1, 6], got %d", ErrInvalidTuning, t.PositionDigits)
	case t.TriggerMinDelta < 0:
		return fmt.Errorf("%w: triggerMinDelta must not be negative, got %d", ErrInvalidTuning, t.TriggerMinDelta)
	case t.MaxEventsPerCycle <= 0:
		return fmt.Errorf("%w: maxEventsPerCycle must be positive, got %d", ErrInvalidTuning, t.MaxEventsPerCycle)
	case t.AccelerationExponent <= 0:
		return fmt.Errorf("%w: accelerationExponent must be positive, got %v", ErrInvalidTuning, t.AccelerationExponent)
	case t.LeftSpeedScalar < 0 || t.RightSpeedScalar < 0:
		return fmt.Errorf("%w: speed scalars must not be negative", ErrInvalidTuning)
	}
	return nil
}

func (t Tuning) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMs) * time.Millisecond
}

func (t Tuning) Normalizer() Normalizer {
	return Normalizer{DeadZone: t.DeadZoneThreshold, Digits: t.RoundingDigits}
}

// Integrator returns the integrator settings for one stick.
func (t Tuning) Integrator(stick Stick) IntegratorConfig {
	speed := t.LeftSpeedScalar
	if stick == StickRight {
		speed = t.RightSpeedScalar
	}
	return IntegratorConfig{
		Exponent:    t.AccelerationExponent,
		SpeedScalar: speed,
		Digits:      t.PositionDigits,
	}
}
