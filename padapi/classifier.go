package padapi

import (
	"fmt"
	"strings"
)

type AxisRole uint8

const (
	RoleUnclassified AxisRole = iota
	RoleThumbstick
	RoleTrigger
)

func (r AxisRole) String() string {
	switch r {
	case RoleThumbstick:
		return "thumbstick"
	case RoleTrigger:
		return "trigger"
	default:
		return "unclassified"
	}
}

func (r AxisRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *AxisRole) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "thumbstick", "stick":
		*r = RoleThumbstick
	case "trigger":
		*r = RoleTrigger
	case "", "unclassified", "none":
		*r = RoleUnclassified
	default:
		return fmt.Errorf("unknown axis role %q", string(text))
	}
	return nil
}

// Classifier assigns a role to every axis id. Axes it does not know about are
// RoleUnclassified and never produce notifications.
type Classifier interface {
	Role(axis AxisID) AxisRole
}

// RoleTable is a static Classifier.
type RoleTable map[AxisID]AxisRole

func (t RoleTable) Role(axis AxisID) AxisRole {
	return t[axis]
}
