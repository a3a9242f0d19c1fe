package padapi

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/goccy/go-yaml"
	"github.com/iancoleman/strcase"
)

// Profile describes the layout of one controller type: which ids are buttons, what
// role each axis plays and which axis pairs form a stick. Different layouts are
// different profiles, the dispatcher never branches on controller type.
type Profile struct {
	Name    string       `yaml:"name"`
	Buttons []ButtonSpec `yaml:"buttons"`
	Axes    []AxisSpec   `yaml:"axes"`
	Sticks  []StickSpec  `yaml:"sticks"`

	roles RoleTable
	keys  map[ButtonID]string
}

type ButtonSpec struct {
	ID   ButtonID `yaml:"id"`
	Name string   `yaml:"name"`
	// Key is the notification key. Derived from Name when empty.
	Key string `yaml:"key,omitempty"`
}

type AxisSpec struct {
	ID   AxisID   `yaml:"id"`
	Name string   `yaml:"name"`
	Role AxisRole `yaml:"role"`
}

type StickSpec struct {
	Stick Stick  `yaml:"stick"`
	X     AxisID `yaml:"x"`
	Y     AxisID `yaml:"y"`
}

// Init validates the profile and builds its lookup tables.
func (p *Profile) Init() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrProfileInvalid)
	}
	p.keys = make(map[ButtonID]string, len(p.Buttons))
	for i, b := range p.Buttons {
		if _, dup := p.keys[b.ID]; dup {
			return fmt.Errorf("%w: %s: duplicate button id %d", ErrProfileInvalid, p.Name, b.ID)
		}
		if b.Key == "" {
			b.Key = strcase.ToLowerCamel(b.Name)
		}
		if b.Key == "" {
			b.Key = fmt.Sprintf("button%d", b.ID)
		}
		p.Buttons[i] = b
		p.keys[b.ID] = b.Key
	}
	p.roles = make(RoleTable, len(p.Axes))
	for _, a := range p.Axes {
		if _, dup := p.roles[a.ID]; dup {
			return fmt.Errorf("%w: %s: duplicate axis id %d", ErrProfileInvalid, p.Name, a.ID)
		}
		p.roles[a.ID] = a.Role
	}
	seen := make(map[Stick]bool, len(p.Sticks))
	for _, s := range p.Sticks {
		if seen[s.Stick] {
			return fmt.Errorf("%w: %s: %s stick defined twice", ErrProfileInvalid, p.Name, s.Stick)
		}
		seen[s.Stick] = true
		for _, axis := range []AxisID{s.X, s.Y} {
			if p.roles[axis] != RoleThumbstick {
				return fmt.Errorf("%w: %s: %s stick axis %d is not a thumbstick", ErrProfileInvalid, p.Name, s.Stick, axis)
			}
		}
	}
	return nil
}

// Classifier returns the profile's role table.
func (p *Profile) Classifier() RoleTable {
	return p.roles
}

// ButtonKey returns the notification key for a button id.
func (p *Profile) ButtonKey(id ButtonID) string {
	if key, ok := p.keys[id]; ok {
		return key
	}
	return fmt.Sprintf("button%d", id)
}

// Stick returns the axis pair of a stick.
func (p *Profile) Stick(stick Stick) (StickSpec, bool) {
	for _, s := range p.Sticks {
		if s.Stick == stick {
			return s, true
		}
	}
	return StickSpec{}, false
}

// ParseProfile decodes a YAML profile. Unknown fields are rejected.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data), yaml.DisallowUnknownField())
	if err := dec.Decode(&p); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty document", ErrProfileInvalid)
		}
		return nil, fmt.Errorf("%w: %s", ErrProfileInvalid, yaml.FormatError(err, false, true))
	}
	if err := p.Init(); err != nil {
		return nil, err
	}
	return &p, nil
}

func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(data)
}

var builtinProfiles = map[string]func() *Profile{
	"xbox": XboxProfile,
	"xpad": XpadProfile,
}

// BuiltinProfile returns a fresh copy of a named built-in profile.
func BuiltinProfile(name string) (*Profile, error) {
	fn, ok := builtinProfiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return fn(), nil
}

func BuiltinProfileNames() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mustInit(p *Profile) *Profile {
	if err := p.Init(); err != nil {
		panic(err)
	}
	return p
}

// XboxProfile is the SDL game controller layout.
func XboxProfile() *Profile {
	return mustInit(&Profile{
		Name: "xbox",
		Buttons: []ButtonSpec{
			{ID: 0, Name: "A"},
			{ID: 1, Name: "B"},
			{ID: 2, Name: "X"},
			{ID: 3, Name: "Y"},
			{ID: 4, Name: "Back"},
			{ID: 5, Name: "Guide"},
			{ID: 6, Name: "Start"},
			{ID: 7, Name: "Left Thumb Click"},
			{ID: 8, Name: "Right Thumb Click"},
			{ID: 9, Name: "LB"},
			{ID: 10, Name: "RB"},
			{ID: 11, Name: "Up"},
			{ID: 12, Name: "Down"},
			{ID: 13, Name: "Left"},
			{ID: 14, Name: "Right"},
		},
		Axes: []AxisSpec{
			{ID: 0, Name: "Left Stick X", Role: RoleThumbstick},
			{ID: 1, Name: "Left Stick Y", Role: RoleThumbstick},
			{ID: 2, Name: "Right Stick X", Role: RoleThumbstick},
			{ID: 3, Name: "Right Stick Y", Role: RoleThumbstick},
			{ID: 4, Name: "Left Trigger", Role: RoleTrigger},
			{ID: 5, Name: "Right Trigger", Role: RoleTrigger},
		},
		Sticks: []StickSpec{
			{Stick: StickLeft, X: 0, Y: 1},
			{Stick: StickRight, X: 2, Y: 3},
		},
	})
}

// XpadProfile is the layout the Linux xpad driver exposes on /dev/input/js*.
// Axes 6 and 7 are the d-pad hat and stay unclassified.
func XpadProfile() *Profile {
	return mustInit(&Profile{
		Name: "xpad",
		Buttons: []ButtonSpec{
			{ID: 0, Name: "A"},
			{ID: 1, Name: "B"},
			{ID: 2, Name: "X"},
			{ID: 3, Name: "Y"},
			{ID: 4, Name: "LB"},
			{ID: 5, Name: "RB"},
			{ID: 6, Name: "Back"},
			{ID: 7, Name: "Start"},
			{ID: 8, Name: "Guide"},
			{ID: 9, Name: "Left Thumb Click"},
			{ID: 10, Name: "Right Thumb Click"},
		},
		Axes: []AxisSpec{
			{ID: 0, Name: "Left Stick X", Role: RoleThumbstick},
			{ID: 1, Name: "Left Stick Y", Role: RoleThumbstick},
			{ID: 2, Name: "Left Trigger", Role: RoleTrigger},
			{ID: 3, Name: "Right Stick X", Role: RoleThumbstick},
			{ID: 4, Name: "Right Stick Y", Role: RoleThumbstick},
			{ID: 5, Name: "Right Trigger", Role: RoleTrigger},
			{ID: 6, Name: "Hat X"},
			{ID: 7, Name: "Hat Y"},
		},
		Sticks: []StickSpec{
			{Stick: StickLeft, X: 0, Y: 1},
			{Stick: StickRight, X: 3, Y: 4},
		},
	})
}
