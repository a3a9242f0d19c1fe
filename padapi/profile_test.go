package padapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile([]byte(`
name: arcade
buttons:
  - id: 0
    name: Punch
  - id: 1
    name: Heavy Kick
  - id: 2
    name: Coin
    key: insertCoin
axes:
  - id: 0
    name: Stick X
    role: thumbstick
  - id: 1
    name: Stick Y
    role: stick
  - id: 2
    name: Pedal
    role: trigger
  - id: 3
    name: Dial
sticks:
  - stick: left
    x: 0
    y: 1
`))
	require.NoError(t, err)
	assert.Equal(t, "arcade", p.Name)
	assert.Equal(t, "punch", p.ButtonKey(0))
	assert.Equal(t, "heavyKick", p.ButtonKey(1))
	assert.Equal(t, "insertCoin", p.ButtonKey(2))
	assert.Equal(t, "button9", p.ButtonKey(9))

	c := p.Classifier()
	assert.Equal(t, RoleThumbstick, c.Role(0))
	assert.Equal(t, RoleThumbstick, c.Role(1))
	assert.Equal(t, RoleTrigger, c.Role(2))
	assert.Equal(t, RoleUnclassified, c.Role(3))
	assert.Equal(t, RoleUnclassified, c.Role(200))

	left, ok := p.Stick(StickLeft)
	require.True(t, ok)
	assert.Equal(t, StickSpec{Stick: StickLeft, X: 0, Y: 1}, left)
	_, ok = p.Stick(StickRight)
	assert.False(t, ok)
}

func TestParseProfileInvalid(t *testing.T) {
	testCases := map[string]string{
		"empty":         ``,
		"missing name":  "buttons: []\n",
		"unknown field": "name: x\ncolor: red\n",
		"duplicate button": `
name: x
buttons:
  - {id: 1, name: A}
  - {id: 1, name: B}
`,
		"stick on trigger": `
name: x
axes:
  - {id: 0, name: X, role: thumbstick}
  - {id: 1, name: T, role: trigger}
sticks:
  - {stick: left, x: 0, y: 1}
`,
		"bad role": `
name: x
axes:
  - {id: 0, name: X, role: wheel}
`,
	}
	for name, input := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProfile([]byte(input))
			assert.ErrorIs(t, err, ErrProfileInvalid)
		})
	}
}

func TestBuiltinProfiles(t *testing.T) {
	assert.Equal(t, []string{"xbox", "xpad"}, BuiltinProfileNames())
	for _, name := range BuiltinProfileNames() {
		p, err := BuiltinProfile(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name)
		_, ok := p.Stick(StickLeft)
		assert.True(t, ok)
		_, ok = p.Stick(StickRight)
		assert.True(t, ok)
	}

	xbox := XboxProfile()
	assert.Equal(t, "a", xbox.ButtonKey(0))
	assert.Equal(t, "leftThumbClick", xbox.ButtonKey(7))
	assert.Equal(t, RoleTrigger, xbox.Classifier().Role(5))

	xpad := XpadProfile()
	assert.Equal(t, RoleTrigger, xpad.Classifier().Role(2))
	assert.Equal(t, RoleUnclassified, xpad.Classifier().Role(6))

	_, err := BuiltinProfile("steering-wheel")
	assert.ErrorIs(t, err, ErrUnknownProfile)
}
