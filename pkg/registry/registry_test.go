package registry

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter struct {
	greeting string
}

func TestRegistry(t *testing.T) {
	r := NewRegistry[*greeter, string]("world")
	r.Register("hello", func(config json.RawMessage, provider string) (*greeter, error) {
		var cfg struct {
			Prefix string `json:"prefix"`
		}
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, err
			}
		}
		return &greeter{greeting: fmt.Sprintf("%shello %s", cfg.Prefix, provider)}, nil
	})
	r.Register("bye", func(json.RawMessage, string) (*greeter, error) {
		return &greeter{greeting: "bye"}, nil
	})

	assert.Equal(t, []string{"bye", "hello"}, r.Names())
	assert.True(t, r.Has("hello"))
	assert.False(t, r.Has("howdy"))

	g, err := r.New("hello", json.RawMessage(`{"prefix": "> "}`))
	require.NoError(t, err)
	assert.Equal(t, "> hello world", g.greeting)

	g, err = r.New("hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", g.greeting)

	_, err = r.New("howdy", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Panics(t, func() {
		r.Register("bye", nil)
	})
}
