package ecs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type position struct {
	Base
	X, Y float64
}

type velocity struct {
	Base
	X, Y float64
}

type health struct {
	Base
	HP int
}

type hooked struct {
	Base
	attached int
	detached int
	veto     error
}

func (h *hooked) OnAttach(*GameObject) error {
	h.attached++
	return h.veto
}

func (h *hooked) OnDetach(*GameObject) {
	h.detached++
}

type testTypes struct {
	position ComponentType
	velocity ComponentType
	health   ComponentType
	hooked   ComponentType
}

func newTestWorld(t *testing.T) (*World, testTypes) {
	t.Helper()
	r := NewTypeRegistry()
	var tt testTypes
	var err error
	tt.position, err = Register[*position](r)
	require.NoError(t, err)
	tt.velocity, err = Register[*velocity](r)
	require.NoError(t, err)
	tt.health, err = Register[*health](r)
	require.NoError(t, err)
	tt.hooked, err = Register[*hooked](r)
	require.NoError(t, err)
	return NewWorld(r), tt
}
