package ecs

import "math/bits"

// MaxComponentTypes is the hard ceiling on distinct component kinds: one bit
// of Mask per kind.
const MaxComponentTypes = 64

// Mask is a set of component types, bit n standing for the type with id n.
type Mask uint64

// MaskOf returns the union of the given types' masks.
func MaskOf(types ...ComponentType) Mask {
	var m Mask
	for _, t := range types {
		m |= t.mask
	}
	return m
}

// Contains reports whether every bit of other is also set in m.
func (m Mask) Contains(other Mask) bool {
	return m&other == other
}

// Has reports whether the type with the given id is in the set.
func (m Mask) Has(id TypeID) bool {
	return id < MaxComponentTypes && m&(1<<id) != 0
}

func (m Mask) With(t ComponentType) Mask {
	return m | t.mask
}

func (m Mask) Without(t ComponentType) Mask {
	return m &^ t.mask
}

func (m Mask) Count() int {
	return bits.OnesCount64(uint64(m))
}

func (m Mask) IsEmpty() bool {
	return m == 0
}

// IDs lists the type ids in the set in ascending order.
func (m Mask) IDs() []TypeID {
	out := make([]TypeID, 0, m.Count())
	for rest := uint64(m); rest != 0; rest &= rest - 1 {
		out = append(out, TypeID(bits.TrailingZeros64(rest)))
	}
	return out
}
