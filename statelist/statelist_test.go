package statelist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddMovesBetweenLists(t *testing.T) {
	s := NewSet(4, "free", "busy")
	const free, busy int32 = 0, 1

	for i := int32(0); i < 4; i++ {
		s.Add(free, i)
	}
	require.Equal(t, 4, s.Count(free))
	require.Equal(t, 0, s.Count(busy))

	s.Add(busy, 2)
	require.Equal(t, 3, s.Count(free))
	require.Equal(t, 1, s.Count(busy))
	require.Equal(t, busy, s.ListOf(2))

	// FIFO order within a list is preserved across moves.
	var order []int32
	s.Each(free, func(slot int32) { order = append(order, slot) })
	require.Equal(t, []int32{0, 1, 3}, order)
}

func TestRemoveUnlinksFromMiddle(t *testing.T) {
	s := NewSet(3, "l")
	s.Add(0, 0)
	s.Add(0, 1)
	s.Add(0, 2)

	s.Remove(1)
	require.Equal(t, 2, s.Count(0))
	require.Equal(t, None, s.ListOf(1))

	var order []int32
	s.Each(0, func(slot int32) { order = append(order, slot) })
	require.Equal(t, []int32{0, 2}, order)
}

func TestUnlistedSlotHasNoList(t *testing.T) {
	s := NewSet(2, "l")
	require.Equal(t, None, s.ListOf(0))
	require.Equal(t, None, s.Next(0))
	require.Equal(t, None, s.Prev(0))
}
