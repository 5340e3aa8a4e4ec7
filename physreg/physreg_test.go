package physreg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSeedsNullRegister(t *testing.T) {
	f := New("int", 8)
	require.Equal(t, Arch, f.State(NullReg))
	require.Equal(t, 1, f.Regs[NullReg].RefCount)
	require.Equal(t, uint64(0), f.Regs[NullReg].Data)
	// capacity-1 because slot 0 is pre-allocated to ARCH.
	require.Equal(t, 7, f.FreeCount())
}

func TestAllocMovesFreeToWaiting(t *testing.T) {
	f := New("int", 4)
	slot, ok := f.Alloc(0)
	require.True(t, ok)
	require.NotEqual(t, NullReg, slot)
	require.Equal(t, Waiting, f.State(slot))
	require.Equal(t, 2, f.FreeCount())
}

func TestAllocExhaustion(t *testing.T) {
	f := New("int", 2) // only the null reg, plus one allocatable slot
	_, ok := f.Alloc(0)
	require.True(t, ok)
	_, ok = f.Alloc(0)
	require.False(t, ok)
}

func TestDecRefReclaimsOnlyWhenPendingAndZero(t *testing.T) {
	f := New("int", 4)
	slot, _ := f.Alloc(0)
	f.IncRef(slot)
	f.IncRef(slot)
	f.IncRef(slot)

	require.False(t, f.DecRef(slot), "still waiting, not pending-free yet")

	f.SetState(slot, PendingFree)
	require.False(t, f.DecRef(slot), "refcount still 1")
	require.True(t, f.DecRef(slot), "refcount hits 0 while pending-free")
	require.Equal(t, Free, f.State(slot))
}

func TestNullRegisterNeverReclaimed(t *testing.T) {
	f := New("int", 4)
	require.False(t, f.DecRef(NullReg))
	require.False(t, f.DecRef(NullReg))
	require.Equal(t, Arch, f.State(NullReg))
}

func TestReadyReflectsState(t *testing.T) {
	f := New("int", 4)
	slot, _ := f.Alloc(0)
	require.False(t, f.Ready(slot))
	f.SetState(slot, Bypass)
	require.True(t, f.Ready(slot))
	f.SetState(slot, Written)
	require.True(t, f.Ready(slot))
}
