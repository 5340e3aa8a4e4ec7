package rob

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/nomad-silicon/ooocore/statelist"
)

func TestAllocStampsIncreasingUUIDs(t *testing.T) {
	r := New(0, 4, 1)
	e1, ok := r.Alloc()
	require.True(t, ok)
	e2, ok := r.Alloc()
	require.True(t, ok)
	require.Less(t, e1.UUID, e2.UUID)
	require.Equal(t, ListFrontend, r.ListOf(e1.Index))
	require.Equal(t, 2, r.Capacity-r.FreeCount())
}

func TestAllocExhaustionReportsFull(t *testing.T) {
	r := New(0, 2, 1)
	_, ok := r.Alloc()
	require.True(t, ok)
	_, ok = r.Alloc()
	require.True(t, ok)
	_, ok = r.Alloc()
	require.False(t, ok)
}

func TestLifecycleTransitionsMoveBetweenLists(t *testing.T) {
	r := New(0, 4, 2)
	e, _ := r.Alloc()
	r.ToReadyToDispatch(e.Index)
	require.Equal(t, ListReadyToDispatch, r.ListOf(e.Index))

	r.ToDispatched(e.Index, 1)
	require.Equal(t, clusterList(1, kindDispatched), r.ListOf(e.Index))
	require.Equal(t, 1, e.Cluster)

	r.ToReadyToIssue(e.Index, 1)
	require.Equal(t, clusterList(1, kindReadyToIssue), r.ListOf(e.Index))

	r.ToIssued(e.Index, 1)
	r.ToCompleted(e.Index, 1)
	r.ToReadyToWriteback(e.Index, 1)
	r.ToReadyToCommit(e.Index)
	require.Equal(t, ListReadyToCommit, r.ListOf(e.Index))
}

func TestFreeAtHeadAdvancesHead(t *testing.T) {
	r := New(0, 2, 1)
	e1, _ := r.Alloc()
	e2, _ := r.Alloc()
	head, ok := r.Head()
	require.True(t, ok)
	require.Equal(t, e1.Index, head)

	r.Free(e1.Index)
	head, ok = r.Head()
	require.True(t, ok)
	require.Equal(t, e2.Index, head)
	require.False(t, r.Get(e1.Index).EntryValid)
}

func TestYoungestAllocatedAndPriorWalkBackward(t *testing.T) {
	r := New(0, 4, 1)
	e1, _ := r.Alloc()
	e2, _ := r.Alloc()
	e3, _ := r.Alloc()

	youngest, ok := r.YoungestAllocated()
	require.True(t, ok)
	require.Equal(t, e3.Index, youngest)
	require.Equal(t, e2.Index, r.Prior(youngest))
	require.Equal(t, e1.Index, r.Prior(r.Prior(youngest)))
}

func TestNewRRTPointsAtNullPhysreg(t *testing.T) {
	rrt := NewRRT(physregNullForTest)
	for _, p := range rrt.Mapping {
		require.Equal(t, physregNullForTest, p)
	}
}

const physregNullForTest int32 = 0

func TestYoungerAccountsForWraparound(t *testing.T) {
	r := New(0, 2, 1)
	e1, _ := r.Alloc()
	e2, _ := r.Alloc()
	require.True(t, r.Younger(e2.Index, e1.Index))
	r.Free(e1.Index)
	e3, _ := r.Alloc() // wraps around to reuse e1's old slot index
	require.True(t, r.Younger(e3.Index, e2.Index))
	_ = statelist.None
}
