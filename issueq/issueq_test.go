package issueq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReservedQuotaMatchesFormula(t *testing.T) {
	q := New(16, 4) // floor(sqrt(16/4)) = 2
	require.Equal(t, 2, q.Reserved)
}

func TestThreadCannotExceedReservedPlusShared(t *testing.T) {
	q := New(8, 4) // reserved=1, shared = 8-4*1 = 4
	// Thread 0 can take its reservation plus the whole shared pool.
	for i := 0; i < 5; i++ {
		_, ok := q.Insert(0, Tag{ROBIndex: int32(i), Thread: 0})
		require.True(t, ok, "insert %d", i)
	}
	require.Equal(t, 5, q.Occupancy(0))

	// Thread 1 still gets its reserved slot even though thread 0 took the
	// rest of the shared pool.
	_, ok := q.Insert(1, Tag{ROBIndex: 99, Thread: 1})
	require.True(t, ok)
	require.Equal(t, 1, q.Occupancy(1))

	_, ok = q.Insert(1, Tag{ROBIndex: 100, Thread: 1})
	require.False(t, ok, "shared pool is exhausted")
}

func TestTotalOccupancyIsSumOfPerThread(t *testing.T) {
	q := New(8, 2)
	q.Insert(0, Tag{Thread: 0})
	q.Insert(0, Tag{Thread: 0})
	q.Insert(1, Tag{Thread: 1})
	require.Equal(t, q.Occupancy(0)+q.Occupancy(1), q.TotalOccupancy())
}

func TestRemoveFreesSlotForReuse(t *testing.T) {
	q := New(2, 1)
	slot, ok := q.Insert(0, Tag{ROBIndex: 1, Thread: 0})
	require.True(t, ok)
	q.Remove(slot)
	require.Equal(t, 0, q.TotalOccupancy())
	_, ok = q.Insert(0, Tag{ROBIndex: 2, Thread: 0})
	require.True(t, ok)
}
