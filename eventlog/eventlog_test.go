package eventlog

import (
	"bytes"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestAppendOverwritesOldestWhenFull(t *testing.T) {
	l := New(2, true, false, io.Discard, zerolog.Disabled)
	l.Append(Record{Type: EventFetchOK, Cycle: 1})
	l.Append(Record{Type: EventFetchOK, Cycle: 2})
	l.Append(Record{Type: EventFetchOK, Cycle: 3})

	require.Equal(t, 2, l.Len())
	var cycles []uint64
	l.Each(func(r Record) { cycles = append(cycles, r.Cycle) })
	require.Equal(t, []uint64{2, 3}, cycles)
}

func TestDisabledLogDropsRecords(t *testing.T) {
	l := New(4, false, false, io.Discard, zerolog.Disabled)
	l.Append(Record{Type: EventFetchOK, Cycle: 1})
	require.Equal(t, 0, l.Len())
}

func TestWriteBinaryRoundTrips(t *testing.T) {
	l := New(8, true, false, io.Discard, zerolog.Disabled)
	l.Append(Record{Type: EventCommitOK, Cycle: 10, Thread: 1, Core: 0, ROBIndex: 5, RIP: 0x1000, Payload: Payload{Flags: 0x3}})
	l.Append(Record{Type: EventLoadHit, Cycle: 11, Thread: 1, Core: 0, ROBIndex: 6, RIP: 0x1004, Payload: Payload{Value1: 0xDEADBEEF, Value2: 8, Flags: 1}})

	var buf bytes.Buffer
	require.NoError(t, l.WriteBinary(&buf, 7))

	data := buf.Bytes()
	rec, isMeta, coreID, n, err := ReadBinaryRecord(data)
	require.NoError(t, err)
	require.True(t, isMeta)
	require.Equal(t, uint16(7), coreID)
	data = data[n:]

	rec, isMeta, _, n, err = ReadBinaryRecord(data)
	require.NoError(t, err)
	require.False(t, isMeta)
	require.Equal(t, EventCommitOK, rec.Type)
	require.Equal(t, uint64(10), rec.Cycle)
	require.Equal(t, uint64(0x1000), rec.RIP)
	data = data[n:]

	rec, isMeta, _, _, err = ReadBinaryRecord(data)
	require.NoError(t, err)
	require.False(t, isMeta)
	require.Equal(t, EventLoadHit, rec.Type)
	require.Equal(t, uint64(0xDEADBEEF), rec.Payload.Value1)
	require.Equal(t, uint32(8), rec.Payload.Value2)
	require.Equal(t, uint8(1), rec.Payload.Flags)
}

func TestPayloadSizeUnknownTypeErrors(t *testing.T) {
	_, err := payloadSize(numEventTypes + 100)
	require.Error(t, err)
}
