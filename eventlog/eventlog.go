// Package eventlog implements the bounded ring buffer of tagged per-cycle
// events used for debug/trace. Two serializers exist: a human-readable one
// (cycle banners plus per-event formatting, built on github.com/rs/zerolog)
// and a compact binary wire format (length-prefixed, variable-size records
// keyed by event type through a static, range-indexed size table).
package eventlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// EventType tags a Record. Types are grouped by pipeline stage; see
// sizeTable below for how groups map to binary payload sizes.
type EventType uint16

const (
	EventFetchOK EventType = iota
	EventFetchICacheMiss
	EventFetchBogusRIP

	EventRenameOK
	EventROBFull
	EventPhysregFull
	EventLSQFull
	EventIssueQFull
	EventMemQFull

	EventDispatchOK
	EventDispatchNoCluster

	EventIssueOK
	EventIssueNoFU
	EventReplay

	EventLoadHit
	EventLoadWait
	EventLoadLFRQFull
	EventLoadBankConflict
	EventStoreAliasedLoad
	EventInterlockWait

	EventCommitOK
	EventReclaimPhysreg
	EventBarrier
	EventException
	EventSMC
	EventInterrupt
	EventStop

	EventWatchdogTimeout

	numEventTypes
)

// eventMeta is a sentinel type outside the normal enum range, used only
// for the one metadata record emitted first per binary log, declaring the
// core ID the rest of the records belong to.
const eventMeta EventType = 0xFFFF

func (t EventType) String() string {
	names := [numEventTypes]string{
		"fetch-ok", "fetch-icache-miss", "fetch-bogus-rip",
		"rename-ok", "rob-full", "physreg-full", "lsq-full", "issueq-full", "memq-full",
		"dispatch-ok", "dispatch-no-cluster",
		"issue-ok", "issue-no-fu", "replay",
		"load-hit", "load-wait", "load-lfrq-full", "load-bank-conflict", "store-aliased-load", "interlock-wait",
		"commit-ok", "reclaim-physreg", "barrier", "exception", "smc", "interrupt", "stop",
		"watchdog-timeout",
	}
	if t == eventMeta {
		return "meta"
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "unknown"
}

// Payload is the discriminated per-event data. Only the fields relevant to
// a given EventType are populated; Text is carried for the human-readable
// serializer only and is never written by WriteBinary.
type Payload struct {
	Value1 uint64
	Value2 uint32
	Flags  uint8
	Text   string
}

// Record is one tagged event.
type Record struct {
	Type     EventType
	Cycle    uint64
	Thread   uint16
	Core     uint16
	ROBIndex int32
	RIP      uint64
	Payload  Payload
}

// Log is the fixed-capacity ring buffer.
type Log struct {
	Enabled         bool
	FlushEveryCycle bool

	buf        []Record
	head, tail int
	count      int
	capacity   int

	text zerolog.Logger
}

// New builds a Log with room for `capacity` records, writing the
// human-readable stream to w at the given zerolog level.
func New(capacity int, enabled, flushEveryCycle bool, w io.Writer, level zerolog.Level) *Log {
	return &Log{
		Enabled:         enabled,
		FlushEveryCycle: flushEveryCycle,
		buf:             make([]Record, capacity),
		capacity:        capacity,
		text:            zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// Append records r, overwriting the oldest entry once the ring is full.
// No-op when logging is disabled.
func (l *Log) Append(r Record) {
	if !l.Enabled {
		return
	}
	l.buf[l.tail] = r
	l.tail = (l.tail + 1) % l.capacity
	if l.count == l.capacity {
		l.head = (l.head + 1) % l.capacity
	} else {
		l.count++
	}
	l.emitText(r)
}

// Len reports how many records are currently buffered.
func (l *Log) Len() int { return l.count }

// Each visits every buffered record, oldest first.
func (l *Log) Each(fn func(Record)) {
	idx := l.head
	for i := 0; i < l.count; i++ {
		fn(l.buf[idx])
		idx = (idx + 1) % l.capacity
	}
}

// emitText writes one record through the zerolog sink, grouping by cycle
// banner the way a human-readable trace wants: one banner line per cycle
// boundary, then per-event structured fields. Structured-logging successor
// to the teacher's `log.Printf("[m68k] ...")` diagnostic style.
var lastBannerCycle uint64 = ^uint64(0)

func (l *Log) emitText(r Record) {
	if r.Cycle != lastBannerCycle {
		lastBannerCycle = r.Cycle
		l.text.Debug().Uint64("cycle", r.Cycle).Msgf("---- cycle %d ----", r.Cycle)
	}
	ev := l.text.Debug().
		Uint64("cycle", r.Cycle).
		Uint16("thread", r.Thread).
		Uint16("core", r.Core).
		Int32("rob", r.ROBIndex).
		Uint64("rip", r.RIP).
		Str("type", r.Type.String())
	if r.Payload.Value1 != 0 {
		ev = ev.Uint64("v1", r.Payload.Value1)
	}
	if r.Payload.Value2 != 0 {
		ev = ev.Uint32("v2", r.Payload.Value2)
	}
	if r.Payload.Flags != 0 {
		ev = ev.Uint8("flags", r.Payload.Flags)
	}
	msg := r.Type.String()
	if r.Payload.Text != "" {
		msg = r.Payload.Text
	}
	ev.Msg(msg)
}

// Flush is a no-op placeholder for the FlushEveryCycle config option's call
// site in core.RunCycle; zerolog writes through immediately, so there is no
// buffered writer to flush here. Kept as an explicit method so the cycle
// driver's call site does not need to know that.
func (l *Log) Flush() {}

var errBufferTooSmall = errors.New("eventlog: buffer too small")

// recordHeaderSize is u16 size + u16 type + u64 cycle + u16 thread +
// u16 core + u64 rip, per binary record layout.
const recordHeaderSize = 2 + 2 + 8 + 2 + 2 + 8

// sizeRange maps a contiguous band of EventType values to a fixed binary
// payload size. Event types that share a payload shape are grouped into one
// range so the table stays small even as the event set grows; a linear scan
// over a handful of ranges is cheap enough that no per-type map is needed.
type sizeRange struct {
	lo, hi EventType
	size   int // payload bytes beyond recordHeaderSize
}

var sizeTable = []sizeRange{
	{EventFetchOK, EventFetchBogusRIP, 0},
	{EventRenameOK, EventMemQFull, 0},
	{EventDispatchOK, EventDispatchNoCluster, 0},
	{EventIssueOK, EventReplay, 1},  // Flags: which FU / replay reason
	{EventLoadHit, EventInterlockWait, 13}, // Value1 + Value2 + Flags
	{EventCommitOK, EventStop, 1},
	{EventWatchdogTimeout, EventWatchdogTimeout, 12}, // Value1 + Value2
}

func payloadSize(t EventType) (int, error) {
	for _, r := range sizeTable {
		if t >= r.lo && t <= r.hi {
			return r.size, nil
		}
	}
	return 0, fmt.Errorf("eventlog: no size-table entry for event type %d", t)
}

// writeRecord encodes one record's fixed header plus its type-sized
// payload prefix, length-prefixing the whole thing.
func writeRecord(w io.Writer, t EventType, cycle uint64, thread, core uint16, rip uint64, payloadBytes []byte) error {
	size := recordHeaderSize - 2 + len(payloadBytes)
	buf := make([]byte, 2+size) // leading u16 size field is itself outside `size`
	be := binary.BigEndian
	be.PutUint16(buf[0:], uint16(size))
	be.PutUint16(buf[2:], uint16(t))
	be.PutUint64(buf[4:], cycle)
	be.PutUint16(buf[12:], thread)
	be.PutUint16(buf[14:], core)
	be.PutUint64(buf[16:], rip)
	copy(buf[24:], payloadBytes)
	_, err := w.Write(buf)
	return err
}

// payloadBytes renders r.Payload into exactly n bytes: a 1-byte payload is
// Flags alone; longer ones are in Value1/Value2/Flags order, truncating
// fields that don't fit in a given range's size.
func payloadBytes(p Payload, n int) []byte {
	if n == 1 {
		return []byte{p.Flags}
	}
	full := make([]byte, 13)
	binary.BigEndian.PutUint64(full[0:], p.Value1)
	binary.BigEndian.PutUint32(full[8:], p.Value2)
	full[12] = p.Flags
	return full[:n]
}

// WriteBinary serializes the whole ring buffer: one metadata record
// declaring coreID, then every buffered record oldest-first.
func (l *Log) WriteBinary(w io.Writer, coreID uint16) error {
	meta := payloadBytes(Payload{Value1: uint64(coreID)}, 8)
	if err := writeRecord(w, eventMeta, 0, 0, coreID, 0, meta); err != nil {
		return err
	}
	var outerErr error
	l.Each(func(r Record) {
		if outerErr != nil {
			return
		}
		n, err := payloadSize(r.Type)
		if err != nil {
			outerErr = err
			return
		}
		outerErr = writeRecord(w, r.Type, r.Cycle, r.Thread, r.Core, r.RIP, payloadBytes(r.Payload, n))
	})
	return outerErr
}

// ReadBinaryRecord decodes a single length-prefixed record from buf,
// returning the record, whether it was the leading metadata record (and,
// if so, its coreID), and the number of bytes consumed.
func ReadBinaryRecord(buf []byte) (rec Record, isMeta bool, coreID uint16, consumed int, err error) {
	if len(buf) < 2 {
		return Record{}, false, 0, 0, errBufferTooSmall
	}
	be := binary.BigEndian
	size := int(be.Uint16(buf[0:]))
	if len(buf) < 2+size {
		return Record{}, false, 0, 0, errBufferTooSmall
	}
	body := buf[2 : 2+size]
	t := EventType(be.Uint16(body[0:]))
	cycle := be.Uint64(body[2:])
	thread := be.Uint16(body[10:])
	core := be.Uint16(body[12:])
	rip := be.Uint64(body[14:])
	payload := body[recordHeaderSize-2:]
	if t == eventMeta {
		return Record{}, true, uint16(be.Uint64(extend(payload, 8))), 2 + size, nil
	}
	var p Payload
	if len(payload) >= 8 {
		p.Value1 = be.Uint64(extend(payload, 8))
	}
	if len(payload) >= 12 {
		p.Value2 = binary.BigEndian.Uint32(extend(payload, 12)[8:])
	}
	if len(payload) >= 13 {
		p.Flags = payload[12]
	}
	return Record{Type: t, Cycle: cycle, Thread: thread, Core: core, RIP: rip, Payload: p}, false, 0, 2 + size, nil
}

func extend(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
