package core

import (
	"io"
	"math"
	"testing"

	"github.com/nomad-silicon/ooocore/archctx"
	"github.com/nomad-silicon/ooocore/decoder"
	"github.com/nomad-silicon/ooocore/eventlog"
	"github.com/nomad-silicon/ooocore/memsys"
	"github.com/nomad-silicon/ooocore/predict"
	"github.com/nomad-silicon/ooocore/uop"
)

// threadRig bundles one hardware thread's external collaborators, built
// fresh per test so each test's Fixed decoder can be populated independently.
type threadRig struct {
	dec  *decoder.Fixed
	pred predict.Predictor
	ctx  *archctx.Minimal
}

func newThreadRig() *threadRig {
	return &threadRig{dec: decoder.NewFixed(), pred: predict.NewStatic(), ctx: archctx.NewMinimal()}
}

func (r *threadRig) coreInput() struct {
	Decoder   decoder.Decoder
	Predictor predict.Predictor
	Ctx       archctx.Context
} {
	return struct {
		Decoder   decoder.Decoder
		Predictor predict.Predictor
		Ctx       archctx.Context
	}{Decoder: r.dec, Predictor: r.pred, Ctx: r.ctx}
}

func buildCore(t *testing.T, cfg Config, rigs ...*threadRig) *OutOfOrderCore {
	t.Helper()
	cfg.NumThreads = len(rigs)
	inputs := make([]struct {
		Decoder   decoder.Decoder
		Predictor predict.Predictor
		Ctx       archctx.Context
	}, len(rigs))
	for i, r := range rigs {
		inputs[i] = r.coreInput()
	}
	cache := memsys.NewFlat(1<<20, 8)
	return NewCore(0, cfg, cache, io.Discard, inputs)
}

func alu(op uop.Opcode, rip uint64, dest, src1, src2 int, imm uint64) uop.Uop {
	return uop.Uop{Opcode: op, Bytes: 1, SOM: true, EOM: true, ArchDest: dest, ArchSrc1: src1, ArchSrc2: src2, Imm: imm, RIP: rip}
}

func movImm(rip uint64, dest int, imm uint64) uop.Uop {
	return alu(uop.OpMovImm, rip, dest, -1, -1, imm)
}

func load(rip uint64, dest, addrReg int, imm uint64) uop.Uop {
	return alu(uop.OpLoad, rip, dest, addrReg, -1, imm)
}

func store(rip uint64, addrReg, dataReg int, imm uint64) uop.Uop {
	return alu(uop.OpStore, rip, -1, addrReg, dataReg, imm)
}

func jump(rip uint64, target uint64) uop.Uop {
	return alu(uop.OpJump, rip, -1, -1, -1, target)
}

func block(start uint64, uops []uop.Uop, fall uint64) decoder.BasicBlock {
	return decoder.BasicBlock{Uops: uops, StartRIP: start, FallRIP: fall}
}

// regValue reads the architectural value of archReg as of thread t's most
// recent commit, via commitrrt.
func regValue(c *OutOfOrderCore, t *ThreadContext, archReg int) uint64 {
	slot := t.CommitRRT.Mapping[archReg]
	return c.PhysRegs.Get(slot).Data
}

func countEvents(c *OutOfOrderCore, thread int, typ eventlog.EventType) int {
	n := 0
	c.EventLog.Each(func(r eventlog.Record) {
		if int(r.Thread) == thread && r.Type == typ {
			n++
		}
	})
	return n
}

func countFlaggedLoadHits(c *OutOfOrderCore, thread int) int {
	n := 0
	c.EventLog.Each(func(r eventlog.Record) {
		if int(r.Thread) == thread && r.Type == eventlog.EventLoadHit && r.Payload.Flags == 1 {
			n++
		}
	})
	return n
}

func runCycles(c *OutOfOrderCore, n int) {
	for i := 0; i < n; i++ {
		c.RunCycle()
	}
}

// TestSingleThreadInOrderTrace commits a straight-line sequence of
// independent ALU uops and checks the architectural values land correctly
// and in program order.
func TestSingleThreadInOrderTrace(t *testing.T) {
	rig := newThreadRig()
	rig.dec.Blocks[0] = block(0, []uop.Uop{
		movImm(0, 0, 5),
		movImm(1, 1, 7),
		alu(uop.OpAdd, 2, 2, 0, 1, 0),
	}, 3)

	c := buildCore(t, DefaultConfig(), rig)
	runCycles(c, 30)

	th := c.Threads[0]
	if got := regValue(c, th, 2); got != 12 {
		t.Fatalf("r2 = %d, want 12", got)
	}
	if th.ROB.Count() != 0 {
		t.Fatalf("rob not drained: count=%d", th.ROB.Count())
	}
	if err := c.CheckInvariants(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
}

// TestRAWHazardSingleCycleLatency checks that a uop depending on its
// immediate predecessor's result issues exactly one cycle later, the
// single-cycle same-cluster bypass the backend's transfer/complete split is
// built around.
func TestRAWHazardSingleCycleLatency(t *testing.T) {
	rig := newThreadRig()
	rig.dec.Blocks[0] = block(0, []uop.Uop{
		movImm(0, 0, 9),
		alu(uop.OpAdd, 1, 1, 0, 0, 0), // r1 = r0 + r0, true RAW on r0
	}, 2)

	c := buildCore(t, DefaultConfig(), rig)
	runCycles(c, 30)

	th := c.Threads[0]
	if got := regValue(c, th, 1); got != 18 {
		t.Fatalf("r1 = %d, want 18", got)
	}

	var producerCycle, consumerCycle uint64 = ^uint64(0), ^uint64(0)
	c.EventLog.Each(func(r eventlog.Record) {
		if r.Type != eventlog.EventIssueOK {
			return
		}
		switch r.RIP {
		case 0:
			producerCycle = r.Cycle
		case 1:
			consumerCycle = r.Cycle
		}
	})
	if producerCycle == ^uint64(0) || consumerCycle == ^uint64(0) {
		t.Fatalf("missing issue events: producer=%d consumer=%d", producerCycle, consumerCycle)
	}
	if consumerCycle != producerCycle+1 {
		t.Fatalf("consumer issued at cycle %d, want %d (producer+1)", consumerCycle, producerCycle+1)
	}
}

// TestStoreToLoadForwarding staggers a store and a dependent load far
// enough apart (FetchWidth=1, so each instruction renames in its own
// cycle) that the load issues strictly after the store has resolved but
// strictly before the store commits, the case true LSQ forwarding (as
// opposed to an eventual cache read) must handle.
func TestStoreToLoadForwarding(t *testing.T) {
	rig := newThreadRig()
	rig.dec.Blocks[0] = block(0, []uop.Uop{
		movImm(0, 0, 0x100), // r0 = address base
		movImm(1, 1, 0xCD),  // r1 = store data
		store(2, 0, 1, 0),   // [r0+0] = r1
		load(3, 2, 0, 0),    // r2 = [r0+0]
	}, 4)

	cfg := DefaultConfig()
	cfg.FetchWidth = 1
	c := buildCore(t, cfg, rig)
	runCycles(c, 40)

	th := c.Threads[0]
	if got := regValue(c, th, 2); got != 0xCD {
		t.Fatalf("r2 = %#x, want 0xCD", got)
	}
	if countFlaggedLoadHits(c, 0) == 0 {
		t.Fatal("expected at least one forwarded load (EventLoadHit with Flags=1)")
	}
	if countEvents(c, 0, eventlog.EventReplay) != 0 {
		t.Fatal("forwarding case should not need a replay")
	}
}

// TestLoadAliasingAnnulment lets a store and the load that aliases it
// become ready in the same cycle (full fetch width, no artificial stagger)
// so the load's first attempt races ahead of the store and reads stale
// data; AliasCheck must catch this and replay the load so it observes the
// correct value.
func TestLoadAliasingAnnulment(t *testing.T) {
	rig := newThreadRig()
	rig.dec.Blocks[0] = block(0, []uop.Uop{
		movImm(0, 0, 0x200),
		movImm(1, 1, 0x55),
		store(2, 0, 1, 0),
		load(3, 2, 0, 0),
	}, 4)

	c := buildCore(t, DefaultConfig(), rig)
	runCycles(c, 40)

	th := c.Threads[0]
	if got := regValue(c, th, 2); got != 0x55 {
		t.Fatalf("r2 = %#x, want 0x55", got)
	}
	if countEvents(c, 0, eventlog.EventStoreAliasedLoad) == 0 {
		t.Fatal("expected the same-cycle race to trigger EventStoreAliasedLoad")
	}
	if countEvents(c, 0, eventlog.EventReplay) == 0 {
		t.Fatal("expected the aliased load to be replayed")
	}
	if err := c.CheckInvariants(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
}

// TestBranchMispredictAnnulment forces a misprediction (predict.Static's
// default guess for a never-seen rip is the rip itself, so an unconditional
// jump to any other address always mispredicts) and checks that the
// wrong-path uop fetched down the predicted edge is discarded before it can
// commit, while the correct-path uop past the real target commits.
func TestBranchMispredictAnnulment(t *testing.T) {
	rig := newThreadRig()
	rig.dec.Blocks[0] = block(0, []uop.Uop{
		movImm(0, 0, 1),
		jump(1, 1000),
	}, 2)
	// Wrong path: Static.Predict(1) with no history returns 1 itself, so
	// fetch speculatively "continues" at rip 1 and needs a block there.
	rig.dec.Blocks[1] = block(1, []uop.Uop{
		movImm(1, 5, 999),
	}, 2)
	rig.dec.Blocks[1000] = block(1000, []uop.Uop{
		movImm(1000, 6, 42),
	}, 1001)

	c := buildCore(t, DefaultConfig(), rig)
	runCycles(c, 60)

	th := c.Threads[0]
	if got := regValue(c, th, 6); got != 42 {
		t.Fatalf("r6 = %d, want 42 (correct-path uop never committed)", got)
	}
	if got := regValue(c, th, 5); got != 0 {
		t.Fatalf("r5 = %d, want 0 (wrong-path uop must never reach commit)", got)
	}
	if countEvents(c, 0, eventlog.EventCommitOK) == 0 {
		t.Fatal("nothing committed at all")
	}
}

// TestSMTFairness runs two hardware threads with symmetric, effectively
// unbounded instruction streams and checks ICOUNT does not starve either
// one: both make comparable commit progress over the same window.
func TestSMTFairness(t *testing.T) {
	ripBase := [2]uint64{0, 0x10000}
	rigs := make([]*threadRig, 2)
	for i := 0; i < 2; i++ {
		rigs[i] = newThreadRig()
		base := ripBase[i]
		rigs[i].dec.Blocks[base] = block(base, []uop.Uop{
			movImm(base, 0, 1),
			movImm(base+1, 1, 2),
			alu(uop.OpAdd, base+2, 2, 0, 1, 0),
		}, base) // self-looping block: an unbounded independent-uop stream
	}

	c := buildCore(t, DefaultConfig(), rigs[0], rigs[1])
	runCycles(c, 100000)

	c0 := countEvents(c, 0, eventlog.EventCommitOK)
	c1 := countEvents(c, 1, eventlog.EventCommitOK)
	if c0 == 0 || c1 == 0 {
		t.Fatalf("one thread starved: thread0=%d thread1=%d commits", c0, c1)
	}
	rel := math.Abs(float64(c0)-float64(c1)) / float64(c0+c1) * 2
	if rel > 0.05 {
		t.Fatalf("commit counts too skewed for symmetric workloads: thread0=%d thread1=%d (%.1f%% relative difference)", c0, c1, rel*100)
	}
	if err := c.CheckInvariants(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
}
