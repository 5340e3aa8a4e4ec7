package core

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/nomad-silicon/ooocore/archctx"
	"github.com/nomad-silicon/ooocore/decoder"
	"github.com/nomad-silicon/ooocore/eventlog"
	"github.com/nomad-silicon/ooocore/issueq"
	"github.com/nomad-silicon/ooocore/memsys"
	"github.com/nomad-silicon/ooocore/physreg"
	"github.com/nomad-silicon/ooocore/predict"
	"github.com/nomad-silicon/ooocore/statelist"
	"github.com/nomad-silicon/ooocore/uop"
)

// ResultCode is a thread's outcome for the cycle just committed, inspected
// at the end of RunCycle.
type ResultCode int

const (
	ResultOK ResultCode = iota
	ResultException
	ResultBarrier
	ResultStopped
	ResultWatchdogTimeout
)

// interlockHolder names which thread's ld.acq currently owns a cache
// line's process-wide interlock, and the ROB entry that acquired it (for
// trace logging).
type interlockHolder struct {
	Thread   int
	ROBIndex int32
}

// OutOfOrderCore is one physical core's SMT pipeline state: shared physical
// register file, shared per-cluster issue queues, and one ThreadContext
// per hardware thread.
type OutOfOrderCore struct {
	ID  int
	Cfg Config

	Threads []*ThreadContext

	PhysRegs    *physreg.File
	IssueQueues []*issueq.Queue // one per cluster

	Cache memsys.Cache

	EventLog *eventlog.Log

	fuAvail  uop.FU
	bankBusy []bool

	// interlockHeld maps a cache line to the thread whose ld.acq currently
	// owns it: a process-wide resource, not per-thread, since its whole
	// purpose is making a competing thread's access to the same line
	// replay until the matching st.rel commits.
	interlockHeld map[uint64]interlockHolder

	roundRobinTID int
	Cycle         uint64

	commitCount, writeCount int

	watchdogIdleCycles uint64

	Stopped bool
}

// NewCore builds a core with cfg's clusters and sizing, one ThreadContext
// per entry in threads (len must equal cfg.NumThreads), sharing a single
// physical register file and cache.
func NewCore(id int, cfg Config, cache memsys.Cache, logw io.Writer, threads []struct {
	Decoder   decoder.Decoder
	Predictor predict.Predictor
	Ctx       archctx.Context
}) *OutOfOrderCore {
	regFile := physreg.New("core", cfg.PhysRegFileSize)
	iqs := make([]*issueq.Queue, len(cfg.Clusters))
	for i := range cfg.Clusters {
		iqs[i] = issueq.New(cfg.IssueQueueSize, cfg.NumThreads)
	}
	c := &OutOfOrderCore{
		ID:          id,
		Cfg:         cfg,
		PhysRegs:    regFile,
		IssueQueues: iqs,
		Cache:       cache,
		EventLog: eventlog.New(cfg.EventLogRingBufferSize, cfg.EventLogEnabled,
			cfg.FlushEventLogEveryCycle, logw, zerolog.Level(cfg.LogLevel)),
		bankBusy:      make([]bool, max1(cfg.L1Banks)),
		interlockHeld: make(map[uint64]interlockHolder),
	}
	for i, t := range threads {
		tc := newThreadContext(i, cfg, physreg.NullReg, t.Decoder, t.Predictor, t.Ctx)
		tc.Running = true
		c.Threads = append(c.Threads, tc)
	}
	return c
}

func (c *OutOfOrderCore) log(t *ThreadContext, typ eventlog.EventType, robIdx int32, rip uint64, p eventlog.Payload) {
	c.EventLog.Append(eventlog.Record{
		Type: typ, Cycle: c.Cycle, Thread: uint16(t.ID), Core: uint16(c.ID),
		ROBIndex: robIdx, RIP: rip, Payload: p,
	})
}

// RunCycle advances the core by exactly one cycle, in a fixed stage order:
// each numbered comment below marks one pipeline stage.
func (c *OutOfOrderCore) RunCycle() []ResultCode {
	// 1. Edge-detect pending interrupts/events per thread.
	for _, t := range c.Threads {
		if t.Running && t.Ctx != nil && t.Ctx.CheckEvents() {
			t.HandleInterruptAtNextEOM = true
		}
	}

	// 2. Reset per-cycle counters.
	c.fuAvail = uop.AllFUs
	c.commitCount, c.writeCount = 0, 0
	for i := range c.bankBusy {
		c.bankBusy[i] = false
	}
	for _, t := range c.Threads {
		t.loadsThisCycle = 0
	}

	// 3. Clock the cache/TLB subsystem.
	c.Cache.Clock()

	// 4. Backend pass (round-robin over threads): writeback, then commit.
	order := c.backendOrder()
	results := make([]ResultCode, len(c.Threads))
	for _, ti := range order {
		t := c.Threads[ti]
		c.writebackThread(t)
	}
	for _, ti := range order {
		t := c.Threads[ti]
		results[ti] = c.commitThread(t)
	}

	// 5. Clock TLB page-walk state (no dedicated page-walk model here;
	// folded into step 3's Cache.Clock, which the interface already
	// exposes as the single per-cycle clock hook memsys offers).

	// 6. Clock issue queues.
	for _, q := range c.IssueQueues {
		q.Clock()
	}

	// 7. Issue pass.
	for _, ti := range order {
		c.issueThread(c.Threads[ti])
	}

	// 8. Frontend pass (round-robin): rename new uops into the ROB, then
	// advance the frontend countdown / cluster dispatch of every renamed
	// uop, including those renamed just now.
	for _, ti := range order {
		t := c.Threads[ti]
		c.renameThread(t)
		c.dispatchThread(t)
	}

	// 9. Fetch pass, ICOUNT-prioritized.
	for _, ti := range c.icountOrder() {
		c.fetchThread(c.Threads[ti])
	}

	// 10. Advance round-robin pointer; flush event log if configured.
	c.roundRobinTID = (c.roundRobinTID + 1) % len(c.Threads)
	if c.Cfg.FlushEventLogEveryCycle {
		c.EventLog.Flush()
	}

	// 11. Per-thread commit result codes already computed in step 4's
	// second loop; nothing further to inspect here beyond returning them.

	// 12. Deadlock watchdog: if nothing committed and nothing wrote back
	// this whole cycle while at least one thread is running, count it;
	// past the threshold, force every running thread to ResultWatchdogTimeout.
	anyRunning := false
	for _, t := range c.Threads {
		if t.Running {
			anyRunning = true
		}
	}
	if anyRunning && c.commitCount == 0 && c.writeCount == 0 {
		c.watchdogIdleCycles++
	} else {
		c.watchdogIdleCycles = 0
	}
	if c.watchdogIdleCycles >= c.Cfg.WatchdogCycles {
		for i, t := range c.Threads {
			if t.Running {
				c.log(t, eventlog.EventWatchdogTimeout, statelist.None, 0, eventlog.Payload{Value1: c.watchdogIdleCycles})
				results[i] = ResultWatchdogTimeout
				t.Running = false
			}
		}
	}

	c.Cycle++
	return results
}

// backendOrder returns thread indices starting at roundRobinTID and
// wrapping, giving each thread a turn at the front of the backend pass.
func (c *OutOfOrderCore) backendOrder() []int {
	n := len(c.Threads)
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = (c.roundRobinTID + i) % n
	}
	return out
}
