// Package ooocore implements a cycle-accurate, out-of-order superscalar
// core simulator with SMT support: fetch, rename, dispatch, issue,
// loads/stores, writeback, commit, and the ICOUNT fetch-priority policy
// driving an arbitrary number of hardware threads per core, each core
// with its own physical register file, per-cluster issue queues, and
// cache. Machine aggregates an arbitrary number of such cores into one
// simulated system.
package ooocore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/nomad-silicon/ooocore/archctx"
	"github.com/nomad-silicon/ooocore/core"
	"github.com/nomad-silicon/ooocore/decoder"
	"github.com/nomad-silicon/ooocore/memsys"
	"github.com/nomad-silicon/ooocore/predict"
)

// ExitCode reports why Machine.Run returned.
type ExitCode int

const (
	ExitRunning ExitCode = iota
	ExitAllThreadsStopped
	ExitWatchdogTimeout
	ExitCanceled
	ExitCycleBudgetReached
)

// Stats is a snapshot the host can request via Machine.UpdateStats.
type Stats struct {
	Cycle          uint64
	InsnsCommitted []uint64 // per core, per thread, flattened core-major
	EventLogLength int
}

// ThreadInput bundles the external collaborators a single hardware thread
// needs.
type ThreadInput struct {
	Decoder   decoder.Decoder
	Predictor predict.Predictor
	Ctx       archctx.Context
	Assists   *archctx.AssistTable
}

// CoreInput bundles the per-core cache and the per-thread collaborators
// for every hardware thread that core runs (len(Threads) must equal
// cfg.NumThreads's SMT degree).
type CoreInput struct {
	Cache   memsys.Cache
	Threads []ThreadInput
}

// Machine aggregates every OutOfOrderCore in the simulated system plus
// the registry bookkeeping and run-loop around them: the Go counterpart
// of an OutOfOrderMachine, built from one core per CoreInput and one
// ThreadContext per Threads entry within it.
type Machine struct {
	Name  string
	Cores []*core.OutOfOrderCore

	insnsCommitted [][]uint64 // per core, per thread
	exitCode       ExitCode
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Machine{}
)

// defaultMachineName is the literal name PTLsim's original implementation
// registers its one simulated machine under; preserved here rather than
// invented.
const defaultMachineName = "asfooo"

// Init builds a Machine from cfg and one CoreInput per core the system
// should contain, wiring each core's cache and per-thread collaborators,
// and registers the Machine in the process-wide machine registry under
// name (defaultMachineName if name is empty). cfg's NumThreads and
// everything else is shared by every core; per-core/per-thread state
// (cache, decoder, predictor, context) comes from cores. Model as an
// explicit factory map populated here, never via a package-level init().
func Init(name string, cfg core.Config, logw io.Writer, cores []CoreInput) (*Machine, error) {
	if name == "" {
		name = defaultMachineName
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("ooocore: at least one core required")
	}

	m := &Machine{Name: name}
	for ci, in := range cores {
		if len(in.Threads) != cfg.NumThreads {
			return nil, fmt.Errorf("ooocore: core %d: cfg.NumThreads=%d but %d thread inputs given", ci, cfg.NumThreads, len(in.Threads))
		}

		coreThreads := make([]struct {
			Decoder   decoder.Decoder
			Predictor predict.Predictor
			Ctx       archctx.Context
		}, len(in.Threads))
		for i, th := range in.Threads {
			coreThreads[i].Decoder = th.Decoder
			coreThreads[i].Predictor = th.Predictor
			coreThreads[i].Ctx = th.Ctx
		}

		oooCore := core.NewCore(ci, cfg, in.Cache, logw, coreThreads)
		for i, th := range in.Threads {
			oooCore.Threads[i].Assists = th.Assists
		}

		m.Cores = append(m.Cores, oooCore)
		m.insnsCommitted = append(m.insnsCommitted, make([]uint64, len(in.Threads)))
	}

	registryMu.Lock()
	registry[name] = m
	registryMu.Unlock()

	return m, nil
}

// Lookup returns the registered Machine for name, if any.
func Lookup(name string) (*Machine, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	m, ok := registry[name]
	return m, ok
}

// Run drives every core one cycle at a time, in lockstep, until every
// thread on every core reports a terminal result code, ctx is canceled,
// or maxCycles is reached (0 means unbounded). ctx is checked before each
// cycle; once it is done, Run returns ExitCanceled at once, without
// waiting for in-flight uops to reach an EOM commit.
func (m *Machine) Run(ctx context.Context, maxCycles uint64) (ExitCode, error) {
	for {
		select {
		case <-ctx.Done():
			return ExitCanceled, ctx.Err()
		default:
		}

		allTerminal := true
		for _, co := range m.Cores {
			for _, r := range co.RunCycle() {
				switch r {
				case core.ResultWatchdogTimeout:
					return ExitWatchdogTimeout, nil
				case core.ResultStopped, core.ResultException:
					// terminal for this thread; doesn't block allTerminal
				default:
					allTerminal = false
				}
			}
		}
		if allTerminal {
			return ExitAllThreadsStopped, nil
		}
		if maxCycles != 0 && m.Cores[0].Cycle >= maxCycles {
			return ExitCycleBudgetReached, nil
		}
	}
}

// FlushTLB flushes every core's TLB view (the cache/TLB is a per-core
// resource in this model, shared by every thread on that core).
func (m *Machine) FlushTLB() {
	for _, co := range m.Cores {
		co.Cache.TLBFlush()
	}
}

// FlushTLBVirt flushes a single virtual address from every core's TLB.
func (m *Machine) FlushTLBVirt(virtaddr uint64) {
	for _, co := range m.Cores {
		co.Cache.TLBFlushVirt(virtaddr)
	}
}

// FlushAllPipelines discards every in-flight uop on every thread of every
// core and rewinds fetch to each thread's last committed rip, the same
// recovery path a misprediction or SMC event drives but applied
// unconditionally. Calling it twice in a row is equivalent to calling it
// once, since the second call finds nothing in flight to discard.
func (m *Machine) FlushAllPipelines() {
	for _, co := range m.Cores {
		for _, t := range co.Threads {
			co.FlushThreadPipeline(t)
		}
	}
}

// DumpState writes a human-readable snapshot to w, for debugging: one line
// per thread of every core with its fetch rip, ROB occupancy and capacity,
// free LSQ slots and running flag. Rename tables are not written.
func (m *Machine) DumpState(w io.Writer) error {
	for _, co := range m.Cores {
		for _, t := range co.Threads {
			lsqCap := t.LSQ.FreeCount() // free slots: capacity minus in-use
			_, err := fmt.Fprintf(w, "core %d thread %d: rip=%#x rob=%d/%d lsq_free=%d running=%v\n",
				co.ID, t.ID, t.FetchRIP, t.ROB.Count(), t.ROB.Capacity, lsqCap, t.Running)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdateStats fills s with a snapshot of this machine's current counters,
// aggregated across every core. Every core advances the same number of
// cycles per Run iteration, so Cores[0]'s cycle count speaks for all of
// them.
func (m *Machine) UpdateStats(s *Stats) {
	s.Cycle = m.Cores[0].Cycle
	s.EventLogLength = 0
	s.InsnsCommitted = s.InsnsCommitted[:0]
	for ci, co := range m.Cores {
		s.EventLogLength += co.EventLog.Len()
		s.InsnsCommitted = append(s.InsnsCommitted, m.insnsCommitted[ci]...)
	}
}
