package core

import (
	"github.com/nomad-silicon/ooocore/archctx"
	"github.com/nomad-silicon/ooocore/decoder"
	"github.com/nomad-silicon/ooocore/lsq"
	"github.com/nomad-silicon/ooocore/predict"
	"github.com/nomad-silicon/ooocore/rob"
	"github.com/nomad-silicon/ooocore/statelist"
	"github.com/nomad-silicon/ooocore/uop"
)

// fetchQEntry is one uop waiting between fetch and rename, with its
// predicted next rip. Its uuid is stamped later, when rename allocates
// its ROB entry.
type fetchQEntry struct {
	Uop     uop.Uop
	PredRIP uint64
}

// ThreadContext is the per-hardware-thread front-end state, queues, rename
// tables, branch predictor handle, and exception latches.
type ThreadContext struct {
	ID      int
	Running bool
	Stopped bool

	Decoder   decoder.Decoder
	Predictor predict.Predictor
	Unaligned *predict.UnalignedTable
	Ctx       archctx.Context
	Assists   *archctx.AssistTable

	FetchRIP       uint64
	currentBB      decoder.BasicBlock
	bbOffset       int
	fetchQ         []fetchQEntry
	fetchQCap      int
	icacheStalled  bool

	SpecRRT   *rob.RRT
	CommitRRT *rob.RRT

	ROB *rob.ROB
	LSQ *lsq.LSQ

	HandleInterruptAtNextEOM bool
	StopAtNextEOM            bool
	stopRequested            bool

	LastCommitCycle uint64
	LastCommitRIP   uint64

	memqCap, memqCount int
	loadsThisCycle     int

	dispatchDeadlockCounter []int // per cluster
}

func newThreadContext(id int, cfg Config, nullPhysreg int32, dec decoder.Decoder, pred predict.Predictor, ctx archctx.Context) *ThreadContext {
	numClusters := len(cfg.Clusters)
	return &ThreadContext{
		ID:                      id,
		Decoder:                 dec,
		Predictor:               pred,
		Unaligned:               predict.NewUnalignedTable(10),
		Ctx:                     ctx,
		SpecRRT:                 rob.NewRRT(nullPhysreg),
		CommitRRT:               rob.NewRRT(nullPhysreg),
		ROB:                     rob.New(id, cfg.ROBSize, numClusters),
		LSQ:                     lsq.New(cfg.LSQSize),
		fetchQCap:               cfg.FetchWidth * 4,
		memqCap:                 cfg.LSQSize,
		dispatchDeadlockCounter: make([]int, numClusters),
	}
}

// icountPriority is the ICOUNT metric: fewer uops in the
// front-end means higher fetch priority (lower value = served first).
// Non-running threads sort last via math.MaxInt64-equivalent handling by
// the caller.
func (t *ThreadContext) icountPriority() int {
	n := len(t.fetchQ) + t.ROB.CountFrontend() + t.ROB.CountReadyToDispatch()
	for c := 0; c < len(t.dispatchDeadlockCounter); c++ {
		n += t.ROB.CountDispatched(c) + t.ROB.CountReadyToIssue(c) + t.ROB.CountReadyToLoad(c) + t.ROB.CountReadyToStore(c)
	}
	return n
}

var _ = statelist.None
