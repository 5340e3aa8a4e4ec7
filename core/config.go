// Package core implements the per-cycle pipeline state machine: fetch,
// rename, frontend/dispatch, issue, loads/stores, complete/transfer/
// writeback, commit, the ICOUNT fetch-priority policy, and misspeculation
// annulment/redispatch, aggregated into a ThreadContext and an
// OutOfOrderCore.
package core

import (
	"github.com/nomad-silicon/ooocore/uop"
)

// ClusterConfig names one cluster: a group of functional units reachable
// with zero intra-cluster bypass latency.
type ClusterConfig struct {
	Name   string
	FUMask uop.FU
}

// Config is the single immutable configuration record passed to
// OutOfOrderCore construction and Machine.Init: no hidden mutable
// globals, and no support for reconfiguring pipeline widths at runtime.
type Config struct {
	NumThreads      int
	ROBSize         int
	PhysRegFileSize int
	LSQSize         int
	IssueQueueSize  int // per cluster
	FetchWidth      int
	CommitWidth     int
	FrontendStages  int
	LFRQSize        int
	L1Banks         int

	Clusters []ClusterConfig

	DispatchDeadlockThreshold int
	WatchdogCycles            uint64 // cycles with no commit/writeback before declaring a thread deadlocked

	EventLogEnabled         bool
	EventLogRingBufferSize  int
	FlushEventLogEveryCycle bool
	StartLogAtIteration     uint64
	LogLevel                uint8
	AbortAtEnd              bool
	DumpStateNow            bool
}

// DefaultConfig returns a small but fully wired configuration suitable for
// tests and examples: two clusters (integer, memory+branch), narrow
// widths, SMT of up to 2 threads.
func DefaultConfig() Config {
	return Config{
		NumThreads:      2,
		ROBSize:         64,
		PhysRegFileSize: 96,
		LSQSize:         16,
		IssueQueueSize:  16,
		FetchWidth:      4,
		CommitWidth:     4,
		FrontendStages:  4,
		LFRQSize:        8,
		L1Banks:         2,
		Clusters: []ClusterConfig{
			{Name: "int", FUMask: uop.FUInt0 | uop.FUInt1 | uop.FUBranch},
			{Name: "mem", FUMask: uop.FUMem0 | uop.FUMem1},
		},
		DispatchDeadlockThreshold: 256,
		WatchdogCycles:            1024 * 8,
		EventLogEnabled:           true,
		EventLogRingBufferSize:    4096,
		FlushEventLogEveryCycle:   false,
		LogLevel:                  1,
	}
}

func (c Config) clusterFUMasks() []uop.FU {
	masks := make([]uop.FU, len(c.Clusters))
	for i, cl := range c.Clusters {
		masks[i] = cl.FUMask
	}
	return masks
}
