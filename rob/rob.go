// Package rob implements the Reorder Buffer and the two register rename
// tables (speculative and committed).
package rob

import (
	"github.com/nomad-silicon/ooocore/statelist"
	"github.com/nomad-silicon/ooocore/uop"
)

// Logical register space renamed by the RRTs: 16 general-purpose
// architectural registers plus one condition-code pseudo-register
// standing in for the "arch reg / zf / cf / of" operand sources.
const (
	NumGPRs = 16
	// RegFlags renames the x86 condition-code group (zf/cf/of) as one
	// combined physical register instead of three, since every uop that
	// reads one flag reads all of them together (setflags/usesflags are
	// single bits on the uop, not per-flag) and no invariant here
	// distinguishes the three. See DESIGN.md.
	RegFlags       = NumGPRs
	NumLogicalRegs = NumGPRs + 1
)

// RRT is a RegisterRenameTable: a fixed-size mapping from architectural
// register to the physical register currently backing it. Each thread owns
// two instances: specrrt, updated at rename, and commitrrt,
// updated at commit.
type RRT struct {
	Mapping [NumLogicalRegs]int32
}

// NewRRT initializes every logical register to point at the null physreg.
func NewRRT(nullPhysreg int32) *RRT {
	var rrt RRT
	for i := range rrt.Mapping {
		rrt.Mapping[i] = nullPhysreg
	}
	return &rrt
}

// Entry is one in-flight uop.
type Entry struct {
	Index int32
	Uop   uop.Uop

	// Operand physreg slots; statelist.None if the slot is unused by this
	// uop. RA/RB are the generic ALU sources (RA doubles as the load/store
	// address base register), RC is the branch condition-flags source, RS
	// is the store-data operand (aliases RB for store uops).
	RA, RB, RC, RS int32
	Dest           int32 // newly allocated destination physreg, None if none
	OldDest        int32 // physreg the arch dest pointed at before rename, for commit-time free

	// FlagsDest/OldFlagsDest mirror Dest/OldDest for the combined RegFlags
	// logical register (see the RegFlags comment above), allocated
	// independently from Dest since a uop's GPR result and its flags
	// result are different values sharing no physreg.
	FlagsDest, OldFlagsDest int32

	LSQIndex int32 // None if not a memory op
	Cluster  int   // -1 until dispatch selects one
	IssueQSlot int  // -1 until dispatch inserts a tag into the cluster's issue queue; -1 again once complete removes it

	CyclesLeft int
	IssueCycle uint64
	UUID       uint64

	// ResultValue/FlagsValue hold the uop's computed result(s), produced at
	// issue and written into the Dest/FlagsDest physreg's data
	// at complete, keeping the state-transition moment (which
	// controls operand readiness) distinct from the value-computation
	// moment.
	ResultValue, FlagsValue uint64

	// FrontendCountdown is the remaining number of cycles this entry must
	// sit in the frontend list before it is eligible to move to
	// ready-to-dispatch, modeling the decode/rename pipeline's latency
	// (see Config.FrontendStages).
	FrontendCountdown int

	PredictedRIP uint64
	Mispredicted bool

	Issued               bool
	LockAcquired         bool
	EntryValid           bool
	LoadStoreSecondPhase bool

	// FetchRIP is the uop's own rip, duplicated from Uop.RIP for quick
	// access by the event log, commit and the alias-replay path.
	FetchRIP uint64

	// Exception, when non-zero, is the architectural exception code raised
	// at issue or commit.
	Exception uint8

	// Consumers lists ROB indices of entries whose RA/RB/RC/RS referenced
	// this entry's Dest at rename time, built incrementally as those
	// entries rename. Only recorded: no stage of the core reads it.
	Consumers []int32
}

func freshEntry(idx int32) Entry {
	return Entry{
		Index: idx, RA: statelist.None, RB: statelist.None, RC: statelist.None, RS: statelist.None,
		Dest: statelist.None, OldDest: statelist.None,
		FlagsDest: statelist.None, OldFlagsDest: statelist.None,
		LSQIndex: statelist.None, Cluster: -1, IssueQSlot: -1,
	}
}

// list ids: 4 cluster-independent lists, plus 7 list kinds per cluster.
const (
	ListFree int32 = iota
	ListFrontend
	ListReadyToDispatch
	ListReadyToCommit
	numFixedLists
)

const clusterListKinds = 7

const (
	kindDispatched = iota
	kindReadyToIssue
	kindReadyToLoad
	kindReadyToStore
	kindIssued
	kindCompleted
	kindReadyToWriteback
)

// ROB is a per-thread Reorder Buffer: a bounded ring buffer in allocation
// order ("Entries never move; classification is done by moving
// them between StateLists").
type ROB struct {
	Thread      int
	Capacity    int
	NumClusters int

	entries []Entry
	lists   *statelist.Set

	head, tail int32 // ring positions; head = oldest allocated, tail = next free slot to allocate
	count      int
	nextUUID   uint64
}

func listNames(numClusters int) []string {
	names := []string{"free", "frontend", "ready-to-dispatch", "ready-to-commit"}
	kindNames := []string{"dispatched", "ready-to-issue", "ready-to-load", "ready-to-store", "issued", "completed", "ready-to-writeback"}
	for c := 0; c < numClusters; c++ {
		for _, k := range kindNames {
			names = append(names, k)
			_ = c
		}
	}
	return names
}

// clusterList returns the list id for `kind` within cluster c.
func clusterList(c, kind int) int32 {
	return numFixedLists + int32(c*clusterListKinds+kind)
}

// ClusterIssuedList exposes the issued-list id for cluster c, for callers
// (core.completeCluster) that need to confirm an entry is still where a
// snapshot taken earlier in the same pass expected it to be.
func ClusterIssuedList(c int) int32 { return clusterList(c, kindIssued) }

// AllNonFreeListIDs enumerates every list id besides ListFree: the three
// other fixed lists plus every cluster's seven, for invariant sweeps that
// must visit every valid entry regardless of its current stage.
func (r *ROB) AllNonFreeListIDs() []int32 {
	ids := []int32{ListFrontend, ListReadyToDispatch, ListReadyToCommit}
	for c := 0; c < r.NumClusters; c++ {
		for k := 0; k < clusterListKinds; k++ {
			ids = append(ids, clusterList(c, k))
		}
	}
	return ids
}

// New builds a ROB with the given capacity and cluster count; every slot
// starts FREE.
func New(thread, capacity, numClusters int) *ROB {
	r := &ROB{
		Thread: thread, Capacity: capacity, NumClusters: numClusters,
		entries: make([]Entry, capacity),
		lists:   statelist.NewSet(capacity, listNames(numClusters)...),
		head:    0, tail: 0,
	}
	for i := 0; i < capacity; i++ {
		r.entries[i] = freshEntry(int32(i))
		r.lists.Add(ListFree, int32(i))
	}
	return r
}

// FreeCount reports free ROB slots, for rename's capacity check.
func (r *ROB) FreeCount() int { return r.lists.Count(ListFree) }

// Get returns a pointer to entry idx for in-place mutation.
func (r *ROB) Get(idx int32) *Entry { return &r.entries[idx] }

// Alloc takes the ring's next free slot (the tail) and moves it to the
// frontend list, stamping a fresh monotonic uuid.
func (r *ROB) Alloc() (*Entry, bool) {
	if r.count >= r.Capacity {
		return nil, false
	}
	idx := r.tail
	e := &r.entries[idx]
	*e = freshEntry(idx)
	e.EntryValid = true
	e.UUID = r.nextUUID
	r.nextUUID++
	r.lists.Add(ListFrontend, idx)
	r.tail = (r.tail + 1) % int32(r.Capacity)
	r.count++
	return e, true
}

// ToReadyToDispatch moves idx onto the (cluster-independent) ready-to-dispatch
// list, used both by the normal frontend-countdown path and by redispatch.
func (r *ROB) ToReadyToDispatch(idx int32) { r.lists.Add(ListReadyToDispatch, idx) }

// ToDispatched parks idx in cluster c's dispatched (waiting-for-operands)
// list after dispatch has assigned a cluster.
func (r *ROB) ToDispatched(idx int32, c int) {
	r.entries[idx].Cluster = c
	r.lists.Add(clusterList(c, kindDispatched), idx)
}

// ToReadyToIssue/ToReadyToLoad/ToReadyToStore move idx from dispatched[c]
// into the appropriate ready sub-list once its operands are ready.
func (r *ROB) ToReadyToIssue(idx int32, c int) { r.lists.Add(clusterList(c, kindReadyToIssue), idx) }
func (r *ROB) ToReadyToLoad(idx int32, c int)  { r.lists.Add(clusterList(c, kindReadyToLoad), idx) }
func (r *ROB) ToReadyToStore(idx int32, c int) { r.lists.Add(clusterList(c, kindReadyToStore), idx) }

// ToIssued/ToCompleted/ToReadyToWriteback/ToReadyToCommit advance idx
// through the remaining backend stages.
func (r *ROB) ToIssued(idx int32, c int)           { r.lists.Add(clusterList(c, kindIssued), idx) }
func (r *ROB) ToCompleted(idx int32, c int)        { r.lists.Add(clusterList(c, kindCompleted), idx) }
func (r *ROB) ToReadyToWriteback(idx int32, c int) { r.lists.Add(clusterList(c, kindReadyToWriteback), idx) }
func (r *ROB) ToReadyToCommit(idx int32)           { r.lists.Add(ListReadyToCommit, idx) }

// ListOf reports the id of the list idx currently occupies (ListName turns
// an id into its display name).
func (r *ROB) ListOf(idx int32) int32 { return r.lists.ListOf(idx) }
func (r *ROB) ListName(listID int32) string {
	if listID == statelist.None {
		return "none"
	}
	return r.lists.Name(listID)
}

// Head/ListCount expose list contents for the issue/commit/fetch stages.
func (r *ROB) ListHead(listID int32) int32  { return r.lists.Head(listID) }
func (r *ROB) ListNext(idx int32) int32     { return r.lists.Next(idx) }
func (r *ROB) ListCount(listID int32) int   { return r.lists.Count(listID) }
func (r *ROB) Dispatched(c int) int32       { return r.lists.Head(clusterList(c, kindDispatched)) }
func (r *ROB) ReadyToIssue(c int) int32     { return r.lists.Head(clusterList(c, kindReadyToIssue)) }
func (r *ROB) ReadyToLoad(c int) int32      { return r.lists.Head(clusterList(c, kindReadyToLoad)) }
func (r *ROB) ReadyToStore(c int) int32     { return r.lists.Head(clusterList(c, kindReadyToStore)) }
func (r *ROB) Issued(c int) int32           { return r.lists.Head(clusterList(c, kindIssued)) }
func (r *ROB) Completed(c int) int32        { return r.lists.Head(clusterList(c, kindCompleted)) }
func (r *ROB) ReadyToWriteback(c int) int32 { return r.lists.Head(clusterList(c, kindReadyToWriteback)) }
func (r *ROB) ReadyToCommit() int32         { return r.lists.Head(ListReadyToCommit) }

func (r *ROB) CountDispatched(c int) int       { return r.lists.Count(clusterList(c, kindDispatched)) }
func (r *ROB) CountReadyToIssue(c int) int     { return r.lists.Count(clusterList(c, kindReadyToIssue)) }
func (r *ROB) CountReadyToLoad(c int) int      { return r.lists.Count(clusterList(c, kindReadyToLoad)) }
func (r *ROB) CountReadyToStore(c int) int     { return r.lists.Count(clusterList(c, kindReadyToStore)) }
func (r *ROB) CountFrontend() int              { return r.lists.Count(ListFrontend) }
func (r *ROB) CountReadyToDispatch() int       { return r.lists.Count(ListReadyToDispatch) }

// Head returns the oldest allocated ROB index (commit walks from here),
// and its validity (false if the ROB is empty).
func (r *ROB) Head() (int32, bool) {
	if r.count == 0 {
		return statelist.None, false
	}
	return r.head, true
}

// Free retires entry idx at commit, or discards it under annulment,
// returning it to the free list and advancing head if idx is indeed the
// current head. Annulment always frees from the tail backward, so idx is
// the head only on the normal commit path.
func (r *ROB) Free(idx int32) {
	e := &r.entries[idx]
	e.EntryValid = false
	r.lists.Add(ListFree, idx)
	if idx == r.head {
		r.head = (r.head + 1) % int32(r.Capacity)
	} else {
		// Annulment path: the entry being freed is the current tail-1.
		r.tail = idx
	}
	r.count--
}

// Count is the number of valid (non-free) entries.
func (r *ROB) Count() int { return r.count }

// Younger reports whether a is strictly younger than b in program order,
// accounting for ring wraparound relative to the current head.
func (r *ROB) Younger(a, b int32) bool {
	age := func(x int32) int32 {
		d := x - r.head
		if d < 0 {
			d += int32(r.Capacity)
		}
		return d
	}
	return age(a) > age(b)
}

// YoungestAllocated returns the most recently allocated, still-valid ROB
// index (the slot just behind tail), or None if the ROB is empty. Used as
// the starting point for annulment's backward walk.
func (r *ROB) YoungestAllocated() (int32, bool) {
	if r.count == 0 {
		return statelist.None, false
	}
	idx := r.tail - 1
	if idx < 0 {
		idx = int32(r.Capacity) - 1
	}
	return idx, true
}

// Prior returns the ROB index allocated immediately before idx, wrapping
// around the ring. Annulment does not use it; it walks back with
// YoungestAllocated.
func (r *ROB) Prior(idx int32) int32 {
	p := idx - 1
	if p < 0 {
		p = int32(r.Capacity) - 1
	}
	return p
}
