package core

import (
	"github.com/nomad-silicon/ooocore/decoder"
	"github.com/nomad-silicon/ooocore/eventlog"
	"github.com/nomad-silicon/ooocore/rob"
	"github.com/nomad-silicon/ooocore/statelist"
)

// annulFromYoungest walks t's ROB from its youngest allocated entry
// backward down to and including stopAt (inclusive), discarding each: its
// specrrt mappings are rolled back via OldDest/OldFlagsDest, its physregs,
// LSQ slot, and issue-queue tag are released, and it is freed from the
// ROB. Processing strictly youngest-first is required for the specrrt
// rollback to be correct: a younger rename of the same architectural
// register must already have unwound before an older one restores it.
func (c *OutOfOrderCore) annulFromYoungest(t *ThreadContext, stopAt int32) {
	for {
		idx, ok := t.ROB.YoungestAllocated()
		if !ok {
			return
		}
		c.annulEntry(t, idx)
		if idx == stopAt {
			return
		}
	}
}

func (c *OutOfOrderCore) annulEntry(t *ThreadContext, idx int32) {
	e := t.ROB.Get(idx)

	if e.Dest != statelist.None {
		if t.SpecRRT.Mapping[e.Uop.ArchDest] == e.Dest {
			t.SpecRRT.Mapping[e.Uop.ArchDest] = e.OldDest
			if e.OldDest != statelist.None {
				c.PhysRegs.IncRef(e.OldDest)
			}
		}
		c.PhysRegs.ForceFree(e.Dest)
	}
	if e.FlagsDest != statelist.None {
		if t.SpecRRT.Mapping[rob.RegFlags] == e.FlagsDest {
			t.SpecRRT.Mapping[rob.RegFlags] = e.OldFlagsDest
			if e.OldFlagsDest != statelist.None {
				c.PhysRegs.IncRef(e.OldFlagsDest)
			}
		}
		c.PhysRegs.ForceFree(e.FlagsDest)
	}
	for _, slot := range [...]int32{e.RA, e.RB, e.RC, e.RS} {
		if slot != statelist.None {
			c.PhysRegs.DecRef(slot)
		}
	}
	if e.LSQIndex != statelist.None {
		if e.LockAcquired {
			line := t.LSQ.Get(e.LSQIndex).Line
			if holder, held := c.interlockHeld[line]; held && holder.Thread == t.ID {
				delete(c.interlockHeld, line)
			}
		}
		t.LSQ.Free(e.LSQIndex)
		t.memqCount--
	}
	if e.Cluster >= 0 && e.IssueQSlot >= 0 {
		c.IssueQueues[e.Cluster].Remove(e.IssueQSlot)
	}

	t.ROB.Free(idx)
}

// annulYounger discards every entry strictly younger than idx (idx itself
// survives), used after a branch resolves mispredicted: the branch
// completes normally, but everything fetched down the wrong path behind
// it must go.
func (c *OutOfOrderCore) annulYounger(t *ThreadContext, idx int32) {
	for {
		youngest, ok := t.ROB.YoungestAllocated()
		if !ok || youngest == idx || !t.ROB.Younger(youngest, idx) {
			return
		}
		c.annulEntry(t, youngest)
	}
}

// FlushThreadPipeline discards every in-flight uop belonging to t and
// rewinds fetch to its last committed rip, the unconditional form of
// annulYounger used by a full pipeline flush rather than a single
// misprediction.
func (c *OutOfOrderCore) FlushThreadPipeline(t *ThreadContext) {
	if _, ok := t.ROB.YoungestAllocated(); ok {
		idx, _ := t.ROB.Head()
		c.annulFromYoungest(t, idx)
	}
	t.FetchRIP = t.LastCommitRIP
	t.currentBB = decoder.BasicBlock{}
	t.bbOffset = 0
	t.fetchQ = t.fetchQ[:0]
}

// replayFrom discards idx itself and everything younger, then rewinds
// fetch back to idx's own rip, used for a memory-ordering violation (a
// store aliased a younger load that already read stale data) rather than
// a branch misprediction.
func (c *OutOfOrderCore) replayFrom(t *ThreadContext, idx int32) {
	e := t.ROB.Get(idx)
	rip := e.FetchRIP
	c.annulFromYoungest(t, idx)
	t.FetchRIP = rip
	t.currentBB = decoder.BasicBlock{}
	t.bbOffset = 0
	t.fetchQ = t.fetchQ[:0]
	c.log(t, eventlog.EventReplay, statelist.None, rip, eventlog.Payload{})
}
