package core

import (
	"github.com/nomad-silicon/ooocore/eventlog"
	"github.com/nomad-silicon/ooocore/rob"
	"github.com/nomad-silicon/ooocore/statelist"
	"github.com/nomad-silicon/ooocore/uop"
)

// renameThread pulls up to FetchWidth uops off the front of the fetch
// queue, allocates a ROB entry and (if needed) a LSQ entry and
// destination physreg(s) for each, renames its sources against specrrt,
// and updates specrrt for its destination(s). Stalls — and stops
// consuming the fetch queue for the rest of this cycle — the moment any
// of the five admission resources (ROB, physreg file, LSQ, issue queue,
// memq) is unavailable (a structural hazard).
func (c *OutOfOrderCore) renameThread(t *ThreadContext) {
	if !t.Running || t.Stopped {
		return
	}
	masks := c.Cfg.clusterFUMasks()
	for i := 0; i < c.Cfg.FetchWidth && len(t.fetchQ) > 0; i++ {
		fq := t.fetchQ[0]
		u := fq.Uop

		needsLSQ := u.Opcode.IsMem()
		needsDest := u.ArchDest >= 0
		needsFlagsDest := u.SetFlags

		if t.ROB.FreeCount() == 0 {
			c.log(t, eventlog.EventROBFull, statelist.None, u.RIP, eventlog.Payload{})
			return
		}
		if needsLSQ && t.LSQ.FreeCount() == 0 {
			c.log(t, eventlog.EventLSQFull, statelist.None, u.RIP, eventlog.Payload{})
			return
		}
		need := 0
		if needsDest {
			need++
		}
		if needsFlagsDest {
			need++
		}
		if need > 0 && c.PhysRegs.FreeCount() < need {
			c.log(t, eventlog.EventPhysregFull, statelist.None, u.RIP, eventlog.Payload{})
			return
		}
		if !c.hasIssueQCapacity(t, masks, u.Opcode) {
			c.log(t, eventlog.EventIssueQFull, statelist.None, u.RIP, eventlog.Payload{})
			return
		}
		if needsLSQ && t.memqCount >= t.memqCap {
			c.log(t, eventlog.EventMemQFull, statelist.None, u.RIP, eventlog.Payload{})
			return
		}

		t.fetchQ = t.fetchQ[1:]

		e, ok := t.ROB.Alloc()
		if !ok {
			return // unreachable given the FreeCount check above
		}
		e.Uop = u
		e.FetchRIP = u.RIP
		e.PredictedRIP = fq.PredRIP

		e.RA = c.renameSrc(t, e.Index, u.ArchSrc1)
		e.RB = c.renameSrc(t, e.Index, u.ArchSrc2)
		if u.UsesFlags {
			e.RC = c.renameSrc(t, e.Index, rob.RegFlags)
		}

		if needsDest {
			e.OldDest = t.SpecRRT.Mapping[u.ArchDest]
			e.Dest = c.renameDest(t, e.Index, u.ArchDest)
		}
		if needsFlagsDest {
			e.OldFlagsDest = t.SpecRRT.Mapping[rob.RegFlags]
			e.FlagsDest = c.renameDest(t, e.Index, rob.RegFlags)
		}

		if needsLSQ {
			lsqIdx, ok := t.LSQ.Alloc(u.Opcode.IsStore(), e.Index)
			if !ok {
				return // unreachable given the FreeCount check above
			}
			e.LSQIndex = lsqIdx
			t.memqCount++
			if u.Opcode.IsStore() {
				e.RS = e.RB // store-data operand rides in RB per the decoder contract
			}
		}

		e.FrontendCountdown = c.Cfg.FrontendStages
		c.log(t, eventlog.EventRenameOK, e.Index, u.RIP, eventlog.Payload{})
	}
}

// hasIssueQCapacity reports whether at least one cluster this opcode can
// execute on currently has a free issue-queue slot for thread t. Dispatch
// redoes this same check once the entry's frontend countdown expires;
// checking it here too means a uop dispatch could never place doesn't tie
// up a ROB/physreg/LSQ entry in the meantime.
func (c *OutOfOrderCore) hasIssueQCapacity(t *ThreadContext, masks []uop.FU, opcode uop.Opcode) bool {
	for cl, ok := range uop.ExecutableClusters(masks, opcode) {
		if ok && c.IssueQueues[cl].HasCapacity(t.ID) {
			return true
		}
	}
	return false
}

// renameSrc resolves archReg's current specrrt mapping into e's operand
// slot, registering e as a consumer of whatever ROB entry still owns that
// physreg's value in that entry's Consumers list.
// archReg < 0 means the slot is unused by this uop.
func (c *OutOfOrderCore) renameSrc(t *ThreadContext, eIdx int32, archReg int) int32 {
	if archReg < 0 {
		return statelist.None
	}
	slot := t.SpecRRT.Mapping[archReg]
	c.PhysRegs.IncRef(slot)
	if producer := c.PhysRegs.Get(slot).Producer; producer != statelist.None {
		pe := t.ROB.Get(producer)
		pe.Consumers = append(pe.Consumers, eIdx)
	}
	return slot
}

// renameDest allocates a fresh physreg for archReg, installs it as
// archReg's new specrrt mapping, and drops the reference the old mapping
// held on behalf of specrrt.
func (c *OutOfOrderCore) renameDest(t *ThreadContext, eIdx int32, archReg int) int32 {
	slot, ok := c.PhysRegs.Alloc(t.ID)
	if !ok {
		return statelist.None // unreachable given the caller's FreeCount check
	}
	c.PhysRegs.Get(slot).Producer = eIdx
	c.PhysRegs.IncRef(slot)
	old := t.SpecRRT.Mapping[archReg]
	t.SpecRRT.Mapping[archReg] = slot
	c.PhysRegs.DecRef(old)
	return slot
}
