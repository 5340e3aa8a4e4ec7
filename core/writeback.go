package core

import (
	"github.com/nomad-silicon/ooocore/decoder"
	"github.com/nomad-silicon/ooocore/physreg"
	"github.com/nomad-silicon/ooocore/rob"
	"github.com/nomad-silicon/ooocore/statelist"
)

// writebackThread implements the three single-cycle backend stages
// beyond execution: transfer (Bypass -> Written, eligible for
// ordinary — not same-cycle-bypass — consumers), writeback (queue for
// commit), and complete (the functional-unit latency countdown expiring,
// which publishes the computed result onto the bypass network).
// Processed oldest-stage-first so a freshly completed entry advances
// exactly one stage per cycle, never two.
func (c *OutOfOrderCore) writebackThread(t *ThreadContext) {
	for cl := 0; cl < len(c.Cfg.Clusters); cl++ {
		c.writebackCluster(t, cl)
		c.transferCluster(t, cl)
		c.completeCluster(t, cl)
	}
}

func (c *OutOfOrderCore) transferCluster(t *ThreadContext, cl int) {
	for idx := t.ROB.Completed(cl); idx != statelist.None; {
		next := t.ROB.ListNext(idx)
		e := t.ROB.Get(idx)
		if e.Dest != statelist.None {
			c.PhysRegs.SetState(e.Dest, physreg.Written)
		}
		if e.FlagsDest != statelist.None {
			c.PhysRegs.SetState(e.FlagsDest, physreg.Written)
		}
		t.ROB.ToReadyToWriteback(idx, cl)
		idx = next
	}
}

func (c *OutOfOrderCore) writebackCluster(t *ThreadContext, cl int) {
	for idx := t.ROB.ReadyToWriteback(cl); idx != statelist.None; {
		next := t.ROB.ListNext(idx)
		t.ROB.ToReadyToCommit(idx)
		c.writeCount++
		idx = next
	}
}

func (c *OutOfOrderCore) completeCluster(t *ThreadContext, cl int) {
	// Snapshotted up front: a mispredicted branch completing here can
	// annul younger entries mid-pass, including ones still queued later
	// in this very list, so the traversal must not depend on list links
	// that annulment is free to rewrite.
	var pending []int32
	for idx := t.ROB.Issued(cl); idx != statelist.None; idx = t.ROB.ListNext(idx) {
		pending = append(pending, idx)
	}
	for _, idx := range pending {
		if t.ROB.ListOf(idx) != rob.ClusterIssuedList(cl) {
			continue // annulled earlier in this same pass
		}
		e := t.ROB.Get(idx)
		e.CyclesLeft--
		if e.CyclesLeft > 0 {
			continue
		}
		// The uop has left execution: release its issue-queue tag.
		if e.IssueQSlot >= 0 {
			c.IssueQueues[cl].Remove(e.IssueQSlot)
			e.IssueQSlot = -1
		}
		if e.Dest != statelist.None {
			c.PhysRegs.Get(e.Dest).Data = e.ResultValue
			c.PhysRegs.SetState(e.Dest, physreg.Bypass)
			c.PhysRegs.ClearProducer(e.Dest)
		}
		if e.FlagsDest != statelist.None {
			c.PhysRegs.Get(e.FlagsDest).Data = e.FlagsValue
			c.PhysRegs.SetState(e.FlagsDest, physreg.Bypass)
			c.PhysRegs.ClearProducer(e.FlagsDest)
		}
		if e.Uop.Opcode.IsBranch() && e.Mispredicted {
			c.annulYounger(t, idx)
			t.FetchRIP = e.ResultValue
			t.currentBB = decoder.BasicBlock{}
			t.bbOffset = 0
			t.fetchQ = t.fetchQ[:0]
		}
		t.ROB.ToCompleted(idx, cl)
	}
}
