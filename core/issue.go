package core

import (
	"github.com/nomad-silicon/ooocore/eventlog"
	"github.com/nomad-silicon/ooocore/rob"
	"github.com/nomad-silicon/ooocore/statelist"
	"github.com/nomad-silicon/ooocore/uop"
)

// operandsReady reports whether every operand slot e actually uses
// currently supplies a usable value.
func (c *OutOfOrderCore) operandsReady(e *rob.Entry) bool {
	ready := func(slot int32) bool { return slot == statelist.None || c.PhysRegs.Ready(slot) }
	return ready(e.RA) && ready(e.RB) && ready(e.RC) && ready(e.RS)
}

// issueThread, for each cluster, promotes dispatched entries whose
// operands have become ready into the appropriate ready sub-list, then
// attempts to issue every entry on a ready sub-list against this cycle's
// remaining functional-unit availability.
func (c *OutOfOrderCore) issueThread(t *ThreadContext) {
	if !t.Running || t.Stopped {
		return
	}
	for cl := 0; cl < len(c.Cfg.Clusters); cl++ {
		c.promoteDispatched(t, cl)
		c.issueALUReady(t, cl)
		c.issueLoadStoreReady(t, cl)
	}
}

func (c *OutOfOrderCore) promoteDispatched(t *ThreadContext, cl int) {
	for idx := t.ROB.Dispatched(cl); idx != statelist.None; {
		next := t.ROB.ListNext(idx)
		e := t.ROB.Get(idx)
		if c.operandsReady(e) {
			switch {
			case e.Uop.Opcode.IsLoad():
				t.ROB.ToReadyToLoad(idx, cl)
			case e.Uop.Opcode.IsStore():
				t.ROB.ToReadyToStore(idx, cl)
			default:
				t.ROB.ToReadyToIssue(idx, cl)
			}
		}
		idx = next
	}
}

// issueALUReady issues non-memory uops parked on cluster cl's
// ready-to-issue list against whatever functional units this cycle still
// has available.
func (c *OutOfOrderCore) issueALUReady(t *ThreadContext, cl int) {
	mask := c.Cfg.Clusters[cl].FUMask
	for idx := t.ROB.ReadyToIssue(cl); idx != statelist.None; {
		next := t.ROB.ListNext(idx)
		e := t.ROB.Get(idx)
		need := uop.FUMask(e.Uop.Opcode) & mask & c.fuAvail
		if need == 0 {
			c.log(t, eventlog.EventIssueNoFU, idx, e.FetchRIP, eventlog.Payload{})
			idx = next
			continue
		}
		fu := need & -need // lowest set bit: the FU this uop claims
		c.fuAvail &^= fu
		c.executeALU(t, e)
		e.Issued = true
		e.IssueCycle = c.Cycle
		e.CyclesLeft = uop.Latency(e.Uop.Opcode)
		t.ROB.ToIssued(idx, cl)
		c.log(t, eventlog.EventIssueOK, idx, e.FetchRIP, eventlog.Payload{Flags: uint8(fu)})
		idx = next
	}
}

// executeALU computes an ALU/branch uop's result value(s) and, for
// branches, detects misprediction against the rip the frontend guessed.
// Actual register-file state transitions happen later at complete, so a
// misspeculated uop's result is computed but never observed by anything.
func (c *OutOfOrderCore) executeALU(t *ThreadContext, e *rob.Entry) {
	a, b := c.operandValue(e.RA), c.operandValue(e.RB)
	switch e.Uop.Opcode {
	case uop.OpAdd:
		e.ResultValue = a + b
	case uop.OpSub:
		e.ResultValue = a - b
	case uop.OpAnd:
		e.ResultValue = a & b
	case uop.OpOr:
		e.ResultValue = a | b
	case uop.OpXor:
		e.ResultValue = a ^ b
	case uop.OpMov:
		e.ResultValue = a
	case uop.OpMovImm:
		e.ResultValue = e.Uop.Imm
	case uop.OpCmp:
		e.ResultValue = a // dest-less compare: only flags matter
	case uop.OpAssist:
		// no ALU result; dispatched to archctx at commit.
	}
	if e.Uop.SetFlags {
		e.FlagsValue = boolToFlags(e.ResultValue == 0, e.ResultValue)
	}
	if e.Uop.Opcode.IsBranch() {
		taken := e.Uop.Opcode == uop.OpJump || (e.Uop.Opcode == uop.OpBranchCC && zfSet(c.operandValue(e.RC)))
		actual := e.Uop.RIP + uint64(e.Uop.Bytes)
		if taken {
			actual = e.Uop.Imm
		}
		e.Mispredicted = actual != e.PredictedRIP
		e.ResultValue = actual
	}
}

func boolToFlags(zero bool, v uint64) uint64 {
	var f uint64
	if zero {
		f |= 1 // zf
	}
	if v>>63 != 0 {
		f |= 2 // of, reused here as sign bit for the toy ISA
	}
	return f
}

func zfSet(flags uint64) bool { return flags&1 != 0 }

func (c *OutOfOrderCore) operandValue(slot int32) uint64 {
	if slot == statelist.None {
		return 0
	}
	return c.PhysRegs.Get(slot).Data
}
