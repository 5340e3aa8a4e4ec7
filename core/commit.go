package core

import (
	"github.com/nomad-silicon/ooocore/decoder"
	"github.com/nomad-silicon/ooocore/eventlog"
	"github.com/nomad-silicon/ooocore/physreg"
	"github.com/nomad-silicon/ooocore/rob"
	"github.com/nomad-silicon/ooocore/statelist"
	"github.com/nomad-silicon/ooocore/uop"
)

// commitThread retires up to CommitWidth entries
// strictly in program order from the ROB head, updating commitrrt,
// reclaiming superseded physregs, performing the architecturally
// irrevocable store write, dispatching assist microcode, and handling
// self-modifying-code detection and architectural exceptions.
func (c *OutOfOrderCore) commitThread(t *ThreadContext) ResultCode {
	if !t.Running {
		return ResultStopped
	}
	result := ResultOK
	for i := 0; i < c.Cfg.CommitWidth; i++ {
		head, ok := t.ROB.Head()
		if !ok || t.ROB.ListOf(head) != rob.ListReadyToCommit {
			break
		}
		e := t.ROB.Get(head)

		if t.Decoder.IsDirty(e.FetchRIP >> 12) {
			c.log(t, eventlog.EventSMC, head, e.FetchRIP, eventlog.Payload{})
			rip := e.FetchRIP
			c.annulFromYoungest(t, head)
			t.FetchRIP = rip
			t.currentBB = decoder.BasicBlock{}
			t.bbOffset = 0
			t.fetchQ = t.fetchQ[:0]
			break
		}

		if e.Exception != 0 {
			if t.Ctx != nil {
				t.Ctx.PropagateException(e.Exception, 0, e.FetchRIP)
			}
			c.log(t, eventlog.EventException, head, e.FetchRIP, eventlog.Payload{Flags: e.Exception})
			c.annulFromYoungest(t, head)
			result = ResultException
			break
		}

		if e.Uop.Opcode.IsAssist() && t.Assists != nil {
			t.Assists.Dispatch(e.Uop.AssistID, t.Ctx, t.ID)
			c.log(t, eventlog.EventBarrier, head, e.FetchRIP, eventlog.Payload{Value1: uint64(e.Uop.AssistID)})
		}

		if e.Uop.Opcode.IsBranch() {
			t.Predictor.Update(e.FetchRIP, e.ResultValue != e.FetchRIP+uint64(e.Uop.Bytes), e.ResultValue)
		}

		if e.Uop.Opcode.IsStore() {
			addr, line := addrOf(c.operandValue(e.RA), e.Uop.Imm)
			c.Cache.Store(addr, accessBytes, t.LSQ.Get(e.LSQIndex).Data)
			if e.Uop.Opcode == uop.OpStoreRelease {
				if holder, held := c.interlockHeld[line]; held && holder.Thread == t.ID {
					delete(c.interlockHeld, line)
				}
			}
		}

		c.commitDest(t, e, e.Uop.ArchDest, e.Dest)
		c.commitDest(t, e, rob.RegFlags, e.FlagsDest)

		for _, slot := range [...]int32{e.RA, e.RB, e.RC, e.RS} {
			if slot != statelist.None {
				if c.PhysRegs.DecRef(slot) {
					c.log(t, eventlog.EventReclaimPhysreg, head, e.FetchRIP, eventlog.Payload{Value1: uint64(slot)})
				}
			}
		}
		if e.LSQIndex != statelist.None {
			t.LSQ.Free(e.LSQIndex)
			t.memqCount--
		}

		t.ROB.Free(head)
		t.LastCommitCycle = c.Cycle
		t.LastCommitRIP = e.FetchRIP + 1
		c.commitCount++
		c.log(t, eventlog.EventCommitOK, head, e.FetchRIP, eventlog.Payload{})

		if t.StopAtNextEOM && e.Uop.EOM {
			t.Stopped = true
			t.Running = false
			result = ResultStopped
			break
		}
	}
	return result
}

// commitDest, when dest is a real physreg, installs it as archReg's new
// commitrrt mapping and schedules the previously committed physreg for
// reclaim once nothing still references it.
func (c *OutOfOrderCore) commitDest(t *ThreadContext, e *rob.Entry, archReg int, dest int32) {
	if dest == statelist.None {
		return
	}
	c.PhysRegs.IncRef(dest)
	c.PhysRegs.SetState(dest, physreg.Arch)
	c.PhysRegs.Get(dest).ArchTag = archReg
	old := t.CommitRRT.Mapping[archReg]
	t.CommitRRT.Mapping[archReg] = dest
	if old != dest && old != physreg.NullReg {
		c.PhysRegs.SetState(old, physreg.PendingFree)
		if c.PhysRegs.DecRef(old) {
			c.log(t, eventlog.EventReclaimPhysreg, e.Index, e.FetchRIP, eventlog.Payload{Value1: uint64(old)})
		}
	}
}
