package core

import (
	"github.com/nomad-silicon/ooocore/eventlog"
	"github.com/nomad-silicon/ooocore/lsq"
	"github.com/nomad-silicon/ooocore/memsys"
	"github.com/nomad-silicon/ooocore/rob"
	"github.com/nomad-silicon/ooocore/statelist"
	"github.com/nomad-silicon/ooocore/uop"
)

const accessBytes = 8 // this module's uniform load/store operand width

func addrOf(rcVal uint64, imm uint64) (addr, line uint64) {
	addr = rcVal + imm
	return addr, addr >> 3
}

// issueLoadStoreReady handles the loads and stores parked on cluster cl's
// ready-to-load/ready-to-store lists: backward LSQ scan for store-to-load
// forwarding, D-cache probe with LFRQ/bank-conflict modeling for loads,
// and alias detection against younger loads for stores.
func (c *OutOfOrderCore) issueLoadStoreReady(t *ThreadContext, cl int) {
	c.issueLoadsReady(t, cl)
	c.issueStoresReady(t, cl)
}

func (c *OutOfOrderCore) issueLoadsReady(t *ThreadContext, cl int) {
	mask := c.Cfg.Clusters[cl].FUMask
	for idx := t.ROB.ReadyToLoad(cl); idx != statelist.None; {
		next := t.ROB.ListNext(idx)
		e := t.ROB.Get(idx)
		need := uop.FUMask(e.Uop.Opcode) & mask & c.fuAvail
		if need == 0 {
			idx = next
			continue
		}

		addr, line := addrOf(c.operandValue(e.RA), e.Uop.Imm)
		if holder, held := c.interlockHeld[line]; held && holder.Thread != t.ID {
			c.log(t, eventlog.EventInterlockWait, idx, e.FetchRIP, eventlog.Payload{Value1: uint64(holder.Thread)})
			idx = next
			continue
		}
		le := t.LSQ.Get(e.LSQIndex)
		le.Line, le.ByteMask, le.AddrValid = line, 0xFF, true

		outcome, storeIdx := t.LSQ.Scan(e.LSQIndex, line, le.ByteMask)
		switch outcome {
		case lsq.WaitOnStore, lsq.PartialStall:
			le.InheritSFR = storeIdx
			c.log(t, eventlog.EventLoadWait, idx, e.FetchRIP, eventlog.Payload{Value1: uint64(storeIdx)})
			idx = next
			continue
		case lsq.Forwarded:
			sle := t.LSQ.Get(storeIdx)
			e.ResultValue = sle.Data
			le.DataValid = true
			c.fuAvail &^= need & -need
			c.completeLoad(t, e, idx, cl)
			c.log(t, eventlog.EventLoadHit, idx, e.FetchRIP, eventlog.Payload{Flags: 1})
			idx = next
			continue
		}

		bank := int(line % uint64(max1(c.Cfg.L1Banks)))
		if c.bankBusy[bank] {
			c.log(t, eventlog.EventLoadBankConflict, idx, e.FetchRIP, eventlog.Payload{Value2: uint32(bank)})
			idx = next
			continue
		}

		result := c.probe(addr)
		switch result.Status {
		case memsys.Full:
			c.log(t, eventlog.EventLoadLFRQFull, idx, e.FetchRIP, eventlog.Payload{})
			idx = next
			continue
		case memsys.Miss:
			idx = next // fill in flight; entry stays on ready-to-load and is reprobed next cycle
			continue
		}

		c.bankBusy[bank] = true
		e.ResultValue = result.Data
		le.DataValid = true
		c.fuAvail &^= need & -need
		if e.Uop.Opcode == uop.OpLoadAcquire {
			e.LockAcquired = true
			c.interlockHeld[line] = interlockHolder{Thread: t.ID, ROBIndex: idx}
		}
		c.completeLoad(t, e, idx, cl)
		c.log(t, eventlog.EventLoadHit, idx, e.FetchRIP, eventlog.Payload{})
		idx = next
	}
}

func (c *OutOfOrderCore) completeLoad(t *ThreadContext, e *rob.Entry, idx int32, cl int) {
	e.Issued = true
	e.IssueCycle = c.Cycle
	e.CyclesLeft = uop.Latency(uop.OpLoad)
	t.ROB.ToIssued(idx, cl)
	t.loadsThisCycle++
}

func (c *OutOfOrderCore) issueStoresReady(t *ThreadContext, cl int) {
	mask := c.Cfg.Clusters[cl].FUMask
	for idx := t.ROB.ReadyToStore(cl); idx != statelist.None; {
		next := t.ROB.ListNext(idx)
		e := t.ROB.Get(idx)
		need := uop.FUMask(e.Uop.Opcode) & mask & c.fuAvail
		if need == 0 {
			idx = next
			continue
		}
		addr, line := addrOf(c.operandValue(e.RA), e.Uop.Imm)
		_ = addr
		if holder, held := c.interlockHeld[line]; held && holder.Thread != t.ID {
			c.log(t, eventlog.EventInterlockWait, idx, e.FetchRIP, eventlog.Payload{Value1: uint64(holder.Thread)})
			idx = next
			continue
		}
		c.fuAvail &^= need & -need

		le := t.LSQ.Get(e.LSQIndex)
		le.Line, le.ByteMask, le.AddrValid = line, 0xFF, true
		le.Data, le.DataValid = c.operandValue(e.RS), true

		for _, aliasedIdx := range t.LSQ.AliasCheck(e.LSQIndex, line, le.ByteMask) {
			aliasedLE := t.LSQ.Get(aliasedIdx)
			loadROB := aliasedLE.ROBIndex
			loadE := t.ROB.Get(loadROB)
			if laddr, _ := addrOf(c.operandValue(loadE.RA), loadE.Uop.Imm); laddr%accessBytes != 0 {
				t.Unaligned.Update(loadE.FetchRIP, true)
			}
			c.log(t, eventlog.EventStoreAliasedLoad, loadROB, e.FetchRIP, eventlog.Payload{Value1: uint64(loadROB)})
			c.replayFrom(t, loadROB)
		}

		e.Issued = true
		e.IssueCycle = c.Cycle
		e.CyclesLeft = uop.Latency(e.Uop.Opcode)
		t.ROB.ToIssued(idx, cl)
		c.log(t, eventlog.EventIssueOK, idx, e.FetchRIP, eventlog.Payload{})
		idx = next
	}
}

func (c *OutOfOrderCore) probe(addr uint64) memsys.ProbeResult {
	return c.Cache.Probe(addr, accessBytes)
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
