package core

import (
	"github.com/nomad-silicon/ooocore/eventlog"
	"github.com/nomad-silicon/ooocore/issueq"
	"github.com/nomad-silicon/ooocore/rob"
	"github.com/nomad-silicon/ooocore/statelist"
	"github.com/nomad-silicon/ooocore/uop"
)

// dispatchThread advances the frontend countdown of entries already
// renamed, then selects an executable cluster and inserts into that
// cluster's issue queue for every entry whose countdown has expired. A
// per-cluster deadlock counter forces a capacity-bypassing redispatch
// burst if a thread's oldest ready-to-dispatch entry has been unable to
// find room for DispatchDeadlockThreshold consecutive cycles.
func (c *OutOfOrderCore) dispatchThread(t *ThreadContext) {
	if !t.Running || t.Stopped {
		return
	}

	for idx := t.ROB.ListHead(rob.ListFrontend); idx != statelist.None; {
		next := t.ROB.ListNext(idx)
		e := t.ROB.Get(idx)
		e.FrontendCountdown--
		if e.FrontendCountdown <= 0 {
			t.ROB.ToReadyToDispatch(idx)
		}
		idx = next
	}

	masks := c.Cfg.clusterFUMasks()
	stuck := false

	for idx := t.ROB.ListHead(rob.ListReadyToDispatch); idx != statelist.None; {
		next := t.ROB.ListNext(idx)
		e := t.ROB.Get(idx)

		candidates := uop.ExecutableClusters(masks, e.Uop.Opcode)
		placed := false
		for cl, ok := range candidates {
			if !ok || !c.IssueQueues[cl].HasCapacity(t.ID) {
				continue
			}
			slot, _ := c.IssueQueues[cl].Insert(t.ID, issueq.Tag{ROBIndex: idx, Thread: t.ID})
			e.IssueQSlot = slot
			t.ROB.ToDispatched(idx, cl)
			c.log(t, eventlog.EventDispatchOK, idx, e.FetchRIP, eventlog.Payload{Value2: uint32(cl)})
			placed = true
			break
		}
		if !placed {
			stuck = true
			firstCandidate := -1
			for cl, ok := range candidates {
				if ok {
					firstCandidate = cl
					break
				}
			}
			if firstCandidate >= 0 {
				t.dispatchDeadlockCounter[firstCandidate]++
				if t.dispatchDeadlockCounter[firstCandidate] >= c.Cfg.DispatchDeadlockThreshold {
					c.redispatchBurst(t, firstCandidate, masks)
					t.dispatchDeadlockCounter[firstCandidate] = 0
				}
			}
			c.log(t, eventlog.EventDispatchNoCluster, idx, e.FetchRIP, eventlog.Payload{})
			break // program order: don't dispatch younger entries past a stuck one
		}
		idx = next
	}

	if !stuck {
		for c2 := range t.dispatchDeadlockCounter {
			t.dispatchDeadlockCounter[c2] = 0
		}
	}
}

// redispatchBurst force-inserts every entry still sitting in
// ready-to-dispatch that can execute on cluster cl, bypassing the issue
// queue's per-thread reservation check, to break a structural livelock
// where the reservation formula leaves no thread able to make progress.
func (c *OutOfOrderCore) redispatchBurst(t *ThreadContext, cl int, masks []uop.FU) {
	q := c.IssueQueues[cl]
	for idx := t.ROB.ListHead(rob.ListReadyToDispatch); idx != statelist.None; {
		next := t.ROB.ListNext(idx)
		e := t.ROB.Get(idx)
		if uop.FUMask(e.Uop.Opcode)&masks[cl] != 0 {
			if slot, ok := q.ForceInsert(t.ID, issueq.Tag{ROBIndex: idx, Thread: t.ID}); ok {
				e.IssueQSlot = slot
				t.ROB.ToDispatched(idx, cl)
				c.log(t, eventlog.EventDispatchOK, idx, e.FetchRIP, eventlog.Payload{Flags: 1})
			}
		}
		idx = next
	}
}
