package core

import (
	"github.com/nomad-silicon/ooocore/decoder"
	"github.com/nomad-silicon/ooocore/eventlog"
	"github.com/nomad-silicon/ooocore/statelist"
)

// fetchThread pulls up to FetchWidth uops per cycle from the decoder into
// the thread's fetch queue, tagging each with its predicted fall-through/
// target rip and the unaligned-access prediction.
func (c *OutOfOrderCore) fetchThread(t *ThreadContext) {
	if !t.Running || t.Stopped {
		return
	}
	for i := 0; i < c.Cfg.FetchWidth; i++ {
		if len(t.fetchQ) >= t.fetchQCap {
			return
		}
		if t.currentBB.Uops == nil || t.bbOffset >= len(t.currentBB.Uops) {
			bb, err := t.Decoder.FetchBasicBlock(t.FetchRIP)
			if err != nil {
				typ := eventlog.EventFetchBogusRIP
				if err == decoder.ErrICacheMiss {
					typ = eventlog.EventFetchICacheMiss
				}
				c.log(t, typ, statelist.None, t.FetchRIP, eventlog.Payload{})
				return
			}
			t.currentBB = bb
			t.bbOffset = 0
		}
		u := t.currentBB.Uops[t.bbOffset]
		t.bbOffset++

		predRIP := t.currentBB.FallRIP
		if u.Opcode.IsBranch() {
			predRIP = t.Predictor.Predict(u.RIP)
		}
		if u.Opcode.IsMem() {
			u.Unaligned = t.Unaligned.Predict(u.RIP)
		}

		t.fetchQ = append(t.fetchQ, fetchQEntry{Uop: u, PredRIP: predRIP})
		c.log(t, eventlog.EventFetchOK, statelist.None, u.RIP, eventlog.Payload{})

		if u.EOM && u.Opcode.IsBranch() {
			t.FetchRIP = predRIP
			return // a taken/predicted branch ends this cycle's fetch for the thread
		}
		if t.bbOffset >= len(t.currentBB.Uops) {
			t.FetchRIP = t.currentBB.FallRIP
		}
	}
}
