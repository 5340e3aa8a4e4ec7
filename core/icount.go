package core

import "sort"

// icountOrder implements the ICOUNT fetch-priority policy: threads
// with fewer in-flight front-end uops are served first each cycle, so a
// stalled thread never starves its SMT siblings of fetch bandwidth. Ties
// break by thread id for determinism. Non-running threads sort last and
// are skipped by fetchThread anyway.
func (c *OutOfOrderCore) icountOrder() []int {
	idx := make([]int, len(c.Threads))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		ti, tj := c.Threads[idx[i]], c.Threads[idx[j]]
		if ti.Running != tj.Running {
			return ti.Running
		}
		return ti.icountPriority() < tj.icountPriority()
	})
	return idx
}
