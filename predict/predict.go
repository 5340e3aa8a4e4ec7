// Package predict defines the branch-predictor contract.
// The real predictor is out of scope; Static below is a trivial
// last-taken-target reference implementation for core's own tests, and
// UnalignedTable is an unaligned-access predictor.
package predict

// Predictor is the external collaborator contract.
type Predictor interface {
	Init()
	Predict(rip uint64) (target uint64)
	Update(rip uint64, taken bool, target uint64)
}

// Static predicts, for each rip, the target most recently reported taken
// through Update; a rip never reported taken predicts the rip itself.
// Used by core's own tests where predictor accuracy is not what's under
// test.
type Static struct {
	fallThrough map[uint64]uint64
}

func NewStatic() *Static { return &Static{fallThrough: make(map[uint64]uint64)} }

func (s *Static) Init() {}

func (s *Static) Predict(rip uint64) uint64 {
	if t, ok := s.fallThrough[rip]; ok {
		return t
	}
	return rip
}

func (s *Static) Update(rip uint64, taken bool, target uint64) {
	if taken {
		s.fallThrough[rip] = target
	}
}

// UnalignedTable hashes rip to a saturating counter predicting whether a
// load/store at that rip will fault on an unaligned access. The core
// updates it when a store's alias check catches a load whose address is
// not aligned to the access size; commit does not update it.
type UnalignedTable struct {
	counters []uint8
	mask     uint64
}

// NewUnalignedTable builds a table with 2^bits entries of 2-bit saturating
// counters, all initialized to "not unaligned".
func NewUnalignedTable(bits int) *UnalignedTable {
	n := 1 << uint(bits)
	return &UnalignedTable{counters: make([]uint8, n), mask: uint64(n - 1)}
}

func (u *UnalignedTable) index(rip uint64) uint64 {
	h := rip ^ (rip >> 13) ^ (rip >> 27)
	return h & u.mask
}

// Predict reports whether rip is predicted to access memory unaligned
// (counter >= 2, the standard 2-bit saturating-counter threshold).
func (u *UnalignedTable) Predict(rip uint64) bool {
	return u.counters[u.index(rip)] >= 2
}

// Update adjusts the saturating counter toward or away from "unaligned"
// based on the observed outcome.
func (u *UnalignedTable) Update(rip uint64, wasUnaligned bool) {
	i := u.index(rip)
	if wasUnaligned {
		if u.counters[i] < 3 {
			u.counters[i]++
		}
	} else if u.counters[i] > 0 {
		u.counters[i]--
	}
}
