// Package physreg implements the pool of renamable physical registers
// with lifecycle state and reference-count management.
package physreg

import "github.com/nomad-silicon/ooocore/statelist"

// State is a physical register's lifecycle phase.
type State int32

const (
	Free State = iota
	Waiting
	Bypass
	Written
	Arch
	PendingFree
	numStates
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Waiting:
		return "waiting"
	case Bypass:
		return "bypass"
	case Written:
		return "written"
	case Arch:
		return "arch"
	case PendingFree:
		return "pending-free"
	default:
		return "unknown"
	}
}

// Ready reports whether a register in this state supplies a usable operand
// value to a consumer. PendingFree still counts: the
// value is unchanged, only superseded as the architectural mapping, and
// any consumer that rename already pointed at this slot must still be
// able to read it until that consumer itself retires and drops the
// reference (see core.commitDest).
func (s State) Ready() bool { return s == Bypass || s == Written || s == Arch || s == PendingFree }

// Register is one renamable storage slot.
type Register struct {
	Slot     int32
	Thread   int
	state    State
	RefCount int
	Flags    uint32
	Data     uint64
	// Producer is a weak index to the ReorderBufferEntry that will write
	// this register, or statelist.None if none (cleared when that ROB
	// entry completes, or by ForceFree when annulment discards it).
	Producer int32
	// ArchTag is the architectural register this slot is mapped to while
	// in the Arch state; meaningless otherwise.
	ArchTag int
}

// File is a fixed-size array of physical registers plus one StateList per
// State. Slot 0 is the permanent null physreg: always Arch, refcount
// pinned, value always zero.
type File struct {
	Name  string
	Regs  []Register
	lists *statelist.Set
}

var stateListNames = []string{"free", "waiting", "bypass", "written", "arch", "pending-free"}

// New builds a File with `size` slots, slot 0 pre-seeded as the null
// physreg ("permanently ARCH, refcount never reaches zero, value
// is zero").
func New(name string, size int) *File {
	f := &File{
		Name:  name,
		Regs:  make([]Register, size),
		lists: statelist.NewSet(size, stateListNames...),
	}
	for i := range f.Regs {
		f.Regs[i] = Register{Slot: int32(i), state: Free, Producer: statelist.None, ArchTag: -1}
		f.lists.Add(int32(Free), int32(i))
	}
	// Null physreg: pinned ARCH, refcount never drops to zero because a
	// decrement on slot 0 is simply ignored (see DecRef).
	null := &f.Regs[0]
	null.state = Arch
	null.RefCount = 1
	null.Data = 0
	f.lists.Add(int32(Arch), 0)
	return f
}

// NullReg is the slot index of the permanent zero/ARCH register.
const NullReg int32 = 0

func (f *File) Get(slot int32) *Register { return &f.Regs[slot] }

func (f *File) State(slot int32) State { return f.Regs[slot].state }

// setState moves slot to the StateList for st and updates its cached state.
func (f *File) setState(slot int32, st State) {
	f.Regs[slot].state = st
	f.lists.Add(int32(st), slot)
}

// SetState is the public form of setState, used by core stages that drive
// explicit state transitions not covered by Alloc/IncRef/DecRef (e.g.
// WAITING->BYPASS on complete, BYPASS->WRITTEN on transfer).
func (f *File) SetState(slot int32, st State) { f.setState(slot, st) }

// Alloc takes the head of the free list and moves it to Waiting, per
// rename step 2 ("Allocate destination physreg (FREE -> WAITING)"). The
// caller is responsible for the refcount: a freshly allocated dest physreg
// starts at refcount 0 and gets its first IncRef when specrrt[dest] is
// updated to point at it.
func (f *File) Alloc(thread int) (int32, bool) {
	slot := f.lists.Head(int32(Free))
	if slot == statelist.None {
		return statelist.None, false
	}
	f.Regs[slot] = Register{Slot: slot, Thread: thread, state: Waiting, Producer: statelist.None, ArchTag: -1}
	f.setState(slot, Waiting)
	return slot, true
}

// FreeCount reports how many slots are currently FREE, for rename's
// resource-capacity check.
func (f *File) FreeCount() int { return f.lists.Count(int32(Free)) }

// IncRef bumps slot's reference count. Called once per RRT pointer
// installed and once per ROB operand slot wired to it.
func (f *File) IncRef(slot int32) {
	f.Regs[slot].RefCount++
}

// DecRef drops slot's reference count. When it reaches zero while the
// register is PendingFree, the slot transitions to Free and the caller is
// told so it can emit EVENT_RECLAIM_PHYSREG. The null
// physreg (slot 0) is pinned and never reclaimed.
func (f *File) DecRef(slot int32) (reclaimed bool) {
	if slot == NullReg {
		return false
	}
	r := &f.Regs[slot]
	if r.RefCount > 0 {
		r.RefCount--
	}
	if r.state == PendingFree && r.RefCount == 0 {
		f.setState(slot, Free)
		r.Producer = statelist.None
		r.ArchTag = -1
		return true
	}
	return false
}

// ForceFree immediately returns slot to Free regardless of refcount or
// current state, used by annulment: an annulled physreg will never be
// committed, so it must not wait for the normal PendingFree+refcount=0
// reclaim path.
func (f *File) ForceFree(slot int32) {
	if slot == NullReg {
		return
	}
	f.setState(slot, Free)
	r := &f.Regs[slot]
	r.RefCount = 0
	r.Producer = statelist.None
	r.ArchTag = -1
}

// Ready reports whether slot currently supplies a usable value.
func (f *File) Ready(slot int32) bool { return f.Regs[slot].state.Ready() }

// Count returns how many slots currently occupy state st.
func (f *File) Count(st State) int { return f.lists.Count(int32(st)) }

// ClearProducer drops the weak back-reference to the producing ROB entry
// without otherwise disturbing the register's state. The complete stage
// calls it once the value has been published, so the register no longer
// points at an entry that may be freed and reused.
func (f *File) ClearProducer(slot int32) { f.Regs[slot].Producer = statelist.None }
