// Package decoder defines the contract the core expects from an external
// instruction decoder / basic-block cache. The decoder itself
// is out of scope for this module; this package also provides a small
// in-memory Fixed implementation used by core's own tests.
package decoder

import (
	"errors"

	"github.com/nomad-silicon/ooocore/uop"
)

// BasicBlock is a decoded sequence of uops plus the predicted fall-through
// rip.
type BasicBlock struct {
	Uops       []uop.Uop
	FallRIP    uint64
	StartRIP   uint64
	MFN        uint64 // machine frame number backing this block, for dirty-bit checks
}

// ErrICacheMiss and ErrBogusRIP are the two fetch failure modes: an icache
// miss on the requested line, and a target rip that resolves to no valid
// block at all.
var (
	ErrICacheMiss = errors.New("decoder: icache miss")
	ErrBogusRIP   = errors.New("decoder: bogus rip")
)

// Decoder is the external collaborator contract.
type Decoder interface {
	FetchBasicBlock(rip uint64) (BasicBlock, error)
	IsDirty(mfn uint64) bool
}

// Fixed is an in-memory Decoder over a pre-built table of basic blocks,
// keyed by start rip, for use by core's own tests (never by production
// code, which always receives a real Decoder from its host).
type Fixed struct {
	Blocks map[uint64]BasicBlock
	Dirty  map[uint64]bool
}

// NewFixed builds an empty Fixed decoder; callers populate Blocks directly.
func NewFixed() *Fixed {
	return &Fixed{Blocks: make(map[uint64]BasicBlock), Dirty: make(map[uint64]bool)}
}

func (f *Fixed) FetchBasicBlock(rip uint64) (BasicBlock, error) {
	bb, ok := f.Blocks[rip]
	if !ok {
		return BasicBlock{}, ErrBogusRIP
	}
	return bb, nil
}

func (f *Fixed) IsDirty(mfn uint64) bool { return f.Dirty[mfn] }
