// Package archctx defines the architectural-context contract: committed
// arch state, exception propagation, and per-vcpu running/dirty flags,
// plus the assist-microcode dispatch table. The real context is out of
// scope; Minimal below is an in-memory reference implementation for core's
// own tests.
package archctx

// Context is the external collaborator contract.
type Context interface {
	CheckEvents() bool
	EventUpcall()
	PropagateException(code uint8, errorCode uint64, cr2 uint64)
	Running(vcpu int) bool
	Dirty(mfn uint64) bool
}

// AssistFunc is a handler for a barrier uop's assist id: assists are
// modeled as an enumerated set of handlers indexed by assist id.
type AssistFunc func(ctx Context, vcpu int)

// AssistTable maps assist id to handler, built at Init time rather than via
// package-level init() side effects — the same explicit-factory-map
// convention Machine's registry follows at the module root.
type AssistTable struct {
	handlers map[int]AssistFunc
}

func NewAssistTable() *AssistTable { return &AssistTable{handlers: make(map[int]AssistFunc)} }

func (t *AssistTable) Register(id int, fn AssistFunc) { t.handlers[id] = fn }

// Dispatch invokes the handler registered for id, if any.
func (t *AssistTable) Dispatch(id int, ctx Context, vcpu int) {
	if fn, ok := t.handlers[id]; ok {
		fn(ctx, vcpu)
	}
}

// Minimal is a bare-bones in-memory Context for core's own tests.
type Minimal struct {
	RunningVCPUs map[int]bool
	DirtyMFNs    map[uint64]bool
	Exceptions   []ExceptionRecord
}

type ExceptionRecord struct {
	Code, ErrorCode uint64
	CR2             uint64
}

func NewMinimal() *Minimal {
	return &Minimal{RunningVCPUs: make(map[int]bool), DirtyMFNs: make(map[uint64]bool)}
}

func (m *Minimal) CheckEvents() bool { return false }
func (m *Minimal) EventUpcall()      {}
func (m *Minimal) PropagateException(code uint8, errorCode uint64, cr2 uint64) {
	m.Exceptions = append(m.Exceptions, ExceptionRecord{Code: uint64(code), ErrorCode: errorCode, CR2: cr2})
}
func (m *Minimal) Running(vcpu int) bool { return m.RunningVCPUs[vcpu] }
func (m *Minimal) Dirty(mfn uint64) bool { return m.DirtyMFNs[mfn] }
