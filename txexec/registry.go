// Package txexec applies transactions to ledger state. It repurposes the
// teacher repo's self-registering handler/registry pattern: each
// transaction kind's state-transition rule lives in its own module and
// registers itself via init(), so adding a new ledger kind never requires
// touching the executor.
package txexec

import (
	"fmt"
	"sync"

	"github.com/tolelom/votechain/ledger"
)

// Context gives a Handler access to whichever ledger's state it applies
// to. Exactly one of VoterState/BallotState is non-nil, matching the one
// transaction kind that ledger ever receives.
type Context struct {
	VoterState  *ledger.VoterState
	BallotState *ledger.BallotState
	Template    *ledger.BallotTemplate
}

// Handler applies one transaction to the state referenced by ctx.
type Handler func(ctx *Context, tx *ledger.Transaction) error

// Registry maps transaction kinds to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[ledger.TxKind]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[ledger.TxKind]Handler)}
}

// Register associates kind with h. Panics on duplicate registration,
// which indicates a programming error (two modules claiming the same
// transaction kind), not a runtime condition.
func (r *Registry) Register(kind ledger.TxKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("txexec: handler already registered for kind %q", kind))
	}
	r.handlers[kind] = h
}

// Execute dispatches tx to the handler registered for its kind.
func (r *Registry) Execute(ctx *Context, tx *ledger.Transaction) error {
	r.mu.RLock()
	h, ok := r.handlers[tx.Kind]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("txexec: no handler registered for kind %q", tx.Kind)
	}
	return h(ctx, tx)
}

// globalRegistry is the package-level singleton that modules register
// into from their init() functions.
var globalRegistry = NewRegistry()

// Register adds a handler to the global registry.
func Register(kind ledger.TxKind, h Handler) {
	globalRegistry.Register(kind, h)
}
