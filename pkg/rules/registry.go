package rules

import (
	"fmt"
	"strings"
	"sync"

	"github.com/knmi/sdsrules/pkg/errs"
)

// ConditionRegistry manages named condition handlers, keyed by the
// function_name used in rule-map documents. Safe for concurrent use.
type ConditionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ConditionFunc
}

// NewConditionRegistry creates an empty condition registry.
func NewConditionRegistry() *ConditionRegistry {
	return &ConditionRegistry{handlers: make(map[string]ConditionFunc)}
}

// Register adds a handler under name. Registering a duplicate name is an
// error — rule catalogs are built once at startup and a silent overwrite
// would hide a configuration mistake.
func (r *ConditionRegistry) Register(name string, fn ConditionFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("condition %q already registered", name)
	}
	r.handlers[name] = fn
	return nil
}

// MustRegister registers a handler and panics on failure; used from package
// init-time registration tables where a duplicate name is a programmer
// error, not a runtime condition.
func (r *ConditionRegistry) MustRegister(name string, fn ConditionFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Resolve looks up name (handling condition negation via a leading '!') and
// returns a BoundCondition ready for evaluation. It never returns a
// non-callable entry — the registry is statically typed — but still
// reports ErrNotCallable rather than a nil-deref should a future storage
// change make that possible.
func (r *ConditionRegistry) Resolve(ref ConditionRef) (BoundCondition, error) {
	name := ref.FunctionName
	negate := false
	if strings.HasPrefix(name, "!") {
		negate = true
		name = name[1:]
	}

	r.mu.RLock()
	fn, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return BoundCondition{}, fmt.Errorf("%w: %q", errs.ErrUnknownFunction, name)
	}
	if fn == nil {
		return BoundCondition{}, fmt.Errorf("%w: %q", errs.ErrNotCallable, name)
	}

	return BoundCondition{
		Name:   name,
		Negate: negate,
		fn:     fn,
		opts:   Options(ref.Options),
	}, nil
}

// Count returns the number of registered condition handlers.
func (r *ConditionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// ActionRegistry manages named rule-action handlers, keyed by function_name.
type ActionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ActionFunc
}

// NewActionRegistry creates an empty action registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{handlers: make(map[string]ActionFunc)}
}

// Register adds a handler under name.
func (r *ActionRegistry) Register(name string, fn ActionFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("action %q already registered", name)
	}
	r.handlers[name] = fn
	return nil
}

// MustRegister registers a handler and panics on failure.
func (r *ActionRegistry) MustRegister(name string, fn ActionFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Resolve looks up name and returns a BoundAction ready for invocation.
func (r *ActionRegistry) Resolve(name string, opts Options) (BoundAction, error) {
	r.mu.RLock()
	fn, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return BoundAction{}, fmt.Errorf("%w: %q", errs.ErrUnknownFunction, name)
	}
	if fn == nil {
		return BoundAction{}, fmt.Errorf("%w: %q", errs.ErrNotCallable, name)
	}
	return BoundAction{Name: name, fn: fn, opts: opts}, nil
}

// Count returns the number of registered action handlers.
func (r *ActionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
