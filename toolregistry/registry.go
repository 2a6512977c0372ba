// Package toolregistry holds the keyed tool descriptor map every agent's
// toolset is built from (spec §4.2 "dispatch by identifier", §6 "tool
// registration"), including JSON Schema generation for Go argument types and
// validation of registered tool payloads. MCP tool calls do not pass through
// this registry and are not validated.
package toolregistry

import (
	"fmt"
	"sync"

	"massgen.dev/coordination/tools"
)

// Descriptor fully describes one registered tool: its identifier, schema,
// and whether it is a terminal workflow tool (new_answer/vote, spec §4.4).
type Descriptor struct {
	Spec tools.Spec
	// Executor invokes the tool given validated JSON arguments.
	Executor Executor
}

// Executor is implemented by anything that can run a tool call once its
// input has passed schema validation.
type Executor interface {
	Execute(args []byte) (result any, err error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(args []byte) (any, error)

func (f ExecutorFunc) Execute(args []byte) (any, error) { return f(args) }

// Registry is the keyed map of every tool an agent may call, shared across
// agents within a run (spec §4.2). Registration is expected at startup;
// Registry is safe for concurrent Lookup calls thereafter.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[tools.Ident]Descriptor
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{descriptors: make(map[tools.Ident]Descriptor)}
}

// Register adds or replaces the descriptor for d.Spec.Name.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[d.Spec.Name] = d
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name tools.Ident) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// Specs returns every registered tool's Spec, for inclusion in a model
// request's tool list (spec §3.1 Request.Tools).
func (r *Registry) Specs() []tools.Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]tools.Spec, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d.Spec)
	}
	return out
}

// MustLookup is Lookup but panics on a missing descriptor; reserved for
// callers that have already validated the name exists (e.g. workflow-tool
// dispatch after a schema-checked tool call).
func (r *Registry) MustLookup(name tools.Ident) Descriptor {
	d, ok := r.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("toolregistry: unknown tool %q", name))
	}
	return d
}
