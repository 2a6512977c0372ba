package mcp

import (
	"context"
	"fmt"
	"sync"
)

// Registry keys MCP Callers by server name so the tool pipeline can resolve
// an mcp__<server>__<tool> identifier (spec §4.2, §6) to the transport that
// hosts it.
type Registry struct {
	mu      sync.RWMutex
	callers map[string]Caller
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{callers: make(map[string]Caller)}
}

// Register associates server with caller, replacing any prior registration.
func (r *Registry) Register(server string, caller Caller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callers[server] = caller
}

// Resolve returns the Caller registered for server.
func (r *Registry) Resolve(server string) (Caller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.callers[server]
	if !ok {
		return nil, fmt.Errorf("mcp: no caller registered for server %q", server)
	}
	return c, nil
}

// Close closes every registered Caller, collecting the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, c := range r.callers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// CallTool resolves req.Server and issues the call.
func (r *Registry) CallTool(ctx context.Context, req CallRequest) (CallResponse, error) {
	caller, err := r.Resolve(req.Server)
	if err != nil {
		return CallResponse{}, err
	}
	return caller.CallTool(ctx, req)
}
