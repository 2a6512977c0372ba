package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryResolveAndCallTool(t *testing.T) {
	r := NewRegistry()
	r.Register("search", CallerFunc(func(ctx context.Context, req CallRequest) (CallResponse, error) {
		return CallResponse{Result: json.RawMessage(`{"tool":"` + req.Tool + `"}`)}, nil
	}))

	resp, err := r.CallTool(context.Background(), CallRequest{Server: "search", Tool: "lookup"})
	require.NoError(t, err)
	require.JSONEq(t, `{"tool":"lookup"}`, string(resp.Result))
}

func TestRegistryResolveUnknownServer(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("missing")
	require.Error(t, err)
}
