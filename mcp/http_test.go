package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPCallerCallTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.Method {
		case "initialize":
			_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"capabilities":{}}`)})
		case "tools/call":
			_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID,
				Result: json.RawMessage(`{"content":[{"type":"text","text":"{\"ok\":true}"}],"isError":false}`)})
		default:
			http.Error(w, "unknown method", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	caller, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	resp, err := caller.CallTool(context.Background(), CallRequest{Server: "search", Tool: "lookup", Payload: json.RawMessage(`{"q":"go"}`)})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(resp.Result))
	require.False(t, resp.IsError)
}

func TestHTTPCallerPropagatesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.Method {
		case "initialize":
			_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{}`)})
		case "tools/call":
			_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "bad params"}})
		}
	}))
	defer srv.Close()

	caller, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = caller.CallTool(context.Background(), CallRequest{Server: "search", Tool: "lookup", Payload: json.RawMessage(`{}`)})
	require.Error(t, err)
	var mcpErr *Error
	require.ErrorAs(t, err, &mcpErr)
	require.Equal(t, -32602, mcpErr.Code)
}
