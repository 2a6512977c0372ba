package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultProtocolVersion is the MCP protocol version negotiated at
// initialize time when the caller does not override it.
const DefaultProtocolVersion = "2024-11-05"

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

func (e *rpcError) callerError() *Error {
	if e == nil {
		return nil
	}
	return &Error{Code: e.Code, Message: e.Message}
}

type toolsCallResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError"`
}

type contentItem struct {
	Type     string  `json:"type"`
	Text     *string `json:"text"`
	MimeType *string `json:"mimeType"`
}

func normalizeToolResult(result toolsCallResult) (CallResponse, error) {
	if len(result.Content) == 0 {
		return CallResponse{IsError: result.IsError}, errors.New("mcp: empty tool result")
	}
	item := result.Content[0]
	var payload json.RawMessage
	if item.Text != nil {
		raw := []byte(*item.Text)
		if json.Valid(raw) {
			payload = append(json.RawMessage(nil), raw...)
		} else {
			marshaled, err := json.Marshal(*item.Text)
			if err != nil {
				return CallResponse{}, err
			}
			payload = marshaled
		}
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return CallResponse{Result: payload, IsError: result.IsError}, nil
}
