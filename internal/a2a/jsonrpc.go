package a2a

import (
	"encoding/json"
	"errors"
	"fmt"
)

// JSONRPCVersion is sent in every envelope.
const JSONRPCVersion = "2.0"

// Methods used by trident.
const (
	MethodSendMessage = "message/send"
	MethodGetTask     = "tasks/get"
	MethodCancelTask  = "tasks/cancel"
)

// Error codes an agent may answer with.
const (
	ErrCodeInvalidParams     = -32602
	ErrCodeInternal          = -32603
	ErrCodeTaskNotFound      = -32001
	ErrCodeTaskNotCancelable = -32002
)

// JSONRPCRequest is the envelope posted to an agent endpoint.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse carries either Result or Error.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is the error member of a response.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RPCError is returned when an agent answers a call with an error member.
type RPCError struct {
	Method string
	JSONRPCError
}

func (e *RPCError) Error() string {
	msg := fmt.Sprintf("a2a: %s failed with code %d: %s", e.Method, e.Code, e.Message)
	if len(e.Data) > 0 {
		msg += " " + string(e.Data)
	}
	return msg
}

// IsTaskNotFound reports whether err is an agent's unknown-task answer.
func IsTaskNotFound(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == ErrCodeTaskNotFound
}
