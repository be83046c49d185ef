// Package rpc implements the newline-delimited JSON-RPC line codec used to
// talk to the backend subprocess.
//
// The backend multiplexes responses, notifications, and its own requests on
// one stream, and may also emit plain diagnostic lines on it. The codec
// classifies each line; anything it cannot classify is dropped, never an
// error.
package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind discriminates the classified line types.
type Kind int

const (
	// KindResponse is a success response carrying a result.
	KindResponse Kind = iota
	// KindError is an error response.
	KindError
	// KindNotification is a server-to-client notification (method, no id).
	KindNotification
	// KindServerRequest is a server-to-client request (method and id).
	KindServerRequest
)

// CodeMethodNotFound is the JSON-RPC code returned for unsupported
// server-to-client request methods.
const CodeMethodNotFound = -32601

// Error is a JSON-RPC error object.
type Error struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error renders the "<kind> error (<code>): <message>" form used everywhere
// a backend failure surfaces to a caller.
func (e *Error) Error() string {
	return fmt.Sprintf("%s error (%d): %s", kindForCode(e.Code), e.Code, e.Message)
}

func kindForCode(code int64) string {
	// Specific reserved codes first: -32601 and -32603 sit inside the
	// protocol range and must not fall through to it.
	switch code {
	case CodeMethodNotFound:
		return "method"
	case -32603:
		return "internal"
	}
	switch {
	case code >= -32700 && code <= -32600:
		return "protocol"
	case code >= -32099 && code <= -32000:
		return "server"
	default:
		return "application"
	}
}

// Message is one classified line from the backend stream.
type Message struct {
	Kind   Kind
	ID     json.RawMessage // responses and server requests only
	Method string          // notifications and server requests only
	Params json.RawMessage
	Result json.RawMessage // KindResponse only
	Err    *Error          // KindError only
}

// IDInt64 parses the message id as an integer. Client-issued request ids are
// always integers, so response correlation goes through here.
func (m *Message) IDInt64() (int64, bool) {
	var id int64
	if err := json.Unmarshal(m.ID, &id); err != nil {
		return 0, false
	}
	return id, true
}

type rawLine struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// ParseLine classifies one line of backend output. The second return is false
// for anything that is not a well-formed RPC message; such lines are silently
// dropped by the caller.
func ParseLine(line []byte) (*Message, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, false
	}

	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, false
	}

	hasID := usableID(raw.ID)

	if raw.Method != "" {
		if !hasID {
			return &Message{Kind: KindNotification, Method: raw.Method, Params: raw.Params}, true
		}
		return &Message{Kind: KindServerRequest, ID: raw.ID, Method: raw.Method, Params: raw.Params}, true
	}

	if !hasID {
		return nil, false
	}

	hasResult := raw.Result != nil
	hasError := raw.Error != nil && !bytes.Equal(bytes.TrimSpace(raw.Error), []byte("null"))

	switch {
	case hasError && !hasResult:
		var rpcErr Error
		if err := json.Unmarshal(raw.Error, &rpcErr); err != nil {
			return nil, false
		}
		return &Message{Kind: KindError, ID: raw.ID, Err: &rpcErr}, true
	case hasResult && !hasError:
		return &Message{Kind: KindResponse, ID: raw.ID, Result: raw.Result}, true
	default:
		// Neither or both: not a response we can act on.
		return nil, false
	}
}

// usableID reports whether the raw id is a number or a string.
func usableID(id json.RawMessage) bool {
	id = bytes.TrimSpace(id)
	if len(id) == 0 || bytes.Equal(id, []byte("null")) {
		return false
	}
	c := id[0]
	return c == '"' || c == '-' || (c >= '0' && c <= '9')
}

type outbound struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// EncodeRequest builds one request line (without trailing newline).
func EncodeRequest(id int64, method string, params any) ([]byte, error) {
	return json.Marshal(outbound{
		JSONRPC: "2.0",
		ID:      json.RawMessage(fmt.Sprintf("%d", id)),
		Method:  method,
		Params:  params,
	})
}

// EncodeNotification builds one client-to-server notification line.
func EncodeNotification(method string, params any) ([]byte, error) {
	return json.Marshal(outbound{JSONRPC: "2.0", Method: method, Params: params})
}

// EncodeResponse builds a success response to a server request, echoing the
// server's id verbatim.
func EncodeResponse(id json.RawMessage, result any) ([]byte, error) {
	return json.Marshal(outbound{JSONRPC: "2.0", ID: id, Result: result})
}

// EncodeErrorResponse builds an error response to a server request.
func EncodeErrorResponse(id json.RawMessage, code int64, message string) ([]byte, error) {
	return json.Marshal(outbound{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	})
}
