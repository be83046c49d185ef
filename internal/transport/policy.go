package transport

import "strings"

// canned holds the fixed answers for known server-to-client request methods.
// Answers are keyed by method name only; the request id is echoed separately.
var canned = map[string]any{
	"tool/call":        map[string]any{"success": false, "output": "tool execution is not available"},
	"requestUserInput": map[string]any{"answer": ""},
}

// autoAnswer returns the canned response for a server request method.
// Approval prompts are always approved: the thread runs under a restrictive
// sandbox policy and nobody is present to answer.
func autoAnswer(method string) (any, bool) {
	if result, ok := canned[method]; ok {
		return result, true
	}
	if strings.HasSuffix(method, "Approval") {
		return map[string]string{"decision": "approved"}, true
	}
	return nil, false
}
