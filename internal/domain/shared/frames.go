package shared

import (
	"encoding/json"
	"fmt"
)

// FrameType discriminates the JSON frames exchanged over a connection.
type FrameType string

// Frame types
const (
	FrameAuthenticate  FrameType = "authenticate"
	FrameAuthenticated FrameType = "authenticated"
	FrameToolCall      FrameType = "tool_call"
	FrameToolResult    FrameType = "tool_result"
	FrameError         FrameType = "error"
)

// Frame is the single envelope for every message on the wire. Only the fields
// relevant to Type are populated.
type Frame struct {
	Type      FrameType       `json:"type"`
	Token     string          `json:"token,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Error     string          `json:"error,omitempty"`
	// ErrorType carries the taxonomy name of Error for connection-level failures.
	ErrorType string `json:"errorType,omitempty"`
}

var emptyObject = json.RawMessage(`{}`)

// NewAuthenticateFrame creates a client authenticate frame
func NewAuthenticateFrame(token string) Frame {
	return Frame{Type: FrameAuthenticate, Token: token}
}

// NewAuthenticatedFrame creates the server acknowledgement of a successful authentication
func NewAuthenticatedFrame(sessionID string) Frame {
	return Frame{Type: FrameAuthenticated, SessionID: sessionID}
}

// NewToolCallFrame creates a tool_call frame. Params are always sent as an object.
func NewToolCallFrame(tool string, params interface{}, requestID string) (Frame, error) {
	raw, err := encodeObject(params)
	if err != nil {
		return Frame{}, fmt.Errorf("encode params for %s: %w", tool, err)
	}
	return Frame{Type: FrameToolCall, Tool: tool, Params: raw, RequestID: requestID}, nil
}

// NewToolResultFrame creates a tool_result frame around an already-encoded result object.
func NewToolResultFrame(tool string, result json.RawMessage, requestID string) Frame {
	if len(result) == 0 {
		result = emptyObject
	}
	return Frame{Type: FrameToolResult, Tool: tool, Result: result, RequestID: requestID}
}

// NewErrorFrame creates a connection-level error frame
func NewErrorFrame(message, errorType string) Frame {
	return Frame{Type: FrameError, Error: message, ErrorType: errorType}
}

// DecodeFrame parses a raw message and checks that it carries the fields its type requires.
func DecodeFrame(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}

	switch frame.Type {
	case FrameAuthenticate:
		if frame.Token == "" {
			return frame, fmt.Errorf("authenticate frame missing token")
		}
	case FrameAuthenticated:
		if frame.SessionID == "" {
			return frame, fmt.Errorf("authenticated frame missing sessionId")
		}
	case FrameToolCall:
		if frame.Tool == "" {
			return frame, fmt.Errorf("tool_call frame missing tool")
		}
		if frame.RequestID == "" {
			return frame, fmt.Errorf("tool_call frame missing requestId")
		}
		if len(frame.Params) == 0 || string(frame.Params) == "null" {
			frame.Params = emptyObject
		}
	case FrameToolResult:
		if frame.RequestID == "" {
			return frame, fmt.Errorf("tool_result frame missing requestId")
		}
	case FrameError:
	case "":
		return frame, fmt.Errorf("frame missing type")
	default:
		return frame, fmt.Errorf("unknown frame type %q", frame.Type)
	}

	return frame, nil
}

// ErrorResult is the body of a tool_result whose handler signalled a domain error.
type ErrorResult struct {
	Error     string `json:"error"`
	ErrorType string `json:"errorType,omitempty"`
	Field     string `json:"field,omitempty"`
}

// EncodeResult marshals a handler result, which must encode to a JSON object.
func EncodeResult(result interface{}) (json.RawMessage, error) {
	return encodeObject(result)
}

// ResultError extracts the error message and type from a result body, if set.
func ResultError(result json.RawMessage) (ErrorResult, bool) {
	var body ErrorResult
	if len(result) == 0 {
		return body, false
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return body, false
	}
	return body, body.Error != ""
}

func encodeObject(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return emptyObject, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return emptyObject, nil
		}
		v = raw
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("expected a JSON object, got %s", truncate(data, 32))
	}
	return data, nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
