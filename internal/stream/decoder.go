package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var errMissingToolCallID = errors.New("missing toolCallId")

// Decode maps a record to a typed event. It never fails: unknown prefixes and
// malformed payloads come back as Unrecognized so the caller can log and move
// on without aborting the stream.
func Decode(rec Record) Event {
	ev, err := decode(rec)
	if err != nil {
		return Unrecognized{Prefix: rec.Prefix, Payload: rec.Payload, Reason: err.Error()}
	}
	return ev
}

func decode(rec Record) (Event, error) {
	data := []byte(rec.Payload)

	switch rec.Prefix {
	case PrefixText:
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return nil, fmt.Errorf("parse text delta: %w", err)
		}
		return TextDelta{TextDelta: text}, nil

	case PrefixTextWithParent:
		var ev TextDelta
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("parse text delta: %w", err)
		}
		return ev, nil

	case PrefixToolCallBegin:
		var ev ToolCallBegin
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("parse tool call begin: %w", err)
		}
		if ev.ToolCallID == "" {
			return nil, fmt.Errorf("tool call begin: %w", errMissingToolCallID)
		}
		return ev, nil

	case PrefixToolCallDelta:
		var ev ToolCallDelta
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("parse tool call delta: %w", err)
		}
		if ev.ToolCallID == "" {
			return nil, fmt.Errorf("tool call delta: %w", errMissingToolCallID)
		}
		return ev, nil

	case PrefixToolResult:
		var ev ToolResult
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("parse tool result: %w", err)
		}
		if ev.ToolCallID == "" {
			return nil, fmt.Errorf("tool result: %w", errMissingToolCallID)
		}
		return ev, nil

	case PrefixError:
		payload := bytes.TrimSpace(data)
		if !json.Valid(payload) {
			return nil, errors.New("parse error payload: invalid JSON")
		}
		return Error{Payload: json.RawMessage(payload), Message: errorMessage(payload)}, nil

	case PrefixState:
		snapshot := bytes.TrimSpace(data)
		if !json.Valid(snapshot) {
			return nil, errors.New("parse state snapshot: invalid JSON")
		}
		return State{Snapshot: json.RawMessage(snapshot)}, nil

	default:
		return nil, fmt.Errorf("unknown prefix %q", rec.Prefix)
	}
}

// errorMessage extracts a human readable message from an error payload, which
// may be a bare string or an object with a message or error field.
func errorMessage(payload []byte) string {
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}

	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(payload, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Error != "" {
			return obj.Error
		}
	}
	return string(payload)
}
