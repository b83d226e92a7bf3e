package stream

import (
	"encoding/json"
	"time"
)

// Wire prefixes of the assistant data stream.
const (
	PrefixText           = "0"
	PrefixTextWithParent = "aui-text-delta"
	PrefixToolCallBegin  = "b"
	PrefixToolCallDelta  = "c"
	PrefixToolResult     = "a"
	PrefixError          = "3"
	PrefixState          = "aui-state"
)

// EventType discriminates decoded stream events.
type EventType string

const (
	EventTextDelta     EventType = "text-delta"
	EventToolCallBegin EventType = "tool-call-begin"
	EventToolCallDelta EventType = "tool-call-delta"
	EventToolResult    EventType = "tool-result"
	EventError         EventType = "error"
	EventState         EventType = "state"
	EventFinish        EventType = "finish"
	EventUnrecognized  EventType = "unrecognized"
	EventProtocolError EventType = "protocol-error"
)

// Event is implemented by every decoded stream event. Use a type switch on the
// concrete type to access its fields.
type Event interface {
	Type() EventType
}

// TextDelta is a fragment of assistant text. ParentID is set only for
// aui-text-delta records.
type TextDelta struct {
	TextDelta string `json:"textDelta"`
	ParentID  string `json:"parentId,omitempty"`
}

func (TextDelta) Type() EventType { return EventTextDelta }

// ToolCallBegin opens a tool call.
type ToolCallBegin struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	ParentID   string `json:"parentId,omitempty"`
}

func (ToolCallBegin) Type() EventType { return EventToolCallBegin }

// ToolCallDelta carries the next fragment of a tool call's argument text.
type ToolCallDelta struct {
	ToolCallID    string `json:"toolCallId"`
	ArgsTextDelta string `json:"argsTextDelta"`
}

func (ToolCallDelta) Type() EventType { return EventToolCallDelta }

// ToolResult resolves a tool call.
type ToolResult struct {
	ToolCallID string          `json:"toolCallId"`
	Result     json.RawMessage `json:"result"`
	Artifact   json.RawMessage `json:"artifact,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
}

func (ToolResult) Type() EventType { return EventToolResult }

// Error is an error reported in-band by the backend.
type Error struct {
	Payload json.RawMessage `json:"payload"`
	Message string          `json:"message"`
}

func (Error) Type() EventType { return EventError }

// State is a state snapshot. It is decoded but not acted upon.
type State struct {
	Snapshot json.RawMessage `json:"snapshot"`
}

func (State) Type() EventType { return EventState }

// Stats summarizes a finished run.
type Stats struct {
	Bytes    int           `json:"bytes"`
	Records  int           `json:"records"`
	Events   int           `json:"events"`
	Skipped  int           `json:"skipped"`
	Dropped  int           `json:"dropped"` // bytes of an unterminated trailing line
	Duration time.Duration `json:"duration"`
}

// Finish marks the clean end of a run.
type Finish struct {
	Stats *Stats `json:"stats,omitempty"`
}

func (Finish) Type() EventType { return EventFinish }

// Unrecognized is a record that could not be turned into a typed event,
// either because its prefix is unknown or because its payload is malformed.
type Unrecognized struct {
	Prefix  string `json:"prefix"`
	Payload string `json:"payload"`
	Reason  string `json:"reason"`
}

func (Unrecognized) Type() EventType { return EventUnrecognized }

// ProtocolError reports a tool-call event that arrived in the wrong lifecycle
// state, such as a delta or result for a call that was never begun.
type ProtocolError struct {
	ToolCallID string    `json:"toolCallId"`
	Event      EventType `json:"event"`
	Reason     string    `json:"reason"`
}

func (ProtocolError) Type() EventType { return EventProtocolError }
