// Package toolcall tracks tool calls across the begin, delta and result
// events of a single run.
package toolcall

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/namikmesic/threadstream/internal/stream"
)

// ErrUnknownToolCall is wrapped by ProtocolError when an event references a
// call that was never begun.
var ErrUnknownToolCall = errors.New("unknown tool call")

// ErrDuplicateBegin is wrapped by ProtocolError when a call is begun twice.
var ErrDuplicateBegin = errors.New("duplicate tool call begin")

// Status is the lifecycle state of a tracked call.
type Status int

const (
	StatusOpen Status = iota
	StatusResolved
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// State is a snapshot of one tool call.
type State struct {
	ID       string
	ToolName string
	ParentID string
	ArgsText string
	Result   json.RawMessage
	Artifact json.RawMessage
	IsError  bool
	Status   Status
	// Degraded is set when the call was created by an out-of-order event.
	Degraded bool
}

// Resolved reports whether a result has been recorded.
func (s State) Resolved() bool { return s.Status == StatusResolved }

// ProtocolError describes a tool-call event that arrived in the wrong
// lifecycle state.
type ProtocolError struct {
	ToolCallID string
	Event      stream.EventType
	Err        error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s for %s: %v", e.Event, e.ToolCallID, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// StreamEvent converts the error into the event delivered to consumers.
func (e *ProtocolError) StreamEvent() stream.ProtocolError {
	return stream.ProtocolError{ToolCallID: e.ToolCallID, Event: e.Event, Reason: e.Err.Error()}
}

type entry struct {
	state State
	args  strings.Builder
}

func (e *entry) snapshot() State {
	s := e.state
	s.ArgsText = e.args.String()
	return s
}

// Assembler accumulates tool-call state keyed by call id. It is owned by a
// single session and is not safe for concurrent use.
type Assembler struct {
	calls map[string]*entry
	order []string
}

func NewAssembler() *Assembler {
	return &Assembler{calls: make(map[string]*entry)}
}

func (a *Assembler) lookup(id string) (*entry, bool) {
	e, ok := a.calls[id]
	return e, ok
}

func (a *Assembler) create(id string) *entry {
	e := &entry{state: State{ID: id, Status: StatusOpen}}
	a.calls[id] = e
	a.order = append(a.order, id)
	return e
}

// Begin opens a call. Beginning a call twice keeps the original name and
// returns a ProtocolError; a degraded call without a name adopts it.
func (a *Assembler) Begin(ev stream.ToolCallBegin) (State, error) {
	e, ok := a.lookup(ev.ToolCallID)
	if !ok {
		e = a.create(ev.ToolCallID)
		e.state.ToolName = ev.ToolName
		e.state.ParentID = ev.ParentID
		return e.snapshot(), nil
	}

	if e.state.Degraded && e.state.ToolName == "" {
		e.state.ToolName = ev.ToolName
		if e.state.ParentID == "" {
			e.state.ParentID = ev.ParentID
		}
		return e.snapshot(), nil
	}

	return e.snapshot(), &ProtocolError{ToolCallID: ev.ToolCallID, Event: stream.EventToolCallBegin, Err: ErrDuplicateBegin}
}

// Delta appends argument text. A delta for an unseen call creates a degraded
// call and returns a ProtocolError; deltas after the result are ignored.
func (a *Assembler) Delta(ev stream.ToolCallDelta) (State, error) {
	var perr error
	e, ok := a.lookup(ev.ToolCallID)
	if !ok {
		e = a.create(ev.ToolCallID)
		e.state.Degraded = true
		perr = &ProtocolError{ToolCallID: ev.ToolCallID, Event: stream.EventToolCallDelta, Err: ErrUnknownToolCall}
	}

	if e.state.Status == StatusResolved {
		return e.snapshot(), nil
	}
	e.args.WriteString(ev.ArgsTextDelta)
	return e.snapshot(), perr
}

// Result resolves a call once. A result for an unseen call creates a degraded
// resolved call and returns a ProtocolError; later results are ignored.
func (a *Assembler) Result(ev stream.ToolResult) (State, error) {
	var perr error
	e, ok := a.lookup(ev.ToolCallID)
	if !ok {
		e = a.create(ev.ToolCallID)
		e.state.Degraded = true
		perr = &ProtocolError{ToolCallID: ev.ToolCallID, Event: stream.EventToolResult, Err: ErrUnknownToolCall}
	}

	if e.state.Status == StatusResolved {
		return e.snapshot(), nil
	}
	e.state.Status = StatusResolved
	e.state.Result = ev.Result
	e.state.Artifact = ev.Artifact
	e.state.IsError = ev.IsError
	return e.snapshot(), perr
}

// Get returns a snapshot of the call with the given id.
func (a *Assembler) Get(id string) (State, bool) {
	e, ok := a.lookup(id)
	if !ok {
		return State{}, false
	}
	return e.snapshot(), true
}

// Calls returns snapshots of every tracked call in the order they were first seen.
func (a *Assembler) Calls() []State {
	out := make([]State, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.calls[id].snapshot())
	}
	return out
}

// Len returns the number of tracked calls.
func (a *Assembler) Len() int { return len(a.order) }
