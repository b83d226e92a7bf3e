package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errMissingToolCallID = errors.New("tool result requires a tool call id")

type CommandType string

const (
	CommandAddMessage    CommandType = "add-message"
	CommandAddToolResult CommandType = "add-tool-result"
)

// Command is a local action handed to the Reconciler.
type Command interface {
	CommandType() CommandType
}

// AddMessage sends a user message.
type AddMessage struct {
	Parts []Part
}

func (AddMessage) CommandType() CommandType { return CommandAddMessage }

// AddToolResult supplies the result of a tool call from the client side.
type AddToolResult struct {
	ToolCallID string
	ToolName   string
	Result     any
}

func (AddToolResult) CommandType() CommandType { return CommandAddToolResult }

// PendingAction is a command that has been applied locally but not yet
// confirmed by the backend. Seq orders actions by issue time.
type PendingAction struct {
	ID   string
	Seq  uint64
	Type CommandType

	Parts []Part // add-message

	ToolCallID string          // add-tool-result
	ToolName   string          // add-tool-result
	Result     json.RawMessage // add-tool-result, serialized at enqueue time
}

// Reconciler owns the set of pending actions. It is not safe for concurrent
// use; callers serialize access.
type Reconciler struct {
	pending []PendingAction
	seq     uint64
}

func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Enqueue turns a command into a pending action.
func (r *Reconciler) Enqueue(cmd Command) (PendingAction, error) {
	var action PendingAction

	switch c := cmd.(type) {
	case AddMessage:
		action = PendingAction{Type: CommandAddMessage, Parts: append([]Part(nil), c.Parts...)}
	case AddToolResult:
		if c.ToolCallID == "" {
			return PendingAction{}, errMissingToolCallID
		}
		result, err := json.Marshal(c.Result)
		if err != nil {
			return PendingAction{}, fmt.Errorf("encode tool result for %s: %w", c.ToolCallID, err)
		}
		action = PendingAction{
			Type:       CommandAddToolResult,
			ToolCallID: c.ToolCallID,
			ToolName:   c.ToolName,
			Result:     result,
		}
	default:
		return PendingAction{}, fmt.Errorf("unsupported command %T", cmd)
	}

	r.seq++
	action.ID = newID()
	action.Seq = r.seq
	r.pending = append(r.pending, action)
	return action, nil
}

// Seq returns the sequence number of the most recently issued action.
func (r *Reconciler) Seq() uint64 { return r.seq }

// Pending returns the outstanding actions in issue order.
func (r *Reconciler) Pending() []PendingAction {
	return append([]PendingAction(nil), r.pending...)
}

// Len returns the number of outstanding actions.
func (r *Reconciler) Len() int { return len(r.pending) }

// Acknowledge confirms every pending message issued at or before seq. The
// confirmed actions leave the pending set and are returned as messages, in
// issue order, for the caller to append to the authoritative list. Pending
// tool results are unaffected.
func (r *Reconciler) Acknowledge(seq uint64) []Message {
	var acked []Message
	r.filter(func(a PendingAction) bool {
		if a.Type == CommandAddMessage && a.Seq <= seq {
			acked = append(acked, Materialize(a))
			return false
		}
		return true
	})
	return acked
}

// RetireToolResult drops the oldest pending tool result for toolCallID and
// reports whether one was found. All other actions are untouched.
func (r *Reconciler) RetireToolResult(toolCallID string) bool {
	for i, a := range r.pending {
		if a.Type == CommandAddToolResult && a.ToolCallID == toolCallID {
			r.pending = append(r.pending[:i:i], r.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Expire drops every pending action issued at or before seq and returns how
// many were dropped. It is called when the run that carried them has ended.
func (r *Reconciler) Expire(seq uint64) int {
	before := len(r.pending)
	r.filter(func(a PendingAction) bool { return a.Seq > seq })
	return before - len(r.pending)
}

// View merges the authoritative messages with the pending actions.
func (r *Reconciler) View(authoritative []Message) []Message {
	return Merge(authoritative, r.pending)
}

func (r *Reconciler) filter(keep func(PendingAction) bool) {
	var kept []PendingAction
	for _, a := range r.pending {
		if keep(a) {
			kept = append(kept, a)
		}
	}
	r.pending = kept
}
