package client

import (
	"encoding/json"
	"strings"

	"github.com/namikmesic/threadstream/internal/transcript"
)

// Outbound message types understood by the backend.
const (
	MessageTypeHuman = "human"
	MessageTypeAI    = "ai"
	MessageTypeTool  = "tool"
)

type OutboundMessage struct {
	Type       string `json:"type"` // "human" | "ai" | "tool"
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"` // tool messages only
	Name       string `json:"name,omitempty"`         // tool messages only
}

type RunInput struct {
	Messages []OutboundMessage `json:"messages"`
}

// RunRequest is the body of POST /threads/{id}/runs/stream.
type RunRequest struct {
	AssistantID string   `json:"assistant_id"`
	Input       RunInput `json:"input"`
}

type createThreadResponse struct {
	ThreadID  string          `json:"thread_id"`
	CreatedAt string          `json:"created_at"`
	Metadata  json.RawMessage `json:"metadata"`
}

type ThreadTask struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Interrupts []json.RawMessage `json:"interrupts"`
}

// ThreadState is the response of GET /threads/{id}/state.
type ThreadState struct {
	Values   json.RawMessage `json:"values"`
	Next     []string        `json:"next"`
	Tasks    []ThreadTask    `json:"tasks"`
	Metadata json.RawMessage `json:"metadata"`
}

// Interrupted reports whether the thread is paused waiting for input.
func (s *ThreadState) Interrupted() bool {
	for _, t := range s.Tasks {
		if len(t.Interrupts) > 0 {
			return true
		}
	}
	return false
}

// OutboundMessages maps transcript messages onto the backend's message shape.
// Roles map user→human, assistant→ai and tool→tool; content is the message
// text. Assistant messages without text are skipped.
func OutboundMessages(msgs []transcript.Message) []OutboundMessage {
	out := make([]OutboundMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case transcript.RoleUser:
			out = append(out, OutboundMessage{Type: MessageTypeHuman, Content: m.Text()})
		case transcript.RoleAssistant:
			text := m.Text()
			if strings.TrimSpace(text) == "" {
				continue
			}
			out = append(out, OutboundMessage{Type: MessageTypeAI, Content: text})
		case transcript.RoleTool:
			for _, p := range m.Content {
				if p.Type != transcript.PartToolResult {
					continue
				}
				out = append(out, OutboundMessage{
					Type:       MessageTypeTool,
					Content:    string(p.Result),
					ToolCallID: p.ToolCallID,
					Name:       p.ToolName,
				})
			}
		}
	}
	return out
}
