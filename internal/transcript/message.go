// Package transcript folds run events and locally pending actions into the
// ordered message list shown to the user.
package transcript

import (
	"encoding/json"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// Part is one content part of a message. Which fields are set depends on Type.
type Part struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	Image      string          `json:"image,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	ParentID   string          `json:"parentId,omitempty"`
	ArgsText   string          `json:"argsText,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"` // nil until a tool call is resolved
	IsError    bool            `json:"isError,omitempty"`
}

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func ImagePart(image string) Part {
	return Part{Type: PartImage, Image: image}
}

// Message is a role-tagged, append-ordered list of parts. Error is set on the
// assistant message of a run that ended in failure.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content []Part `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Text joins the message's text parts with newlines.
func (m Message) Text() string {
	texts := make([]string, 0, len(m.Content))
	for _, p := range m.Content {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ToolCalls returns the message's tool-call parts.
func (m Message) ToolCalls() []Part {
	var calls []Part
	for _, p := range m.Content {
		if p.Type == PartToolCall {
			calls = append(calls, p)
		}
	}
	return calls
}

func (m Message) clone() Message {
	m.Content = append([]Part(nil), m.Content...)
	return m
}

func cloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.clone()
	}
	return out
}

func newID() string {
	return gonanoid.Must()
}
