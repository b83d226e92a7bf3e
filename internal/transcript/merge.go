package transcript

import "strings"

// Merge returns the transcript view: the authoritative messages in order,
// followed by one synthetic message per pending action in issue order. It is
// a pure function of its inputs; neither slice is modified.
func Merge(authoritative []Message, pending []PendingAction) []Message {
	out := make([]Message, 0, len(authoritative)+len(pending))
	out = append(out, cloneMessages(authoritative)...)
	for _, a := range pending {
		out = append(out, Materialize(a))
	}
	return out
}

// Materialize renders a pending action as the message it stands for. A sent
// message becomes a user message whose text parts are joined by newlines; a
// tool result becomes a tool message carrying the serialized result.
func Materialize(a PendingAction) Message {
	switch a.Type {
	case CommandAddToolResult:
		return Message{
			ID:   a.ID,
			Role: RoleTool,
			Content: []Part{{
				Type:       PartToolResult,
				ToolCallID: a.ToolCallID,
				ToolName:   a.ToolName,
				Result:     a.Result,
			}},
		}
	default:
		texts := make([]string, 0, len(a.Parts))
		var images []Part
		for _, p := range a.Parts {
			switch p.Type {
			case PartText:
				texts = append(texts, p.Text)
			case PartImage:
				images = append(images, p)
			}
		}
		content := append([]Part{TextPart(strings.Join(texts, "\n"))}, images...)
		return Message{ID: a.ID, Role: RoleUser, Content: content}
	}
}
