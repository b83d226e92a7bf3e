package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOrdersAuthoritativeThenPending(t *testing.T) {
	auth := []Message{
		{ID: "m1", Role: RoleUser, Content: []Part{TextPart("hi")}},
		{ID: "m2", Role: RoleAssistant, Content: []Part{TextPart("hello")}},
	}
	r := NewReconciler()
	first, err := r.Enqueue(AddMessage{Parts: []Part{TextPart("one")}})
	require.NoError(t, err)
	second, err := r.Enqueue(AddToolResult{ToolCallID: "t1", ToolName: "lookup", Result: map[string]int{"hits": 1}})
	require.NoError(t, err)

	view := Merge(auth, r.Pending())

	require.Len(t, view, 4)
	assert.Equal(t, "m1", view[0].ID)
	assert.Equal(t, "m2", view[1].ID)
	assert.Equal(t, first.ID, view[2].ID)
	assert.Equal(t, RoleUser, view[2].Role)
	assert.Equal(t, second.ID, view[3].ID)
	assert.Equal(t, RoleTool, view[3].Role)
	assert.Equal(t, view, r.View(auth))
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	auth := []Message{{ID: "m1", Role: RoleUser, Content: []Part{TextPart("hi")}}}

	view := Merge(auth, nil)
	view[0].Content[0].Text = "changed"

	assert.Equal(t, "hi", auth[0].Content[0].Text)
}

func TestMaterializeJoinsTextParts(t *testing.T) {
	msg := Materialize(PendingAction{
		ID:   "p1",
		Type: CommandAddMessage,
		Parts: []Part{
			TextPart("first"),
			ImagePart("data:image/png;base64,AAAA"),
			TextPart("second"),
		},
	})

	assert.Equal(t, "p1", msg.ID)
	assert.Equal(t, RoleUser, msg.Role)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, TextPart("first\nsecond"), msg.Content[0])
	assert.Equal(t, PartImage, msg.Content[1].Type)
	assert.Equal(t, "first\nsecond", msg.Text())
}

func TestMaterializeToolResult(t *testing.T) {
	msg := Materialize(PendingAction{
		ID:         "p2",
		Type:       CommandAddToolResult,
		ToolCallID: "t1",
		ToolName:   "lookup",
		Result:     []byte(`{"ok":true}`),
	})

	assert.Equal(t, RoleTool, msg.Role)
	require.Len(t, msg.Content, 1)
	part := msg.Content[0]
	assert.Equal(t, PartToolResult, part.Type)
	assert.Equal(t, "t1", part.ToolCallID)
	assert.Equal(t, "lookup", part.ToolName)
	assert.JSONEq(t, `{"ok":true}`, string(part.Result))
}
