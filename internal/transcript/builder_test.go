package transcript

import (
	"encoding/json"
	"testing"

	"github.com/namikmesic/threadstream/internal/stream"
	"github.com/namikmesic/threadstream/internal/toolcall"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fold runs wire text through the framer, decoder and assembler into b.
func fold(t *testing.T, b *Builder, wire string) {
	t.Helper()
	calls := toolcall.NewAssembler()
	for _, rec := range stream.NewFramer().Feed([]byte(wire)) {
		ev := stream.Decode(rec)
		var st toolcall.State
		switch e := ev.(type) {
		case stream.ToolCallBegin:
			st, _ = calls.Begin(e)
		case stream.ToolCallDelta:
			st, _ = calls.Delta(e)
		case stream.ToolResult:
			st, _ = calls.Result(e)
		default:
			b.Apply(ev, nil)
			continue
		}
		b.Apply(ev, &st)
	}
}

func TestBuilderAccumulatesText(t *testing.T) {
	b := NewBuilder(nil)
	b.BeginRun()
	fold(t, b, "0:\"Hel\"\n0:\"lo\"\n")

	msgs := b.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.NotEmpty(t, msgs[0].ID)
	assert.Equal(t, "Hello", msgs[0].Text())
	assert.Len(t, msgs[0].Content, 1)
}

func TestBuilderSplitsTextByParent(t *testing.T) {
	b := NewBuilder(nil)
	b.BeginRun()
	fold(t, b, `aui-text-delta:{"textDelta":"a","parentId":"p1"}
aui-text-delta:{"textDelta":"b","parentId":"p1"}
aui-text-delta:{"textDelta":"c","parentId":"p2"}
`)

	msgs := b.Messages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Content, 2)
	assert.Equal(t, Part{Type: PartText, Text: "ab", ParentID: "p1"}, msgs[0].Content[0])
	assert.Equal(t, Part{Type: PartText, Text: "c", ParentID: "p2"}, msgs[0].Content[1])
}

func TestBuilderFoldsToolCall(t *testing.T) {
	b := NewBuilder(nil)
	b.BeginRun()
	fold(t, b, `0:"Looking it up."
b:{"toolCallId":"t1","toolName":"lookup"}
c:{"toolCallId":"t1","argsTextDelta":"{\"q\":"}
c:{"toolCallId":"t1","argsTextDelta":"\"x\"}"}
a:{"toolCallId":"t1","result":{"hits":1}}
0:"Found one."
`)

	msgs := b.Messages()
	require.Len(t, msgs, 1)
	content := msgs[0].Content
	require.Len(t, content, 3)
	assert.Equal(t, PartText, content[0].Type)
	assert.Equal(t, PartToolCall, content[1].Type)
	assert.Equal(t, PartText, content[2].Type)
	assert.Equal(t, "Looking it up.\nFound one.", msgs[0].Text())

	part, ok := b.ToolCall("t1")
	require.True(t, ok)
	assert.Equal(t, "lookup", part.ToolName)
	assert.Equal(t, `{"q":"x"}`, part.ArgsText)
	assert.JSONEq(t, `{"hits":1}`, string(part.Result))
}

func TestBuilderNewRunOpensNewMessage(t *testing.T) {
	b := NewBuilder([]Message{{ID: "u1", Role: RoleUser, Content: []Part{TextPart("q")}}})

	b.BeginRun()
	fold(t, b, "0:\"one\"\n")
	b.BeginRun()
	fold(t, b, "0:\"two\"\n")

	msgs := b.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[1].Text())
	assert.Equal(t, "two", msgs[2].Text())
	assert.NotEqual(t, msgs[1].ID, msgs[2].ID)
}

func TestBuilderResolvesCallFromEarlierRun(t *testing.T) {
	b := NewBuilder(nil)
	b.BeginRun()
	fold(t, b, `b:{"toolCallId":"t1","toolName":"ask_user"}
`)
	b.BeginRun()
	fold(t, b, `a:{"toolCallId":"t1","result":"yes"}
0:"Thanks."
`)

	msgs := b.Messages()
	require.Len(t, msgs, 2)
	require.Len(t, msgs[0].ToolCalls(), 1)
	assert.Equal(t, json.RawMessage(`"yes"`), msgs[0].ToolCalls()[0].Result)
	assert.Empty(t, msgs[1].ToolCalls())
	assert.Equal(t, "Thanks.", msgs[1].Text())
}

func TestBuilderIgnoresDeltaForCallResolvedInEarlierRun(t *testing.T) {
	b := NewBuilder(nil)
	b.BeginRun()
	fold(t, b, `b:{"toolCallId":"t1","toolName":"lookup"}
c:{"toolCallId":"t1","argsTextDelta":"{\"q\":1}"}
a:{"toolCallId":"t1","result":{"hits":1}}
`)
	b.BeginRun()
	fold(t, b, `c:{"toolCallId":"t1","argsTextDelta":"junk"}
`)

	part, ok := b.ToolCall("t1")
	require.True(t, ok)
	assert.Equal(t, `{"q":1}`, part.ArgsText)
	assert.JSONEq(t, `{"hits":1}`, string(part.Result))
	assert.Equal(t, 1, b.Len())
}

func TestBuilderAppendsArgsOfOpenCallAcrossRuns(t *testing.T) {
	b := NewBuilder(nil)
	b.BeginRun()
	fold(t, b, `b:{"toolCallId":"t1","toolName":"lookup"}
c:{"toolCallId":"t1","argsTextDelta":"{\"q\":"}
`)
	b.BeginRun()
	fold(t, b, `c:{"toolCallId":"t1","argsTextDelta":"\"x\""}
c:{"toolCallId":"t1","argsTextDelta":"}"}
a:{"toolCallId":"t1","result":"ok"}
c:{"toolCallId":"t1","argsTextDelta":"late"}
`)

	part, ok := b.ToolCall("t1")
	require.True(t, ok)
	assert.Equal(t, `{"q":"x"}`, part.ArgsText)
	assert.Equal(t, json.RawMessage(`"ok"`), part.Result)
}

func TestBuilderIndexesInitialToolCalls(t *testing.T) {
	b := NewBuilder([]Message{{
		ID:      "a1",
		Role:    RoleAssistant,
		Content: []Part{{Type: PartToolCall, ToolCallID: "t1", ToolName: "lookup"}},
	}})

	part, ok := b.ToolCall("t1")
	require.True(t, ok)
	assert.Equal(t, "lookup", part.ToolName)

	b.BeginRun()
	st := toolcall.State{ID: "t1", Status: toolcall.StatusResolved}
	b.Apply(stream.ToolResult{ToolCallID: "t1"}, &st)

	part, _ = b.ToolCall("t1")
	assert.Equal(t, "null", string(part.Result))
	assert.Equal(t, 1, b.Len())
}

func TestBuilderFail(t *testing.T) {
	b := NewBuilder(nil)
	b.BeginRun()
	b.Fail("rate limited")

	msgs := b.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "rate limited", msgs[0].Error)
	assert.Empty(t, msgs[0].Content)
}

func TestBuilderAppendAndIgnoredEvents(t *testing.T) {
	b := NewBuilder(nil)
	b.Append(Message{ID: "u1", Role: RoleUser, Content: []Part{TextPart("hi")}})
	b.BeginRun()
	b.Apply(stream.State{Snapshot: json.RawMessage(`{}`)}, nil)
	b.Apply(stream.ToolCallBegin{ToolCallID: "t1"}, nil)

	assert.Equal(t, 1, b.Len())
	_, ok := b.ToolCall("t1")
	assert.False(t, ok)
}
