package transcript

import (
	"encoding/json"

	"github.com/namikmesic/threadstream/internal/stream"
	"github.com/namikmesic/threadstream/internal/toolcall"
)

var nullResult = json.RawMessage("null")

type partRef struct {
	msg  int
	part int
}

// Builder folds run events into the authoritative message list. Tool-call
// parts are indexed by call id for the lifetime of the thread, so a result
// arriving in a later run still lands on the part that announced the call.
type Builder struct {
	messages []Message
	current  int
	calls    map[string]partRef
}

func NewBuilder(initial []Message) *Builder {
	b := &Builder{
		messages: cloneMessages(initial),
		current:  -1,
		calls:    make(map[string]partRef),
	}
	for i, m := range b.messages {
		for j, p := range m.Content {
			if p.Type == PartToolCall {
				b.calls[p.ToolCallID] = partRef{msg: i, part: j}
			}
		}
	}
	return b
}

// Messages returns a copy of the authoritative messages.
func (b *Builder) Messages() []Message {
	return cloneMessages(b.messages)
}

// Len returns the number of authoritative messages.
func (b *Builder) Len() int { return len(b.messages) }

// Append adds messages confirmed by the backend, such as acknowledged sends.
func (b *Builder) Append(msgs ...Message) {
	for _, m := range msgs {
		b.messages = append(b.messages, m.clone())
	}
}

// BeginRun starts a new run; the next assistant content opens a new message.
func (b *Builder) BeginRun() {
	b.current = -1
}

func (b *Builder) assistant() *Message {
	if b.current < 0 {
		b.messages = append(b.messages, Message{ID: newID(), Role: RoleAssistant})
		b.current = len(b.messages) - 1
	}
	return &b.messages[b.current]
}

// Apply folds one event. call is the assembler's state for tool-call events
// and nil otherwise. Events that do not change the transcript are ignored.
func (b *Builder) Apply(ev stream.Event, call *toolcall.State) {
	switch e := ev.(type) {
	case stream.TextDelta:
		b.appendText(e)
	case stream.ToolCallBegin, stream.ToolResult:
		if call != nil {
			b.upsertToolCall(*call)
		}
	case stream.ToolCallDelta:
		if call != nil {
			b.upsertToolCall(*call).appendArgs(e.ArgsTextDelta)
		}
	}
}

func (b *Builder) appendText(ev stream.TextDelta) {
	m := b.assistant()
	if n := len(m.Content); n > 0 {
		last := &m.Content[n-1]
		if last.Type == PartText && last.ParentID == ev.ParentID {
			last.Text += ev.TextDelta
			return
		}
	}
	m.Content = append(m.Content, Part{Type: PartText, Text: ev.TextDelta, ParentID: ev.ParentID})
}

// upsertToolCall finds or creates the part for st and merges name and
// result into it. Argument text is not copied from st: the assembler is per
// run, so its ArgsText may hold only this run's fragments. Deltas are
// appended by the caller instead.
func (b *Builder) upsertToolCall(st toolcall.State) *Part {
	ref, ok := b.calls[st.ID]
	if !ok {
		m := b.assistant()
		m.Content = append(m.Content, Part{
			Type:       PartToolCall,
			ToolCallID: st.ID,
			ToolName:   st.ToolName,
			ParentID:   st.ParentID,
		})
		ref = partRef{msg: b.current, part: len(m.Content) - 1}
		b.calls[st.ID] = ref
	}

	p := &b.messages[ref.msg].Content[ref.part]
	if p.ToolName == "" {
		p.ToolName = st.ToolName
	}
	if st.Resolved() && p.Result == nil {
		p.Result = st.Result
		if p.Result == nil {
			p.Result = nullResult
		}
		p.IsError = st.IsError
	}
	return p
}

// appendArgs extends the argument text of an unresolved call.
func (p *Part) appendArgs(fragment string) {
	if p.Result != nil {
		return
	}
	p.ArgsText += fragment
}

// Fail records a terminal error on the current run's assistant message,
// opening one if the run produced no content.
func (b *Builder) Fail(msg string) {
	b.assistant().Error = msg
}

// ToolCall returns the tool-call part with the given id.
func (b *Builder) ToolCall(id string) (Part, bool) {
	ref, ok := b.calls[id]
	if !ok {
		return Part{}, false
	}
	return b.messages[ref.msg].Content[ref.part], true
}
