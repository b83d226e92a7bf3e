package main

import (
	"fmt"
	"io"

	"github.com/namikmesic/threadstream/internal/session"
	"github.com/namikmesic/threadstream/internal/transcript"
)

// printer renders transcript updates incrementally. Assistant text only ever
// grows at the end, so each update prints the unseen suffix.
type printer struct {
	out     io.Writer
	seen    map[string]*printed
	running bool
}

type printed struct {
	header bool
	text   int
	calls  map[string]bool // tool call id -> result printed
	failed bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, seen: make(map[string]*printed)}
}

// Update is installed as the conversation's OnUpdate callback.
func (p *printer) Update(t session.Transcript) {
	for _, m := range t.Messages {
		if m.Role != transcript.RoleAssistant {
			continue
		}
		st, ok := p.seen[m.ID]
		if !ok {
			st = &printed{calls: make(map[string]bool)}
			p.seen[m.ID] = st
		}

		if text := m.Text(); len(text) > st.text {
			if !st.header {
				fmt.Fprint(p.out, "assistant: ")
				st.header = true
			}
			fmt.Fprint(p.out, text[st.text:])
			st.text = len(text)
		}

		for _, call := range m.ToolCalls() {
			resolved, seen := st.calls[call.ToolCallID]
			switch {
			case !seen:
				fmt.Fprintf(p.out, "\n[tool %s] %s\n", call.ToolCallID, call.ToolName)
				st.calls[call.ToolCallID] = false
			case call.Result != nil && !resolved:
				fmt.Fprintf(p.out, "[tool %s] %s(%s) -> %s\n", call.ToolCallID, call.ToolName, call.ArgsText, call.Result)
				st.calls[call.ToolCallID] = true
			}
		}

		if m.Error != "" && !st.failed {
			fmt.Fprintf(p.out, "\n[error] %s\n", m.Error)
			st.failed = true
		}
	}

	if p.running && !t.IsRunning {
		fmt.Fprintln(p.out)
	}
	p.running = t.IsRunning
}
