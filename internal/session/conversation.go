package session

import (
	"context"
	"sync"

	"github.com/namikmesic/threadstream/internal/client"
	"github.com/namikmesic/threadstream/internal/stream"
	"github.com/namikmesic/threadstream/internal/toolcall"
	"github.com/namikmesic/threadstream/internal/transcript"
	"github.com/rs/zerolog/log"
)

// Transcript is the consumer-facing view of a conversation.
type Transcript struct {
	Messages  []transcript.Message
	IsRunning bool
}

type Config struct {
	ThreadID    string
	AssistantID string
	Session     Options
	// Initial seeds the authoritative messages, e.g. from a restored thread.
	Initial []transcript.Message
	// OnUpdate receives a fresh transcript after every change. It is called
	// without internal locks held but must not block on the conversation's
	// own runs (Wait, Send, Start).
	OnUpdate func(Transcript)
}

type run struct {
	session *Session
	seq     uint64 // last pending action carried by this run
	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
}

// Conversation is one thread: its authoritative messages, its pending local
// actions and at most one active run.
type Conversation struct {
	streamer Streamer
	cfg      Config

	mu      sync.Mutex
	builder *transcript.Builder
	pending *transcript.Reconciler
	active  *run
	last    *run
	version uint64

	notifyMu  sync.Mutex
	delivered uint64
}

func NewConversation(streamer Streamer, cfg Config) *Conversation {
	return &Conversation{
		streamer: streamer,
		cfg:      cfg,
		builder:  transcript.NewBuilder(cfg.Initial),
		pending:  transcript.NewReconciler(),
	}
}

// ThreadID returns the backend thread this conversation is bound to.
func (c *Conversation) ThreadID() string { return c.cfg.ThreadID }

// Send queues a user message and starts a run carrying it.
func (c *Conversation) Send(ctx context.Context, parts ...transcript.Part) (transcript.PendingAction, error) {
	return c.Submit(ctx, transcript.AddMessage{Parts: parts})
}

// AddToolResult queues a client-side tool result and starts a run carrying it.
func (c *Conversation) AddToolResult(ctx context.Context, toolCallID, toolName string, result any) (transcript.PendingAction, error) {
	return c.Submit(ctx, transcript.AddToolResult{ToolCallID: toolCallID, ToolName: toolName, Result: result})
}

// Submit queues a command and starts a run. Any active run is cancelled first.
func (c *Conversation) Submit(ctx context.Context, cmd transcript.Command) (transcript.PendingAction, error) {
	c.mu.Lock()
	action, err := c.pending.Enqueue(cmd)
	if err == nil {
		c.version++
	}
	c.mu.Unlock()
	if err != nil {
		return transcript.PendingAction{}, err
	}

	log.Debug().
		Str("thread_id", c.cfg.ThreadID).
		Str("action_id", action.ID).
		Str("type", string(action.Type)).
		Uint64("seq", action.Seq).
		Msg("pending action queued")

	c.notify()
	c.Start(ctx)
	return action, nil
}

// Start begins a run carrying the current transcript. Any active run is
// cancelled and waited for first, so at most one run is active at a time.
func (c *Conversation) Start(ctx context.Context) {
	c.mu.Lock()
	for c.active != nil {
		prev := c.active
		c.mu.Unlock()
		prev.cancel()
		<-prev.done
		c.mu.Lock()
	}

	req := client.RunRequest{
		AssistantID: c.cfg.AssistantID,
		Input: client.RunInput{
			Messages: client.OutboundMessages(c.pending.View(c.builder.Messages())),
		},
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		session: New(c.streamer, c.cfg.ThreadID, c.cfg.Session),
		seq:     c.pending.Seq(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.active = r
	c.last = r
	c.builder.BeginRun()
	c.version++
	c.mu.Unlock()

	log.Debug().
		Str("thread_id", c.cfg.ThreadID).
		Str("run_id", r.session.ID.String()).
		Int("messages", len(req.Input.Messages)).
		Msg("run started")

	c.notify()
	go c.drive(runCtx, r, req)
}

func (c *Conversation) drive(ctx context.Context, r *run, req client.RunRequest) {
	defer close(r.done)
	defer r.cancel()

	out := r.session.Run(ctx, req, &runHandler{c: c, r: r})

	c.mu.Lock()
	if out.Kind == OutcomeError {
		c.builder.Fail(out.ErrorMessage())
	}
	expired := c.pending.Expire(r.seq)
	r.outcome = out
	if c.active == r {
		c.active = nil
	}
	c.version++
	c.mu.Unlock()

	event := log.Info()
	if out.Kind == OutcomeError {
		event = log.Warn().Err(out.Err)
	}
	event.
		Str("thread_id", c.cfg.ThreadID).
		Str("run_id", r.session.ID.String()).
		Str("outcome", out.Kind.String()).
		Int("events", out.Stats.Events).
		Int("expired_pending", expired).
		Dur("duration", out.Stats.Duration).
		Msg("run finished")

	c.notify()
}

// Cancel stops the active run, if any. It does not wait for the run to end.
func (c *Conversation) Cancel() {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	if r != nil {
		r.cancel()
	}
}

// Wait blocks until the active run ends and returns the outcome of the most
// recent run. ok is false if no run was ever started.
func (c *Conversation) Wait() (out Outcome, ok bool) {
	c.mu.Lock()
	r := c.last
	c.mu.Unlock()
	if r == nil {
		return Outcome{}, false
	}
	<-r.done
	return r.outcome, true
}

// Running reports whether a run is active.
func (c *Conversation) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Transcript returns the merged view of authoritative and pending messages.
func (c *Conversation) Transcript() Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Pending returns the outstanding local actions.
func (c *Conversation) Pending() []transcript.PendingAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Pending()
}

// ToolCall returns the transcript part of the tool call with the given id.
func (c *Conversation) ToolCall(id string) (transcript.Part, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builder.ToolCall(id)
}

func (c *Conversation) snapshot() Transcript {
	return Transcript{
		Messages:  c.pending.View(c.builder.Messages()),
		IsRunning: c.active != nil,
	}
}

// notify delivers the current transcript to OnUpdate. Snapshots are taken
// under the state lock and delivered in version order; a stale snapshot that
// loses the race to a newer one is dropped.
func (c *Conversation) notify() {
	if c.cfg.OnUpdate == nil {
		return
	}

	c.mu.Lock()
	version := c.version
	view := c.snapshot()
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if version <= c.delivered {
		return
	}
	c.delivered = version
	c.cfg.OnUpdate(view)
}

// runHandler folds one run's effects into the conversation state. Each call
// takes the state lock once, so readers never observe a half-applied record.
type runHandler struct {
	c *Conversation
	r *run
}

func (h *runHandler) OnAccepted() {
	c := h.c
	c.mu.Lock()
	acked := c.pending.Acknowledge(h.r.seq)
	c.builder.Append(acked...)
	if len(acked) > 0 {
		c.version++
	}
	c.mu.Unlock()

	if len(acked) > 0 {
		c.notify()
	}
}

func (h *runHandler) OnEvent(ev stream.Event, call *toolcall.State) {
	switch ev.(type) {
	case stream.ProtocolError, stream.Finish, stream.Error:
		// Protocol errors are logged by the session; terminal errors are
		// recorded on the transcript when the run ends.
		return
	}

	c := h.c
	c.mu.Lock()
	if e, ok := ev.(stream.ToolResult); ok && c.pending.RetireToolResult(e.ToolCallID) {
		log.Debug().Str("tool_call_id", e.ToolCallID).Msg("pending tool result retired")
	}
	c.builder.Apply(ev, call)
	c.version++
	c.mu.Unlock()
	c.notify()
}
