// Package session drives streaming runs against the agent backend and keeps
// the conversation transcript consistent with them.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/namikmesic/threadstream/internal/client"
	"github.com/namikmesic/threadstream/internal/stream"
	"github.com/namikmesic/threadstream/internal/toolcall"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultReadBufferSize = 32 * 1024

// Streamer opens the byte stream of a run.
type Streamer interface {
	StreamRun(ctx context.Context, threadID string, req client.RunRequest) (io.ReadCloser, error)
}

// Recorder receives a copy of a run's raw bytes. Record must drain r until it
// returns an error, including io.EOF.
type Recorder interface {
	Record(runID uuid.UUID, r io.Reader)
}

// Handler receives the effects of a run in arrival order, on the goroutine
// that called Run.
type Handler interface {
	// OnAccepted is called once the backend has accepted the run, before any event.
	OnAccepted()
	// OnEvent is called for every event. call is the tool-call state after the
	// event was applied, or nil for events that are not about a tool call.
	OnEvent(ev stream.Event, call *toolcall.State)
}

type Options struct {
	ReadBufferSize int
	Recorder       Recorder
}

type OutcomeKind int

const (
	OutcomeFinish OutcomeKind = iota
	OutcomeError
	OutcomeCancel
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFinish:
		return "finish"
	case OutcomeError:
		return "error"
	case OutcomeCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a run.
type Outcome struct {
	Kind  OutcomeKind
	Err   error // set for OutcomeError
	Stats stream.Stats
}

// RunError is an error reported in-band by the backend.
type RunError struct {
	Message string
	Payload json.RawMessage
}

func (e *RunError) Error() string {
	return "agent error: " + e.Message
}

// ErrorMessage returns the text to display for a failed run.
func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	var runErr *RunError
	if errors.As(o.Err, &runErr) {
		return runErr.Message
	}
	return o.Err.Error()
}

// Session is one request/response cycle. It owns the framer and the tool-call
// assembler for the run; both are discarded when the run ends.
type Session struct {
	ID       uuid.UUID
	threadID string
	streamer Streamer
	opts     Options
	framer   *stream.Framer
	calls    *toolcall.Assembler
	done     bool
}

func New(streamer Streamer, threadID string, opts Options) *Session {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = defaultReadBufferSize
	}
	return &Session{
		ID:       uuid.New(),
		threadID: threadID,
		streamer: streamer,
		opts:     opts,
		framer:   stream.NewFramer(),
		calls:    toolcall.NewAssembler(),
	}
}

// ToolCall returns the assembled state of a call seen in this run.
func (s *Session) ToolCall(id string) (toolcall.State, bool) {
	return s.calls.Get(id)
}

// Run executes the run and returns its outcome. It never panics on wire
// errors: decode and protocol problems are logged and skipped, transport and
// in-band errors end the run with OutcomeError. Cancelling ctx stops event
// delivery at the next record boundary. A Session can run once.
func (s *Session) Run(ctx context.Context, req client.RunRequest, h Handler) Outcome {
	if s.done {
		return Outcome{Kind: OutcomeError, Err: errors.New("session already ran")}
	}
	s.done = true

	start := time.Now()
	logger := log.With().Str("run_id", s.ID.String()).Str("thread_id", s.threadID).Logger()

	var stats stream.Stats
	finish := func(out Outcome) Outcome {
		stats.Duration = time.Since(start)
		out.Stats = stats
		logger.Debug().
			Str("outcome", out.Kind.String()).
			Int("bytes", stats.Bytes).
			Int("records", stats.Records).
			Int("events", stats.Events).
			Int("skipped", stats.Skipped).
			Dur("duration", stats.Duration).
			Msg("run ended")
		return out
	}

	body, err := s.streamer.StreamRun(ctx, s.threadID, req)
	if err != nil {
		if ctx.Err() != nil {
			return finish(Outcome{Kind: OutcomeCancel})
		}
		logger.Error().Err(err).Msg("run request failed")
		return finish(Outcome{Kind: OutcomeError, Err: fmt.Errorf("start run: %w", err)})
	}

	var reader io.ReadCloser = body
	if s.opts.Recorder != nil {
		split, tap := stream.SplitBody(body)
		reader = split
		go s.opts.Recorder.Record(s.ID, tap)
	}
	defer reader.Close()

	if ctx.Err() != nil {
		return finish(Outcome{Kind: OutcomeCancel})
	}
	h.OnAccepted()

	buf := make([]byte, s.opts.ReadBufferSize)
	for {
		n, err := reader.Read(buf)
		if ctx.Err() != nil {
			return finish(Outcome{Kind: OutcomeCancel})
		}
		if n > 0 {
			stats.Bytes += n
			for _, rec := range s.framer.Feed(buf[:n]) {
				if ctx.Err() != nil {
					return finish(Outcome{Kind: OutcomeCancel})
				}
				stats.Records++
				if runErr := s.dispatch(rec, h, &stats, logger); runErr != nil {
					return finish(Outcome{Kind: OutcomeError, Err: runErr})
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				stats.Dropped = s.framer.Close()
				stats.Duration = time.Since(start)
				final := stats
				h.OnEvent(stream.Finish{Stats: &final}, nil)
				return finish(Outcome{Kind: OutcomeFinish})
			}
			logger.Error().Err(err).Msg("run stream read failed")
			return finish(Outcome{Kind: OutcomeError, Err: fmt.Errorf("read run stream: %w", err)})
		}
	}
}

// dispatch decodes one record, updates the tool-call state and delivers the
// resulting events. It returns a non-nil error only for an in-band error event,
// which ends the run.
func (s *Session) dispatch(rec stream.Record, h Handler, stats *stream.Stats, logger zerolog.Logger) error {
	ev := stream.Decode(rec)

	switch e := ev.(type) {
	case stream.Unrecognized:
		stats.Skipped++
		logger.Warn().Str("prefix", e.Prefix).Str("reason", e.Reason).Msg("skipping unrecognized record")
		return nil

	case stream.State:
		stats.Skipped++
		logger.Debug().Int("bytes", len(e.Snapshot)).Msg("ignoring state snapshot")
		return nil

	case stream.ToolCallBegin:
		st, err := s.calls.Begin(e)
		s.deliver(h, ev, &st, err, stats, logger)

	case stream.ToolCallDelta:
		st, err := s.calls.Delta(e)
		s.deliver(h, ev, &st, err, stats, logger)

	case stream.ToolResult:
		st, err := s.calls.Result(e)
		s.deliver(h, ev, &st, err, stats, logger)

	case stream.Error:
		s.deliver(h, ev, nil, nil, stats, logger)
		logger.Warn().Str("message", e.Message).Msg("agent reported error")
		return &RunError{Message: e.Message, Payload: e.Payload}

	default:
		s.deliver(h, ev, nil, nil, stats, logger)
	}
	return nil
}

func (s *Session) deliver(h Handler, ev stream.Event, call *toolcall.State, err error, stats *stream.Stats, logger zerolog.Logger) {
	var perr *toolcall.ProtocolError
	if errors.As(err, &perr) {
		logger.Warn().Str("tool_call_id", perr.ToolCallID).Err(perr.Err).Str("event", string(perr.Event)).Msg("tool call protocol violation")
		stats.Events++
		h.OnEvent(perr.StreamEvent(), nil)
	}
	stats.Events++
	h.OnEvent(ev, call)
}
