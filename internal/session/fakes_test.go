package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/namikmesic/threadstream/internal/client"
	"github.com/namikmesic/threadstream/internal/stream"
	"github.com/namikmesic/threadstream/internal/toolcall"
)

// scriptedRun produces the body of one run.
type scriptedRun func(ctx context.Context) (io.ReadCloser, error)

// fakeStreamer hands out scripted runs in order and records each request.
type fakeStreamer struct {
	mu   sync.Mutex
	runs []scriptedRun
	reqs []client.RunRequest
}

func newFakeStreamer(runs ...scriptedRun) *fakeStreamer {
	return &fakeStreamer{runs: runs}
}

func (f *fakeStreamer) StreamRun(ctx context.Context, _ string, req client.RunRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	if len(f.runs) == 0 {
		f.mu.Unlock()
		return nil, errors.New("no scripted run")
	}
	next := f.runs[0]
	f.runs = f.runs[1:]
	f.mu.Unlock()
	return next(ctx)
}

func (f *fakeStreamer) requests() []client.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.RunRequest(nil), f.reqs...)
}

// trackedBody counts Close calls.
type trackedBody struct {
	io.Reader
	mu     sync.Mutex
	closes int
}

func (b *trackedBody) Close() error {
	b.mu.Lock()
	b.closes++
	b.mu.Unlock()
	return nil
}

func (b *trackedBody) closeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

func bodyRun(wire string) scriptedRun {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(wire)), nil
	}
}

func trackedRun(body *trackedBody) scriptedRun {
	return func(context.Context) (io.ReadCloser, error) { return body, nil }
}

func failedRun(err error) scriptedRun {
	return func(context.Context) (io.ReadCloser, error) { return nil, err }
}

// pipeRun streams whatever the test writes to the returned writer. Like an
// HTTP body, reads fail once the run's context is cancelled.
func pipeRun() (scriptedRun, *io.PipeWriter) {
	pr, pw := io.Pipe()
	return func(ctx context.Context) (io.ReadCloser, error) {
		go func() {
			<-ctx.Done()
			pr.CloseWithError(ctx.Err())
		}()
		return pr, nil
	}, pw
}

// errAfterReader returns data and then err.
type errAfterReader struct {
	data string
	err  error
	done bool
}

func (r *errAfterReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, r.err
	}
	r.done = true
	return copy(p, r.data), nil
}

type delivered struct {
	ev   stream.Event
	call *toolcall.State
}

// recordingHandler collects everything a session delivers.
type recordingHandler struct {
	accepted int
	events   []delivered
	onEvent  func(stream.Event)
}

func (h *recordingHandler) OnAccepted() { h.accepted++ }

func (h *recordingHandler) OnEvent(ev stream.Event, call *toolcall.State) {
	h.events = append(h.events, delivered{ev: ev, call: call})
	if h.onEvent != nil {
		h.onEvent(ev)
	}
}

func (h *recordingHandler) types() []stream.EventType {
	out := make([]stream.EventType, 0, len(h.events))
	for _, d := range h.events {
		out = append(out, d.ev.Type())
	}
	return out
}

// fakeRecorder captures recorded bodies.
type fakeRecorder struct {
	mu   sync.Mutex
	runs map[uuid.UUID]string
	done chan uuid.UUID
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{runs: make(map[uuid.UUID]string), done: make(chan uuid.UUID, 4)}
}

func (r *fakeRecorder) Record(runID uuid.UUID, body io.Reader) {
	data, _ := io.ReadAll(body)
	r.mu.Lock()
	r.runs[runID] = string(data)
	r.mu.Unlock()
	r.done <- runID
}

func (r *fakeRecorder) recorded(id uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[id]
}
