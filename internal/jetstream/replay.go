package jetstream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/namikmesic/threadstream/internal/client"
	nats "github.com/nats-io/nats.go"
)

// ErrRunNotFound is returned when no completed recording exists for a run.
var ErrRunNotFound = errors.New("recorded run not found")

// Replay streams the recorded body of a run. The returned reader yields the
// chunks in their original order and ends at the run's done marker.
func Replay(ctx context.Context, js nats.JetStreamContext, runID string) (io.ReadCloser, error) {
	if _, err := js.GetLastMsg(StreamName, DoneSubject(runID)); err != nil {
		if errors.Is(err, nats.ErrMsgNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("look up run %s: %w", runID, err)
	}

	sub, err := js.SubscribeSync(RunSubjects(runID), nats.OrderedConsumer())
	if err != nil {
		return nil, fmt.Errorf("subscribe to run %s: %w", runID, err)
	}

	pr, pw := io.Pipe()
	done := DoneSubject(runID)
	go func() {
		defer sub.Unsubscribe()
		for {
			msg, err := sub.NextMsgWithContext(ctx)
			if err != nil {
				pw.CloseWithError(fmt.Errorf("replay run %s: %w", runID, err))
				return
			}
			if msg.Subject == done {
				pw.Close()
				return
			}
			if _, err := pw.Write(msg.Data); err != nil {
				return
			}
		}
	}()
	return pr, nil
}

// RunSource replays a recorded run in place of a live backend, so the
// recording can be driven through a session.
type RunSource struct {
	JS    nats.JetStreamContext
	RunID string
}

func (s RunSource) StreamRun(ctx context.Context, _ string, _ client.RunRequest) (io.ReadCloser, error) {
	return Replay(ctx, s.JS, s.RunID)
}
