package jetstream

import (
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"
)

const (
	StreamName    = "THREADSTREAM"
	SubjectPrefix = "threadstream.run."
)

// EnsureStream creates the tap stream if it does not exist. Runs are kept
// until maxAge so they can be replayed more than once.
func EnsureStream(js nats.JetStreamContext, maxAge time.Duration) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"threadstream.>"},
		Storage:   nats.FileStorage,
		MaxAge:    maxAge,
		Retention: nats.LimitsPolicy,
	})
	if err != nil && !strings.Contains(err.Error(), "already in use") && !strings.Contains(err.Error(), "already exists") {
		return err
	}
	return nil
}

// ChunkSubject carries the raw body bytes of a run, in read order.
func ChunkSubject(runID string) string {
	return SubjectPrefix + runID + ".chunk"
}

// DoneSubject carries the end-of-run marker.
func DoneSubject(runID string) string {
	return SubjectPrefix + runID + ".done"
}

// RunSubjects matches every subject of a run.
func RunSubjects(runID string) string {
	return SubjectPrefix + runID + ".*"
}
