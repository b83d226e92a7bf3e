package jetstream

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	tapReadSize = 32 * 1024
	ackTimeout  = 10 * time.Second
)

// publishJob is one message waiting to be published.
type publishJob struct {
	subject string
	data    []byte
}

// doneMarker is the payload published on a run's done subject.
type doneMarker struct {
	TS    int64  `json:"ts"`
	Bytes int    `json:"bytes"`
	Error string `json:"error,omitempty"`
}

// Tap records run bodies to JetStream. Publishing happens on a background
// loop in batches, so a slow store never stalls a run; when the queue is full
// messages are dropped and counted.
type Tap struct {
	js        nats.JetStreamContext
	jobs      chan publishJob
	batchSize int
	flushMs   int
	wg        sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewTap(js nats.JetStreamContext, bufferSize, batchSize, flushMs int) *Tap {
	t := &Tap{
		js:        js,
		jobs:      make(chan publishJob, bufferSize),
		batchSize: batchSize,
		flushMs:   flushMs,
	}
	t.wg.Add(1)
	go t.loop()
	return t
}

// Record copies a run body to the tap. It drains r until r returns an error
// and then publishes the done marker.
func (t *Tap) Record(runID uuid.UUID, r io.Reader) {
	id := runID.String()
	subject := ChunkSubject(id)
	buf := make([]byte, tapReadSize)

	var total int
	var readErr error
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.Enqueue(subject, chunk)
			total += n
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
	}

	marker := doneMarker{TS: time.Now().UnixNano(), Bytes: total}
	if readErr != nil {
		marker.Error = readErr.Error()
	}
	data, _ := json.Marshal(marker)
	t.Enqueue(DoneSubject(id), data)

	log.Debug().Str("run_id", id).Int("bytes", total).Msg("run recorded")
}

// Enqueue queues a message without blocking.
func (t *Tap) Enqueue(subject string, data []byte) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		t.dropped.Add(1)
		return
	}
	select {
	case t.jobs <- publishJob{subject: subject, data: data}:
	default:
		t.dropped.Add(1)
		log.Warn().Str("subject", subject).Msg("tap queue full, dropping message")
	}
}

// Dropped returns how many messages were not published.
func (t *Tap) Dropped() int64 {
	return t.dropped.Load()
}

func (t *Tap) loop() {
	defer t.wg.Done()

	ticker := time.NewTicker(time.Duration(t.flushMs) * time.Millisecond)
	defer ticker.Stop()

	batch := make([]publishJob, 0, t.batchSize)

	for {
		select {
		case job, ok := <-t.jobs:
			if !ok {
				t.flush(batch)
				return
			}
			batch = append(batch, job)
			if len(batch) >= t.batchSize {
				t.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				t.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (t *Tap) flush(batch []publishJob) {
	if len(batch) == 0 {
		return
	}

	for _, job := range batch {
		if _, err := t.js.PublishAsync(job.subject, job.data); err != nil {
			t.dropped.Add(1)
			log.Error().Err(err).Str("subject", job.subject).Msg("tap publish failed")
		}
	}

	select {
	case <-t.js.PublishAsyncComplete():
	case <-time.After(ackTimeout):
		log.Error().Int("pending", t.js.PublishAsyncPending()).Msg("tap publish acks timed out")
	}
}

// Shutdown stops accepting messages and flushes what is queued.
func (t *Tap) Shutdown() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.jobs)
	t.mu.Unlock()
	t.wg.Wait()
}
