package stream

import (
	"io"
	"sync"
)

// Splitter is the run body as the session sees it when a Recorder is
// attached. Each chunk the session reads is written to the recorder's pipe
// before Read returns, so a recording holds exactly the bytes that were
// framed. A recorder that stops reading is detached; the run carries on.
type Splitter struct {
	body   io.ReadCloser
	mirror *io.PipeWriter
	// detached is set once a write to the recorder fails.
	detached bool

	closeOnce sync.Once
	closeErr  error
}

// SplitBody wraps a run body for recording. The returned pipe is unbuffered,
// so the recorder has to drain it from its own goroutine.
func SplitBody(body io.ReadCloser) (*Splitter, *io.PipeReader) {
	pr, pw := io.Pipe()
	return &Splitter{body: body, mirror: pw}, pr
}

func (s *Splitter) Read(p []byte) (int, error) {
	n, err := s.body.Read(p)
	if n > 0 && !s.detached {
		if _, werr := s.mirror.Write(p[:n]); werr != nil {
			s.detached = true
		}
	}
	if err != nil {
		// The recording ends with the same error the run saw.
		s.mirror.CloseWithError(err)
	}
	return n, err
}

// Close ends the recording and releases the run body once.
func (s *Splitter) Close() error {
	s.closeOnce.Do(func() {
		s.mirror.Close()
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
