package stream

import (
	"bytes"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Record is a single framed protocol line split at its first colon.
type Record struct {
	Prefix  string
	Payload string
}

// Framer maintains state across chunks to handle partial lines.
// Bytes are only decoded once a full line is buffered, so a multi-byte
// character split between two chunks is reassembled before decoding.
type Framer struct {
	buffer  []byte
	decoder *encoding.Decoder
	lines   int
}

func NewFramer() *Framer {
	return &Framer{decoder: unicode.UTF8.NewDecoder()}
}

// Feed processes raw bytes from the stream and returns the complete records.
// Any trailing bytes after the last newline are kept for the next call.
func (f *Framer) Feed(chunk []byte) []Record {
	f.buffer = append(f.buffer, chunk...)
	var records []Record

	for {
		idx := bytes.IndexByte(f.buffer, '\n')
		if idx == -1 {
			break
		}

		raw := bytes.TrimRight(f.buffer[:idx], "\r")
		f.buffer = f.buffer[idx+1:]
		f.lines++

		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		line, err := f.decoder.String(string(raw))
		if err != nil {
			log.Warn().Err(err).Int("line", f.lines).Msg("undecodable line, skipping")
			continue
		}

		rec, ok := splitRecord(line)
		if !ok {
			log.Warn().Int("line", f.lines).Str("data", truncate(line, 64)).Msg("line without prefix separator, skipping")
			continue
		}
		records = append(records, rec)
	}

	if len(f.buffer) == 0 {
		f.buffer = nil
	}
	return records
}

// Pending reports how many bytes are buffered without a terminating newline.
func (f *Framer) Pending() int {
	return len(f.buffer)
}

// Close ends the stream. An unterminated trailing line is dropped rather than
// surfaced; the number of discarded bytes is returned.
func (f *Framer) Close() int {
	n := len(f.buffer)
	if n > 0 {
		log.Debug().Int("bytes", n).Msg("discarding unterminated trailing line")
	}
	f.buffer = nil
	return n
}

func splitRecord(line string) (Record, bool) {
	prefix, payload, ok := strings.Cut(line, ":")
	if !ok {
		return Record{}, false
	}
	return Record{Prefix: prefix, Payload: payload}, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
