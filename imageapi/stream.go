package imageapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/phototag"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// streamState is the position of a stream in its parse lifecycle.
type streamState int

const (
	stateReading  streamState = iota // Pulling chunks from the body.
	stateDraining                    // Body exhausted; parse the buffered tail.
	stateDone                        // Terminal.
)

// stream consumes one upload response body. It is owned by a single
// UploadBatch call and never shared.
type stream struct {
	src        io.Reader // body seen through a stateful UTF-8 decoder
	chunk      []byte
	buf        []byte // decoded text after the last newline
	maxLine    int    // longer lines are dropped
	skipping   bool   // inside a dropped line until the next newline
	state      streamState
	result     json.RawMessage // first terminal result; nil until seen
	onProgress func(phototag.ProgressEvent)
	logger     *zap.Logger
}

func newStream(body io.Reader, onProgress func(phototag.ProgressEvent), logger *zap.Logger) *stream {
	return &stream{
		// The decoder holds back an incomplete multi-byte sequence at the end
		// of a read until the next read completes it.
		src:        transform.NewReader(body, unicode.UTF8.NewDecoder()),
		chunk:      make([]byte, chunkSize),
		maxLine:    maxLineSize,
		state:      stateReading,
		onProgress: onProgress,
		logger:     logger,
	}
}

// run drives the state machine to completion and returns the terminal result.
// Returns phototag.ErrNoResult when the body ends without one.
func (s *stream) run(ctx context.Context) (json.RawMessage, error) {
	for s.state != stateDone {
		switch s.state {
		case stateReading:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			n, err := s.src.Read(s.chunk)
			if n > 0 {
				s.buf = append(s.buf, s.chunk[:n]...)
				s.consumeLines()
			}
			switch {
			case errors.Is(err, io.EOF):
				s.state = stateDraining
			case err != nil:
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, fmt.Errorf("read stream: %w", err)
			}
		case stateDraining:
			if !s.skipping && len(bytes.TrimSpace(s.buf)) > 0 {
				s.handleLine(string(s.buf))
			}
			s.buf = nil
			s.state = stateDone
		}
	}

	if s.result == nil {
		return nil, phototag.ErrNoResult
	}
	return s.result, nil
}

// consumeLines handles every complete line in the buffer and keeps the
// trailing partial line for the next read. Lines longer than maxLine are
// dropped whole, however they are split across reads.
func (s *stream) consumeLines() {
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		switch {
		case s.skipping:
			s.skipping = false
		case i > s.maxLine:
			s.dropLine()
		default:
			s.handleLine(string(s.buf[:i]))
		}
		s.buf = s.buf[i+1:]
	}
	if len(s.buf) > s.maxLine {
		if !s.skipping {
			s.dropLine()
		}
		s.skipping = true
		s.buf = nil
		return
	}
	// Compact so the backing array does not grow with the whole body.
	if len(s.buf) > 0 && cap(s.buf) > 2*chunkSize {
		s.buf = append([]byte(nil), s.buf...)
	}
}

func (s *stream) dropLine() {
	s.logger.Warn("dropping oversized line", zap.Int("limit", s.maxLine))
}

func (s *stream) handleLine(line string) {
	rec, err := parseRecord(line)
	if err != nil {
		s.logger.Warn("skipping malformed record", zap.String("line", truncate(line, maxLoggedLine)), zap.Error(err))
		return
	}
	switch r := rec.(type) {
	case phototag.ProgressRecord:
		s.logger.Debug("progress",
			zap.Int("total", r.Progress.Total),
			zap.Int("processed", r.Progress.Processed),
			zap.Int("remaining", r.Progress.Remaining))
		if s.onProgress != nil {
			s.onProgress(r.Progress)
		}
	case phototag.ResultRecord:
		if s.result != nil {
			s.logger.Debug("ignoring duplicate result record")
			return
		}
		s.result = r.Result
	}
}

// parseRecord decodes one line of the stream. It returns a nil Record and a
// nil error for lines that are not records (blank lines, comments, other SSE
// fields, JSON of an unrecognized shape). A non-nil error means the line
// looked like a record but its JSON could not be decoded.
func parseRecord(line string) (phototag.Record, error) {
	line = strings.TrimSpace(line)

	var payload string
	switch {
	case strings.HasPrefix(line, dataPrefix):
		payload = strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	case strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}"):
		payload = line
	default:
		return nil, nil
	}

	if payload == "" {
		return nil, nil
	}
	if !json.Valid([]byte(payload)) {
		return nil, errors.New("invalid JSON")
	}
	if !strings.HasPrefix(payload, "{") {
		return nil, nil
	}

	var w wireRecord
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, err
	}

	total, okT := number(w.Total)
	processed, okP := number(w.Processed)
	remaining, okR := number(w.Remaining)
	switch {
	case okT && okP && okR:
		return phototag.ProgressRecord{Progress: phototag.ProgressEvent{
			Total:      int(total),
			Processed:  int(processed),
			Remaining:  int(remaining),
			Percentage: phototag.Percentage(processed, total),
		}}, nil
	case truthy(w.Complete) && truthy(w.Result):
		return phototag.ResultRecord{Result: w.Result}, nil
	default:
		return nil, nil
	}
}

// number decodes a JSON number. Absent, null and non-numeric values report
// false.
func number(raw json.RawMessage) (float64, bool) {
	var f *float64
	if len(raw) == 0 || json.Unmarshal(raw, &f) != nil || f == nil {
		return 0, false
	}
	return *f, true
}

// truthy reports whether a JSON value counts as set: true, a non-zero number,
// a non-empty string, or any object or array.
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
