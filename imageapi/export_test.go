package imageapi

import (
	"context"
	"encoding/json"
	"io"

	"github.com/fwojciec/phototag"
	"go.uber.org/zap"
)

// ParseRecord exposes parseRecord for testing.
func ParseRecord(line string) (phototag.Record, error) {
	return parseRecord(line)
}

// ConsumeStream runs the stream state machine over r, as UploadBatch does
// with a response body.
func ConsumeStream(ctx context.Context, r io.Reader, onProgress func(phototag.ProgressEvent), logger *zap.Logger) (json.RawMessage, error) {
	return newStream(r, onProgress, logger).run(ctx)
}

// ConsumeStreamWithLineLimit is ConsumeStream with a custom maximum line
// length.
func ConsumeStreamWithLineLimit(ctx context.Context, r io.Reader, maxLine int, onProgress func(phototag.ProgressEvent), logger *zap.Logger) (json.RawMessage, error) {
	s := newStream(r, onProgress, logger)
	s.maxLine = maxLine
	return s.run(ctx)
}
