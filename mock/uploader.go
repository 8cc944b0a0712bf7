// Package mock provides test doubles for phototag interfaces using function fields.
package mock

import (
	"context"
	"encoding/json"

	"github.com/fwojciec/phototag"
)

// Interface compliance check.
var _ phototag.Uploader = (*Uploader)(nil)

// Uploader is a test double for phototag.Uploader.
// Set UploadBatchFn before calling UploadBatch.
type Uploader struct {
	UploadBatchFn func(ctx context.Context, req phototag.UploadRequest, onProgress func(phototag.ProgressEvent)) (json.RawMessage, error)
}

// UploadBatch delegates to UploadBatchFn.
func (u *Uploader) UploadBatch(ctx context.Context, req phototag.UploadRequest, onProgress func(phototag.ProgressEvent)) (json.RawMessage, error) {
	return u.UploadBatchFn(ctx, req, onProgress)
}
