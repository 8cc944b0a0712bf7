package phototag

import (
	"context"
	"encoding/json"
)

// Uploader performs one batch upload and relays progress while the server
// processes it. onProgress may be nil; when set it is called synchronously,
// in stream order, on the calling goroutine. The returned JSON is the
// server's per-image result payload.
type Uploader interface {
	UploadBatch(ctx context.Context, req UploadRequest, onProgress func(ProgressEvent)) (json.RawMessage, error)
}

// TokenSource supplies the bearer token for API requests. It may refresh the
// token before returning. An empty token means "no credentials": requests are
// sent unauthenticated and the server decides.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns itself.
type StaticToken string

// AccessToken implements TokenSource.
func (t StaticToken) AccessToken(context.Context) (string, error) {
	return string(t), nil
}

var _ TokenSource = StaticToken("")
