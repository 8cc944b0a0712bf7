package imageapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"slices"
	"strings"

	"github.com/fwojciec/phototag"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Interface compliance check.
var _ phototag.Uploader = (*Client)(nil)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements [phototag.Uploader] for the batch-upload endpoint.
type Client struct {
	baseURL    string
	httpClient Doer
	tokens     phototag.TokenSource
	logger     *zap.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.httpClient = d }
}

// WithTokenSource sets the source of bearer tokens. Without one, requests are
// sent unauthenticated.
func WithTokenSource(ts phototag.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a [Client] for the image service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		tokens:     phototag.StaticToken(""),
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// UploadBatch uploads the request's files in one multipart POST and consumes
// the streamed response. onProgress is called for every progress record, in
// stream order. The returned JSON is the result of the first terminal record.
//
// Cancelling ctx aborts both the upload and the stream read.
func (c *Client) UploadBatch(ctx context.Context, req phototag.UploadRequest, onProgress func(phototag.ProgressEvent)) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("imageapi: %w", err)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("imageapi: access token: %w", err)
	}

	pr, pw := io.Pipe()
	// Unblocks the body writer if the transport stops reading early.
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+batchUploadPath, pr)
	if err != nil {
		return nil, fmt.Errorf("imageapi: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-Request-Id", requestID)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	go func() {
		pw.CloseWithError(writeMultipart(mw, req))
	}()

	log := c.logger.With(zap.String("request_id", requestID))
	log.Info("uploading batch", zap.Int("files", len(req.Files)), zap.Bool("authenticated", token != ""))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("imageapi: %w", err)
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := parseHTTPError(resp)
		log.Warn("batch upload rejected", zap.Int("status", httpErr.StatusCode), zap.String("message", httpErr.Message))
		return nil, fmt.Errorf("imageapi: %w", httpErr)
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("imageapi: %w", phototag.ErrStreamingUnsupported)
	}

	result, err := newStream(resp.Body, onProgress, log).run(ctx)
	if err != nil {
		log.Warn("batch upload failed", zap.Error(err))
		return nil, fmt.Errorf("imageapi: %w", err)
	}
	log.Info("batch upload complete", zap.Int("result_bytes", len(result)))
	return result, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// writeMultipart writes form fields (sorted by name) followed by the files,
// then closes the writer to emit the final boundary.
func writeMultipart(mw *multipart.Writer, req phototag.UploadRequest) error {
	for _, name := range slices.Sorted(maps.Keys(req.Fields)) {
		if err := mw.WriteField(name, req.Fields[name]); err != nil {
			return fmt.Errorf("write field %q: %w", name, err)
		}
	}
	for _, f := range req.Files {
		if err := writeFile(mw, f); err != nil {
			return fmt.Errorf("write file %q: %w", f.Name, err)
		}
	}
	return mw.Close()
}

func writeFile(mw *multipart.Writer, f phototag.UploadFile) error {
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		filesField, quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(part, rc)
	return err
}

func parseHTTPError(resp *http.Response) *phototag.HTTPError {
	httpErr := &phototag.HTTPError{
		StatusCode: resp.StatusCode,
		Message:    "batch upload failed",
	}
	if resp.Body == nil {
		return httpErr
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil && !errors.Is(err, io.EOF) {
		return httpErr
	}
	httpErr.Body = body
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.text() != "" {
		httpErr.Message = apiErr.text()
	}
	return httpErr
}
