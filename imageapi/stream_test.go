package imageapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fwojciec/phototag"
	"github.com/fwojciec/phototag/imageapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// streamHandler drains the upload and then writes each chunk, flushing after
// every one so the client sees them as separate reads.
func streamHandler(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, c := range chunks {
			_, _ = io.WriteString(w, c)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func testRequest() phototag.UploadRequest {
	return phototag.UploadRequest{
		Files: []phototag.UploadFile{phototag.BytesFile("a.jpg", "image/jpeg", []byte("jpeg-bytes"))},
	}
}

// uploadFromChunks serves chunks from a test server and runs one upload,
// collecting progress events.
func uploadFromChunks(t *testing.T, chunks ...string) ([]phototag.ProgressEvent, json.RawMessage, error) {
	t.Helper()
	srv := httptest.NewServer(streamHandler(chunks...))
	t.Cleanup(srv.Close)
	client := imageapi.New(srv.URL)
	var events []phototag.ProgressEvent
	result, err := client.UploadBatch(context.Background(), testRequest(), func(p phototag.ProgressEvent) {
		events = append(events, p)
	})
	return events, result, err
}

// chunkReader returns its chunks one Read at a time.
type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.chunks) > 0 && len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	return n, nil
}

// splitAt cuts data at the given ascending byte offsets.
func splitAt(data []byte, points []int) *chunkReader {
	var chunks [][]byte
	prev := 0
	for _, p := range points {
		chunks = append(chunks, data[prev:p])
		prev = p
	}
	chunks = append(chunks, data[prev:])
	return &chunkReader{chunks: chunks}
}

type parseOutcome struct {
	events []phototag.ProgressEvent
	result string
	err    error
}

func consume(t *testing.T, r io.Reader) parseOutcome {
	t.Helper()
	var out parseOutcome
	result, err := imageapi.ConsumeStream(context.Background(), r, func(p phototag.ProgressEvent) {
		out.events = append(out.events, p)
	}, zap.NewNop())
	out.result = string(result)
	out.err = err
	return out
}

// mixedStream exercises every line form, multi-byte text, CRLF, a malformed
// record, and a terminal record without a trailing newline.
const mixedStream = ": keepalive\n" +
	"data: {\"total\":3,\"processed\":1,\"remaining\":2}\n" +
	"\n" +
	"event: progress\n" +
	"{\"total\":3,\"processed\":2,\"remaining\":1}\r\n" +
	"data: {not-json\n" +
	"data: {\"total\":3,\"processed\":3,\"remaining\":0}\n" +
	"data: {\"complete\":true,\"result\":{\"images\":[{\"filename\":\"café.jpg\",\"title\":\"日本の夏 🌻\",\"keywords\":[\"ñ\",\"ü\"]}]}}"

func TestStream_ChunkBoundariesDoNotChangeOutcome(t *testing.T) {
	t.Parallel()

	data := []byte(mixedStream)
	want := consume(t, splitAt(data, nil))
	require.NoError(t, want.err)
	require.Len(t, want.events, 3)
	assert.Equal(t, phototag.ProgressEvent{Total: 3, Processed: 2, Remaining: 1, Percentage: 67}, want.events[1])
	assert.Contains(t, want.result, "日本の夏 🌻")
	assert.Contains(t, want.result, "café.jpg")

	t.Run("single split at every offset", func(t *testing.T) {
		t.Parallel()
		for i := 1; i < len(data); i++ {
			got := consume(t, splitAt(data, []int{i}))
			require.Equal(t, want, got, "split at %d", i)
		}
	})

	t.Run("one byte per read", func(t *testing.T) {
		t.Parallel()
		points := make([]int, 0, len(data))
		for i := 1; i < len(data); i++ {
			points = append(points, i)
		}
		assert.Equal(t, want, consume(t, splitAt(data, points)))
	})

	t.Run("random splits", func(t *testing.T) {
		t.Parallel()
		rng := rand.New(rand.NewPCG(1, 2))
		for range 200 {
			var points []int
			for i := 1; i < len(data); i++ {
				if rng.IntN(8) == 0 {
					points = append(points, i)
				}
			}
			require.Equal(t, want, consume(t, splitAt(data, points)), "points %v", points)
		}
	})
}

func TestStream_InvalidUTF8IsReplacedConsistently(t *testing.T) {
	t.Parallel()
	data := []byte("data: {\"complete\":true,\"result\":{\"title\":\"a\xffb\xe6\x97\"}}\n")
	whole := consume(t, splitAt(data, nil))
	require.NoError(t, whole.err)
	assert.Contains(t, whole.result, "a\uFFFDb")
	for i := 1; i < len(data); i++ {
		assert.Equal(t, whole, consume(t, splitAt(data, []int{i})), "split at %d", i)
	}
}

func TestStream_ProgressScenario(t *testing.T) {
	t.Parallel()
	events, _, err := uploadFromChunks(t, "data: {\"total\":10,\"processed\":3,\"remaining\":7}\n")

	require.Len(t, events, 1)
	assert.Equal(t, phototag.ProgressEvent{Total: 10, Processed: 3, Remaining: 7, Percentage: 30}, events[0])
	// Progress alone never completes an upload.
	assert.ErrorIs(t, err, phototag.ErrNoResult)
}

func TestStream_BareResultWithoutTrailingNewline(t *testing.T) {
	t.Parallel()
	events, result, err := uploadFromChunks(t, `{"complete":true,"result":{"images":[]}}`)

	require.NoError(t, err)
	assert.Empty(t, events)
	assert.JSONEq(t, `{"images":[]}`, string(result))
}

func TestStream_GarbledLineIsSkipped(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	srv := httptest.NewServer(streamHandler(
		"data: {not-json\n",
		"data: {\"complete\":true,\"result\":{\"images\":[{\"filename\":\"a.jpg\"}]}}\n",
	))
	t.Cleanup(srv.Close)

	client := imageapi.New(srv.URL, imageapi.WithLogger(zap.New(core)))
	result, err := client.UploadBatch(context.Background(), testRequest(), nil)

	require.NoError(t, err)
	assert.JSONEq(t, `{"images":[{"filename":"a.jpg"}]}`, string(result))
	malformed := logs.FilterMessage("skipping malformed record").All()
	require.Len(t, malformed, 1)
	assert.Equal(t, "data: {not-json", malformed[0].ContextMap()["line"])
}

func TestStream_ZeroBytes(t *testing.T) {
	t.Parallel()
	events, result, err := uploadFromChunks(t)

	assert.ErrorIs(t, err, phototag.ErrNoResult)
	assert.Nil(t, result)
	assert.Empty(t, events)
}

func TestStream_ZeroTotal(t *testing.T) {
	t.Parallel()
	events, _, err := uploadFromChunks(t,
		"data: {\"total\":0,\"processed\":0,\"remaining\":0}\n",
		"data: {\"complete\":true,\"result\":{\"images\":[]}}\n",
	)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, phototag.ProgressEvent{}, events[0])
}

func TestStream_FirstResultWins(t *testing.T) {
	t.Parallel()
	events, result, err := uploadFromChunks(t,
		"data: {\"complete\":true,\"result\":{\"n\":1}}\n",
		"data: {\"total\":2,\"processed\":2,\"remaining\":0}\n",
		"data: {\"complete\":true,\"result\":{\"n\":2}}\n",
	)

	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(result))
	// Progress after the terminal record is still relayed.
	assert.Len(t, events, 1)
}

func TestStream_ResultWithNonNumericCountIsAccepted(t *testing.T) {
	t.Parallel()
	events, result, err := uploadFromChunks(t,
		"data: {\"total\":\"3\",\"processed\":1,\"remaining\":2}\n",
		"data: {\"complete\":true,\"result\":{\"images\":[]},\"total\":\"3\"}\n",
	)

	require.NoError(t, err)
	assert.JSONEq(t, `{"images":[]}`, string(result))
	assert.Empty(t, events)
}

func TestStream_OversizedLineIsDropped(t *testing.T) {
	t.Parallel()

	const limit = 64
	long := "data: {\"complete\":true,\"result\":{\"pad\":\"" + strings.Repeat("x", 2*limit) + "\"}}\n"
	data := []byte("data: {\"total\":2,\"processed\":1,\"remaining\":1}\n" +
		long +
		"data: {\"complete\":true,\"result\":{\"n\":1}}\n")

	run := func(r io.Reader) (parseOutcome, *observer.ObservedLogs) {
		core, logs := observer.New(zap.WarnLevel)
		var out parseOutcome
		result, err := imageapi.ConsumeStreamWithLineLimit(context.Background(), r, limit, func(p phototag.ProgressEvent) {
			out.events = append(out.events, p)
		}, zap.New(core))
		out.result = string(result)
		out.err = err
		return out, logs
	}

	want, logs := run(splitAt(data, nil))
	require.NoError(t, want.err)
	assert.JSONEq(t, `{"n":1}`, want.result)
	assert.Len(t, want.events, 1)
	assert.Equal(t, 1, logs.FilterMessage("dropping oversized line").Len())

	for i := 1; i < len(data); i++ {
		got, logs := run(splitAt(data, []int{i}))
		require.Equal(t, want, got, "split at %d", i)
		require.Equal(t, 1, logs.FilterMessage("dropping oversized line").Len(), "split at %d", i)
	}
}

func TestStream_OversizedTailIsDropped(t *testing.T) {
	t.Parallel()
	data := "data: {\"complete\":true,\"result\":{\"pad\":\"" + strings.Repeat("x", 200) + "\"}}"

	_, err := imageapi.ConsumeStreamWithLineLimit(context.Background(), strings.NewReader(data), 64, nil, zap.NewNop())
	assert.ErrorIs(t, err, phototag.ErrNoResult)
}

func TestStream_SameStreamTwiceIsIdempotent(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(streamHandler(
		"data: {\"total\":1,\"processed\":1,\"remaining\":0}\n",
		"data: {\"complete\":true,\"result\":{\"images\":[{\"title\":\"x\"}]}}",
	))
	t.Cleanup(srv.Close)
	client := imageapi.New(srv.URL)

	var first, second []phototag.ProgressEvent
	r1, err := client.UploadBatch(context.Background(), testRequest(), func(p phototag.ProgressEvent) { first = append(first, p) })
	require.NoError(t, err)
	r2, err := client.UploadBatch(context.Background(), testRequest(), func(p phototag.ProgressEvent) { second = append(second, p) })
	require.NoError(t, err)

	assert.Equal(t, string(r1), string(r2))
	assert.Equal(t, first, second)
}

func TestStream_ContextCancelledMidStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "data: {\"total\":5,\"processed\":1,\"remaining\":4}\n")
		w.(http.Flusher).Flush()
		// Stall until the client goes away.
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := imageapi.New(srv.URL)
	_, err := client.UploadBatch(ctx, testRequest(), func(phototag.ProgressEvent) { cancel() })

	assert.ErrorIs(t, err, context.Canceled)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestStream_ReadError(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection reset")
	_, err := imageapi.ConsumeStream(context.Background(), errReader{boom}, nil, zap.NewNop())
	assert.ErrorIs(t, err, boom)
}

func TestStream_CancelledBeforeRead(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := imageapi.ConsumeStream(ctx, splitAt([]byte(mixedStream), nil), nil, zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		line    string
		want    phototag.Record
		wantErr bool
	}{
		{"data progress", `data: {"total":10,"processed":3,"remaining":7}`,
			phototag.ProgressRecord{Progress: phototag.ProgressEvent{Total: 10, Processed: 3, Remaining: 7, Percentage: 30}}, false},
		{"data without space", `data:{"total":4,"processed":1,"remaining":3}`,
			phototag.ProgressRecord{Progress: phototag.ProgressEvent{Total: 4, Processed: 1, Remaining: 3, Percentage: 25}}, false},
		{"bare progress with padding", "  {\"total\":2,\"processed\":1,\"remaining\":1}\t",
			phototag.ProgressRecord{Progress: phototag.ProgressEvent{Total: 2, Processed: 1, Remaining: 1, Percentage: 50}}, false},
		{"float counts", `{"total":10.0,"processed":5.0,"remaining":5.0}`,
			phototag.ProgressRecord{Progress: phototag.ProgressEvent{Total: 10, Processed: 5, Remaining: 5, Percentage: 50}}, false},
		{"result", `data: {"complete":true,"result":{"images":[]}}`,
			phototag.ResultRecord{Result: json.RawMessage(`{"images":[]}`)}, false},
		{"result with numeric complete", `{"complete":1,"result":[1]}`,
			phototag.ResultRecord{Result: json.RawMessage(`[1]`)}, false},
		{"progress takes precedence", `{"total":1,"processed":1,"remaining":0,"complete":true,"result":{}}`,
			phototag.ProgressRecord{Progress: phototag.ProgressEvent{Total: 1, Processed: 1, Remaining: 0, Percentage: 100}}, false},
		{"incomplete", `{"complete":false,"result":{}}`, nil, false},
		{"null result", `{"complete":true,"result":null}`, nil, false},
		{"missing result", `{"complete":true}`, nil, false},
		{"partial progress", `{"total":1,"processed":1}`, nil, false},
		{"unknown shape", `data: {"status":"queued"}`, nil, false},
		{"json array", `data: [1,2]`, nil, false},
		{"empty data", `data:`, nil, false},
		{"blank", "", nil, false},
		{"comment", ": ping", nil, false},
		{"event field", "event: progress", nil, false},
		{"plain text", "processing...", nil, false},
		{"garbled data", `data: {not-json`, nil, true},
		{"garbled bare", `{not json}`, nil, true},
		{"non-numeric count is not progress", `{"total":"ten","processed":1,"remaining":9}`, nil, false},
		{"null count is not progress", `{"total":null,"processed":1,"remaining":9}`, nil, false},
		{"result with stray count", `{"complete":true,"result":{},"total":"3"}`,
			phototag.ResultRecord{Result: json.RawMessage(`{}`)}, false},
		{"fractional counts", `{"total":3,"processed":1.5,"remaining":1.5}`,
			phototag.ProgressRecord{Progress: phototag.ProgressEvent{Total: 3, Processed: 1, Remaining: 1, Percentage: 50}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := imageapi.ParseRecord(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
