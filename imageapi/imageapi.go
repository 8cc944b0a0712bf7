// Package imageapi implements [phototag.Uploader] for the image service's
// batch-upload endpoint.
//
// A batch upload is one multipart POST. The service answers with a streamed,
// newline-delimited body: each line is either "data: <json>" or a bare JSON
// object, carrying progress counts while photos are tagged and finally one
// terminal record with the per-image results. The stream parser reads one
// chunk at a time through a reading -> draining -> done state machine.
package imageapi

import "encoding/json"

const (
	batchUploadPath = "/images/upload-batch"
	filesField      = "images"
	dataPrefix      = "data:"
	chunkSize       = 32 * 1024
	maxErrorBody    = 1 << 20
	maxLoggedLine   = 256
	maxLineSize     = 16 << 20
)

// wireRecord is the union of the two record shapes the service emits.
// Fields stay raw so that a stray value of the wrong type in one shape does
// not hide the other.
type wireRecord struct {
	Total     json.RawMessage `json:"total"`
	Processed json.RawMessage `json:"processed"`
	Remaining json.RawMessage `json:"remaining"`
	Complete  json.RawMessage `json:"complete"`
	Result    json.RawMessage `json:"result"`
}

// apiErrorResponse is the JSON body returned on non-2xx responses. Services
// behind the gateway disagree on the field name.
type apiErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}

func (r apiErrorResponse) text() string {
	switch {
	case r.Message != "":
		return r.Message
	case r.Error != "":
		return r.Error
	default:
		return r.Detail
	}
}
