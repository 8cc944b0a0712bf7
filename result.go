package phototag

import (
	"encoding/json"
	"fmt"
)

// ImageResult holds the AI-generated metadata for one uploaded photo.
// Error is set instead of the metadata when the server failed on that photo.
type ImageResult struct {
	ID          string   `json:"id,omitempty"`
	Filename    string   `json:"filename"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Error       string   `json:"error,omitempty"`
}

// BatchResult is the typed view of a terminal record's result payload.
type BatchResult struct {
	Images []ImageResult `json:"images"`
}

// Failed returns the number of images the server could not process.
func (r BatchResult) Failed() int {
	var n int
	for _, img := range r.Images {
		if img.Error != "" {
			n++
		}
	}
	return n
}

// DecodeBatchResult decodes the raw result returned by an Uploader.
func DecodeBatchResult(raw json.RawMessage) (BatchResult, error) {
	var r BatchResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return BatchResult{}, fmt.Errorf("decode batch result: %w", err)
	}
	return r, nil
}
