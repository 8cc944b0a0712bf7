package phototag

import (
	"bytes"
	"fmt"
	"io"
)

// UploadFile is one photo in a batch upload. Open is called once, right
// before the file is written to the request body, and the returned reader is
// closed as soon as it has been copied.
type UploadFile struct {
	Name        string // file name sent in the multipart part
	ContentType string // empty = application/octet-stream
	Size        int64  // informational; 0 if unknown
	Open        func() (io.ReadCloser, error)
}

// BytesFile returns an UploadFile backed by an in-memory buffer.
func BytesFile(name, contentType string, data []byte) UploadFile {
	return UploadFile{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// UploadRequest is the multipart payload of a batch upload: photos plus
// optional form fields. It is not retained after the upload call returns.
type UploadRequest struct {
	Files  []UploadFile
	Fields map[string]string
}

// Validate checks that the request can be dispatched.
func (r UploadRequest) Validate() error {
	if len(r.Files) == 0 {
		return fmt.Errorf("upload request has no files: %w", ErrValidation)
	}
	for i, f := range r.Files {
		if f.Name == "" {
			return fmt.Errorf("file %d has no name: %w", i, ErrValidation)
		}
		if f.Open == nil {
			return fmt.Errorf("file %q has no content: %w", f.Name, ErrValidation)
		}
	}
	for k := range r.Fields {
		if k == "" {
			return fmt.Errorf("form field with empty name: %w", ErrValidation)
		}
	}
	return nil
}
