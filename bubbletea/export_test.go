package bubbletea

import "context"

// Cancelled reports whether the user asked to cancel the upload.
func Cancelled(m Model) bool {
	return m.cancelled
}

// UploadContext exposes the context handed to the upload function.
func UploadContext(m Model) context.Context {
	return m.ctx
}
