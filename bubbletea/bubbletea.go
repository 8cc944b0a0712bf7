// Package bubbletea provides a Bubble Tea progress view for batch uploads.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/phototag"
)

// UploadFunc runs one batch upload. The onProgress callback is called for
// each progress record. The function blocks until the upload completes or the
// context is cancelled.
type UploadFunc func(ctx context.Context, onProgress func(phototag.ProgressEvent)) (phototag.BatchResult, error)

// Run creates and runs the Bubble Tea program and returns the final model.
// It blocks until the program exits. When ctx is cancelled, the upload is
// cancelled and the program quits.
func Run(ctx context.Context, m Model) (Model, error) {
	defer m.cancel()
	p := tea.NewProgram(m)
	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-ctx.Done():
			m.cancel()
			p.Quit()
		case <-exited:
		}
	}()
	fm, err := p.Run()
	if final, ok := fm.(Model); ok {
		m = final
	}
	return m, err
}

// ProgressMsg wraps a progress event for delivery to the Bubble Tea model.
type ProgressMsg struct {
	Event phototag.ProgressEvent
}

// UploadDoneMsg signals that the upload has finished.
type UploadDoneMsg struct {
	Result phototag.BatchResult
	Err    error
}
