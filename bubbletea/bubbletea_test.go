package bubbletea_test

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/phototag"
	bt "github.com/fwojciec/phototag/bubbletea"
	"github.com/stretchr/testify/require"
)

// initModel creates a model and sends a WindowSizeMsg to set its width.
func initModel(t *testing.T, upload bt.UploadFunc) bt.Model {
	t.Helper()
	m := bt.New(upload, phototag.DefaultTheme(), bt.Config{Files: 3})
	return updateModel(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
}

// updateModel sends a message and returns the updated Model.
func updateModel(t *testing.T, m bt.Model, msg tea.Msg) bt.Model {
	t.Helper()
	updated, _ := m.Update(msg)
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

// nopUpload is a mock upload that returns an empty result.
func nopUpload(_ context.Context, _ func(phototag.ProgressEvent)) (phototag.BatchResult, error) {
	return phototag.BatchResult{}, nil
}
