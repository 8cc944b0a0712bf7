package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/phototag"
	"github.com/mattn/go-runewidth"
)

var _ tea.Model = Model{}

const (
	defaultWidth    = 80
	defaultBarWidth = 60
)

// Config holds display settings for a Model.
type Config struct {
	// Files is the number of photos in the batch, shown before the server
	// reports progress.
	Files int
	// MaxBarWidth caps the progress bar width. Zero means 60 columns.
	MaxBarWidth int
}

// Model is the Bubble Tea model for the upload progress view.
type Model struct {
	// Progress is the progress bar component. Exported for test access.
	Progress progress.Model
	// Spinner is shown while the upload runs. Exported for test access.
	Spinner spinner.Model

	upload UploadFunc
	styles Styles
	cfg    Config
	width  int

	last      phototag.ProgressEvent
	seen      bool // at least one progress event arrived
	result    phototag.BatchResult
	done      bool
	running   bool
	cancelled bool
	err       error

	ctx        context.Context
	cancel     context.CancelFunc
	progressCh chan phototag.ProgressEvent
	doneCh     chan uploadOutcome
}

type uploadOutcome struct {
	result phototag.BatchResult
	err    error
}

// New creates a Model that runs upload when the program starts.
func New(upload UploadFunc, theme phototag.Theme, cfg Config) Model {
	if cfg.MaxBarWidth <= 0 {
		cfg.MaxBarWidth = defaultBarWidth
	}
	styles := NewStyles(theme)

	barOpts := []progress.Option{progress.WithoutPercentage()}
	if theme.Accent >= 0 {
		barOpts = append(barOpts, progress.WithSolidFill(strconv.Itoa(theme.Accent)))
	}
	bar := progress.New(barOpts...)
	bar.Width = min(defaultWidth-2, cfg.MaxBarWidth)

	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		Progress:   bar,
		Spinner:    spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Accent)),
		upload:     upload,
		styles:     styles,
		cfg:        cfg,
		width:      defaultWidth,
		running:    true,
		ctx:        ctx,
		cancel:     cancel,
		progressCh: make(chan phototag.ProgressEvent, 256),
		doneCh:     make(chan uploadOutcome, 1),
	}
}

// Running returns whether the upload is still in flight.
func (m Model) Running() bool { return m.running }

// Err returns the upload error, if any.
func (m Model) Err() error { return m.err }

// Result returns the batch result once the upload has succeeded.
func (m Model) Result() phototag.BatchResult { return m.result }

// LastProgress returns the most recent progress event.
func (m Model) LastProgress() phototag.ProgressEvent { return m.last }

// Init implements tea.Model. It starts the upload.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		startUpload(m.ctx, m.upload, m.progressCh, m.doneCh),
		listenForProgress(m.progressCh, m.doneCh),
		m.Spinner.Tick,
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.Progress.Width = max(min(msg.Width-2, m.cfg.MaxBarWidth), 1)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ProgressMsg:
		m.last = msg.Event
		m.seen = true
		return m, listenForProgress(m.progressCh, m.doneCh)

	case UploadDoneMsg:
		m.running = false
		m.done = true
		m.cancel()
		// A cancel that lost the race against completion is not reported.
		m.cancelled = errors.Is(msg.Err, context.Canceled)
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.result = msg.Result
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running && !m.cancelled {
			m.cancelled = true
			m.cancel()
			return m, nil
		}
		m.cancel()
		return m, tea.Quit
	case tea.KeyEsc:
		if !m.running {
			return m, tea.Quit
		}
	case tea.KeyRunes:
		if !m.running && msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	if m.running {
		m.writeRunning(&b)
	} else {
		m.writeDone(&b)
	}
	return b.String()
}

func (m Model) writeRunning(b *strings.Builder) {
	b.WriteString(m.Spinner.View())
	b.WriteString(" ")
	switch {
	case m.cancelled:
		b.WriteString("Cancelling...")
	case !m.seen:
		b.WriteString(fmt.Sprintf("Uploading %s...", photos(m.cfg.Files)))
	default:
		b.WriteString(fmt.Sprintf("Tagging %s... %d%%", photos(m.last.Total), m.last.Percentage))
	}
	b.WriteString("\n")
	b.WriteString(m.Progress.ViewAs(m.last.Fraction()))
	b.WriteString("\n")
	if m.seen {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("%d processed, %d remaining", m.last.Processed, m.last.Remaining)))
		b.WriteString("\n")
	}
	if m.cancelled {
		b.WriteString(m.styles.Muted.Render("Ctrl+C again to quit"))
	} else {
		b.WriteString(m.styles.Muted.Render("Ctrl+C to cancel"))
	}
}

func (m Model) writeDone(b *strings.Builder) {
	switch {
	case m.cancelled:
		b.WriteString(m.styles.Muted.Render("Upload cancelled."))
		b.WriteString("\n")
	case m.err != nil:
		b.WriteString(m.styles.Error.Render(truncate(fmt.Sprintf("Error: %v", m.err), m.width)))
		b.WriteString("\n")
	default:
		m.writeResults(b)
	}
	b.WriteString(m.styles.Muted.Render("q to quit"))
}

func (m Model) writeResults(b *strings.Builder) {
	total := len(m.result.Images)
	failed := m.result.Failed()
	b.WriteString(m.styles.Success.Render(fmt.Sprintf("Tagged %d of %s", total-failed, photos(total))))
	b.WriteString("\n\n")
	for _, img := range m.result.Images {
		if img.Error != "" {
			b.WriteString(m.styles.Error.Render(truncate(img.Filename+": "+img.Error, m.width)))
			b.WriteString("\n")
			continue
		}
		b.WriteString(m.styles.Title.Render(truncate(img.Filename+": "+img.Title, m.width)))
		b.WriteString("\n")
		if img.Description != "" {
			b.WriteString(m.styles.Muted.Render(truncate("  "+img.Description, m.width)))
			b.WriteString("\n")
		}
		if len(img.Keywords) > 0 {
			b.WriteString(m.styles.Keyword.Render(truncate("  "+strings.Join(img.Keywords, ", "), m.width)))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
}

// truncate shortens s to fit in width terminal columns.
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func photos(n int) string {
	if n == 1 {
		return "1 photo"
	}
	return fmt.Sprintf("%d photos", n)
}

// startUpload runs the upload in a goroutine and signals completion.
func startUpload(ctx context.Context, upload UploadFunc, progressCh chan<- phototag.ProgressEvent, doneCh chan<- uploadOutcome) tea.Cmd {
	return func() tea.Msg {
		result, err := upload(ctx, func(e phototag.ProgressEvent) {
			select {
			case progressCh <- e:
			case <-ctx.Done():
			}
		})
		close(progressCh)
		doneCh <- uploadOutcome{result: result, err: err}
		return nil
	}
}

// listenForProgress waits for the next progress event from the channel.
// When the channel closes, it reads the outcome from doneCh and returns
// UploadDoneMsg.
func listenForProgress(ch <-chan phototag.ProgressEvent, doneCh <-chan uploadOutcome) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			out := <-doneCh
			return UploadDoneMsg{Result: out.result, Err: out.err}
		}
		return ProgressMsg{Event: evt}
	}
}
