package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/application/services"
	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// maxOutputLines is how much command output the progress view keeps
const maxOutputLines = 8

// stepState is the display state of one step
type stepState int

const (
	stepRunning stepState = iota
	stepSucceeded
	stepFailed
	stepOptionalFailed
)

type stepRow struct {
	name     string
	optional bool
	state    stepState
	started  time.Time
	duration time.Duration
	message  string
}

// stepEventMsg carries a pipeline event into the program
type stepEventMsg struct {
	event pipeline.Event
}

// outputLineMsg is one line of external command output
type outputLineMsg string

// runDoneMsg is sent when the pipeline returned
type runDoneMsg struct{}

// tickMsg refreshes the elapsed time of the running step
type tickMsg time.Time

// progressModel holds the state for the live progress view
type progressModel struct {
	title      string
	styles     styles
	rows       []stepRow
	total      int
	output     []string
	cancel     context.CancelFunc
	cancelling bool
	done       bool
	now        func() time.Time
	width      int
}

func newProgressModel(title string, st styles, cancel context.CancelFunc) progressModel {
	return progressModel{
		title:  title,
		styles: st,
		cancel: cancel,
		now:    time.Now,
	}
}

// Init implements the Bubble Tea init method
func (m progressModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements the Bubble Tea update method
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// The run is cancelled, not abandoned: the view closes when
			// the pipeline returns
			if !m.cancelling && m.cancel != nil {
				m.cancel()
			}
			m.cancelling = true
		}
		return m, nil

	case stepEventMsg:
		m.apply(msg.event)
		return m, nil

	case outputLineMsg:
		m.output = append(m.output, string(msg))
		if len(m.output) > maxOutputLines {
			m.output = m.output[len(m.output)-maxOutputLines:]
		}
		return m, nil

	case runDoneMsg:
		m.done = true
		return m, tea.Quit

	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	}

	return m, nil
}

func (m *progressModel) apply(event pipeline.Event) {
	m.total = event.Total

	switch event.Type {
	case pipeline.EventStepStarted:
		m.rows = append(m.rows, stepRow{
			name:     event.Step,
			optional: event.Optional,
			state:    stepRunning,
			started:  m.now(),
		})

	case pipeline.EventStepFinished:
		if len(m.rows) == 0 || event.Result == nil {
			return
		}
		row := &m.rows[len(m.rows)-1]
		row.duration = event.Result.Duration
		row.message = event.Result.Message
		switch {
		case event.Result.Succeeded:
			row.state = stepSucceeded
		case event.Result.Optional:
			row.state = stepOptionalFailed
		default:
			row.state = stepFailed
		}
	}
}

// View implements the Bubble Tea view method
func (m progressModel) View() string {
	st := m.styles

	status := fmt.Sprintf("%d/%d", m.finished(), m.total)
	if m.cancelling && !m.done {
		status += "  " + st.warning.Render("cancelling...")
	}
	lines := []string{st.title.Render(m.title) + "  " + st.muted.Render(status)}

	for _, row := range m.rows {
		lines = append(lines, "  "+m.renderRow(row))
	}

	if len(m.output) > 0 && !m.done {
		lines = append(lines, "")
		for _, line := range m.output {
			lines = append(lines, st.muted.Render("  │ "+truncateString(line, m.outputWidth())))
		}
	}

	if !m.done {
		lines = append(lines, "", st.muted.Render("[q] Cancel"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}

func (m progressModel) renderRow(row stepRow) string {
	st := m.styles
	name := st.stepName.Render(row.name)

	switch row.state {
	case stepRunning:
		elapsed := m.now().Sub(row.started).Round(time.Second)
		return fmt.Sprintf("%s %s %s", st.title.Render("…"), name, st.muted.Render(elapsed.String()))
	case stepSucceeded:
		return fmt.Sprintf("%s %s %s", st.ok.Render("✓"), name, st.muted.Render(row.duration.Round(time.Millisecond).String()))
	case stepOptionalFailed:
		return fmt.Sprintf("%s %s %s", st.warning.Render("!"), name, st.warning.Render(row.message))
	default:
		return fmt.Sprintf("%s %s %s", st.failed.Render("✗"), name, st.failed.Render(row.message))
	}
}

func (m progressModel) finished() int {
	n := 0
	for _, row := range m.rows {
		if row.state != stepRunning {
			n++
		}
	}
	return n
}

func (m progressModel) outputWidth() int {
	if m.width <= 10 {
		return 100
	}
	return m.width - 6
}

// lineWriter turns written bytes into outputLineMsg values. Partial lines
// are held until their newline arrives.
type lineWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	send func(tea.Msg)
}

func newLineWriter(send func(tea.Msg)) *lineWriter {
	return &lineWriter{send: send}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// No newline yet: keep the remainder for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.send(outputLineMsg(strings.TrimRight(line, "\r\n")))
	}
	return len(p), nil
}

// Flush sends any pending partial line
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.send(outputLineMsg(w.buf.String()))
		w.buf.Reset()
	}
}

// runFunc starts a pipeline run with extra event listeners
type runFunc func(ctx context.Context, listeners ...pipeline.Listener) (*services.RunOutcome, error)

// runWithProgress runs the pipeline in a goroutine while a Bubble Tea
// program renders its events. Command output is shown in the view and log
// output is limited to errors until the view closes.
func runWithProgress(ctx context.Context, c *CLIContainer, title string, st styles, in io.Reader, out io.Writer, run runFunc) (*services.RunOutcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(
		newProgressModel(title, st, cancel),
		tea.WithInput(in),
		tea.WithOutput(out),
	)

	lines := newLineWriter(program.Send)
	if c.Output != nil {
		c.Output.SetOutput(lines, lines)
	}

	if c.Logger != nil {
		previous := c.Logger.GetLogLevel()
		c.Logger.SetLogLevel(ports.LogLevelError)
		defer c.Logger.SetLogLevel(previous)
	}

	type result struct {
		outcome *services.RunOutcome
		err     error
	}
	results := make(chan result, 1)

	go func() {
		outcome, err := run(ctx, func(event pipeline.Event) {
			program.Send(stepEventMsg{event: event})
		})
		lines.Flush()
		results <- result{outcome: outcome, err: err}
		program.Send(runDoneMsg{})
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-results
		return nil, fmt.Errorf("progress view failed: %w", err)
	}

	res := <-results
	return res.outcome, res.err
}
