package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type fetchResultMsg[T any] struct {
	value T
	err   error
}

// fetchModel spins until the fetch command reports back.
type fetchModel[T any] struct {
	spinner spinner.Model
	label   string
	started time.Time
	fetch   tea.Cmd
	result  *fetchResultMsg[T]
}

func (m fetchModel[T]) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch)
}

func (m fetchModel[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case fetchResultMsg[T]:
		m.result = &msg
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m fetchModel[T]) View() string {
	if m.result != nil {
		return ""
	}

	elapsed := time.Since(m.started).Truncate(100 * time.Millisecond)
	return fmt.Sprintf("%s %s %s", m.spinner.View(), m.label, labelStyle.Render(elapsed.String()))
}

var labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

// fetchWithSpinner runs fetch while a spinner is drawn on output.
func fetchWithSpinner[T any](ctx context.Context, output io.Writer, label string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	model := fetchModel[T]{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.MiniDot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("42"))),
		),
		label:   label,
		started: time.Now(),
		fetch: func() tea.Msg {
			value, err := fetch(ctx)
			return fetchResultMsg[T]{value: value, err: err}
		},
	}

	final, err := tea.NewProgram(model,
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	).Run()
	if err != nil {
		return zero, fmt.Errorf("run spinner: %w", err)
	}

	done, ok := final.(fetchModel[T])
	if !ok || done.result == nil {
		return zero, errors.New("fetch interrupted")
	}

	return done.result.value, done.result.err
}
