package status

import (
	"fmt"
	"io"

	"github.com/bnema/order-intake-bot/internal/application"
	tea "github.com/charmbracelet/bubbletea"
)

// snapshotMsg hands the fetched ledger to the model.
type snapshotMsg []application.OrderProgress

type ledgerModel struct {
	opts     RenderOptions
	styles   styles
	rendered string
}

func (m ledgerModel) Init() tea.Cmd {
	return nil
}

func (m ledgerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	snapshot, ok := msg.(snapshotMsg)
	if !ok {
		return m, nil
	}

	m.rendered = renderView(snapshot, m.opts, m.styles)
	return m, tea.Quit
}

func (m ledgerModel) View() string {
	return m.rendered
}

// Render lays out ledger progress per order with one bar per row.
func Render(progress []application.OrderProgress, opts RenderOptions) (string, error) {
	program := tea.NewProgram(
		ledgerModel{opts: opts, styles: newStyles()},
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutSignalHandler(),
	)

	go program.Send(snapshotMsg(progress))

	final, err := program.Run()
	if err != nil {
		return "", fmt.Errorf("render ledger view: %w", err)
	}

	view, ok := final.(ledgerModel)
	if !ok {
		return "", fmt.Errorf("render ledger view: unexpected model %T", final)
	}

	return view.View(), nil
}
