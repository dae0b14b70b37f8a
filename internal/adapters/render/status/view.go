package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/order-intake-bot/internal/application"
	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

const defaultBarWidth = 24

type RenderOptions struct {
	// BarWidth is the number of cells inside the brackets.
	BarWidth int
	// OpenOnly hides rows with nothing outstanding.
	OpenOnly bool
}

func renderView(progress []application.OrderProgress, opts RenderOptions, s styles) string {
	open := 0
	for _, order := range progress {
		if !order.Complete() {
			open++
		}
	}

	lines := []string{
		s.title.Render("Order Ledger"),
		s.header.Render(fmt.Sprintf("orders: %d, open: %d", len(progress), open)),
	}

	if len(progress) == 0 {
		lines = append(lines, s.empty.Render("No ledger rows available."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, order := range progress {
		if opts.OpenOnly && order.Complete() {
			continue
		}
		lines = append(lines, s.section.Render(renderOrder(order, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderOrder(order application.OrderProgress, opts RenderOptions, s styles) string {
	title := s.order.Render(fmt.Sprintf("Order %s", order.Order))
	summary := s.meta.Render(fmt.Sprintf("%d/%d done", order.Done, order.Required))
	if order.Complete() {
		summary += " " + s.complete.Render("[complete]")
	}

	parts := []string{title + " " + summary}

	width := 0
	for _, row := range order.Rows {
		width = max(width, lipgloss.Width(variantLabel(row)))
	}

	for _, row := range order.Rows {
		if opts.OpenOnly && !row.Open() {
			continue
		}
		parts = append(parts, rowLine(row, width, opts, s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func rowLine(row domain.LedgerRow, labelWidth int, opts RenderOptions, s styles) string {
	barWidth := opts.BarWidth
	if barWidth <= 0 {
		barWidth = defaultBarWidth
	}

	label := s.variant.Width(labelWidth).Render(variantLabel(row))
	percent := donePercent(row)
	bar := renderProgressBar(percent, barWidth, s)
	counts := lipgloss.NewStyle().Foreground(interpolateColor(percent, 0, 100)).
		Render(fmt.Sprintf("%d/%d", row.Done, row.Required))

	left := s.meta.Render(fmt.Sprintf("%d left", row.Outstanding()))
	if !row.Open() {
		left = s.complete.Render("done")
	}

	parts := []string{"  ", label, " ", bar, " ", counts, " ", left}
	if last := lastCompletion(row); last != "" {
		parts = append(parts, " ", s.meta.Render(last))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func variantLabel(row domain.LedgerRow) string {
	return fmt.Sprintf("%s %s", row.Form, row.Size)
}

func lastCompletion(row domain.LedgerRow) string {
	who := strings.TrimSpace(row.LastCompletedBy)
	switch {
	case who == "" && row.LastCompletedDate.IsZero():
		return ""
	case row.LastCompletedDate.IsZero():
		return fmt.Sprintf("(%s)", who)
	case who == "":
		return fmt.Sprintf("(%s)", formatDate(row.LastCompletedDate))
	default:
		return fmt.Sprintf("(%s, %s)", who, formatDate(row.LastCompletedDate))
	}
}

func formatDate(value time.Time) string {
	return value.Format("02/01/2006")
}

func donePercent(row domain.LedgerRow) float64 {
	if row.Required <= 0 {
		return 100
	}

	return clampPercent(float64(row.Done) / float64(row.Required) * 100)
}

func renderProgressBar(donePercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(donePercent) / 100))
	filled = min(max(filled, 0), width)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// interpolateColor maps value onto the 240..255 greyscale ramp.
func interpolateColor(value, lo, hi float64) lipgloss.Color {
	if hi == lo {
		return lipgloss.Color("255")
	}

	normalized := (value - lo) / (hi - lo)
	normalized = min(max(normalized, 0), 1)

	return lipgloss.Color(fmt.Sprintf("%d", int(240+15*normalized)))
}
