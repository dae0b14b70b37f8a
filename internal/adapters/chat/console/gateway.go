// Package console runs the intake conversation over a terminal: prompts are
// printed, choices are numbered and a typed value or number picks the choice.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/bnema/order-intake-bot/internal/ports"
)

type Gateway struct {
	mu      sync.Mutex
	out     io.Writer
	offered map[domain.ChatID][]ports.Choice
}

var _ ports.ChatGateway = (*Gateway)(nil)

func NewGateway(out io.Writer) *Gateway {
	return &Gateway{out: out, offered: map[domain.ChatID][]ports.Choice{}}
}

func (g *Gateway) SendPrompt(_ context.Context, chatID domain.ChatID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.offered, chatID)
	_, err := fmt.Fprintf(g.out, "%s\n", text)
	return err
}

func (g *Gateway) SendChoices(_ context.Context, chatID domain.ChatID, text string, choices []ports.Choice) error {
	if len(choices) == 0 {
		return fmt.Errorf("send choices to chat %d: %w", chatID, domain.ErrEmptyChoiceSet)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.offered[chatID] = choices

	var b strings.Builder
	b.WriteString(text)
	b.WriteByte('\n')
	for i, choice := range choices {
		fmt.Fprintf(&b, "  %d) %s\n", i+1, choice.Label)
	}

	_, err := io.WriteString(g.out, b.String())
	return err
}

// Event turns a typed line into an inbound event. A line equal to one of the
// last offered values is pressed as is; otherwise a number selects the offered
// choice at that position.
func (g *Gateway) Event(chatID domain.ChatID, line string) domain.InboundEvent {
	line = strings.TrimSpace(line)

	g.mu.Lock()
	offered := g.offered[chatID]
	g.mu.Unlock()

	for _, choice := range offered {
		if choice.Value == line {
			return domain.InboundEvent{ChatID: chatID, Kind: domain.EventButton, Data: line}
		}
	}

	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(offered) {
		return domain.InboundEvent{ChatID: chatID, Kind: domain.EventButton, Data: offered[n-1].Value}
	}

	return domain.InboundEvent{ChatID: chatID, Kind: domain.EventText, Data: line}
}

// Run feeds lines from in to handler until in is exhausted or ctx is done.
func (g *Gateway) Run(ctx context.Context, in io.Reader, chatID domain.ChatID, handler ports.EventHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read console input: %w", err)
					}
				default:
				}
				return nil
			}
			if err := handler.HandleEvent(ctx, g.Event(chatID, line)); err != nil {
				return err
			}
		}
	}
}
