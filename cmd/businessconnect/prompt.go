package main

import (
	"bufio"
	"business-connect/domain"
	"business-connect/runtime"
	"business-connect/sink"
	"context"
	"io"
	"strings"
)

// prompt reads commands and messages line by line.
type prompt struct {
	engine   *runtime.Engine
	terminal *sink.Terminal
	conv     *runtime.Conversation
}

func newPrompt(engine *runtime.Engine, terminal *sink.Terminal) *prompt {
	return &prompt{engine: engine, terminal: terminal}
}

func (p *prompt) loop(ctx context.Context, in io.Reader) {
	lines := make(chan string)
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
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || !p.handle(ctx, line) {
				return
			}
		}
	}
}

// handle runs one line and reports whether to keep reading.
func (p *prompt) handle(ctx context.Context, line string) bool {
	command, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch command {
	case "/quit":
		return false
	case "/open":
		peer := strings.TrimSpace(arg)
		if peer == "" {
			p.terminal.Info("Usage: /open <peer>")
			return true
		}
		conv, err := p.engine.Open(ctx, domain.UserID(peer))
		if err != nil {
			p.terminal.NotifyFailure(err)
			return true
		}
		p.conv = conv
	case "/close":
		if p.conv != nil {
			_ = p.conv.Close(ctx)
			p.terminal.Info("Closed %s", p.conv.Key)
			p.conv = nil
		}
	case "/retry":
		if p.conv == nil {
			p.terminal.Info("No conversation open")
			return true
		}
		if err := p.conv.Retry(ctx); err != nil {
			p.terminal.NotifyFailure(err)
		}
	case "/status":
		if p.conv == nil {
			p.terminal.Info("No conversation open")
			return true
		}
		p.terminal.Info("%s: %s, delivery %s", p.conv.Key, p.conv.State(), p.conv.Delivery())
	case "":
		if draft := p.terminal.TakeDraft(); draft != "" {
			p.send(ctx, draft)
		}
	default:
		p.send(ctx, line)
	}
	return true
}

func (p *prompt) send(ctx context.Context, text string) {
	if p.conv == nil {
		p.terminal.Info("Open a conversation first: /open <peer>")
		return
	}
	if _, err := p.conv.Send(ctx, text); err != nil {
		p.terminal.NotifyFailure(err)
	}
}
