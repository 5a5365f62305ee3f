package sink

import (
	"business-connect/contract"
	"business-connect/domain"
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"
)

// Terminal renders a conversation as lines of text and plays the input side.
// A terminal cannot rewrite earlier lines, so confirmations and rollbacks are
// printed as status lines referring to the provisional entry.
type Terminal struct {
	mu      sync.Mutex
	out     io.Writer
	self    contract.IdentityProvider
	colours bool
	draft   string
}

var (
	_ contract.Renderer = (*Terminal)(nil)
	_ contract.Composer = (*Terminal)(nil)
)

func NewTerminal(out io.Writer, self contract.IdentityProvider, colours bool) *Terminal {
	return &Terminal{out: out, self: self, colours: colours}
}

func (t *Terminal) OnHistory(key domain.ConversationKey, messages []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(color.FgGray, fmt.Sprintf("── %s · %d messages ──", key, len(messages)))
	for _, msg := range messages {
		t.message(msg, "")
	}
}

func (t *Terminal) OnProvisionalMessage(msg domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.message(msg, " …")
}

func (t *Terminal) OnConfirmedMessage(_ string, confirmed domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(color.FgGray, fmt.Sprintf("   ✓ delivered at %s", confirmed.CreatedAt.Local().Format("15:04:05")))
}

func (t *Terminal) OnProvisionalRollback(_ string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(color.FgRed, "   ✗ not sent")
}

func (t *Terminal) OnIncomingMessage(msg domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.message(msg, "")
}

func (t *Terminal) OnLoadFailed(key domain.ConversationKey, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(color.FgRed, fmt.Sprintf("Could not load %s: %v (type /retry)", key, err))
}

// RestoreInput keeps the text of a failed send. An empty line sends it again.
func (t *Terminal) RestoreInput(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.draft = text
	t.println(color.FgYellow, fmt.Sprintf("Draft kept: %q (press enter to resend)", text))
}

func (t *Terminal) NotifyFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(color.FgRed, err.Error())
}

// TakeDraft returns and clears the kept draft.
func (t *Terminal) TakeDraft() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	draft := t.draft
	t.draft = ""
	return draft
}

// Info prints a neutral status line.
func (t *Terminal) Info(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(color.FgGray, fmt.Sprintf(format, args...))
}

func (t *Terminal) message(msg domain.Message, suffix string) {
	colour := color.FgCyan
	if self, ok := t.self.CurrentUserID(); ok && self == msg.SenderID {
		colour = color.FgGreen
	}
	line := fmt.Sprintf("[%s] %s: %s", msg.CreatedAt.Local().Format("15:04:05"), msg.SenderID, msg.Text)
	t.println(colour, line+suffix)
}

func (t *Terminal) println(colour color.Color, line string) {
	if t.colours {
		line = colour.Render(line)
	}
	_, _ = fmt.Fprintln(t.out, line)
}
