// Package correlator enforces at most one outstanding AI request per chat
// and detects non-responsiveness. Each armed exchange owns a watchdog timer;
// if no reply disarms it in time, a system/error message is injected into
// the transcript and the outbound message is kept as the regeneration
// candidate.
package correlator

import (
	"errors"
	"sync"
	"time"

	"github.com/cognify-ai/cognify/internal/model/chat"
	"github.com/cognify-ai/cognify/internal/notice"
)

// DefaultTimeout is how long a chat waits for an AI reply before the
// watchdog fires.
const DefaultTimeout = 45 * time.Second

// TimeoutMessage is the transcript-visible text of an injected error entry.
const TimeoutMessage = "Response timeout. Tap to Regenerate."

// ErrNoCandidate is returned by Regenerate when no outbound message is held
// for the chat.
var ErrNoCandidate = errors.New("no message to regenerate")

// Transcripts is the slice of the transcript store the correlator needs.
type Transcripts interface {
	Append(chatID string, message chat.Message)
	PurgeErrors(chatID string) int
}

// ResendFunc re-issues an outbound message through the normal send path.
// The conversation controller binds its Send here at wiring time.
type ResendFunc func(chatID, content string) error

// exchange tracks one pending (or timed-out) request. timer is nil once the
// watchdog has fired; the candidate stays so the user can regenerate.
type exchange struct {
	candidate chat.Message
	timer     Timer
	armedAt   time.Time
}

// Correlator owns the per-chat watchdog state machine:
// Idle -> Armed -> Resolved | TimedOut -> Idle, with TimedOut -> Armed only
// via Regenerate.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*exchange

	transcripts Transcripts
	notices     notice.Sink
	clock       Clock
	ids         *chat.IDClock
	timeout     time.Duration
	resend      ResendFunc
}

// New builds a correlator. A zero timeout falls back to DefaultTimeout and a
// nil clock to the system clock.
func New(transcripts Transcripts, notices notice.Sink, ids *chat.IDClock, clock Clock, timeout time.Duration) *Correlator {
	if clock == nil {
		clock = SystemClock()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Correlator{
		pending:     make(map[string]*exchange),
		transcripts: transcripts,
		notices:     notices,
		clock:       clock,
		ids:         ids,
		timeout:     timeout,
	}
}

// BindResend wires the controller's send path into Regenerate. Must be
// called once during assembly, before any Regenerate.
func (c *Correlator) BindResend(fn ResendFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resend = fn
}

// Arm starts (or restarts) the watchdog for a chat and records the outbound
// message as the regeneration candidate. A new send always supersedes: any
// existing timer for the chat is cancelled first. An empty chat id is a
// no-op.
func (c *Correlator) Arm(chatID string, outbound chat.Message) {
	if chatID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ex, ok := c.pending[chatID]; ok && ex.timer != nil {
		ex.timer.Stop()
	}

	ex := &exchange{candidate: outbound, armedAt: c.clock.Now()}
	c.pending[chatID] = ex
	ex.timer = c.clock.AfterFunc(c.timeout, func() { c.fire(chatID, ex) })
}

// Disarm cancels the watchdog and drops the candidate. Called on reply
// receipt and before a regeneration restart.
func (c *Correlator) Disarm(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ex, ok := c.pending[chatID]; ok {
		if ex.timer != nil {
			ex.timer.Stop()
		}
		delete(c.pending, chatID)
	}
}

// DisarmAll cancels every watchdog. Called at logout so no stray timer
// fires into a cleared store.
func (c *Correlator) DisarmAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for chatID, ex := range c.pending {
		if ex.timer != nil {
			ex.timer.Stop()
		}
		delete(c.pending, chatID)
	}
}

// fire runs when a watchdog expires. The candidate is kept so the user can
// retry; only the timer state changes.
func (c *Correlator) fire(chatID string, armed *exchange) {
	c.mu.Lock()
	ex, ok := c.pending[chatID]
	if !ok || ex != armed {
		// Superseded or disarmed between expiry and execution.
		c.mu.Unlock()
		return
	}
	ex.timer = nil
	c.mu.Unlock()

	c.transcripts.Append(chatID, chat.Message{
		ID:            c.ids.Next(),
		ChatID:        chatID,
		Content:       TimeoutMessage,
		Role:          chat.RoleSystem,
		Status:        chat.StatusError,
		CanRegenerate: true,
		CreatedAt:     c.clock.Now(),
	})
	if c.notices != nil {
		c.notices.Notify(notice.Error, TimeoutMessage)
	}
}

// Regenerate re-issues the held outbound message as a fresh send. Stale
// error entries are purged first and any existing timer disarmed; the
// resend re-enters the normal send path, arming a new exchange.
func (c *Correlator) Regenerate(chatID string) error {
	c.mu.Lock()
	ex, ok := c.pending[chatID]
	if !ok {
		c.mu.Unlock()
		return ErrNoCandidate
	}
	content := ex.candidate.Content
	if ex.timer != nil {
		ex.timer.Stop()
	}
	delete(c.pending, chatID)
	resend := c.resend
	c.mu.Unlock()

	c.transcripts.PurgeErrors(chatID)
	if resend == nil {
		return ErrNoCandidate
	}
	return resend(chatID, content)
}

// Candidate returns the regeneration candidate for the chat, if any.
func (c *Correlator) Candidate(chatID string) (chat.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ex, ok := c.pending[chatID]
	if !ok {
		return chat.Message{}, false
	}
	return ex.candidate, true
}

// Armed reports whether a watchdog timer is currently running for the chat.
func (c *Correlator) Armed(chatID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ex, ok := c.pending[chatID]
	return ok && ex.timer != nil
}
