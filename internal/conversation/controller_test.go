package conversation_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cognify-ai/cognify/internal/channel"
	"github.com/cognify-ai/cognify/internal/conversation"
	"github.com/cognify-ai/cognify/internal/correlator"
	"github.com/cognify-ai/cognify/internal/directory"
	"github.com/cognify-ai/cognify/internal/model/chat"
	"github.com/cognify-ai/cognify/internal/notice"
	"github.com/cognify-ai/cognify/internal/transcript"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) correlator.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	if t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) fire(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	var target *fakeTimer
	for i := len(c.timers) - 1; i >= 0; i-- {
		if !c.timers[i].stopped && !c.timers[i].fired {
			target = c.timers[i]
			break
		}
	}
	c.mu.Unlock()
	if target == nil {
		t.Fatal("no live timer to fire")
	}
	target.fired = true
	target.f()
}

type fakeChannel struct {
	connected bool
	emitErr   error
	emitted   []channel.Envelope
	closed    bool
}

func (f *fakeChannel) Connected() bool { return f.connected }

func (f *fakeChannel) Emit(ev channel.Envelope) error {
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, ev)
	return nil
}

func (f *fakeChannel) Close() { f.closed = true }

type fakeStorage struct {
	chats    []chat.Chat
	messages map[string][]chat.Message
	renames  map[string]string
	deleted  []string

	listErr   error
	renameErr error
	deleteErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		messages: make(map[string][]chat.Message),
		renames:  make(map[string]string),
	}
}

func (f *fakeStorage) ListChats(_ context.Context, _ string) ([]chat.Chat, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.chats, nil
}

func (f *fakeStorage) CreateChat(_ context.Context, _ string, title string) (chat.Chat, error) {
	created := chat.Chat{ID: "srv-1", Title: title}
	f.chats = append(f.chats, created)
	return created, nil
}

func (f *fakeStorage) DeleteChat(_ context.Context, chatID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, chatID)
	return nil
}

func (f *fakeStorage) RenameChat(_ context.Context, chatID, title string) error {
	if f.renameErr != nil {
		return f.renameErr
	}
	f.renames[chatID] = title
	return nil
}

func (f *fakeStorage) ListMessages(_ context.Context, chatID string) ([]chat.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.messages[chatID], nil
}

type capturedNotices struct {
	mu       sync.Mutex
	messages []string
}

func (n *capturedNotices) Notify(_ notice.Level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *capturedNotices) contains(want string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.messages {
		if m == want {
			return true
		}
	}
	return false
}

type fixture struct {
	ctrl        *conversation.Controller
	transcripts *transcript.Store
	chats       *directory.Directory
	watchdog    *correlator.Correlator
	ch          *fakeChannel
	store       *fakeStorage
	notices     *capturedNotices
	clock       *fakeClock
}

func newFixture() *fixture {
	clock := newFakeClock()
	transcripts := transcript.NewStore()
	chats := directory.New()
	notices := &capturedNotices{}
	ids := chat.NewIDClockAt(clock.Now)
	watchdog := correlator.New(transcripts, notices, ids, clock, correlator.DefaultTimeout)
	ch := &fakeChannel{connected: true}
	store := newFakeStorage()

	ctrl := conversation.New(conversation.Config{
		Transcripts: transcripts,
		Chats:       chats,
		Watchdog:    watchdog,
		Channel:     ch,
		Store:       store,
		Notices:     notices,
		IDs:         ids,
		Now:         clock.Now,
		UserID:      "u1",
	})

	return &fixture{
		ctrl:        ctrl,
		transcripts: transcripts,
		chats:       chats,
		watchdog:    watchdog,
		ch:          ch,
		store:       store,
		notices:     notices,
		clock:       clock,
	}
}

func TestSendRejectsEmptyContent(t *testing.T) {
	f := newFixture()

	if err := f.ctrl.Send("c1", "   \n\t "); !errors.Is(err, conversation.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if f.transcripts.Len("c1") != 0 {
		t.Fatal("rejected send must not touch the transcript")
	}
	if len(f.ch.emitted) != 0 {
		t.Fatal("rejected send must not emit")
	}
}

func TestSendRequiresConnection(t *testing.T) {
	f := newFixture()
	f.ch.connected = false

	if err := f.ctrl.Send("c1", "hello"); !errors.Is(err, conversation.ErrNoChannel) {
		t.Fatalf("expected ErrNoChannel, got %v", err)
	}
	if f.transcripts.Len("c1") != 0 {
		t.Fatal("offline send must not append an optimistic message")
	}
	if f.watchdog.Armed("c1") {
		t.Fatal("offline send must not arm the watchdog")
	}
	if len(f.notices.messages) == 0 {
		t.Fatal("offline send should surface a notice")
	}
}

func TestSendAppendsOptimisticallyAndArms(t *testing.T) {
	f := newFixture()
	f.chats.Add(chat.Chat{ID: "c1", Title: chat.DefaultTitle})

	if err := f.ctrl.Send("c1", "  hello there  "); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	got := f.transcripts.Messages("c1")
	if len(got) != 1 {
		t.Fatalf("expected 1 optimistic message, got %d", len(got))
	}
	if got[0].Role != chat.RoleUser || got[0].Content != "hello there" {
		t.Fatalf("unexpected optimistic message %+v", got[0])
	}
	if !f.watchdog.Armed("c1") {
		t.Fatal("send must arm the watchdog")
	}
	if len(f.ch.emitted) != 1 {
		t.Fatalf("expected 1 emit, got %d", len(f.ch.emitted))
	}
	ev := f.ch.emitted[0]
	if ev.Event != channel.EventAIMessage || ev.Chat != "c1" || ev.Content != "hello there" {
		t.Fatalf("unexpected envelope %+v", ev)
	}
}

func TestSendEmitFailureKeepsOptimisticMessage(t *testing.T) {
	f := newFixture()
	f.ch.emitErr = errors.New("pipe broken")

	if err := f.ctrl.Send("c1", "hello"); err != nil {
		t.Fatalf("emit failure must not fail the send: %v", err)
	}

	if f.transcripts.Len("c1") != 1 {
		t.Fatal("optimistic message must survive the emit failure")
	}
	if !f.watchdog.Armed("c1") {
		t.Fatal("watchdog stays armed so the timeout path can offer regeneration")
	}
	if !f.notices.contains("Failed to send message.") {
		t.Fatalf("expected a send-failure notice, got %v", f.notices.messages)
	}
}

func TestReplyResolvesExchange(t *testing.T) {
	f := newFixture()
	f.chats.Add(chat.Chat{ID: "c1", Title: "already titled"})

	if err := f.ctrl.Send("c1", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	f.ctrl.HandleEvent(channel.Envelope{Event: channel.EventAIResponse, Chat: "c1", Content: "hi!"})

	got := f.transcripts.Messages("c1")
	if len(got) != 2 {
		t.Fatalf("expected user+model messages, got %d", len(got))
	}
	if got[1].Role != chat.RoleModel || got[1].Content != "hi!" {
		t.Fatalf("unexpected reply %+v", got[1])
	}
	if f.watchdog.Armed("c1") {
		t.Fatal("reply must disarm the watchdog")
	}
	if _, ok := f.watchdog.Candidate("c1"); ok {
		t.Fatal("reply must drop the regeneration candidate")
	}
}

func TestReplyLandsInNonCurrentChat(t *testing.T) {
	f := newFixture()
	f.chats.Add(chat.Chat{ID: "c1", Title: "one"})
	f.chats.Add(chat.Chat{ID: "c2", Title: "two"})
	f.chats.SetCurrent("c2")

	if err := f.ctrl.Send("c1", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	f.ctrl.OnAIReply("c1", "hi!")

	if f.transcripts.Len("c1") != 2 {
		t.Fatal("reply must land in its own chat, not the current one")
	}
	if f.transcripts.Len("c2") != 0 {
		t.Fatal("current chat must stay untouched")
	}
}

func TestTimeoutThenRegenerate(t *testing.T) {
	f := newFixture()
	f.chats.Add(chat.Chat{ID: "c1", Title: "titled"})

	if err := f.ctrl.Send("c1", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	f.clock.fire(t)

	got := f.transcripts.Messages("c1")
	if len(got) != 2 {
		t.Fatalf("expected user message + error entry, got %d", len(got))
	}
	if !got[1].IsError() || !got[1].CanRegenerate {
		t.Fatalf("expected regenerate-capable error entry, got %+v", got[1])
	}

	if err := f.ctrl.Regenerate("c1"); err != nil {
		t.Fatalf("regenerate failed: %v", err)
	}

	got = f.transcripts.Messages("c1")
	if len(got) != 2 {
		t.Fatalf("expected original + re-sent user message, got %d", len(got))
	}
	for _, m := range got {
		if m.IsError() {
			t.Fatal("regenerate must purge the error entry")
		}
		if m.Role != chat.RoleUser || m.Content != "hello" {
			t.Fatalf("unexpected transcript entry %+v", m)
		}
	}
	if !f.watchdog.Armed("c1") {
		t.Fatal("regenerate must arm a fresh watchdog")
	}
	if len(f.ch.emitted) != 2 {
		t.Fatalf("expected the message emitted twice, got %d", len(f.ch.emitted))
	}
}

func TestLateReplyAfterTimeoutStillLands(t *testing.T) {
	f := newFixture()
	f.chats.Add(chat.Chat{ID: "c1", Title: "titled"})

	if err := f.ctrl.Send("c1", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	f.clock.fire(t)

	f.ctrl.OnAIReply("c1", "sorry, slow day")

	got := f.transcripts.Messages("c1")
	if len(got) != 2 {
		t.Fatalf("expected user message + late reply, got %d", len(got))
	}
	if got[1].Role != chat.RoleModel {
		t.Fatalf("expected the late reply appended, got %+v", got[1])
	}
	for _, m := range got {
		if m.IsError() {
			t.Fatal("late reply must purge the injected error")
		}
	}
}

func TestRegenerateWithoutCandidateNotifies(t *testing.T) {
	f := newFixture()

	if err := f.ctrl.Regenerate("c1"); !errors.Is(err, correlator.ErrNoCandidate) {
		t.Fatalf("expected ErrNoCandidate, got %v", err)
	}
	if !f.notices.contains("No message to regenerate") {
		t.Fatalf("expected a notice, got %v", f.notices.messages)
	}
}

func TestTitleDerivedFromFirstExchange(t *testing.T) {
	f := newFixture()
	f.chats.Add(chat.Chat{ID: "c1", Title: chat.DefaultTitle})

	long := strings.Repeat("abcde", 9) // 45 chars
	if err := f.ctrl.Send("c1", long); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	f.ctrl.OnAIReply("c1", "hello!")

	want := long[:30] + "..."
	got, _ := f.chats.Get("c1")
	if got.Title != want {
		t.Fatalf("expected derived title %q, got %q", want, got.Title)
	}
	if f.store.renames["c1"] != want {
		t.Fatalf("derived title not persisted, renames=%v", f.store.renames)
	}
}

func TestShortTitleKeptVerbatim(t *testing.T) {
	f := newFixture()
	f.chats.Add(chat.Chat{ID: "c1", Title: chat.DefaultTitle})

	if err := f.ctrl.Send("c1", "short question"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	f.ctrl.OnAIReply("c1", "short answer")

	got, _ := f.chats.Get("c1")
	if got.Title != "short question" {
		t.Fatalf("expected verbatim title, got %q", got.Title)
	}
}

func TestTitleNotDerivedTwice(t *testing.T) {
	f := newFixture()
	f.chats.Add(chat.Chat{ID: "c1", Title: chat.DefaultTitle})

	if err := f.ctrl.Send("c1", "first message"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	f.ctrl.OnAIReply("c1", "first reply")
	if err := f.ctrl.Send("c1", "second message"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	f.ctrl.OnAIReply("c1", "second reply")

	got, _ := f.chats.Get("c1")
	if got.Title != "first message" {
		t.Fatalf("title must stick to the first exchange, got %q", got.Title)
	}
}

func TestTitleNotDerivedForRenamedChat(t *testing.T) {
	f := newFixture()
	f.chats.Add(chat.Chat{ID: "c1", Title: "My custom title"})

	if err := f.ctrl.Send("c1", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	f.ctrl.OnAIReply("c1", "hi!")

	got, _ := f.chats.Get("c1")
	if got.Title != "My custom title" {
		t.Fatalf("explicit title must stand, got %q", got.Title)
	}
}

func TestTitlePersistFailureIsNonFatal(t *testing.T) {
	f := newFixture()
	f.chats.Add(chat.Chat{ID: "c1", Title: chat.DefaultTitle})
	f.store.renameErr = errors.New("server unreachable")

	if err := f.ctrl.Send("c1", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	f.ctrl.OnAIReply("c1", "hi!")

	got, _ := f.chats.Get("c1")
	if got.Title != "hello" {
		t.Fatalf("local rename must stand despite persistence failure, got %q", got.Title)
	}
}

func TestConnectivityErrorNotices(t *testing.T) {
	f := newFixture()

	f.ctrl.OnConnectivityError(channel.ErrAuthRejected)
	if !f.notices.contains("Real-time connection failed. Please refresh and login again.") {
		t.Fatalf("expected re-login notice, got %v", f.notices.messages)
	}

	f.ctrl.OnConnectivityError(errors.New("dial tcp: refused"))
	if !f.notices.contains("Real-time connection lost.") {
		t.Fatalf("expected connection-lost notice, got %v", f.notices.messages)
	}
}

func TestNewChatBecomesCurrent(t *testing.T) {
	f := newFixture()

	created, err := f.ctrl.NewChat(context.Background())
	if err != nil {
		t.Fatalf("new chat failed: %v", err)
	}
	if created.Title != chat.DefaultTitle {
		t.Fatalf("expected placeholder title, got %q", created.Title)
	}
	if f.chats.Current() != created.ID {
		t.Fatal("new chat must become current")
	}
}

func TestOpenChatLoadsHistory(t *testing.T) {
	f := newFixture()
	f.chats.Add(chat.Chat{ID: "c1", Title: "titled"})
	f.store.messages["c1"] = []chat.Message{
		{ID: "1", ChatID: "c1", Content: "hello", Role: chat.RoleUser},
		{ID: "2", ChatID: "c1", Content: "hi!", Role: chat.RoleModel},
	}

	if err := f.ctrl.OpenChat(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if f.chats.Current() != "c1" {
		t.Fatal("opened chat must become current")
	}
	if f.transcripts.Len("c1") != 2 {
		t.Fatalf("expected loaded history, got %d messages", f.transcripts.Len("c1"))
	}
	if f.transcripts.Loading("c1") {
		t.Fatal("loading flag must be cleared after load")
	}
}

func TestDeleteChatClearsEverywhere(t *testing.T) {
	f := newFixture()
	f.chats.Add(chat.Chat{ID: "c1", Title: "titled"})
	f.chats.SetCurrent("c1")
	if err := f.ctrl.Send("c1", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if err := f.ctrl.DeleteChat(context.Background(), "c1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if f.transcripts.Len("c1") != 0 {
		t.Fatal("delete must clear the transcript")
	}
	if _, ok := f.chats.Get("c1"); ok {
		t.Fatal("delete must remove the directory entry")
	}
	if f.chats.Current() != "" {
		t.Fatal("delete must clear the current selection")
	}
	if f.watchdog.Armed("c1") {
		t.Fatal("delete must disarm the watchdog")
	}
	if len(f.store.deleted) != 1 || f.store.deleted[0] != "c1" {
		t.Fatalf("unexpected storage deletes %v", f.store.deleted)
	}
}

func TestCloseDisarmsBeforeChannelTeardown(t *testing.T) {
	f := newFixture()
	if err := f.ctrl.Send("c1", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	f.ctrl.Close()

	if f.watchdog.Armed("c1") {
		t.Fatal("close must cancel pending watchdogs")
	}
	if !f.ch.closed {
		t.Fatal("close must tear down the channel")
	}
}
