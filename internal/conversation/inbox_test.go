package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/whatsapp-ai-relay/internal/aiconfig"
	"github.com/wolfman30/whatsapp-ai-relay/internal/realtime"
	"github.com/wolfman30/whatsapp-ai-relay/internal/session"
	"github.com/wolfman30/whatsapp-ai-relay/internal/whatsapp"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

type recordingHandler struct {
	mu    sync.Mutex
	seen  []string
	delay time.Duration
}

func (h *recordingHandler) HandleInbound(ctx context.Context, userID, text string) Outcome {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, userID+":"+text)
	return OutcomeReplied
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func TestInboxDeliversSubmittedMessages(t *testing.T) {
	handler := &recordingHandler{}
	inbox := NewInbox(handler, logging.New("error"), WithInboxWorkers(2), WithInboxBuffer(8))
	inbox.Start(context.Background())

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, inbox.Submit(context.Background(), whatsapp.InboundMessage{From: "911234", Text: text}))
	}

	require.NoError(t, inbox.Shutdown(context.Background()))
	assert.ElementsMatch(t, []string{"911234:a", "911234:b", "911234:c"}, handler.seen)
}

func TestInboxSubmitAfterShutdown(t *testing.T) {
	inbox := NewInbox(&recordingHandler{}, logging.New("error"))
	inbox.Start(context.Background())
	require.NoError(t, inbox.Shutdown(context.Background()))

	err := inbox.Submit(context.Background(), whatsapp.InboundMessage{From: "u", Text: "late"})
	assert.ErrorIs(t, err, ErrInboxClosed)

	// Shutdown is idempotent.
	assert.NoError(t, inbox.Shutdown(context.Background()))
}

func TestInboxSubmitRespectsContextWhenFull(t *testing.T) {
	inbox := NewInbox(&recordingHandler{}, logging.New("error"), WithInboxBuffer(1))

	require.NoError(t, inbox.Submit(context.Background(), whatsapp.InboundMessage{From: "u", Text: "1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := inbox.Submit(ctx, whatsapp.InboundMessage{From: "u", Text: "2"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInboxShutdownTimeout(t *testing.T) {
	handler := &recordingHandler{delay: 200 * time.Millisecond}
	inbox := NewInbox(handler, logging.New("error"), WithInboxWorkers(1), WithInboxBuffer(4))
	inbox.Start(context.Background())

	for i := 0; i < 3; i++ {
		require.NoError(t, inbox.Submit(context.Background(), whatsapp.InboundMessage{From: "u", Text: "x"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := inbox.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// Queued messages are dropped once the workers are cancelled.
	assert.Less(t, handler.count(), 3)
}

func TestNewInboxRequiresHandler(t *testing.T) {
	assert.Panics(t, func() { NewInbox(nil, nil) })
}

type slowFirstHandler struct {
	recordingHandler
	once sync.Once
}

func (h *slowFirstHandler) HandleInbound(ctx context.Context, userID, text string) Outcome {
	h.once.Do(func() { time.Sleep(20 * time.Millisecond) })
	return h.recordingHandler.HandleInbound(ctx, userID, text)
}

func TestInboxKeepsPerUserOrder(t *testing.T) {
	handler := &slowFirstHandler{}
	inbox := NewInbox(handler, logging.New("error"), WithInboxWorkers(4), WithInboxBuffer(16))
	inbox.Start(context.Background())

	require.NoError(t, inbox.Submit(context.Background(), whatsapp.InboundMessage{From: "u", Text: "first"}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, inbox.Submit(context.Background(), whatsapp.InboundMessage{From: "u", Text: "second"}))
	require.NoError(t, inbox.Submit(context.Background(), whatsapp.InboundMessage{From: "u", Text: "third"}))

	require.NoError(t, inbox.Shutdown(context.Background()))
	assert.Equal(t, []string{"u:first", "u:second", "u:third"}, handler.seen)
}

func TestInboxSameUserAlwaysSharesLane(t *testing.T) {
	inbox := NewInbox(&recordingHandler{}, logging.New("error"), WithInboxWorkers(8))
	require.Len(t, inbox.lanes, 8)
	for _, user := range []string{"911234", "u", "447700900000"} {
		assert.Equal(t, inbox.laneFor(user), inbox.laneFor(user))
	}
}

type slowFirstNotifier struct {
	recordingNotifier
	once sync.Once
}

func (n *slowFirstNotifier) Publish(msg realtime.Message) bool {
	n.once.Do(func() { time.Sleep(20 * time.Millisecond) })
	return n.recordingNotifier.Publish(msg)
}

func TestInboxRelayHistoryFollowsArrivalOrder(t *testing.T) {
	holder := aiconfig.NewHolder()
	holder.Assign(aiconfig.Assignment{CompletionKey: "gemini-key", OutboundToken: "wa-token"})
	sessions := session.NewMemoryStore()
	relay := NewRelay(holder, sessions, &stubLLMClient{reply: "ok"}, &stubSender{}, &slowFirstNotifier{}, logging.New("error"))

	inbox := NewInbox(relay, logging.New("error"), WithInboxWorkers(4))
	inbox.Start(context.Background())

	require.NoError(t, inbox.Submit(context.Background(), whatsapp.InboundMessage{From: "u", Text: "first"}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, inbox.Submit(context.Background(), whatsapp.InboundMessage{From: "u", Text: "second"}))
	require.NoError(t, inbox.Shutdown(context.Background()))

	var texts []string
	for _, turn := range sessions.History("u") {
		texts = append(texts, turn.Text)
	}
	assert.Equal(t, []string{"first", "ok", "second", "ok"}, texts)
}
