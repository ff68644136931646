package conversation

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/wolfman30/whatsapp-ai-relay/internal/whatsapp"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

// ErrInboxClosed is returned by Submit after Shutdown has begun.
var ErrInboxClosed = errors.New("conversation: inbox closed")

const (
	defaultInboxWorkers = 4
	defaultInboxBuffer  = 256
)

// InboundHandler processes one normalized inbound message.
type InboundHandler interface {
	HandleInbound(ctx context.Context, userID, text string) Outcome
}

// Inbox decouples webhook acknowledgement from reply generation. Each worker
// owns a buffered lane and a sender always maps to the same lane, so one
// user's messages are handled in submission order.
type Inbox struct {
	handler InboundHandler
	logger  *logging.Logger

	mu     sync.RWMutex
	closed bool
	lanes  []chan whatsapp.InboundMessage

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// InboxOption customizes an Inbox.
type InboxOption func(*inboxConfig)

type inboxConfig struct {
	workers int
	buffer  int
}

// WithInboxWorkers sets the number of concurrent consumer goroutines.
func WithInboxWorkers(count int) InboxOption {
	return func(cfg *inboxConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithInboxBuffer sets the total queue capacity, split across the lanes.
func WithInboxBuffer(size int) InboxOption {
	return func(cfg *inboxConfig) {
		if size > 0 {
			cfg.buffer = size
		}
	}
}

// NewInbox creates an inbox feeding handler. Call Start before Submit.
func NewInbox(handler InboundHandler, logger *logging.Logger, opts ...InboxOption) *Inbox {
	if handler == nil {
		panic("conversation: inbound handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := inboxConfig{workers: defaultInboxWorkers, buffer: defaultInboxBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}
	perLane := cfg.buffer / cfg.workers
	if perLane < 1 {
		perLane = 1
	}
	lanes := make([]chan whatsapp.InboundMessage, cfg.workers)
	for n := range lanes {
		lanes[n] = make(chan whatsapp.InboundMessage, perLane)
	}
	return &Inbox{
		handler: handler,
		logger:  logger,
		lanes:   lanes,
	}
}

// Start launches the worker goroutines. Cancelling ctx aborts in-flight work.
func (i *Inbox) Start(ctx context.Context) {
	ctx, i.cancel = context.WithCancel(ctx)
	for n, lane := range i.lanes {
		i.wg.Add(1)
		go i.run(ctx, n+1, lane)
	}
}

// Submit enqueues msg, blocking until there is room or ctx is done.
func (i *Inbox) Submit(ctx context.Context, msg whatsapp.InboundMessage) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return ErrInboxClosed
	}

	select {
	case i.laneFor(msg.From) <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting messages and waits for queued ones to drain. If
// ctx expires first, in-flight work is cancelled and ctx's error returned.
func (i *Inbox) Shutdown(ctx context.Context) error {
	i.mu.Lock()
	if !i.closed {
		i.closed = true
		for _, lane := range i.lanes {
			close(lane)
		}
	}
	i.mu.Unlock()

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if i.cancel != nil {
			i.cancel()
		}
		<-done
		return ctx.Err()
	}
}

func (i *Inbox) laneFor(userID string) chan whatsapp.InboundMessage {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return i.lanes[h.Sum32()%uint32(len(i.lanes))]
}

func (i *Inbox) run(ctx context.Context, workerID int, lane <-chan whatsapp.InboundMessage) {
	defer i.wg.Done()
	i.logger.Debug("conversation inbox worker started", "worker_id", workerID)

	for msg := range lane {
		if ctx.Err() != nil {
			i.logger.Warn("conversation inbox dropping message after cancel",
				"worker_id", workerID,
				"user_id", msg.From,
				"message_id", msg.MessageID,
			)
			continue
		}
		outcome := i.handler.HandleInbound(ctx, msg.From, msg.Text)
		i.logger.Debug("conversation inbox processed message",
			"worker_id", workerID,
			"user_id", msg.From,
			"message_id", msg.MessageID,
			"outcome", outcome,
		)
	}
	i.logger.Debug("conversation inbox worker stopped", "worker_id", workerID)
}
