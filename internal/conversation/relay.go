package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/whatsapp-ai-relay/internal/aiconfig"
	"github.com/wolfman30/whatsapp-ai-relay/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-ai-relay/internal/realtime"
	"github.com/wolfman30/whatsapp-ai-relay/internal/session"
	"github.com/wolfman30/whatsapp-ai-relay/internal/whatsapp"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

var relayTracer = otel.Tracer("whatsapp-ai-relay.internal.conversation.relay")

// Outcome is the terminal state of one inbound message.
type Outcome string

const (
	OutcomeReplied          Outcome = "replied"
	OutcomeNotConfigured    Outcome = "not_configured"
	OutcomeCompletionFailed Outcome = "completion_failed"
	OutcomeEmptyCompletion  Outcome = "empty_completion"
	OutcomeSendFailed       Outcome = "send_failed"
)

// ConfigSource exposes the currently assigned AI configuration.
type ConfigSource interface {
	Current() aiconfig.Snapshot
}

// Sender delivers a text reply to a WhatsApp user.
type Sender interface {
	SendText(ctx context.Context, token, to, body string) (*whatsapp.SendResponse, error)
}

// Broadcaster mirrors traffic to the realtime observer.
type Broadcaster interface {
	Publish(msg realtime.Message) bool
}

// Relay turns inbound user messages into AI replies. Collaborator failures
// end the invocation with a logged Outcome and never propagate.
type Relay struct {
	config   ConfigSource
	sessions session.Store
	llm      LLMClient
	sender   Sender
	notifier Broadcaster
	logger   *logging.Logger
	metrics  *metrics.RelayMetrics

	baseline string
	label    string
	model    string
	timeout  time.Duration
	locks    *userLocks
}

// RelayOption customizes a Relay.
type RelayOption func(*Relay)

// WithBaselinePersona overrides the persona that leads every system instruction.
func WithBaselinePersona(persona string) RelayOption {
	return func(r *Relay) {
		if strings.TrimSpace(persona) != "" {
			r.baseline = persona
		}
	}
}

// WithAssistantLabel sets the sender name used on outbound realtime events.
func WithAssistantLabel(label string) RelayOption {
	return func(r *Relay) {
		if strings.TrimSpace(label) != "" {
			r.label = label
		}
	}
}

// WithModel selects the completion model.
func WithModel(model string) RelayOption {
	return func(r *Relay) {
		r.model = strings.TrimSpace(model)
	}
}

// WithCompletionTimeout bounds each AI call. Zero leaves it unbounded.
func WithCompletionTimeout(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d >= 0 {
			r.timeout = d
		}
	}
}

// WithUserSerialization processes messages from the same user one at a time.
func WithUserSerialization(enabled bool) RelayOption {
	return func(r *Relay) {
		if enabled {
			r.locks = newUserLocks()
			return
		}
		r.locks = nil
	}
}

// WithRelayMetrics records outcome, latency and outbound metrics.
func WithRelayMetrics(m *metrics.RelayMetrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

// NewRelay wires the orchestrator around its collaborators.
func NewRelay(config ConfigSource, sessions session.Store, llm LLMClient, sender Sender, notifier Broadcaster, logger *logging.Logger, opts ...RelayOption) *Relay {
	if config == nil {
		panic("conversation: config source cannot be nil")
	}
	if sessions == nil {
		panic("conversation: session store cannot be nil")
	}
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if sender == nil {
		panic("conversation: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	r := &Relay{
		config:   config,
		sessions: sessions,
		llm:      llm,
		sender:   sender,
		notifier: notifier,
		logger:   logger,
		baseline: DefaultBaselinePersona,
		label:    DefaultAssistantLabel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleInbound runs one inbound message through the relay.
func (r *Relay) HandleInbound(ctx context.Context, userID, text string) Outcome {
	ctx, span := relayTracer.Start(ctx, "relay.handle_inbound")
	defer span.End()
	span.SetAttributes(attribute.String("relay.user_id", userID))

	r.publish(realtime.Message{From: userID, Text: text, Direction: realtime.DirectionIn})

	if r.locks != nil {
		unlock := r.locks.Lock(userID)
		defer unlock()
	}

	snap := r.config.Current()
	if !snap.Ready() {
		r.logger.Warn("relay: ai not configured, skipping reply",
			"user_id", userID,
			"completion_key", aiconfig.Marker(snap.CompletionKey),
			"outbound_token", aiconfig.Marker(snap.OutboundToken),
		)
		return r.finish(span, OutcomeNotConfigured)
	}

	r.sessions.Append(userID, session.SpeakerUser, text)

	req := LLMRequest{
		APIKey:   snap.CompletionKey,
		Model:    r.model,
		System:   BuildSystemInstruction(r.baseline, snap.SystemPrompt),
		Messages: toChatMessages(r.sessions.History(userID)),
	}

	reply, err := r.complete(ctx, req)
	if err != nil {
		r.logger.Error("relay: ai completion failed", "user_id", userID, "error", err)
		return r.finish(span, OutcomeCompletionFailed)
	}
	if reply == "" {
		r.logger.Warn("relay: ai returned empty reply", "user_id", userID)
		return r.finish(span, OutcomeEmptyCompletion)
	}

	r.sessions.Append(userID, session.SpeakerAssistant, reply)

	sendErr := r.dispatch(ctx, snap.OutboundToken, userID, reply)
	r.publish(realtime.Message{From: r.label, Text: reply, Direction: realtime.DirectionOut})

	if sendErr != nil {
		return r.finish(span, OutcomeSendFailed)
	}
	return r.finish(span, OutcomeReplied)
}

func (r *Relay) complete(ctx context.Context, req LLMRequest) (string, error) {
	ctx, span := relayTracer.Start(ctx, "relay.complete")
	defer span.End()
	span.SetAttributes(attribute.Int("relay.history_len", len(req.Messages)))

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := r.llm.Complete(ctx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		r.metrics.ObserveCompletion("error", elapsed)
		return "", err
	}

	text := strings.TrimSpace(resp.Text)
	status := "ok"
	if text == "" {
		status = "empty"
	}
	r.metrics.ObserveCompletion(status, elapsed)
	return text, nil
}

func (r *Relay) dispatch(ctx context.Context, token, to, body string) error {
	ctx, span := relayTracer.Start(ctx, "relay.dispatch")
	defer span.End()

	resp, err := r.sender.SendText(ctx, token, to, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		r.metrics.ObserveOutbound("auto", "failed")

		attrs := []any{"user_id", to, "error", err}
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) {
			attrs = append(attrs, "status", apiErr.StatusCode, "provider_error", string(apiErr.Payload))
		}
		r.logger.Error("relay: failed to send reply", attrs...)
		return err
	}

	r.metrics.ObserveOutbound("auto", "sent")
	if resp != nil {
		r.logger.Info("relay: reply sent", "user_id", to, "message_id", resp.MessageID())
	}
	return nil
}

func (r *Relay) publish(msg realtime.Message) {
	if r.notifier == nil {
		return
	}
	r.notifier.Publish(msg)
}

func (r *Relay) finish(span trace.Span, outcome Outcome) Outcome {
	span.SetAttributes(attribute.String("relay.outcome", string(outcome)))
	r.metrics.ObserveRelayOutcome(string(outcome))
	return outcome
}

func toChatMessages(history []session.Turn) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history))
	for _, turn := range history {
		role := ChatRoleUser
		if turn.Speaker == session.SpeakerAssistant {
			role = ChatRoleAssistant
		}
		messages = append(messages, ChatMessage{Role: role, Content: turn.Text})
	}
	return messages
}
