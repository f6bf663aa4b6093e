package tempmedia

import (
	"context"
	"log/slog"
	"time"
)

// Event names carried on dispatched events.
const (
	EventTempMediaUploaded = "temp_media.uploaded"
	EventTempMediaExpired  = "temp_media.expired"
	EventMediaTransferred  = "temp_media.transferred"
)

// Event is one outbound lifecycle notification. Consumers receive it after
// the state change it describes has committed.
type Event struct {
	Name       string          `json:"name"`
	OccurredAt time.Time       `json:"occurred_at"`
	Media      *TempMedia      `json:"media,omitempty"`
	OwnerType  string          `json:"owner_type,omitempty"`
	OwnerKey   string          `json:"owner_key,omitempty"`
	Transfer   *TransferResult `json:"transfer,omitempty"`
}

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) TempMediaUploaded(ctx context.Context, media *TempMedia) error {
	return nil
}

func (n *NoopEventSink) TempMediaExpired(ctx context.Context, media *TempMedia) error {
	return nil
}

func (n *NoopEventSink) MediaTransferred(ctx context.Context, ownerType, ownerKey string, result *TransferResult) error {
	return nil
}

// LoggingEventSink logs events through slog and takes no other action.
// Useful for development and debugging.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink that logs through the given
// logger, or slog.Default when nil.
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) TempMediaUploaded(ctx context.Context, media *TempMedia) error {
	l.logger.Info("Temp media uploaded", "id", media.ID, "name", media.OriginalName, "expires_at", media.ExpiresAt)
	return nil
}

func (l *LoggingEventSink) TempMediaExpired(ctx context.Context, media *TempMedia) error {
	l.logger.Info("Temp media expired", "id", media.ID, "expired_at", media.ExpiresAt)
	return nil
}

func (l *LoggingEventSink) MediaTransferred(ctx context.Context, ownerType, ownerKey string, result *TransferResult) error {
	l.logger.Info("Media transferred", "owner_type", ownerType, "owner_key", ownerKey,
		"transferred", result.TransferredCount, "failed", result.FailedCount)
	return nil
}

// ChannelEventSink publishes events onto a buffered channel for an external
// consumer. Publishing never blocks: when the buffer is full the event is
// dropped, since the core must not depend on the consumer keeping up.
type ChannelEventSink struct {
	events chan Event
	now    func() time.Time
}

// NewChannelEventSink creates a channel-backed sink with the given buffer size.
func NewChannelEventSink(buffer int) *ChannelEventSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelEventSink{
		events: make(chan Event, buffer),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Events returns the receive side of the sink.
func (c *ChannelEventSink) Events() <-chan Event {
	return c.events
}

func (c *ChannelEventSink) publish(ev Event) error {
	select {
	case c.events <- ev:
	default:
		// Consumer is behind; drop rather than block the caller.
	}
	return nil
}

func (c *ChannelEventSink) TempMediaUploaded(ctx context.Context, media *TempMedia) error {
	return c.publish(Event{Name: EventTempMediaUploaded, OccurredAt: c.now(), Media: media})
}

func (c *ChannelEventSink) TempMediaExpired(ctx context.Context, media *TempMedia) error {
	return c.publish(Event{Name: EventTempMediaExpired, OccurredAt: c.now(), Media: media})
}

func (c *ChannelEventSink) MediaTransferred(ctx context.Context, ownerType, ownerKey string, result *TransferResult) error {
	return c.publish(Event{Name: EventMediaTransferred, OccurredAt: c.now(), OwnerType: ownerType, OwnerKey: ownerKey, Transfer: result})
}
