package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to the structured log instead of a broker.
// Used when the server runs without NATS, typically local development
// with the in-memory store.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.Type).
		Str("game_id", event.GameID).
		RawJSON("payload", event.Payload).
		Msg("event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
