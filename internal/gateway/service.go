package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"gifwars/internal/events"
)

// Service composes the gateway: WebSocket connection handling and the
// broker feed that bridges engine events to clients. The HTTP mutation
// surface lives in API and is registered alongside this service.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
}

// Config holds gateway settings. A nil Consumer disables the JetStream
// feed; events then reach clients through a Bridge publisher instead.
type Config struct {
	Connection ConnectionConfig
	Consumer   *ConsumerConfig
}

func DefaultConfig() Config {
	consumer := DefaultConsumerConfig()
	return Config{
		Connection: DefaultConnectionConfig(),
		Consumer:   &consumer,
	}
}

func NewService(cfg Config) (*Service, error) {
	cm := NewConnectionManager(cfg.Connection)

	s := &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
	}

	if cfg.Consumer != nil {
		consumer, err := NewEventConsumer(cm, *cfg.Consumer)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = consumer
	}
	return s, nil
}

// Bridge returns a publisher that delivers events straight to this
// gateway's connections, bypassing the broker. Used when the server
// runs without NATS.
func (s *Service) Bridge() events.Publisher {
	return &bridgePublisher{cm: s.connectionManager}
}

type bridgePublisher struct {
	cm *ConnectionManager
}

func (b *bridgePublisher) Publish(ctx context.Context, event events.Event) error {
	b.cm.BroadcastToGame(event.GameID, &event)
	return nil
}

// Start runs the gateway until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting game gateway")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("game gateway shutting down")
	return s.Stop()
}

func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}
	log.Info().Msg("game gateway stopped")
	return nil
}

// RegisterRoutes registers the WebSocket routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}
