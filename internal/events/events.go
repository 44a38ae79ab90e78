package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published by the round engine. Subscribers filter by
// game id on their own side; the engine does not fan out per client.
const (
	EventGameStateChanged = "game_state_changed"
	EventRoundClock       = "round_clock"
	EventRoundStarted     = "round_started"
	EventTopicCreated     = "topic_created"
	EventGifCreated       = "gif_created"
	EventGifDeleted       = "gif_deleted"
	EventVoteAdded        = "vote_added"
	EventVoteRemoved      = "vote_removed"
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
)

// Event is one notification emitted by the engine.
type Event struct {
	ID        uuid.UUID       `json:"eventId"`
	Type      string          `json:"eventType"`
	GameID    string          `json:"gameId"`
	CreatedAt time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// New builds an event with a fresh id and the payload marshalled to JSON.
func New(eventType, gameID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		GameID:    gameID,
		CreatedAt: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// Publisher is the notification bus contract. The engine publishes a
// game-state event after every committed phase transition and a clock
// event on every tick.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
