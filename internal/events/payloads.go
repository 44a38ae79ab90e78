package events

import (
	"gifwars/internal/models"
)

// Payload types carried by the engine's events.

// GameStatePayload carries the full updated game snapshot.
type GameStatePayload struct {
	Game *models.Game `json:"game"`
}

// ClockPayload carries the remaining time on a phase countdown.
type ClockPayload struct {
	Clock models.Clock `json:"clock"`
}

// RoundStartedPayload announces a new round.
type RoundStartedPayload struct {
	GameID      string `json:"gameId"`
	RoundNumber int    `json:"roundNumber"`
	Topic       string `json:"topic"`
}

// TopicPayload announces a topic change.
type TopicPayload struct {
	GameID string `json:"gameId"`
	Text   string `json:"text"`
}

// GifPayload announces a created or deleted gif submission.
type GifPayload struct {
	GameID string              `json:"gameId"`
	Gif    models.SubmittedGif `json:"gif"`
}

// VotePayload announces an added or retracted vote.
type VotePayload struct {
	GameID string `json:"gameId"`
	GifID  string `json:"gifId"`
	UserID string `json:"userId"`
}

// UserPayload announces a player joining or leaving.
type UserPayload struct {
	GameID string      `json:"gameId"`
	User   models.User `json:"user"`
}
