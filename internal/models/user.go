package models

// User represents a player within a game session.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
	// HasSubmitted and VotedGif are per-round flags, reset when a new
	// round starts and when a round completes.
	HasSubmitted bool   `json:"hasSubmitted"`
	VotedGif     string `json:"votedGif"`
}
