package models

// SubmittedGif is one player's gif response for the current round.
// Content is an opaque payload (typically stringified image metadata);
// the engine never interprets it.
type SubmittedGif struct {
	ID            string `json:"id"`
	GifID         string `json:"gifId"`
	Content       string `json:"content"`
	GifSearchText string `json:"gifSearchText"`
	UserID        string `json:"userId"`
	NumVotes      int    `json:"numVotes"`
	IsWinner      bool   `json:"isWinner"`
}
