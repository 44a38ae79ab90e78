package models

import (
	"time"
)

// Phase is the position of a game within a round.
type Phase string

const (
	PhaseLobby         Phase = "LOBBY"
	PhaseSubmission    Phase = "SUBMISSION"
	PhaseVoting        Phase = "VOTING"
	PhaseRoundComplete Phase = "ROUND_COMPLETE"
)

// Game represents one running game session.
//
// Flag semantics within a round:
//
//	submissionActive && roundActive  -> gif submissions are open
//	!submissionActive && roundActive -> voting is open
//	!roundActive                     -> round results may be shown
type Game struct {
	ID               string         `json:"id"`
	Users            []User         `json:"users"`
	Started          bool           `json:"gameStarted"`
	SubmissionActive bool           `json:"submissionActive"`
	RoundActive      bool           `json:"roundActive"`
	Topic            string         `json:"topic"`
	RoundNumber      int            `json:"roundNumber"`
	SubmittedGifs    []SubmittedGif `json:"submittedGifs"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Phase derives the round phase from the game's flag pair.
func (g *Game) Phase() Phase {
	switch {
	case g.SubmissionActive && g.RoundActive:
		return PhaseSubmission
	case g.RoundActive:
		return PhaseVoting
	case g.Started && g.RoundNumber > 0:
		return PhaseRoundComplete
	default:
		return PhaseLobby
	}
}

// UserByID returns the user with the given id, or nil.
func (g *Game) UserByID(userID string) *User {
	for i := range g.Users {
		if g.Users[i].ID == userID {
			return &g.Users[i]
		}
	}
	return nil
}

// GifByID returns the submitted gif with the given id, or nil.
func (g *Game) GifByID(gifID string) *SubmittedGif {
	for i := range g.SubmittedGifs {
		if g.SubmittedGifs[i].ID == gifID {
			return &g.SubmittedGifs[i]
		}
	}
	return nil
}

// GifByUser returns the gif submitted by the given user this round, or nil.
// At most one gif per user exists at any time; a resubmission replaces it.
func (g *Game) GifByUser(userID string) *SubmittedGif {
	for i := range g.SubmittedGifs {
		if g.SubmittedGifs[i].UserID == userID {
			return &g.SubmittedGifs[i]
		}
	}
	return nil
}

// VoteCount sums the votes across all submitted gifs.
func (g *Game) VoteCount() int {
	total := 0
	for i := range g.SubmittedGifs {
		total += g.SubmittedGifs[i].NumVotes
	}
	return total
}

// Clone returns a deep copy of the game document.
func (g *Game) Clone() *Game {
	out := *g
	out.Users = make([]User, len(g.Users))
	copy(out.Users, g.Users)
	out.SubmittedGifs = make([]SubmittedGif, len(g.SubmittedGifs))
	copy(out.SubmittedGifs, g.SubmittedGifs)
	return &out
}
