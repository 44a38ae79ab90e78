package game

import (
	"gifwars/internal/models"
)

// FieldUpdate is a partial update of top-level game fields. Nil pointers
// leave the stored value unchanged.
type FieldUpdate struct {
	Started          *bool
	SubmissionActive *bool
	RoundActive      *bool
	Topic            *string
	RoundNumber      *int
	// ClearGifs empties the submitted-gif collection.
	ClearGifs bool
	// ResetUserRound clears every user's per-round flags
	// (hasSubmitted, votedGif).
	ResetUserRound bool
}

// Condition guards a conditional update. Nil pointers are not checked.
type Condition struct {
	SubmissionActive *bool
	RoundActive      *bool
}

// Matches reports whether the stored document satisfies the condition.
func (c Condition) Matches(g *models.Game) bool {
	if c.SubmissionActive != nil && g.SubmissionActive != *c.SubmissionActive {
		return false
	}
	if c.RoundActive != nil && g.RoundActive != *c.RoundActive {
		return false
	}
	return true
}

// applyFieldUpdate mutates the document in place. Shared by the store
// implementations so both apply identical semantics.
func applyFieldUpdate(g *models.Game, upd FieldUpdate) {
	if upd.Started != nil {
		g.Started = *upd.Started
	}
	if upd.SubmissionActive != nil {
		g.SubmissionActive = *upd.SubmissionActive
	}
	if upd.RoundActive != nil {
		g.RoundActive = *upd.RoundActive
	}
	if upd.Topic != nil {
		g.Topic = *upd.Topic
	}
	if upd.RoundNumber != nil {
		g.RoundNumber = *upd.RoundNumber
	}
	if upd.ClearGifs {
		g.SubmittedGifs = []models.SubmittedGif{}
	}
	if upd.ResetUserRound {
		for i := range g.Users {
			g.Users[i].HasSubmitted = false
			g.Users[i].VotedGif = ""
		}
	}
}

func pushGif(g *models.Game, gif models.SubmittedGif) {
	g.SubmittedGifs = append(g.SubmittedGifs, gif)
}

func removeGif(g *models.Game, gifID string) bool {
	for i := range g.SubmittedGifs {
		if g.SubmittedGifs[i].ID == gifID {
			g.SubmittedGifs = append(g.SubmittedGifs[:i], g.SubmittedGifs[i+1:]...)
			return true
		}
	}
	return false
}

func replaceGif(g *models.Game, gifID string, gif models.SubmittedGif) bool {
	for i := range g.SubmittedGifs {
		if g.SubmittedGifs[i].ID == gifID {
			gif.ID = gifID
			g.SubmittedGifs[i] = gif
			return true
		}
	}
	return false
}

func pushUser(g *models.Game, user models.User) {
	g.Users = append(g.Users, user)
}

func removeUser(g *models.Game, userID string) bool {
	for i := range g.Users {
		if g.Users[i].ID == userID {
			g.Users = append(g.Users[:i], g.Users[i+1:]...)
			return true
		}
	}
	return false
}

func replaceUser(g *models.Game, userID string, user models.User) bool {
	for i := range g.Users {
		if g.Users[i].ID == userID {
			user.ID = userID
			g.Users[i] = user
			return true
		}
	}
	return false
}
