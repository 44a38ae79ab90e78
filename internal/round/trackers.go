package round

import "gifwars/internal/models"

// SubmissionComplete reports whether every player in the game has a gif
// on the board while submissions are still open. A game with no players
// never completes by this rule; the clock ends the phase instead.
func SubmissionComplete(g *models.Game) bool {
	if !g.SubmissionActive || len(g.Users) == 0 {
		return false
	}
	return len(g.SubmittedGifs) == len(g.Users)
}

// VotingComplete reports whether every player has cast their vote during
// the voting window. Callers guard the phase; this checks the counts.
func VotingComplete(g *models.Game) bool {
	if g.SubmissionActive || !g.RoundActive || len(g.Users) == 0 {
		return false
	}
	return g.VoteCount() == len(g.Users)
}
