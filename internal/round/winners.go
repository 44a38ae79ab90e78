package round

import (
	"sort"

	"gifwars/internal/models"
)

// Result is the outcome of a finished voting phase.
type Result struct {
	// WinningGifs are copies of every gif that reached the top vote
	// count, flagged as winners. Empty when no votes were cast.
	WinningGifs []models.SubmittedGif
	// Winners are copies of the owners of the winning gifs with their
	// score already incremented. One entry per distinct owner.
	Winners []models.User
}

// ResolveWinners computes the round result from a game snapshot without
// mutating it. Every gif tied at the maximum vote count wins and every
// distinct owner scores one point. A round where the maximum is zero has
// no winners.
func ResolveWinners(g *models.Game) Result {
	if len(g.SubmittedGifs) == 0 {
		return Result{}
	}

	sorted := make([]models.SubmittedGif, len(g.SubmittedGifs))
	copy(sorted, g.SubmittedGifs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].NumVotes > sorted[j].NumVotes
	})

	max := sorted[0].NumVotes
	if max == 0 {
		return Result{}
	}

	var res Result
	seen := make(map[string]bool)
	for _, gif := range sorted {
		if gif.NumVotes != max {
			break
		}
		gif.IsWinner = true
		res.WinningGifs = append(res.WinningGifs, gif)

		if seen[gif.UserID] {
			continue
		}
		seen[gif.UserID] = true
		if u := g.UserByID(gif.UserID); u != nil {
			winner := *u
			winner.Score++
			res.Winners = append(res.Winners, winner)
		}
	}
	return res
}
