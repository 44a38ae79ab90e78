package round

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gifwars/internal/clock"
	"gifwars/internal/events"
	"gifwars/internal/game"
	"gifwars/internal/models"
)

// capturePublisher records every published event for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) typesFor(gameID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		if ev.GameID == gameID {
			out = append(out, ev.Type)
		}
	}
	return out
}

type fixture struct {
	orch *Orchestrator
	repo *game.MemoryRepository
	pub  *capturePublisher
	fc   *clockwork.FakeClock
}

func newFixture(t *testing.T, timers TimerConfig) *fixture {
	t.Helper()
	fc := clockwork.NewFakeClock()
	repo := game.NewMemoryRepository()
	pub := &capturePublisher{}
	orch := NewOrchestrator(repo, pub, clock.NewRegistry(fc), timers)
	t.Cleanup(orch.Shutdown)
	return &fixture{orch: orch, repo: repo, pub: pub, fc: fc}
}

// startedGame creates a game with the given player names, starts it,
// and begins round one. Returns the snapshot and the players in order.
func (f *fixture) startedGame(t *testing.T, names ...string) (*models.Game, []models.User) {
	t.Helper()
	ctx := context.Background()

	g, err := f.orch.CreateGame(ctx, names[0])
	require.NoError(t, err)

	for _, name := range names[1:] {
		_, _, err = f.orch.JoinGame(ctx, g.ID, name)
		require.NoError(t, err)
	}
	_, err = f.orch.StartGame(ctx, g.ID)
	require.NoError(t, err)
	g, err = f.orch.NewRound(ctx, g.ID, "awkward first dates")
	require.NoError(t, err)

	users := make([]models.User, len(g.Users))
	copy(users, g.Users)
	return g, users
}

func (f *fixture) submitAll(t *testing.T, gameID string, users []models.User) *models.Game {
	t.Helper()
	var g *models.Game
	var err error
	for i, u := range users {
		g, err = f.orch.SubmitGif(context.Background(), gameID, u.ID, GifSubmission{
			GifID:      "giphy-" + u.ID,
			Content:    "https://media.giphy.com/" + u.ID + ".gif",
			SearchText: "reaction",
		})
		require.NoError(t, err, "submit %d", i)
	}
	return g
}

func TestFullRoundHappyPath(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo", "cyd")
	require.Equal(t, models.PhaseSubmission, g.Phase())
	require.Equal(t, 1, g.RoundNumber)

	g = f.submitAll(t, g.ID, users)
	require.Equal(t, models.PhaseVoting, g.Phase(), "last submission closes the phase")
	require.Len(t, g.SubmittedGifs, 3)

	// Everyone votes for ana's gif; the last vote ends the round.
	target := g.GifByUser(users[0].ID)
	require.NotNil(t, target)
	var err error
	for _, u := range users {
		g, err = f.orch.VoteForGif(ctx, g.ID, u.ID, target.ID)
		require.NoError(t, err)
	}

	g, err = f.orch.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRoundComplete, g.Phase())

	winner := g.GifByID(target.ID)
	require.NotNil(t, winner)
	assert.True(t, winner.IsWinner)
	assert.Equal(t, 3, winner.NumVotes)
	assert.Equal(t, 1, g.UserByID(users[0].ID).Score)
	assert.Equal(t, 0, g.UserByID(users[1].ID).Score)

	types := f.pub.typesFor(g.ID)
	assert.Contains(t, types, events.EventRoundStarted)
	assert.Contains(t, types, events.EventGifCreated)
	assert.Contains(t, types, events.EventVoteAdded)
	assert.Contains(t, types, events.EventGameStateChanged)
}

func TestResubmissionReplaces(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo")

	g, err := f.orch.SubmitGif(ctx, g.ID, users[0].ID, GifSubmission{GifID: "first", Content: "first.gif"})
	require.NoError(t, err)
	firstID := g.GifByUser(users[0].ID).ID

	g, err = f.orch.SubmitGif(ctx, g.ID, users[0].ID, GifSubmission{GifID: "second", Content: "second.gif"})
	require.NoError(t, err)

	require.Len(t, g.SubmittedGifs, 1, "resubmission must not grow the board")
	gif := g.GifByUser(users[0].ID)
	assert.Equal(t, firstID, gif.ID, "the board slot keeps its id")
	assert.Equal(t, "second", gif.GifID)
	assert.Equal(t, models.PhaseSubmission, g.Phase(), "one player still pending")
}

func TestDeleteGifReopensSlot(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo", "cyd")

	g, err := f.orch.SubmitGif(ctx, g.ID, users[0].ID, GifSubmission{GifID: "x", Content: "x.gif"})
	require.NoError(t, err)
	require.True(t, g.UserByID(users[0].ID).HasSubmitted)

	g, err = f.orch.DeleteGif(ctx, g.ID, users[0].ID)
	require.NoError(t, err)
	assert.Empty(t, g.SubmittedGifs)
	assert.False(t, g.UserByID(users[0].ID).HasSubmitted)
	assert.Contains(t, f.pub.typesFor(g.ID), events.EventGifDeleted)
}

func TestDoubleVoteRejected(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo", "cyd")
	g = f.submitAll(t, g.ID, users)
	require.Equal(t, models.PhaseVoting, g.Phase())

	target := g.SubmittedGifs[0]
	g, err := f.orch.VoteForGif(ctx, g.ID, users[0].ID, target.ID)
	require.NoError(t, err)

	_, err = f.orch.VoteForGif(ctx, g.ID, users[0].ID, target.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	g, err = f.orch.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, g.VoteCount())
}

func TestWrongPhaseRejected(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo")

	// Voting while submissions are open.
	_, err := f.orch.VoteForGif(ctx, g.ID, users[0].ID, "any")
	require.ErrorIs(t, err, ErrInvalidTransition)

	g = f.submitAll(t, g.ID, users)
	require.Equal(t, models.PhaseVoting, g.Phase())

	// Submitting after the window closed.
	_, err = f.orch.SubmitGif(ctx, g.ID, users[0].ID, GifSubmission{GifID: "late"})
	require.ErrorIs(t, err, ErrInvalidTransition)

	// Starting a started game.
	_, err = f.orch.StartGame(ctx, g.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTieScoresEveryTopOwner(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo", "cyd", "dee")
	g = f.submitAll(t, g.ID, users)

	gifA := g.GifByUser(users[0].ID)
	gifB := g.GifByUser(users[1].ID)

	// Final tally: gifA 2, gifB 2, others 0.
	_, err := f.orch.VoteForGif(ctx, g.ID, users[0].ID, gifB.ID)
	require.NoError(t, err)
	_, err = f.orch.VoteForGif(ctx, g.ID, users[1].ID, gifA.ID)
	require.NoError(t, err)
	_, err = f.orch.VoteForGif(ctx, g.ID, users[2].ID, gifA.ID)
	require.NoError(t, err)
	g, err = f.orch.VoteForGif(ctx, g.ID, users[3].ID, gifB.ID)
	require.NoError(t, err)

	require.Equal(t, models.PhaseRoundComplete, g.Phase())
	assert.True(t, g.GifByID(gifA.ID).IsWinner)
	assert.True(t, g.GifByID(gifB.ID).IsWinner)
	assert.Equal(t, 1, g.UserByID(users[0].ID).Score)
	assert.Equal(t, 1, g.UserByID(users[1].ID).Score)
	assert.Equal(t, 0, g.UserByID(users[2].ID).Score)
	assert.Equal(t, 0, g.UserByID(users[3].ID).Score)
}

func TestVoteExpiryWithNoVotesHasNoWinners(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())

	g, users := f.startedGame(t, "ana", "bo")
	g = f.submitAll(t, g.ID, users)
	require.Equal(t, models.PhaseVoting, g.Phase())

	f.orch.voteExpired(g.ID, g.RoundNumber)

	g, err := f.orch.GetGame(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRoundComplete, g.Phase())
	for _, gif := range g.SubmittedGifs {
		assert.False(t, gif.IsWinner)
	}
	for _, u := range g.Users {
		assert.Equal(t, 0, u.Score)
	}
}

func TestSubmissionExpiryWithEmptyBoardSkipsVoting(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())

	g, _ := f.startedGame(t, "ana", "bo")
	require.Equal(t, models.PhaseSubmission, g.Phase())

	f.orch.submissionExpired(g.ID, g.RoundNumber)

	g, err := f.orch.GetGame(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRoundComplete, g.Phase(), "empty board goes straight to results")
}

func TestSubmissionExpiryWithPartialBoardOpensVoting(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo", "cyd")
	_, err := f.orch.SubmitGif(ctx, g.ID, users[0].ID, GifSubmission{GifID: "a"})
	require.NoError(t, err)
	_, err = f.orch.SubmitGif(ctx, g.ID, users[1].ID, GifSubmission{GifID: "b"})
	require.NoError(t, err)

	f.orch.submissionExpired(g.ID, g.RoundNumber)

	g, err = f.orch.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseVoting, g.Phase())
	assert.Len(t, g.SubmittedGifs, 2)
}

func TestSubmissionExpiryAfterPhaseEndedIsNoOp(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo")
	g = f.submitAll(t, g.ID, users)
	require.Equal(t, models.PhaseVoting, g.Phase())

	// A stale clock firing after the last submission closed the phase
	// must not touch the game.
	f.orch.submissionExpired(g.ID, g.RoundNumber)

	got, err := f.orch.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseVoting, got.Phase())
	assert.Len(t, got.SubmittedGifs, 2)
}

func TestLeaveDuringSubmissionCompletesPhase(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo", "cyd")
	_, err := f.orch.SubmitGif(ctx, g.ID, users[0].ID, GifSubmission{GifID: "a"})
	require.NoError(t, err)
	_, err = f.orch.SubmitGif(ctx, g.ID, users[1].ID, GifSubmission{GifID: "b"})
	require.NoError(t, err)

	// The only player still owing a gif leaves; the phase completes.
	g, err = f.orch.LeaveGame(ctx, g.ID, users[2].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseVoting, g.Phase())
	assert.Len(t, g.Users, 2)
}

func TestLeaveDuringVotingCompletesRound(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo", "cyd")
	g = f.submitAll(t, g.ID, users)

	gifA := g.GifByUser(users[0].ID)
	gifB := g.GifByUser(users[1].ID)
	_, err := f.orch.VoteForGif(ctx, g.ID, users[0].ID, gifB.ID)
	require.NoError(t, err)
	_, err = f.orch.VoteForGif(ctx, g.ID, users[1].ID, gifA.ID)
	require.NoError(t, err)

	// cyd never votes and leaves; the two cast votes now cover everyone.
	g, err = f.orch.LeaveGame(ctx, g.ID, users[2].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRoundComplete, g.Phase())
	assert.Equal(t, 1, g.UserByID(users[0].ID).Score)
	assert.Equal(t, 1, g.UserByID(users[1].ID).Score)
}

func TestLeaveReleasesVotesForRemovedGif(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo", "cyd")
	g = f.submitAll(t, g.ID, users)

	gifC := g.GifByUser(users[2].ID)
	_, err := f.orch.VoteForGif(ctx, g.ID, users[0].ID, gifC.ID)
	require.NoError(t, err)

	g, err = f.orch.LeaveGame(ctx, g.ID, users[2].ID)
	require.NoError(t, err)

	assert.Nil(t, g.GifByID(gifC.ID))
	assert.Equal(t, "", g.UserByID(users[0].ID).VotedGif, "vote for the removed gif is released")
	assert.Equal(t, 0, g.VoteCount())
	assert.Equal(t, models.PhaseVoting, g.Phase())
}

// goneGifRepo reports every gif as already removed, the state a sweep
// leaves behind when it races a departure.
type goneGifRepo struct {
	*game.MemoryRepository
}

func (r *goneGifRepo) RemoveGif(ctx context.Context, gameID, gifID string) (*models.Game, error) {
	return nil, game.ErrNotFound
}

func TestLeaveToleratesGifAlreadyGone(t *testing.T) {
	repo := &goneGifRepo{game.NewMemoryRepository()}
	pub := &capturePublisher{}
	orch := NewOrchestrator(repo, pub, clock.NewRegistry(clockwork.NewFakeClock()), DefaultTimerConfig())
	t.Cleanup(orch.Shutdown)
	ctx := context.Background()

	g, err := orch.CreateGame(ctx, "ana")
	require.NoError(t, err)
	_, bo, err := orch.JoinGame(ctx, g.ID, "bo")
	require.NoError(t, err)
	_, err = orch.StartGame(ctx, g.ID)
	require.NoError(t, err)
	_, err = orch.NewRound(ctx, g.ID, "cats")
	require.NoError(t, err)
	_, err = orch.SubmitGif(ctx, g.ID, bo.ID, GifSubmission{GifID: "b"})
	require.NoError(t, err)

	g, err = orch.LeaveGame(ctx, g.ID, bo.ID)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Nil(t, g.UserByID(bo.ID))
}

func TestStaleExpiryDoesNotCloseNextRound(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, _ := f.startedGame(t, "ana", "bo")
	require.Equal(t, 1, g.RoundNumber)

	// Round two opens before round one's clock callback gets the lock.
	g, err := f.orch.NewRound(ctx, g.ID, "round two")
	require.NoError(t, err)
	require.Equal(t, 2, g.RoundNumber)

	// Callbacks held over from round one must leave round two alone.
	f.orch.submissionExpired(g.ID, 1)
	f.orch.voteExpired(g.ID, 1)

	got, err := f.orch.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseSubmission, got.Phase())
	assert.Equal(t, 2, got.RoundNumber)
}

func TestNewRoundResetsBoard(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo")
	g = f.submitAll(t, g.ID, users)
	f.orch.voteExpired(g.ID, g.RoundNumber)

	g, err := f.orch.NewRound(ctx, g.ID, "office disasters")
	require.NoError(t, err)

	assert.Equal(t, 2, g.RoundNumber)
	assert.Equal(t, "office disasters", g.Topic)
	assert.Empty(t, g.SubmittedGifs)
	assert.Equal(t, models.PhaseSubmission, g.Phase())
	for _, u := range g.Users {
		assert.False(t, u.HasSubmitted)
		assert.Equal(t, "", u.VotedGif)
	}
}

func TestNewRoundMidRoundStartsOver(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo")
	_, err := f.orch.SubmitGif(ctx, g.ID, users[0].ID, GifSubmission{GifID: "a"})
	require.NoError(t, err)

	// Abandoning the round mid-submission wipes the board and flags.
	g, err = f.orch.NewRound(ctx, g.ID, "fresh start")
	require.NoError(t, err)
	assert.Equal(t, 2, g.RoundNumber)
	assert.Empty(t, g.SubmittedGifs)
	assert.Equal(t, models.PhaseSubmission, g.Phase())
	for _, u := range g.Users {
		assert.False(t, u.HasSubmitted)
		assert.Equal(t, "", u.VotedGif)
	}
}

func TestRetractVoteAndRevote(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo", "cyd")
	g = f.submitAll(t, g.ID, users)

	gifA := g.GifByUser(users[0].ID)
	gifB := g.GifByUser(users[1].ID)

	_, err := f.orch.VoteForGif(ctx, g.ID, users[0].ID, gifB.ID)
	require.NoError(t, err)
	g, err = f.orch.RetractVote(ctx, g.ID, users[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, g.VoteCount())
	assert.Equal(t, "", g.UserByID(users[0].ID).VotedGif)

	g, err = f.orch.VoteForGif(ctx, g.ID, users[0].ID, gifA.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, g.GifByID(gifA.ID).NumVotes)
	assert.Equal(t, 0, g.GifByID(gifB.ID).NumVotes)
	assert.Contains(t, f.pub.typesFor(g.ID), events.EventVoteRemoved)
}

func TestSetAndClearTopic(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, _ := f.startedGame(t, "ana", "bo")

	g, err := f.orch.SetTopic(ctx, g.ID, "cats being jerks")
	require.NoError(t, err)
	assert.Equal(t, "cats being jerks", g.Topic)
	assert.Contains(t, f.pub.typesFor(g.ID), events.EventTopicCreated)

	g, err = f.orch.ClearTopic(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "", g.Topic)
}

func TestJoinDoesNotCloseAPhase(t *testing.T) {
	f := newFixture(t, DefaultTimerConfig())
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo")
	_, err := f.orch.SubmitGif(ctx, g.ID, users[0].ID, GifSubmission{GifID: "a"})
	require.NoError(t, err)
	_, err = f.orch.SubmitGif(ctx, g.ID, users[1].ID, GifSubmission{GifID: "b"})
	require.NoError(t, err)

	// Both originals submitted, but the board already closed. A third
	// player joining mid-voting must not disturb the phase.
	g, _, err = f.orch.JoinGame(ctx, g.ID, "cyd")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseVoting, g.Phase())
	assert.Len(t, g.Users, 3)
}

func TestCountdownDrivesPhases(t *testing.T) {
	f := newFixture(t, TimerConfig{SubmissionSeconds: 2, VoteSeconds: 2})
	ctx := context.Background()

	g, users := f.startedGame(t, "ana", "bo")
	_, err := f.orch.SubmitGif(ctx, g.ID, users[0].ID, GifSubmission{GifID: "a"})
	require.NoError(t, err)

	// Drive the submission clock to expiry: two ticks down to 0:00,
	// then the expiry tick. Spare advances are harmless, so keep
	// ticking until the phase turns over.
	f.fc.BlockUntil(1)
	require.Eventually(t, func() bool {
		f.fc.Advance(time.Second)
		got, err := f.orch.GetGame(ctx, g.ID)
		return err == nil && got.Phase() == models.PhaseVoting
	}, 2*time.Second, 10*time.Millisecond, "submission clock should open voting")

	// Same for the voting clock.
	require.Eventually(t, func() bool {
		f.fc.Advance(time.Second)
		got, err := f.orch.GetGame(ctx, g.ID)
		return err == nil && got.Phase() == models.PhaseRoundComplete
	}, 2*time.Second, 10*time.Millisecond, "vote clock should close the round")
}
