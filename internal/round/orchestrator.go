package round

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"gifwars/internal/clock"
	"gifwars/internal/events"
	"gifwars/internal/game"
	"gifwars/internal/models"
)

// ErrInvalidTransition signals an operation that is not legal in the
// game's current phase, such as voting while submissions are open or
// casting a second vote.
var ErrInvalidTransition = errors.New("invalid transition for current game state")

// TimerConfig sets the countdown lengths for the two timed phases.
type TimerConfig struct {
	SubmissionMinutes int
	SubmissionSeconds int
	VoteMinutes       int
	VoteSeconds       int
}

func DefaultTimerConfig() TimerConfig {
	return TimerConfig{SubmissionMinutes: 3, VoteMinutes: 1, VoteSeconds: 30}
}

// GifSubmission is the player-supplied part of a gif entry.
type GifSubmission struct {
	GifID      string
	Content    string
	SearchText string
}

// Orchestrator drives games through their round lifecycle. All state
// transitions for one game run under that game's session lock, so a
// racing last vote and clock expiry resolve to exactly one phase end.
type Orchestrator struct {
	repo   game.Repository
	pub    events.Publisher
	clocks *clock.Registry
	timers TimerConfig
	locks  *sessionLocks
}

func NewOrchestrator(repo game.Repository, pub events.Publisher, clocks *clock.Registry, timers TimerConfig) *Orchestrator {
	return &Orchestrator{
		repo:   repo,
		pub:    pub,
		clocks: clocks,
		timers: timers,
		locks:  newSessionLocks(),
	}
}

// publish sends an event best-effort. State is already committed when
// events go out, so a bus failure is logged, not propagated.
func (o *Orchestrator) publish(ctx context.Context, eventType, gameID string, payload any) {
	ev, err := events.New(eventType, gameID, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Str("game_id", gameID).Msg("failed to build event")
		return
	}
	if err := o.pub.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Str("game_id", gameID).Msg("failed to publish event")
	}
}

func (o *Orchestrator) publishState(ctx context.Context, g *models.Game) {
	o.publish(ctx, events.EventGameStateChanged, g.ID, events.GameStatePayload{Game: g})
}

// CreateGame creates a new session with the host as its first player.
func (o *Orchestrator) CreateGame(ctx context.Context, hostName string) (*models.Game, error) {
	host := models.User{ID: uuid.NewString(), Name: hostName}
	g := &models.Game{
		ID:            uuid.NewString(),
		Users:         []models.User{host},
		SubmittedGifs: []models.SubmittedGif{},
	}

	created, err := o.repo.CreateGame(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	log.Info().Str("game_id", created.ID).Str("host", hostName).Msg("game created")
	o.publishState(ctx, created)
	return created, nil
}

func (o *Orchestrator) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	return o.repo.GetGame(ctx, gameID)
}

// StartGame moves the session out of the lobby. Starting an already
// started game is rejected.
func (o *Orchestrator) StartGame(ctx context.Context, gameID string) (*models.Game, error) {
	unlock := o.locks.lock(gameID)
	defer unlock()

	g, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Started {
		return nil, fmt.Errorf("game %s already started: %w", gameID, ErrInvalidTransition)
	}

	updated, err := o.repo.UpdateGameFields(ctx, gameID, game.FieldUpdate{Started: boolPtr(true)})
	if err != nil {
		return nil, fmt.Errorf("failed to start game: %w", err)
	}

	log.Info().Str("game_id", gameID).Msg("game started")
	o.publishState(ctx, updated)
	return updated, nil
}

// NewRound begins the next round: clears the board, resets per-round
// player flags, opens submissions, and starts the submission clock.
// Calling it mid-round abandons the current round and starts over.
func (o *Orchestrator) NewRound(ctx context.Context, gameID, topic string) (*models.Game, error) {
	unlock := o.locks.lock(gameID)
	defer unlock()

	g, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !g.Started {
		return nil, fmt.Errorf("game %s not started: %w", gameID, ErrInvalidTransition)
	}

	next := g.RoundNumber + 1
	updated, err := o.repo.UpdateGameFields(ctx, gameID, game.FieldUpdate{
		SubmissionActive: boolPtr(true),
		RoundActive:      boolPtr(true),
		Topic:            strPtr(topic),
		RoundNumber:      &next,
		ClearGifs:        true,
		ResetUserRound:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin round: %w", err)
	}

	o.clocks.Start(gameID, o.timers.SubmissionMinutes, o.timers.SubmissionSeconds,
		o.tickBroadcast, func(id string) { o.submissionExpired(id, next) })

	log.Info().Str("game_id", gameID).Int("round", next).Str("topic", topic).Msg("round started")
	o.publish(ctx, events.EventRoundStarted, gameID, events.RoundStartedPayload{
		GameID:      gameID,
		RoundNumber: next,
		Topic:       topic,
	})
	o.publishState(ctx, updated)
	return updated, nil
}

// SubmitGif records a player's entry for the round. A player who already
// submitted replaces their previous entry; the board holds at most one
// gif per player. When the last player submits, the submission phase
// ends immediately.
func (o *Orchestrator) SubmitGif(ctx context.Context, gameID, userID string, in GifSubmission) (*models.Game, error) {
	unlock := o.locks.lock(gameID)
	defer unlock()

	g, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Phase() != models.PhaseSubmission {
		return nil, fmt.Errorf("submissions are closed for game %s: %w", gameID, ErrInvalidTransition)
	}
	u := g.UserByID(userID)
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", userID, game.ErrNotFound)
	}

	gif := models.SubmittedGif{
		ID:            uuid.NewString(),
		GifID:         in.GifID,
		Content:       in.Content,
		GifSearchText: in.SearchText,
		UserID:        userID,
	}

	var updated *models.Game
	if prev := g.GifByUser(userID); prev != nil {
		gif.ID = prev.ID
		updated, err = o.repo.ReplaceGif(ctx, gameID, prev.ID, gif)
	} else {
		updated, err = o.repo.PushGif(ctx, gameID, gif)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to submit gif: %w", err)
	}

	submitted := *u
	submitted.HasSubmitted = true
	updated, err = o.repo.ReplaceUser(ctx, gameID, userID, submitted)
	if err != nil {
		return nil, fmt.Errorf("failed to mark user submitted: %w", err)
	}

	o.publish(ctx, events.EventGifCreated, gameID, events.GifPayload{GameID: gameID, Gif: gif})

	if SubmissionComplete(updated) {
		if updated, err = o.endSubmission(ctx, updated); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// DeleteGif withdraws the player's entry during the submission phase.
func (o *Orchestrator) DeleteGif(ctx context.Context, gameID, userID string) (*models.Game, error) {
	unlock := o.locks.lock(gameID)
	defer unlock()

	g, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Phase() != models.PhaseSubmission {
		return nil, fmt.Errorf("submissions are closed for game %s: %w", gameID, ErrInvalidTransition)
	}
	u := g.UserByID(userID)
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", userID, game.ErrNotFound)
	}
	gif := g.GifByUser(userID)
	if gif == nil {
		return nil, fmt.Errorf("user %s has no submission: %w", userID, game.ErrNotFound)
	}

	updated, err := o.repo.RemoveGif(ctx, gameID, gif.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete gif: %w", err)
	}

	cleared := *u
	cleared.HasSubmitted = false
	updated, err = o.repo.ReplaceUser(ctx, gameID, userID, cleared)
	if err != nil {
		return nil, fmt.Errorf("failed to clear user submission flag: %w", err)
	}

	o.publish(ctx, events.EventGifDeleted, gameID, events.GifPayload{GameID: gameID, Gif: *gif})
	return updated, nil
}

// VoteForGif casts the player's single vote for the round. Voting twice
// is rejected; RetractVote frees the vote first.
func (o *Orchestrator) VoteForGif(ctx context.Context, gameID, userID, gifID string) (*models.Game, error) {
	unlock := o.locks.lock(gameID)
	defer unlock()

	g, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Phase() != models.PhaseVoting {
		return nil, fmt.Errorf("voting is closed for game %s: %w", gameID, ErrInvalidTransition)
	}
	u := g.UserByID(userID)
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", userID, game.ErrNotFound)
	}
	if u.VotedGif != "" {
		return nil, fmt.Errorf("user %s already voted: %w", userID, ErrInvalidTransition)
	}
	gif := g.GifByID(gifID)
	if gif == nil {
		return nil, fmt.Errorf("gif %s: %w", gifID, game.ErrNotFound)
	}

	voted := *gif
	voted.NumVotes++
	updated, err := o.repo.ReplaceGif(ctx, gameID, gifID, voted)
	if err != nil {
		return nil, fmt.Errorf("failed to record vote: %w", err)
	}

	voter := *u
	voter.VotedGif = gifID
	updated, err = o.repo.ReplaceUser(ctx, gameID, userID, voter)
	if err != nil {
		return nil, fmt.Errorf("failed to mark voter: %w", err)
	}

	o.publish(ctx, events.EventVoteAdded, gameID, events.VotePayload{GameID: gameID, GifID: gifID, UserID: userID})

	if VotingComplete(updated) {
		if updated, err = o.endRound(ctx, updated); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// RetractVote takes back the player's vote while voting is still open.
func (o *Orchestrator) RetractVote(ctx context.Context, gameID, userID string) (*models.Game, error) {
	unlock := o.locks.lock(gameID)
	defer unlock()

	g, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Phase() != models.PhaseVoting {
		return nil, fmt.Errorf("voting is closed for game %s: %w", gameID, ErrInvalidTransition)
	}
	u := g.UserByID(userID)
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", userID, game.ErrNotFound)
	}
	if u.VotedGif == "" {
		return nil, fmt.Errorf("user %s has not voted: %w", userID, ErrInvalidTransition)
	}

	gifID := u.VotedGif
	updated := g
	if gif := g.GifByID(gifID); gif != nil {
		unvoted := *gif
		unvoted.NumVotes--
		if updated, err = o.repo.ReplaceGif(ctx, gameID, gifID, unvoted); err != nil {
			return nil, fmt.Errorf("failed to retract vote: %w", err)
		}
	}

	voter := *u
	voter.VotedGif = ""
	updated, err = o.repo.ReplaceUser(ctx, gameID, userID, voter)
	if err != nil {
		return nil, fmt.Errorf("failed to clear voter: %w", err)
	}

	o.publish(ctx, events.EventVoteRemoved, gameID, events.VotePayload{GameID: gameID, GifID: gifID, UserID: userID})
	return updated, nil
}

// JoinGame adds a player to the session. Joining mid-round is allowed;
// the new player counts toward completion from the next check onward,
// so a join alone never closes a phase early.
func (o *Orchestrator) JoinGame(ctx context.Context, gameID, name string) (*models.Game, models.User, error) {
	unlock := o.locks.lock(gameID)
	defer unlock()

	u := models.User{ID: uuid.NewString(), Name: name}
	updated, err := o.repo.PushUser(ctx, gameID, u)
	if err != nil {
		return nil, models.User{}, fmt.Errorf("failed to join game: %w", err)
	}

	log.Info().Str("game_id", gameID).Str("user_id", u.ID).Str("name", name).Msg("user joined")
	o.publish(ctx, events.EventUserJoined, gameID, events.UserPayload{GameID: gameID, User: u})
	o.publishState(ctx, updated)
	return updated, u, nil
}

// LeaveGame removes a player and their submission. Votes cast for the
// removed gif are released so their owners can vote again. Removing a
// player can complete the current phase, so completion is rechecked.
func (o *Orchestrator) LeaveGame(ctx context.Context, gameID, userID string) (*models.Game, error) {
	unlock := o.locks.lock(gameID)
	defer unlock()

	g, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	leaving := g.UserByID(userID)
	if leaving == nil {
		return nil, fmt.Errorf("user %s: %w", userID, game.ErrNotFound)
	}

	updated, err := o.repo.RemoveUser(ctx, gameID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove user: %w", err)
	}

	if gif := g.GifByUser(userID); gif != nil {
		// The gif can already be gone when the sweep raced this call;
		// the snapshot from RemoveUser stays current then.
		if after, err := o.repo.RemoveGif(ctx, gameID, gif.ID); err == nil {
			updated = after
		} else if !errors.Is(err, game.ErrNotFound) {
			return nil, fmt.Errorf("failed to remove gif of leaving user: %w", err)
		}
		// Release the votes that pointed at the removed gif.
		for _, voter := range updated.Users {
			if voter.VotedGif != gif.ID {
				continue
			}
			released := voter
			released.VotedGif = ""
			updated, err = o.repo.ReplaceUser(ctx, gameID, voter.ID, released)
			if err != nil {
				return nil, fmt.Errorf("failed to release vote: %w", err)
			}
		}
		o.publish(ctx, events.EventGifDeleted, gameID, events.GifPayload{GameID: gameID, Gif: *gif})
	}

	// The leaver's own vote comes off the board too, or the remaining
	// vote total could never match the remaining player count.
	if leaving.VotedGif != "" {
		if gif := updated.GifByID(leaving.VotedGif); gif != nil {
			unvoted := *gif
			unvoted.NumVotes--
			updated, err = o.repo.ReplaceGif(ctx, gameID, gif.ID, unvoted)
			if err != nil {
				return nil, fmt.Errorf("failed to remove vote of leaving user: %w", err)
			}
		}
	}

	log.Info().Str("game_id", gameID).Str("user_id", userID).Msg("user left")
	o.publish(ctx, events.EventUserLeft, gameID, events.UserPayload{GameID: gameID, User: *leaving})

	switch {
	case SubmissionComplete(updated):
		updated, err = o.endSubmission(ctx, updated)
	case VotingComplete(updated):
		updated, err = o.endRound(ctx, updated)
	default:
		o.publishState(ctx, updated)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetTopic sets the round's topic prompt.
func (o *Orchestrator) SetTopic(ctx context.Context, gameID, text string) (*models.Game, error) {
	unlock := o.locks.lock(gameID)
	defer unlock()

	updated, err := o.repo.UpdateGameFields(ctx, gameID, game.FieldUpdate{Topic: strPtr(text)})
	if err != nil {
		return nil, fmt.Errorf("failed to set topic: %w", err)
	}

	o.publish(ctx, events.EventTopicCreated, gameID, events.TopicPayload{GameID: gameID, Text: text})
	o.publishState(ctx, updated)
	return updated, nil
}

// ClearTopic blanks the topic prompt.
func (o *Orchestrator) ClearTopic(ctx context.Context, gameID string) (*models.Game, error) {
	return o.SetTopic(ctx, gameID, "")
}

// Shutdown halts every running countdown.
func (o *Orchestrator) Shutdown() {
	o.clocks.CancelAll()
}

// tickBroadcast publishes the remaining time after each countdown tick.
func (o *Orchestrator) tickBroadcast(c models.Clock) {
	o.publish(context.Background(), events.EventRoundClock, c.GameID, events.ClockPayload{Clock: c})
}

// submissionExpired runs when the submission clock runs out. The phase
// may already have ended through a last submission that raced the
// clock; the conditional update inside endSubmission absorbs that. A
// callback belongs to the round its clock was started for: if the game
// moved on to another round before the callback got the lock, it must
// not fire.
func (o *Orchestrator) submissionExpired(gameID string, round int) {
	ctx := context.Background()
	unlock := o.locks.lock(gameID)
	defer unlock()

	g, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("submission clock fired for missing game")
		return
	}
	if g.RoundNumber != round || !g.SubmissionActive {
		return
	}
	if _, err := o.endSubmission(ctx, g); err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to end submission phase on expiry")
	}
}

// voteExpired runs when the voting clock runs out. Same round guard as
// submissionExpired.
func (o *Orchestrator) voteExpired(gameID string, round int) {
	ctx := context.Background()
	unlock := o.locks.lock(gameID)
	defer unlock()

	g, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("vote clock fired for missing game")
		return
	}
	if g.RoundNumber != round || !g.RoundActive || g.SubmissionActive {
		return
	}
	if _, err := o.endRound(ctx, g); err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to end round on expiry")
	}
}

// endSubmission closes the submission window and opens voting. The
// conditional update makes a second trigger a no-op, so a completing
// submission and an expiring clock cannot both transition the game.
// A round that ends submissions with an empty board skips voting.
func (o *Orchestrator) endSubmission(ctx context.Context, g *models.Game) (*models.Game, error) {
	updated, err := o.repo.UpdateGameFieldsIf(ctx, g.ID,
		game.Condition{SubmissionActive: boolPtr(true)},
		game.FieldUpdate{SubmissionActive: boolPtr(false)},
	)
	if errors.Is(err, game.ErrConflict) {
		return g, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to close submissions: %w", err)
	}

	o.clocks.Cancel(g.ID)

	if len(updated.SubmittedGifs) == 0 {
		log.Info().Str("game_id", g.ID).Int("round", updated.RoundNumber).Msg("no submissions, skipping voting")
		return o.endRound(ctx, updated)
	}

	round := updated.RoundNumber
	o.clocks.Start(g.ID, o.timers.VoteMinutes, o.timers.VoteSeconds,
		o.tickBroadcast, func(id string) { o.voteExpired(id, round) })

	log.Info().Str("game_id", g.ID).Int("round", updated.RoundNumber).Msg("voting opened")
	o.publishState(ctx, updated)
	return updated, nil
}

// endRound closes the round and applies the result: every gif tied at
// the top vote count is flagged a winner and each distinct owner scores
// a point. Idempotent under racing triggers through the conditional
// update.
func (o *Orchestrator) endRound(ctx context.Context, g *models.Game) (*models.Game, error) {
	updated, err := o.repo.UpdateGameFieldsIf(ctx, g.ID,
		game.Condition{RoundActive: boolPtr(true)},
		game.FieldUpdate{
			RoundActive:      boolPtr(false),
			SubmissionActive: boolPtr(false),
			ResetUserRound:   true,
		},
	)
	if errors.Is(err, game.ErrConflict) {
		return g, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to close round: %w", err)
	}

	o.clocks.Cancel(g.ID)

	res := ResolveWinners(updated)
	for _, gif := range res.WinningGifs {
		if updated, err = o.repo.ReplaceGif(ctx, g.ID, gif.ID, gif); err != nil {
			return nil, fmt.Errorf("failed to flag winning gif: %w", err)
		}
	}
	for _, winner := range res.Winners {
		if updated, err = o.repo.ReplaceUser(ctx, g.ID, winner.ID, winner); err != nil {
			return nil, fmt.Errorf("failed to score winner: %w", err)
		}
	}

	log.Info().
		Str("game_id", g.ID).
		Int("round", updated.RoundNumber).
		Int("winners", len(res.Winners)).
		Msg("round complete")
	o.publishState(ctx, updated)
	return updated, nil
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
