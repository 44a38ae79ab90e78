package clock

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Registry tracks at most one running countdown per game. Starting a
// countdown for a game that already has one replaces it; the replaced
// countdown is halted and its expiry can no longer fire.
type Registry struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	active map[string]*countdown
}

func NewRegistry(clk clockwork.Clock) *Registry {
	return &Registry{
		clock:  clk,
		active: make(map[string]*countdown),
	}
}

// Start begins a countdown from the given remaining time. Any existing
// countdown for the same game is halted and drained before the new one
// starts ticking, so there is never more than one live timer per game.
func (r *Registry) Start(gameID string, minutes, seconds int, onTick TickFunc, onExpire ExpireFunc) {
	c := newCountdown(gameID, minutes, seconds)

	r.mu.Lock()
	prev := r.active[gameID]
	r.active[gameID] = c
	r.mu.Unlock()

	if prev != nil {
		prev.halt()
		<-prev.done
		log.Debug().Str("game_id", gameID).Msg("replaced running countdown")
	}

	go c.run(r.clock, onTick, func(expired *countdown) bool {
		if !r.unregister(gameID, expired) {
			return false
		}
		if onExpire != nil {
			onExpire(gameID)
		}
		return true
	})

	log.Debug().
		Str("game_id", gameID).
		Int("minutes", minutes).
		Int("seconds", seconds).
		Msg("started countdown")
}

// unregister removes the entry only if it still maps to the given
// countdown. A stale countdown that was already replaced or cancelled
// loses the race here and must not fire.
func (r *Registry) unregister(gameID string, c *countdown) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[gameID] != c {
		return false
	}
	delete(r.active, gameID)
	return true
}

// Cancel halts the game's countdown if one is running and waits for
// its goroutine to exit. Returns whether a countdown was actually
// cancelled; cancelling an idle game is a no-op. Must not be called
// from inside the same countdown's tick callback.
func (r *Registry) Cancel(gameID string) bool {
	r.mu.Lock()
	c, ok := r.active[gameID]
	if ok {
		delete(r.active, gameID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	c.halt()
	<-c.done
	log.Debug().Str("game_id", gameID).Msg("cancelled countdown")
	return true
}

// Active reports whether the game currently has a running countdown.
func (r *Registry) Active(gameID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[gameID]
	return ok
}

// CancelAll halts every running countdown. Used on shutdown.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	clocks := make([]*countdown, 0, len(r.active))
	for id, c := range r.active {
		clocks = append(clocks, c)
		delete(r.active, id)
	}
	r.mu.Unlock()

	for _, c := range clocks {
		c.halt()
		<-c.done
	}
}
