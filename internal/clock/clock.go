package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"gifwars/internal/models"
)

// TickFunc receives the remaining time after each one-second tick.
type TickFunc func(c models.Clock)

// ExpireFunc runs once when a countdown reaches zero and the following
// tick fires. It is never called for cancelled or replaced countdowns.
type ExpireFunc func(gameID string)

// countdown is one running phase timer. Its minutes and seconds are
// owned by the run goroutine; nothing else reads them.
type countdown struct {
	gameID   string
	minutes  int
	seconds  int
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newCountdown(gameID string, minutes, seconds int) *countdown {
	return &countdown{
		gameID:  gameID,
		minutes: minutes,
		seconds: seconds,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// halt stops the run loop. Safe to call more than once and from any
// goroutine.
func (c *countdown) halt() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// run drives the countdown on wall-clock seconds. Each tick decrements
// the remaining time and reports it; the tick after 0:00 was reported
// fires expiry. The expiry gate decides whether this countdown is still
// the registered one for its game.
func (c *countdown) run(clk clockwork.Clock, onTick TickFunc, expire func(*countdown) bool) {
	defer close(c.done)
	ticker := clk.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.Chan():
			if c.seconds == 0 && c.minutes == 0 {
				if expire(c) {
					log.Debug().Str("game_id", c.gameID).Msg("countdown expired")
				}
				return
			}
			if c.seconds > 0 {
				c.seconds--
			} else {
				c.minutes--
				c.seconds = 59
			}
			if onTick != nil {
				onTick(models.Clock{
					GameID:  c.gameID,
					Minutes: c.minutes,
					Seconds: c.seconds,
				})
			}
		}
	}
}
