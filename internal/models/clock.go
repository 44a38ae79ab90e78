package models

// Clock is the broadcast snapshot of a running phase countdown.
// It is ephemeral: rebuilt on every clock start and discarded on
// cancel or expiry, never persisted.
type Clock struct {
	GameID  string `json:"gameId"`
	Minutes int    `json:"minutes"`
	Seconds int    `json:"seconds"`
}
