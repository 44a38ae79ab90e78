package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gifwars/internal/clock"
	"gifwars/internal/events"
	"gifwars/internal/game"
	"gifwars/internal/models"
	"gifwars/internal/round"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	orch := round.NewOrchestrator(
		game.NewMemoryRepository(),
		events.NewLogPublisher(zerolog.Nop()),
		clock.NewRegistry(clockwork.NewFakeClock()),
		round.DefaultTimerConfig(),
	)
	t.Cleanup(orch.Shutdown)

	mux := http.NewServeMux()
	NewAPI(orch).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

type gamePayload struct {
	Game *models.Game `json:"game"`
	User models.User  `json:"user"`
}

func TestGameLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	var created gamePayload
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/games", map[string]string{"hostName": "ana"}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, created.Game)
	gameID := created.Game.ID
	host := created.Game.Users[0]

	var joined gamePayload
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/games/"+gameID+"/users", map[string]string{"name": "bo"}, &joined)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	guest := joined.User
	require.NotEmpty(t, guest.ID)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/games/"+gameID+"/start", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var started gamePayload
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/games/"+gameID+"/rounds", map[string]string{"topic": "mondays"}, &started)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.PhaseSubmission, started.Game.Phase())
	assert.Equal(t, "mondays", started.Game.Topic)

	for _, u := range []models.User{host, guest} {
		resp = doJSON(t, http.MethodPost, srv.URL+"/api/games/"+gameID+"/gifs", map[string]string{
			"userId":  u.ID,
			"gifId":   "giphy-" + u.ID,
			"content": "https://media.giphy.com/x.gif",
		}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	var current gamePayload
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/games/"+gameID, nil, &current)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, models.PhaseVoting, current.Game.Phase())

	target := current.Game.GifByUser(host.ID)
	require.NotNil(t, target)
	for _, u := range []models.User{host, guest} {
		resp = doJSON(t, http.MethodPost, srv.URL+"/api/games/"+gameID+"/votes", map[string]string{
			"userId": u.ID,
			"gifId":  target.ID,
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/games/"+gameID, nil, &current)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.PhaseRoundComplete, current.Game.Phase())
	assert.Equal(t, 1, current.Game.UserByID(host.ID).Score)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	// Unknown game id maps to 404.
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/games/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var created gamePayload
	doJSON(t, http.MethodPost, srv.URL+"/api/games", map[string]string{"hostName": "ana"}, &created)
	gameID := created.Game.ID
	userID := created.Game.Users[0].ID

	// Voting before the game started maps to 409.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/games/"+gameID+"/votes", map[string]string{
		"userId": userID,
		"gifId":  "whatever",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Missing fields map to 400.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/games", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Leaving with an unknown user maps to 404.
	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/games/%s/users/ghost", srv.URL, gameID), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
