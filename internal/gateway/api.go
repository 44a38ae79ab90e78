package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"gifwars/internal/game"
	"gifwars/internal/models"
	"gifwars/internal/round"
)

// API is the HTTP mutation surface over the round engine. State flows
// back to clients through the WebSocket feed; responses carry the
// post-operation snapshot for the caller's convenience.
type API struct {
	orch *round.Orchestrator
}

func NewAPI(orch *round.Orchestrator) *API {
	return &API{orch: orch}
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/games", a.handleCreateGame)
	mux.HandleFunc("GET /api/games/{id}", a.handleGetGame)
	mux.HandleFunc("POST /api/games/{id}/start", a.handleStartGame)
	mux.HandleFunc("POST /api/games/{id}/rounds", a.handleNewRound)
	mux.HandleFunc("PUT /api/games/{id}/topic", a.handleSetTopic)
	mux.HandleFunc("DELETE /api/games/{id}/topic", a.handleClearTopic)
	mux.HandleFunc("POST /api/games/{id}/users", a.handleJoinGame)
	mux.HandleFunc("DELETE /api/games/{id}/users/{userId}", a.handleLeaveGame)
	mux.HandleFunc("POST /api/games/{id}/gifs", a.handleSubmitGif)
	mux.HandleFunc("DELETE /api/games/{id}/users/{userId}/gif", a.handleDeleteGif)
	mux.HandleFunc("POST /api/games/{id}/votes", a.handleVote)
	mux.HandleFunc("DELETE /api/games/{id}/users/{userId}/vote", a.handleRetractVote)
}

func (a *API) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HostName string `json:"hostName"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.HostName == "" {
		http.Error(w, "hostName is required", http.StatusBadRequest)
		return
	}

	g, err := a.orch.CreateGame(r.Context(), req.HostName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, gameResponse{Game: g})
}

func (a *API) handleGetGame(w http.ResponseWriter, r *http.Request) {
	g, err := a.orch.GetGame(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{Game: g})
}

func (a *API) handleStartGame(w http.ResponseWriter, r *http.Request) {
	g, err := a.orch.StartGame(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{Game: g})
}

func (a *API) handleNewRound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	g, err := a.orch.NewRound(r.Context(), r.PathValue("id"), req.Topic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{Game: g})
}

func (a *API) handleSetTopic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	g, err := a.orch.SetTopic(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{Game: g})
}

func (a *API) handleClearTopic(w http.ResponseWriter, r *http.Request) {
	g, err := a.orch.ClearTopic(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{Game: g})
}

func (a *API) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	g, u, err := a.orch.JoinGame(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{Game: g, User: u})
}

func (a *API) handleLeaveGame(w http.ResponseWriter, r *http.Request) {
	g, err := a.orch.LeaveGame(r.Context(), r.PathValue("id"), r.PathValue("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{Game: g})
}

func (a *API) handleSubmitGif(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string `json:"userId"`
		GifID      string `json:"gifId"`
		Content    string `json:"content"`
		SearchText string `json:"gifSearchText"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Content == "" {
		http.Error(w, "userId and content are required", http.StatusBadRequest)
		return
	}

	g, err := a.orch.SubmitGif(r.Context(), r.PathValue("id"), req.UserID, round.GifSubmission{
		GifID:      req.GifID,
		Content:    req.Content,
		SearchText: req.SearchText,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, gameResponse{Game: g})
}

func (a *API) handleDeleteGif(w http.ResponseWriter, r *http.Request) {
	g, err := a.orch.DeleteGif(r.Context(), r.PathValue("id"), r.PathValue("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{Game: g})
}

func (a *API) handleVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		GifID  string `json:"gifId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.GifID == "" {
		http.Error(w, "userId and gifId are required", http.StatusBadRequest)
		return
	}

	g, err := a.orch.VoteForGif(r.Context(), r.PathValue("id"), req.UserID, req.GifID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{Game: g})
}

func (a *API) handleRetractVote(w http.ResponseWriter, r *http.Request) {
	g, err := a.orch.RetractVote(r.Context(), r.PathValue("id"), r.PathValue("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{Game: g})
}

type gameResponse struct {
	Game *models.Game `json:"game"`
}

type joinResponse struct {
	Game *models.Game `json:"game"`
	User models.User  `json:"user"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, round.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error().Err(err).Msg("request failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
