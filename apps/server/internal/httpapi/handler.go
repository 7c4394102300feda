// Package httpapi exposes the battle lobby over JSON HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"agent-arena/apps/server/internal/lobby"
	"agent-arena/arena"
	"agent-arena/replay"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	lobby *lobby.Lobby
	stats func() any
}

type healthResponse struct {
	lobby.Health
	Gateway any `json:"gateway,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the handler. stats, if set, is reported under "gateway" on
// the health route.
func New(lby *lobby.Lobby, stats func() any) *Handler {
	return &Handler{lobby: lby, stats: stats}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/api/battles", h.handleBattles)
	mux.HandleFunc("/api/battles/", h.handleBattle)
	mux.HandleFunc("/api/agents", h.handleAgents)
	mux.HandleFunc("/api/agents/", h.handleAgent)
	mux.HandleFunc("/api/market/analysis", h.handleMarketAnalysis)
	mux.HandleFunc("/api/market/snapshot", h.handleMarketSnapshot)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := healthResponse{Health: h.lobby.Health()}
	if h.stats != nil {
		resp.Gateway = h.stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleBattles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		battles, total := h.lobby.ListBattles(arena.ListFilter{
			Status:  arena.Status(strings.TrimSpace(q.Get("status"))),
			AgentID: strings.TrimSpace(q.Get("agentId")),
			Offset:  parseInt(q.Get("offset"), 0),
			Limit:   parseInt(q.Get("limit"), 0),
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"items": battles,
			"total": total,
		})
	case http.MethodPost:
		var req lobby.CreateRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		snap, err := h.lobby.CreateBattle(req)
		if err != nil {
			writeLobbyError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, snap)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleBattle serves /api/battles/{id}[/round|/autoplay|/verify] and
// /api/battles/leaderboard.
func (h *Handler) handleBattle(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/battles/"), "/")
	parts := strings.Split(path, "/")
	battleID := strings.TrimSpace(parts[0])
	if battleID == "" {
		writeError(w, http.StatusBadRequest, "missing battle id")
		return
	}
	if len(parts) > 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if len(parts) == 1 && battleID == "leaderboard" {
		h.handleLeaderboard(w, r)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		snap, err := h.lobby.GetBattle(battleID)
		if err != nil {
			writeLobbyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case "round":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		result, err := h.lobby.Advance(battleID)
		if err != nil {
			writeLobbyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case "autoplay":
		h.handleAutoplay(w, r, battleID)
	case "verify":
		h.handleVerify(w, r, battleID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) handleAutoplay(w http.ResponseWriter, r *http.Request, battleID string) {
	switch r.Method {
	case http.MethodPost:
		if err := h.lobby.StartAutoplay(battleID); err != nil {
			writeLobbyError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"battleId": battleID, "autoplay": true})
	case http.MethodDelete:
		if !h.lobby.StopAutoplay(battleID) {
			writeError(w, http.StatusNotFound, "autoplay not running")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"battleId": battleID, "autoplay": false})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request, battleID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap, err := h.lobby.Verify(battleID)
	var mismatch *replay.ReplayError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"battleId": battleID,
			"verified": true,
			"rounds":   snap.RoundNumber,
		})
	case errors.As(err, &mismatch):
		log.Printf("[HTTP] Battle %s failed verification: %v", battleID, err)
		writeJSON(w, http.StatusOK, map[string]any{
			"battleId": battleID,
			"verified": false,
			"rounds":   snap.RoundNumber,
			"mismatch": mismatch,
		})
	default:
		writeLobbyError(w, err)
	}
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": h.lobby.Leaderboard(parseInt(r.URL.Query().Get("limit"), 10)),
	})
}

func (h *Handler) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fighters := h.lobby.Roster().All()
	if t := strings.TrimSpace(r.URL.Query().Get("type")); t != "" {
		fighters = h.lobby.Roster().ByType(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": fighters})
}

func (h *Handler) handleAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/agents/"), "/"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing agent id")
		return
	}
	f, ok := h.lobby.Roster().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":       f,
		"personality": f.Personality(),
	})
}

func (h *Handler) handleMarketAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.lobby.Market().Analyze())
}

func (h *Handler) handleMarketSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.lobby.Market().Snapshot())
}

func parseInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeLobbyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, arena.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, arena.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, arena.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[HTTP] Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
