package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agent-arena/apps/server/internal/codec"
	"agent-arena/arena"
)

type HTTPHandler struct {
	ledger Service
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(ledgerService Service) *HTTPHandler {
	return &HTTPHandler{ledger: ledgerService}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/ledger/battles", h.handleRecent)
	mux.HandleFunc("/api/ledger/battles/", h.handleBattles)
}

func (h *HTTPHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	items, err := h.ledger.ListRecent(ctx, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query recent battles failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
	})
}

func (h *HTTPHandler) handleBattles(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/ledger/battles/"))
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "events" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	battleID := strings.TrimSpace(parts[0])
	if battleID == "" {
		writeError(w, http.StatusBadRequest, "missing battle id")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	events, err := h.ledger.GetBattleEvents(ctx, battleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "battle not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "query battle events failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"battle_id": battleID,
		"events":    events,
		"rounds":    decodeRounds(events),
	})
}

// decodeRounds extracts the round results from a stored tape, skipping
// frames that are not round results.
func decodeRounds(events []EventItem) []arena.RoundResult {
	rounds := make([]arena.RoundResult, 0, len(events))
	for _, e := range events {
		if e.EventType != codec.TypeRoundResult {
			continue
		}
		env, err := e.Envelope()
		if err != nil {
			continue
		}
		if r, err := codec.DecodeRoundResult(env); err == nil {
			rounds = append(rounds, r)
		}
	}
	return rounds
}

func parseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 20
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 20
	}
	if n > 100 {
		return 100
	}
	return n
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
