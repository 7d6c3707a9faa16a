package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alem-hub/weekly-leaderboard/internal/application/command"
	"github.com/alem-hub/weekly-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/weekly-leaderboard/internal/domain/shared"
	"github.com/alem-hub/weekly-leaderboard/pkg/logger"
)

// BoardReader is the read side of the leaderboard.
type BoardReader interface {
	// Render returns the personal snapshot text of a user.
	Render(userID int64) (string, error)

	// Position returns the line of a user.
	Position(userID int64) (leaderboard.Line, error)

	// Lines returns the whole board, first place first.
	Lines() []leaderboard.Line

	// Window returns the bounds of the current week.
	Window() (begin, end time.Time)
}

// LineView is the JSON form of one board line.
type LineView struct {
	Rank   int64  `json:"rank"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Score  string `json:"score"`
}

// StandingsView is the JSON form of the whole board.
type StandingsView struct {
	WeekBegin time.Time  `json:"week_begin"`
	WeekEnd   time.Time  `json:"week_end"`
	Users     []LineView `json:"users"`
}

func newLineView(l leaderboard.Line) LineView {
	return LineView{
		Rank:   l.Rank,
		UserID: l.UserID,
		Name:   l.Name,
		Score:  l.Score.StringFixed(2),
	}
}

// Snapshot serves GET /api/v1/users/{id}/snapshot as text/plain, the same text a
// connected user receives through the outbound queue.
func Snapshot(board BoardReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := command.ParseUserID(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		text, err := board.Render(id)
		if err != nil {
			writeError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(text))
	}
}

// Position serves GET /api/v1/users/{id}: the rank and score of one user.
func Position(board BoardReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := command.ParseUserID(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		line, err := board.Position(id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newLineView(line))
	}
}

// Standings serves GET /api/v1/leaderboard: every user in rank order.
func Standings(board BoardReader) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		lines := board.Lines()
		begin, end := board.Window()

		view := StandingsView{
			WeekBegin: begin,
			WeekEnd:   end,
			Users:     make([]LineView, 0, len(lines)),
		}
		for _, l := range lines {
			view.Users = append(view.Users, newLineView(l))
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain error kinds onto HTTP status codes. Unclassified errors
// are logged and answered with 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsInvalidInput(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case shared.IsNotFound(err), errors.Is(err, shared.ErrEmptyBoard):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			logger.Err(err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
