package gateway

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/flemzord/mcphub/internal/sandbox"
)

// executionView is the API shape of one execution record.
type executionView struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	ExitCode   int       `json:"exit_code"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

func toView(ex sandbox.Execution) executionView {
	return executionView{
		ID:         ex.ID,
		State:      ex.State,
		ExitCode:   ex.ExitCode,
		Stdout:     ex.Stdout,
		Stderr:     ex.Stderr,
		StartedAt:  ex.StartedAt,
		DurationMS: ex.Duration.Milliseconds(),
	}
}

// handleListExecutions serves GET /api/executions?limit=N.
func (g *Gateway) handleListExecutions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		execs, err := g.history.List(r.Context(), limit)
		if err != nil {
			g.logger.Error("listing executions", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		views := make([]executionView, 0, len(execs))
		for _, ex := range execs {
			views = append(views, toView(ex))
		}
		writeJSON(w, map[string]any{"executions": views})
	}
}

// handleGetExecution serves GET /api/executions/{id}.
func (g *Gateway) handleGetExecution() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ex, err := g.history.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			g.logger.Error("loading execution", "id", id, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, toView(ex))
	}
}

// handleStreamExecution serves GET /api/executions/{id}/stream as a
// websocket of live output chunks. The stream closes when the execution
// finishes. An execution that is not running delivers no chunks and is not
// closed by the server; the connection stays open until the client leaves.
func (g *Gateway) handleStreamExecution() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		ch, cancel := g.sandbox.Subscribe(id)
		defer cancel()

		ctx := r.Context()
		for {
			select {
			case chunk, ok := <-ch:
				if !ok {
					_ = conn.Close(websocket.StatusNormalClosure, "execution finished")
					return
				}
				data, err := json.Marshal(chunk)
				if err != nil {
					return
				}
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
