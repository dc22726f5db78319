package freshness

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type refreshRequest struct {
	Version string `json:"version"`
	Enhance bool   `json:"enhance"`
}

type refreshResponse struct {
	RunID   string `json:"run_id"`
	Version string `json:"version"`
	Status  Status `json:"status"`
}

// RegisterRoutes mounts the refresh endpoints. Runs started over HTTP
// use baseCtx so they outlive the request.
func RegisterRoutes(r chi.Router, baseCtx context.Context, p *Pipeline, runs *RunStore, hub *Hub, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r.Route("/api/refresh", func(r chi.Router) {
		r.Post("/", handleStart(baseCtx, p))
		r.Get("/runs", handleListRuns(runs))
		r.Get("/runs/{id}", handleGetRun(runs))
	})
	if hub != nil {
		r.Get("/ws/refresh", StreamHandler(hub, logger))
	}
}

func handleStart(baseCtx context.Context, p *Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
		}
		if req.Version == "" {
			req.Version = string(V1)
		}

		h, err := p.Start(baseCtx, req.Version, RunOptions{Enhance: req.Enhance})
		var unsupported *UnsupportedVersionError
		switch {
		case errors.As(err, &unsupported):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, ErrRunInProgress):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusAccepted, refreshResponse{
			RunID:   h.RunID,
			Version: req.Version,
			Status:  StatusRunning,
		})
	}
}

func handleListRuns(runs *RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runs == nil {
			writeJSON(w, http.StatusOK, []Result{})
			return
		}
		q := r.URL.Query()
		filter := RunFilter{
			Version: q.Get("version"),
			Status:  Status(q.Get("status")),
			Limit:   50,
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				filter.Limit = n
			}
		}

		list, err := runs.List(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if list == nil {
			list = []Result{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleGetRun(runs *RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runs == nil {
			writeError(w, http.StatusNotFound, "run history is disabled")
			return
		}
		res, err := runs.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if res == nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// StreamHandler upgrades to a websocket and forwards hub events until the
// client disconnects.
func StreamHandler(hub *Hub, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		events, unsubscribe := hub.Subscribe()
		defer unsubscribe()

		if err := conn.WriteJSON(Event{Type: "subscribed"}); err != nil {
			return
		}

		// Reading is only used to notice the client going away.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						logger.Debug("websocket read", zap.Error(err))
					}
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if err := conn.WriteJSON(e); err != nil {
					logger.Debug("websocket write", zap.Error(err))
					return
				}
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
