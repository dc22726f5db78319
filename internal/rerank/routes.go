package rerank

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts recommendation endpoints under /api/recommendations.
func RegisterRoutes(r chi.Router, rr *Reranker, defaultVersion string) {
	r.Route("/api/recommendations", func(r chi.Router) {
		r.Get("/", handleRange(rr, defaultVersion))
		r.Get("/{id}", handleRecommend(rr, defaultVersion))
	})
}

func versionParam(r *http.Request, fallback string) string {
	if v := r.URL.Query().Get("version"); v != "" {
		return v
	}
	return fallback
}

func handleRecommend(rr *Reranker, defaultVersion string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "member id must be a positive integer")
			return
		}
		version := versionParam(r, defaultVersion)

		rec, err := rr.RecommendByID(r.Context(), id, version)
		var perr *ParseError
		switch {
		case errors.Is(err, ErrMemberNotFound):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case errors.As(err, &perr):
			writeError(w, http.StatusBadGateway, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		case rec == nil:
			writeError(w, http.StatusNotFound, "no similar members found for this version")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleRange(rr *Reranker, defaultVersion string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
		if err1 != nil || err2 != nil || from <= 0 || to < from {
			writeError(w, http.StatusBadRequest, "from and to must be positive integers with from <= to")
			return
		}

		res, err := rr.RecommendRange(r.Context(), from, to, versionParam(r, defaultVersion))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if q.Get("format") == "csv" {
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="recommendations.csv"`)
			w.WriteHeader(http.StatusOK)
			WriteCSV(w, res.Pairs)
			return
		}
		writeJSON(w, http.StatusOK, res)
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
