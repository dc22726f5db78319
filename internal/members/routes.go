package members

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Indexer pushes records into the vector index. It is optional for the
// member routes; when nil, ?vectorize=true is rejected.
type Indexer interface {
	InsertMembers(ctx context.Context, records []Member, version string) (int, error)
}

// RegisterRoutes mounts member endpoints under /api/members on the given
// router. extra mounts additional handlers on the same sub-router.
func RegisterRoutes(r chi.Router, store Store, indexer Indexer, extra ...func(chi.Router)) {
	r.Route("/api/members", func(r chi.Router) {
		r.Get("/", handleList(store))
		r.Post("/", handleUpsert(store, indexer))
		r.Get("/{id}", handleGetByID(store))
		for _, mount := range extra {
			mount(r)
		}
	})
}

func handleList(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var filter ListFilter
		if v := q.Get("from"); v != "" {
			filter.From, _ = strconv.ParseInt(v, 10, 64)
		}
		if v := q.Get("to"); v != "" {
			filter.To, _ = strconv.ParseInt(v, 10, 64)
		}
		if v := q.Get("limit"); v != "" {
			filter.Limit, _ = strconv.Atoi(v)
		}
		if v := q.Get("offset"); v != "" {
			filter.Offset, _ = strconv.Atoi(v)
		}

		records, err := store.List(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if records == nil {
			records = []Member{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func handleGetByID(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "member id must be an integer")
			return
		}

		m, err := store.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if m == nil {
			writeError(w, http.StatusNotFound, "member not found")
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

type upsertResponse struct {
	Member     Member `json:"member"`
	Created    bool   `json:"created"`
	Vectorized int    `json:"vectorized"`
}

func handleUpsert(store Store, indexer Indexer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m Member
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if m.Versions == nil {
			m.Versions = DefaultVersions()
		}
		if err := m.Validate(); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				writeError(w, http.StatusUnprocessableEntity, verr.Error())
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		q := r.URL.Query()
		overwrite := q.Get("overwrite") == "true"
		vectorize := q.Get("vectorize") == "true"
		if vectorize && indexer == nil {
			writeError(w, http.StatusBadRequest, "vectorize is not available on this server")
			return
		}

		exists, err := store.Exists(r.Context(), m.MemberNo)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if exists && !overwrite {
			writeError(w, http.StatusConflict, "member already exists; pass overwrite=true to replace it")
			return
		}

		if err := store.Upsert(r.Context(), []Member{m}); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := upsertResponse{Member: m, Created: !exists}
		if vectorize {
			n, err := indexer.InsertMembers(r.Context(), []Member{m}, "")
			if err != nil {
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}
			resp.Vectorized = n
		}

		status := http.StatusOK
		if resp.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, resp)
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
