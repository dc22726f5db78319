package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 32 << 20

// Routes returns a function mounting the bulk upload endpoint on the
// member router, i.e. POST /api/members/bulk.
func Routes(imp *Importer) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/bulk", handleBulk(imp))
	}
}

// handleBulk accepts either a multipart form with a "file" field or a raw
// CSV/JSON body.
func handleBulk(imp *Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		body, format, name, err := uploadedFile(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		defer body.Close()

		rows, invalid, err := Parse(body, format)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for i := range rows {
			rows[i].File = name
		}

		q := r.URL.Query()
		report, err := imp.Import(r.Context(), rows, Options{
			Overwrite: q.Get("overwrite") == "true",
			Vectorize: q.Get("vectorize") == "true",
		})
		if errors.Is(err, ErrNoIndexer) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil && report == nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, v := range invalid {
			report.reject(name, v)
		}
		report.Rows += len(invalid)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "report": report})
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func uploadedFile(r *http.Request) (io.ReadCloser, Format, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", "", errors.New(`multipart upload must include a "file" field`)
		}
		format, ok := FormatOf(header.Filename)
		if !ok {
			file.Close()
			return nil, "", "", errors.New("uploaded file must be .csv or .json")
		}
		return file, format, header.Filename, nil
	}

	switch {
	case mediaType == "application/json":
		return r.Body, FormatJSON, "upload.json", nil
	case mediaType == "text/csv", mediaType == "", strings.HasPrefix(mediaType, "text/"):
		return r.Body, FormatCSV, "upload.csv", nil
	}
	return nil, "", "", errors.New("unsupported content type " + mediaType)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
