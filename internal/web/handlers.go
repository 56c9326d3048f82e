package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/krwhynot/CRM-sub001/internal/csvio"
	"github.com/krwhynot/CRM-sub001/internal/importer"
	"github.com/krwhynot/CRM-sub001/internal/logging"
	"github.com/krwhynot/CRM-sub001/internal/mapper"
)

// handleCatalog returns the target field catalogue consumed by mapping UIs.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat := s.service.Catalog()

	type fieldView struct {
		Name       string   `json:"name"`
		Label      string   `json:"label"`
		Type       string   `json:"type"`
		Required   bool     `json:"required"`
		EnumValues []string `json:"enumValues,omitempty"`
		MaxLength  int      `json:"maxLength,omitempty"`
	}
	fields := make([]fieldView, len(cat.Fields))
	for i, f := range cat.Fields {
		fields[i] = fieldView{
			Name:       f.Name,
			Label:      f.Label,
			Type:       f.Type.String(),
			Required:   f.Required,
			EnumValues: f.EnumValues,
			MaxLength:  f.MaxLength,
		}
	}

	writeJSON(w, map[string]interface{}{
		"version": cat.Version,
		"entity":  cat.Entity,
		"fields":  fields,
	})
}

// handleCreateImport accepts a multipart file upload, parses it, and returns
// the import ID with the proposed mappings for review.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	importID, reviews, err := s.service.CreateImport(r.Context(), header.Filename, data)
	if err != nil {
		var parseErr *csvio.ParseError
		if errors.As(err, &parseErr) {
			writeError(w, http.StatusUnprocessableEntity, parseErr.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logging.FromContext(r.Context()).Info("import created",
		"import_id", importID,
		"file", header.Filename,
	)
	writeJSON(w, map[string]interface{}{
		"importId": importID,
		"mappings": reviews,
	})
}

// handleGetMappings returns the current review state for every header.
func (s *Server) handleGetMappings(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	reviews, err := s.service.Mappings(importID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"mappings": reviews})
}

// mappingUpdate is the request body for confirming, overriding, or rejecting
// a single header's mapping.
type mappingUpdate struct {
	Header      string `json:"header"`
	Action      string `json:"action"` // confirm, override, reject
	TargetField string `json:"targetField,omitempty"`
}

// handleUpdateMapping applies one review decision.
func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	var req mappingUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Header == "" {
		writeError(w, http.StatusBadRequest, "header is required")
		return
	}

	var err error
	switch req.Action {
	case "confirm":
		err = s.service.ConfirmMapping(importID, req.Header)
	case "override":
		if req.TargetField == "" {
			writeError(w, http.StatusBadRequest, "targetField is required for override")
			return
		}
		err = s.service.OverrideMapping(importID, req.Header, req.TargetField)
	case "reject":
		err = s.service.RejectMapping(importID, req.Header)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reviews, err := s.service.Mappings(importID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"mappings": reviews})
}

// handleStart launches the write phase once the review gate passes.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	if err := s.service.Start(importID); err != nil {
		if errors.Is(err, importer.ErrTooManyRuns) {
			w.Header().Set("Retry-After", "10")
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		var missing *mapper.MissingRequiredError
		if errors.As(err, &missing) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":         missing.Error(),
				"missingFields": missing.Fields,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, map[string]string{"status": "started"})
}

// handleProgress streams progress snapshots via Server-Sent Events.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	progressCh, err := s.service.SubscribeProgress(importID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleResult blocks until the run finishes and returns the final outcome.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	outcome, err := s.service.Result(r.Context(), importID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, outcome)
}

// handleCancel requests a stop at the next batch boundary.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	if err := s.service.Cancel(importID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "cancelling"})
}

// handleErrorReport returns the excluded-row report as a CSV download.
func (s *Server) handleErrorReport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	data, err := s.service.ErrorReportCSV(importID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "import-errors-"+importID+".csv"))
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
