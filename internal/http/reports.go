package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/potholewatch/backend/internal/http/middleware"
	"github.com/potholewatch/backend/internal/jurisdiction"
	"github.com/potholewatch/backend/internal/report"
)

// Predict runs the detector on an uploaded image without storing anything.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	image, ok := h.readUpload(w, r, "image")
	if !ok {
		return
	}

	count, err := h.reports.Predict(r.Context(), image)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]int{"defect_count": count})
}

// CreateReport accepts a multipart submission. The reporter is taken from the
// bearer token when one is present; anonymous reports are allowed.
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	image, ok := h.readUpload(w, r, "image")
	if !ok {
		return
	}

	sub := report.Submission{
		Image:        image,
		Latitude:     firstFormValue(r, "lat", "latitude"),
		Longitude:    firstFormValue(r, "lng", "longitude"),
		Address:      r.FormValue("address"),
		ReporterID:   httpmiddleware.GetSubject(r.Context()),
		ReporterName: httpmiddleware.GetName(r.Context()),
	}

	created, err := h.reports.Create(r.Context(), sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, created)
}

// ListReports applies the access policy for the caller plus optional status
// and pagination filters.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := report.ListOptions{}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, ok := report.ParseStatus(raw)
		if !ok {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "status must be Pending or Resolved", map[string]string{"field": "status"})
			return
		}
		opts.Status = &st
	}

	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "limit must be a non-negative integer", map[string]string{"field": "limit"})
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "offset must be a non-negative integer", map[string]string{"field": "offset"})
		return
	}

	caller := callerFrom(r)
	if !httpmiddleware.Authenticated(r.Context()) {
		caller = report.Caller{
			UserID: strings.TrimSpace(q.Get("user_id")),
			Role:   strings.TrimSpace(q.Get("role")),
		}
	}

	reports, err := h.reports.List(r.Context(), caller, opts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, reports)
}

// GetReport returns a single report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rep)
}

// ResolveReport runs the resolution audit on the uploaded after-repair photo.
func (h *Handler) ResolveReport(w http.ResponseWriter, r *http.Request) {
	image, ok := h.readUpload(w, r, "resolved_image")
	if !ok {
		return
	}

	resolved, err := h.reports.Resolve(r.Context(), callerFrom(r), chi.URLParam(r, "id"), image)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, resolved)
}

// DeleteReport removes a report.
func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	if err := h.reports.Delete(r.Context(), callerFrom(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readUpload parses the multipart body and returns the named file. It writes
// the error response itself and returns false on failure.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "VALIDATION",
				fmt.Sprintf("upload exceeds %d MB", h.maxUpload>>20), map[string]string{"field": field})
			return nil, false
		}
		WriteError(w, http.StatusBadRequest, "VALIDATION", "multipart form expected", map[string]string{"field": field})
		return nil, false
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "no image uploaded", map[string]string{"field": field})
		return nil, false
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		WriteError(w, http.StatusRequestEntityTooLarge, "VALIDATION",
			fmt.Sprintf("upload exceeds %d MB", h.maxUpload>>20), map[string]string{"field": field})
		return nil, false
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "could not read upload", map[string]string{"field": field})
		return nil, false
	}
	return data, true
}

func callerFrom(r *http.Request) report.Caller {
	ctx := r.Context()
	caller := report.Caller{
		UserID: httpmiddleware.GetSubject(ctx),
		Role:   httpmiddleware.GetRole(ctx),
		Name:   httpmiddleware.GetName(ctx),
	}
	if a, ok := jurisdiction.ParseAuthority(httpmiddleware.GetAuthority(ctx)); ok {
		caller.Authority = a
	}
	return caller
}

func firstFormValue(r *http.Request, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(r.FormValue(key)); v != "" {
			return v
		}
	}
	return ""
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}
