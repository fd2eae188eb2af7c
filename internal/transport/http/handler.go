package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"testseries-attempt-service/internal/app"
	"testseries-attempt-service/internal/domain"
)

// studentHeader carries the authenticated student id, injected by the
// identity gateway in front of this service.
const studentHeader = "X-Student-ID"

// AttemptHandler exposes the attempt lifecycle over REST.
type AttemptHandler struct {
	service *app.AttemptService
}

func NewAttemptHandler(service *app.AttemptService) *AttemptHandler {
	return &AttemptHandler{service: service}
}

// Register mounts the attempt routes on mux.
func (h *AttemptHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/attempts/start", h.StartAttempt)
	mux.HandleFunc("GET /api/attempts/{id}", h.LoadAttempt)
	mux.HandleFunc("POST /api/attempts/{id}/submit", h.SubmitAttempt)
}

type startRequest struct {
	TestID string `json:"testId"`
}

type submitRequest struct {
	// Answers maps question id to the submitted value; JSON null (or a
	// missing key) means the question was left unanswered.
	Answers map[string]*string `json:"answers"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (h *AttemptHandler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	studentID := r.Header.Get(studentHeader)
	if studentID == "" {
		writeJSON(w, http.StatusUnauthorized, errorPayload{Message: "missing " + studentHeader + " header"})
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TestID == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "testId is required"})
		return
	}

	result, err := h.service.Start(r.Context(), studentID, req.TestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AttemptHandler) LoadAttempt(w http.ResponseWriter, r *http.Request) {
	studentID := r.Header.Get(studentHeader)
	if studentID == "" {
		writeJSON(w, http.StatusUnauthorized, errorPayload{Message: "missing " + studentHeader + " header"})
		return
	}

	view, err := h.service.Load(r.Context(), r.PathValue("id"), studentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AttemptHandler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	studentID := r.Header.Get(studentHeader)
	if studentID == "" {
		writeJSON(w, http.StatusUnauthorized, errorPayload{Message: "missing " + studentHeader + " header"})
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid submit payload"})
		return
	}

	result, err := h.service.Submit(r.Context(), r.PathValue("id"), studentID, req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeError maps domain errors onto HTTP statuses, keeping the user-facing
// message from the sentinel.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrTestNotFound), errors.Is(err, domain.ErrAttemptNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrAttemptExpired):
		status = http.StatusGone
	case errors.Is(err, domain.ErrAttemptLimit),
		errors.Is(err, domain.ErrAlreadySubmitted),
		errors.Is(err, domain.ErrAttemptInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		writeJSON(w, status, errorPayload{Message: "internal error"})
		return
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
