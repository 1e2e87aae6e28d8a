// Package api exposes HTTP handlers for the roster service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"example.com/rosters/internal/domain"
)

// Handler coordinates HTTP requests with the roster service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", rootRedirect)
	mux.Handle("GET /static/", staticHandler())
	mux.HandleFunc("GET /activities", h.listActivities)
	mux.HandleFunc("GET /activities/{name}", h.getActivity)
	mux.HandleFunc("POST /activities/{name}/signup", h.signup)
	mux.HandleFunc("DELETE /activities/{name}/unregister", h.withdraw)
	mux.HandleFunc("POST /activities/{name}/withdraw", h.withdraw)
	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func rootRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/static/index.html", http.StatusTemporaryRedirect)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.service.ListActivities(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityIndex(activities))
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	name, err := domain.ParseActivityName(r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	activity, err := h.service.GetActivity(r.Context(), name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	name, email, ok := rosterParams(w, r)
	if !ok {
		return
	}

	if _, err := h.service.Signup(r.Context(), name, email); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Signed up %s for %s", email, name)})
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	name, email, ok := rosterParams(w, r)
	if !ok {
		return
	}

	if _, err := h.service.Withdraw(r.Context(), name, email); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Unregistered %s from %s", email, name)})
}

func rosterParams(w http.ResponseWriter, r *http.Request) (domain.ActivityName, string, bool) {
	name, err := domain.ParseActivityName(r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return "", "", false
	}
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "missing email parameter")
		return "", "", false
	}
	return name, email, true
}

// MessageResponse confirms a roster change.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Activity not found")
	case errors.Is(err, domain.ErrAlreadyEnrolled):
		writeError(w, http.StatusBadRequest, "already_enrolled", "Student is already signed up")
	case errors.Is(err, domain.ErrCapacityExceeded):
		writeError(w, http.StatusBadRequest, "activity_full", "Activity is full")
	case errors.Is(err, domain.ErrNotEnrolled):
		writeError(w, http.StatusBadRequest, "not_enrolled", "Student is not signed up for this activity")
	case errors.Is(err, domain.ErrInvalidEmail), errors.Is(err, domain.ErrInvalidActivityName):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
