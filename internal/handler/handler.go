package handler

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"adsum/internal/domain"
	"adsum/internal/service"
	"adsum/internal/tracker"
)

// StatusReporter exposes the tracker's live view for the status page.
type StatusReporter interface {
	Status() tracker.Status
}

// PresenceHandler handles the attendance API requests.
type PresenceHandler struct {
	svc    *service.PresenceService
	status StatusReporter
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(svc *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{svc: svc}
}

// SetStatusReporter wires the tracker in for GET /api/status.
func (h *PresenceHandler) SetStatusReporter(s StatusReporter) {
	h.status = s
}

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// createUserRequest is the POST /api/users body. ID is optional and
// derived from the name when absent.
type createUserRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Role string `json:"role"`
	MAC  string `json:"mac"`
}

// CreateUser registers a new user
func (h *PresenceHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		h.writeError(w, "Invalid role", err.Error(), http.StatusBadRequest)
		return
	}

	user, err := domain.NewUser(req.ID, req.Name, role, req.MAC)
	if err != nil {
		h.writeError(w, "Invalid user", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, domain.ErrDuplicateUser) {
			h.writeError(w, "Already registered", err.Error(), http.StatusConflict)
			return
		}
		log.Printf("Failed to create user: %v", err)
		h.writeError(w, "Failed to create user", err.Error(), http.StatusInternalServerError)
		return
	}

	presence, err := h.svc.User(user.MAC)
	if err != nil {
		log.Printf("Failed to fetch created user: %v", err)
		w.WriteHeader(http.StatusCreated)
		return
	}
	h.writeJSON(w, presence, http.StatusCreated)
}

// ListUsers returns every registered user keyed by MAC (the live board
// data).
func (h *PresenceHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users := h.svc.Users()
	board := make(map[string]domain.Presence, len(users))
	for _, p := range users {
		board[p.MAC] = p
	}
	h.writeJSON(w, board, http.StatusOK)
}

// GetUser returns a single user's presence
func (h *PresenceHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	mac, ok := h.macParam(w, r)
	if !ok {
		return
	}

	presence, err := h.svc.User(mac)
	if err != nil {
		h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
		return
	}
	h.writeJSON(w, presence, http.StatusOK)
}

// Login manually opens a session
func (h *PresenceHandler) Login(w http.ResponseWriter, r *http.Request) {
	mac, ok := h.macParam(w, r)
	if !ok {
		return
	}

	err := h.svc.Login(r.Context(), mac, time.Now())
	switch {
	case err == nil:
		// fallthrough to the fresh snapshot below
	case errors.Is(err, domain.ErrAlreadyLoggedIn):
		h.writeError(w, "Already logged in", err.Error(), http.StatusConflict)
		return
	case errors.Is(err, domain.ErrUnknownUser):
		h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
		return
	default:
		log.Printf("Manual login for %s failed: %v", mac, err)
		h.writeError(w, "Failed to log in", err.Error(), http.StatusInternalServerError)
		return
	}

	presence, _ := h.svc.User(mac)
	h.writeJSON(w, presence, http.StatusOK)
}

// Logout manually closes a session
func (h *PresenceHandler) Logout(w http.ResponseWriter, r *http.Request) {
	mac, ok := h.macParam(w, r)
	if !ok {
		return
	}

	err := h.svc.Logout(r.Context(), mac, time.Now())
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotLoggedIn):
		h.writeError(w, "Not logged in", err.Error(), http.StatusConflict)
		return
	case errors.Is(err, domain.ErrUnknownUser):
		h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
		return
	default:
		log.Printf("Manual logout for %s failed: %v", mac, err)
		h.writeError(w, "Failed to log out", err.Error(), http.StatusInternalServerError)
		return
	}

	presence, _ := h.svc.User(mac)
	h.writeJSON(w, presence, http.StatusOK)
}

// LogoutAll closes every open session (admin sweep)
func (h *PresenceHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	closed, err := h.svc.LogoutAll(r.Context(), time.Now())
	if err != nil {
		log.Printf("Sweep closed %d sessions with errors: %v", closed, err)
		h.writeError(w, "Logout sweep completed with errors",
			fmt.Sprintf("closed %d sessions: %v", closed, err), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, map[string]int{"closed": closed}, http.StatusOK)
}

// Hours returns the per-user attendance totals. ?format=csv downloads
// a spreadsheet instead.
func (h *PresenceHandler) Hours(w http.ResponseWriter, r *http.Request) {
	totals, err := h.svc.TotalHours(r.Context(), time.Now())
	if err != nil {
		log.Printf("Failed to aggregate hours: %v", err)
		h.writeError(w, "Failed to aggregate hours", err.Error(), http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		h.writeHoursCSV(w, totals)
		return
	}
	h.writeJSON(w, totals, http.StatusOK)
}

// writeHoursCSV streams the totals as a spreadsheet download.
func (h *PresenceHandler) writeHoursCSV(w http.ResponseWriter, totals []domain.UserHours) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="hours.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"name", "role", "hours"})
	for _, row := range totals {
		cw.Write([]string{row.Name, string(row.Role), strconv.FormatFloat(row.Hours, 'f', 3, 64)})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("Failed to write hours CSV: %v", err)
	}
}

// Status reports the scanner state
func (h *PresenceHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		h.writeError(w, "Tracker not running", "", http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, h.status.Status(), http.StatusOK)
}

// macParam extracts and normalizes the {mac} path segment. Writes the
// error response itself when the value is malformed.
func (h *PresenceHandler) macParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.PathValue("mac")
	if raw == "" {
		h.writeError(w, "Invalid MAC", "MAC address is required", http.StatusBadRequest)
		return "", false
	}
	mac, err := domain.NormalizeMAC(raw)
	if err != nil {
		h.writeError(w, "Invalid MAC", err.Error(), http.StatusBadRequest)
		return "", false
	}
	return mac, true
}

// writeJSON writes a JSON response
func (h *PresenceHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeError writes a JSON error response
func (h *PresenceHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}
