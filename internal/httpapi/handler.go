package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/directory"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/models"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/queue"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/store"
)

type Handler struct {
	store     store.EntryStore
	directory store.ProviderDirectory
}

func NewHandler(entryStore store.EntryStore, providerDirectory store.ProviderDirectory) *Handler {
	return &Handler{
		store:     entryStore,
		directory: providerDirectory,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/entries", h.handleRegister)
	mux.HandleFunc("/api/entries/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/entries/", h.handleEntry)
	mux.HandleFunc("/api/queues", h.handleQueueSnapshot)
	mux.HandleFunc("/api/rooms", h.handleRooms)
	return mux
}

type registerRequest struct {
	PatientID    string `json:"patient_id"`
	DepartmentID string `json:"department_id"`
	Stage        string `json:"stage"`
}

type registerResponse struct {
	models.QueueEntry
	Created bool `json:"created"`
}

type callNextRequest struct {
	DepartmentID string `json:"department_id"`
	Stage        string `json:"stage"`
}

type roomView struct {
	Room     string `json:"room"`
	Provider string `json:"provider"`
	Occupied bool   `json:"occupied"`
}

type roomsResponse struct {
	Rooms    []roomView `json:"rooms"`
	NextFree string     `json:"next_free,omitempty"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.PatientID = strings.TrimSpace(req.PatientID)
	req.DepartmentID = strings.TrimSpace(req.DepartmentID)
	req.Stage = strings.TrimSpace(req.Stage)

	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient_id is required")
		return
	}
	if req.Stage != "" && !models.ValidStage(req.Stage) {
		writeError(w, http.StatusBadRequest, "invalid_request", "stage must be optometrist or doctor")
		return
	}

	entry, created, err := h.store.Register(r.Context(), store.RegisterInput{
		PatientID:    req.PatientID,
		DepartmentID: req.DepartmentID,
		Stage:        req.Stage,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{QueueEntry: entry, Created: created})
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.DepartmentID = strings.TrimSpace(req.DepartmentID)
	req.Stage = strings.TrimSpace(req.Stage)
	if req.DepartmentID == "" || req.Stage == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "department_id and stage are required")
		return
	}
	if !models.ValidStage(req.Stage) {
		writeError(w, http.StatusBadRequest, "invalid_request", "stage must be optometrist or doctor")
		return
	}

	entry, err := h.store.CallNext(r.Context(), store.CallNextInput{
		DepartmentID: req.DepartmentID,
		Stage:        req.Stage,
		CalledAt:     time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	logOperatorAction(r.Context(), queue.ActionCallNext, entry.EntryID)
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleEntry(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/entries/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGetEntry(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleEntryAction(w, r, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request, entryID string) {
	if !isValidUUID(entryID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "entry_id must be a UUID")
		return
	}
	entry, err := h.store.GetEntry(r.Context(), entryID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleEntryAction(w http.ResponseWriter, r *http.Request, entryID, action string) {
	if !isValidUUID(entryID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "entry_id must be a UUID")
		return
	}

	input := store.ActionInput{EntryID: entryID, OccurredAt: time.Now().UTC()}

	var entry models.QueueEntry
	var err error
	switch action {
	case "start":
		entry, err = h.store.StartProcessing(r.Context(), input)
	case "complete":
		entry, err = h.store.Complete(r.Context(), input)
	case "hold":
		entry, err = h.store.Hold(r.Context(), input)
	case "return":
		entry, err = h.store.ReturnToQueue(r.Context(), input)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	logOperatorAction(r.Context(), action, entryID)
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleQueueSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	departmentID := strings.TrimSpace(r.URL.Query().Get("department_id"))
	stage := strings.TrimSpace(r.URL.Query().Get("stage"))
	if departmentID == "" || stage == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "department_id and stage are required")
		return
	}
	if !models.ValidStage(stage) {
		writeError(w, http.StatusBadRequest, "invalid_request", "stage must be optometrist or doctor")
		return
	}

	entries, err := h.store.ListQueue(r.Context(), departmentID, stage)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	departmentID := strings.TrimSpace(r.URL.Query().Get("department_id"))
	stage := strings.TrimSpace(r.URL.Query().Get("stage"))
	if departmentID == "" || stage == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "department_id and stage are required")
		return
	}
	if !models.ValidStage(stage) {
		writeError(w, http.StatusBadRequest, "invalid_request", "stage must be optometrist or doctor")
		return
	}

	providers, err := h.directory.ListProviders(r.Context(), departmentID, stage)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	entries, err := h.store.ListQueue(r.Context(), departmentID, stage)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	occupied := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Room != nil && queue.RoomAllowed(entry.Status) {
			occupied = append(occupied, *entry.Room)
		}
	}
	taken := make(map[string]struct{}, len(occupied))
	for _, room := range occupied {
		taken[room] = struct{}{}
	}

	resp := roomsResponse{Rooms: make([]roomView, 0, len(providers))}
	for _, p := range providers {
		_, busy := taken[p.Room]
		resp.Rooms = append(resp.Rooms, roomView{Room: p.Room, Provider: p.Name, Occupied: busy})
	}
	if free, ok := queue.FirstFreeRoom(directory.Rooms(providers), occupied); ok {
		resp.NextFree = free
	}
	writeJSON(w, http.StatusOK, resp)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found", "entry not found"
	case errors.Is(err, store.ErrPatientNotFound):
		return http.StatusNotFound, "patient_not_found", "patient not found"
	case errors.Is(err, store.ErrNoCapacity):
		return http.StatusConflict, "no_capacity", "no waiting entry or free room"
	case errors.Is(err, store.ErrDepartmentMismatch):
		return http.StatusConflict, "department_mismatch", "department does not match patient record"
	case errors.Is(err, store.ErrInvalidStage):
		return http.StatusBadRequest, "invalid_stage", "stage must be optometrist or doctor"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
