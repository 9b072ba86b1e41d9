package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/memogarden/memogarden-core/internal/audit"
	"github.com/memogarden/memogarden-core/internal/isotime"
	"github.com/memogarden/memogarden-core/internal/store"
)

type createRecurrenceRequest struct {
	RRule       string          `json:"rrule"`
	Entries     json.RawMessage `json:"entries"`
	ValidFrom   string          `json:"valid_from"`
	ValidUntil  *string         `json:"valid_until"`
	GroupID     *string         `json:"group_id"`
	DerivedFrom *string         `json:"derived_from"`
}

type patchRecurrenceRequest struct {
	RRule      *string         `json:"rrule"`
	Entries    json.RawMessage `json:"entries"`
	ValidFrom  *string         `json:"valid_from"`
	ValidUntil *string         `json:"valid_until"`
}

type listRecurrencesResponse struct {
	Items []store.Recurrence `json:"items"`
	AsOf  time.Time          `json:"as_of"`
}

func (a *API) handleRecurrencesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRecurrence(w, r)
	case http.MethodGet:
		a.listRecurrences(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRecurrenceResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/recurrences/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getRecurrence(w, r, id)
	case http.MethodPatch:
		a.patchRecurrence(w, r, id)
	case http.MethodDelete:
		a.deleteRecurrence(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) createRecurrence(w http.ResponseWriter, r *http.Request) {
	var req createRecurrenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RRule) == "" {
		writeError(w, r, http.StatusBadRequest, "rrule is required")
		return
	}
	if strings.TrimSpace(req.ValidFrom) == "" {
		writeError(w, r, http.StatusBadRequest, "valid_from is required")
		return
	}
	validFrom, err := isotime.ParseDate(req.ValidFrom)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "valid_from must be YYYY-MM-DD")
		return
	}
	var validUntil *time.Time
	if req.ValidUntil != nil && strings.TrimSpace(*req.ValidUntil) != "" {
		t, err := isotime.ParseDate(*req.ValidUntil)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "valid_until must be YYYY-MM-DD")
			return
		}
		validUntil = &t
	}
	entries := "{}"
	if len(req.Entries) > 0 {
		if !json.Valid(req.Entries) {
			writeError(w, r, http.StatusBadRequest, "entries must be valid JSON")
			return
		}
		entries = string(req.Entries)
	}

	fields := store.RecurrenceFields{
		RRule:      strings.TrimSpace(req.RRule),
		Entries:    entries,
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
	}
	if req.GroupID != nil {
		fields.Provenance.GroupID = *req.GroupID
	}
	if req.DerivedFrom != nil {
		fields.Provenance.DerivedFrom = *req.DerivedFrom
	}

	core, err := a.store.Core(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	defer core.Release()

	id, err := core.Recurrences().Create(r.Context(), fields)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	rec, err := core.Recurrences().Get(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "recurrence.created", map[string]any{
		"recurrence_id": id,
		"rrule":         fields.RRule,
	})
	w.Header().Set("Location", "/api/v1/recurrences/"+id)
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) getRecurrence(w http.ResponseWriter, r *http.Request, id string) {
	core, err := a.store.Core(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	defer core.Release()

	rec, err := core.Recurrences().Get(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) listRecurrences(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	includeSuperseded := r.URL.Query().Get("include_superseded") == "true"

	core, err := a.store.Core(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	defer core.Release()

	items, err := core.Recurrences().List(r.Context(), includeSuperseded, limit, offset)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listRecurrencesResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) patchRecurrence(w http.ResponseWriter, r *http.Request, id string) {
	var req patchRecurrenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	patch := store.RecurrencePatch{
		RRule: req.RRule,
	}
	if len(req.Entries) > 0 {
		if !json.Valid(req.Entries) {
			writeError(w, r, http.StatusBadRequest, "entries must be valid JSON")
			return
		}
		entries := string(req.Entries)
		patch.Entries = &entries
	}
	if req.ValidFrom != nil {
		t, err := isotime.ParseDate(*req.ValidFrom)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "valid_from must be YYYY-MM-DD")
			return
		}
		patch.ValidFrom = &t
	}
	if req.ValidUntil != nil {
		t, err := isotime.ParseDate(*req.ValidUntil)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "valid_until must be YYYY-MM-DD")
			return
		}
		patch.ValidUntil = &t
	}

	core, err := a.store.Core(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	defer core.Release()

	if err := core.Recurrences().Update(r.Context(), id, patch); err != nil {
		handleStoreError(w, r, err)
		return
	}
	rec, err := core.Recurrences().Get(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "recurrence.updated", map[string]any{
		"recurrence_id": id,
	})
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) deleteRecurrence(w http.ResponseWriter, r *http.Request, id string) {
	core, err := a.store.Core(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	defer core.Release()

	tombstoneID, err := core.Recurrences().Delete(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "recurrence.deleted", map[string]any{
		"recurrence_id": id,
		"tombstone_id":  tombstoneID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":      id,
		"tombstone_id": tombstoneID,
	})
}
