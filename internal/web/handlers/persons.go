package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/MacPhobos/image-search-sub004/internal/engine"
	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// PersonsHandler handles person identity endpoints.
type PersonsHandler struct {
	engine *engine.Engine
	stores *store.Stores
}

// NewPersonsHandler creates a new persons handler.
func NewPersonsHandler(eng *engine.Engine, stores *store.Stores) *PersonsHandler {
	return &PersonsHandler{
		engine: eng,
		stores: stores,
	}
}

// personJSON is the wire shape of a person.
type personJSON struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	MergedInto *int64    `json:"merged_into,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toPersonJSON(p store.Person) personJSON {
	return personJSON{
		ID:         p.ID,
		Name:       p.Name,
		Status:     string(p.Status),
		MergedInto: p.MergedInto,
		CreatedAt:  p.CreatedAt,
	}
}

// CreatePersonRequest represents a person creation request.
type CreatePersonRequest struct {
	Name string `json:"name"`
}

// Create creates a new person identity.
func (h *PersonsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	person, err := h.stores.Persons.CreatePerson(r.Context(), req.Name)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPersonJSON(*person))
}

// List returns all persons.
func (h *PersonsHandler) List(w http.ResponseWriter, r *http.Request) {
	persons, err := h.stores.Persons.ListPersons(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}

	out := make([]personJSON, 0, len(persons))
	for _, p := range persons {
		out = append(out, toPersonJSON(p))
	}
	respondJSON(w, http.StatusOK, map[string]any{"persons": out})
}

// Get returns one person with their labeled-face count.
func (h *PersonsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	person, err := h.stores.Persons.GetPerson(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	faceCount, err := h.stores.Faces.CountByPerson(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"person":     toPersonJSON(*person),
		"face_count": faceCount,
	})
}

// MergeRequest represents a person merge request.
type MergeRequest struct {
	IntoPersonID int64 `json:"into_person_id"`
}

// Merge folds the person in the URL into a surviving person: faces and
// prototypes move, pending suggestions targeting the merged person
// expire, and the survivor's centroid is recomputed.
func (h *PersonsHandler) Merge(w http.ResponseWriter, r *http.Request) {
	fromID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.IntoPersonID <= 0 {
		respondError(w, http.StatusBadRequest, "into_person_id is required")
		return
	}

	result, err := h.engine.MergePersons(r.Context(), fromID, req.IntoPersonID)
	if err != nil && !store.IsDesync(err) {
		respondStoreError(w, err)
		return
	}

	resp := map[string]any{
		"merged_person_id":    fromID,
		"surviving_person_id": req.IntoPersonID,
		"moved_faces":         result.MovedFaces,
		"expired_suggestions": result.ExpiredSuggestions,
	}
	if err != nil {
		resp["warning"] = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

// centroidJSON is the wire shape of a person centroid version.
type centroidJSON struct {
	ID         int64     `json:"id"`
	PersonID   int64     `json:"person_id"`
	Version    int       `json:"version"`
	FaceCount  int       `json:"face_count"`
	SourceHash string    `json:"source_hash"`
	CreatedAt  time.Time `json:"created_at"`
}

func toCentroidJSON(c store.PersonCentroid) centroidJSON {
	return centroidJSON{
		ID:         c.ID,
		PersonID:   c.PersonID,
		Version:    c.Version,
		FaceCount:  c.FaceCount,
		SourceHash: c.SourceHash,
		CreatedAt:  c.CreatedAt,
	}
}

// Centroid returns the person's latest centroid version and whether it
// is stale relative to the current labeled-face set.
func (h *PersonsHandler) Centroid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.stores.Persons.GetPerson(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}

	stale, err := h.engine.CentroidStale(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	latest, err := h.stores.Centroids.LatestCentroid(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	resp := map[string]any{"stale": stale}
	if latest != nil {
		resp["centroid"] = toCentroidJSON(*latest)
	}
	respondJSON(w, http.StatusOK, resp)
}

// RecomputeCentroid computes a new centroid version for the person.
func (h *PersonsHandler) RecomputeCentroid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	centroid, err := h.engine.RecomputeCentroid(r.Context(), id)
	if err != nil && !store.IsDesync(err) {
		respondStoreError(w, err)
		return
	}

	resp := map[string]any{"centroid": toCentroidJSON(*centroid)}
	if err != nil {
		resp["warning"] = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}
