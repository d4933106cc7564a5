package handlers

import (
	"net/http"
	"time"

	"github.com/MacPhobos/image-search-sub004/internal/engine"
	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// PrototypesHandler handles prototype anchor endpoints.
type PrototypesHandler struct {
	engine *engine.Engine
	stores *store.Stores
}

// NewPrototypesHandler creates a new prototypes handler.
func NewPrototypesHandler(eng *engine.Engine, stores *store.Stores) *PrototypesHandler {
	return &PrototypesHandler{
		engine: eng,
		stores: stores,
	}
}

// prototypeJSON is the wire shape of a prototype.
type prototypeJSON struct {
	ID        int64     `json:"id"`
	PersonID  int64     `json:"person_id"`
	FaceID    int64     `json:"face_id"`
	Role      string    `json:"role"`
	Pinned    bool      `json:"pinned"`
	Quality   float64   `json:"quality"`
	CreatedAt time.Time `json:"created_at"`
}

func toPrototypeJSON(p store.Prototype) prototypeJSON {
	return prototypeJSON{
		ID:        p.ID,
		PersonID:  p.PersonID,
		FaceID:    p.FaceID,
		Role:      string(p.Role),
		Pinned:    p.Pinned,
		Quality:   p.Quality,
		CreatedAt: p.CreatedAt,
	}
}

// List returns a person's current prototypes.
func (h *PrototypesHandler) List(w http.ResponseWriter, r *http.Request) {
	personID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.stores.Persons.GetPerson(r.Context(), personID); err != nil {
		respondStoreError(w, err)
		return
	}
	prototypes, err := h.stores.Prototypes.ListPrototypes(r.Context(), personID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	out := make([]prototypeJSON, 0, len(prototypes))
	for _, p := range prototypes {
		out = append(out, toPrototypeJSON(p))
	}
	respondJSON(w, http.StatusOK, map[string]any{"prototypes": out})
}

// Recompute re-selects a person's prototypes from their labeled faces.
// Pinned prototypes always survive.
func (h *PrototypesHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	personID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	prototypes, err := h.engine.RecomputePrototypes(r.Context(), personID)
	if err != nil && !store.IsDesync(err) {
		respondStoreError(w, err)
		return
	}

	out := make([]prototypeJSON, 0, len(prototypes))
	for _, p := range prototypes {
		out = append(out, toPrototypeJSON(p))
	}
	resp := map[string]any{"prototypes": out}
	if err != nil {
		resp["warning"] = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

// Pin protects a prototype from automatic eviction. Rejected with a
// conflict when the person's quota is already filled by pins.
func (h *PrototypesHandler) Pin(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.PinPrototype(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"pinned": true})
}

// Unpin releases a pinned prototype back to automatic management.
func (h *PrototypesHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.UnpinPrototype(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"pinned": false})
}
