package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MacPhobos/image-search-sub004/internal/engine"
	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// ClustersHandler handles unknown-cluster endpoints.
type ClustersHandler struct {
	engine *engine.Engine
	stores *store.Stores
}

// NewClustersHandler creates a new clusters handler.
func NewClustersHandler(eng *engine.Engine, stores *store.Stores) *ClustersHandler {
	return &ClustersHandler{
		engine: eng,
		stores: stores,
	}
}

// clusterJSON is the wire shape of an unknown cluster.
type clusterJSON struct {
	ID                 int64     `json:"id"`
	Cohesion           float64   `json:"cohesion"`
	RepresentativeFace int64     `json:"representative_face"`
	FaceCount          int       `json:"face_count"`
	CreatedAt          time.Time `json:"created_at"`
}

func toClusterJSON(c store.UnknownCluster) clusterJSON {
	return clusterJSON{
		ID:                 c.ID,
		Cohesion:           c.Cohesion,
		RepresentativeFace: c.RepresentativeFace,
		FaceCount:          c.FaceCount,
		CreatedAt:          c.CreatedAt,
	}
}

// List returns all current unknown clusters.
func (h *ClustersHandler) List(w http.ResponseWriter, r *http.Request) {
	clusters, err := h.stores.Clusters.ListClusters(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}

	out := make([]clusterJSON, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, toClusterJSON(c))
	}
	respondJSON(w, http.StatusOK, map[string]any{"clusters": out})
}

// Faces returns the member face ids of a cluster.
func (h *ClustersHandler) Faces(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cluster, err := h.stores.Clusters.GetCluster(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	faceIDs, err := h.stores.Clusters.ClusterFaceIDs(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cluster":  toClusterJSON(*cluster),
		"face_ids": faceIDs,
	})
}

// Split re-clusters one cluster's members with a tighter radius.
func (h *ClustersHandler) Split(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings, err := h.stores.Settings.LoadSettings(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}

	result, err := h.engine.SplitCluster(r.Context(), id, settings)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	clusters := make([]clusterJSON, 0, len(result.Clusters))
	for _, c := range result.Clusters {
		clusters = append(clusters, toClusterJSON(c))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"clusters": clusters,
		"noise":    len(result.Noise),
		"failed":   len(result.Failed),
	})
}

// LabelRequest represents a cluster label request.
type LabelRequest struct {
	PersonID int64 `json:"person_id"`
}

// Label assigns every member of a cluster to a person and removes the
// cluster.
func (h *ClustersHandler) Label(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req LabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.PersonID <= 0 {
		respondError(w, http.StatusBadRequest, "person_id is required")
		return
	}

	assigned, err := h.engine.LabelCluster(r.Context(), id, req.PersonID)
	if err != nil && !store.IsDesync(err) {
		respondStoreError(w, err)
		return
	}

	resp := map[string]any{
		"cluster_id":     id,
		"person_id":      req.PersonID,
		"assigned_faces": assigned,
	}
	if err != nil {
		resp["warning"] = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}
