package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// SettingsHandler reads and updates the runtime engine tunables.
type SettingsHandler struct {
	stores *store.Stores
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(stores *store.Stores) *SettingsHandler {
	return &SettingsHandler{stores: stores}
}

// settingsJSON is the wire shape of the engine settings.
type settingsJSON struct {
	AutoAssignThreshold float64 `json:"auto_assign_threshold"`
	SuggestionThreshold float64 `json:"suggestion_threshold"`
	MinClusterSize      int     `json:"min_cluster_size"`
	ClusterEpsilon      float64 `json:"cluster_epsilon"`
	PrototypeQuota      int     `json:"prototype_quota"`
	CentroidMinFaces    int     `json:"centroid_min_faces"`
	MaxCandidates       int     `json:"max_candidates"`
	FindMoreAnchors     int     `json:"find_more_anchors"`
	PropagationLimit    int     `json:"propagation_limit"`
}

func toSettingsJSON(s store.EngineSettings) settingsJSON {
	return settingsJSON{
		AutoAssignThreshold: s.AutoAssignThreshold,
		SuggestionThreshold: s.SuggestionThreshold,
		MinClusterSize:      s.MinClusterSize,
		ClusterEpsilon:      s.ClusterEpsilon,
		PrototypeQuota:      s.PrototypeQuota,
		CentroidMinFaces:    s.CentroidMinFaces,
		MaxCandidates:       s.MaxCandidates,
		FindMoreAnchors:     s.FindMoreAnchors,
		PropagationLimit:    s.PropagationLimit,
	}
}

func (j settingsJSON) toSettings() store.EngineSettings {
	return store.EngineSettings{
		AutoAssignThreshold: j.AutoAssignThreshold,
		SuggestionThreshold: j.SuggestionThreshold,
		MinClusterSize:      j.MinClusterSize,
		ClusterEpsilon:      j.ClusterEpsilon,
		PrototypeQuota:      j.PrototypeQuota,
		CentroidMinFaces:    j.CentroidMinFaces,
		MaxCandidates:       j.MaxCandidates,
		FindMoreAnchors:     j.FindMoreAnchors,
		PropagationLimit:    j.PropagationLimit,
	}
}

// validate checks invariants between thresholds.
func (j settingsJSON) validate() string {
	switch {
	case j.AutoAssignThreshold <= 0 || j.AutoAssignThreshold > 1:
		return "auto_assign_threshold must be in (0, 1]"
	case j.SuggestionThreshold <= 0 || j.SuggestionThreshold > 1:
		return "suggestion_threshold must be in (0, 1]"
	case j.SuggestionThreshold > j.AutoAssignThreshold:
		return "suggestion_threshold must not exceed auto_assign_threshold"
	case j.MinClusterSize < 2:
		return "min_cluster_size must be at least 2"
	case j.ClusterEpsilon <= 0 || j.ClusterEpsilon >= 1:
		return "cluster_epsilon must be in (0, 1)"
	case j.PrototypeQuota < 1:
		return "prototype_quota must be at least 1"
	case j.CentroidMinFaces < 1:
		return "centroid_min_faces must be at least 1"
	case j.MaxCandidates < 1:
		return "max_candidates must be at least 1"
	case j.FindMoreAnchors < 1:
		return "find_more_anchors must be at least 1"
	case j.PropagationLimit < 0:
		return "propagation_limit must not be negative"
	}
	return ""
}

// Get returns the current engine settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.stores.Settings.LoadSettings(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSettingsJSON(settings))
}

// Update replaces the engine settings. The new values apply to
// subsequent runs; a run already in flight keeps its snapshot.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req settingsJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.stores.Settings.SaveSettings(r.Context(), req.toSettings()); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}
