package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// SettingsRepository provides PostgreSQL-backed engine settings
// storage. Settings live in a singleton row; when none exists the
// defaults apply.
type SettingsRepository struct {
	pool *Pool
}

// NewSettingsRepository creates a new PostgreSQL settings repository.
func NewSettingsRepository(pool *Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// LoadSettings reads the current settings, falling back to defaults
// when the row has never been written.
func (r *SettingsRepository) LoadSettings(ctx context.Context) (store.EngineSettings, error) {
	var s store.EngineSettings
	err := r.pool.QueryRow(ctx, `
		SELECT auto_assign_threshold, suggestion_threshold, min_cluster_size,
		       cluster_epsilon, prototype_quota, centroid_min_faces,
		       max_candidates, find_more_anchors, propagation_limit
		FROM engine_settings WHERE id = 1
	`).Scan(
		&s.AutoAssignThreshold, &s.SuggestionThreshold, &s.MinClusterSize,
		&s.ClusterEpsilon, &s.PrototypeQuota, &s.CentroidMinFaces,
		&s.MaxCandidates, &s.FindMoreAnchors, &s.PropagationLimit,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DefaultSettings(), nil
	}
	if err != nil {
		return store.EngineSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

// SaveSettings validates and persists new settings.
func (r *SettingsRepository) SaveSettings(ctx context.Context, s store.EngineSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO engine_settings (
			id, auto_assign_threshold, suggestion_threshold, min_cluster_size,
			cluster_epsilon, prototype_quota, centroid_min_faces,
			max_candidates, find_more_anchors, propagation_limit, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			auto_assign_threshold = EXCLUDED.auto_assign_threshold,
			suggestion_threshold = EXCLUDED.suggestion_threshold,
			min_cluster_size = EXCLUDED.min_cluster_size,
			cluster_epsilon = EXCLUDED.cluster_epsilon,
			prototype_quota = EXCLUDED.prototype_quota,
			centroid_min_faces = EXCLUDED.centroid_min_faces,
			max_candidates = EXCLUDED.max_candidates,
			find_more_anchors = EXCLUDED.find_more_anchors,
			propagation_limit = EXCLUDED.propagation_limit,
			updated_at = NOW()
	`, s.AutoAssignThreshold, s.SuggestionThreshold, s.MinClusterSize,
		s.ClusterEpsilon, s.PrototypeQuota, s.CentroidMinFaces,
		s.MaxCandidates, s.FindMoreAnchors, s.PropagationLimit)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Verify interface compliance.
var _ store.SettingsStore = (*SettingsRepository)(nil)
