package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

const clusterColumns = `id, cohesion, representative_face, face_count, created_at`

// ClusterRepository provides PostgreSQL-backed unknown-cluster storage.
type ClusterRepository struct {
	pool *Pool
}

// NewClusterRepository creates a new PostgreSQL cluster repository.
func NewClusterRepository(pool *Pool) *ClusterRepository {
	return &ClusterRepository{pool: pool}
}

func scanClusterRow(scanner interface{ Scan(...any) error }) (store.UnknownCluster, error) {
	var c store.UnknownCluster
	if err := scanner.Scan(&c.ID, &c.Cohesion, &c.RepresentativeFace, &c.FaceCount, &c.CreatedAt); err != nil {
		return c, fmt.Errorf("scan cluster: %w", err)
	}
	return c, nil
}

// ReplaceClusters atomically rebuilds the clusters covering a scope of
// faces: memberships within the scope are cleared, clusters left empty
// are dropped, and the drafts are inserted with their members wired up.
func (r *ClusterRepository) ReplaceClusters(ctx context.Context, scopeFaceIDs []int64, drafts []store.ClusterDraft) ([]store.UnknownCluster, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(scopeFaceIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			"UPDATE faces SET cluster_id = NULL WHERE id = ANY($1)",
			pq.Array(scopeFaceIDs)); err != nil {
			return nil, fmt.Errorf("clear cluster memberships: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM unknown_clusters c
		WHERE NOT EXISTS (SELECT 1 FROM faces f WHERE f.cluster_id = c.id)
	`); err != nil {
		return nil, fmt.Errorf("drop empty clusters: %w", err)
	}

	var clusters []store.UnknownCluster
	for _, draft := range drafts {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO unknown_clusters (cohesion, representative_face, face_count)
			VALUES ($1, $2, $3)
			RETURNING `+clusterColumns,
			draft.Cohesion, draft.RepresentativeFace, len(draft.FaceIDs))
		cluster, err := scanClusterRow(row)
		if err != nil {
			return nil, fmt.Errorf("insert cluster: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE faces SET cluster_id = $1
			WHERE id = ANY($2) AND person_id IS NULL
		`, cluster.ID, pq.Array(draft.FaceIDs)); err != nil {
			return nil, fmt.Errorf("set members for cluster %d: %w", cluster.ID, err)
		}
		clusters = append(clusters, cluster)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return clusters, nil
}

// GetCluster retrieves a cluster by id.
func (r *ClusterRepository) GetCluster(ctx context.Context, id int64) (*store.UnknownCluster, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+clusterColumns+" FROM unknown_clusters WHERE id = $1", id)
	cluster, err := scanClusterRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cluster %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &cluster, nil
}

// ListClusters returns all clusters, largest first.
func (r *ClusterRepository) ListClusters(ctx context.Context) ([]store.UnknownCluster, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+clusterColumns+" FROM unknown_clusters ORDER BY face_count DESC, id")
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	defer rows.Close()

	var clusters []store.UnknownCluster
	for rows.Next() {
		cluster, err := scanClusterRow(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, cluster)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clusters: %w", err)
	}
	return clusters, nil
}

// ClusterFaceIDs returns the member face ids of a cluster.
func (r *ClusterRepository) ClusterFaceIDs(ctx context.Context, clusterID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id FROM faces WHERE cluster_id = $1 ORDER BY id", clusterID)
	if err != nil {
		return nil, fmt.Errorf("query cluster members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan face id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face ids: %w", err)
	}
	return ids, nil
}

// DeleteCluster removes a cluster and releases its members back to the
// unassigned pool.
func (r *ClusterRepository) DeleteCluster(ctx context.Context, id int64) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE faces SET cluster_id = NULL WHERE cluster_id = $1", id); err != nil {
		return fmt.Errorf("release cluster members: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM unknown_clusters WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete cluster: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("cluster %d: %w", id, store.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Verify interface compliance.
var _ store.ClusterStore = (*ClusterRepository)(nil)
