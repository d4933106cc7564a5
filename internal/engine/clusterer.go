package engine

import (
	"context"
	"fmt"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// splitTightening is applied to the epsilon when splitting a cluster:
// members must be this much closer to stay grouped in a sub-cluster.
const splitTightening = 0.8

// ClusterResult summarizes one clustering pass.
type ClusterResult struct {
	Clusters []store.UnknownCluster
	Noise    []int64 // face ids left fully unassigned
	Failed   []int64 // face ids without a usable embedding
}

// ClusterUnassigned groups the given unassigned faces into unknown
// clusters with density-based clustering. Faces in no dense region are
// noise: they stay fully unassigned and are reconsidered next pass.
// The pass replaces prior cluster assignments for the input set;
// clustering recomputes from scratch, it never merges incrementally.
func (e *Engine) ClusterUnassigned(ctx context.Context, faces []store.Face, settings store.EngineSettings) (*ClusterResult, error) {
	return e.clusterWith(ctx, faces, settings.ClusterEpsilon, settings.MinClusterSize)
}

// SplitCluster re-runs clustering restricted to one cluster's members
// with a stricter epsilon, producing finer sub-clusters. Members that
// no longer reach density become noise.
func (e *Engine) SplitCluster(ctx context.Context, clusterID int64, settings store.EngineSettings) (*ClusterResult, error) {
	if _, err := e.stores.Clusters.GetCluster(ctx, clusterID); err != nil {
		return nil, err
	}
	memberIDs, err := e.stores.Clusters.ClusterFaceIDs(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("members of cluster %d: %w", clusterID, err)
	}
	members, err := e.stores.Faces.GetFaces(ctx, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("load members of cluster %d: %w", clusterID, err)
	}
	return e.clusterWith(ctx, members, settings.ClusterEpsilon*splitTightening, settings.MinClusterSize)
}

func (e *Engine) clusterWith(ctx context.Context, faces []store.Face, epsilon float64, minPoints int) (*ClusterResult, error) {
	result := &ClusterResult{}

	var usable []store.Face
	var vectors [][]float32
	for i := range faces {
		if faces[i].Assigned() {
			continue
		}
		vec, err := e.faceVector(ctx, &faces[i])
		if err != nil {
			e.logger.Printf("Warning: clustering skipping face %d: %v", faces[i].ID, err)
			result.Failed = append(result.Failed, faces[i].ID)
			continue
		}
		usable = append(usable, faces[i])
		vectors = append(vectors, vec)
	}

	labels := dbscan(vectors, epsilon, minPoints)

	grouped := make(map[int][]int) // cluster label -> indices into usable
	for i, label := range labels {
		if label < 0 {
			result.Noise = append(result.Noise, usable[i].ID)
			continue
		}
		grouped[label] = append(grouped[label], i)
	}

	scopeIDs := make([]int64, 0, len(usable))
	for _, f := range usable {
		scopeIDs = append(scopeIDs, f.ID)
	}

	var drafts []store.ClusterDraft
	for _, indices := range grouped {
		draft := buildClusterDraft(usable, vectors, indices)
		drafts = append(drafts, draft)
	}

	clusters, err := e.stores.Clusters.ReplaceClusters(ctx, scopeIDs, drafts)
	if err != nil {
		return nil, fmt.Errorf("replace clusters: %w", err)
	}
	result.Clusters = clusters
	return result, nil
}

// buildClusterDraft computes the cohesion (mean member similarity to
// the cluster mean) and picks the member closest to the mean as the
// representative face.
func buildClusterDraft(faces []store.Face, vectors [][]float32, indices []int) store.ClusterDraft {
	members := make([][]float32, 0, len(indices))
	for _, i := range indices {
		members = append(members, vectors[i])
	}
	mean := store.MeanVector(members)

	var cohesionSum float64
	bestIdx := indices[0]
	bestSim := -2.0
	for _, i := range indices {
		sim := store.CosineSimilarity(vectors[i], mean)
		cohesionSum += sim
		if sim > bestSim {
			bestSim = sim
			bestIdx = i
		}
	}

	faceIDs := make([]int64, 0, len(indices))
	for _, i := range indices {
		faceIDs = append(faceIDs, faces[i].ID)
	}

	return store.ClusterDraft{
		Cohesion:           cohesionSum / float64(len(indices)),
		RepresentativeFace: faces[bestIdx].ID,
		FaceIDs:            faceIDs,
	}
}

// dbscan labels each vector with a cluster index, or -1 for noise.
// Distance is cosine distance; neighborhoods are computed brute-force,
// which is fine for the per-pass population sizes this engine sees.
func dbscan(vectors [][]float32, epsilon float64, minPoints int) []int {
	n := len(vectors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	if n == 0 {
		return labels
	}

	neighbors := func(p int) []int {
		var out []int
		for q := 0; q < n; q++ {
			if q == p {
				continue
			}
			if store.CosineDistance(vectors[p], vectors[q]) <= epsilon {
				out = append(out, q)
			}
		}
		return out
	}

	visited := make([]bool, n)
	cluster := 0
	for p := 0; p < n; p++ {
		if visited[p] {
			continue
		}
		visited[p] = true

		seeds := neighbors(p)
		if len(seeds)+1 < minPoints {
			continue // noise, may still join a cluster as a border point
		}

		labels[p] = cluster
		for i := 0; i < len(seeds); i++ {
			q := seeds[i]
			if labels[q] < 0 {
				labels[q] = cluster
			}
			if visited[q] {
				continue
			}
			visited[q] = true
			qNeighbors := neighbors(q)
			if len(qNeighbors)+1 >= minPoints {
				seeds = append(seeds, qNeighbors...)
			}
		}
		cluster++
	}
	return labels
}
