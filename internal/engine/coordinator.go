package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// RunMode selects which pipeline phases a coordinator run executes.
type RunMode string

const (
	// ModeAssign runs only the assigner phase.
	ModeAssign RunMode = "assign"
	// ModeFull runs the assigner, then clusters whatever remains.
	ModeFull RunMode = "full"
)

// RunOptions tune one coordinator run.
type RunOptions struct {
	// ImageScope restricts the run to faces from these images; empty
	// means the whole library.
	ImageScope []string
	Mode       RunMode
	// Concurrency bounds the assigner worker pool; zero uses the
	// default.
	Concurrency int
	// OnProgress, when set, is called as batches complete.
	OnProgress func(ProgressInfo)
}

// RunResult reports one coordinator run. Every face that was
// unassigned at the start of the run appears in exactly one outcome
// bucket: assigned, suggested, clustered, noise, or failed.
type RunResult struct {
	Processed    int
	AutoAssigned int
	Suggested    int
	Clustered    int
	Noise        int
	Failed       int
	Clusters     []store.UnknownCluster
	Outcomes     []FaceOutcome
}

// assignChunkSize is the number of faces one worker unit handles.
// Chunks are disjoint id ranges, so no face is processed by two
// concurrent batches.
const assignChunkSize = 64

// Run executes a pipeline pass: the assigner phase commits fully
// before the clusterer reads the remaining unassigned population.
// Clustering a population still containing confidently-assignable
// faces would blur cluster boundaries, so the phases never interleave.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	settings, err := e.settings(ctx)
	if err != nil {
		return nil, err
	}

	faces, err := e.stores.Faces.ListUnassigned(ctx, opts.ImageScope)
	if err != nil {
		return nil, fmt.Errorf("list unassigned faces: %w", err)
	}

	result := &RunResult{Processed: len(faces)}
	if len(faces) == 0 {
		return result, nil
	}

	// Phase 1: assign. Chunks are disjoint slices dispatched to a
	// bounded pool; each chunk's side effects commit independently.
	chunks := chunkFaces(faces, assignChunkSize)
	chunkResults := make([]*AssignResult, len(chunks))

	pool := newWorkerPool(opts.Concurrency)
	// Chunks complete in any order; progress counts completed faces,
	// so Current climbs monotonically and ends at Total.
	var done atomic.Int64
	errs := pool.Run(ctx, len(chunks), func(i int) error {
		var runErr error
		chunkResults[i], runErr = e.assignChunkWithRetry(ctx, chunks[i], settings)
		completed := done.Add(int64(len(chunks[i])))
		if opts.OnProgress != nil {
			opts.OnProgress(ProgressInfo{
				Phase:   "assigning",
				Current: int(completed),
				Total:   len(faces),
			})
		}
		return runErr
	})
	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("assigner phase: %w", err)
		}
	}

	// Faces that already reached a terminal state in phase 1:
	// assigned, suggested, or failed. Only deferred faces go on to
	// clustering.
	settled := make(map[int64]struct{})
	for _, cr := range chunkResults {
		result.AutoAssigned += cr.AutoAssigned
		result.Suggested += cr.Suggested
		result.Failed += cr.Failed
		for _, o := range cr.Outcomes {
			if o.Status != FaceDeferred {
				result.Outcomes = append(result.Outcomes, o)
				settled[o.FaceID] = struct{}{}
			}
		}
	}

	if opts.Mode == ModeAssign {
		// Deferred faces end the run as noise: known-state, untouched.
		for _, cr := range chunkResults {
			for _, o := range cr.Outcomes {
				if o.Status == FaceDeferred {
					o.Status = FaceNoise
					result.Noise++
					result.Outcomes = append(result.Outcomes, o)
				}
			}
		}
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 2: cluster. Re-read the unassigned population after the
	// assigner has committed, so an auto-assigned face can never also
	// be clustered.
	remaining, err := e.stores.Faces.ListUnassigned(ctx, opts.ImageScope)
	if err != nil {
		return nil, fmt.Errorf("list deferred faces: %w", err)
	}
	// Suggested faces stay unassigned in the relational store but hold
	// a pending review; they are their own partition bucket and must
	// not additionally be clustered.
	var toCluster []store.Face
	for _, f := range remaining {
		if _, done := settled[f.ID]; !done {
			toCluster = append(toCluster, f)
		}
	}

	if opts.OnProgress != nil {
		opts.OnProgress(ProgressInfo{Phase: "clustering", Total: len(toCluster)})
	}

	clusterResult, err := e.ClusterUnassigned(ctx, toCluster, settings)
	if err != nil {
		return nil, fmt.Errorf("clusterer phase: %w", err)
	}

	result.Clusters = clusterResult.Clusters
	clustered := make(map[int64]int64) // face id -> cluster id
	for _, c := range clusterResult.Clusters {
		ids, err := e.stores.Clusters.ClusterFaceIDs(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("members of cluster %d: %w", c.ID, err)
		}
		for _, id := range ids {
			clustered[id] = c.ID
		}
	}

	for _, f := range toCluster {
		if _, ok := clustered[f.ID]; ok {
			result.Clustered++
			result.Outcomes = append(result.Outcomes, FaceOutcome{FaceID: f.ID, Status: FaceClustered})
		}
	}
	for _, id := range clusterResult.Noise {
		result.Noise++
		result.Outcomes = append(result.Outcomes, FaceOutcome{FaceID: id, Status: FaceNoise})
	}
	for _, id := range clusterResult.Failed {
		result.Failed++
		result.Outcomes = append(result.Outcomes, FaceOutcome{
			FaceID: id, Status: FaceFailed,
			Err: fmt.Errorf("face %d has no usable embedding", id),
		})
	}

	return result, nil
}

// assignChunkWithRetry retries a chunk on store I/O failure. Assignment
// and suggestion creation are idempotent, so re-running a partially
// applied chunk is safe.
func (e *Engine) assignChunkWithRetry(ctx context.Context, chunk []store.Face, settings store.EngineSettings) (*AssignResult, error) {
	var result *AssignResult
	err := retryWithBackoff(ctx, func() error {
		var err error
		result, err = e.AssignBatch(ctx, chunk, settings)
		return err
	})
	return result, err
}

func chunkFaces(faces []store.Face, size int) [][]store.Face {
	var chunks [][]store.Face
	for start := 0; start < len(faces); start += size {
		end := start + size
		if end > len(faces) {
			end = len(faces)
		}
		chunks = append(chunks, faces[start:end])
	}
	return chunks
}
