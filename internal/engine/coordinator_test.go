package engine

import (
	"context"
	"testing"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// seedMixedLibrary builds a population exercising every outcome bucket:
// two faces matching Alice's anchor (auto), one in the suggestion band,
// three identical strangers (cluster), one isolated stranger (noise)
// and one face without an embedding (failed).
func seedMixedLibrary(t *testing.T, fx *fixture) (faceCount int) {
	t.Helper()
	fx.addPersonWithAnchor(t, "Alice", xAxis)

	fx.addFace(t, 0.9, xAxis)
	fx.addFace(t, 0.9, xAxis)
	fx.addFace(t, 0.9, unitVec(0.78))
	for i := 0; i < 3; i++ {
		fx.addFace(t, 0.8, []float32{0, 0, 1, 0})
	}
	fx.addFace(t, 0.8, []float32{0, 1, 0, 0})
	fx.faces.AddFace(store.Face{Quality: 0.8, EmbeddingID: "gone"})
	return 8
}

func TestRunFullModePartition(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	total := seedMixedLibrary(t, fx)

	result, err := fx.engine.Run(ctx, RunOptions{Mode: ModeFull})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Processed != total {
		t.Errorf("Expected %d processed, got %d", total, result.Processed)
	}
	if result.AutoAssigned != 2 {
		t.Errorf("Expected 2 auto-assigned, got %d", result.AutoAssigned)
	}
	if result.Suggested != 1 {
		t.Errorf("Expected 1 suggested, got %d", result.Suggested)
	}
	if result.Clustered != 3 {
		t.Errorf("Expected 3 clustered, got %d", result.Clustered)
	}
	if result.Noise != 1 {
		t.Errorf("Expected 1 noise, got %d", result.Noise)
	}
	if result.Failed != 1 {
		t.Errorf("Expected 1 failed, got %d", result.Failed)
	}

	// Every processed face lands in exactly one outcome bucket.
	if len(result.Outcomes) != total {
		t.Fatalf("Expected %d outcomes, got %d", total, len(result.Outcomes))
	}
	seen := make(map[int64]bool)
	for _, o := range result.Outcomes {
		if seen[o.FaceID] {
			t.Errorf("Face %d appears in more than one outcome", o.FaceID)
		}
		seen[o.FaceID] = true
	}

	if len(result.Clusters) != 1 || result.Clusters[0].FaceCount != 3 {
		t.Errorf("Expected one cluster of 3, got %+v", result.Clusters)
	}
}

func TestRunAssignModeSkipsClustering(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	total := seedMixedLibrary(t, fx)

	result, err := fx.engine.Run(ctx, RunOptions{Mode: ModeAssign})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Clustered != 0 || len(result.Clusters) != 0 {
		t.Errorf("Assign mode must not cluster, got %+v", result)
	}
	// Deferred faces are reported as noise: untouched, known state.
	if result.Noise != 4 {
		t.Errorf("Expected 4 deferred-as-noise, got %d", result.Noise)
	}
	if len(result.Outcomes) != total {
		t.Errorf("Expected %d outcomes, got %d", total, len(result.Outcomes))
	}

	clusters, err := fx.stores.Clusters.ListClusters(ctx)
	if err != nil {
		t.Fatalf("ListClusters failed: %v", err)
	}
	if len(clusters) != 0 {
		t.Errorf("Assign mode must leave no clusters, got %d", len(clusters))
	}
}

func TestRunSecondPassIsStable(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	seedMixedLibrary(t, fx)

	if _, err := fx.engine.Run(ctx, RunOptions{Mode: ModeFull}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := fx.engine.Run(ctx, RunOptions{Mode: ModeFull})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	// Auto-assigned and clustered faces are out of the unassigned
	// population now; only the suggested face, the noise face and the
	// broken face come around again.
	if second.Processed != 3 {
		t.Errorf("Expected 3 processed on second pass, got %d", second.Processed)
	}
	if second.AutoAssigned != 0 {
		t.Errorf("Second pass must not re-assign, got %d", second.AutoAssigned)
	}
	if second.Suggested != 1 {
		t.Errorf("Suggestion refresh expected on second pass, got %d", second.Suggested)
	}
	if second.Clustered != 0 {
		t.Errorf("Clustered faces must not re-enter the pipeline, got %d", second.Clustered)
	}

	clusters, err := fx.stores.Clusters.ListClusters(ctx)
	if err != nil {
		t.Fatalf("ListClusters failed: %v", err)
	}
	if len(clusters) != 1 {
		t.Errorf("First-pass cluster should survive the second pass, got %d", len(clusters))
	}

	// Idempotent: still exactly one pending suggestion in the system.
	groups, err := fx.stores.Suggestions.ListGrouped(ctx, 10, 0, 10)
	if err != nil {
		t.Fatalf("ListGrouped failed: %v", err)
	}
	if len(groups) != 1 || groups[0].PendingCount != 1 {
		t.Errorf("Expected one pending suggestion total, got %+v", groups)
	}
}

func TestRunEmptyLibrary(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.engine.Run(context.Background(), RunOptions{Mode: ModeFull})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Processed != 0 || len(result.Outcomes) != 0 {
		t.Errorf("Expected empty result, got %+v", result)
	}
}

func TestRunImageScope(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.addPersonWithAnchor(t, "Alice", xAxis)
	inScope := fx.addFace(t, 0.9, xAxis)
	outOfScope := fx.addFace(t, 0.9, xAxis)
	other := outOfScope
	other.ImageUID = "other-img"
	fx.faces.AddFace(other)

	result, err := fx.engine.Run(ctx, RunOptions{Mode: ModeAssign, ImageScope: []string{"img"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Processed != 1 || result.AutoAssigned != 1 {
		t.Errorf("Expected only the in-scope face processed, got %+v", result)
	}
	if owner := assignedTo(t, fx, inScope.ID); owner == nil {
		t.Error("In-scope face should be assigned")
	}
	if owner := assignedTo(t, fx, outOfScope.ID); owner != nil {
		t.Error("Out-of-scope face must stay unassigned")
	}
}

func TestRunProgressCountsCompletedFaces(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	person := fx.persons.AddPerson(store.Person{Name: "Alice"})
	scriptedHit(fx, person.ID, 0.95)

	// More faces than one chunk, so the last chunk is a partial one.
	total := assignChunkSize + 6
	for i := 0; i < total; i++ {
		fx.addFace(t, 0.9, xAxis)
	}

	var reported []int
	_, err := fx.engine.Run(ctx, RunOptions{
		Mode:        ModeAssign,
		Concurrency: 1,
		OnProgress: func(p ProgressInfo) {
			if p.Phase != "assigning" {
				return
			}
			if p.Total != total {
				t.Errorf("Expected total %d, got %d", total, p.Total)
			}
			reported = append(reported, p.Current)
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(reported) == 0 {
		t.Fatal("Expected assigning progress reports")
	}
	prev := 0
	for _, cur := range reported {
		if cur <= prev {
			t.Errorf("Progress must climb, got %v", reported)
			break
		}
		if cur > total {
			t.Errorf("Progress %d exceeds the face count %d", cur, total)
		}
		prev = cur
	}
	if reported[len(reported)-1] != total {
		t.Errorf("Final progress must equal the face count, got %v", reported)
	}
}

func TestRunReportsProgress(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	seedMixedLibrary(t, fx)

	var phases []string
	_, err := fx.engine.Run(ctx, RunOptions{
		Mode: ModeFull,
		OnProgress: func(p ProgressInfo) {
			phases = append(phases, p.Phase)
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	var sawAssign, sawCluster bool
	for _, p := range phases {
		switch p {
		case "assigning":
			sawAssign = true
		case "clustering":
			sawCluster = true
		}
	}
	if !sawAssign || !sawCluster {
		t.Errorf("Expected progress from both phases, got %v", phases)
	}
}
