package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

// SearchMode selects how find-more anchors its similarity searches.
// The mode is chosen once per call, not per candidate.
type SearchMode string

const (
	// SearchModeAuto picks centroid mode when the person has enough
	// labeled faces for the centroid to be reliable, prototype mode
	// otherwise.
	SearchModeAuto SearchMode = "auto"
	// SearchModePrototype samples the person's labeled faces as
	// temporary anchors: one vector search per anchor, candidates
	// deduplicated across anchors by best score.
	SearchModePrototype SearchMode = "prototype"
	// SearchModeCentroid runs a single search from the person's
	// centroid. Faster and coarser; preferred for persons with many
	// labeled faces.
	SearchModeCentroid SearchMode = "centroid"
)

// FindMoreResult reports one find-more pass.
type FindMoreResult struct {
	PersonID   int64
	Mode       SearchMode // mode actually used after fallback
	Anchors    int
	Candidates int
	Created    int
}

// FindMore searches the face index for unassigned faces resembling a
// person and creates pending suggestions for them. Centroid mode
// falls back to prototype mode whenever the person's labeled-face
// count is below the configured minimum, because a centroid built
// from very few faces is an unreliable anchor. Cancellation is
// checked between anchor searches; suggestions already created stay.
func (e *Engine) FindMore(ctx context.Context, personID int64, mode SearchMode) (*FindMoreResult, error) {
	person, err := e.stores.Persons.GetPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	if person.Status != store.PersonActive {
		return nil, fmt.Errorf("person %d is %s: %w", personID, person.Status, store.ErrInvalidArgument)
	}

	settings, err := e.settings(ctx)
	if err != nil {
		return nil, err
	}

	faceCount, err := e.stores.Faces.CountByPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("count faces for person %d: %w", personID, err)
	}
	if faceCount == 0 {
		return nil, fmt.Errorf("person %d has no labeled faces: %w", personID, store.ErrInvalidArgument)
	}

	switch mode {
	case SearchModeAuto, "":
		mode = SearchModePrototype
		if faceCount >= settings.CentroidMinFaces {
			mode = SearchModeCentroid
		}
	case SearchModeCentroid:
		if faceCount < settings.CentroidMinFaces {
			mode = SearchModePrototype
		}
	case SearchModePrototype:
	default:
		return nil, fmt.Errorf("unknown search mode %q: %w", mode, store.ErrInvalidArgument)
	}

	anchors, err := e.findMoreAnchors(ctx, personID, mode, settings)
	if err != nil {
		return nil, err
	}
	if mode == SearchModeCentroid && len(anchors) == 0 {
		// No centroid computed yet; prototype anchors still work.
		mode = SearchModePrototype
		anchors, err = e.findMoreAnchors(ctx, personID, mode, settings)
		if err != nil {
			return nil, err
		}
	}
	if len(anchors) == 0 {
		return nil, fmt.Errorf("person %d has no usable anchors: %w", personID, store.ErrInvalidArgument)
	}

	result := &FindMoreResult{PersonID: personID, Mode: mode, Anchors: len(anchors)}

	unassignedOnly := vecstore.Filter{vecstore.PayloadAssigned: "false"}
	bestByFace := make(map[int64]float64)
	for _, anchor := range anchors {
		// Cooperative cancellation between searches, never mid-search.
		if err := ctx.Err(); err != nil {
			return result, err
		}
		hits, err := e.vectors.Search(ctx, vecstore.NamespaceFaces, anchor,
			settings.MaxCandidates, settings.SuggestionThreshold, unassignedOnly)
		if err != nil {
			return result, fmt.Errorf("find-more search for person %d: %w", personID, err)
		}
		for _, hit := range hits {
			faceID, ok := parseFaceID(hit.Payload)
			if !ok {
				continue
			}
			if prev, seen := bestByFace[faceID]; !seen || hit.Score > prev {
				bestByFace[faceID] = hit.Score
			}
		}
	}

	type candidate struct {
		faceID int64
		score  float64
	}
	candidates := make([]candidate, 0, len(bestByFace))
	for id, score := range bestByFace {
		candidates = append(candidates, candidate{faceID: id, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].faceID < candidates[j].faceID
	})
	result.Candidates = len(candidates)

	for _, c := range candidates {
		face, err := e.stores.Faces.GetFace(ctx, c.faceID)
		if err != nil {
			e.logger.Printf("Warning: find-more skipping face %d: %v", c.faceID, err)
			continue
		}
		if face.Assigned() {
			continue // the vector payload lagged the relational truth
		}
		_, created, err := e.stores.Suggestions.CreateSuggestion(ctx, store.FaceSuggestion{
			FaceID:     c.faceID,
			PersonID:   personID,
			Score:      c.score,
			Confidence: c.score,
		})
		if err != nil {
			e.logger.Printf("Warning: find-more suggestion for face %d: %v", c.faceID, err)
			continue
		}
		if created {
			result.Created++
		}
	}
	return result, nil
}

// findMoreAnchors gathers the anchor vectors for one mode. Prototype
// mode samples the person's best labeled faces up to the configured
// anchor bound; centroid mode is the single centroid point.
func (e *Engine) findMoreAnchors(ctx context.Context, personID int64, mode SearchMode, settings store.EngineSettings) ([][]float32, error) {
	if mode == SearchModeCentroid {
		vec, err := e.vectors.GetVector(ctx, vecstore.NamespaceAnchors, centroidAnchorID(personID))
		if err != nil {
			return nil, nil // treated as "no centroid", caller falls back
		}
		return [][]float32{vec}, nil
	}

	faces, err := e.stores.Faces.ListByPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("list faces for person %d: %w", personID, err)
	}
	// ListByPerson orders best quality first.
	if len(faces) > settings.FindMoreAnchors {
		faces = faces[:settings.FindMoreAnchors]
	}

	var anchors [][]float32
	for i := range faces {
		vec, err := e.faceVector(ctx, &faces[i])
		if err != nil {
			e.logger.Printf("Warning: find-more anchor face %d unusable: %v", faces[i].ID, err)
			continue
		}
		anchors = append(anchors, vec)
	}
	return anchors, nil
}

// Propagate fans out find-more searches for the given persons, bounded
// by the configured propagation limit. Run it as a background job: it
// is independently cancellable and partial results are valid to keep.
func (e *Engine) Propagate(ctx context.Context, personIDs []int64) ([]FindMoreResult, error) {
	settings, err := e.settings(ctx)
	if err != nil {
		return nil, err
	}
	if len(personIDs) > settings.PropagationLimit {
		personIDs = personIDs[:settings.PropagationLimit]
	}

	var results []FindMoreResult
	for _, pid := range personIDs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r, err := e.FindMore(ctx, pid, SearchModeAuto)
		if err != nil {
			e.logger.Printf("Warning: propagation for person %d: %v", pid, err)
			continue
		}
		results = append(results, *r)
	}
	return results, nil
}

func parseFaceID(payload map[string]string) (int64, bool) {
	raw, ok := payload[vecstore.PayloadFaceID]
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
