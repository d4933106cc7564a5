package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

// FaceStatus is the terminal state of one face after a pipeline pass.
type FaceStatus string

const (
	FaceAutoAssigned FaceStatus = "auto_assigned"
	FaceSuggested    FaceStatus = "suggested"
	FaceDeferred     FaceStatus = "deferred" // left for clustering
	FaceClustered    FaceStatus = "clustered"
	FaceNoise        FaceStatus = "noise"
	FaceFailed       FaceStatus = "failed"
)

// FaceOutcome reports what happened to a single face. Every face fed
// into a batch appears in exactly one outcome; nothing is dropped.
type FaceOutcome struct {
	FaceID   int64
	Status   FaceStatus
	PersonID int64   // set for auto_assigned and suggested
	Score    float64 // best anchor score
	Err      error   // set for failed
}

// AssignResult summarizes one assigner batch.
type AssignResult struct {
	AutoAssigned int
	Suggested    int
	Deferred     int
	Failed       int
	Outcomes     []FaceOutcome
}

// personMatch aggregates a face's anchor hits for one person.
type personMatch struct {
	personID        int64
	best            float64
	prototypeScores map[int64]float64
	total           float64
	hits            int
}

// confidence aggregates corroborating anchors: the best score carries
// most of the weight, the rest of the person's anchors pull it up or
// down slightly.
func (m *personMatch) confidence() float64 {
	mean := m.total / float64(m.hits)
	return 0.75*m.best + 0.25*mean
}

// AssignBatch runs the two-tier threshold decision over a batch of
// unassigned faces. Scores at exactly the auto-assign threshold
// auto-assign; scores at exactly the suggestion threshold create a
// pending suggestion; anything below is deferred to clustering.
// Relational side effects are batched per call, not per face.
func (e *Engine) AssignBatch(ctx context.Context, faces []store.Face, settings store.EngineSettings) (*AssignResult, error) {
	result := &AssignResult{}

	type decision struct {
		face  *store.Face
		match *personMatch
	}
	var toAssign []decision
	var toSuggest []decision

	for i := range faces {
		face := &faces[i]
		if face.Assigned() {
			continue
		}

		vec, err := e.faceVector(ctx, face)
		if err != nil {
			result.Failed++
			result.Outcomes = append(result.Outcomes, FaceOutcome{
				FaceID: face.ID, Status: FaceFailed, Err: err,
			})
			continue
		}

		match, err := e.bestPersonMatch(ctx, vec, settings)
		if err != nil {
			return nil, fmt.Errorf("search anchors for face %d: %w", face.ID, err)
		}

		switch {
		case match == nil || match.best < settings.SuggestionThreshold:
			result.Deferred++
			outcome := FaceOutcome{FaceID: face.ID, Status: FaceDeferred}
			if match != nil {
				outcome.Score = match.best
			}
			result.Outcomes = append(result.Outcomes, outcome)
		case match.best >= settings.AutoAssignThreshold:
			toAssign = append(toAssign, decision{face: face, match: match})
		default:
			toSuggest = append(toSuggest, decision{face: face, match: match})
		}
	}

	// Batched relational commit for all auto-assignments.
	if len(toAssign) > 0 {
		assignments := make([]store.FaceAssignment, 0, len(toAssign))
		for _, d := range toAssign {
			assignments = append(assignments, store.FaceAssignment{
				FaceID:   d.face.ID,
				PersonID: d.match.personID,
				Score:    d.match.best,
			})
		}
		if err := e.stores.Faces.AssignFaces(ctx, assignments); err != nil {
			return nil, fmt.Errorf("assign batch: %w", err)
		}

		byPerson := make(map[int64][]int64)
		assignedIDs := make([]int64, 0, len(toAssign))
		updates := make([]vecstore.PayloadUpdate, 0, len(toAssign))
		for _, d := range toAssign {
			byPerson[d.match.personID] = append(byPerson[d.match.personID], d.face.ID)
			assignedIDs = append(assignedIDs, d.face.ID)
			updates = append(updates, vecstore.PayloadUpdate{
				ID:     d.face.EmbeddingID,
				Fields: assignedFields(d.match.personID),
			})

			result.AutoAssigned++
			result.Outcomes = append(result.Outcomes, FaceOutcome{
				FaceID: d.face.ID, Status: FaceAutoAssigned,
				PersonID: d.match.personID, Score: d.match.best,
			})
		}
		if _, err := e.stores.Suggestions.ExpirePendingForFaces(ctx, assignedIDs); err != nil {
			e.logger.Printf("Warning: expiring suggestions for %d assigned faces: %v", len(assignedIDs), err)
		}
		// One vector round-trip per call, best-effort after the commit.
		e.pushFacePayloads(ctx, updates)
		for personID, faceIDs := range byPerson {
			pid := personID
			err := e.stores.Events.RecordEvent(ctx, store.AssignmentEvent{
				Kind:       store.EventAssign,
				FaceIDs:    faceIDs,
				ToPersonID: &pid,
			})
			if err != nil {
				e.logger.Printf("Warning: recording assignment event for person %d: %v", personID, err)
			}
		}
	}

	for _, d := range toSuggest {
		_, _, err := e.stores.Suggestions.CreateSuggestion(ctx, store.FaceSuggestion{
			FaceID:          d.face.ID,
			PersonID:        d.match.personID,
			Score:           d.match.best,
			PrototypeScores: d.match.prototypeScores,
			Confidence:      d.match.confidence(),
		})
		if err != nil {
			result.Failed++
			result.Outcomes = append(result.Outcomes, FaceOutcome{
				FaceID: d.face.ID, Status: FaceFailed,
				Err: fmt.Errorf("create suggestion: %w", err),
			})
			continue
		}
		result.Suggested++
		result.Outcomes = append(result.Outcomes, FaceOutcome{
			FaceID: d.face.ID, Status: FaceSuggested,
			PersonID: d.match.personID, Score: d.match.best,
		})
	}

	return result, nil
}

// bestPersonMatch searches the anchors namespace and aggregates hits
// per person, returning the strongest match or nil when nothing
// clears the suggestion threshold.
func (e *Engine) bestPersonMatch(ctx context.Context, vec []float32, settings store.EngineSettings) (*personMatch, error) {
	hits, err := e.vectors.Search(ctx, vecstore.NamespaceAnchors, vec,
		settings.MaxCandidates, settings.SuggestionThreshold, nil)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	matches := make(map[int64]*personMatch)
	for _, hit := range hits {
		personID, ok := parsePersonID(hit.Payload)
		if !ok {
			continue
		}
		m := matches[personID]
		if m == nil {
			m = &personMatch{personID: personID, prototypeScores: make(map[int64]float64)}
			matches[personID] = m
		}
		if hit.Score > m.best {
			m.best = hit.Score
		}
		m.total += hit.Score
		m.hits++
		if protoID, ok := parsePrototypeAnchorID(hit.ID); ok {
			if prev, seen := m.prototypeScores[protoID]; !seen || hit.Score > prev {
				m.prototypeScores[protoID] = hit.Score
			}
		}
	}

	var best *personMatch
	for _, m := range matches {
		if best == nil || m.best > best.best {
			best = m
		}
	}
	return best, nil
}

func parsePersonID(payload map[string]string) (int64, bool) {
	raw, ok := payload[vecstore.PayloadPersonID]
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func parsePrototypeAnchorID(pointID string) (int64, bool) {
	rest, ok := strings.CutPrefix(pointID, "proto-")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
