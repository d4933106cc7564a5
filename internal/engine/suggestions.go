package engine

import (
	"context"
	"fmt"

	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

// Accept applies a pending suggestion: the face gets its person in the
// relational store, the suggestion goes terminal, every other pending
// suggestion for that face expires, and the vector payload is pushed.
// A failed vector push after the relational commit returns a
// DesyncError alongside the (successful) state change; it is not
// rolled back.
func (e *Engine) Accept(ctx context.Context, suggestionID int64) (*store.FaceSuggestion, error) {
	sugg, err := e.stores.Suggestions.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	if sugg.Status != store.SuggestionPending {
		return nil, fmt.Errorf("suggestion %d is %s: %w", suggestionID, sugg.Status, store.ErrInvalidArgument)
	}

	face, err := e.stores.Faces.GetFace(ctx, sugg.FaceID)
	if err != nil {
		return nil, err
	}
	if face.Assigned() {
		// The face was claimed through another path; this suggestion
		// is stale.
		if _, err := e.stores.Suggestions.ExpirePendingForFace(ctx, face.ID, 0); err != nil {
			e.logger.Printf("Warning: expiring stale suggestions for face %d: %v", face.ID, err)
		}
		return nil, fmt.Errorf("face %d already assigned: %w", face.ID, store.ErrInvalidArgument)
	}

	err = e.stores.Faces.AssignFaces(ctx, []store.FaceAssignment{
		{FaceID: face.ID, PersonID: sugg.PersonID, Score: sugg.Score},
	})
	if err != nil {
		return nil, fmt.Errorf("assign face %d: %w", face.ID, err)
	}

	if err := e.stores.Suggestions.Resolve(ctx, suggestionID, store.SuggestionAccepted); err != nil {
		return nil, fmt.Errorf("mark suggestion accepted: %w", err)
	}
	if _, err := e.stores.Suggestions.ExpirePendingForFace(ctx, face.ID, suggestionID); err != nil {
		e.logger.Printf("Warning: expiring sibling suggestions for face %d: %v", face.ID, err)
	}

	pid := sugg.PersonID
	err = e.stores.Events.RecordEvent(ctx, store.AssignmentEvent{
		Kind:       store.EventAssign,
		FaceIDs:    []int64{face.ID},
		ToPersonID: &pid,
	})
	if err != nil {
		e.logger.Printf("Warning: recording accept event for face %d: %v", face.ID, err)
	}

	accepted, err := e.stores.Suggestions.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return nil, err
	}

	if err := e.markFaceAssigned(ctx, face, sugg.PersonID); err != nil {
		return accepted, err
	}
	return accepted, nil
}

// Reject marks a suggestion rejected. The face stays unassigned and
// future suggestions from different prototypes remain possible.
func (e *Engine) Reject(ctx context.Context, suggestionID int64) error {
	sugg, err := e.stores.Suggestions.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return err
	}
	if sugg.Status != store.SuggestionPending {
		return fmt.Errorf("suggestion %d is %s: %w", suggestionID, sugg.Status, store.ErrInvalidArgument)
	}
	return e.stores.Suggestions.Resolve(ctx, suggestionID, store.SuggestionRejected)
}

// Unassign clears a face's person, expires the face's pending
// suggestions, and restores clustering eligibility. Returns the
// previous owner.
func (e *Engine) Unassign(ctx context.Context, faceID int64) (int64, error) {
	face, err := e.stores.Faces.GetFace(ctx, faceID)
	if err != nil {
		return 0, err
	}

	previous, err := e.stores.Faces.UnassignFace(ctx, faceID)
	if err != nil {
		return 0, err
	}

	if _, err := e.stores.Suggestions.ExpirePendingForFace(ctx, faceID, 0); err != nil {
		e.logger.Printf("Warning: expiring suggestions for face %d: %v", faceID, err)
	}

	from := previous
	err = e.stores.Events.RecordEvent(ctx, store.AssignmentEvent{
		Kind:         store.EventUnassign,
		FaceIDs:      []int64{faceID},
		FromPersonID: &from,
	})
	if err != nil {
		e.logger.Printf("Warning: recording unassign event for face %d: %v", faceID, err)
	}

	if err := e.markFaceUnassigned(ctx, face); err != nil {
		return previous, err
	}
	return previous, nil
}

// BulkItemResult reports one item of a bulk action.
type BulkItemResult struct {
	SuggestionID int64
	Err          error
}

// BulkResult reports a bulk action. Failures are isolated per item.
type BulkResult struct {
	Accepted int
	Rejected int
	Failed   int
	Items    []BulkItemResult
	// TouchedPersons are the distinct persons whose suggestions were
	// accepted, in first-seen order; used for find-more propagation.
	TouchedPersons []int64
}

// BulkResolve accepts or rejects many suggestions. A failing item
// never aborts its siblings; each item's outcome is reported
// individually. Desync errors count as success: the relational state
// changed as requested.
func (e *Engine) BulkResolve(ctx context.Context, suggestionIDs []int64, accept bool) *BulkResult {
	result := &BulkResult{}
	touched := make(map[int64]struct{})

	for _, id := range suggestionIDs {
		var err error
		if accept {
			var sugg *store.FaceSuggestion
			sugg, err = e.Accept(ctx, id)
			if err == nil || store.IsDesync(err) {
				result.Accepted++
				if _, seen := touched[sugg.PersonID]; !seen {
					touched[sugg.PersonID] = struct{}{}
					result.TouchedPersons = append(result.TouchedPersons, sugg.PersonID)
				}
				err = nil
			}
		} else {
			err = e.Reject(ctx, id)
			if err == nil {
				result.Rejected++
			}
		}
		if err != nil {
			result.Failed++
		}
		result.Items = append(result.Items, BulkItemResult{SuggestionID: id, Err: err})
	}
	return result
}

// LabelCluster converts an unknown cluster into labeled faces of a
// person and removes the cluster.
func (e *Engine) LabelCluster(ctx context.Context, clusterID, personID int64) (int, error) {
	person, err := e.stores.Persons.GetPerson(ctx, personID)
	if err != nil {
		return 0, err
	}
	if person.Status != store.PersonActive {
		return 0, fmt.Errorf("person %d is %s: %w", personID, person.Status, store.ErrInvalidArgument)
	}

	if _, err := e.stores.Clusters.GetCluster(ctx, clusterID); err != nil {
		return 0, err
	}
	faceIDs, err := e.stores.Clusters.ClusterFaceIDs(ctx, clusterID)
	if err != nil {
		return 0, fmt.Errorf("members of cluster %d: %w", clusterID, err)
	}

	assignments := make([]store.FaceAssignment, 0, len(faceIDs))
	for _, id := range faceIDs {
		assignments = append(assignments, store.FaceAssignment{FaceID: id, PersonID: personID})
	}
	if err := e.stores.Faces.AssignFaces(ctx, assignments); err != nil {
		return 0, fmt.Errorf("label cluster %d: %w", clusterID, err)
	}

	if err := e.stores.Clusters.DeleteCluster(ctx, clusterID); err != nil {
		return 0, fmt.Errorf("remove cluster %d: %w", clusterID, err)
	}

	if _, err := e.stores.Suggestions.ExpirePendingForFaces(ctx, faceIDs); err != nil {
		e.logger.Printf("Warning: expiring suggestions for cluster %d faces: %v", clusterID, err)
	}

	pid := personID
	err = e.stores.Events.RecordEvent(ctx, store.AssignmentEvent{
		Kind:       store.EventAssign,
		FaceIDs:    faceIDs,
		ToPersonID: &pid,
	})
	if err != nil {
		e.logger.Printf("Warning: recording label event for cluster %d: %v", clusterID, err)
	}

	faces, err := e.stores.Faces.GetFaces(ctx, faceIDs)
	if err == nil {
		updates := make([]vecstore.PayloadUpdate, 0, len(faces))
		for i := range faces {
			updates = append(updates, vecstore.PayloadUpdate{
				ID:     faces[i].EmbeddingID,
				Fields: assignedFields(personID),
			})
		}
		e.pushFacePayloads(ctx, updates)
	}
	return len(faceIDs), nil
}

// ListSuggestions returns pending suggestions grouped by person with
// two-dimensional pagination: groupLimit persons (most pending work
// first) starting at groupOffset, at most perGroup suggestions each.
func (e *Engine) ListSuggestions(ctx context.Context, groupLimit, groupOffset, perGroup int) ([]store.SuggestionGroup, error) {
	if groupLimit <= 0 {
		groupLimit = 20
	}
	if perGroup <= 0 {
		perGroup = 10
	}
	if groupOffset < 0 {
		groupOffset = 0
	}
	return e.stores.Suggestions.ListGrouped(ctx, groupLimit, groupOffset, perGroup)
}
