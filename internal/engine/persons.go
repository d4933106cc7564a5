package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

// MergeResult reports one person merge.
type MergeResult struct {
	FromPersonID       int64
	IntoPersonID       int64
	MovedFaces         int
	ExpiredSuggestions int
}

// MergePersons folds one person into another: faces and prototypes
// re-point to the survivor, pending suggestions targeting the merged
// person expire, and the merged person's anchors leave the vector
// index. The survivor's centroid is recomputed best-effort since its
// source face set just changed.
func (e *Engine) MergePersons(ctx context.Context, fromID, intoID int64) (*MergeResult, error) {
	if fromID == intoID {
		return nil, fmt.Errorf("cannot merge person %d into itself: %w", fromID, store.ErrInvalidArgument)
	}
	from, err := e.stores.Persons.GetPerson(ctx, fromID)
	if err != nil {
		return nil, err
	}
	into, err := e.stores.Persons.GetPerson(ctx, intoID)
	if err != nil {
		return nil, err
	}
	if from.Status != store.PersonActive {
		return nil, fmt.Errorf("person %d is %s: %w", fromID, from.Status, store.ErrInvalidArgument)
	}
	if into.Status != store.PersonActive {
		return nil, fmt.Errorf("person %d is %s: %w", intoID, into.Status, store.ErrInvalidArgument)
	}

	moved, err := e.stores.Faces.MoveFaces(ctx, fromID, intoID)
	if err != nil {
		return nil, fmt.Errorf("move faces from person %d: %w", fromID, err)
	}
	if err := e.stores.Prototypes.MovePrototypes(ctx, fromID, intoID); err != nil {
		return nil, fmt.Errorf("move prototypes from person %d: %w", fromID, err)
	}
	expired, err := e.stores.Suggestions.ExpirePendingForPerson(ctx, fromID)
	if err != nil {
		return nil, fmt.Errorf("expire suggestions for person %d: %w", fromID, err)
	}
	if err := e.stores.Persons.MarkMerged(ctx, fromID, intoID); err != nil {
		return nil, err
	}

	if len(moved) > 0 {
		f, t := fromID, intoID
		err = e.stores.Events.RecordEvent(ctx, store.AssignmentEvent{
			Kind:         store.EventMove,
			FaceIDs:      moved,
			FromPersonID: &f,
			ToPersonID:   &t,
		})
		if err != nil {
			e.logger.Printf("Warning: recording merge event: %v", err)
		}
	}

	// Best-effort vector index maintenance. The relational merge has
	// committed; failures here are desyncs.
	faces, err := e.stores.Faces.GetFaces(ctx, moved)
	if err == nil {
		updates := make([]vecstore.PayloadUpdate, 0, len(faces))
		for i := range faces {
			updates = append(updates, vecstore.PayloadUpdate{
				ID:     faces[i].EmbeddingID,
				Fields: assignedFields(intoID),
			})
		}
		e.pushFacePayloads(ctx, updates)
	}
	e.dropPersonAnchors(ctx, fromID)

	if _, err := e.RecomputeCentroid(ctx, intoID); err != nil && !store.IsDesync(err) {
		e.logger.Printf("Warning: recomputing centroid after merge into person %d: %v", intoID, err)
	}

	return &MergeResult{
		FromPersonID:       fromID,
		IntoPersonID:       intoID,
		MovedFaces:         len(moved),
		ExpiredSuggestions: expired,
	}, nil
}

// dropPersonAnchors removes every anchor point (prototypes and
// centroid) belonging to a person.
func (e *Engine) dropPersonAnchors(ctx context.Context, personID int64) {
	filter := vecstore.Filter{vecstore.PayloadPersonID: strconv.FormatInt(personID, 10)}
	var ids []string
	err := e.vectors.Scroll(ctx, vecstore.NamespaceAnchors, filter, func(p vecstore.Point) error {
		ids = append(ids, p.ID)
		return nil
	})
	if err != nil {
		e.logDesync(vecstore.NamespaceAnchors, err)
		return
	}
	if len(ids) == 0 {
		return
	}
	if err := e.vectors.Delete(ctx, vecstore.NamespaceAnchors, ids); err != nil {
		e.logDesync(vecstore.NamespaceAnchors, err)
	}
}
