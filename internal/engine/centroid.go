package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

// centroidSourceHash fingerprints the face set a centroid derives
// from. Sorted so face ordering never changes the hash; the embedding
// handle is included so re-embedding a face also counts as a change.
func centroidSourceHash(faces []store.Face) string {
	lines := make([]string, 0, len(faces))
	for _, f := range faces {
		lines = append(lines, strconv.FormatInt(f.ID, 10)+":"+f.EmbeddingID)
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// CentroidStale reports whether a person's latest centroid no longer
// matches their current face set. A person with faces but no centroid
// is stale; a person with no faces is not.
func (e *Engine) CentroidStale(ctx context.Context, personID int64) (bool, error) {
	faces, err := e.stores.Faces.ListByPerson(ctx, personID)
	if err != nil {
		return false, fmt.Errorf("list faces for person %d: %w", personID, err)
	}
	if len(faces) == 0 {
		return false, nil
	}

	latest, err := e.stores.Centroids.LatestCentroid(ctx, personID)
	if err != nil {
		return false, fmt.Errorf("latest centroid for person %d: %w", personID, err)
	}
	if latest == nil {
		return true, nil
	}
	return latest.SourceHash != centroidSourceHash(faces), nil
}

// RecomputeCentroid derives a new centroid version from the person's
// current labeled faces and pushes it to the anchors namespace. A
// no-op when the face set is unchanged. Prior versions are superseded,
// never mutated. Returns a DesyncError (with the new centroid) when
// the anchor push fails after the relational insert.
func (e *Engine) RecomputeCentroid(ctx context.Context, personID int64) (*store.PersonCentroid, error) {
	person, err := e.stores.Persons.GetPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	if person.Status != store.PersonActive {
		return nil, fmt.Errorf("person %d is %s: %w", personID, person.Status, store.ErrInvalidArgument)
	}

	faces, err := e.stores.Faces.ListByPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("list faces for person %d: %w", personID, err)
	}
	if len(faces) == 0 {
		return nil, fmt.Errorf("person %d has no labeled faces: %w", personID, store.ErrInvalidArgument)
	}

	hash := centroidSourceHash(faces)
	latest, err := e.stores.Centroids.LatestCentroid(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("latest centroid for person %d: %w", personID, err)
	}
	if latest != nil && latest.SourceHash == hash {
		return latest, nil
	}

	var vectors [][]float32
	var used int
	for i := range faces {
		vec, err := e.faceVector(ctx, &faces[i])
		if err != nil {
			e.logger.Printf("Warning: centroid for person %d skipping face %d: %v", personID, faces[i].ID, err)
			continue
		}
		vectors = append(vectors, vec)
		used++
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("person %d has no usable embeddings: %w", personID, store.ErrInvalidArgument)
	}

	mean := store.MeanVector(vectors)
	if mean == nil {
		return nil, fmt.Errorf("person %d has mixed embedding dimensions: %w", personID, store.ErrInvalidArgument)
	}

	version := 1
	if latest != nil {
		version = latest.Version + 1
	}

	centroid, err := e.stores.Centroids.InsertCentroid(ctx, store.PersonCentroid{
		PersonID:   personID,
		Version:    version,
		FaceCount:  used,
		SourceHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("insert centroid for person %d: %w", personID, err)
	}

	err = e.vectors.Upsert(ctx, vecstore.NamespaceAnchors, []vecstore.Point{{
		ID:     centroidAnchorID(personID),
		Vector: mean,
		Payload: map[string]string{
			vecstore.PayloadKind:     vecstore.KindCentroid,
			vecstore.PayloadPersonID: strconv.FormatInt(personID, 10),
		},
	}})
	if err != nil {
		e.logDesync(vecstore.NamespaceAnchors, err)
		return centroid, &store.DesyncError{Namespace: vecstore.NamespaceAnchors, Err: err}
	}
	return centroid, nil
}
