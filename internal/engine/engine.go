// Package engine implements the face assignment and suggestion core:
// prototype management, two-tier threshold assignment, density
// clustering of unknown faces, and the suggestion review lifecycle.
package engine

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

// Engine coordinates the relational stores and the vector index. The
// relational store is the source of truth; vector writes that fail
// after a relational commit are logged as desyncs, never rolled back.
type Engine struct {
	stores  *store.Stores
	vectors vecstore.VectorStore
	logger  *log.Logger
}

// New creates an engine over explicit store handles. A nil logger
// falls back to the default logger.
func New(stores *store.Stores, vectors vecstore.VectorStore, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		stores:  stores,
		vectors: vectors,
		logger:  logger,
	}
}

// prototypeAnchorID is the anchors-namespace point id for a prototype.
func prototypeAnchorID(prototypeID int64) string {
	return "proto-" + strconv.FormatInt(prototypeID, 10)
}

// centroidAnchorID is the anchors-namespace point id for a person's
// current centroid. Centroid versions supersede each other, so one
// point per person is enough.
func centroidAnchorID(personID int64) string {
	return "centroid-" + strconv.FormatInt(personID, 10)
}

// faceVector fetches a face's embedding from the faces namespace.
func (e *Engine) faceVector(ctx context.Context, face *store.Face) ([]float32, error) {
	vec, err := e.vectors.GetVector(ctx, vecstore.NamespaceFaces, face.EmbeddingID)
	if err != nil {
		return nil, fmt.Errorf("embedding for face %d: %w", face.ID, err)
	}
	return vec, nil
}

// settings reads the current engine settings. Read fresh per batch so
// operators can tune thresholds without a restart.
func (e *Engine) settings(ctx context.Context) (store.EngineSettings, error) {
	s, err := e.stores.Settings.LoadSettings(ctx)
	if err != nil {
		return store.EngineSettings{}, fmt.Errorf("load engine settings: %w", err)
	}
	return s, nil
}

// logDesync records a dual-write consistency gap. The relational write
// has committed; the vector index will lag until reconciled.
func (e *Engine) logDesync(namespace string, err error) {
	e.logger.Printf("DESYNC: vector store write failed in namespace %q after relational commit: %v", namespace, err)
}

// assignedFields is the payload patch marking a face as assigned.
func assignedFields(personID int64) map[string]string {
	return map[string]string{
		vecstore.PayloadAssigned: "true",
		vecstore.PayloadPersonID: strconv.FormatInt(personID, 10),
	}
}

// markFaceAssigned pushes the assigned payload for a face to the
// vector index. Returns a DesyncError on failure; callers surface it
// without rolling back.
func (e *Engine) markFaceAssigned(ctx context.Context, face *store.Face, personID int64) error {
	err := e.vectors.UpdatePayload(ctx, vecstore.NamespaceFaces, face.EmbeddingID, assignedFields(personID))
	if err != nil {
		e.logDesync(vecstore.NamespaceFaces, err)
		return &store.DesyncError{Namespace: vecstore.NamespaceFaces, Err: err}
	}
	return nil
}

// pushFacePayloads applies a batch of payload patches to the faces
// namespace in one round-trip. Same desync contract as markFaceAssigned.
func (e *Engine) pushFacePayloads(ctx context.Context, updates []vecstore.PayloadUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if err := e.vectors.UpdatePayloads(ctx, vecstore.NamespaceFaces, updates); err != nil {
		e.logDesync(vecstore.NamespaceFaces, err)
		return &store.DesyncError{Namespace: vecstore.NamespaceFaces, Err: err}
	}
	return nil
}

// IndexFace writes a freshly ingested face's embedding into the faces
// namespace as an unassigned point. The face row is already committed;
// an index failure is a desync, not a rollback.
func (e *Engine) IndexFace(ctx context.Context, face *store.Face, vector []float32) error {
	err := e.vectors.Upsert(ctx, vecstore.NamespaceFaces, []vecstore.Point{{
		ID:     face.EmbeddingID,
		Vector: vector,
		Payload: map[string]string{
			vecstore.PayloadFaceID:   strconv.FormatInt(face.ID, 10),
			vecstore.PayloadAssigned: "false",
		},
	}})
	if err != nil {
		e.logDesync(vecstore.NamespaceFaces, err)
		return &store.DesyncError{Namespace: vecstore.NamespaceFaces, Err: err}
	}
	return nil
}

// markFaceUnassigned clears the assigned payload for a face.
func (e *Engine) markFaceUnassigned(ctx context.Context, face *store.Face) error {
	err := e.vectors.UpdatePayload(ctx, vecstore.NamespaceFaces, face.EmbeddingID, map[string]string{
		vecstore.PayloadAssigned: "false",
		vecstore.PayloadPersonID: "",
	})
	if err != nil {
		e.logDesync(vecstore.NamespaceFaces, err)
		return &store.DesyncError{Namespace: vecstore.NamespaceFaces, Err: err}
	}
	return nil
}
