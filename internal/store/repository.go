package store

import (
	"context"
)

// FaceStore provides access to detected faces.
type FaceStore interface {
	// CreateFace inserts a detected face and returns it with its id.
	CreateFace(ctx context.Context, f Face) (*Face, error)
	// GetFace retrieves a face by id, ErrNotFound when missing.
	GetFace(ctx context.Context, id int64) (*Face, error)
	// GetFaces retrieves faces by id, skipping missing ids.
	GetFaces(ctx context.Context, ids []int64) ([]Face, error)
	// ListUnassigned returns faces with neither person nor cluster,
	// restricted to the given image UIDs (empty scope = whole library).
	ListUnassigned(ctx context.Context, imageScope []string) ([]Face, error)
	// ListByPerson returns all faces owned by a person.
	ListByPerson(ctx context.Context, personID int64) ([]Face, error)
	// CountByPerson returns the number of faces owned by a person.
	CountByPerson(ctx context.Context, personID int64) (int, error)
	// AssignFaces writes person ownership for a batch of faces in one
	// transaction, clearing any cluster membership.
	AssignFaces(ctx context.Context, assignments []FaceAssignment) error
	// UnassignFace clears person ownership and returns the previous
	// owner, ErrNotFound when the face is missing or unassigned.
	UnassignFace(ctx context.Context, faceID int64) (int64, error)
	// SetClusterMemberships writes cluster ids for a batch of faces.
	// Faces with a person owner are never touched.
	SetClusterMemberships(ctx context.Context, memberships []ClusterMembership) error
	// MoveFaces re-points all faces from one person to another and
	// returns the moved face ids. Used by person merge.
	MoveFaces(ctx context.Context, fromPersonID, toPersonID int64) ([]int64, error)
}

// PersonStore provides access to person identities.
type PersonStore interface {
	// CreatePerson creates a person; ErrDuplicateName when the
	// normalized name already exists.
	CreatePerson(ctx context.Context, name string) (*Person, error)
	GetPerson(ctx context.Context, id int64) (*Person, error)
	// GetPersonByName looks a person up by normalized display name.
	GetPersonByName(ctx context.Context, name string) (*Person, error)
	ListPersons(ctx context.Context) ([]Person, error)
	// MarkMerged flags a person as merged into a survivor.
	MarkMerged(ctx context.Context, fromID, intoID int64) error
}

// ClusterDraft describes one cluster produced by a clustering pass.
type ClusterDraft struct {
	Cohesion           float64
	RepresentativeFace int64
	FaceIDs            []int64
}

// PrototypeStore provides access to per-person prototype anchors.
type PrototypeStore interface {
	ListPrototypes(ctx context.Context, personID int64) ([]Prototype, error)
	GetPrototype(ctx context.Context, id int64) (*Prototype, error)
	// ReplacePrototypes swaps a person's unpinned prototypes for the
	// given set in one transaction. Pinned rows are preserved as-is.
	// Returns the person's full prototype list with assigned ids.
	ReplacePrototypes(ctx context.Context, personID int64, unpinned []Prototype) ([]Prototype, error)
	SetPinned(ctx context.Context, id int64, pinned bool) error
	CountPinned(ctx context.Context, personID int64) (int, error)
	// MovePrototypes re-points prototypes to another person (merge).
	MovePrototypes(ctx context.Context, fromPersonID, toPersonID int64) error
}

// CentroidStore provides access to versioned person centroids.
type CentroidStore interface {
	// LatestCentroid returns the newest centroid version for a person,
	// nil when none has been computed yet.
	LatestCentroid(ctx context.Context, personID int64) (*PersonCentroid, error)
	// InsertCentroid stores a new centroid version, superseding prior
	// versions without mutating them.
	InsertCentroid(ctx context.Context, c PersonCentroid) (*PersonCentroid, error)
}

// SuggestionStore provides access to face suggestions.
type SuggestionStore interface {
	// CreateSuggestion inserts a pending suggestion. When a pending
	// (face, person) suggestion already exists its scores are refreshed
	// in place and created == false.
	CreateSuggestion(ctx context.Context, s FaceSuggestion) (sugg *FaceSuggestion, created bool, err error)
	GetSuggestion(ctx context.Context, id int64) (*FaceSuggestion, error)
	ListPendingByFace(ctx context.Context, faceID int64) ([]FaceSuggestion, error)
	ListPendingByPerson(ctx context.Context, personID int64) ([]FaceSuggestion, error)
	// ListGrouped returns pending suggestions grouped by person,
	// ordered by pending count descending: groupLimit persons starting
	// at groupOffset, at most perGroup suggestions each.
	ListGrouped(ctx context.Context, groupLimit, groupOffset, perGroup int) ([]SuggestionGroup, error)
	// Resolve transitions a pending suggestion to a terminal status.
	// ErrInvalidArgument when the suggestion is already terminal.
	Resolve(ctx context.Context, id int64, status SuggestionStatus) error
	// ExpirePendingForFace expires all pending suggestions for a face
	// except the given id (0 = expire all). Returns the expired count.
	ExpirePendingForFace(ctx context.Context, faceID, exceptID int64) (int, error)
	// ExpirePendingForFaces expires all pending suggestions for a set of
	// faces in one statement. Returns the expired count.
	ExpirePendingForFaces(ctx context.Context, faceIDs []int64) (int, error)
	// ExpirePendingForPerson expires all pending suggestions targeting
	// a person. Used when a person is merged away.
	ExpirePendingForPerson(ctx context.Context, personID int64) (int, error)
}

// ClusterStore provides access to unknown-face clusters.
type ClusterStore interface {
	// ReplaceClusters deletes the clusters currently covering the given
	// face population and inserts the drafts in one transaction,
	// returning the created clusters.
	ReplaceClusters(ctx context.Context, scopeFaceIDs []int64, drafts []ClusterDraft) ([]UnknownCluster, error)
	GetCluster(ctx context.Context, id int64) (*UnknownCluster, error)
	ListClusters(ctx context.Context) ([]UnknownCluster, error)
	// ClusterFaceIDs returns the member face ids of a cluster.
	ClusterFaceIDs(ctx context.Context, id int64) ([]int64, error)
	// DeleteCluster removes a cluster record; member faces must have
	// been reassigned or released by the caller first.
	DeleteCluster(ctx context.Context, id int64) error
}

// EventStore records immutable assignment audit events.
type EventStore interface {
	RecordEvent(ctx context.Context, e AssignmentEvent) error
	ListEventsByFace(ctx context.Context, faceID int64, limit int) ([]AssignmentEvent, error)
}

// SettingsStore persists runtime-adjustable engine settings.
type SettingsStore interface {
	// LoadSettings returns the persisted settings, or the defaults when
	// none have been saved yet.
	LoadSettings(ctx context.Context) (EngineSettings, error)
	SaveSettings(ctx context.Context, s EngineSettings) error
}

// Stores bundles every repository handle the engine needs. Explicit
// handles, no global singletons: each component receives what it uses,
// which keeps the in-memory fakes drop-in for tests.
type Stores struct {
	Faces       FaceStore
	Persons     PersonStore
	Prototypes  PrototypeStore
	Centroids   CentroidStore
	Suggestions SuggestionStore
	Clusters    ClusterStore
	Events      EventStore
	Settings    SettingsStore
}
