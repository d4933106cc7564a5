package store

import (
	"time"
)

// PersonStatus describes the lifecycle state of a person record.
type PersonStatus string

// Person lifecycle states.
const (
	PersonActive PersonStatus = "active"
	PersonMerged PersonStatus = "merged"
	PersonHidden PersonStatus = "hidden"
)

// PrototypeRole describes why a prototype was selected as a search anchor.
type PrototypeRole string

// Prototype roles.
const (
	RolePrimary  PrototypeRole = "primary"  // top-quality exemplar
	RoleTemporal PrototypeRole = "temporal" // covers a distinct life era
	RoleFallback PrototypeRole = "fallback" // filler when better candidates are scarce
)

// SuggestionStatus is the review state of a face suggestion.
type SuggestionStatus string

// Suggestion states. Accepted, rejected and expired are terminal.
const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
	SuggestionExpired  SuggestionStatus = "expired"
)

// EventKind is the operation recorded by an assignment event.
type EventKind string

// Assignment event kinds.
const (
	EventAssign   EventKind = "assign"
	EventUnassign EventKind = "unassign"
	EventMove     EventKind = "move"
)

// Face is one detected face instance. PersonID and ClusterID are never
// both set: an assigned face cannot belong to an unknown cluster.
type Face struct {
	ID          int64
	ImageUID    string
	BBox        []float64 // [x1, y1, x2, y2] in raw pixel coordinates
	DetScore    float64
	Quality     float64 // 0-1
	EmbeddingID string  // point id in the vector store faces namespace
	PersonID    *int64
	ClusterID   *int64
	TakenAt     *time.Time
	CreatedAt   time.Time
}

// Assigned reports whether the face has a person owner.
func (f *Face) Assigned() bool { return f.PersonID != nil }

// Clustered reports whether the face belongs to an unknown cluster.
func (f *Face) Clustered() bool { return f.ClusterID != nil }

// Person is a named identity. Name is unique case-insensitively
// (after diacritics normalization).
type Person struct {
	ID         int64
	Name       string
	Status     PersonStatus
	MergedInto *int64 // surviving person when Status == PersonMerged
	CreatedAt  time.Time
}

// Prototype is a representative face embedding anchor for a person.
// Pinned prototypes survive recomputation and are never auto-evicted.
type Prototype struct {
	ID        int64
	PersonID  int64
	FaceID    int64
	Role      PrototypeRole
	Pinned    bool
	Quality   float64
	CreatedAt time.Time
}

// PersonCentroid is the mean embedding of a person's labeled faces.
// Recomputation inserts a new version; old versions are superseded,
// never mutated. SourceHash identifies the face set the centroid was
// computed from so staleness can be detected without loading vectors.
type PersonCentroid struct {
	ID         int64
	PersonID   int64
	Version    int
	FaceCount  int
	SourceHash string
	CreatedAt  time.Time
}

// FaceSuggestion is a proposed face-to-person assignment pending review.
// At most one pending suggestion exists per (face, person) pair.
type FaceSuggestion struct {
	ID              int64
	FaceID          int64
	PersonID        int64
	Score           float64           // best single-anchor score
	PrototypeScores map[int64]float64 // per-prototype scores, keyed by prototype id
	Confidence      float64           // aggregate across corroborating anchors
	Status          SuggestionStatus
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

// UnknownCluster groups faces believed to be the same unidentified
// person. Clusters are destroyed and recreated wholesale by each
// clustering pass.
type UnknownCluster struct {
	ID                 int64
	Cohesion           float64 // mean pairwise similarity of members
	RepresentativeFace int64
	FaceCount          int
	CreatedAt          time.Time
}

// AssignmentEvent is an immutable audit record of an assign, unassign
// or move operation.
type AssignmentEvent struct {
	ID           int64
	Kind         EventKind
	FaceIDs      []int64
	FromPersonID *int64
	ToPersonID   *int64
	CreatedAt    time.Time
}

// FaceAssignment is one face-to-person write in an assignment batch.
type FaceAssignment struct {
	FaceID   int64
	PersonID int64
	Score    float64
}

// ClusterMembership links a face to an unknown cluster in a batch write.
type ClusterMembership struct {
	FaceID    int64
	ClusterID int64
}

// SuggestionGroup is one page bucket of the person-grouped suggestion
// listing: a person and their top pending suggestions.
type SuggestionGroup struct {
	Person       Person
	PendingCount int
	Suggestions  []FaceSuggestion
}

// EngineSettings are the runtime-adjustable engine tunables. They are
// persisted in the relational store and read fresh per batch so
// operators can tune without restart.
type EngineSettings struct {
	AutoAssignThreshold float64 `yaml:"auto_assign_threshold"`
	SuggestionThreshold float64 `yaml:"suggestion_threshold"`
	MinClusterSize      int     `yaml:"min_cluster_size"`
	ClusterEpsilon      float64 `yaml:"cluster_epsilon"` // max cosine distance between neighbors
	PrototypeQuota      int     `yaml:"prototype_quota"`
	CentroidMinFaces    int     `yaml:"centroid_min_faces"`
	MaxCandidates       int     `yaml:"max_candidates"`   // anchor matches considered per face
	FindMoreAnchors     int     `yaml:"find_more_anchors"` // sampled faces in prototype-mode find-more
	PropagationLimit    int     `yaml:"propagation_limit"` // fan-out bound per accept action
}
