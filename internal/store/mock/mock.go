// Package mock provides in-memory implementations of the store
// interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MacPhobos/image-search-sub004/internal/facematch"
	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// MockFaceStore is an in-memory implementation of store.FaceStore.
type MockFaceStore struct {
	mu     sync.RWMutex
	faces  map[int64]*store.Face
	nextID int64

	// Error injection
	CreateError   error
	GetError      error
	ListError     error
	AssignError   error
	UnassignError error
	ClusterError  error
	MoveError     error
}

// NewMockFaceStore creates a new mock face store.
func NewMockFaceStore() *MockFaceStore {
	return &MockFaceStore{faces: make(map[int64]*store.Face), nextID: 1}
}

// AddFace seeds a face, assigning an id when the face has none.
func (m *MockFaceStore) AddFace(f store.Face) store.Face {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == 0 {
		f.ID = m.nextID
	}
	if f.ID >= m.nextID {
		m.nextID = f.ID + 1
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	m.faces[f.ID] = &f
	return f
}

func (m *MockFaceStore) CreateFace(ctx context.Context, f store.Face) (*store.Face, error) {
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	f.ID = 0
	created := m.AddFace(f)
	return &created, nil
}

func (m *MockFaceStore) GetFace(ctx context.Context, id int64) (*store.Face, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.faces[id]
	if !ok {
		return nil, fmt.Errorf("face %d: %w", id, store.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (m *MockFaceStore) GetFaces(ctx context.Context, ids []int64) ([]store.Face, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Face
	for _, id := range ids {
		if f, ok := m.faces[id]; ok {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockFaceStore) ListUnassigned(ctx context.Context, imageScope []string) ([]store.Face, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	scope := make(map[string]struct{}, len(imageScope))
	for _, uid := range imageScope {
		scope[uid] = struct{}{}
	}
	var out []store.Face
	for _, f := range m.faces {
		if f.PersonID != nil || f.ClusterID != nil {
			continue
		}
		if len(scope) > 0 {
			if _, ok := scope[f.ImageUID]; !ok {
				continue
			}
		}
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockFaceStore) ListByPerson(ctx context.Context, personID int64) ([]store.Face, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Face
	for _, f := range m.faces {
		if f.PersonID != nil && *f.PersonID == personID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quality != out[j].Quality {
			return out[i].Quality > out[j].Quality
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MockFaceStore) CountByPerson(ctx context.Context, personID int64) (int, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, f := range m.faces {
		if f.PersonID != nil && *f.PersonID == personID {
			count++
		}
	}
	return count, nil
}

func (m *MockFaceStore) AssignFaces(ctx context.Context, assignments []store.FaceAssignment) error {
	if m.AssignError != nil {
		return m.AssignError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range assignments {
		if _, ok := m.faces[a.FaceID]; !ok {
			return fmt.Errorf("face %d: %w", a.FaceID, store.ErrNotFound)
		}
	}
	for _, a := range assignments {
		f := m.faces[a.FaceID]
		pid := a.PersonID
		f.PersonID = &pid
		f.ClusterID = nil
	}
	return nil
}

func (m *MockFaceStore) UnassignFace(ctx context.Context, faceID int64) (int64, error) {
	if m.UnassignError != nil {
		return 0, m.UnassignError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.faces[faceID]
	if !ok || f.PersonID == nil {
		return 0, fmt.Errorf("face %d: %w", faceID, store.ErrNotFound)
	}
	prev := *f.PersonID
	f.PersonID = nil
	return prev, nil
}

func (m *MockFaceStore) SetClusterMemberships(ctx context.Context, memberships []store.ClusterMembership) error {
	if m.ClusterError != nil {
		return m.ClusterError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range memberships {
		f, ok := m.faces[mem.FaceID]
		if !ok || f.PersonID != nil {
			continue
		}
		cid := mem.ClusterID
		f.ClusterID = &cid
	}
	return nil
}

func (m *MockFaceStore) MoveFaces(ctx context.Context, fromPersonID, toPersonID int64) ([]int64, error) {
	if m.MoveError != nil {
		return nil, m.MoveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var moved []int64
	for _, f := range m.faces {
		if f.PersonID != nil && *f.PersonID == fromPersonID {
			pid := toPersonID
			f.PersonID = &pid
			moved = append(moved, f.ID)
		}
	}
	sort.Slice(moved, func(i, j int) bool { return moved[i] < moved[j] })
	return moved, nil
}

// MockPersonStore is an in-memory implementation of store.PersonStore.
type MockPersonStore struct {
	mu      sync.RWMutex
	persons map[int64]*store.Person
	nextID  int64

	// Error injection
	CreateError error
	GetError    error
	MergeError  error
}

// NewMockPersonStore creates a new mock person store.
func NewMockPersonStore() *MockPersonStore {
	return &MockPersonStore{persons: make(map[int64]*store.Person), nextID: 1}
}

// AddPerson seeds a person directly.
func (m *MockPersonStore) AddPerson(p store.Person) store.Person {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.nextID
	}
	if p.ID >= m.nextID {
		m.nextID = p.ID + 1
	}
	if p.Status == "" {
		p.Status = store.PersonActive
	}
	m.persons[p.ID] = &p
	return p
}

func (m *MockPersonStore) CreatePerson(ctx context.Context, name string) (*store.Person, error) {
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	normalized := facematch.NormalizePersonName(name)
	if normalized == "" {
		return nil, fmt.Errorf("empty person name: %w", store.ErrInvalidArgument)
	}
	for _, p := range m.persons {
		if facematch.NormalizePersonName(p.Name) == normalized {
			return nil, fmt.Errorf("person %q: %w", name, store.ErrDuplicateName)
		}
	}
	p := &store.Person{ID: m.nextID, Name: name, Status: store.PersonActive, CreatedAt: time.Now()}
	m.nextID++
	m.persons[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *MockPersonStore) GetPerson(ctx context.Context, id int64) (*store.Person, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.persons[id]
	if !ok {
		return nil, fmt.Errorf("person %d: %w", id, store.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *MockPersonStore) GetPersonByName(ctx context.Context, name string) (*store.Person, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	normalized := facematch.NormalizePersonName(name)
	for _, p := range m.persons {
		if facematch.NormalizePersonName(p.Name) == normalized {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("person %q: %w", name, store.ErrNotFound)
}

func (m *MockPersonStore) ListPersons(ctx context.Context) ([]store.Person, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Person
	for _, p := range m.persons {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockPersonStore) MarkMerged(ctx context.Context, fromID, intoID int64) error {
	if m.MergeError != nil {
		return m.MergeError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.persons[fromID]
	if !ok || p.Status != store.PersonActive {
		return fmt.Errorf("person %d not active: %w", fromID, store.ErrNotFound)
	}
	p.Status = store.PersonMerged
	into := intoID
	p.MergedInto = &into
	return nil
}

// MockPrototypeStore is an in-memory implementation of store.PrototypeStore.
type MockPrototypeStore struct {
	mu         sync.RWMutex
	prototypes map[int64]*store.Prototype
	nextID     int64

	// Error injection
	ListError    error
	ReplaceError error
	PinError     error
	MoveError    error
}

// NewMockPrototypeStore creates a new mock prototype store.
func NewMockPrototypeStore() *MockPrototypeStore {
	return &MockPrototypeStore{prototypes: make(map[int64]*store.Prototype), nextID: 1}
}

// AddPrototype seeds a prototype directly.
func (m *MockPrototypeStore) AddPrototype(p store.Prototype) store.Prototype {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.nextID
	}
	if p.ID >= m.nextID {
		m.nextID = p.ID + 1
	}
	m.prototypes[p.ID] = &p
	return p
}

func (m *MockPrototypeStore) listLocked(personID int64) []store.Prototype {
	var out []store.Prototype
	for _, p := range m.prototypes {
		if p.PersonID == personID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		if out[i].Quality != out[j].Quality {
			return out[i].Quality > out[j].Quality
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MockPrototypeStore) ListPrototypes(ctx context.Context, personID int64) ([]store.Prototype, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(personID), nil
}

func (m *MockPrototypeStore) GetPrototype(ctx context.Context, id int64) (*store.Prototype, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prototypes[id]
	if !ok {
		return nil, fmt.Errorf("prototype %d: %w", id, store.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *MockPrototypeStore) ReplacePrototypes(ctx context.Context, personID int64, unpinned []store.Prototype) ([]store.Prototype, error) {
	if m.ReplaceError != nil {
		return nil, m.ReplaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pinnedFaces := make(map[int64]struct{})
	for id, p := range m.prototypes {
		if p.PersonID != personID {
			continue
		}
		if p.Pinned {
			pinnedFaces[p.FaceID] = struct{}{}
			continue
		}
		delete(m.prototypes, id)
	}
	for _, p := range unpinned {
		if _, dup := pinnedFaces[p.FaceID]; dup {
			continue
		}
		p.ID = m.nextID
		m.nextID++
		p.PersonID = personID
		p.Pinned = false
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now()
		}
		cp := p
		m.prototypes[p.ID] = &cp
	}
	return m.listLocked(personID), nil
}

func (m *MockPrototypeStore) SetPinned(ctx context.Context, id int64, pinned bool) error {
	if m.PinError != nil {
		return m.PinError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prototypes[id]
	if !ok {
		return fmt.Errorf("prototype %d: %w", id, store.ErrNotFound)
	}
	p.Pinned = pinned
	return nil
}

func (m *MockPrototypeStore) CountPinned(ctx context.Context, personID int64) (int, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, p := range m.prototypes {
		if p.PersonID == personID && p.Pinned {
			count++
		}
	}
	return count, nil
}

func (m *MockPrototypeStore) MovePrototypes(ctx context.Context, fromPersonID, toPersonID int64) error {
	if m.MoveError != nil {
		return m.MoveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	targetFaces := make(map[int64]struct{})
	for _, p := range m.prototypes {
		if p.PersonID == toPersonID {
			targetFaces[p.FaceID] = struct{}{}
		}
	}
	for id, p := range m.prototypes {
		if p.PersonID != fromPersonID {
			continue
		}
		if _, dup := targetFaces[p.FaceID]; dup {
			delete(m.prototypes, id)
			continue
		}
		p.PersonID = toPersonID
	}
	return nil
}

// MockCentroidStore is an in-memory implementation of store.CentroidStore.
type MockCentroidStore struct {
	mu        sync.RWMutex
	centroids map[int64][]store.PersonCentroid
	nextID    int64

	// Error injection
	LatestError error
	InsertError error
}

// NewMockCentroidStore creates a new mock centroid store.
func NewMockCentroidStore() *MockCentroidStore {
	return &MockCentroidStore{centroids: make(map[int64][]store.PersonCentroid), nextID: 1}
}

func (m *MockCentroidStore) LatestCentroid(ctx context.Context, personID int64) (*store.PersonCentroid, error) {
	if m.LatestError != nil {
		return nil, m.LatestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.centroids[personID]
	if len(versions) == 0 {
		return nil, nil
	}
	latest := versions[len(versions)-1]
	return &latest, nil
}

func (m *MockCentroidStore) InsertCentroid(ctx context.Context, c store.PersonCentroid) (*store.PersonCentroid, error) {
	if m.InsertError != nil {
		return nil, m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.centroids[c.PersonID] {
		if existing.Version == c.Version {
			return nil, fmt.Errorf("centroid version %d exists: %w", c.Version, store.ErrInvalidArgument)
		}
	}
	c.ID = m.nextID
	m.nextID++
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.centroids[c.PersonID] = append(m.centroids[c.PersonID], c)
	return &c, nil
}

// MockSuggestionStore is an in-memory implementation of store.SuggestionStore.
type MockSuggestionStore struct {
	mu          sync.RWMutex
	suggestions map[int64]*store.FaceSuggestion
	nextID      int64

	// Persons is consulted by ListGrouped; wire the same mock person
	// store the test seeds.
	Persons *MockPersonStore

	// Error injection
	CreateError  error
	GetError     error
	ResolveError error
	ExpireError  error
}

// NewMockSuggestionStore creates a new mock suggestion store.
func NewMockSuggestionStore() *MockSuggestionStore {
	return &MockSuggestionStore{suggestions: make(map[int64]*store.FaceSuggestion), nextID: 1}
}

func (m *MockSuggestionStore) CreateSuggestion(ctx context.Context, s store.FaceSuggestion) (*store.FaceSuggestion, bool, error) {
	if m.CreateError != nil {
		return nil, false, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.suggestions {
		if existing.FaceID == s.FaceID && existing.PersonID == s.PersonID && existing.Status == store.SuggestionPending {
			existing.Score = s.Score
			existing.PrototypeScores = s.PrototypeScores
			existing.Confidence = s.Confidence
			cp := *existing
			return &cp, false, nil
		}
	}
	s.ID = m.nextID
	m.nextID++
	s.Status = store.SuggestionPending
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	cp := s
	m.suggestions[s.ID] = &cp
	out := s
	return &out, true, nil
}

func (m *MockSuggestionStore) GetSuggestion(ctx context.Context, id int64) (*store.FaceSuggestion, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("suggestion %d: %w", id, store.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MockSuggestionStore) listPendingLocked(match func(*store.FaceSuggestion) bool) []store.FaceSuggestion {
	var out []store.FaceSuggestion
	for _, s := range m.suggestions {
		if s.Status == store.SuggestionPending && match(s) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MockSuggestionStore) ListPendingByFace(ctx context.Context, faceID int64) ([]store.FaceSuggestion, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPendingLocked(func(s *store.FaceSuggestion) bool { return s.FaceID == faceID }), nil
}

func (m *MockSuggestionStore) ListPendingByPerson(ctx context.Context, personID int64) ([]store.FaceSuggestion, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPendingLocked(func(s *store.FaceSuggestion) bool { return s.PersonID == personID }), nil
}

func (m *MockSuggestionStore) ListGrouped(ctx context.Context, groupLimit, groupOffset, perGroup int) ([]store.SuggestionGroup, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	byPerson := make(map[int64][]store.FaceSuggestion)
	for _, s := range m.suggestions {
		if s.Status == store.SuggestionPending {
			byPerson[s.PersonID] = append(byPerson[s.PersonID], *s)
		}
	}

	type entry struct {
		personID int64
		count    int
	}
	var order []entry
	for pid, list := range byPerson {
		order = append(order, entry{pid, len(list)})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].personID < order[j].personID
	})

	if groupOffset >= len(order) {
		return nil, nil
	}
	order = order[groupOffset:]
	if groupLimit < len(order) {
		order = order[:groupLimit]
	}

	var groups []store.SuggestionGroup
	for _, e := range order {
		list := byPerson[e.personID]
		sort.Slice(list, func(i, j int) bool {
			if list[i].Score != list[j].Score {
				return list[i].Score > list[j].Score
			}
			return list[i].ID < list[j].ID
		})
		if perGroup < len(list) {
			list = list[:perGroup]
		}
		g := store.SuggestionGroup{PendingCount: e.count, Suggestions: list}
		if m.Persons != nil {
			if p, err := m.Persons.GetPerson(ctx, e.personID); err == nil {
				g.Person = *p
			}
		}
		if g.Person.ID == 0 {
			g.Person = store.Person{ID: e.personID, Status: store.PersonActive}
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (m *MockSuggestionStore) Resolve(ctx context.Context, id int64, status store.SuggestionStatus) error {
	if m.ResolveError != nil {
		return m.ResolveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.suggestions[id]
	if !ok {
		return fmt.Errorf("suggestion %d: %w", id, store.ErrNotFound)
	}
	if s.Status != store.SuggestionPending {
		return fmt.Errorf("suggestion %d already resolved: %w", id, store.ErrInvalidArgument)
	}
	now := time.Now()
	s.Status = status
	s.ResolvedAt = &now
	return nil
}

func (m *MockSuggestionStore) ExpirePendingForFace(ctx context.Context, faceID, exceptID int64) (int, error) {
	if m.ExpireError != nil {
		return 0, m.ExpireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	count := 0
	for _, s := range m.suggestions {
		if s.FaceID == faceID && s.Status == store.SuggestionPending && s.ID != exceptID {
			s.Status = store.SuggestionExpired
			s.ResolvedAt = &now
			count++
		}
	}
	return count, nil
}

func (m *MockSuggestionStore) ExpirePendingForFaces(ctx context.Context, faceIDs []int64) (int, error) {
	if m.ExpireError != nil {
		return 0, m.ExpireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[int64]bool, len(faceIDs))
	for _, id := range faceIDs {
		want[id] = true
	}
	now := time.Now()
	count := 0
	for _, s := range m.suggestions {
		if want[s.FaceID] && s.Status == store.SuggestionPending {
			s.Status = store.SuggestionExpired
			s.ResolvedAt = &now
			count++
		}
	}
	return count, nil
}

func (m *MockSuggestionStore) ExpirePendingForPerson(ctx context.Context, personID int64) (int, error) {
	if m.ExpireError != nil {
		return 0, m.ExpireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	count := 0
	for _, s := range m.suggestions {
		if s.PersonID == personID && s.Status == store.SuggestionPending {
			s.Status = store.SuggestionExpired
			s.ResolvedAt = &now
			count++
		}
	}
	return count, nil
}

// MockClusterStore is an in-memory implementation of store.ClusterStore.
// It shares face records with a MockFaceStore so cluster membership
// stays consistent with the face partition.
type MockClusterStore struct {
	mu       sync.RWMutex
	clusters map[int64]*store.UnknownCluster
	nextID   int64

	Faces *MockFaceStore

	// Error injection
	ReplaceError error
	GetError     error
	DeleteError  error
}

// NewMockClusterStore creates a new mock cluster store backed by the
// given face store.
func NewMockClusterStore(faces *MockFaceStore) *MockClusterStore {
	return &MockClusterStore{clusters: make(map[int64]*store.UnknownCluster), nextID: 1, Faces: faces}
}

func (m *MockClusterStore) ReplaceClusters(ctx context.Context, scopeFaceIDs []int64, drafts []store.ClusterDraft) ([]store.UnknownCluster, error) {
	if m.ReplaceError != nil {
		return nil, m.ReplaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Faces != nil {
		m.Faces.mu.Lock()
		for _, id := range scopeFaceIDs {
			if f, ok := m.Faces.faces[id]; ok {
				f.ClusterID = nil
			}
		}
		live := make(map[int64]int)
		for _, f := range m.Faces.faces {
			if f.ClusterID != nil {
				live[*f.ClusterID]++
			}
		}
		for id := range m.clusters {
			if live[id] == 0 {
				delete(m.clusters, id)
			}
		}
		m.Faces.mu.Unlock()
	}

	var out []store.UnknownCluster
	for _, draft := range drafts {
		c := &store.UnknownCluster{
			ID:                 m.nextID,
			Cohesion:           draft.Cohesion,
			RepresentativeFace: draft.RepresentativeFace,
			FaceCount:          len(draft.FaceIDs),
			CreatedAt:          time.Now(),
		}
		m.nextID++
		m.clusters[c.ID] = c

		if m.Faces != nil {
			m.Faces.mu.Lock()
			for _, fid := range draft.FaceIDs {
				if f, ok := m.Faces.faces[fid]; ok && f.PersonID == nil {
					cid := c.ID
					f.ClusterID = &cid
				}
			}
			m.Faces.mu.Unlock()
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *MockClusterStore) GetCluster(ctx context.Context, id int64) (*store.UnknownCluster, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clusters[id]
	if !ok {
		return nil, fmt.Errorf("cluster %d: %w", id, store.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *MockClusterStore) ListClusters(ctx context.Context) ([]store.UnknownCluster, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.UnknownCluster
	for _, c := range m.clusters {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FaceCount != out[j].FaceCount {
			return out[i].FaceCount > out[j].FaceCount
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MockClusterStore) ClusterFaceIDs(ctx context.Context, id int64) ([]int64, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Faces == nil {
		return nil, nil
	}
	m.Faces.mu.RLock()
	defer m.Faces.mu.RUnlock()
	var ids []int64
	for _, f := range m.Faces.faces {
		if f.ClusterID != nil && *f.ClusterID == id {
			ids = append(ids, f.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MockClusterStore) DeleteCluster(ctx context.Context, id int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clusters[id]; !ok {
		return fmt.Errorf("cluster %d: %w", id, store.ErrNotFound)
	}
	delete(m.clusters, id)
	if m.Faces != nil {
		m.Faces.mu.Lock()
		for _, f := range m.Faces.faces {
			if f.ClusterID != nil && *f.ClusterID == id {
				f.ClusterID = nil
			}
		}
		m.Faces.mu.Unlock()
	}
	return nil
}

// MockEventStore is an in-memory implementation of store.EventStore.
type MockEventStore struct {
	mu     sync.RWMutex
	events []store.AssignmentEvent
	nextID int64

	// Error injection
	RecordError error
	ListError   error
}

// NewMockEventStore creates a new mock event store.
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{nextID: 1}
}

// Events returns a copy of all recorded events in insertion order.
func (m *MockEventStore) Events() []store.AssignmentEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.AssignmentEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MockEventStore) RecordEvent(ctx context.Context, e store.AssignmentEvent) error {
	if m.RecordError != nil {
		return m.RecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID
	m.nextID++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.events = append(m.events, e)
	return nil
}

func (m *MockEventStore) ListEventsByFace(ctx context.Context, faceID int64, limit int) ([]store.AssignmentEvent, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.AssignmentEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		for _, fid := range m.events[i].FaceIDs {
			if fid == faceID {
				out = append(out, m.events[i])
				break
			}
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MockSettingsStore is an in-memory implementation of store.SettingsStore.
type MockSettingsStore struct {
	mu       sync.RWMutex
	settings *store.EngineSettings

	// Error injection
	LoadError error
	SaveError error
}

// NewMockSettingsStore creates a new mock settings store serving the
// defaults until something is saved.
func NewMockSettingsStore() *MockSettingsStore {
	return &MockSettingsStore{}
}

func (m *MockSettingsStore) LoadSettings(ctx context.Context) (store.EngineSettings, error) {
	if m.LoadError != nil {
		return store.EngineSettings{}, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return store.DefaultSettings(), nil
	}
	return *m.settings, nil
}

func (m *MockSettingsStore) SaveSettings(ctx context.Context, s store.EngineSettings) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

// NewStores wires a full set of mock stores sharing state where the
// real repositories share tables.
func NewStores() *store.Stores {
	faces := NewMockFaceStore()
	persons := NewMockPersonStore()
	suggestions := NewMockSuggestionStore()
	suggestions.Persons = persons
	return &store.Stores{
		Faces:       faces,
		Persons:     persons,
		Prototypes:  NewMockPrototypeStore(),
		Centroids:   NewMockCentroidStore(),
		Suggestions: suggestions,
		Clusters:    NewMockClusterStore(faces),
		Events:      NewMockEventStore(),
		Settings:    NewMockSettingsStore(),
	}
}

// Verify interface compliance.
var (
	_ store.FaceStore       = (*MockFaceStore)(nil)
	_ store.PersonStore     = (*MockPersonStore)(nil)
	_ store.PrototypeStore  = (*MockPrototypeStore)(nil)
	_ store.CentroidStore   = (*MockCentroidStore)(nil)
	_ store.SuggestionStore = (*MockSuggestionStore)(nil)
	_ store.ClusterStore    = (*MockClusterStore)(nil)
	_ store.EventStore      = (*MockEventStore)(nil)
	_ store.SettingsStore   = (*MockSettingsStore)(nil)
)
