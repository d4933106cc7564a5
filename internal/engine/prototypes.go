package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

// fallbackQuality is the quality below which a selected prototype gets
// the fallback role: usable as an anchor, but only because nothing
// better exists.
const fallbackQuality = 0.5

// eraYears buckets taken-at timestamps into appearance eras. Five
// years is wide enough that haircuts don't fragment a person, narrow
// enough that childhood and adulthood land in different buckets.
const eraYears = 5

// SelectPrototypes returns a person's current prototypes, pinned first
// and best quality first within each group.
func (e *Engine) SelectPrototypes(ctx context.Context, personID int64) ([]store.Prototype, error) {
	if _, err := e.stores.Persons.GetPerson(ctx, personID); err != nil {
		return nil, err
	}
	return e.stores.Prototypes.ListPrototypes(ctx, personID)
}

// RecomputePrototypes re-derives a person's unpinned prototypes from
// their current labeled faces and syncs the anchors namespace. Pinned
// prototypes are never touched; they count against the quota.
func (e *Engine) RecomputePrototypes(ctx context.Context, personID int64) ([]store.Prototype, error) {
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

	faces, err := e.stores.Faces.ListByPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("list faces for person %d: %w", personID, err)
	}

	pinnedCount, err := e.stores.Prototypes.CountPinned(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("count pinned prototypes: %w", err)
	}
	slots := settings.PrototypeQuota - pinnedCount
	if slots < 0 {
		slots = 0
	}

	// Pinned prototypes stay; exclude their source faces from the
	// candidate pool so the same face cannot appear twice.
	current, err := e.stores.Prototypes.ListPrototypes(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("list prototypes: %w", err)
	}
	pinnedFaces := make(map[int64]struct{})
	for _, p := range current {
		if p.Pinned {
			pinnedFaces[p.FaceID] = struct{}{}
		}
	}

	var candidates []store.Face
	for _, f := range faces {
		if _, pinned := pinnedFaces[f.ID]; !pinned {
			candidates = append(candidates, f)
		}
	}

	selected := selectByQualityAndEra(candidates, slots)

	replaced, err := e.stores.Prototypes.ReplacePrototypes(ctx, personID, selected)
	if err != nil {
		return nil, fmt.Errorf("replace prototypes for person %d: %w", personID, err)
	}

	if err := e.syncPrototypeAnchors(ctx, personID, faces, replaced); err != nil {
		// Relational replacement already committed.
		return replaced, err
	}
	return replaced, nil
}

// selectByQualityAndEra picks up to slots prototype candidates. The
// best face of each distinct taken-at era is reserved first so a
// person's appearance range is represented, not just their best
// photos; remaining slots fill by quality.
func selectByQualityAndEra(faces []store.Face, slots int) []store.Prototype {
	if slots == 0 || len(faces) == 0 {
		return nil
	}

	sorted := make([]store.Face, len(faces))
	copy(sorted, faces)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Quality != sorted[j].Quality {
			return sorted[i].Quality > sorted[j].Quality
		}
		return sorted[i].ID < sorted[j].ID
	})

	type pick struct {
		face store.Face
		role store.PrototypeRole
	}
	var picks []pick
	chosen := make(map[int64]struct{})

	// One slot per distinct era, best face first. The overall best
	// face is the primary exemplar regardless of its era.
	seenEras := make(map[int]struct{})
	for i, f := range sorted {
		if len(picks) >= slots {
			break
		}
		if f.TakenAt == nil {
			continue
		}
		era := f.TakenAt.Year() / eraYears
		if _, ok := seenEras[era]; ok {
			continue
		}
		seenEras[era] = struct{}{}
		role := store.RoleTemporal
		if i == 0 {
			role = store.RolePrimary
		}
		picks = append(picks, pick{face: f, role: role})
		chosen[f.ID] = struct{}{}
	}

	// Fill the rest by quality.
	for _, f := range sorted {
		if len(picks) >= slots {
			break
		}
		if _, ok := chosen[f.ID]; ok {
			continue
		}
		role := store.RolePrimary
		if f.Quality < fallbackQuality {
			role = store.RoleFallback
		}
		picks = append(picks, pick{face: f, role: role})
		chosen[f.ID] = struct{}{}
	}

	prototypes := make([]store.Prototype, 0, len(picks))
	for _, p := range picks {
		prototypes = append(prototypes, store.Prototype{
			FaceID:  p.face.ID,
			Role:    p.role,
			Quality: p.face.Quality,
		})
	}
	return prototypes
}

// syncPrototypeAnchors rebuilds the person's prototype points in the
// anchors namespace to match the relational prototype set.
func (e *Engine) syncPrototypeAnchors(ctx context.Context, personID int64, faces []store.Face, prototypes []store.Prototype) error {
	personFilter := vecstore.Filter{
		vecstore.PayloadKind:     vecstore.KindPrototype,
		vecstore.PayloadPersonID: strconv.FormatInt(personID, 10),
	}

	var stale []string
	err := e.vectors.Scroll(ctx, vecstore.NamespaceAnchors, personFilter, func(p vecstore.Point) error {
		stale = append(stale, p.ID)
		return nil
	})
	if err != nil {
		e.logDesync(vecstore.NamespaceAnchors, err)
		return &store.DesyncError{Namespace: vecstore.NamespaceAnchors, Err: err}
	}

	embeddingByFace := make(map[int64]string, len(faces))
	for _, f := range faces {
		embeddingByFace[f.ID] = f.EmbeddingID
	}

	var points []vecstore.Point
	for _, p := range prototypes {
		embeddingID, ok := embeddingByFace[p.FaceID]
		if !ok {
			continue
		}
		vec, err := e.vectors.GetVector(ctx, vecstore.NamespaceFaces, embeddingID)
		if err != nil {
			e.logger.Printf("Warning: skipping prototype %d, no embedding for face %d: %v", p.ID, p.FaceID, err)
			continue
		}
		points = append(points, vecstore.Point{
			ID:     prototypeAnchorID(p.ID),
			Vector: vec,
			Payload: map[string]string{
				vecstore.PayloadKind:     vecstore.KindPrototype,
				vecstore.PayloadPersonID: strconv.FormatInt(personID, 10),
				vecstore.PayloadFaceID:   strconv.FormatInt(p.FaceID, 10),
			},
		})
	}

	if len(stale) > 0 {
		if err := e.vectors.Delete(ctx, vecstore.NamespaceAnchors, stale); err != nil {
			e.logDesync(vecstore.NamespaceAnchors, err)
			return &store.DesyncError{Namespace: vecstore.NamespaceAnchors, Err: err}
		}
	}
	if len(points) > 0 {
		if err := e.vectors.Upsert(ctx, vecstore.NamespaceAnchors, points); err != nil {
			e.logDesync(vecstore.NamespaceAnchors, err)
			return &store.DesyncError{Namespace: vecstore.NamespaceAnchors, Err: err}
		}
	}
	return nil
}

// PinPrototype pins a prototype so recomputation never evicts it.
// Fails with a QuotaError when the person's pin quota is exhausted.
func (e *Engine) PinPrototype(ctx context.Context, prototypeID int64) error {
	proto, err := e.stores.Prototypes.GetPrototype(ctx, prototypeID)
	if err != nil {
		return err
	}
	if proto.Pinned {
		return nil
	}

	settings, err := e.settings(ctx)
	if err != nil {
		return err
	}

	pinned, err := e.stores.Prototypes.CountPinned(ctx, proto.PersonID)
	if err != nil {
		return fmt.Errorf("count pinned prototypes: %w", err)
	}
	if pinned >= settings.PrototypeQuota {
		return &store.QuotaError{Resource: "pinned prototypes", Limit: settings.PrototypeQuota}
	}

	return e.stores.Prototypes.SetPinned(ctx, prototypeID, true)
}

// UnpinPrototype releases a pin. The prototype stays until the next
// recompute ranks it out.
func (e *Engine) UnpinPrototype(ctx context.Context, prototypeID int64) error {
	if _, err := e.stores.Prototypes.GetPrototype(ctx, prototypeID); err != nil {
		return err
	}
	return e.stores.Prototypes.SetPinned(ctx, prototypeID, false)
}
