package service

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"

	"cpa-distribution-system/internal/models"
	"cpa-distribution-system/pkg/errors"
)

// fakeParticipantStore 内存实现，按物化路径长度升序返回后代
type fakeParticipantStore struct {
	mu           sync.Mutex
	participants map[string]*models.Participant
	applyCalls   int
}

func newFakeParticipantStore() *fakeParticipantStore {
	return &fakeParticipantStore{participants: make(map[string]*models.Participant)}
}

func (f *fakeParticipantStore) GetByParticipantID(ctx context.Context, participantID string) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	node, ok := f.participants[participantID]
	if !ok {
		return nil, nil
	}
	clone := *node
	clone.Path = append(models.StringArray{}, node.Path...)
	return &clone, nil
}

func (f *fakeParticipantStore) GetByParticipantIDs(ctx context.Context, participantIDs []string) ([]models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]models.Participant, 0, len(participantIDs))
	for _, id := range participantIDs {
		if node, ok := f.participants[id]; ok {
			result = append(result, *node)
		}
	}
	return result, nil
}

func (f *fakeParticipantStore) Create(ctx context.Context, participant *models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.participants[participant.ParticipantID]; ok {
		return fmt.Errorf("duplicate participant: %s", participant.ParticipantID)
	}
	clone := *participant
	f.participants[participant.ParticipantID] = &clone
	return nil
}

func (f *fakeParticipantStore) GetDescendantsOf(ctx context.Context, participantID string) ([]models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]models.Participant, 0)
	for _, node := range f.participants {
		if node.ParticipantID == participantID {
			continue
		}
		for _, id := range node.Path {
			if id == participantID {
				result = append(result, *node)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return len(result[i].Path) < len(result[j].Path)
	})
	return result, nil
}

func (f *fakeParticipantStore) ApplyPathUpdates(ctx context.Context, updates []models.ParticipantPathUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	for _, update := range updates {
		node, ok := f.participants[update.ParticipantID]
		if !ok {
			return fmt.Errorf("participant not found: %s", update.ParticipantID)
		}
		node.ParentID = update.ParentID
		node.Level = update.Level
		node.Path = append(models.StringArray{}, update.Path...)
	}
	return nil
}

func (f *fakeParticipantStore) SetActive(ctx context.Context, participantID string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	node, ok := f.participants[participantID]
	if !ok {
		return fmt.Errorf("participant not found: %s", participantID)
	}
	node.Active = active
	return nil
}

func (f *fakeParticipantStore) snapshot() map[string]models.Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make(map[string]models.Participant, len(f.participants))
	for id, node := range f.participants {
		clone := *node
		clone.Path = append(models.StringArray{}, node.Path...)
		result[id] = clone
	}
	return result
}

func strPtr(s string) *string {
	return &s
}

// buildChain 构造root -> a -> b -> c四级链
func buildChain(t *testing.T, svc *HierarchyService) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.UpsertParticipant(ctx, "root", nil); err != nil {
		t.Fatalf("create root: %v", err)
	}
	if _, err := svc.UpsertParticipant(ctx, "a", strPtr("root")); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := svc.UpsertParticipant(ctx, "b", strPtr("a")); err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := svc.UpsertParticipant(ctx, "c", strPtr("b")); err != nil {
		t.Fatalf("create c: %v", err)
	}
}

func TestUpsertParticipantCreate(t *testing.T) {
	store := newFakeParticipantStore()
	svc := NewHierarchyService(store)
	ctx := context.Background()

	root, err := svc.UpsertParticipant(ctx, "root", nil)
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if root.Level != 1 || !reflect.DeepEqual(root.Path, models.StringArray{"root"}) {
		t.Errorf("root level=%d path=%v, want level 1 path [root]", root.Level, root.Path)
	}
	if !root.Active {
		t.Error("new participant should be active")
	}

	child, err := svc.UpsertParticipant(ctx, "a", strPtr("root"))
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if child.Level != 2 || !reflect.DeepEqual(child.Path, models.StringArray{"root", "a"}) {
		t.Errorf("child level=%d path=%v, want level 2 path [root a]", child.Level, child.Path)
	}
}

func TestUpsertParticipantInvalidInput(t *testing.T) {
	store := newFakeParticipantStore()
	svc := NewHierarchyService(store)
	ctx := context.Background()

	_, err := svc.UpsertParticipant(ctx, "", nil)
	if !errors.HasCode(err, errors.ErrInvalidInput) {
		t.Errorf("empty id: got %v, want %s", err, errors.ErrInvalidInput)
	}

	_, err = svc.UpsertParticipant(ctx, "x", strPtr("x"))
	if !errors.HasCode(err, errors.ErrHierarchyCycle) {
		t.Errorf("self parent: got %v, want %s", err, errors.ErrHierarchyCycle)
	}

	_, err = svc.UpsertParticipant(ctx, "x", strPtr("missing"))
	if !errors.HasCode(err, errors.ErrHierarchy) {
		t.Errorf("missing parent: got %v, want %s", err, errors.ErrHierarchy)
	}
}

func TestUpsertParticipantSameParentNoop(t *testing.T) {
	store := newFakeParticipantStore()
	svc := NewHierarchyService(store)
	ctx := context.Background()
	buildChain(t, svc)

	before := store.snapshot()
	if _, err := svc.UpsertParticipant(ctx, "b", strPtr("a")); err != nil {
		t.Fatalf("same-parent upsert: %v", err)
	}
	if store.applyCalls != 0 {
		t.Errorf("same-parent upsert triggered %d path updates, want 0", store.applyCalls)
	}
	if !reflect.DeepEqual(before, store.snapshot()) {
		t.Error("same-parent upsert changed stored state")
	}
}

func TestUpsertParticipantMoveCascades(t *testing.T) {
	store := newFakeParticipantStore()
	svc := NewHierarchyService(store)
	ctx := context.Background()
	buildChain(t, svc)
	if _, err := svc.UpsertParticipant(ctx, "d", strPtr("root")); err != nil {
		t.Fatalf("create d: %v", err)
	}

	// 将子树b(含c)移到d下
	moved, err := svc.UpsertParticipant(ctx, "b", strPtr("d"))
	if err != nil {
		t.Fatalf("move b: %v", err)
	}
	if moved.Level != 3 || !reflect.DeepEqual(moved.Path, models.StringArray{"root", "d", "b"}) {
		t.Errorf("moved level=%d path=%v, want level 3 path [root d b]", moved.Level, moved.Path)
	}

	state := store.snapshot()
	c := state["c"]
	if c.Level != 4 || !reflect.DeepEqual(c.Path, models.StringArray{"root", "d", "b", "c"}) {
		t.Errorf("descendant level=%d path=%v, want level 4 path [root d b c]", c.Level, c.Path)
	}
	a := state["a"]
	if a.Level != 2 || !reflect.DeepEqual(a.Path, models.StringArray{"root", "a"}) {
		t.Errorf("old parent changed: level=%d path=%v", a.Level, a.Path)
	}
	if store.applyCalls != 1 {
		t.Errorf("move used %d batched updates, want 1", store.applyCalls)
	}
}

func TestUpsertParticipantCycleRejected(t *testing.T) {
	store := newFakeParticipantStore()
	svc := NewHierarchyService(store)
	ctx := context.Background()
	buildChain(t, svc)

	before := store.snapshot()
	_, err := svc.UpsertParticipant(ctx, "a", strPtr("c"))
	if !errors.HasCode(err, errors.ErrHierarchyCycle) {
		t.Fatalf("move into own subtree: got %v, want %s", err, errors.ErrHierarchyCycle)
	}
	if !reflect.DeepEqual(before, store.snapshot()) {
		t.Error("rejected move changed stored state")
	}
}

func TestResolveUpline(t *testing.T) {
	store := newFakeParticipantStore()
	svc := NewHierarchyService(store)
	ctx := context.Background()
	buildChain(t, svc)

	upline, err := svc.ResolveUpline(ctx, "c", 0)
	if err != nil {
		t.Fatalf("resolve upline: %v", err)
	}
	want := []UplineEntry{
		{ParticipantID: "b", Level: 2},
		{ParticipantID: "a", Level: 3},
		{ParticipantID: "root", Level: 4},
	}
	if !reflect.DeepEqual(upline, want) {
		t.Errorf("upline = %v, want %v", upline, want)
	}
}

func TestResolveUplineMaxLevels(t *testing.T) {
	store := newFakeParticipantStore()
	svc := NewHierarchyService(store)
	ctx := context.Background()
	buildChain(t, svc)

	upline, err := svc.ResolveUpline(ctx, "c", 3)
	if err != nil {
		t.Fatalf("resolve upline: %v", err)
	}
	want := []UplineEntry{
		{ParticipantID: "b", Level: 2},
		{ParticipantID: "a", Level: 3},
	}
	if !reflect.DeepEqual(upline, want) {
		t.Errorf("upline = %v, want %v", upline, want)
	}
}

func TestResolveUplineSkipsInactiveKeepingLevels(t *testing.T) {
	store := newFakeParticipantStore()
	svc := NewHierarchyService(store)
	ctx := context.Background()
	buildChain(t, svc)

	if err := svc.DeactivateParticipant(ctx, "b"); err != nil {
		t.Fatalf("deactivate b: %v", err)
	}

	upline, err := svc.ResolveUpline(ctx, "c", 0)
	if err != nil {
		t.Fatalf("resolve upline: %v", err)
	}
	// b被停用但层级编号按距离保留，a仍为Level 3
	want := []UplineEntry{
		{ParticipantID: "a", Level: 3},
		{ParticipantID: "root", Level: 4},
	}
	if !reflect.DeepEqual(upline, want) {
		t.Errorf("upline = %v, want %v", upline, want)
	}
}

func TestResolveUplineRootHasNoAncestors(t *testing.T) {
	store := newFakeParticipantStore()
	svc := NewHierarchyService(store)
	ctx := context.Background()
	buildChain(t, svc)

	upline, err := svc.ResolveUpline(ctx, "root", 0)
	if err != nil {
		t.Fatalf("resolve upline: %v", err)
	}
	if len(upline) != 0 {
		t.Errorf("root upline = %v, want empty", upline)
	}

	if _, err := svc.ResolveUpline(ctx, "missing", 0); !errors.HasCode(err, errors.ErrHierarchy) {
		t.Errorf("missing participant: got %v, want %s", err, errors.ErrHierarchy)
	}
}

func TestResolveDescendants(t *testing.T) {
	store := newFakeParticipantStore()
	svc := NewHierarchyService(store)
	ctx := context.Background()
	buildChain(t, svc)

	descendants, err := svc.ResolveDescendants(ctx, "a", 0)
	if err != nil {
		t.Fatalf("resolve descendants: %v", err)
	}
	want := []UplineEntry{
		{ParticipantID: "b", Level: 2},
		{ParticipantID: "c", Level: 3},
	}
	if !reflect.DeepEqual(descendants, want) {
		t.Errorf("descendants = %v, want %v", descendants, want)
	}

	limited, err := svc.ResolveDescendants(ctx, "a", 2)
	if err != nil {
		t.Fatalf("resolve descendants limited: %v", err)
	}
	if !reflect.DeepEqual(limited, []UplineEntry{{ParticipantID: "b", Level: 2}}) {
		t.Errorf("limited descendants = %v", limited)
	}
}

func TestConcurrentDisjointMoves(t *testing.T) {
	store := newFakeParticipantStore()
	svc := NewHierarchyService(store)
	ctx := context.Background()

	if _, err := svc.UpsertParticipant(ctx, "root", nil); err != nil {
		t.Fatalf("create root: %v", err)
	}
	for i := 0; i < 8; i++ {
		branch := fmt.Sprintf("branch-%d", i)
		if _, err := svc.UpsertParticipant(ctx, branch, strPtr("root")); err != nil {
			t.Fatalf("create %s: %v", branch, err)
		}
		if _, err := svc.UpsertParticipant(ctx, fmt.Sprintf("leaf-%d", i), strPtr(branch)); err != nil {
			t.Fatalf("create leaf-%d: %v", i, err)
		}
	}

	// 互不相交子树的并发移动不应破坏路径不变量
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := fmt.Sprintf("branch-%d", (i+1)%8)
			if _, err := svc.UpsertParticipant(ctx, fmt.Sprintf("leaf-%d", i), strPtr(target)); err != nil {
				t.Errorf("move leaf-%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	state := store.snapshot()
	for id, node := range state {
		if node.Path[len(node.Path)-1] != id {
			t.Errorf("path of %s does not end with itself: %v", id, node.Path)
		}
		if node.Level != len(node.Path) {
			t.Errorf("level of %s = %d, path length %d", id, node.Level, len(node.Path))
		}
		if node.ParentID != nil {
			parent := state[*node.ParentID]
			wantPath := append(append(models.StringArray{}, parent.Path...), id)
			if !reflect.DeepEqual(node.Path, wantPath) {
				t.Errorf("path of %s = %v, want parent path + self %v", id, node.Path, wantPath)
			}
		}
	}
}

func TestDeactivateParticipant(t *testing.T) {
	store := newFakeParticipantStore()
	svc := NewHierarchyService(store)
	ctx := context.Background()
	buildChain(t, svc)

	if err := svc.DeactivateParticipant(ctx, "b"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if store.snapshot()["b"].Active {
		t.Error("participant still active after deactivation")
	}

	if err := svc.DeactivateParticipant(ctx, "missing"); !errors.HasCode(err, errors.ErrHierarchy) {
		t.Errorf("deactivate missing: got %v, want %s", err, errors.ErrHierarchy)
	}
}
