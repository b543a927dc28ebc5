package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chirino/student-memory-service/internal/model"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
	"github.com/google/uuid"
)

// fakeStore is an in-memory FactStore with failure injection.
type fakeStore struct {
	mu       sync.Mutex
	students map[string]model.StudentProfile
	facts    []model.MemoryFact

	profileErr error
	listErr    error
	profileHit int
}

func newFakeStore() *fakeStore {
	return &fakeStore{students: map[string]model.StudentProfile{}}
}

func (f *fakeStore) addStudent(p model.StudentProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.students[p.StudentID] = p
}

func (f *fakeStore) addFact(fact model.MemoryFact) model.MemoryFact {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fact.ID == uuid.Nil {
		fact.ID = uuid.New()
	}
	f.facts = append(f.facts, fact)
	return fact
}

func (f *fakeStore) GetStudentProfile(ctx context.Context, studentID string) (*model.StudentProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileHit++
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := f.students[studentID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "student", ID: studentID}
	}
	return &p, nil
}

func (f *fakeStore) UpsertStudent(_ context.Context, p model.StudentProfile) (*model.StudentProfile, error) {
	f.addStudent(p)
	return &p, nil
}

func (f *fakeStore) ListActiveFacts(ctx context.Context, studentID string) ([]model.MemoryFact, error) {
	return f.ListFacts(ctx, studentID, false)
}

func (f *fakeStore) ListFacts(ctx context.Context, studentID string, includeInactive bool) ([]model.MemoryFact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := f.students[studentID]; !ok {
		return nil, &registrystore.NotFoundError{Resource: "student", ID: studentID}
	}
	out := []model.MemoryFact{}
	for _, fact := range f.facts {
		if fact.StudentID == studentID && (includeInactive || fact.IsActive) {
			out = append(out, fact)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) RecordFact(_ context.Context, req model.RecordFactRequest) (*model.MemoryFact, error) {
	if err := registrystore.ValidateRecordFact(&req); err != nil {
		return nil, err
	}
	fact := f.addFact(model.MemoryFact{
		StudentID: req.StudentID,
		FactType:  req.FactType,
		FactText:  req.FactText,
		Source:    req.Source,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	})
	return &fact, nil
}

func (f *fakeStore) DeactivateFact(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.facts {
		if f.facts[i].ID == id {
			f.facts[i].IsActive = false
			return nil
		}
	}
	return &registrystore.NotFoundError{Resource: "fact", ID: id.String()}
}

func (f *fakeStore) DeactivateOverflowFacts(context.Context, int, int) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

var _ registrystore.FactStore = (*fakeStore)(nil)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func fact(ft model.FactType, text string, minutes int) model.MemoryFact {
	return model.MemoryFact{
		ID:        uuid.New(),
		StudentID: "S1",
		FactType:  ft,
		FactText:  text,
		Source:    model.SourceInferred,
		IsActive:  true,
		CreatedAt: t0.Add(time.Duration(minutes) * time.Minute),
	}
}
