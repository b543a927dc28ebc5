package postgres_test

import (
	"context"
	"strings"

	"github.com/chirino/student-memory-service/internal/model"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
)

// prefixed namespaces student ids so conformance subtests can share one database.
type prefixed struct {
	registrystore.FactStore
	prefix string
}

func (p *prefixed) id(s string) string { return p.prefix + s }

func (p *prefixed) strip(f model.MemoryFact) model.MemoryFact {
	f.StudentID = strings.TrimPrefix(f.StudentID, p.prefix)
	return f
}

func (p *prefixed) GetStudentProfile(ctx context.Context, studentID string) (*model.StudentProfile, error) {
	return p.FactStore.GetStudentProfile(ctx, p.id(studentID))
}

func (p *prefixed) UpsertStudent(ctx context.Context, profile model.StudentProfile) (*model.StudentProfile, error) {
	if profile.StudentID != "" {
		profile.StudentID = p.id(profile.StudentID)
	}
	return p.FactStore.UpsertStudent(ctx, profile)
}

func (p *prefixed) ListActiveFacts(ctx context.Context, studentID string) ([]model.MemoryFact, error) {
	return p.ListFacts(ctx, studentID, false)
}

func (p *prefixed) ListFacts(ctx context.Context, studentID string, includeInactive bool) ([]model.MemoryFact, error) {
	facts, err := p.FactStore.ListFacts(ctx, p.id(studentID), includeInactive)
	for i := range facts {
		facts[i] = p.strip(facts[i])
	}
	return facts, err
}

func (p *prefixed) RecordFact(ctx context.Context, req model.RecordFactRequest) (*model.MemoryFact, error) {
	req.StudentID = p.id(strings.TrimSpace(req.StudentID))
	return p.FactStore.RecordFact(ctx, req)
}
