package metrics

import (
	"context"
	"time"

	"github.com/chirino/student-memory-service/internal/model"
	"github.com/chirino/student-memory-service/internal/monitoring"
	"github.com/chirino/student-memory-service/internal/registry/store"
	"github.com/google/uuid"
)

// Wrap returns a FactStore that records StoreLatency for every operation.
func Wrap(inner store.FactStore) store.FactStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.FactStore
}

func observe(op string, start time.Time) {
	if monitoring.StoreLatency == nil {
		return
	}
	monitoring.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) GetStudentProfile(ctx context.Context, studentID string) (*model.StudentProfile, error) {
	defer observe("get_student_profile", time.Now())
	return m.inner.GetStudentProfile(ctx, studentID)
}

func (m *metricsStore) UpsertStudent(ctx context.Context, profile model.StudentProfile) (*model.StudentProfile, error) {
	defer observe("upsert_student", time.Now())
	return m.inner.UpsertStudent(ctx, profile)
}

func (m *metricsStore) ListActiveFacts(ctx context.Context, studentID string) ([]model.MemoryFact, error) {
	defer observe("list_active_facts", time.Now())
	return m.inner.ListActiveFacts(ctx, studentID)
}

func (m *metricsStore) ListFacts(ctx context.Context, studentID string, includeInactive bool) ([]model.MemoryFact, error) {
	defer observe("list_facts", time.Now())
	return m.inner.ListFacts(ctx, studentID, includeInactive)
}

func (m *metricsStore) RecordFact(ctx context.Context, req model.RecordFactRequest) (*model.MemoryFact, error) {
	defer observe("record_fact", time.Now())
	return m.inner.RecordFact(ctx, req)
}

func (m *metricsStore) DeactivateFact(ctx context.Context, factID uuid.UUID) error {
	defer observe("deactivate_fact", time.Now())
	return m.inner.DeactivateFact(ctx, factID)
}

func (m *metricsStore) DeactivateOverflowFacts(ctx context.Context, maxActive, limit int) (int64, error) {
	defer observe("deactivate_overflow_facts", time.Now())
	return m.inner.DeactivateOverflowFacts(ctx, maxActive, limit)
}

func (m *metricsStore) Ping(ctx context.Context) error {
	return m.inner.Ping(ctx)
}

func (m *metricsStore) Close() error {
	return m.inner.Close()
}

var _ store.FactStore = (*metricsStore)(nil)
