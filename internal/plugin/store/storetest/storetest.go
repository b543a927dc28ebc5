// Package storetest holds behaviour tests every FactStore plugin must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/student-memory-service/internal/model"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty, migrated store. It is called once per subtest.
type Factory func(t *testing.T) registrystore.FactStore

// Run exercises the FactStore contract against the store returned by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("UpsertAndGetStudent", func(t *testing.T) { testUpsertStudent(t, newStore(t)) })
	t.Run("UnknownStudent", func(t *testing.T) { testUnknownStudent(t, newStore(t)) })
	t.Run("ListActiveFactsNewestFirst", func(t *testing.T) { testListActiveFacts(t, newStore(t)) })
	t.Run("DeactivatedFactsHidden", func(t *testing.T) { testDeactivate(t, newStore(t)) })
	t.Run("RecordFactValidation", func(t *testing.T) { testRecordValidation(t, newStore(t)) })
	t.Run("DeactivateOverflowFacts", func(t *testing.T) { testOverflow(t, newStore(t)) })
}

func seedStudent(t *testing.T, s registrystore.FactStore, id string) {
	t.Helper()
	_, err := s.UpsertStudent(context.Background(), model.StudentProfile{StudentID: id, DisplayName: "Student " + id})
	require.NoError(t, err)
}

func record(t *testing.T, s registrystore.FactStore, studentID string, ft model.FactType, text string) *model.MemoryFact {
	t.Helper()
	f, err := s.RecordFact(context.Background(), model.RecordFactRequest{
		StudentID: studentID,
		FactType:  ft,
		FactText:  text,
	})
	require.NoError(t, err)
	// Keep created_at strictly increasing even on millisecond precision stores.
	time.Sleep(5 * time.Millisecond)
	return f
}

func testUpsertStudent(t *testing.T, s registrystore.FactStore) {
	ctx := context.Background()
	created, err := s.UpsertStudent(ctx, model.StudentProfile{StudentID: "s1", DisplayName: "Maya", AgeGroup: "11-13"})
	require.NoError(t, err)
	assert.Equal(t, "Maya", created.DisplayName)

	updated, err := s.UpsertStudent(ctx, model.StudentProfile{StudentID: "s1", DisplayName: "Maya P", StudyLevel: "KS3"})
	require.NoError(t, err)
	assert.Equal(t, "Maya P", updated.DisplayName)
	assert.Equal(t, "KS3", updated.StudyLevel)
	assert.Equal(t, "", updated.AgeGroup)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	got, err := s.GetStudentProfile(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Maya P", got.DisplayName)

	_, err = s.UpsertStudent(ctx, model.StudentProfile{})
	var ve *registrystore.ValidationError
	require.ErrorAs(t, err, &ve)
}

func testUnknownStudent(t *testing.T, s registrystore.FactStore) {
	ctx := context.Background()
	_, err := s.GetStudentProfile(ctx, "nobody")
	assert.True(t, registrystore.IsNotFound(err))

	_, err = s.ListActiveFacts(ctx, "nobody")
	assert.True(t, registrystore.IsNotFound(err))

	_, err = s.RecordFact(ctx, model.RecordFactRequest{StudentID: "nobody", FactType: model.FactTypeGoal, FactText: "x"})
	assert.True(t, registrystore.IsNotFound(err))

	err = s.DeactivateFact(ctx, uuid.New())
	assert.True(t, registrystore.IsNotFound(err))
}

func testListActiveFacts(t *testing.T, s registrystore.FactStore) {
	ctx := context.Background()
	seedStudent(t, s, "s1")

	facts, err := s.ListActiveFacts(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, facts)
	assert.NotNil(t, facts)

	first := record(t, s, "s1", model.FactTypePreference, "likes visual diagrams")
	second := record(t, s, "s1", model.FactTypeStruggle, "struggles with algebra")

	facts, err = s.ListActiveFacts(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, second.ID, facts[0].ID)
	assert.Equal(t, first.ID, facts[1].ID)
	assert.Equal(t, "likes visual diagrams", facts[1].FactText)
	assert.Equal(t, model.SourceInferred, facts[1].Source)
	assert.True(t, facts[1].IsActive)
}

func testDeactivate(t *testing.T, s registrystore.FactStore) {
	ctx := context.Background()
	seedStudent(t, s, "s2")
	f := record(t, s, "s2", model.FactTypeMilestone, "finished fractions unit")

	require.NoError(t, s.DeactivateFact(ctx, f.ID))
	// Deactivating again is a no-op.
	require.NoError(t, s.DeactivateFact(ctx, f.ID))

	active, err := s.ListActiveFacts(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.ListFacts(ctx, "s2", true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)
	assert.Equal(t, "finished fractions unit", all[0].FactText)
}

func testRecordValidation(t *testing.T, s registrystore.FactStore) {
	ctx := context.Background()
	seedStudent(t, s, "s3")

	_, err := s.RecordFact(ctx, model.RecordFactRequest{StudentID: "s3", FactType: "mood", FactText: "happy"})
	var ve *registrystore.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "factType", ve.Field)

	conf := 0.8
	f, err := s.RecordFact(ctx, model.RecordFactRequest{
		StudentID:  "s3",
		FactType:   "struggle-area",
		FactText:   "  long division  ",
		Source:     model.SourceParent,
		Confidence: &conf,
	})
	require.NoError(t, err)
	assert.Equal(t, model.FactTypeStruggle, f.FactType)
	assert.Equal(t, "long division", f.FactText)

	facts, err := s.ListActiveFacts(ctx, "s3")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	require.NotNil(t, facts[0].Confidence)
	assert.InDelta(t, 0.8, *facts[0].Confidence, 1e-9)
	assert.Equal(t, model.SourceParent, facts[0].Source)
}

func testOverflow(t *testing.T, s registrystore.FactStore) {
	ctx := context.Background()
	seedStudent(t, s, "a")
	seedStudent(t, s, "b")
	var aFacts []*model.MemoryFact
	for i := 0; i < 5; i++ {
		aFacts = append(aFacts, record(t, s, "a", model.FactTypeInterest, "interest"))
	}
	record(t, s, "b", model.FactTypeGoal, "goal")

	n, err := s.DeactivateOverflowFacts(ctx, 3, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	active, err := s.ListActiveFacts(ctx, "a")
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, aFacts[4].ID, active[0].ID)
	assert.Equal(t, aFacts[2].ID, active[2].ID)

	other, err := s.ListActiveFacts(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	n, err = s.DeactivateOverflowFacts(ctx, 3, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
}
