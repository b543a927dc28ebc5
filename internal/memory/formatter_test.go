package memory

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/chirino/student-memory-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var maya = model.StudentProfile{StudentID: "S1", DisplayName: "Maya", AgeGroup: "11-13", StudyLevel: "KS3"}

func TestFormatProfileAndFacts(t *testing.T) {
	mc := MemoryContext{
		Profile: maya,
		Facts: []model.MemoryFact{
			fact(model.FactTypeStruggle, "struggles with algebra", 2),
			fact(model.FactTypePreference, "likes visual\n  diagrams", 1),
		},
	}
	got := Formatter{}.Format(mc)
	assert.Equal(t, strings.Join([]string{
		"Student: Maya | Age group: 11-13 | Study level: KS3",
		"- [struggle] struggles with algebra",
		"- [preference] likes visual diagrams",
	}, "\n"), got)
}

func TestFormatIsDeterministic(t *testing.T) {
	mc := MemoryContext{Profile: maya, Facts: []model.MemoryFact{fact(model.FactTypeGoal, "pass GCSE", 0)}}
	f := Formatter{Budget: 200}
	assert.Equal(t, f.Format(mc), f.Format(mc))
}

func TestFormatEmptyFactsRendersProfileOnly(t *testing.T) {
	assert.Equal(t, "Student: Maya | Age group: 11-13 | Study level: KS3", Formatter{}.Format(MemoryContext{Profile: maya}))
	assert.Equal(t, "Student: unknown", Formatter{}.Format(MemoryContext{}))
	assert.Equal(t, "Student: Sam", ProfileSummary(model.StudentProfile{FirstName: "Sam"}))
}

func TestFormatBudgetDropsTailFacts(t *testing.T) {
	var facts []model.MemoryFact
	for i := 0; i < 50; i++ {
		facts = append(facts, fact(model.FactTypeInterest, fmt.Sprintf("%02d %s", i, strings.Repeat("x", 97)), 50-i))
	}
	mc := MemoryContext{Profile: maya, Facts: facts}

	r := Formatter{Budget: 500}.Render(mc)
	assert.LessOrEqual(t, utf8.RuneCountInString(r.Text), 500)
	lines := strings.Split(r.Text, "\n")
	require.Equal(t, ProfileSummary(maya), lines[0])
	require.Equal(t, r.FactsIncluded, len(lines)-1)
	assert.Equal(t, 50, r.FactsIncluded+r.FactsDropped)
	assert.Positive(t, r.FactsIncluded)
	// The highest ranked facts survive, in order.
	for i, line := range lines[1:] {
		assert.Equal(t, FactLine(facts[i]), line)
	}
}

func TestFormatBudgetStopsAtFirstFactThatDoesNotFit(t *testing.T) {
	mc := MemoryContext{Profile: maya, Facts: []model.MemoryFact{
		fact(model.FactTypeGoal, strings.Repeat("a", 60), 3),
		fact(model.FactTypeGoal, "b", 2),
	}}
	budget := utf8.RuneCountInString(ProfileSummary(maya)) + 20
	r := Formatter{Budget: budget}.Render(mc)
	assert.Equal(t, ProfileSummary(maya), r.Text)
	assert.Equal(t, 2, r.FactsDropped)
}

func TestFormatBudgetTruncatesOversizedProfile(t *testing.T) {
	long := model.StudentProfile{DisplayName: strings.Repeat("N", 200), AgeGroup: "11-13"}
	r := Formatter{Budget: 80}.Render(MemoryContext{Profile: long, Facts: []model.MemoryFact{fact(model.FactTypeGoal, "g", 0)}})
	assert.True(t, r.ProfileTruncated)
	assert.Equal(t, 80, utf8.RuneCountInString(r.Text))
	assert.True(t, strings.HasPrefix(r.Text, "Student: NNN"))
	assert.True(t, strings.HasSuffix(r.Text, "…"))
	assert.Zero(t, r.FactsIncluded)
}

func TestFormatBudgetCountsCharactersNotBytes(t *testing.T) {
	mc := MemoryContext{Profile: model.StudentProfile{DisplayName: "Zoë"}, Facts: []model.MemoryFact{
		fact(model.FactTypePreference, "préfère les schémas", 0),
	}}
	full := Formatter{}.Format(mc)
	n := utf8.RuneCountInString(full)
	assert.Equal(t, full, Formatter{Budget: n}.Format(mc))
	assert.NotEqual(t, full, Formatter{Budget: n - 1}.Format(mc))
}

func TestAbbreviate(t *testing.T) {
	assert.Equal(t, "short", Abbreviate("short", 60))
	got := Abbreviate(strings.Repeat("y", 100), 60)
	assert.Equal(t, 60, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}
