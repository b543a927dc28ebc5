package memory

import (
	"strings"
	"unicode/utf8"

	"github.com/chirino/student-memory-service/internal/model"
)

const ellipsis = "…"

// Formatter renders a MemoryContext into the text block injected into the
// tutor's system prompt.
type Formatter struct {
	// Budget is the maximum rendered length in characters. 0 means unlimited.
	Budget int
}

// Rendering is a formatted context plus what the budget cost.
type Rendering struct {
	Text          string
	FactsIncluded int
	FactsDropped  int
	// ProfileTruncated is set when the profile line alone exceeded the budget.
	ProfileTruncated bool
}

// Format renders mc. The output is a pure function of mc and the budget.
func (f Formatter) Format(mc MemoryContext) string {
	return f.Render(mc).Text
}

// Render lays out one profile summary line followed by one line per fact in
// ranked order. Facts that do not fit the budget are dropped from the tail;
// the profile line is always kept, shortened if it alone is over budget.
func (f Formatter) Render(mc MemoryContext) Rendering {
	profile := ProfileSummary(mc.Profile)
	r := Rendering{}
	if f.Budget > 0 && utf8.RuneCountInString(profile) > f.Budget {
		profile = truncate(profile, f.Budget)
		r.ProfileTruncated = true
	}

	var b strings.Builder
	b.WriteString(profile)
	used := utf8.RuneCountInString(profile)
	for i, fact := range mc.Facts {
		line := FactLine(fact)
		cost := 1 + utf8.RuneCountInString(line)
		if f.Budget > 0 && used+cost > f.Budget {
			r.FactsDropped = len(mc.Facts) - i
			break
		}
		b.WriteByte('\n')
		b.WriteString(line)
		used += cost
		r.FactsIncluded++
	}
	r.Text = b.String()
	return r
}

// ProfileSummary renders the single profile line of a context.
func ProfileSummary(p model.StudentProfile) string {
	var parts []string
	if name := collapse(p.Name()); name != "" {
		parts = append(parts, "Student: "+name)
	}
	if v := collapse(p.AgeGroup); v != "" {
		parts = append(parts, "Age group: "+v)
	}
	if v := collapse(p.StudyLevel); v != "" {
		parts = append(parts, "Study level: "+v)
	}
	if len(parts) == 0 {
		return "Student: unknown"
	}
	return strings.Join(parts, " | ")
}

// FactLine renders one fact tagged with its type.
func FactLine(f model.MemoryFact) string {
	return "- [" + string(f.FactType) + "] " + collapse(f.FactText)
}

// collapse folds runs of whitespace, including newlines, into single spaces
// so every fact stays on its own line.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + ellipsis
}

// Abbreviate shortens s to at most limit characters for display. It is not a
// substitute for the budget applied by Render.
func Abbreviate(s string, limit int) string {
	return truncate(collapse(s), limit)
}
