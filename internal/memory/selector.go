package memory

import (
	"bytes"
	"sort"
	"strings"
	"unicode"

	"github.com/chirino/student-memory-service/internal/model"
)

var stopWords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true,
	"are": true, "was": true, "were": true, "what": true, "when": true,
	"where": true, "why": true, "how": true, "about": true, "this": true,
	"that": true, "from": true, "into": true, "help": true, "want": true,
	"lets": true, "let's": true, "can": true, "you": true, "today": true,
	"some": true, "more": true, "work": true, "need": true,
}

// typeKeywords maps words in a topic hint onto the fact types they ask about.
var typeKeywords = map[string]model.FactType{
	"preference":    model.FactTypePreference,
	"preferences":   model.FactTypePreference,
	"prefer":        model.FactTypePreference,
	"likes":         model.FactTypePreference,
	"style":         model.FactTypePreference,
	"struggle":      model.FactTypeStruggle,
	"struggles":     model.FactTypeStruggle,
	"difficulty":    model.FactTypeStruggle,
	"stuck":         model.FactTypeStruggle,
	"milestone":     model.FactTypeMilestone,
	"milestones":    model.FactTypeMilestone,
	"progress":      model.FactTypeMilestone,
	"achievement":   model.FactTypeMilestone,
	"accommodation": model.FactTypeAccommodation,
	"accessibility": model.FactTypeAccommodation,
	"dyslexia":      model.FactTypeAccommodation,
	"adhd":          model.FactTypeAccommodation,
	"interest":      model.FactTypeInterest,
	"interests":     model.FactTypeInterest,
	"hobby":         model.FactTypeInterest,
	"hobbies":       model.FactTypeInterest,
	"goal":          model.FactTypeGoal,
	"goals":         model.FactTypeGoal,
	"exam":          model.FactTypeGoal,
	"exams":         model.FactTypeGoal,
}

// TopicKeywords extracts the lower-cased search terms of a topic hint.
// Short words and stop words are dropped; order of first use is kept.
func TopicKeywords(hint string) []string {
	fields := strings.FieldsFunc(strings.ToLower(hint), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, w := range fields {
		w = strings.Trim(w, "'")
		if len([]rune(w)) <= 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// Selector orders active facts for inclusion in a memory context.
type Selector struct {
	// MaxFacts caps the selection after ranking. 0 means no cap.
	MaxFacts int
}

// Select returns the active facts ranked for the topic hint.
//
// Without a usable hint facts are ordered newest first. With a hint only
// facts whose type or text relate to it are returned, most relevant first;
// when nothing relates, the newest-first ordering of all facts is used instead.
// Equal timestamps are ordered by id so the result is deterministic.
func (s Selector) Select(facts []model.MemoryFact, topicHint string) []model.MemoryFact {
	active := make([]model.MemoryFact, 0, len(facts))
	for _, f := range facts {
		if f.IsActive {
			active = append(active, f)
		}
	}

	var out []model.MemoryFact
	if keywords := TopicKeywords(topicHint); len(keywords) > 0 {
		out = rankByTopic(active, keywords)
	}
	if len(out) == 0 {
		out = active
		sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	}
	if s.MaxFacts > 0 && len(out) > s.MaxFacts {
		out = out[:s.MaxFacts]
	}
	return out
}

func newer(a, b model.MemoryFact) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

type scored struct {
	fact  model.MemoryFact
	score int
}

func rankByTopic(facts []model.MemoryFact, keywords []string) []model.MemoryFact {
	var matches []scored
	for _, f := range facts {
		if sc := topicScore(f, keywords); sc > 0 {
			matches = append(matches, scored{fact: f, score: sc})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if ae, be := a.fact.Source.Explicit(), b.fact.Source.Explicit(); ae != be {
			return ae
		}
		return newer(a.fact, b.fact)
	})
	out := make([]model.MemoryFact, len(matches))
	for i, m := range matches {
		out[i] = m.fact
	}
	return out
}

// topicScore weighs a type match above a text match.
func topicScore(f model.MemoryFact, keywords []string) int {
	text := strings.ToLower(f.FactText)
	score := 0
	for _, kw := range keywords {
		if t, ok := typeKeywords[kw]; kw == string(f.FactType) || (ok && t == f.FactType) {
			score += 2
		}
		if strings.Contains(text, kw) {
			score++
		} else if stem := strings.TrimSuffix(kw, "s"); len(stem) > 3 && stem != kw && strings.Contains(text, stem) {
			score++
		}
	}
	return score
}
