package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// FactType categorizes a memory fact.
type FactType string

const (
	FactTypePreference    FactType = "preference"
	FactTypeStruggle      FactType = "struggle"
	FactTypeMilestone     FactType = "milestone"
	FactTypeAccommodation FactType = "accommodation"
	FactTypeInterest      FactType = "interest"
	FactTypeGoal          FactType = "goal"
)

// FactTypes lists every valid fact type in a stable order.
var FactTypes = []FactType{
	FactTypePreference,
	FactTypeStruggle,
	FactTypeMilestone,
	FactTypeAccommodation,
	FactTypeInterest,
	FactTypeGoal,
}

var factTypeAliases = map[string]FactType{
	"struggle-area":  FactTypeStruggle,
	"struggle_area":  FactTypeStruggle,
	"struggles":      FactTypeStruggle,
	"weakness":       FactTypeStruggle,
	"preferences":    FactTypePreference,
	"learning-style": FactTypePreference,
	"achievement":    FactTypeMilestone,
	"accommodations": FactTypeAccommodation,
	"interests":      FactTypeInterest,
	"goals":          FactTypeGoal,
}

// ParseFactType normalizes raw into a known FactType. Legacy spellings such as
// "struggle-area" map onto their canonical type.
func ParseFactType(raw string) (FactType, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, t := range FactTypes {
		if string(t) == v {
			return t, nil
		}
	}
	if t, ok := factTypeAliases[v]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown fact type %q", raw)
}

// FactSource records who asserted a fact.
type FactSource string

const (
	// SourceStudent facts were stated by the student.
	SourceStudent FactSource = "student"
	// SourceParent facts were stated by a parent or guardian.
	SourceParent FactSource = "parent"
	// SourceInferred facts were derived by the tutor from conversations.
	SourceInferred FactSource = "inferred"
)

// ParseFactSource normalizes raw into a FactSource. An empty value means inferred.
func ParseFactSource(raw string) (FactSource, error) {
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case "":
		return SourceInferred, nil
	case string(SourceStudent), string(SourceParent), string(SourceInferred):
		return FactSource(v), nil
	default:
		return "", fmt.Errorf("unknown fact source %q", raw)
	}
}

// Explicit reports whether the fact was stated by a person rather than inferred.
func (s FactSource) Explicit() bool {
	return s == SourceStudent || s == SourceParent
}

// MaxFactTextLength is the largest fact text accepted, in characters.
const MaxFactTextLength = 2000

// MemoryFact is one discrete statement remembered about a student.
// Facts are never hard-deleted; IsActive=false hides them from retrieval.
type MemoryFact struct {
	ID         uuid.UUID  `json:"id"`
	StudentID  string     `json:"studentId"`
	FactType   FactType   `json:"factType"`
	FactText   string     `json:"factText"`
	Source     FactSource `json:"source"`
	Confidence *float64   `json:"confidence,omitempty"`
	IsActive   bool       `json:"isActive"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// RecordFactRequest is the validated input for recording a new fact.
type RecordFactRequest struct {
	StudentID  string
	FactType   FactType
	FactText   string
	Source     FactSource
	Confidence *float64
}

// FieldError describes one invalid RecordFactRequest field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Normalize trims the request and fills defaults, returning the first invalid field.
func (r *RecordFactRequest) Normalize() error {
	r.StudentID = strings.TrimSpace(r.StudentID)
	if r.StudentID == "" {
		return &FieldError{Field: "studentId", Message: "is required"}
	}
	t, err := ParseFactType(string(r.FactType))
	if err != nil {
		return &FieldError{Field: "factType", Message: err.Error()}
	}
	r.FactType = t
	r.FactText = strings.TrimSpace(r.FactText)
	if r.FactText == "" {
		return &FieldError{Field: "factText", Message: "is required"}
	}
	if utf8.RuneCountInString(r.FactText) > MaxFactTextLength {
		return &FieldError{Field: "factText", Message: fmt.Sprintf("must be at most %d characters", MaxFactTextLength)}
	}
	src, err := ParseFactSource(string(r.Source))
	if err != nil {
		return &FieldError{Field: "source", Message: err.Error()}
	}
	r.Source = src
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		return &FieldError{Field: "confidence", Message: "must be between 0 and 1"}
	}
	return nil
}
