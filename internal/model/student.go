package model

import (
	"strings"
	"time"
)

// StudentProfile is the read-only projection of a student account used to
// tailor the tone of a memory context.
type StudentProfile struct {
	StudentID   string    `json:"studentId"`
	DisplayName string    `json:"displayName,omitempty"`
	FirstName   string    `json:"firstName,omitempty"`
	AgeGroup    string    `json:"ageGroup,omitempty"`
	StudyLevel  string    `json:"studyLevel,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Name returns the best available name for the student.
func (p StudentProfile) Name() string {
	if n := strings.TrimSpace(p.DisplayName); n != "" {
		return n
	}
	return strings.TrimSpace(p.FirstName)
}

// ProfileOverrides replaces individual profile attributes at format time.
// Nil fields leave the stored value untouched.
type ProfileOverrides struct {
	DisplayName *string `json:"displayName,omitempty"`
	FirstName   *string `json:"firstName,omitempty"`
	AgeGroup    *string `json:"ageGroup,omitempty"`
	StudyLevel  *string `json:"studyLevel,omitempty"`
}

// Apply returns a copy of p with the non-nil overrides applied.
func (o *ProfileOverrides) Apply(p StudentProfile) StudentProfile {
	if o == nil {
		return p
	}
	if o.DisplayName != nil {
		p.DisplayName = *o.DisplayName
	}
	if o.FirstName != nil {
		p.FirstName = *o.FirstName
	}
	if o.AgeGroup != nil {
		p.AgeGroup = *o.AgeGroup
	}
	if o.StudyLevel != nil {
		p.StudyLevel = *o.StudyLevel
	}
	return p
}
