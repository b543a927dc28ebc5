package gormstore

import (
	"time"

	"github.com/chirino/student-memory-service/internal/model"
	"github.com/google/uuid"
)

type studentRow struct {
	ID          string `gorm:"primaryKey;size:128"`
	DisplayName string `gorm:"not null"`
	FirstName   string `gorm:"not null"`
	AgeGroup    string `gorm:"not null"`
	StudyLevel  string `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (studentRow) TableName() string { return "students" }

func (r studentRow) toModel() *model.StudentProfile {
	return &model.StudentProfile{
		StudentID:   r.ID,
		DisplayName: r.DisplayName,
		FirstName:   r.FirstName,
		AgeGroup:    r.AgeGroup,
		StudyLevel:  r.StudyLevel,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

// factRow keeps the fact text as bytes so it can be sealed at rest.
type factRow struct {
	ID         string `gorm:"primaryKey;size:36"`
	StudentID  string `gorm:"not null;size:128;index:student_memory_student_idx,priority:1"`
	FactType   string `gorm:"not null;size:32"`
	FactText   []byte `gorm:"not null"`
	Source     string `gorm:"not null;size:16"`
	Confidence *float64
	IsActive   bool `gorm:"not null;index:student_memory_student_idx,priority:2"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (factRow) TableName() string { return "student_memory" }

func (s *Store) factToModel(r factRow) (model.MemoryFact, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return model.MemoryFact{}, err
	}
	text, err := s.ring.OpenStored(r.FactText)
	if err != nil {
		return model.MemoryFact{}, err
	}
	return model.MemoryFact{
		ID:         id,
		StudentID:  r.StudentID,
		FactType:   model.FactType(r.FactType),
		FactText:   string(text),
		Source:     model.FactSource(r.Source),
		Confidence: r.Confidence,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}, nil
}

// Models lists the gorm models for AutoMigrate.
func Models() []any {
	return []any{&studentRow{}, &factRow{}}
}
