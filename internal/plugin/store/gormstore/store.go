// Package gormstore implements the FactStore on top of gorm. The postgres and
// sqlite plugins share it and differ only in dialect and error classification.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/student-memory-service/internal/dataencryption"
	"github.com/chirino/student-memory-service/internal/model"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransientClassifier reports whether a driver error means the datastore is
// temporarily unavailable.
type TransientClassifier func(err error) bool

// Store implements registrystore.FactStore using GORM.
type Store struct {
	db          *gorm.DB
	ring        *dataencryption.KeyRing
	isTransient TransientClassifier
	now         func() time.Time
}

// New creates a Store. ring may be nil to store fact text in plaintext.
func New(db *gorm.DB, ring *dataencryption.KeyRing, isTransient TransientClassifier) *Store {
	if isTransient == nil {
		isTransient = func(error) bool { return false }
	}
	return &Store{
		db:          db,
		ring:        ring,
		isTransient: isTransient,
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// DB exposes the underlying connection for migrators and tests.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || s.isTransient(err) {
		return &registrystore.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Store) GetStudentProfile(ctx context.Context, studentID string) (*model.StudentProfile, error) {
	var row studentRow
	err := s.db.WithContext(ctx).Where("id = ?", studentID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "student", ID: studentID}
	}
	if err != nil {
		return nil, s.wrap("get student", err)
	}
	return row.toModel(), nil
}

func (s *Store) UpsertStudent(ctx context.Context, profile model.StudentProfile) (*model.StudentProfile, error) {
	if profile.StudentID == "" {
		return nil, &registrystore.ValidationError{Field: "studentId", Message: "is required"}
	}
	now := s.now()
	row := studentRow{
		ID:          profile.StudentID,
		DisplayName: profile.DisplayName,
		FirstName:   profile.FirstName,
		AgeGroup:    profile.AgeGroup,
		StudyLevel:  profile.StudyLevel,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "first_name", "age_group", "study_level", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, s.wrap("upsert student", err)
	}
	return s.GetStudentProfile(ctx, profile.StudentID)
}

func (s *Store) requireStudent(ctx context.Context, op, studentID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&studentRow{}).Where("id = ?", studentID).Count(&count).Error; err != nil {
		return s.wrap(op, err)
	}
	if count == 0 {
		return &registrystore.NotFoundError{Resource: "student", ID: studentID}
	}
	return nil
}

func (s *Store) ListActiveFacts(ctx context.Context, studentID string) ([]model.MemoryFact, error) {
	return s.ListFacts(ctx, studentID, false)
}

func (s *Store) ListFacts(ctx context.Context, studentID string, includeInactive bool) ([]model.MemoryFact, error) {
	if err := s.requireStudent(ctx, "list facts", studentID); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("student_id = ?", studentID)
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	var rows []factRow
	if err := q.Order("created_at DESC, id ASC").Find(&rows).Error; err != nil {
		return nil, s.wrap("list facts", err)
	}
	facts := make([]model.MemoryFact, 0, len(rows))
	for _, r := range rows {
		f, err := s.factToModel(r)
		if err != nil {
			return nil, fmt.Errorf("list facts: row %s: %w", r.ID, err)
		}
		facts = append(facts, f)
	}
	return facts, nil
}

func (s *Store) RecordFact(ctx context.Context, req model.RecordFactRequest) (*model.MemoryFact, error) {
	if err := registrystore.ValidateRecordFact(&req); err != nil {
		return nil, err
	}
	if err := s.requireStudent(ctx, "record fact", req.StudentID); err != nil {
		return nil, err
	}
	sealed, err := s.ring.Seal([]byte(req.FactText))
	if err != nil {
		return nil, fmt.Errorf("record fact: %w", err)
	}
	now := s.now()
	row := factRow{
		ID:         uuid.New().String(),
		StudentID:  req.StudentID,
		FactType:   string(req.FactType),
		FactText:   sealed,
		Source:     string(req.Source),
		Confidence: req.Confidence,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, s.wrap("record fact", err)
	}
	return &model.MemoryFact{
		ID:         uuid.MustParse(row.ID),
		StudentID:  req.StudentID,
		FactType:   req.FactType,
		FactText:   req.FactText,
		Source:     req.Source,
		Confidence: req.Confidence,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *Store) DeactivateFact(ctx context.Context, factID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&factRow{}).
		Where("id = ? AND is_active = ?", factID.String(), true).
		Updates(map[string]any{"is_active": false, "updated_at": s.now()})
	if res.Error != nil {
		return s.wrap("deactivate fact", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&factRow{}).Where("id = ?", factID.String()).Count(&count).Error; err != nil {
		return s.wrap("deactivate fact", err)
	}
	if count == 0 {
		return &registrystore.NotFoundError{Resource: "fact", ID: factID.String()}
	}
	return nil
}

// overflowSQL ranks each student's active facts newest first and deactivates
// those ranked past the cap. Both postgres and sqlite support the window function.
const overflowSQL = `
UPDATE student_memory SET is_active = ?, updated_at = ?
WHERE id IN (
	SELECT id FROM (
		SELECT id, ROW_NUMBER() OVER (PARTITION BY student_id ORDER BY created_at DESC, id ASC) AS rn
		FROM student_memory
		WHERE is_active = ?
	) ranked
	WHERE rn > ?
	LIMIT ?
)`

func (s *Store) DeactivateOverflowFacts(ctx context.Context, maxActive, limit int) (int64, error) {
	if maxActive <= 0 || limit <= 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Exec(overflowSQL, false, s.now(), true, maxActive, limit)
	if res.Error != nil {
		return 0, s.wrap("deactivate overflow facts", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return s.wrap("ping", sqlDB.PingContext(ctx))
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ registrystore.FactStore = (*Store)(nil)
