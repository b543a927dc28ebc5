package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/chirino/student-memory-service/internal/model"
	"github.com/google/uuid"
)

// FactStore reads and writes student memory facts and the student profiles
// they belong to. Facts are append-only: the only mutation of an existing
// fact is deactivation.
type FactStore interface {
	// GetStudentProfile returns the profile of an existing student or a NotFoundError.
	GetStudentProfile(ctx context.Context, studentID string) (*model.StudentProfile, error)
	// UpsertStudent creates or updates a student profile.
	UpsertStudent(ctx context.Context, profile model.StudentProfile) (*model.StudentProfile, error)

	// ListActiveFacts returns the active facts of a student, newest first.
	// Unknown students yield a NotFoundError; a student without facts yields an empty slice.
	ListActiveFacts(ctx context.Context, studentID string) ([]model.MemoryFact, error)
	// ListFacts is ListActiveFacts with optional inclusion of deactivated facts.
	ListFacts(ctx context.Context, studentID string, includeInactive bool) ([]model.MemoryFact, error)
	// RecordFact appends a new fact for an existing student.
	RecordFact(ctx context.Context, req model.RecordFactRequest) (*model.MemoryFact, error)
	// DeactivateFact marks a fact inactive. Deactivating an inactive fact is a no-op.
	DeactivateFact(ctx context.Context, factID uuid.UUID) error
	// DeactivateOverflowFacts deactivates up to limit of the oldest active facts of
	// every student holding more than maxActive, returning how many were deactivated.
	DeactivateOverflowFacts(ctx context.Context, maxActive, limit int) (int64, error)

	// Ping checks that the datastore is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Loader creates a FactStore from config.
type Loader func(ctx context.Context) (FactStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}

// ValidateRecordFact normalizes req, converting field failures into a ValidationError.
func ValidateRecordFact(req *model.RecordFactRequest) error {
	if err := req.Normalize(); err != nil {
		var fe *model.FieldError
		if errors.As(err, &fe) {
			return &ValidationError{Field: fe.Field, Message: fe.Message}
		}
		return err
	}
	return nil
}
