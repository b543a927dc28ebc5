// Package memory assembles what the tutor remembers about a student into a
// bounded prompt fragment.
package memory

import (
	"fmt"

	"github.com/chirino/student-memory-service/internal/model"
)

// MemoryContext is built fresh for one chat turn and discarded once the
// prompt has been sent. It is never cached or shared between requests.
type MemoryContext struct {
	StudentID string               `json:"studentId"`
	TopicHint string               `json:"topic,omitempty"`
	Profile   model.StudentProfile `json:"profile"`
	// Facts are ordered most relevant first.
	Facts []model.MemoryFact `json:"facts"`
	// Degraded is set when the fact store could not be read and the context
	// carries no facts as a result.
	Degraded bool `json:"degraded"`
}

// StudentNotFoundError reports that the referenced student does not exist.
// It is surfaced to callers rather than masked by an empty context.
type StudentNotFoundError struct {
	StudentID string
	Err       error
}

func (e *StudentNotFoundError) Error() string {
	return fmt.Sprintf("student not found: %s", e.StudentID)
}

func (e *StudentNotFoundError) Unwrap() error {
	return e.Err
}
