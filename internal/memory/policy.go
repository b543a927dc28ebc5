package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/student-memory-service/internal/model"
	"github.com/open-policy-agent/opa/rego"
)

// PolicyFile is the file name looked up in the policy directory.
const PolicyFile = "include.rego"

const includeQuery = "data.students.memory.include"

// DefaultIncludeRego keeps every active fact.
const DefaultIncludeRego = `
package students.memory

import future.keywords.if

default include = true
`

// PolicyEngine decides which active facts may be shown to the tutor.
type PolicyEngine struct {
	mu      sync.RWMutex
	include *rego.PreparedEvalQuery
	src     string
}

// NewPolicyEngine loads include.rego from policyDir, or the built-in default
// when policyDir is empty or has no such file.
func NewPolicyEngine(ctx context.Context, policyDir string) (*PolicyEngine, error) {
	e := &PolicyEngine{}
	if err := e.Reload(ctx, policyDir); err != nil {
		return nil, err
	}
	return e, nil
}

// NewPolicyEngineFromSource compiles a policy from source text.
func NewPolicyEngineFromSource(ctx context.Context, src string) (*PolicyEngine, error) {
	e := &PolicyEngine{}
	if err := e.Replace(ctx, src); err != nil {
		return nil, err
	}
	return e, nil
}

func regoSource(policyDir string) string {
	if policyDir == "" {
		return DefaultIncludeRego
	}
	data, err := os.ReadFile(filepath.Join(policyDir, PolicyFile))
	if err != nil {
		log.Warn("Policy file not found, using built-in default", "file", PolicyFile, "err", err)
		return DefaultIncludeRego
	}
	return string(data)
}

// Reload hot-reloads the policy from policyDir. Thread-safe.
func (e *PolicyEngine) Reload(ctx context.Context, policyDir string) error {
	return e.Replace(ctx, regoSource(policyDir))
}

// Replace validates and hot-swaps the policy source.
func (e *PolicyEngine) Replace(ctx context.Context, src string) error {
	r := rego.New(
		rego.Query(includeQuery),
		rego.Module(PolicyFile, src),
	)
	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("memory: compile inclusion policy: %w", err)
	}
	e.mu.Lock()
	e.include = &pq
	e.src = src
	e.mu.Unlock()
	return nil
}

// Source returns the active policy text.
func (e *PolicyEngine) Source() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.src
}

func policyInput(f model.MemoryFact, p model.StudentProfile, now time.Time) map[string]interface{} {
	fact := map[string]interface{}{
		"id":         f.ID.String(),
		"type":       string(f.FactType),
		"text":       f.FactText,
		"source":     string(f.Source),
		"confidence": nil,
		"age_days":   now.Sub(f.CreatedAt).Hours() / 24,
	}
	if f.Confidence != nil {
		fact["confidence"] = *f.Confidence
	}
	return map[string]interface{}{
		"fact": fact,
		"profile": map[string]interface{}{
			"student_id":   p.StudentID,
			"display_name": p.DisplayName,
			"first_name":   p.FirstName,
			"age_group":    p.AgeGroup,
			"study_level":  p.StudyLevel,
		},
	}
}

// Include evaluates the policy for one fact. An undefined result excludes it.
// An engine with no compiled policy includes everything.
func (e *PolicyEngine) Include(ctx context.Context, f model.MemoryFact, p model.StudentProfile, now time.Time) (bool, error) {
	e.mu.RLock()
	q := e.include
	e.mu.RUnlock()
	if q == nil {
		return true, nil
	}

	results, err := q.Eval(ctx, rego.EvalInput(policyInput(f, p, now)))
	if err != nil {
		return false, fmt.Errorf("memory inclusion policy eval: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	include, _ := results[0].Expressions[0].Value.(bool)
	return include, nil
}

// Filter drops the facts the policy excludes. A fact whose evaluation fails is
// kept and the failure logged. If ctx ends before every fact was evaluated,
// Filter returns no facts and the context error.
func (e *PolicyEngine) Filter(ctx context.Context, facts []model.MemoryFact, p model.StudentProfile, now time.Time) ([]model.MemoryFact, error) {
	if e == nil {
		return facts, nil
	}
	out := make([]model.MemoryFact, 0, len(facts))
	for _, f := range facts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := e.Include(ctx, f, p, now)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Warn("Inclusion policy failed, keeping fact", "studentId", f.StudentID, "factId", f.ID, "err", err)
			ok = true
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}
