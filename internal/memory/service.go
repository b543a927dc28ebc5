package memory

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/student-memory-service/internal/model"
	"github.com/chirino/student-memory-service/internal/monitoring"
	registrycache "github.com/chirino/student-memory-service/internal/registry/cache"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
	"github.com/google/uuid"
)

// Options tune a Service. The zero value is usable.
type Options struct {
	// Cache holds profile snapshots. Nil disables profile caching.
	Cache registrycache.ProfileCache
	// Policy filters facts before ranking. Nil includes every active fact.
	Policy *PolicyEngine
	// MaxFacts caps the facts selected into a context. 0 means no cap.
	MaxFacts int
	// Budget is the formatter character budget. 0 means unlimited.
	Budget int
	// StoreTimeout bounds the store reads of one assembly. 0 means no extra bound.
	StoreTimeout time.Duration
	// ProfileCacheTTL is passed to the cache on Set. 0 uses the cache default.
	ProfileCacheTTL time.Duration
}

// Service is the single entry point used by chat and tool handlers.
type Service struct {
	store        registrystore.FactStore
	cache        registrycache.ProfileCache
	policy       *PolicyEngine
	selector     Selector
	formatter    Formatter
	storeTimeout time.Duration
	cacheTTL     time.Duration
	now          func() time.Time
}

// NewService creates a Service reading facts from store.
func NewService(store registrystore.FactStore, opts Options) *Service {
	return &Service{
		store:        store,
		cache:        opts.Cache,
		policy:       opts.Policy,
		selector:     Selector{MaxFacts: opts.MaxFacts},
		formatter:    Formatter{Budget: opts.Budget},
		storeTimeout: opts.StoreTimeout,
		cacheTTL:     opts.ProfileCacheTTL,
		now:          time.Now,
	}
}

// Formatter returns the formatter configured for this service.
func (s *Service) Formatter() Formatter { return s.formatter }

// GetStudentMemoryContext loads and ranks the student's active facts.
//
// An unknown student fails with StudentNotFoundError. Any other store failure
// yields a degraded context with no facts and whatever profile data was read;
// the failure is logged. Cancellation of ctx is returned as-is.
func (s *Service) GetStudentMemoryContext(ctx context.Context, studentID, topicHint string) (*MemoryContext, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, &registrystore.ValidationError{Field: "studentId", Message: "is required"}
	}
	if err := ctx.Err(); err != nil {
		monitoring.ObserveContextAssembly(monitoring.OutcomeCanceled, 0)
		return nil, err
	}

	readCtx := ctx
	if s.storeTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
	}

	mc := &MemoryContext{
		StudentID: studentID,
		TopicHint: topicHint,
		Profile:   model.StudentProfile{StudentID: studentID},
		Facts:     []model.MemoryFact{},
	}

	profile, err := s.profile(readCtx, studentID)
	if err != nil {
		return s.fail(ctx, mc, "get_student_profile", err)
	}
	mc.Profile = *profile

	facts, err := s.store.ListActiveFacts(readCtx, studentID)
	if err != nil {
		return s.fail(ctx, mc, "list_active_facts", err)
	}

	facts, err = s.policy.Filter(ctx, facts, mc.Profile, s.now())
	if err != nil {
		monitoring.ObserveContextAssembly(monitoring.OutcomeCanceled, 0)
		return nil, err
	}
	mc.Facts = s.selector.Select(facts, topicHint)
	monitoring.ObserveContextAssembly(monitoring.OutcomeOK, len(mc.Facts))
	return mc, nil
}

// fail classifies a store error hit while assembling mc.
func (s *Service) fail(ctx context.Context, mc *MemoryContext, op string, err error) (*MemoryContext, error) {
	if registrystore.IsNotFound(err) {
		monitoring.ObserveContextAssembly(monitoring.OutcomeNotFound, 0)
		return nil, &StudentNotFoundError{StudentID: mc.StudentID, Err: err}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		monitoring.ObserveContextAssembly(monitoring.OutcomeCanceled, 0)
		return nil, ctxErr
	}
	if registrystore.IsTransient(err) {
		log.Warn("Memory context degraded: fact store unavailable", "studentId", mc.StudentID, "op", op, "err", err)
	} else {
		log.Error("Memory context degraded: fact store failed", "studentId", mc.StudentID, "op", op, "err", err)
	}
	monitoring.ObserveContextAssembly(monitoring.OutcomeDegraded, 0)
	mc.Facts = []model.MemoryFact{}
	mc.Degraded = true
	return mc, nil
}

// FormatMemoryForPrompt renders mc, replacing profile attributes with any
// non-nil overrides first.
func (s *Service) FormatMemoryForPrompt(mc *MemoryContext, overrides *model.ProfileOverrides) string {
	var view MemoryContext
	if mc != nil {
		view = *mc
	}
	view.Profile = overrides.Apply(view.Profile)
	return s.formatter.Format(view)
}

func (s *Service) profile(ctx context.Context, studentID string) (*model.StudentProfile, error) {
	if s.cache != nil && s.cache.Available() {
		cached, err := s.cache.Get(ctx, studentID)
		if err != nil {
			log.Warn("Profile cache read failed", "studentId", studentID, "err", err)
		} else {
			monitoring.ObserveCacheLookup(cached != nil)
			if cached != nil {
				return cached, nil
			}
		}
	}
	profile, err := s.store.GetStudentProfile(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.cache.Available() {
		if err := s.cache.Set(ctx, *profile, s.cacheTTL); err != nil {
			log.Warn("Profile cache write failed", "studentId", studentID, "err", err)
		}
	}
	return profile, nil
}

// GetStudentProfile returns the student's profile, served from the cache when possible.
func (s *Service) GetStudentProfile(ctx context.Context, studentID string) (*model.StudentProfile, error) {
	return s.profile(ctx, studentID)
}

// UpsertStudent stores a profile and refreshes the cached copy.
//
// A concurrent reader that fetched the old row before this write may still
// cache it after us; that copy lives until the cache TTL expires.
func (s *Service) UpsertStudent(ctx context.Context, profile model.StudentProfile) (*model.StudentProfile, error) {
	profile.StudentID = strings.TrimSpace(profile.StudentID)
	saved, err := s.store.UpsertStudent(ctx, profile)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.cache.Available() {
		if err := s.cache.Set(ctx, *saved, s.cacheTTL); err != nil {
			log.Warn("Profile cache refresh failed, dropping cached copy", "studentId", saved.StudentID, "err", err)
			if err := s.cache.Remove(ctx, saved.StudentID); err != nil {
				log.Warn("Profile cache invalidation failed", "studentId", saved.StudentID, "err", err)
			}
		}
	}
	return saved, nil
}

// ListFacts returns the student's facts, newest first.
func (s *Service) ListFacts(ctx context.Context, studentID string, includeInactive bool) ([]model.MemoryFact, error) {
	return s.store.ListFacts(ctx, studentID, includeInactive)
}

// RecordFact appends a new fact about a student.
func (s *Service) RecordFact(ctx context.Context, req model.RecordFactRequest) (*model.MemoryFact, error) {
	return s.store.RecordFact(ctx, req)
}

// DeactivateFact hides a fact from future contexts. It is idempotent.
func (s *Service) DeactivateFact(ctx context.Context, factID uuid.UUID) error {
	return s.store.DeactivateFact(ctx, factID)
}
