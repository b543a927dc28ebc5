package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/chirino/student-memory-service/internal/model"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
	"github.com/cucumber/godog"
)

type scenario struct {
	store  *fakeStore
	budget int
	now    time.Time

	mc     *MemoryContext
	err    error
	prompt string
	ranked []model.MemoryFact
}

func (s *scenario) aStudent(id, name, age, level string) error {
	s.store.addStudent(model.StudentProfile{StudentID: id, DisplayName: name, AgeGroup: age, StudyLevel: level})
	return nil
}

func (s *scenario) addFact(studentID string, active bool, ft, text string, hoursAgo int) error {
	t, err := model.ParseFactType(ft)
	if err != nil {
		return err
	}
	s.store.addFact(model.MemoryFact{
		StudentID: studentID,
		FactType:  t,
		FactText:  text,
		Source:    model.SourceInferred,
		IsActive:  active,
		CreatedAt: s.now.Add(-time.Duration(hoursAgo) * time.Hour),
	})
	return nil
}

func (s *scenario) activeFact(studentID, ft, text string, hoursAgo int) error {
	return s.addFact(studentID, true, ft, text, hoursAgo)
}

func (s *scenario) inactiveFact(studentID, ft, text string, hoursAgo int) error {
	return s.addFact(studentID, false, ft, text, hoursAgo)
}

func (s *scenario) manyFacts(studentID string, n, length int) error {
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("%03d", i) + strings.Repeat("z", length-3)
		f := s.store.addFact(model.MemoryFact{
			StudentID: studentID,
			FactType:  model.FactTypeInterest,
			FactText:  text,
			Source:    model.SourceInferred,
			IsActive:  true,
			CreatedAt: s.now.Add(-time.Duration(i) * time.Minute),
		})
		s.ranked = append(s.ranked, f)
	}
	return nil
}

func (s *scenario) budgetIs(n int) error {
	s.budget = n
	return nil
}

func (s *scenario) storeUnavailable() error {
	s.store.listErr = &registrystore.TransientError{Op: "list facts", Err: errors.New("connection refused")}
	return nil
}

func (s *scenario) assemble(studentID string) error {
	return s.assembleAbout(studentID, "")
}

func (s *scenario) assembleAbout(studentID, topic string) error {
	svc := NewService(s.store, Options{Budget: s.budget})
	s.mc, s.err = svc.GetStudentMemoryContext(context.Background(), studentID, topic)
	if s.err == nil {
		s.prompt = svc.FormatMemoryForPrompt(s.mc, nil)
	}
	return nil
}

func (s *scenario) notDegraded() error {
	if s.err != nil {
		return s.err
	}
	if s.mc.Degraded {
		return fmt.Errorf("expected a complete context")
	}
	return nil
}

func (s *scenario) degraded() error {
	if s.err != nil {
		return fmt.Errorf("expected no error, got %w", s.err)
	}
	if !s.mc.Degraded {
		return fmt.Errorf("expected a degraded context")
	}
	return nil
}

func (s *scenario) factCount(n int) error {
	if s.err != nil {
		return s.err
	}
	if len(s.mc.Facts) != n {
		return fmt.Errorf("expected %d facts, got %d", n, len(s.mc.Facts))
	}
	return nil
}

func (s *scenario) promptIs(doc *godog.DocString) error {
	if s.err != nil {
		return s.err
	}
	if s.prompt != doc.Content {
		return fmt.Errorf("prompt mismatch:\nwant %q\ngot  %q", doc.Content, s.prompt)
	}
	return nil
}

func (s *scenario) notFound() error {
	var snf *StudentNotFoundError
	if !errors.As(s.err, &snf) {
		return fmt.Errorf("expected StudentNotFoundError, got %v", s.err)
	}
	return nil
}

func (s *scenario) promptAtMost(n int) error {
	if got := utf8.RuneCountInString(s.prompt); got > n {
		return fmt.Errorf("prompt has %d characters, budget %d", got, n)
	}
	return nil
}

func (s *scenario) startsWithProfile() error {
	want := ProfileSummary(s.mc.Profile)
	if first, _, _ := strings.Cut(s.prompt, "\n"); first != want {
		return fmt.Errorf("first line %q, want %q", first, want)
	}
	return nil
}

func (s *scenario) keepsNewestInOrder() error {
	lines := strings.Split(s.prompt, "\n")[1:]
	if len(lines) == 0 {
		return fmt.Errorf("no facts kept")
	}
	for i, line := range lines {
		if want := FactLine(s.ranked[i]); line != want {
			return fmt.Errorf("line %d is %q, want %q", i+1, line, want)
		}
	}
	return nil
}

func initializeScenario(sc *godog.ScenarioContext) {
	s := &scenario{}
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		*s = scenario{store: newFakeStore(), now: time.Now().UTC()}
		return ctx, nil
	})

	sc.Step(`^a student "([^"]*)" named "([^"]*)" aged "([^"]*)" studying "([^"]*)"$`, s.aStudent)
	sc.Step(`^student "([^"]*)" has an active "([^"]*)" fact "([^"]*)" recorded (\d+) hours? ago$`, s.activeFact)
	sc.Step(`^student "([^"]*)" has an inactive "([^"]*)" fact "([^"]*)" recorded (\d+) hours? ago$`, s.inactiveFact)
	sc.Step(`^student "([^"]*)" has (\d+) active facts of (\d+) characters$`, s.manyFacts)
	sc.Step(`^the context budget is (\d+) characters$`, s.budgetIs)
	sc.Step(`^the fact store is unavailable$`, s.storeUnavailable)
	sc.Step(`^the memory context for "([^"]*)" is assembled$`, s.assemble)
	sc.Step(`^the memory context for "([^"]*)" about "([^"]*)" is assembled$`, s.assembleAbout)
	sc.Step(`^the context is not degraded$`, s.notDegraded)
	sc.Step(`^the context is degraded$`, s.degraded)
	sc.Step(`^the context has (\d+) facts?$`, s.factCount)
	sc.Step(`^the prompt is:$`, s.promptIs)
	sc.Step(`^the student is reported as not found$`, s.notFound)
	sc.Step(`^the prompt is at most (\d+) characters$`, s.promptAtMost)
	sc.Step(`^the prompt starts with the profile line$`, s.startsWithProfile)
	sc.Step(`^the prompt keeps the newest facts in order$`, s.keepsNewestInOrder)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "memory-context",
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
