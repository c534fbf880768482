package harness

import (
	"fmt"
	"strings"

	"github.com/yibigame/levelindexer/internal/domain"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  %s\n", traceLine(event))
	}
	return buf.String()
}

// levelFields maps the keys accepted in a level assertion to accessors.
var levelFields = map[string]func(domain.LevelRecord) any{
	"name":             func(r domain.LevelRecord) any { return r.Name },
	"size":             func(r domain.LevelRecord) any { return r.Size },
	"creator":          func(r domain.LevelRecord) any { return r.Creator },
	"tx":               func(r domain.LevelRecord) any { return r.OriginTx },
	"hint_count":       func(r domain.LevelRecord) any { return r.HintCount },
	"hints":            func(r domain.LevelRecord) any { return len(r.Hints) },
	"completion_count": func(r domain.LevelRecord) any { return r.CompletionCount },
	"created_at":       func(r domain.LevelRecord) any { return formatTime(r.CreatedAt) },
}

// EvaluateAssertions checks every assertion against result and returns one
// message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertLevel:
		return assertLevel(result, a)
	case AssertLevelAbsent:
		return assertLevelAbsent(result, a)
	case AssertSolveCount:
		return assertSolveCount(result, a)
	case AssertLevelCount:
		return assertCount(result, a.Type, a.Count, len(result.State.Levels))
	case AssertCursor:
		return assertCursor(result, a)
	case AssertOutcomeCount:
		return assertCount(result, a.Type+" "+a.Outcome, a.Count, result.OutcomeCount(a.Outcome))
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func findLevel(state State, id uint64) (domain.LevelRecord, bool) {
	for _, lvl := range state.Levels {
		if lvl.LevelID == id {
			return lvl, true
		}
	}
	return domain.LevelRecord{}, false
}

// assertLevel checks the listed fields of one level (subset match).
// Values are compared by their printed form so YAML ints match any width.
func assertLevel(result *Result, a Assertion) error {
	lvl, ok := findLevel(result.State, a.LevelID)
	if !ok {
		return &AssertionError{
			Type:     AssertLevel,
			Expected: fmt.Sprintf("level %d", a.LevelID),
			Actual:   "not found",
			Trace:    result.Trace,
		}
	}
	for key, want := range a.Expect {
		get, ok := levelFields[key]
		if !ok {
			return fmt.Errorf("unknown level field %q", key)
		}
		got := get(lvl)
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return &AssertionError{
				Type:     AssertLevel,
				Expected: fmt.Sprintf("level %d %s=%v", a.LevelID, key, want),
				Actual:   fmt.Sprintf("%s=%v", key, got),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

func assertLevelAbsent(result *Result, a Assertion) error {
	if _, ok := findLevel(result.State, a.LevelID); ok {
		return &AssertionError{
			Type:     AssertLevelAbsent,
			Expected: fmt.Sprintf("no level %d", a.LevelID),
			Actual:   "level exists",
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertSolveCount(result *Result, a Assertion) error {
	n := 0
	for _, s := range result.State.Solves {
		if a.LevelID == 0 || s.LevelID == a.LevelID {
			n++
		}
	}
	label := AssertSolveCount
	if a.LevelID != 0 {
		label = fmt.Sprintf("%s level %d", AssertSolveCount, a.LevelID)
	}
	return assertCount(result, label, a.Count, n)
}

func assertCursor(result *Result, a Assertion) error {
	got := "none"
	if result.State.Cursor != nil {
		got = fmt.Sprint(*result.State.Cursor)
	}
	want := "none"
	if a.Block != nil {
		want = fmt.Sprint(*a.Block)
	}
	if got != want {
		return &AssertionError{
			Type:     AssertCursor,
			Expected: want,
			Actual:   got,
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertCount(result *Result, label string, want, got int) error {
	if want != got {
		return &AssertionError{
			Type:     label,
			Expected: fmt.Sprintf("count %d", want),
			Actual:   fmt.Sprintf("count %d", got),
			Trace:    result.Trace,
		}
	}
	return nil
}
