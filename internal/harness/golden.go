package harness

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the trace and final state of a scenario as stable text.
// Times are printed in RFC 3339 UTC; levels are ordered by id and solves by
// insertion.
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)

	b.WriteString("trace:\n")
	for _, ev := range result.Trace {
		fmt.Fprintf(&b, "  %s\n", traceLine(ev))
	}

	b.WriteString("levels:\n")
	for _, lvl := range result.State.Levels {
		fmt.Fprintf(&b, "  %d name=%q size=%d creator=%s tx=%s hints=%d/%d completions=%d created=%s\n",
			lvl.LevelID, lvl.Name, lvl.Size, lvl.Creator, lvl.OriginTx,
			len(lvl.Hints), lvl.HintCount, lvl.CompletionCount, formatTime(lvl.CreatedAt))
	}

	b.WriteString("solves:\n")
	for _, s := range result.State.Solves {
		fmt.Fprintf(&b, "  %d solver=%s tx=%s at=%s\n", s.LevelID, s.Solver, s.TxRef, formatTime(s.Timestamp))
	}

	if result.State.Cursor != nil {
		fmt.Fprintf(&b, "cursor: %d\n", *result.State.Cursor)
	} else {
		b.WriteString("cursor: none\n")
	}
	return []byte(b.String())
}

func traceLine(ev TraceEvent) string {
	var line string
	switch ev.Type {
	case TracePass:
		line = fmt.Sprintf("[%d] pass %s status=%s start=%d height=%d batches=%d events=%d last=%d",
			ev.Seq, ev.PassID, ev.Status, ev.Start, ev.Height, ev.Batches, ev.Events, ev.LastSyncedBlock)
	default:
		line = fmt.Sprintf("[%d] %s %s level=%d block=%d tx=%s -> %s",
			ev.Seq, ev.Origin, ev.Kind, ev.LevelID, ev.Block, ev.Tx, ev.Outcome)
	}
	if ev.Error != "" {
		line += " error=" + ev.Error
	}
	return line
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
