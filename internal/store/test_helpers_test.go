package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/yibigame/levelindexer/internal/domain"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testTime = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

// createTestLevel creates a level record with minimal required fields.
func createTestLevel(id uint64, creator string) domain.LevelRecord {
	return domain.LevelRecord{
		LevelID:   id,
		Name:      "level",
		Size:      4,
		Creator:   creator,
		OriginTx:  "0xcreate",
		Hints:     []domain.Hint{{Coord: domain.Coord{X: 0, Y: 1}, Value: 1}},
		HintCount: 1,
		CreatedAt: testTime,
	}
}

func createTestSolve(levelID uint64, solver, tx string) domain.SolveRecord {
	return domain.SolveRecord{
		LevelID:   levelID,
		Solver:    solver,
		TxRef:     tx,
		Timestamp: testTime,
	}
}
