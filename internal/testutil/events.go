package testutil

import (
	"fmt"

	"github.com/yibigame/levelindexer/internal/domain"
)

// TxRef returns a deterministic transaction hash for n.
func TxRef(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

// Created builds a LevelCreated event in block.
func Created(levelID uint64, block uint64, tx string, size, hintCount int) domain.Event {
	return domain.NewCreated(
		domain.Meta{TxRef: tx, BlockNumber: block},
		domain.Created{
			LevelID:   levelID,
			Creator:   "0x00000000000000000000000000000000000000c1",
			Name:      fmt.Sprintf("level-%d", levelID),
			Size:      size,
			HintCount: hintCount,
		},
	)
}

// Solved builds a LevelSolved event in block.
func Solved(levelID uint64, block uint64, tx, solver string) domain.Event {
	return domain.NewSolved(
		domain.Meta{TxRef: tx, BlockNumber: block, LogIndex: 1},
		domain.Solved{LevelID: levelID, Solver: solver},
	)
}

// Hints returns n hints placed along the diagonal of a grid.
func Hints(n int) []domain.Hint {
	hints := make([]domain.Hint, n)
	for i := range hints {
		hints[i] = domain.Hint{Coord: domain.Coord{X: i, Y: i}, Value: i + 1}
	}
	return hints
}
