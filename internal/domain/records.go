package domain

import "time"

// LevelRecord is the replica row for one created level.
//
// A LevelRecord is created exactly once and afterwards only CompletionCount
// changes.
type LevelRecord struct {
	LevelID         uint64    `json:"levelId"`
	Name            string    `json:"name"`
	Size            int       `json:"size"`
	Creator         string    `json:"creator"`
	OriginTx        string    `json:"txHash"`
	Hints           []Hint    `json:"hints"`
	HintCount       int       `json:"hintCount"`
	CompletionCount int64     `json:"completionCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

// SolveRecord is the replica row for one accepted solution. It may reference a
// level that has not been materialized yet.
type SolveRecord struct {
	ID        int64     `json:"id"`
	LevelID   uint64    `json:"levelId"`
	Solver    string    `json:"solverAddress"`
	TxRef     string    `json:"txHash"`
	Timestamp time.Time `json:"timestamp"`
}

// LevelSort is a sortable LevelRecord column.
type LevelSort string

const (
	SortLevelID         LevelSort = "levelId"
	SortCreatedAt       LevelSort = "createdAt"
	SortCompletionCount LevelSort = "completionCount"
	SortSize            LevelSort = "size"
)

// ParseLevelSort maps a user-supplied column name onto the whitelist,
// defaulting to SortLevelID.
func ParseLevelSort(s string) LevelSort {
	switch LevelSort(s) {
	case SortCreatedAt, SortCompletionCount, SortSize:
		return LevelSort(s)
	}
	return SortLevelID
}

// LevelFilter selects LevelRecords for listing. Zero values mean "no filter".
type LevelFilter struct {
	Creator    string
	Sort       LevelSort
	Descending bool
	Limit      int
	Offset     int
}

// SolveFilter selects SolveRecords for listing. Zero values mean "no filter".
type SolveFilter struct {
	Solver  string
	LevelID *uint64
	Limit   int
	Offset  int
}
