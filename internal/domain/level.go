package domain

// Coord is a cell position on a level grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Hint is a numbered cell shown to the player.
type Hint struct {
	Coord Coord `json:"coord"`
	Value int   `json:"value"`
}

// LevelDetail is the full level structure read from the contract. Creation
// events only carry summary fields, so the hint list comes from here.
type LevelDetail struct {
	LevelID         uint64
	Name            string
	Size            int
	Creator         string
	CreatedAt       uint64
	CompletionCount uint64
	Hints           []Hint
}
