package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yibigame/levelindexer/internal/domain"
)

// Default addresses for events that do not name one.
const (
	DefaultCreator = "0x00000000000000000000000000000000000000c1"
	DefaultSolver  = "0x00000000000000000000000000000000000000d1"
)

// Scenario defines an end-to-end synchronization scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Sync  SyncSetup  `yaml:"sync"`
	Chain ChainSetup `yaml:"chain"`

	// Steps drive the synchronization paths in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final state.
	Assertions []Assertion `yaml:"assertions"`

	// PassIDs are handed out to backfill passes in order.
	PassIDs []string `yaml:"pass_ids,omitempty"`
}

// SyncSetup mirrors the sync configuration.
type SyncSetup struct {
	StartBlock int64  `yaml:"start_block"`
	BatchSize  uint64 `yaml:"batch_size"`
	Resume     bool   `yaml:"resume"`
}

// ChainSetup describes the ledger before the first step.
type ChainSetup struct {
	Height uint64       `yaml:"height"`
	Levels []LevelState `yaml:"levels"`
	Events []ChainEvent `yaml:"events"`
}

// LevelState is the structure the contract returns for a level.
type LevelState struct {
	LevelID uint64 `yaml:"level_id"`
	Hints   int    `yaml:"hints"`
}

// ChainEvent is a scenario-level canonical event.
type ChainEvent struct {
	Kind    string `yaml:"kind"`
	Block   uint64 `yaml:"block"`
	LogIdx  uint   `yaml:"log_index,omitempty"`
	Tx      string `yaml:"tx"`
	LevelID uint64 `yaml:"level_id"`

	// LevelCreated fields.
	Creator   string `yaml:"creator,omitempty"`
	Name      string `yaml:"name,omitempty"`
	Size      int    `yaml:"size,omitempty"`
	HintCount int    `yaml:"hint_count,omitempty"`

	// LevelSolved fields.
	Solver     string `yaml:"solver,omitempty"`
	PathLength uint64 `yaml:"path_length,omitempty"`
	IsFirst    bool   `yaml:"is_first,omitempty"`
}

// Event converts e into a canonical event. An empty tx yields an event
// without a transaction reference.
func (e ChainEvent) Event() domain.Event {
	meta := domain.Meta{TxRef: e.Tx, BlockNumber: e.Block, LogIndex: e.LogIdx}
	switch domain.Kind(e.Kind) {
	case domain.KindLevelCreated:
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("level-%d", e.LevelID)
		}
		creator := e.Creator
		if creator == "" {
			creator = DefaultCreator
		}
		return domain.NewCreated(meta, domain.Created{
			LevelID:   e.LevelID,
			Creator:   domain.NormalizeAddress(creator),
			Name:      domain.NormalizeName(name),
			Size:      e.Size,
			HintCount: e.HintCount,
		})
	default:
		solver := e.Solver
		if solver == "" {
			solver = DefaultSolver
		}
		return domain.NewSolved(meta, domain.Solved{
			LevelID:    e.LevelID,
			Solver:     domain.NormalizeAddress(solver),
			PathLength: e.PathLength,
			IsFirst:    e.IsFirst,
		})
	}
}

// Step actions.
const (
	StepBackfill         = "backfill"
	StepDeliver          = "deliver"
	StepSetHeight        = "set_height"
	StepFailBlockTime    = "fail_block_time"
	StepRestoreBlockTime = "restore_block_time"
	StepFailQueries      = "fail_queries"
	StepRestoreQueries   = "restore_queries"
)

// Step is one scenario action.
type Step struct {
	Action string `yaml:"action"`

	// From overrides the start block for backfill, or is the first failing
	// block for fail_queries.
	From *int64 `yaml:"from,omitempty"`

	// Height is the new head for set_height.
	Height uint64 `yaml:"height,omitempty"`

	// Event is delivered by deliver.
	Event *ChainEvent `yaml:"event,omitempty"`

	// Repeat delivers Event this many times; zero means once.
	Repeat int `yaml:"repeat,omitempty"`
}

// Assertion type constants.
const (
	AssertLevel        = "level"
	AssertLevelAbsent  = "level_absent"
	AssertSolveCount   = "solve_count"
	AssertLevelCount   = "level_count"
	AssertCursor       = "cursor"
	AssertOutcomeCount = "outcome_count"
)

// Assertion validates the trace or the final state.
type Assertion struct {
	Type    string `yaml:"type"`
	LevelID uint64 `yaml:"level_id,omitempty"`

	// Expect holds level fields for level assertions (subset match).
	// Keys: name, size, creator, tx, hint_count, hints, completion_count.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is used by solve_count, level_count and outcome_count.
	Count int `yaml:"count"`

	// Block is the expected cursor; nil asserts no cursor was written.
	Block *uint64 `yaml:"block,omitempty"`

	// Outcome is used by outcome_count.
	Outcome string `yaml:"outcome,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarioFiles returns the .yaml and .yml files in dir, optionally
// filtered by a glob matched against the file name without extension.
func FindScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, e := range s.Chain.Events {
		if err := validateEvent(e); err != nil {
			return fmt.Errorf("chain.events[%d]: %w", i, err)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateEvent(e ChainEvent) error {
	if !domain.Kind(e.Kind).Valid() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

func validateStep(s Step) error {
	switch s.Action {
	case StepBackfill, StepSetHeight, StepFailBlockTime, StepRestoreBlockTime, StepRestoreQueries:
	case StepDeliver:
		if s.Event == nil {
			return fmt.Errorf("event is required for deliver")
		}
		if s.Repeat < 0 {
			return fmt.Errorf("repeat must be non-negative")
		}
		return validateEvent(*s.Event)
	case StepFailQueries:
		if s.From == nil || *s.From < 0 {
			return fmt.Errorf("non-negative from is required for fail_queries")
		}
	default:
		return fmt.Errorf("unknown step action %q", s.Action)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertLevel:
		if len(a.Expect) == 0 {
			return fmt.Errorf("expect is required for level")
		}
		for key := range a.Expect {
			if _, ok := levelFields[key]; !ok {
				return fmt.Errorf("unknown level field %q", key)
			}
		}
	case AssertLevelAbsent, AssertSolveCount, AssertLevelCount, AssertCursor:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
	case AssertOutcomeCount:
		if a.Outcome == "" {
			return fmt.Errorf("outcome is required for outcome_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
