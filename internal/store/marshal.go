package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yibigame/levelindexer/internal/domain"
)

// marshalHints converts the hint list to JSON TEXT for storage.
// A nil list is stored as [] so reads never yield null.
func marshalHints(hints []domain.Hint) (string, error) {
	if hints == nil {
		hints = []domain.Hint{}
	}
	data, err := json.Marshal(hints)
	if err != nil {
		return "", fmt.Errorf("marshal hints: %w", err)
	}
	return string(data), nil
}

func unmarshalHints(data string) ([]domain.Hint, error) {
	hints := []domain.Hint{}
	if data == "" {
		return hints, nil
	}
	if err := json.Unmarshal([]byte(data), &hints); err != nil {
		return nil, fmt.Errorf("unmarshal hints: %w", err)
	}
	return hints, nil
}

// Timestamps are stored as Unix milliseconds in UTC.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
