package projector

import (
	"errors"
	"fmt"

	"github.com/yibigame/levelindexer/internal/domain"
)

// DataErrorCode categorizes non-retryable event defects.
type DataErrorCode string

const (
	// ErrCodeMissingTxRef indicates the transport supplied no transaction hash.
	ErrCodeMissingTxRef DataErrorCode = "MISSING_TX_REF"

	// ErrCodeMalformedEvent indicates the payload does not match the kind.
	ErrCodeMalformedEvent DataErrorCode = "MALFORMED_EVENT"
)

// DataError reports an event that was dropped because its content is unusable.
type DataError struct {
	Code    DataErrorCode
	Message string
	Kind    domain.Kind
	LevelID uint64
	Block   uint64
}

// Error implements the error interface.
func (e *DataError) Error() string {
	return fmt.Sprintf("%s: %s (kind=%s, level=%d, block=%d)", e.Code, e.Message, e.Kind, e.LevelID, e.Block)
}

// IsDataError returns true if err is, or wraps, a *DataError.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

func newMissingTxRef(ev domain.Event) *DataError {
	return &DataError{
		Code:    ErrCodeMissingTxRef,
		Message: "event has no transaction reference",
		Kind:    ev.Kind,
		LevelID: ev.LevelID(),
		Block:   ev.Meta.BlockNumber,
	}
}

func newMalformed(ev domain.Event, msg string) *DataError {
	return &DataError{
		Code:    ErrCodeMalformedEvent,
		Message: msg,
		Kind:    ev.Kind,
		LevelID: ev.LevelID(),
		Block:   ev.Meta.BlockNumber,
	}
}
