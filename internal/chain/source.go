package chain

import (
	"context"
	"time"

	"github.com/yibigame/levelindexer/internal/domain"
)

// Handler receives one canonical event per delivery.
type Handler func(ctx context.Context, ev domain.Event)

// Source is the single interface over the ledger's two transports: bounded
// range queries and push subscriptions.
type Source interface {
	// QueryRange returns the events of kind emitted in [from, to] in emission
	// order. A transport failure or an undecodable log fails the whole call.
	QueryRange(ctx context.Context, kind domain.Kind, from, to uint64) ([]domain.Event, error)

	// CurrentHeight returns the latest block number.
	CurrentHeight(ctx context.Context) (uint64, error)

	// Subscribe registers handler for every future event of kind. Delivery is
	// at-least-once and unordered relative to other kinds. The subscription
	// lives until ctx is cancelled.
	Subscribe(ctx context.Context, kind domain.Kind, handler Handler) error

	// BlockTime returns the timestamp of the block that contains the event.
	BlockTime(ctx context.Context, meta domain.Meta) (time.Time, error)

	// ReadLevel reads the full level structure from the contract.
	ReadLevel(ctx context.Context, levelID uint64) (domain.LevelDetail, error)

	// Connected reports whether every requested subscription is live.
	Connected() bool
}
