// Package realtime keeps one push subscription per event kind and feeds every
// delivery into the same projector the backfill pass uses.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yibigame/levelindexer/internal/chain"
	"github.com/yibigame/levelindexer/internal/domain"
	"github.com/yibigame/levelindexer/internal/projector"
)

// Source is the push half of chain.Source.
type Source interface {
	Subscribe(ctx context.Context, kind domain.Kind, handler chain.Handler) error
}

// Applier applies one canonical event. *projector.Projector implements it.
type Applier interface {
	Apply(ctx context.Context, ev domain.Event) (projector.Outcome, error)
}

// DefaultRetryDelay is the pause between attempts to arm a subscription the
// source refused.
const DefaultRetryDelay = chain.DefaultResubscribeDelay

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithRetryDelay sets the pause between arm attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Subscriber) {
		s.retryDelay = d
	}
}

// Subscriber arms the realtime path.
type Subscriber struct {
	source     Source
	applier    Applier
	log        *slog.Logger
	retryDelay time.Duration
}

// New creates a subscriber.
func New(source Source, applier Applier, logger *slog.Logger, opts ...Option) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscriber{
		source:     source,
		applier:    applier,
		log:        logger.With("component", "realtime"),
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm subscribes to every event kind. Subscriptions live until ctx is
// cancelled. Arm must return before a backfill pass captures its height so
// nothing produced after that height is missed.
//
// Only configuration errors are returned. A kind the source refuses for any
// other reason is retried in the background until it is armed or ctx ends.
func (s *Subscriber) Arm(ctx context.Context) error {
	for _, kind := range domain.Kinds {
		err := s.source.Subscribe(ctx, kind, s.handle)
		switch {
		case err == nil:
			s.log.Info("subscription armed", "kind", kind)
		case isConfigError(err):
			return fmt.Errorf("arm %s subscription: %w", kind, err)
		default:
			s.log.Warn("subscription unavailable, retrying", "kind", kind, "error", err, "delay", s.retryDelay)
			go s.rearm(ctx, kind)
		}
	}
	return nil
}

func (s *Subscriber) rearm(ctx context.Context, kind domain.Kind) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryDelay):
		}

		err := s.source.Subscribe(ctx, kind, s.handle)
		switch {
		case err == nil:
			s.log.Info("subscription armed", "kind", kind)
			return
		case isConfigError(err):
			s.log.Error("giving up on subscription", "kind", kind, "error", err)
			return
		default:
			s.log.Warn("subscription unavailable, retrying", "kind", kind, "error", err)
		}
	}
}

// isConfigError reports errors that retrying cannot fix.
func isConfigError(err error) bool {
	return errors.Is(err, chain.ErrNoSubscriber) || errors.Is(err, chain.ErrUnknownKind)
}

// handle is the per-delivery callback. Failures are logged and never
// propagate back into the transport.
func (s *Subscriber) handle(ctx context.Context, ev domain.Event) {
	log := s.log.With("kind", ev.Kind, "level_id", ev.LevelID(), "tx", ev.Meta.TxRef, "block", ev.Meta.BlockNumber)
	switch {
	case ev.Created != nil:
		log.Info("event received", "creator", ev.Created.Creator, "size", ev.Created.Size, "hints", ev.Created.HintCount)
	case ev.Solved != nil:
		log.Info("event received", "solver", ev.Solved.Solver, "path_length", ev.Solved.PathLength, "is_first", ev.Solved.IsFirst)
	}

	outcome, err := s.applier.Apply(ctx, ev)
	switch {
	case projector.IsDataError(err):
		log.Warn("dropping event", "error", err)
	case err != nil:
		log.Error("failed to apply event", "error", err)
	default:
		log.Debug("event applied", "outcome", outcome)
	}
}
