package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/yibigame/levelindexer/internal/domain"
)

// Subscribe arms a push subscription for kind. Only configuration errors are
// returned. A failed attempt, first or later, leaves the subscription
// disconnected and it is re-armed every resubscribeDelay until ctx ends.
func (c *Client) Subscribe(ctx context.Context, kind domain.Kind, handler Handler) error {
	if c.sub == nil {
		return ErrNoSubscriber
	}
	q, err := c.filter(kind)
	if err != nil {
		return err
	}

	logs := make(chan types.Log, 64)
	c.wanted.Add(1)
	sub, err := c.sub.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		c.log.Warn("subscribe failed, retrying", "kind", kind, "error", err, "delay", c.resubscribeDelay)
		sub = nil
	} else {
		c.live.Add(1)
	}

	go c.deliver(ctx, kind, q, logs, sub, handler)
	return nil
}

func (c *Client) deliver(
	ctx context.Context,
	kind domain.Kind,
	q ethereum.FilterQuery,
	logs chan types.Log,
	sub ethereum.Subscription,
	handler Handler,
) {
	log := c.log.With("kind", kind)
	defer func() {
		if sub != nil {
			sub.Unsubscribe()
			c.live.Add(-1)
		}
	}()

	for {
		if sub == nil {
			sub = c.resubscribe(ctx, kind, q, logs)
			if sub == nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return

		case err := <-sub.Err():
			log.Error("subscription dropped", "error", err)
			sub.Unsubscribe()
			sub = nil
			c.live.Add(-1)

		case lg := <-logs:
			if lg.Removed {
				log.Debug("ignoring removed log", "tx", lg.TxHash.Hex(), "block", lg.BlockNumber)
				continue
			}
			ev, err := c.decoder.Decode(lg)
			if err != nil {
				log.Warn("dropping undecodable log", "tx", lg.TxHash.Hex(), "block", lg.BlockNumber, "error", err)
				continue
			}
			handler(ctx, ev.WithOrigin(domain.OriginRealtime))
		}
	}
}

// resubscribe retries until a subscription is established or ctx ends, in
// which case it returns nil.
func (c *Client) resubscribe(ctx context.Context, kind domain.Kind, q ethereum.FilterQuery, logs chan types.Log) ethereum.Subscription {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.resubscribeDelay):
		}

		sub, err := c.sub.SubscribeFilterLogs(ctx, q, logs)
		if err != nil {
			c.log.Warn("resubscribe failed", "kind", kind, "error", err)
			continue
		}
		c.live.Add(1)
		c.log.Info("subscription re-armed", "kind", kind)
		return sub
	}
}
