package account

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/nondejus/ilp-plugin-ethereum/chain"
	"github.com/nondejus/ilp-plugin-ethereum/queue"
)

// ensureWatcher starts the channel watcher goroutine if it is not
// already running. Safe to call repeatedly; a no-op once the watcher is
// active.
func (a *Account) ensureWatcher() {
	a.mu.Lock()
	if a.watcherStop != nil {
		a.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	a.watcherStop = stop
	a.mu.Unlock()

	go a.runWatcher(stop)
}

// runWatcher polls the incoming channel every ChannelWatcherInterval,
// claiming it once it enters its dispute window, and self-terminates
// once there is no incoming claim left to watch.
func (a *Account) runWatcher(stop chan struct{}) {
	interval := time.Duration(a.cfg.ChannelWatcherInterval) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cached := a.incoming.State()
			if cached == nil {
				a.mu.Lock()
				if a.watcherStop == stop {
					a.watcherStop = nil
				}
				a.mu.Unlock()
				if a.metrics != nil {
					a.metrics.WatcherActions.WithLabelValues(a.name, "terminated").Inc()
				}
				return
			}

			ctx := context.Background()
			state, err := a.chain.FetchChannel(ctx, cached.ChannelID)
			if err != nil {
				a.logger.Error("watcher fetch failed", zap.Error(err))
				continue
			}

			if state == nil || state.InDispute() {
				if a.metrics != nil {
					a.metrics.WatcherActions.WithLabelValues(a.name, "claim_queued").Inc()
				}
				a.incoming.Add(a.claimIfProfitableReducer(true, nil), queue.PriorityUrgent)
			} else if a.metrics != nil {
				a.metrics.WatcherActions.WithLabelValues(a.name, "noop").Inc()
			}
		}
	}
}

// ClaimIfProfitable enqueues a claim-the-channel reducer at urgent
// priority, preempting any pending (not yet running) validation work.
func (a *Account) ClaimIfProfitable(requireDisputed bool, authorize chain.Authorize) <-chan queue.Result[*IncomingChannel] {
	return a.incoming.Add(a.claimIfProfitableReducer(requireDisputed, authorize), queue.PriorityUrgent)
}

// claimIfProfitableReducer implements claimIfProfitable:
// refresh, bail if the channel is gone, no-op unless disputed (when
// required), submit the claim transaction only if its estimated fee is
// covered by the authorize policy (defaulting to fee < spent).
func (a *Account) claimIfProfitableReducer(requireDisputed bool, authorize chain.Authorize) queue.Reducer[*IncomingChannel] {
	return func(ch *IncomingChannel) (*IncomingChannel, error) {
		ctx := context.Background()

		if ch == nil {
			return ch, nil
		}

		state, err := a.chain.FetchChannel(ctx, ch.ChannelID)
		if err != nil {
			return ch, fmt.Errorf("account: refresh before claim: %w", err)
		}
		if state == nil {
			return nil, nil
		}
		if requireDisputed && !state.InDispute() {
			return ch, nil
		}

		if authorize == nil {
			authorize = a.defaultClaimAuthorize(ch.Spent)
		}

		if err := a.chain.Claim(ctx, ch.ChannelID, ch.Spent, ch.Signature, authorize); err != nil {
			if a.metrics != nil {
				a.metrics.SettlementEvents.WithLabelValues("claim", "error").Inc()
			}
			return ch, fmt.Errorf("account: claim channel: %w", err)
		}

		if err := waitForAbsence(ctx, a.chain, ch.ChannelID); err != nil {
			a.logger.Error("channel did not close after claim", zap.Error(err))
		}

		if a.metrics != nil {
			a.metrics.ChannelsTotal.WithLabelValues("incoming", "claimed").Inc()
			a.metrics.SettlementEvents.WithLabelValues("claim", "confirmed").Inc()
		}

		return nil, nil
	}
}

// defaultClaimAuthorize submits the claim transaction only when its
// estimated fee is smaller than the amount it recovers.
func (a *Account) defaultClaimAuthorize(spent *big.Int) chain.Authorize {
	return func(ctx context.Context, estimatedFeeWei *big.Int) error {
		if estimatedFeeWei.Cmp(spent) >= 0 {
			return fmt.Errorf("account: claim not profitable: fee %s >= spent %s", estimatedFeeWei, spent)
		}
		return nil
	}
}
