package account

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/nondejus/ilp-plugin-ethereum/chain"
)

// refreshAttempts bounds every on-chain polling loop in this package.
// refreshInterval paces the generic refresh protocol - channel
// appearance, deposit value equality, claim absence - at a relaxed 1s
// cadence; validationRefreshInterval paces the tighter retry a claim
// validation does while waiting for a deposit it's racing against, where
// a shorter poll keeps the incoming packet pipeline from stalling.
const (
	refreshAttempts           = 20
	refreshInterval           = time.Second
	validationRefreshInterval = 250 * time.Millisecond
)

// refreshUntil polls adapter.FetchChannel(channelID) every interval, up
// to refreshAttempts times, until predicate returns true for the fetched
// state (which may be nil, meaning the channel is absent). It returns the
// state that satisfied predicate, or an error if the context is
// cancelled or the attempt budget is exhausted.
func refreshUntil(ctx context.Context, adapter chain.Adapter, channelID [32]byte, interval time.Duration, predicate func(*chain.ChannelState) bool) (*chain.ChannelState, error) {
	var last *chain.ChannelState
	for attempt := 0; attempt < refreshAttempts; attempt++ {
		state, err := adapter.FetchChannel(ctx, channelID)
		if err != nil {
			return nil, fmt.Errorf("account: refresh channel: %w", err)
		}
		last = state
		if predicate(state) {
			return state, nil
		}

		if attempt == refreshAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return last, fmt.Errorf("account: refresh channel %x: predicate never satisfied after %d attempts", channelID, refreshAttempts)
}

// waitForAppearance blocks until the channel is visible on chain.
func waitForAppearance(ctx context.Context, adapter chain.Adapter, channelID [32]byte) (*chain.ChannelState, error) {
	return refreshUntil(ctx, adapter, channelID, refreshInterval, func(s *chain.ChannelState) bool { return s != nil })
}

// waitForValue blocks until the channel's on-chain value equals want.
func waitForValue(ctx context.Context, adapter chain.Adapter, channelID [32]byte, want *big.Int) (*chain.ChannelState, error) {
	return refreshUntil(ctx, adapter, channelID, refreshInterval, func(s *chain.ChannelState) bool {
		return s != nil && s.Value != nil && s.Value.Cmp(want) == 0
	})
}

// waitForAbsence blocks until the channel no longer exists on chain
// (used after submitting a claim transaction that closes the channel).
func waitForAbsence(ctx context.Context, adapter chain.Adapter, channelID [32]byte) error {
	_, err := refreshUntil(ctx, adapter, channelID, refreshInterval, func(s *chain.ChannelState) bool { return s == nil })
	return err
}

// waitForValueAtLeast blocks until the channel's on-chain value covers
// want, used when a claim arrives ahead of a deposit that funds it. It
// polls at validationRefreshInterval rather than refreshInterval since
// it sits in the critical path of validating an incoming claim.
func waitForValueAtLeast(ctx context.Context, adapter chain.Adapter, channelID [32]byte, want *big.Int) (*chain.ChannelState, error) {
	return refreshUntil(ctx, adapter, channelID, validationRefreshInterval, func(s *chain.ChannelState) bool {
		return s != nil && s.Value != nil && s.Value.Cmp(want) >= 0
	})
}
