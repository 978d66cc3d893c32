package account

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/nondejus/ilp-plugin-ethereum/chain"
	"github.com/nondejus/ilp-plugin-ethereum/queue"
	"github.com/nondejus/ilp-plugin-ethereum/store"
)

// ValidateClaim enqueues claim for validation against the account's
// incoming channel at normal priority.
func (a *Account) ValidateClaim(claim ClaimMessage) <-chan queue.Result[*IncomingChannel] {
	return a.incoming.Add(a.validateClaimReducer(claim), queue.PriorityNormal)
}

// ReconcileChannelDeposit polls the incoming channel after a peer's
// channelDeposit notification and, once its on-chain value has changed,
// refreshes the cached value inside the incoming queue - but only if the
// channel's sender/receiver identity is unchanged, guarding against a
// peer reusing a channelId after closing the original channel.
func (a *Account) ReconcileChannelDeposit(ctx context.Context) {
	cached := a.incoming.State()
	if cached == nil {
		return
	}

	updated, err := refreshUntil(ctx, a.chain, cached.ChannelID, refreshInterval, func(s *chain.ChannelState) bool {
		return s != nil && s.Value != nil && s.Value.Cmp(cached.Value) != 0
	})
	if err != nil || updated == nil {
		return
	}

	a.incoming.Add(func(ch *IncomingChannel) (*IncomingChannel, error) {
		if ch == nil {
			return ch, nil
		}
		if ch.Sender != updated.Sender || ch.Receiver != updated.Receiver {
			a.logger.Debug("ignoring channelDeposit: channel identity changed")
			return ch, nil
		}
		next := ch.Clone()
		next.Value = updated.Value
		return next, nil
	}, queue.PriorityNormal)
}

func addressesEqualCI(a, b string) bool {
	return strings.EqualFold(a, b)
}

func channelFromState(s *chain.ChannelState) Channel {
	return Channel{
		ChannelID:       s.ChannelID,
		ContractAddress: s.ContractAddress,
		Sender:          s.Sender,
		Receiver:        s.Receiver,
		Value:           s.Value,
		DisputePeriod:   s.DisputePeriod,
		DisputedUntil:   s.DisputedUntil,
	}
}

// validateClaimReducer implements ordered validation steps.
// Every rejection path logs at debug and returns the input state
// unchanged - no incoming claim error is ever surfaced as a reducer
// failure, since a malformed or stale claim from a peer is routine, not
// exceptional.
func (a *Account) validateClaimReducer(claim ClaimMessage) queue.Reducer[*IncomingChannel] {
	return func(ch *IncomingChannel) (*IncomingChannel, error) {
		ctx := context.Background()
		logger := a.logger.With(zap.String("channelId", hex.EncodeToString(claim.ChannelID[:])))

		// Step 1: fetch-gate. Reuse the cached snapshot unless the claim
		// advances past it or we have no cached channel at all.
		var state *chain.ChannelState
		if ch != nil && claim.Value != nil && claim.Value.Cmp(ch.Value) <= 0 {
			cached := ch.Channel
			state = &chain.ChannelState{
				ChannelID:       cached.ChannelID,
				ContractAddress: cached.ContractAddress,
				Sender:          cached.Sender,
				Receiver:        cached.Receiver,
				Value:           cached.Value,
				DisputePeriod:   cached.DisputePeriod,
				DisputedUntil:   cached.DisputedUntil,
			}
		}

		if ch == nil {
			// Step 2: new-channel branch.
			if state == nil {
				fetched, err := waitForAppearance(ctx, a.chain, claim.ChannelID)
				if err != nil {
					logger.Debug("rejecting claim: channel never appeared")
					return ch, nil
				}
				state = fetched
			}
			if !addressesEqualCI(state.Receiver.Hex(), a.chain.Address().Hex()) {
				logger.Debug("rejecting claim: receiver is not us")
				return ch, nil
			}
			if state.DisputePeriod < a.cfg.MinIncomingDisputePeriod {
				logger.Debug("rejecting claim: dispute period below minimum")
				return ch, nil
			}
		} else {
			// Step 3: existing-channel branch.
			if claim.ChannelID != ch.ChannelID {
				logger.Debug("rejecting claim: channelId mismatch")
				return ch, nil
			}
			if state == nil {
				fetched, err := a.chain.FetchChannel(ctx, claim.ChannelID)
				if err != nil {
					logger.Debug("rejecting claim: refetch failed", zap.Error(err))
					return ch, nil
				}
				if fetched == nil {
					logger.Debug("rejecting claim: channel vanished")
					return ch, nil
				}
				state = fetched
			}
		}

		// Step 4: universal checks.
		if claim.Value == nil || claim.Value.Sign() < 0 {
			logger.Debug("rejecting claim: negative value")
			return ch, nil
		}
		if claim.ContractAddress != state.ContractAddress {
			logger.Debug("rejecting claim: contract address mismatch")
			return ch, nil
		}
		sender, err := chain.RecoverSender(claim.ContractAddress, claim.ChannelID, claim.Value, claim.Signature)
		if err != nil || sender != state.Sender {
			logger.Debug("rejecting claim: signature invalid", zap.Error(err))
			return ch, nil
		}
		if state.Value == nil || state.Value.Cmp(claim.Value) < 0 {
			refreshed, err := waitForValueAtLeast(ctx, a.chain, claim.ChannelID, claim.Value)
			if err != nil {
				logger.Debug("rejecting claim: channel value never caught up")
				return ch, nil
			}
			state = refreshed
		}

		// Step 5: uniqueness, new-channel claims only.
		if ch == nil {
			key := store.IncomingChannelKey(hex.EncodeToString(claim.ChannelID[:]))
			if a.store != nil {
				bound, exists, err := a.store.Get(ctx, key)
				if err == nil && exists && string(bound) != a.name {
					logger.Debug("rejecting claim: channelId already bound to another account",
						zap.String("owner", string(bound)))
					return ch, nil
				}
				if err := a.store.Set(ctx, key, []byte(a.name)); err != nil {
					logger.Error("failed to bind channelId registry entry", zap.Error(err))
				}
			}
		}

		// Step 6: novelty.
		cachedSpent := big.NewInt(0)
		if ch != nil && ch.Spent != nil {
			cachedSpent = ch.Spent
		}
		acceptedValue := minBig(claim.Value, state.Value)
		increment := new(big.Int).Sub(acceptedValue, cachedSpent)
		if increment.Sign() < 0 {
			logger.Debug("rejecting claim: value below cached claim")
			return ch, nil
		}
		if increment.Sign() == 0 && ch != nil {
			logger.Debug("rejecting claim: no new value over cached claim")
			return ch, nil
		}

		// Step 7: commit.
		incrementGwei := weiToGweiFloor(increment)
		if a.moneyHandler != nil && incrementGwei > 0 {
			a.moneyHandler(ctx, a.name, incrementGwei)
		}
		a.addReceivable(ctx, -int64(incrementGwei))

		next := &IncomingChannel{
			Channel:   channelFromState(state),
			Spent:     acceptedValue,
			Signature: claim.Signature,
		}

		if a.metrics != nil {
			a.metrics.ClaimsValidated.WithLabelValues(a.name, "accepted").Inc()
			a.metrics.ClaimAmount.WithLabelValues(a.name).Observe(weiFloat(increment))
			a.metrics.ChannelValue.WithLabelValues(hex.EncodeToString(claim.ChannelID[:]), "incoming").Set(weiFloat(state.Value))
			a.metrics.ChannelSpent.WithLabelValues(hex.EncodeToString(claim.ChannelID[:]), "incoming").Set(weiFloat(acceptedValue))
		}

		a.ensureWatcher()
		return next, nil
	}
}
