package account

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/nondejus/ilp-plugin-ethereum/chain"
	"github.com/nondejus/ilp-plugin-ethereum/queue"
)

// generateChannelID returns a fresh random 32-byte channel identifier.
func generateChannelID() ([32]byte, error) {
	var id [32]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("account: generate channelId: %w", err)
	}
	return id, nil
}

// FundOutgoingChannel opens our outgoing channel to the peer if none
// exists, or tops it up by value otherwise.
func (a *Account) FundOutgoingChannel(ctx context.Context, value *big.Int, authorize chain.Authorize) error {
	current := a.outgoing.State()
	if current == nil {
		return a.OpenChannel(ctx, value, authorize)
	}
	return a.DepositToChannel(ctx, current, value, authorize)
}

// AutoFund opens or tops up our outgoing channel when capacity is running
// low, gated on the peer having funded an incoming channel of at least
// MinIncomingChannelAmount. Errors are logged, not returned,
// since callers invoke this fire-and-forget from createClaim.
func (a *Account) AutoFund(ctx context.Context, authorize chain.Authorize) {
	incoming := a.incoming.State()
	if incoming == nil || incoming.Value == nil || incoming.Value.Cmp(a.cfg.MinIncomingChannelAmount) < 0 {
		return
	}

	out := a.outgoing.State()
	if out == nil {
		if err := a.OpenChannel(ctx, a.cfg.OutgoingChannelAmount, authorize); err != nil {
			a.logger.Error("autoFund open failed", zap.Error(err))
		}
		return
	}

	half := new(big.Int).Div(a.cfg.OutgoingChannelAmount, big.NewInt(2))
	if remainingCapacity(out.Value, out.Spent).Cmp(half) < 0 {
		if err := a.FundOutgoingChannel(ctx, a.cfg.OutgoingChannelAmount, authorize); err != nil {
			a.logger.Error("autoFund top-up failed", zap.Error(err))
		}
	}
}

// OpenChannel resolves the peer's address, opens a new outgoing channel
// for value, waits for it to be visible on chain, and transmits a
// zero-value proof-of-channel claim.
func (a *Account) OpenChannel(ctx context.Context, value *big.Int, authorize chain.Authorize) error {
	peerAddr, ok := a.PeerAddress()
	if !ok {
		if a.notifier == nil {
			return fmt.Errorf("account: no peer address and no notifier to resolve one")
		}
		resolved, err := a.notifier.ResolvePeerAddress(ctx, a.name)
		if err != nil {
			return fmt.Errorf("account: resolve peer address: %w", err)
		}
		if err := a.SetPeerAddress(resolved); err != nil {
			return err
		}
		peerAddr = resolved
	}

	channelID, err := generateChannelID()
	if err != nil {
		return err
	}

	if err := a.chain.Open(ctx, channelID, peerAddr, a.cfg.OutgoingDisputePeriod, value, authorize); err != nil {
		if a.metrics != nil {
			a.metrics.SettlementEvents.WithLabelValues("open", "error").Inc()
		}
		return fmt.Errorf("account: open channel: %w", err)
	}

	state, err := waitForAppearance(ctx, a.chain, channelID)
	if err != nil {
		return fmt.Errorf("account: open channel never appeared: %w", err)
	}

	opened := &OutgoingChannel{
		Channel: Channel{
			ChannelID:       channelID,
			ContractAddress: state.ContractAddress,
			Sender:          state.Sender,
			Receiver:        state.Receiver,
			Value:           state.Value,
			DisputePeriod:   state.DisputePeriod,
			DisputedUntil:   state.DisputedUntil,
		},
		Spent: big.NewInt(0),
	}

	result := <-a.outgoing.Add(func(*OutgoingChannel) (*OutgoingChannel, error) {
		return opened, nil
	}, queue.PriorityNormal)
	if result.Err != nil {
		return result.Err
	}

	if a.metrics != nil {
		a.metrics.ChannelsTotal.WithLabelValues("outgoing", "opened").Inc()
		a.metrics.ChannelValue.WithLabelValues(fmt.Sprintf("%x", channelID), "outgoing").Set(weiFloat(value))
	}

	sig, err := a.chain.Sign(ctx, opened.ContractAddress, channelID, big.NewInt(0))
	if err != nil {
		a.logger.Debug("proof-of-channel signing failed", zap.Error(err))
		return nil
	}
	a.fireAndForgetClaim(ClaimMessage{
		ChannelID:       channelID,
		ContractAddress: opened.ContractAddress,
		Value:           big.NewInt(0),
		Signature:       sig,
	})

	return nil
}

// DepositToChannel tops up an existing outgoing channel by value. While
// the deposit is in flight, a transient side-queue serializes any claims
// produced concurrently; its result is merged back into the main queue
// regardless of whether the on-chain deposit itself succeeded, so no
// concurrently-produced claim is ever lost.
func (a *Account) DepositToChannel(ctx context.Context, channel *OutgoingChannel, value *big.Int, authorize chain.Authorize) error {
	seed := channel.Clone()
	side := queue.New[*OutgoingChannel](seed)

	a.mu.Lock()
	a.depositQueue = side
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.depositQueue = nil
		a.mu.Unlock()
	}()

	// Immediately enqueue a claim-creation reducer so any payoutAmount
	// already accumulated is reflected in a fresh signed claim while the
	// deposit transaction is still pending.
	claimResult := side.Add(a.createClaimReducer(ctx), queue.PriorityNormal)

	depositErr := a.chain.Deposit(ctx, channel.ChannelID, value, authorize)
	if depositErr != nil {
		a.logger.Error("deposit transaction failed", zap.Error(depositErr))
		if a.metrics != nil {
			a.metrics.SettlementEvents.WithLabelValues("deposit", "error").Inc()
		}
	} else {
		want := new(big.Int).Add(channel.Value, value)
		if _, err := waitForValue(ctx, a.chain, channel.ChannelID, want); err != nil {
			a.logger.Error("deposit value never confirmed", zap.Error(err))
		} else if a.metrics != nil {
			a.metrics.SettlementEvents.WithLabelValues("deposit", "confirmed").Inc()
		}
		a.fireAndForgetChannelDeposit()
	}

	<-claimResult

	clearResult := <-side.Clear()
	sideState := clearResult.Value
	if sideState == nil {
		sideState = seed
	}

	freshState, err := a.chain.FetchChannel(ctx, channel.ChannelID)
	if err != nil || freshState == nil {
		freshState = &chain.ChannelState{
			ChannelID:       channel.ChannelID,
			ContractAddress: channel.ContractAddress,
			Sender:          channel.Sender,
			Receiver:        channel.Receiver,
			Value:           channel.Value,
			DisputePeriod:   channel.DisputePeriod,
			DisputedUntil:   channel.DisputedUntil,
		}
	}

	merged := &OutgoingChannel{
		Channel: Channel{
			ChannelID:       channel.ChannelID,
			ContractAddress: freshState.ContractAddress,
			Sender:          freshState.Sender,
			Receiver:        freshState.Receiver,
			Value:           freshState.Value,
			DisputePeriod:   freshState.DisputePeriod,
			DisputedUntil:   freshState.DisputedUntil,
		},
		Spent:     sideState.Spent,
		Signature: sideState.Signature,
	}

	result := <-a.outgoing.Add(func(*OutgoingChannel) (*OutgoingChannel, error) {
		return merged, nil
	}, queue.PriorityNormal)
	if result.Err != nil {
		return result.Err
	}
	return depositErr
}

// SendMoney increments payoutAmount by amountGwei and enqueues a
// claim-creation reducer on whichever outgoing queue currently owns the
// channel state - the deposit side-queue if one exists, else the main
// queue. Use SettleOutstanding instead when there is no explicit amount
// to add and the intent is simply to settle whatever is currently owed.
func (a *Account) SendMoney(ctx context.Context, amountGwei int64) {
	a.addPayout(amountGwei)
	a.enqueueClaim(ctx)
}

// SettleOutstanding increments payoutAmount by the account's entire
// current payable balance (never by a negative amount) and enqueues a
// claim-creation reducer exactly as SendMoney does. It is the reactive
// counterpart to an explicit SendMoney call: triggered whenever a FULFILL
// credits payableBalance, to push whatever is newly owed into a claim.
func (a *Account) SettleOutstanding(ctx context.Context) {
	if payable := a.PayableBalance(); payable > 0 {
		a.addPayout(int64(payable))
	}
	a.enqueueClaim(ctx)
}

func (a *Account) enqueueClaim(ctx context.Context) {
	target := a.outgoingQueueForWork()
	target.Add(a.createClaimReducer(ctx), queue.PriorityNormal)
}

// createClaimReducer returns the reducer that turns the account's current
// payoutAmount into an incremented, freshly-signed claim against ch,
// spending at most ch's remaining capacity.
func (a *Account) createClaimReducer(ctx context.Context) queue.Reducer[*OutgoingChannel] {
	return func(ch *OutgoingChannel) (*OutgoingChannel, error) {
		go a.AutoFund(context.Background(), nil)

		if ch == nil {
			return nil, fmt.Errorf("account: no outgoing channel to claim against")
		}

		budgetWei := gweiToWei(a.PayoutAmount())
		if budgetWei.Sign() <= 0 {
			return ch, nil
		}

		increment := minBig(budgetWei, remainingCapacity(ch.Value, ch.Spent))
		if increment.Sign() <= 0 {
			return ch, nil
		}

		newSpent := new(big.Int).Add(ch.Spent, increment)
		sig, err := a.chain.Sign(ctx, ch.ContractAddress, ch.ChannelID, newSpent)
		if err != nil {
			return ch, fmt.Errorf("account: sign claim: %w", err)
		}

		a.fireAndForgetClaim(ClaimMessage{
			ChannelID:       ch.ChannelID,
			ContractAddress: ch.ContractAddress,
			Value:           newSpent,
			Signature:       sig,
		})

		incrementGwei := weiToGweiFloor(increment)
		a.addPayable(ctx, -int64(incrementGwei))
		a.clampPayout(int64(incrementGwei))

		next := ch.Clone()
		next.Spent = newSpent
		next.Signature = sig

		if a.metrics != nil {
			a.metrics.ClaimsIssued.WithLabelValues(a.name).Inc()
			a.metrics.ChannelSpent.WithLabelValues(fmt.Sprintf("%x", ch.ChannelID), "outgoing").Set(weiFloat(newSpent))
		}

		return next, nil
	}
}

func weiFloat(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f := new(big.Float).SetInt(wei)
	out, _ := f.Float64()
	return out
}
