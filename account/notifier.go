package account

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/nondejus/ilp-plugin-ethereum/chain"
)

// ClaimMessage is the payload of the machinomy subprotocol: a signed
// payment claim offered to a peer.
type ClaimMessage struct {
	ChannelID       [32]byte
	ContractAddress common.Address
	Value           *big.Int
	Signature       chain.Signature
}

// Notifier is the peer messaging collaborator Account uses to send
// fire-and-forget claim and channel notifications. Failures are logged
// at debug and never surfaced to the caller.
type Notifier interface {
	// ResolvePeerAddress exchanges the info subprotocol with accountName's
	// peer and returns their Ethereum address.
	ResolvePeerAddress(ctx context.Context, accountName string) (common.Address, error)

	// SendClaim transmits a signed claim over the machinomy subprotocol.
	SendClaim(ctx context.Context, accountName string, claim ClaimMessage) error

	// SendChannelDeposit notifies the peer that our outgoing channel's
	// value has changed, so they should refresh their cached view of it.
	SendChannelDeposit(ctx context.Context, accountName string) error
}

// fireAndForgetClaim sends claim to the peer without blocking the caller
// on the result; any error is logged at debug.
func (a *Account) fireAndForgetClaim(claim ClaimMessage) {
	if a.notifier == nil {
		return
	}
	go func() {
		if err := a.notifier.SendClaim(context.Background(), a.name, claim); err != nil {
			a.logger.Debug("claim transmission failed", zap.Error(err))
		}
	}()
}

// fireAndForgetChannelDeposit notifies the peer of a deposit without
// blocking the caller.
func (a *Account) fireAndForgetChannelDeposit() {
	if a.notifier == nil {
		return
	}
	go func() {
		if err := a.notifier.SendChannelDeposit(context.Background(), a.name); err != nil {
			a.logger.Debug("channelDeposit notification failed", zap.Error(err))
		}
	}()
}

// SetNotifier installs the peer messaging collaborator.
func (a *Account) SetNotifier(n Notifier) { a.notifier = n }
