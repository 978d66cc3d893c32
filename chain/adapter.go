// Package chain defines the on-chain adapter boundary and a
// go-ethereum backed implementation of it: reading channel state, building
// and submitting open/deposit/claim transactions, estimating gas, and
// signing/verifying claims with a recoverable secp256k1 key.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChannelState mirrors the on-chain fields of a unidirectional payment
// channel. A nil *ChannelState means the channel does not exist
// on-chain.
type ChannelState struct {
	ChannelID       [32]byte
	ContractAddress common.Address
	Sender          common.Address
	Receiver        common.Address
	Value           *big.Int
	DisputePeriod   uint64
	DisputedUntil   *uint64 // nil when not in dispute
}

// InDispute reports whether the channel currently has an active dispute.
func (c *ChannelState) InDispute() bool {
	return c != nil && c.DisputedUntil != nil
}

// Authorize is consulted before a transaction carrying a fee is submitted.
// Rejecting it aborts the operation without sending anything.
type Authorize func(ctx context.Context, estimatedFeeWei *big.Int) error

// AlwaysAuthorize authorizes any fee; used for flows where no
// confirmation is needed before spending (auto-funding, proof-of-channel
// opens).
func AlwaysAuthorize(context.Context, *big.Int) error { return nil }

// Adapter is the external on-chain collaborator this engine drives.
// The bilateral message transport, ILP codec, and persistent store are
// separate external collaborators (transport, ilp, store packages).
type Adapter interface {
	// Address is this node's own on-chain address (the configured signer).
	Address() common.Address

	// FetchChannel reads channel state by id, returning nil if absent.
	FetchChannel(ctx context.Context, channelID [32]byte) (*ChannelState, error)

	// Open submits an `open(channelId, receiver, disputePeriod)` transaction
	// funded with value, after authorize accepts the estimated fee.
	Open(ctx context.Context, channelID [32]byte, receiver common.Address, disputePeriod uint64, value *big.Int, authorize Authorize) error

	// Deposit submits a `deposit(channelId)` transaction funded with value.
	Deposit(ctx context.Context, channelID [32]byte, value *big.Int, authorize Authorize) error

	// Claim submits a `claim(channelId, spent, signature)` transaction.
	Claim(ctx context.Context, channelID [32]byte, spent *big.Int, signature Signature, authorize Authorize) error

	// GasPrice returns the current suggested gas price in wei.
	GasPrice(ctx context.Context) (*big.Int, error)

	// Sign produces a flat claim signature for (contractAddress, channelId,
	// value) under this node's own key.
	Sign(ctx context.Context, contractAddress common.Address, channelID [32]byte, value *big.Int) (Signature, error)

	// ContractAddress is the configured channel contract address.
	ContractAddress() common.Address
}
