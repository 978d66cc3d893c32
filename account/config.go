package account

import (
	"fmt"
	"math/big"
)

// Config holds the per-plugin settlement parameters shared by every
// Account. Amounts ending in ChannelAmount/Balance are in the unit the
// field name says; on-chain amounts are always wei, packet and balance
// amounts are always gwei.
type Config struct {
	// OutgoingChannelAmount is the value, in wei, used when opening or
	// topping up our outgoing channel to a peer.
	OutgoingChannelAmount *big.Int

	// MinIncomingChannelAmount is the minimum on-chain value, in wei, an
	// incoming channel must carry before autoFund will open or top up
	// our outgoing channel to that peer.
	MinIncomingChannelAmount *big.Int

	// OutgoingDisputePeriod is the dispute period, in blocks, we request
	// when opening an outgoing channel.
	OutgoingDisputePeriod uint64

	// MinIncomingDisputePeriod is the minimum dispute period, in blocks,
	// we require of an incoming channel before accepting claims against it.
	MinIncomingDisputePeriod uint64

	// ChannelWatcherInterval is the polling period, in milliseconds, for
	// each account's channel watcher.
	ChannelWatcherInterval int64

	// MaxPacketAmount is the largest amount, in gwei, admitted in a
	// single inbound ILP PREPARE.
	MaxPacketAmount uint64

	// MaxBalance is the largest receivableBalance, in gwei, we extend a
	// peer before rejecting further PREPAREs with insufficient liquidity.
	MaxBalance uint64
}

// DefaultConfig returns conservative settlement parameters suitable for
// a fresh deployment; operators are expected to tune these against their
// own risk tolerance and gas market.
func DefaultConfig() Config {
	return Config{
		OutgoingChannelAmount:    big.NewInt(1_000_000_000_000_000_000), // 1 ETH
		MinIncomingChannelAmount: big.NewInt(10_000_000_000_000_000),    // 0.01 ETH
		OutgoingDisputePeriod:    6 * 60 * 24,                           // ~1 day at 10s/block
		MinIncomingDisputePeriod: 6 * 60 * 12,                           // ~half a day
		ChannelWatcherInterval:   60_000,
		MaxPacketAmount:          1_000_000_000, // 1 ETH, in gwei
		MaxBalance:               1_000_000_000_000,
	}
}

// Validate rejects configurations that would make the invariants in
// account.go unsatisfiable.
func (c Config) Validate() error {
	if c.OutgoingChannelAmount == nil || c.OutgoingChannelAmount.Sign() <= 0 {
		return fmt.Errorf("account: OutgoingChannelAmount must be positive")
	}
	if c.MinIncomingChannelAmount == nil || c.MinIncomingChannelAmount.Sign() < 0 {
		return fmt.Errorf("account: MinIncomingChannelAmount must be non-negative")
	}
	if c.OutgoingDisputePeriod == 0 {
		return fmt.Errorf("account: OutgoingDisputePeriod must be positive")
	}
	if c.ChannelWatcherInterval <= 0 {
		return fmt.Errorf("account: ChannelWatcherInterval must be positive")
	}
	if c.MaxPacketAmount == 0 {
		return fmt.Errorf("account: MaxPacketAmount must be positive")
	}
	if c.MaxBalance == 0 {
		return fmt.Errorf("account: MaxBalance must be positive")
	}
	return nil
}
