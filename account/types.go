package account

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nondejus/ilp-plugin-ethereum/chain"
)

// Channel carries the fields common to both directions of a unidirectional
// payment channel.
type Channel struct {
	ChannelID       [32]byte
	ContractAddress common.Address
	Sender          common.Address
	Receiver        common.Address
	Value           *big.Int
	DisputePeriod   uint64
	DisputedUntil   *uint64 // nil when not currently disputed
}

// InDispute reports whether the channel is presently in its dispute window.
func (c *Channel) InDispute() bool {
	return c != nil && c.DisputedUntil != nil
}

// OutgoingChannel is a channel we fund and claim against, paying our peer.
type OutgoingChannel struct {
	Channel
	Spent     *big.Int // cumulative amount claimed so far, wei
	Signature chain.Signature
}

// IncomingChannel is a channel our peer funds and claims against, paying us.
type IncomingChannel struct {
	Channel
	Spent     *big.Int // highest claim value we have accepted so far, wei
	Signature chain.Signature
}

func cloneChannel(c Channel) Channel {
	clone := c
	if c.Value != nil {
		clone.Value = new(big.Int).Set(c.Value)
	}
	if c.DisputedUntil != nil {
		until := *c.DisputedUntil
		clone.DisputedUntil = &until
	}
	return clone
}

// Clone returns a deep copy of the outgoing channel, safe to hand to a
// reducer without aliasing the caller's state.
func (o *OutgoingChannel) Clone() *OutgoingChannel {
	if o == nil {
		return nil
	}
	clone := &OutgoingChannel{Channel: cloneChannel(o.Channel), Signature: o.Signature}
	if o.Spent != nil {
		clone.Spent = new(big.Int).Set(o.Spent)
	}
	return clone
}

// Clone returns a deep copy of the incoming channel.
func (i *IncomingChannel) Clone() *IncomingChannel {
	if i == nil {
		return nil
	}
	clone := &IncomingChannel{Channel: cloneChannel(i.Channel), Signature: i.Signature}
	if i.Spent != nil {
		clone.Spent = new(big.Int).Set(i.Spent)
	}
	return clone
}
