package account

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nondejus/ilp-plugin-ethereum/chain"
)

// fakeAdapter is an in-memory chain.Adapter used to exercise Account
// without a real Ethereum node or contract deployment.
type fakeAdapter struct {
	mu       sync.Mutex
	address  common.Address
	contract common.Address
	key      *ecdsa.PrivateKey
	channels map[[32]byte]*chain.ChannelState
}

func newFakeAdapter(address, contract common.Address, key *ecdsa.PrivateKey) *fakeAdapter {
	return &fakeAdapter{
		address:  address,
		contract: contract,
		key:      key,
		channels: make(map[[32]byte]*chain.ChannelState),
	}
}

func (f *fakeAdapter) Address() common.Address         { return f.address }
func (f *fakeAdapter) ContractAddress() common.Address { return f.contract }

func (f *fakeAdapter) GasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeAdapter) Sign(ctx context.Context, contractAddress common.Address, channelID [32]byte, value *big.Int) (chain.Signature, error) {
	return chain.SignClaim(f.key, contractAddress, channelID, value)
}

func (f *fakeAdapter) FetchChannel(ctx context.Context, channelID [32]byte) (*chain.ChannelState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs, ok := f.channels[channelID]
	if !ok {
		return nil, nil
	}
	clone := *cs
	if cs.Value != nil {
		clone.Value = new(big.Int).Set(cs.Value)
	}
	return &clone, nil
}

func (f *fakeAdapter) Open(ctx context.Context, channelID [32]byte, receiver common.Address, disputePeriod uint64, value *big.Int, authorize chain.Authorize) error {
	if authorize != nil {
		if err := authorize(ctx, big.NewInt(1)); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[channelID] = &chain.ChannelState{
		ChannelID:       channelID,
		ContractAddress: f.contract,
		Sender:          f.address,
		Receiver:        receiver,
		Value:           new(big.Int).Set(value),
		DisputePeriod:   disputePeriod,
	}
	return nil
}

func (f *fakeAdapter) Deposit(ctx context.Context, channelID [32]byte, value *big.Int, authorize chain.Authorize) error {
	if authorize != nil {
		if err := authorize(ctx, big.NewInt(1)); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cs, ok := f.channels[channelID]
	if !ok {
		return chainErrNoChannel
	}
	cs.Value = new(big.Int).Add(cs.Value, value)
	return nil
}

func (f *fakeAdapter) Claim(ctx context.Context, channelID [32]byte, spent *big.Int, signature chain.Signature, authorize chain.Authorize) error {
	f.mu.Lock()
	cs, ok := f.channels[channelID]
	f.mu.Unlock()
	if !ok {
		return chainErrNoChannel
	}
	if authorize != nil {
		if err := authorize(ctx, big.NewInt(0)); err != nil {
			return err
		}
	}
	_ = cs
	f.mu.Lock()
	delete(f.channels, channelID)
	f.mu.Unlock()
	return nil
}

// seed directly installs a channel, simulating the peer opening it to us.
func (f *fakeAdapter) seed(channelID [32]byte, sender, receiver common.Address, value *big.Int, disputePeriod uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[channelID] = &chain.ChannelState{
		ChannelID:       channelID,
		ContractAddress: f.contract,
		Sender:          sender,
		Receiver:        receiver,
		Value:           value,
		DisputePeriod:   disputePeriod,
	}
}

var chainErrNoChannel = &fakeChainError{"fake chain: no such channel"}

type fakeChainError struct{ msg string }

func (e *fakeChainError) Error() string { return e.msg }
