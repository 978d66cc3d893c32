package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// EthAdapter is the default Adapter, talking to a real Ethereum-compatible
// JSON-RPC endpoint via go-ethereum's ethclient and ABI-encoding helpers,
// the way other_examples' swarm `swap.go` drives its chequebook contract.
type EthAdapter struct {
	client   *ethclient.Client
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	address  common.Address
	contract common.Address
	abi      abi.ABI
	logger   *zap.Logger
}

// NewEthAdapter builds an EthAdapter bound to contract and signing with key.
func NewEthAdapter(ctx context.Context, client *ethclient.Client, key *ecdsa.PrivateKey, contract common.Address, logger *zap.Logger) (*EthAdapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed, err := abi.JSON(strings.NewReader(channelContractABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse channel ABI: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: fetch chain id: %w", err)
	}

	return &EthAdapter{
		client:   client,
		chainID:  chainID,
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		contract: contract,
		abi:      parsed,
		logger:   logger,
	}, nil
}

func (a *EthAdapter) Address() common.Address         { return a.address }
func (a *EthAdapter) ContractAddress() common.Address { return a.contract }

func (a *EthAdapter) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggest gas price: %w", err)
	}
	return price, nil
}

func (a *EthAdapter) Sign(ctx context.Context, contractAddress common.Address, channelID [32]byte, value *big.Int) (Signature, error) {
	return SignClaim(a.key, contractAddress, channelID, value)
}

// FetchChannel calls the contract's `channels` view function and returns nil
// when the channel is absent (sender == the zero address).
func (a *EthAdapter) FetchChannel(ctx context.Context, channelID [32]byte) (*ChannelState, error) {
	calldata, err := a.abi.Pack("channels", channelID)
	if err != nil {
		return nil, fmt.Errorf("chain: pack channels call: %w", err)
	}

	out, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &a.contract, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call channels: %w", err)
	}

	var result struct {
		Sender        common.Address
		Receiver      common.Address
		Value         *big.Int
		DisputePeriod *big.Int
		DisputedUntil *big.Int
	}
	if err := a.abi.UnpackIntoInterface(&result, "channels", out); err != nil {
		return nil, fmt.Errorf("chain: unpack channels result: %w", err)
	}

	if result.Sender == (common.Address{}) {
		return nil, nil
	}

	state := &ChannelState{
		ChannelID:       channelID,
		ContractAddress: a.contract,
		Sender:          result.Sender,
		Receiver:        result.Receiver,
		Value:           result.Value,
		DisputePeriod:   result.DisputePeriod.Uint64(),
	}
	if result.DisputedUntil.Sign() > 0 {
		until := result.DisputedUntil.Uint64()
		state.DisputedUntil = &until
	}
	return state, nil
}

func (a *EthAdapter) Open(ctx context.Context, channelID [32]byte, receiver common.Address, disputePeriod uint64, value *big.Int, authorize Authorize) error {
	calldata, err := a.abi.Pack("open", channelID, receiver, new(big.Int).SetUint64(disputePeriod))
	if err != nil {
		return fmt.Errorf("chain: pack open: %w", err)
	}
	return a.submit(ctx, calldata, value, authorize)
}

func (a *EthAdapter) Deposit(ctx context.Context, channelID [32]byte, value *big.Int, authorize Authorize) error {
	calldata, err := a.abi.Pack("deposit", channelID)
	if err != nil {
		return fmt.Errorf("chain: pack deposit: %w", err)
	}
	return a.submit(ctx, calldata, value, authorize)
}

func (a *EthAdapter) Claim(ctx context.Context, channelID [32]byte, spent *big.Int, signature Signature, authorize Authorize) error {
	calldata, err := a.abi.Pack("claim", channelID, spent, signature[:])
	if err != nil {
		return fmt.Errorf("chain: pack claim: %w", err)
	}
	return a.submit(ctx, calldata, big.NewInt(0), authorize)
}

// submit estimates gas, asks authorize for a go/no-go on the resulting fee,
// then signs and sends the transaction and waits for it to be mined.
func (a *EthAdapter) submit(ctx context.Context, calldata []byte, value *big.Int, authorize Authorize) error {
	gasPrice, err := a.GasPrice(ctx)
	if err != nil {
		return err
	}

	gasLimit, err := a.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  a.address,
		To:    &a.contract,
		Value: value,
		Data:  calldata,
	})
	if err != nil {
		return fmt.Errorf("chain: estimate gas: %w", err)
	}

	fee := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	if authorize == nil {
		authorize = AlwaysAuthorize
	}
	if err := authorize(ctx, fee); err != nil {
		return fmt.Errorf("chain: authorize rejected: %w", err)
	}

	nonce, err := a.client.PendingNonceAt(ctx, a.address)
	if err != nil {
		return fmt.Errorf("chain: fetch nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &a.contract,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})

	signer := types.LatestSignerForChainID(a.chainID)
	signedTx, err := types.SignTx(tx, signer, a.key)
	if err != nil {
		return fmt.Errorf("chain: sign transaction: %w", err)
	}

	if err := a.client.SendTransaction(ctx, signedTx); err != nil {
		return fmt.Errorf("chain: send transaction: %w", err)
	}

	a.logger.Info("submitted channel transaction", zap.String("tx_hash", signedTx.Hash().Hex()))

	if _, err := bind.WaitMined(ctx, a.client, signedTx); err != nil {
		return fmt.Errorf("chain: wait mined: %w", err)
	}
	return nil
}
