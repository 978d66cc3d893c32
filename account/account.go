// Package account implements the bilateral settlement engine: one Account
// per peer, pairing packet-level credit accounting with a pair of
// unidirectional on-chain payment channels.
package account

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/nondejus/ilp-plugin-ethereum/chain"
	"github.com/nondejus/ilp-plugin-ethereum/metrics"
	"github.com/nondejus/ilp-plugin-ethereum/queue"
	"github.com/nondejus/ilp-plugin-ethereum/store"
)

// MoneyHandler is invoked with a gwei amount credited off an accepted
// incoming claim, the local equivalent of "money has arrived".
type MoneyHandler func(ctx context.Context, accountName string, amountGwei uint64)

// Account tracks one peer's credit balances and the pair of on-chain
// channels settling them. The scalar balance fields are guarded by mu;
// channel state is owned exclusively by its reducer queue, the unit of
// serialization for all channel mutations.
type Account struct {
	name string

	mu                sync.Mutex
	receivableBalance uint64 // gwei owed to us, capped by cfg.MaxBalance
	payableBalance    uint64 // gwei we owe our peer, paid down by createClaim
	payoutAmount      int64  // gwei queued for the next outgoing claim
	peerAddress       *common.Address

	outgoing     *queue.Queue[*OutgoingChannel]
	incoming     *queue.Queue[*IncomingChannel]
	depositQueue *queue.Queue[*OutgoingChannel] // non-nil only during an in-flight deposit

	cfg     Config
	chain   chain.Adapter
	store   store.Store
	metrics *metrics.AccountMetrics
	logger  *zap.Logger

	moneyHandler MoneyHandler
	notifier     Notifier
	watcherStop  chan struct{}
}

// New constructs an Account with empty channel queues and zero balances.
// Callers that are restoring persisted state should call Restore
// afterwards.
func New(name string, cfg Config, adapter chain.Adapter, st store.Store, m *metrics.AccountMetrics, logger *zap.Logger) *Account {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Account{
		name:    name,
		cfg:     cfg,
		chain:   adapter,
		store:   st,
		metrics: m,
		logger:  logger.With(zap.String("account", name)),
	}
	a.outgoing = queue.New[*OutgoingChannel](nil)
	a.incoming = queue.New[*IncomingChannel](nil)
	a.outgoing.Subscribe(func(*OutgoingChannel) { a.persist(context.Background()) })
	a.incoming.Subscribe(func(*IncomingChannel) { a.persist(context.Background()) })
	return a
}

// Name returns the account's immutable identifier.
func (a *Account) Name() string { return a.name }

// SetMoneyHandler installs the callback invoked when an incoming claim
// credits new value.
func (a *Account) SetMoneyHandler(h MoneyHandler) { a.moneyHandler = h }

// PeerAddress returns the counterparty's Ethereum address, if known.
func (a *Account) PeerAddress() (common.Address, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.peerAddress == nil {
		return common.Address{}, false
	}
	return *a.peerAddress, true
}

// SetPeerAddress binds the counterparty's address. This is immutable
// once set: a second call with a different address is a no-op that
// only logs, matching the info subprotocol's "refuses mismatched
// second address" rule.
func (a *Account) SetPeerAddress(addr common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.peerAddress != nil {
		if *a.peerAddress != addr {
			a.logger.Info("ignoring mismatched peer address",
				zap.String("existing", a.peerAddress.Hex()), zap.String("received", addr.Hex()))
			return nil
		}
		return nil
	}
	a.peerAddress = &addr
	a.persist(context.Background())
	return nil
}

// ReceivableBalance returns the current receivable balance, in gwei.
func (a *Account) ReceivableBalance() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.receivableBalance
}

// PayableBalance returns the current payable balance, in gwei.
func (a *Account) PayableBalance() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.payableBalance
}

// PayoutAmount returns the amount queued toward the next outgoing claim, gwei.
func (a *Account) PayoutAmount() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.payoutAmount
}

// addReceivable applies a signed delta to receivableBalance, clamping at
// zero, and persists the new account snapshot.
func (a *Account) addReceivable(ctx context.Context, deltaGwei int64) {
	a.mu.Lock()
	next := int64(a.receivableBalance) + deltaGwei
	if next < 0 {
		next = 0
	}
	a.receivableBalance = uint64(next)
	if a.metrics != nil {
		a.metrics.ReceivableBalance.WithLabelValues(a.name).Set(float64(a.receivableBalance))
	}
	a.mu.Unlock()
	a.persist(ctx)
}

// addPayable applies a signed delta to payableBalance, clamping at zero.
func (a *Account) addPayable(ctx context.Context, deltaGwei int64) {
	a.mu.Lock()
	next := int64(a.payableBalance) + deltaGwei
	if next < 0 {
		next = 0
	}
	a.payableBalance = uint64(next)
	if a.metrics != nil {
		a.metrics.PayableBalance.WithLabelValues(a.name).Set(float64(a.payableBalance))
	}
	a.mu.Unlock()
	a.persist(ctx)
}

// addPayout adds deltaGwei to payoutAmount. sendMoney uses this directly,
// outside any reducer, since payoutAmount is account-scalar state rather
// than channel state.
func (a *Account) addPayout(deltaGwei int64) {
	a.mu.Lock()
	a.payoutAmount += deltaGwei
	a.mu.Unlock()
}

// clampPayout subtracts incrementGwei from payoutAmount, floored at
// zero; see DESIGN.md for why this floors rather than clamping with
// min(0, payoutAmount - increment).
func (a *Account) clampPayout(incrementGwei int64) {
	a.mu.Lock()
	remaining := a.payoutAmount - incrementGwei
	if remaining < 0 {
		remaining = 0
	}
	a.payoutAmount = remaining
	a.mu.Unlock()
}

// snapshot is the JSON-serializable form of an Account, stored under
// store.AccountKey(name).
type snapshot struct {
	AccountName       string           `json:"accountName"`
	ReceivableBalance uint64           `json:"receivableBalance"`
	PayableBalance    uint64           `json:"payableBalance"`
	PayoutAmount      int64            `json:"payoutAmount"`
	PeerAddress       string           `json:"peerAddress,omitempty"`
	Outgoing          *channelSnapshot `json:"outgoing,omitempty"`
	Incoming          *channelSnapshot `json:"incoming,omitempty"`
}

type channelSnapshot struct {
	ChannelID       string `json:"channelId"`
	ContractAddress string `json:"contractAddress"`
	Sender          string `json:"sender"`
	Receiver        string `json:"receiver"`
	Value           string `json:"value"`
	DisputePeriod   uint64 `json:"disputePeriod"`
	DisputedUntil   *uint64 `json:"disputedUntil,omitempty"`
	Spent           string `json:"spent"`
	Signature       string `json:"signature"`
}

func toChannelSnapshot(ch Channel, spent *big.Int, sig chain.Signature) *channelSnapshot {
	value := "0"
	if ch.Value != nil {
		value = ch.Value.String()
	}
	spentStr := "0"
	if spent != nil {
		spentStr = spent.String()
	}
	return &channelSnapshot{
		ChannelID:       hex.EncodeToString(ch.ChannelID[:]),
		ContractAddress: ch.ContractAddress.Hex(),
		Sender:          ch.Sender.Hex(),
		Receiver:        ch.Receiver.Hex(),
		Value:           value,
		DisputePeriod:   ch.DisputePeriod,
		DisputedUntil:   ch.DisputedUntil,
		Spent:           spentStr,
		Signature:       hex.EncodeToString(sig[:]),
	}
}

func fromChannelSnapshot(s *channelSnapshot) (Channel, *big.Int, chain.Signature, error) {
	var ch Channel
	var sig chain.Signature
	if s == nil {
		return ch, nil, sig, nil
	}

	idBytes, err := hex.DecodeString(s.ChannelID)
	if err != nil || len(idBytes) != 32 {
		return ch, nil, sig, fmt.Errorf("account: bad channelId snapshot: %w", err)
	}
	copy(ch.ChannelID[:], idBytes)

	ch.ContractAddress = common.HexToAddress(s.ContractAddress)
	ch.Sender = common.HexToAddress(s.Sender)
	ch.Receiver = common.HexToAddress(s.Receiver)
	ch.DisputePeriod = s.DisputePeriod
	ch.DisputedUntil = s.DisputedUntil

	value, ok := new(big.Int).SetString(s.Value, 10)
	if !ok {
		return ch, nil, sig, fmt.Errorf("account: bad value snapshot %q", s.Value)
	}
	ch.Value = value

	spent, ok := new(big.Int).SetString(s.Spent, 10)
	if !ok {
		return ch, nil, sig, fmt.Errorf("account: bad spent snapshot %q", s.Spent)
	}

	sigBytes, err := hex.DecodeString(s.Signature)
	if err != nil || len(sigBytes) != 65 {
		return ch, nil, sig, fmt.Errorf("account: bad signature snapshot: %w", err)
	}
	copy(sig[:], sigBytes)

	return ch, spent, sig, nil
}

// Snapshot serializes the account's current state to JSON.
func (a *Account) Snapshot() ([]byte, error) {
	a.mu.Lock()
	s := snapshot{
		AccountName:       a.name,
		ReceivableBalance: a.receivableBalance,
		PayableBalance:    a.payableBalance,
		PayoutAmount:      a.payoutAmount,
	}
	if a.peerAddress != nil {
		s.PeerAddress = a.peerAddress.Hex()
	}
	a.mu.Unlock()

	if out := a.outgoing.State(); out != nil {
		s.Outgoing = toChannelSnapshot(out.Channel, out.Spent, out.Signature)
	}
	if in := a.incoming.State(); in != nil {
		s.Incoming = toChannelSnapshot(in.Channel, in.Spent, in.Signature)
	}

	return json.Marshal(s)
}

// Restore hydrates the account from a previously-written Snapshot. It
// must be called before the account is exposed to traffic.
func (a *Account) Restore(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("account: restore: %w", err)
	}

	a.mu.Lock()
	a.receivableBalance = s.ReceivableBalance
	a.payableBalance = s.PayableBalance
	a.payoutAmount = s.PayoutAmount
	if s.PeerAddress != "" {
		addr := common.HexToAddress(s.PeerAddress)
		a.peerAddress = &addr
	}
	a.mu.Unlock()

	if s.Outgoing != nil {
		ch, spent, sig, err := fromChannelSnapshot(s.Outgoing)
		if err != nil {
			return err
		}
		<-a.outgoing.Add(func(*OutgoingChannel) (*OutgoingChannel, error) {
			return &OutgoingChannel{Channel: ch, Spent: spent, Signature: sig}, nil
		}, queue.PriorityNormal)
	}
	if s.Incoming != nil {
		ch, spent, sig, err := fromChannelSnapshot(s.Incoming)
		if err != nil {
			return err
		}
		<-a.incoming.Add(func(*IncomingChannel) (*IncomingChannel, error) {
			return &IncomingChannel{Channel: ch, Spent: spent, Signature: sig}, nil
		}, queue.PriorityNormal)
	}
	return nil
}

// persist writes the current snapshot through to the store, logging
// failures rather than surfacing them: persistence failures never abort
// an in-flight reducer.
func (a *Account) persist(ctx context.Context) {
	if a.store == nil {
		return
	}
	data, err := a.Snapshot()
	if err != nil {
		a.logger.Error("snapshot failed", zap.Error(err))
		return
	}
	if err := a.store.Set(ctx, store.AccountKey(a.name), data); err != nil {
		a.logger.Error("persist failed", zap.Error(err))
	}
}

// Unload tears down the account's background watcher, if running.
func (a *Account) Unload(ctx context.Context) {
	if a.watcherStop != nil {
		close(a.watcherStop)
		a.watcherStop = nil
	}
	if a.store != nil {
		_ = a.store.Unload(ctx, store.AccountKey(a.name))
	}
}

// outgoingQueueForWork returns the side-queue if a deposit is in flight,
// else the main outgoing queue, so sendMoney and createClaim keep
// mutating the right queue while a deposit is settling.
func (a *Account) outgoingQueueForWork() *queue.Queue[*OutgoingChannel] {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.depositQueue != nil {
		return a.depositQueue
	}
	return a.outgoing
}

func normalizeAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
