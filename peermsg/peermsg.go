// Package peermsg implements the peer messaging adapter: the five
// subprotocols peers exchange over a shared transport - info,
// channelDeposit, requestClose, machinomy, and ilp.
package peermsg

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nondejus/ilp-plugin-ethereum/account"
	"github.com/nondejus/ilp-plugin-ethereum/transport"
)

const (
	ProtocolInfo           = "info"
	ProtocolChannelDeposit = "channelDeposit"
	ProtocolRequestClose   = "requestClose"
	ProtocolMachinomy      = "machinomy"
	ProtocolILP            = "ilp"
)

// Lookup resolves an account by name, the way a plugin's account map does.
type Lookup func(accountName string) (*account.Account, bool)

// PacketHandler forwards a raw ILP packet for accountName and returns the
// raw response packet. ILP encoding/decoding itself is an external
// collaborator; the adapter only ferries bytes across the wire.
type PacketHandler func(ctx context.Context, accountName string, packet []byte) ([]byte, error)

// infoMessage is the JSON payload of the info subprotocol.
type infoMessage struct {
	Address string `json:"address"`
}

// machinomyMessage is the JSON payload of the machinomy subprotocol: an
// offered payment claim.
type machinomyMessage struct {
	ChannelID       string `json:"channelId"`
	Signature       string `json:"signature"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
}

// Adapter is the peer messaging collaborator: it implements
// account.Notifier for outbound messages and a transport.Dispatcher
// wiring for inbound ones.
type Adapter struct {
	transport     transport.Transport
	lookup        Lookup
	ourAddress    common.Address
	packetHandler PacketHandler
	logger        *zap.Logger
}

// NewAdapter builds an Adapter bound to t, advertising ourAddress over
// the info subprotocol, and resolving account names via lookup.
func NewAdapter(t transport.Transport, ourAddress common.Address, lookup Lookup, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{transport: t, lookup: lookup, ourAddress: ourAddress, logger: logger}
}

// SetPacketHandler installs the collaborator that forwards raw ILP packets.
func (a *Adapter) SetPacketHandler(h PacketHandler) { a.packetHandler = h }

// Dispatcher builds a transport.Dispatcher with all five subprotocol
// handlers registered.
func (a *Adapter) Dispatcher() *transport.Dispatcher {
	d := transport.NewDispatcher()
	d.Register(ProtocolInfo, a.handleInfo)
	d.Register(ProtocolChannelDeposit, a.handleChannelDeposit)
	d.Register(ProtocolRequestClose, a.handleRequestClose)
	d.Register(ProtocolMachinomy, a.handleMachinomy)
	d.Register(ProtocolILP, a.handleILP)
	return d
}

func newRequestID() string { return uuid.NewString() }

// ResolvePeerAddress implements account.Notifier by exchanging the info
// subprotocol with accountName's peer.
func (a *Adapter) ResolvePeerAddress(ctx context.Context, accountName string) (common.Address, error) {
	payload, err := json.Marshal(infoMessage{Address: a.ourAddress.Hex()})
	if err != nil {
		return common.Address{}, fmt.Errorf("peermsg: encode info: %w", err)
	}

	resp, err := a.transport.SendMessage(ctx, accountName, transport.Message{
		RequestID:    newRequestID(),
		SubProtocols: []transport.SubProtocol{{ProtocolName: ProtocolInfo, ContentType: "application/json", Data: payload}},
	})
	if err != nil {
		return common.Address{}, fmt.Errorf("peermsg: send info: %w", err)
	}

	sub, ok := findSubProtocol(resp, ProtocolInfo)
	if !ok {
		return common.Address{}, fmt.Errorf("peermsg: no info response")
	}

	var msg infoMessage
	if err := json.Unmarshal(sub.Data, &msg); err != nil {
		return common.Address{}, fmt.Errorf("peermsg: decode info response: %w", err)
	}
	if !common.IsHexAddress(msg.Address) {
		return common.Address{}, fmt.Errorf("peermsg: invalid peer address %q", msg.Address)
	}
	return common.HexToAddress(msg.Address), nil
}

// SendClaim implements account.Notifier by transmitting claim over the
// machinomy subprotocol.
func (a *Adapter) SendClaim(ctx context.Context, accountName string, claim account.ClaimMessage) error {
	payload, err := encodeClaim(claim)
	if err != nil {
		return err
	}
	_, err = a.transport.SendMessage(ctx, accountName, transport.Message{
		RequestID:    newRequestID(),
		SubProtocols: []transport.SubProtocol{{ProtocolName: ProtocolMachinomy, ContentType: "application/json", Data: payload}},
	})
	return err
}

// SendChannelDeposit implements account.Notifier.
func (a *Adapter) SendChannelDeposit(ctx context.Context, accountName string) error {
	_, err := a.transport.SendMessage(ctx, accountName, transport.Message{
		RequestID:    newRequestID(),
		SubProtocols: []transport.SubProtocol{{ProtocolName: ProtocolChannelDeposit}},
	})
	return err
}

func findSubProtocol(msg transport.Message, name string) (transport.SubProtocol, bool) {
	for _, sub := range msg.SubProtocols {
		if sub.ProtocolName == name {
			return sub, true
		}
	}
	return transport.SubProtocol{}, false
}

func encodeClaim(claim account.ClaimMessage) ([]byte, error) {
	value := "0"
	if claim.Value != nil {
		value = claim.Value.String()
	}
	payload, err := json.Marshal(machinomyMessage{
		ChannelID:       fmt.Sprintf("%x", claim.ChannelID),
		Signature:       fmt.Sprintf("%x", claim.Signature[:]),
		Value:           value,
		ContractAddress: claim.ContractAddress.Hex(),
	})
	if err != nil {
		return nil, fmt.Errorf("peermsg: encode machinomy claim: %w", err)
	}
	return payload, nil
}

func decodeClaim(data []byte) (account.ClaimMessage, error) {
	var msg machinomyMessage
	var claim account.ClaimMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return claim, fmt.Errorf("peermsg: decode machinomy claim: %w", err)
	}

	idBytes, err := decodeHex(msg.ChannelID)
	if err != nil || len(idBytes) != 32 {
		return claim, fmt.Errorf("peermsg: bad channelId %q", msg.ChannelID)
	}
	copy(claim.ChannelID[:], idBytes)

	sigBytes, err := decodeHex(msg.Signature)
	if err != nil || len(sigBytes) != 65 {
		return claim, fmt.Errorf("peermsg: bad signature %q", msg.Signature)
	}
	copy(claim.Signature[:], sigBytes)

	value, ok := new(big.Int).SetString(msg.Value, 10)
	if !ok {
		return claim, fmt.Errorf("peermsg: bad value %q", msg.Value)
	}
	claim.Value = value
	claim.ContractAddress = common.HexToAddress(msg.ContractAddress)
	return claim, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}
