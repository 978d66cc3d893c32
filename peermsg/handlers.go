package peermsg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/nondejus/ilp-plugin-ethereum/account"
	"github.com/nondejus/ilp-plugin-ethereum/transport"
)

func (a *Adapter) account(accountName string) (*account.Account, error) {
	acc, ok := a.lookup(accountName)
	if !ok {
		return nil, fmt.Errorf("peermsg: unknown account %q", accountName)
	}
	return acc, nil
}

// handleInfo answers the info subprotocol, binding the peer's address to
// the account and replying with our own.
func (a *Adapter) handleInfo(ctx context.Context, accountName string, sub transport.SubProtocol) (transport.SubProtocol, error) {
	acc, err := a.account(accountName)
	if err != nil {
		return transport.SubProtocol{}, err
	}

	var msg infoMessage
	if err := json.Unmarshal(sub.Data, &msg); err != nil {
		return transport.SubProtocol{}, fmt.Errorf("peermsg: decode info: %w", err)
	}

	if !common.IsHexAddress(msg.Address) {
		a.logger.Info("ignoring info message with invalid address",
			zap.String("address", msg.Address), zap.String("account", accountName))
	} else if err := acc.SetPeerAddress(common.HexToAddress(msg.Address)); err != nil {
		a.logger.Error("failed to bind peer address", zap.Error(err))
	}

	payload, err := json.Marshal(infoMessage{Address: a.ourAddress.Hex()})
	if err != nil {
		return transport.SubProtocol{}, fmt.Errorf("peermsg: encode info response: %w", err)
	}
	return transport.SubProtocol{ProtocolName: ProtocolInfo, ContentType: "application/json", Data: payload}, nil
}

// handleChannelDeposit reconciles our cached view of the peer's incoming
// channel after being notified of a deposit.
func (a *Adapter) handleChannelDeposit(ctx context.Context, accountName string, sub transport.SubProtocol) (transport.SubProtocol, error) {
	acc, err := a.account(accountName)
	if err != nil {
		return transport.SubProtocol{}, err
	}
	acc.ReconcileChannelDeposit(ctx)
	return transport.SubProtocol{ProtocolName: ProtocolChannelDeposit}, nil
}

// handleRequestClose claims our incoming channel if doing so is
// profitable even without a dispute in progress.
func (a *Adapter) handleRequestClose(ctx context.Context, accountName string, sub transport.SubProtocol) (transport.SubProtocol, error) {
	acc, err := a.account(accountName)
	if err != nil {
		return transport.SubProtocol{}, err
	}
	<-acc.ClaimIfProfitable(false, nil)
	return transport.SubProtocol{ProtocolName: ProtocolRequestClose}, nil
}

// handleMachinomy validates an offered claim against the account's
// incoming channel.
func (a *Adapter) handleMachinomy(ctx context.Context, accountName string, sub transport.SubProtocol) (transport.SubProtocol, error) {
	acc, err := a.account(accountName)
	if err != nil {
		return transport.SubProtocol{}, err
	}

	claim, err := decodeClaim(sub.Data)
	if err != nil {
		return transport.SubProtocol{}, err
	}

	<-acc.ValidateClaim(claim)
	return transport.SubProtocol{ProtocolName: ProtocolMachinomy}, nil
}

// handleILP forwards a raw ILP packet to the installed PacketHandler.
func (a *Adapter) handleILP(ctx context.Context, accountName string, sub transport.SubProtocol) (transport.SubProtocol, error) {
	if a.packetHandler == nil {
		return transport.SubProtocol{}, fmt.Errorf("peermsg: no packet handler installed")
	}
	resp, err := a.packetHandler(ctx, accountName, sub.Data)
	if err != nil {
		return transport.SubProtocol{}, err
	}
	return transport.SubProtocol{ProtocolName: ProtocolILP, ContentType: "application/octet-stream", Data: resp}, nil
}
