// Package plugin assembles the per-peer Account engines, the on-chain
// adapter, the persistent store, and the peer messaging adapter into a
// single multi-account settlement plugin - the top-level glue a
// connector embeds to speak ILP over Ethereum payment channels.
package plugin

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nondejus/ilp-plugin-ethereum/account"
	"github.com/nondejus/ilp-plugin-ethereum/chain"
	"github.com/nondejus/ilp-plugin-ethereum/ilp"
	"github.com/nondejus/ilp-plugin-ethereum/metrics"
	"github.com/nondejus/ilp-plugin-ethereum/peermsg"
	"github.com/nondejus/ilp-plugin-ethereum/store"
	"github.com/nondejus/ilp-plugin-ethereum/transport"
)

// Plugin owns one Account per peer and the shared collaborators they are
// built from.
type Plugin struct {
	cfg     account.Config
	chain   chain.Adapter
	store   store.Store
	metrics *metrics.AccountMetrics
	logger  *zap.Logger

	transport transport.Transport
	peermsg   *peermsg.Adapter

	dataHandler ilp.DataHandler

	mu       sync.Mutex
	accounts map[string]*account.Account
}

// New assembles a Plugin. t may be nil for tests that never exercise the
// peer messaging paths.
func New(cfg account.Config, adapter chain.Adapter, st store.Store, t transport.Transport, logger *zap.Logger) (*Plugin, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Plugin{
		cfg:       cfg,
		chain:     adapter,
		store:     st,
		metrics:   metrics.NewAccountMetrics(metrics.Default()),
		logger:    logger,
		transport: t,
		accounts:  make(map[string]*account.Account),
	}

	if t != nil {
		p.peermsg = peermsg.NewAdapter(t, adapter.Address(), p.lookupAccount, logger)
		p.peermsg.SetPacketHandler(p.forwardPacket)
	}

	return p, nil
}

// SetDataHandler installs the collaborator that executes admitted
// PREPARE packets - routing to the next hop, invoking a local plugin, or
// whatever the embedding connector does with a forwarded packet.
func (p *Plugin) SetDataHandler(h ilp.DataHandler) { p.dataHandler = h }

// Dispatcher returns the transport.Dispatcher to register against an
// inbound message handler, wired to every account's subprotocols. Nil if
// the Plugin was built without a transport.
func (p *Plugin) Dispatcher() *transport.Dispatcher {
	if p.peermsg == nil {
		return nil
	}
	return p.peermsg.Dispatcher()
}

func (p *Plugin) lookupAccount(name string) (*account.Account, bool) {
	p.mu.Lock()
	acc, ok := p.accounts[name]
	p.mu.Unlock()
	return acc, ok
}

// Account returns the Account for name, creating and restoring it from
// the store on first access.
func (p *Plugin) Account(ctx context.Context, name string) (*account.Account, error) {
	p.mu.Lock()
	if acc, ok := p.accounts[name]; ok {
		p.mu.Unlock()
		return acc, nil
	}
	p.mu.Unlock()

	acc := account.New(name, p.cfg, p.chain, p.store, p.metrics, p.logger)
	if p.peermsg != nil {
		acc.SetNotifier(p.peermsg)
	}

	if p.store != nil {
		key := store.AccountKey(name)
		if err := p.store.Load(ctx, key); err != nil {
			return nil, fmt.Errorf("plugin: load account %q: %w", name, err)
		}
		if data, ok, err := p.store.Get(ctx, key); err != nil {
			return nil, fmt.Errorf("plugin: get account %q: %w", name, err)
		} else if ok {
			if err := acc.Restore(data); err != nil {
				return nil, fmt.Errorf("plugin: restore account %q: %w", name, err)
			}
		}
	}

	p.mu.Lock()
	p.accounts[name] = acc
	p.mu.Unlock()
	return acc, nil
}

// Unload tears down name's account and removes it from the plugin.
func (p *Plugin) Unload(ctx context.Context, name string) {
	p.mu.Lock()
	acc, ok := p.accounts[name]
	delete(p.accounts, name)
	p.mu.Unlock()

	if ok {
		acc.Unload(ctx)
	}
}

// forwardPacket decodes an inbound ilp subprotocol payload - a PREPARE the
// peer sent us - and admits it through the named account's inbound hook.
// It never touches payableBalance; that only moves on the outbound path
// a node takes when it originates or relays a PREPARE, via SendPacket.
func (p *Plugin) forwardPacket(ctx context.Context, accountName string, raw []byte) ([]byte, error) {
	acc, err := p.Account(ctx, accountName)
	if err != nil {
		return nil, err
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if env.Prepare == nil {
		return nil, fmt.Errorf("plugin: ilp payload carries no PREPARE")
	}

	handler := p.dataHandler
	if handler == nil {
		handler = echoDataHandler
	}

	fulfill, reject, err := acc.HandlePrepare(ctx, *env.Prepare, handler)
	if err != nil {
		return nil, err
	}

	return encodeEnvelope(packetEnvelope{Fulfill: fulfill, Reject: reject})
}

// SendPacket forwards prepare to accountName's peer over the ilp
// subprotocol and runs the response through the account's outbound
// hook: a FULFILL credits payableBalance and settles, a T04 REJECT may
// retransmit the outstanding claim. Unlike forwardPacket, which admits a
// PREPARE this node received, SendPacket is the path for a PREPARE this
// node originates or relays onward.
func (p *Plugin) SendPacket(ctx context.Context, accountName string, prepare ilp.Prepare) (*ilp.Fulfill, *ilp.Reject, error) {
	if p.transport == nil {
		return nil, nil, fmt.Errorf("plugin: no transport configured to send packets")
	}

	acc, err := p.Account(ctx, accountName)
	if err != nil {
		return nil, nil, err
	}

	raw, err := encodeEnvelope(packetEnvelope{Prepare: &prepare})
	if err != nil {
		return nil, nil, err
	}

	resp, err := p.transport.SendMessage(ctx, accountName, transport.Message{
		SubProtocols: []transport.SubProtocol{{ProtocolName: peermsg.ProtocolILP, ContentType: "application/json", Data: raw}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("plugin: send ilp packet: %w", err)
	}

	var sub transport.SubProtocol
	found := false
	for _, s := range resp.SubProtocols {
		if s.ProtocolName == peermsg.ProtocolILP {
			sub, found = s, true
			break
		}
	}
	if !found {
		return nil, nil, fmt.Errorf("plugin: no ilp response from peer")
	}

	respEnv, err := decodeEnvelope(sub.Data)
	if err != nil {
		return nil, nil, err
	}

	acc.HandleResponse(ctx, prepare.Amount, respEnv.Fulfill, respEnv.Reject)

	return respEnv.Fulfill, respEnv.Reject, nil
}

// echoDataHandler immediately fulfills any PREPARE; it is the default
// used when no connector-supplied DataHandler has been installed.
func echoDataHandler(prepare ilp.Prepare) (*ilp.Fulfill, *ilp.Reject, error) {
	return &ilp.Fulfill{FulfillmentPreimage: prepare.ExecutionCondition}, nil, nil
}
