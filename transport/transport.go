// Package transport carries the framed peer-to-peer messages the
// messaging adapter sends and receives. The wire transport itself (a
// websocket, a BTP connection, a libp2p stream) is an external
// collaborator, specified here only by the Transport interface.
package transport

import (
	"context"
	"errors"
)

// ErrNoHandler is returned when an inbound message names a protocol for
// which no handler has been registered.
var ErrNoHandler = errors.New("transport: no handler for protocol")

// SubProtocol is a single named payload within a framed Message, matching
// the {protocolName, contentType, data} shape peers exchange on the wire.
type SubProtocol struct {
	ProtocolName string
	ContentType  string
	Data         []byte
}

// Message is the full frame exchanged between peers: a correlation id
// plus one or more subprotocol payloads.
type Message struct {
	RequestID    string
	SubProtocols []SubProtocol
}

// Handler processes one inbound SubProtocol and returns the response
// payload to frame back to the sender.
type Handler func(ctx context.Context, accountName string, sub SubProtocol) (SubProtocol, error)

// Transport sends a framed Message to a named peer account and waits for
// its framed response.
type Transport interface {
	SendMessage(ctx context.Context, accountName string, msg Message) (Message, error)
}

// Dispatcher routes inbound SubProtocols to registered Handlers by name,
// the receiving side of the peer messaging adapter.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds a Handler to a subprotocol name, overwriting any prior
// registration for that name.
func (d *Dispatcher) Register(protocolName string, handler Handler) {
	d.handlers[protocolName] = handler
}

// Dispatch handles every SubProtocol in msg against accountName's
// registered handlers and assembles the response Message, sharing
// msg's RequestID for correlation.
func (d *Dispatcher) Dispatch(ctx context.Context, accountName string, msg Message) (Message, error) {
	response := Message{RequestID: msg.RequestID}
	for _, sub := range msg.SubProtocols {
		handler, ok := d.handlers[sub.ProtocolName]
		if !ok {
			return Message{}, ErrNoHandler
		}
		reply, err := handler(ctx, accountName, sub)
		if err != nil {
			return Message{}, err
		}
		response.SubProtocols = append(response.SubProtocols, reply)
	}
	return response, nil
}
