package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := NewDispatcher()
	d.Register("info", func(ctx context.Context, accountName string, sub SubProtocol) (SubProtocol, error) {
		return SubProtocol{ProtocolName: "info", Data: []byte("pong:" + accountName)}, nil
	})

	resp, err := d.Dispatch(context.Background(), "alice", Message{
		RequestID:    "req-1",
		SubProtocols: []SubProtocol{{ProtocolName: "info", Data: []byte("ping")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.RequestID)
	require.Len(t, resp.SubProtocols, 1)
	assert.Equal(t, "pong:alice", string(resp.SubProtocols[0].Data))
}

func TestDispatchErrorsOnUnregisteredProtocol(t *testing.T) {
	d := NewDispatcher()
	_, err := d.Dispatch(context.Background(), "alice", Message{
		SubProtocols: []SubProtocol{{ProtocolName: "unknown"}},
	})
	assert.ErrorIs(t, err, ErrNoHandler)
}
