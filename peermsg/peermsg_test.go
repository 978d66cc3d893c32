package peermsg

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nondejus/ilp-plugin-ethereum/account"
	"github.com/nondejus/ilp-plugin-ethereum/chain"
	"github.com/nondejus/ilp-plugin-ethereum/transport"
)

// fakeTransport answers every SendMessage with a canned response, recording
// the last message sent for assertions.
type fakeTransport struct {
	response transport.Message
	err      error
	lastSent transport.Message
	lastTo   string
}

func (t *fakeTransport) SendMessage(ctx context.Context, accountName string, msg transport.Message) (transport.Message, error) {
	t.lastTo = accountName
	t.lastSent = msg
	return t.response, t.err
}

func TestEncodeDecodeClaimRoundTrips(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	contract := crypto.PubkeyToAddress(key.PublicKey)
	var channelID [32]byte
	copy(channelID[:], []byte("roundtrip-channel-00000000000000"))

	sig, err := chain.SignClaim(key, contract, channelID, big.NewInt(12345))
	require.NoError(t, err)

	claim := account.ClaimMessage{
		ChannelID:       channelID,
		ContractAddress: contract,
		Value:           big.NewInt(12345),
		Signature:       sig,
	}

	payload, err := encodeClaim(claim)
	require.NoError(t, err)

	decoded, err := decodeClaim(payload)
	require.NoError(t, err)

	assert.Equal(t, claim.ChannelID, decoded.ChannelID)
	assert.Equal(t, claim.ContractAddress, decoded.ContractAddress)
	assert.Equal(t, claim.Signature, decoded.Signature)
	assert.Equal(t, 0, claim.Value.Cmp(decoded.Value))
}

func TestResolvePeerAddressParsesInfoResponse(t *testing.T) {
	peerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	peerAddr := crypto.PubkeyToAddress(peerKey.PublicKey)

	payload, err := jsonMarshalInfo(peerAddr)
	require.NoError(t, err)

	ft := &fakeTransport{response: transport.Message{
		SubProtocols: []transport.SubProtocol{{ProtocolName: ProtocolInfo, Data: payload}},
	}}

	ourKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	ourAddr := crypto.PubkeyToAddress(ourKey.PublicKey)

	adapter := NewAdapter(ft, ourAddr, nil, nil)
	resolved, err := adapter.ResolvePeerAddress(context.Background(), "peer-1")
	require.NoError(t, err)
	assert.Equal(t, peerAddr, resolved)
	assert.Equal(t, "peer-1", ft.lastTo)
}

func jsonMarshalInfo(addr common.Address) ([]byte, error) {
	return []byte(`{"address":"` + addr.Hex() + `"}`), nil
}

func TestDispatcherRoutesInfoToHandlerAndBindsPeerAddress(t *testing.T) {
	peerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	peerAddr := crypto.PubkeyToAddress(peerKey.PublicKey)

	ourKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	ourAddr := crypto.PubkeyToAddress(ourKey.PublicKey)

	acc := account.New("peer-1", account.DefaultConfig(), nil, nil, nil, nil)
	lookup := func(name string) (*account.Account, bool) {
		if name == "peer-1" {
			return acc, true
		}
		return nil, false
	}

	adapter := NewAdapter(&fakeTransport{}, ourAddr, lookup, nil)
	dispatcher := adapter.Dispatcher()

	payload, err := jsonMarshalInfo(peerAddr)
	require.NoError(t, err)

	resp, err := dispatcher.Dispatch(context.Background(), "peer-1", transport.Message{
		RequestID:    "req-1",
		SubProtocols: []transport.SubProtocol{{ProtocolName: ProtocolInfo, Data: payload}},
	})
	require.NoError(t, err)
	require.Len(t, resp.SubProtocols, 1)
	assert.Equal(t, ProtocolInfo, resp.SubProtocols[0].ProtocolName)

	bound, ok := acc.PeerAddress()
	require.True(t, ok)
	assert.Equal(t, peerAddr, bound)
}

func TestHandleILPErrorsWithoutInstalledPacketHandler(t *testing.T) {
	ourKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	ourAddr := crypto.PubkeyToAddress(ourKey.PublicKey)

	adapter := NewAdapter(&fakeTransport{}, ourAddr, func(string) (*account.Account, bool) { return nil, false }, nil)
	_, err = adapter.handleILP(context.Background(), "peer-1", transport.SubProtocol{ProtocolName: ProtocolILP, Data: []byte("x")})
	assert.Error(t, err)
}
