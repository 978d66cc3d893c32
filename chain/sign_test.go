package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignClaimRoundTrips(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	contract := crypto.PubkeyToAddress(key.PublicKey) // any address works for the test
	var channelID [32]byte
	copy(channelID[:], []byte("test-channel-id-000000000000000"))
	value := big.NewInt(1_000_000_000)

	sig, err := SignClaim(key, contract, channelID, value)
	require.NoError(t, err)
	assert.True(t, sig[64] == 27 || sig[64] == 28, "v must be 27 or 28, got %#x", sig[64])

	recovered, err := RecoverSender(contract, channelID, value, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), recovered)
}

func TestRecoverSenderRejectsWrongValue(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	contract := crypto.PubkeyToAddress(key.PublicKey)
	var channelID [32]byte
	copy(channelID[:], []byte("test-channel-id-000000000000000"))

	sig, err := SignClaim(key, contract, channelID, big.NewInt(100))
	require.NoError(t, err)

	recovered, err := RecoverSender(contract, channelID, big.NewInt(200), sig)
	require.NoError(t, err)
	assert.NotEqual(t, crypto.PubkeyToAddress(key.PublicKey), recovered)
}
