package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signature is the flat 65-byte claim signature: 32-byte r, 32-byte s, and a
// 1-byte recovery byte v in {0x1b, 0x1c} (27/28), not the raw 0/1 recovery ID
// that crypto.Sign returns.
type Signature [65]byte

var (
	uint256Type, _ = abi.NewType("uint256", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
	bytes32Type, _ = abi.NewType("bytes32", "", nil)

	claimArgs = abi.Arguments{
		{Type: addressType},
		{Type: bytes32Type},
		{Type: uint256Type},
	}
)

// ClaimDigest hashes (contractAddress, channelId, value) the way the
// contract does: ABI-encode then Keccak256.
func ClaimDigest(contractAddress common.Address, channelID [32]byte, value *big.Int) (common.Hash, error) {
	packed, err := claimArgs.Pack(contractAddress, channelID, value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: pack claim digest: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// SignClaim produces the flat claim signature over (contractAddress,
// channelId, value) using key.
func SignClaim(key *ecdsa.PrivateKey, contractAddress common.Address, channelID [32]byte, value *big.Int) (Signature, error) {
	digest, err := ClaimDigest(contractAddress, channelID, value)
	if err != nil {
		return Signature{}, err
	}

	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return Signature{}, fmt.Errorf("chain: sign claim: %w", err)
	}

	var flat Signature
	copy(flat[:64], sig[:64])
	// crypto.Sign returns a recovery ID of 0/1; the wire format wants 27/28.
	flat[64] = sig[64] + 27
	return flat, nil
}

// RecoverSender recovers the address that produced sig over
// (contractAddress, channelId, value).
func RecoverSender(contractAddress common.Address, channelID [32]byte, value *big.Int, sig Signature) (common.Address, error) {
	digest, err := ClaimDigest(contractAddress, channelID, value)
	if err != nil {
		return common.Address{}, err
	}

	if sig[64] != 27 && sig[64] != 28 {
		return common.Address{}, fmt.Errorf("chain: invalid recovery byte %#x", sig[64])
	}

	recoverable := make([]byte, 65)
	copy(recoverable, sig[:64])
	recoverable[64] = sig[64] - 27

	pub, err := crypto.SigToPub(digest.Bytes(), recoverable)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: recover sender: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
