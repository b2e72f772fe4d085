package types

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/rlp"
)

// SigHash computes the signing digest of a message: the SHA-256 of the
// RLP encoding of its fields in declaration order. Both sides of the wire
// must feed fields in the same order.
func SigHash(fields ...interface{}) (chainhash.Hash, error) {
	b, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("failed to encode signing payload: %w", err)
	}
	return chainhash.HashH(b), nil
}

// SignHash produces a DER-encoded ECDSA signature over the given digest.
func SignHash(sk *btcec.PrivateKey, digest chainhash.Hash) []byte {
	return ecdsa.Sign(sk, digest[:]).Serialize()
}

// VerifyHash checks a DER-encoded ECDSA signature over the given digest.
func VerifyHash(pk *btcec.PublicKey, digest chainhash.Hash, sig []byte) bool {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest[:], pk)
}
