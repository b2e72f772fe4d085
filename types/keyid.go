package types

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
)

// KeyIDLen is the byte length of a public key hash identity.
const KeyIDLen = 20

// KeyID is the 160-bit hash of a compressed secp256k1 public key. It
// identifies validators and delegators on the wire and in every index.
type KeyID [KeyIDLen]byte

// ValidatorID identifies a registered validator.
type ValidatorID = KeyID

// DelegatorID identifies a delegator.
type DelegatorID = KeyID

// NewKeyID derives the identity of the given public key.
func NewKeyID(pub *btcec.PublicKey) KeyID {
	var id KeyID
	copy(id[:], btcutil.Hash160(pub.SerializeCompressed()))
	return id
}

// KeyIDFromBytes converts a 20-byte slice into a KeyID.
func KeyIDFromBytes(b []byte) (KeyID, error) {
	var id KeyID
	if len(b) != KeyIDLen {
		return id, fmt.Errorf("%w: key id must be %d bytes, got %d", ErrBadParameter, KeyIDLen, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// KeyIDFromHex parses a hex-encoded KeyID.
func KeyIDFromHex(s string) (KeyID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return KeyID{}, fmt.Errorf("%w: invalid key id hex: %v", ErrBadParameter, err)
	}
	return KeyIDFromBytes(b)
}

func (id KeyID) Bytes() []byte {
	return id[:]
}

func (id KeyID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the id is the all-zero identity, used as the
// "any validator" wildcard in reward claims.
func (id KeyID) IsZero() bool {
	return id == KeyID{}
}
