package types

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// OutPoint references the transaction output that locks a stake. The zero
// value is the null outpoint used while a stake UTXO is still being set up.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// NewOutPoint returns an outpoint for the given transaction hash and index.
func NewOutPoint(hash chainhash.Hash, index uint32) OutPoint {
	return OutPoint{Hash: hash, Index: index}
}

// IsNull reports whether the outpoint is unset.
func (o OutPoint) IsNull() bool {
	return o.Hash == chainhash.Hash{}
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.Hash.String(), o.Index)
}

// Key returns the canonical byte key of the outpoint for index lookups.
func (o OutPoint) Key() []byte {
	k := make([]byte, chainhash.HashSize+4)
	copy(k, o.Hash[:])
	binary.BigEndian.PutUint32(k[chainhash.HashSize:], o.Index)
	return k
}
