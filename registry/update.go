package registry

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/luminacoin/lumina-core/types"
)

// UpdateKind selects the mutation a signed validator update carries.
type UpdateKind uint8

const (
	UpdateFee UpdateKind = iota + 1
	UpdateName
	UpdateDeactivate
	UpdateReactivate
	UpdateIncreaseStake
	UpdateDecreaseStake
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateFee:
		return "fee"
	case UpdateName:
		return "name"
	case UpdateDeactivate:
		return "deactivate"
	case UpdateReactivate:
		return "reactivate"
	case UpdateIncreaseStake:
		return "increase-stake"
	case UpdateDecreaseStake:
		return "decrease-stake"
	default:
		return "unknown"
	}
}

// ValidatorUpdate is a self-signed mutation of a validator record.
// NewValue carries the new fee rate or the stake delta depending on Kind.
type ValidatorUpdate struct {
	ValidatorID types.ValidatorID
	Kind        UpdateKind
	NewValue    int64
	NewName     string
	Height      uint32
	Signature   []byte
}

// SigHash is the digest the validator signs.
func (u *ValidatorUpdate) SigHash() (chainhash.Hash, error) {
	return types.SigHash(
		u.ValidatorID,
		uint64(u.Kind),
		uint64(u.NewValue),
		u.NewName,
		uint64(u.Height),
	)
}

// Sign signs the update with the validator's key.
func (u *ValidatorUpdate) Sign(sk *btcec.PrivateKey) error {
	digest, err := u.SigHash()
	if err != nil {
		return err
	}
	u.Signature = types.SignHash(sk, digest)
	return nil
}

// Verify checks the update signature against the given public key.
func (u *ValidatorUpdate) Verify(pk *btcec.PublicKey) bool {
	digest, err := u.SigHash()
	if err != nil {
		return false
	}
	return types.VerifyHash(pk, digest, u.Signature)
}
