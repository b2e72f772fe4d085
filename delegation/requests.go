package delegation

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/luminacoin/lumina-core/types"
)

// DelegationRequest is a signed request to stake behind a validator. It
// carries the delegator's full public key so it is self-verifying.
type DelegationRequest struct {
	Delegator       types.DelegatorID
	DelegatorPubKey *btcec.PublicKey
	Validator       types.ValidatorID
	Amount          types.Amount
	Height          uint32
	Signature       []byte
}

func (r *DelegationRequest) SigHash() (chainhash.Hash, error) {
	return types.SigHash(
		r.Delegator,
		r.DelegatorPubKey.SerializeCompressed(),
		r.Validator,
		uint64(r.Amount),
		uint64(r.Height),
	)
}

func (r *DelegationRequest) Sign(sk *btcec.PrivateKey) error {
	digest, err := r.SigHash()
	if err != nil {
		return err
	}
	r.Signature = types.SignHash(sk, digest)
	return nil
}

// Verify checks the signature against the embedded public key and that
// the key actually hashes to the claimed delegator identity.
func (r *DelegationRequest) Verify() bool {
	if types.NewKeyID(r.DelegatorPubKey) != r.Delegator {
		return false
	}
	digest, err := r.SigHash()
	if err != nil {
		return false
	}
	return types.VerifyHash(r.DelegatorPubKey, digest, r.Signature)
}

// UndelegationRequest is a signed request to withdraw staked funds. A
// zero amount means "all".
type UndelegationRequest struct {
	Delegator types.DelegatorID
	Validator types.ValidatorID
	Amount    types.Amount
	Height    uint32
	Signature []byte
}

func (r *UndelegationRequest) SigHash() (chainhash.Hash, error) {
	return types.SigHash(
		r.Delegator,
		r.Validator,
		uint64(r.Amount),
		uint64(r.Height),
	)
}

func (r *UndelegationRequest) Sign(sk *btcec.PrivateKey) error {
	digest, err := r.SigHash()
	if err != nil {
		return err
	}
	r.Signature = types.SignHash(sk, digest)
	return nil
}

// Verify checks the signature against the given public key, which must
// hash to the claimed delegator identity.
func (r *UndelegationRequest) Verify(pk *btcec.PublicKey) bool {
	if types.NewKeyID(pk) != r.Delegator {
		return false
	}
	digest, err := r.SigHash()
	if err != nil {
		return false
	}
	return types.VerifyHash(pk, digest, r.Signature)
}

// RewardClaimRequest is a signed request to claim pending rewards. A
// zero validator id claims across all of the delegator's validators.
type RewardClaimRequest struct {
	Delegator types.DelegatorID
	Validator types.ValidatorID
	Height    uint32
	Signature []byte
}

func (r *RewardClaimRequest) SigHash() (chainhash.Hash, error) {
	return types.SigHash(
		r.Delegator,
		r.Validator,
		uint64(r.Height),
	)
}

func (r *RewardClaimRequest) Sign(sk *btcec.PrivateKey) error {
	digest, err := r.SigHash()
	if err != nil {
		return err
	}
	r.Signature = types.SignHash(sk, digest)
	return nil
}

func (r *RewardClaimRequest) Verify(pk *btcec.PublicKey) bool {
	if types.NewKeyID(pk) != r.Delegator {
		return false
	}
	digest, err := r.SigHash()
	if err != nil {
		return false
	}
	return types.VerifyHash(pk, digest, r.Signature)
}
