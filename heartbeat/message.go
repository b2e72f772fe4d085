package heartbeat

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/luminacoin/lumina-core/types"
)

// Heartbeat is the signed liveness message a validator emits once per
// heartbeat interval. The node address travels as a printable "ip:port"
// string, also inside the signed digest, so the payload stays
// transport-independent.
type Heartbeat struct {
	ValidatorID types.ValidatorID
	BlockHeight uint32
	BlockHash   chainhash.Hash
	Timestamp   int64
	NodeAddress types.NetAddress
	NodePort    uint16
	Signature   []byte
}

// SigHash is the digest the validator signs. It doubles as the replay
// key in the seen set.
func (hb *Heartbeat) SigHash() (chainhash.Hash, error) {
	return types.SigHash(
		hb.ValidatorID,
		uint64(hb.BlockHeight),
		hb.BlockHash,
		uint64(hb.Timestamp),
		hb.NodeAddress.String(),
		uint64(hb.NodePort),
	)
}

func (hb *Heartbeat) Sign(sk *btcec.PrivateKey) error {
	digest, err := hb.SigHash()
	if err != nil {
		return err
	}
	hb.Signature = types.SignHash(sk, digest)
	return nil
}

func (hb *Heartbeat) Verify(pk *btcec.PublicKey) bool {
	digest, err := hb.SigHash()
	if err != nil {
		return false
	}
	return types.VerifyHash(pk, digest, hb.Signature)
}

// RegistrationAnnouncement is the signed message a new validator gossips
// to announce itself. It carries the full public key so it is
// self-verifying.
type RegistrationAnnouncement struct {
	PubKey             *btcec.PublicKey
	Stake              types.Amount
	FeeBps             int64
	RegistrationHeight uint32
	Signature          []byte
}

func (a *RegistrationAnnouncement) SigHash() (chainhash.Hash, error) {
	return types.SigHash(
		a.PubKey.SerializeCompressed(),
		uint64(a.Stake),
		uint64(a.FeeBps),
		uint64(a.RegistrationHeight),
	)
}

func (a *RegistrationAnnouncement) Sign(sk *btcec.PrivateKey) error {
	digest, err := a.SigHash()
	if err != nil {
		return err
	}
	a.Signature = types.SignHash(sk, digest)
	return nil
}

func (a *RegistrationAnnouncement) Verify() bool {
	digest, err := a.SigHash()
	if err != nil {
		return false
	}
	return types.VerifyHash(a.PubKey, digest, a.Signature)
}
