package delegation

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/luminacoin/lumina-core/types"
)

// DelegationID is the 256-bit identity of a delegation record, derived
// from the delegator, the validator and the delegation height.
type DelegationID = chainhash.Hash

// DelegationStatus is the lifecycle state of a delegation.
type DelegationStatus uint8

const (
	// StatusPending means the delegation has not reached maturity yet.
	StatusPending DelegationStatus = iota
	// StatusActive means the delegation earns rewards.
	StatusActive
	// StatusUnbonding means the delegator requested withdrawal and the
	// stake is waiting out the unbonding period.
	StatusUnbonding
	// StatusWithdrawn means the stake has been released.
	StatusWithdrawn
)

func (s DelegationStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusUnbonding:
		return "unbonding"
	case StatusWithdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

// DelegationRecord tracks one delegator's stake behind one validator.
type DelegationRecord struct {
	Delegator types.DelegatorID
	Validator types.ValidatorID

	Amount types.Amount

	DelegationHeight     uint32
	LastRewardHeight     uint32
	UnbondingStartHeight uint32

	Status   DelegationStatus
	Outpoint types.OutPoint

	PendingRewards types.Amount
}

// ID derives the record's identity.
func (d *DelegationRecord) ID() DelegationID {
	id, err := types.SigHash(d.Delegator, d.Validator, uint64(d.DelegationHeight))
	if err != nil {
		// The payload is fixed-shape; encoding cannot fail.
		panic(err)
	}
	return id
}

// IsActive reports whether the delegation currently earns rewards.
func (d *DelegationRecord) IsActive() bool {
	return d.Status == StatusActive
}

// open reports whether the delegation still counts toward the
// validator's aggregates (created but not yet unbonding or withdrawn).
func (d *DelegationRecord) open() bool {
	return d.Status == StatusPending || d.Status == StatusActive
}
