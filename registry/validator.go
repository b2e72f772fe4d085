package registry

import (
	sdkmath "cosmossdk.io/math"
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/luminacoin/lumina-core/types"
)

// ValidatorStatus is the lifecycle state of a registered validator.
type ValidatorStatus uint8

const (
	// StatusPending means the registration has not reached maturity yet.
	StatusPending ValidatorStatus = iota
	// StatusActive means the validator is eligible for staking.
	StatusActive
	// StatusInactive means the validator voluntarily deactivated and the
	// unbonding period has completed.
	StatusInactive
	// StatusJailed means a consensus directive jailed the validator.
	StatusJailed
	// StatusUnbonding means the validator deactivated and is waiting out
	// the unbonding period.
	StatusUnbonding
)

func (s ValidatorStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusJailed:
		return "jailed"
	case StatusUnbonding:
		return "unbonding"
	default:
		return "unknown"
	}
}

// ValidatorRecord is the authoritative registration record of a validator.
// TotalDelegated and DelegatorCount are aggregates maintained by the
// delegation ledger through AddDelegation/RemoveDelegation.
type ValidatorRecord struct {
	ID     types.ValidatorID
	PubKey *btcec.PublicKey

	SelfStake types.Amount
	FeeBps    int64
	Name      string

	RegistrationHeight uint32
	LastActiveHeight   uint32
	JailReleaseHeight  uint32

	Status        ValidatorStatus
	StakeOutpoint types.OutPoint

	TotalDelegated types.Amount
	DelegatorCount int
}

// TotalStake is the self-stake plus all delegated stake; it drives the
// reward split proportion.
func (v *ValidatorRecord) TotalStake() types.Amount {
	return v.SelfStake + v.TotalDelegated
}

// MeetsMinimumStake reports whether the total stake satisfies the
// configured minimum.
func (v *ValidatorRecord) MeetsMinimumStake(params *types.StakingParams) bool {
	return v.TotalStake() >= params.MinValidatorStake
}

// EligibleForStaking reports whether the validator may produce blocks at
// the given height: active, minimum stake held, and past maturity.
func (v *ValidatorRecord) EligibleForStaking(params *types.StakingParams, height uint32) bool {
	if v.Status != StatusActive {
		return false
	}
	if !v.MeetsMinimumStake(params) {
		return false
	}
	return height >= v.RegistrationHeight &&
		height-v.RegistrationHeight >= params.ValidatorMaturity
}

// DelegatorsReward computes the delegators' post-fee share of a block
// reward. The proportional share is floored, then the pool fee is floored
// out of it; any rounding residue stays with the validator.
func (v *ValidatorRecord) DelegatorsReward(blockReward types.Amount) types.Amount {
	if v.TotalDelegated == 0 {
		return 0
	}
	total := v.TotalStake()
	if total == 0 {
		return 0
	}
	share := sdkmath.NewInt(blockReward).
		Mul(sdkmath.NewInt(v.TotalDelegated)).
		Quo(sdkmath.NewInt(total))
	fee := share.MulRaw(v.FeeBps).QuoRaw(types.MaxPoolFeeBps)
	return share.Sub(fee).Int64()
}

// ValidatorReward computes the validator's share of a block reward: its
// proportional stake share plus the pool fee on the delegators' share.
func (v *ValidatorRecord) ValidatorReward(blockReward types.Amount) types.Amount {
	return blockReward - v.DelegatorsReward(blockReward)
}
