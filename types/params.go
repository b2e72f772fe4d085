package types

const (
	// MinPoolFeeBps and MaxPoolFeeBps bound validator pool fees, in
	// basis points.
	MinPoolFeeBps int64 = 0
	MaxPoolFeeBps int64 = 10000

	// MaxValidatorNameLen bounds validator names, in bytes.
	MaxValidatorNameLen = 64
)

// StakingParams holds the consensus parameters the trust-and-delegation
// core depends on.
type StakingParams struct {
	// MinValidatorStake is the minimum self-stake to register and stay
	// eligible.
	MinValidatorStake Amount

	// MinDelegation is the minimum amount of a single delegation.
	MinDelegation Amount

	// ValidatorMaturity is the number of blocks after registration
	// before a validator may become active.
	ValidatorMaturity uint32

	// DelegationMaturity is the number of blocks after delegation
	// before a delegation starts earning rewards.
	DelegationMaturity uint32

	// UnbondingPeriod is the cool-down, in blocks, before deactivated
	// validators and undelegated stakes are released.
	UnbondingPeriod uint32

	// JailDefaultBlocks is the default jail window applied by consensus
	// directives that do not specify one.
	JailDefaultBlocks uint32

	// HeartbeatInterval is the heartbeat cadence in blocks.
	HeartbeatInterval uint32

	// UptimeWindow is the rolling span of blocks over which expected and
	// received heartbeats are counted.
	UptimeWindow uint32

	// Trust tier uptime thresholds, in per-mille.
	BronzeUptime   uint32
	SilverUptime   uint32
	GoldUptime     uint32
	PlatinumUptime uint32

	// Trust tier reward multipliers, in percent.
	BronzeMultiplier   uint32
	SilverMultiplier   uint32
	GoldMultiplier     uint32
	PlatinumMultiplier uint32

	// MaxSeenHeartbeats caps the heartbeat replay set.
	MaxSeenHeartbeats int
}

// DefaultStakingParams returns the mainnet parameter set.
func DefaultStakingParams() StakingParams {
	return StakingParams{
		MinValidatorStake:  100_000 * Coin,
		MinDelegation:      1_000 * Coin,
		ValidatorMaturity:  2000,
		DelegationMaturity: 500,
		UnbondingPeriod:    259200,
		JailDefaultBlocks:  86400,
		HeartbeatInterval:  600,
		UptimeWindow:       86400,
		BronzeUptime:       950,
		SilverUptime:       970,
		GoldUptime:         990,
		PlatinumUptime:     999,
		BronzeMultiplier:   100,
		SilverMultiplier:   125,
		GoldMultiplier:     150,
		PlatinumMultiplier: 200,
		MaxSeenHeartbeats:  10000,
	}
}
