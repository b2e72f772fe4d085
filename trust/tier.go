package trust

import (
	"github.com/luminacoin/lumina-core/types"
)

// Tier is a discrete trust classification derived from observed uptime.
// Higher tiers earn larger reward multipliers.
type Tier uint8

const (
	TierNone Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "NONE"
	case TierBronze:
		return "BRONZE"
	case TierSilver:
		return "SILVER"
	case TierGold:
		return "GOLD"
	case TierPlatinum:
		return "PLATINUM"
	default:
		return "UNKNOWN"
	}
}

// Threshold returns the minimum uptime, in per-mille, required for the
// tier.
func (t Tier) Threshold(params *types.StakingParams) uint32 {
	switch t {
	case TierBronze:
		return params.BronzeUptime
	case TierSilver:
		return params.SilverUptime
	case TierGold:
		return params.GoldUptime
	case TierPlatinum:
		return params.PlatinumUptime
	default:
		return 0
	}
}

// Multiplier returns the tier's block reward multiplier in percent. A
// validator outside every tier earns nothing.
func (t Tier) Multiplier(params *types.StakingParams) uint32 {
	switch t {
	case TierBronze:
		return params.BronzeMultiplier
	case TierSilver:
		return params.SilverMultiplier
	case TierGold:
		return params.GoldMultiplier
	case TierPlatinum:
		return params.PlatinumMultiplier
	default:
		return 0
	}
}

// TierForUptime returns the highest tier whose threshold the given
// uptime, in per-mille, reaches.
func TierForUptime(uptime uint32, params *types.StakingParams) Tier {
	switch {
	case uptime >= params.PlatinumUptime:
		return TierPlatinum
	case uptime >= params.GoldUptime:
		return TierGold
	case uptime >= params.SilverUptime:
		return TierSilver
	case uptime >= params.BronzeUptime:
		return TierBronze
	default:
		return TierNone
	}
}

// TierInfo describes one tier for query surfaces.
type TierInfo struct {
	Tier               Tier
	UptimePerMille     uint32
	MultiplierPercent  uint32
}

// Tiers lists every earning tier with its threshold and multiplier.
func Tiers(params *types.StakingParams) []TierInfo {
	tiers := []Tier{TierBronze, TierSilver, TierGold, TierPlatinum}
	infos := make([]TierInfo, 0, len(tiers))
	for _, t := range tiers {
		infos = append(infos, TierInfo{
			Tier:              t,
			UptimePerMille:    t.Threshold(params),
			MultiplierPercent: t.Multiplier(params),
		})
	}
	return infos
}
