package trust

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/luminacoin/lumina-core/types"
)

// ValidatorInfo carries the liveness counters tracked per validator.
type ValidatorInfo struct {
	ID types.ValidatorID

	StakeAmount types.Amount
	FeeBps      int64

	RegistrationHeight  uint32
	LastHeartbeatHeight uint32
	HeartbeatsExpected  uint32
	HeartbeatsReceived  uint32
	IsActive            bool

	LastKnownAddress    types.NetAddress
	LastCheckInTime     int64
	ConsecutiveCheckIns uint32
	MissedCheckIns      uint32
}

// UptimePerMille derives the validator's uptime in [0, 1000]. A validator
// with no expected heartbeats yet counts as fully up until its first
// window elapses.
func (i *ValidatorInfo) UptimePerMille() uint32 {
	if i.HeartbeatsExpected == 0 {
		return 1000
	}
	up := uint64(i.HeartbeatsReceived) * 1000 / uint64(i.HeartbeatsExpected)
	return uint32(up)
}

// Tier derives the validator's trust tier from its current counters.
// Tiers are never stored; they are recomputed on every query.
func (i *ValidatorInfo) Tier(params *types.StakingParams) Tier {
	if !i.IsActive || i.StakeAmount < params.MinValidatorStake {
		return TierNone
	}
	return TierForUptime(i.UptimePerMille(), params)
}

// RewardMultiplier returns the block reward multiplier, in percent, the
// validator's tier earns.
func (i *ValidatorInfo) RewardMultiplier(params *types.StakingParams) uint32 {
	return i.Tier(params).Multiplier(params)
}

// MeetsMinimumStake reports whether the tracked stake satisfies the
// minimum.
func (i *ValidatorInfo) MeetsMinimumStake(params *types.StakingParams) bool {
	return i.StakeAmount >= params.MinValidatorStake
}

// Eligible reports whether the validator may earn staking rewards at
// all: active, minimum stake held, and inside some tier.
func (i *ValidatorInfo) Eligible(params *types.StakingParams) bool {
	if !i.IsActive {
		return false
	}
	if !i.MeetsMinimumStake(params) {
		return false
	}
	return i.Tier(params) != TierNone
}

// AddressNotifier receives validator addresses learned from check-ins.
// It is implemented by the peer discovery manager.
type AddressNotifier interface {
	Process(addr types.NetAddress, validator types.ValidatorID) bool
}

// Scorer tracks heartbeat liveness per validator and derives trust
// tiers. A single mutex guards the map; the address notifier is invoked
// outside it.
type Scorer struct {
	mu sync.Mutex

	validators map[types.ValidatorID]*ValidatorInfo

	params types.StakingParams
	height uint32

	notifier AddressNotifier
	logger   *zap.Logger
}

func NewScorer(params types.StakingParams, notifier AddressNotifier, logger *zap.Logger) *Scorer {
	return &Scorer{
		validators: make(map[types.ValidatorID]*ValidatorInfo),
		params:     params,
		notifier:   notifier,
		logger:     logger,
	}
}

// Register starts tracking a validator.
func (s *Scorer) Register(id types.ValidatorID, stake types.Amount, feeBps int64, height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stake < s.params.MinValidatorStake {
		return fmt.Errorf("%w: stake %d < %d", types.ErrBelowMinimum, stake, s.params.MinValidatorStake)
	}
	if _, ok := s.validators[id]; ok {
		return fmt.Errorf("%w: validator %s", types.ErrAlreadyExists, id)
	}
	if feeBps < types.MinPoolFeeBps || feeBps > types.MaxPoolFeeBps {
		return fmt.Errorf("%w: pool fee %d bps", types.ErrBadParameter, feeBps)
	}

	s.validators[id] = &ValidatorInfo{
		ID:                  id,
		StakeAmount:         stake,
		FeeBps:              feeBps,
		RegistrationHeight:  height,
		LastHeartbeatHeight: height,
		IsActive:            true,
	}

	s.logger.Info("tracking validator liveness",
		zap.String("validator", id.String()),
		zap.Uint32("height", height))

	return nil
}

// UpdateStake tracks a stake change; dropping below the minimum
// deactivates the validator.
func (s *Scorer) UpdateStake(id types.ValidatorID, newStake types.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[id]
	if !ok {
		return fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	info.StakeAmount = newStake
	if newStake < s.params.MinValidatorStake {
		info.IsActive = false
		s.logger.Warn("validator deactivated, stake below minimum",
			zap.String("validator", id.String()))
	}
	return nil
}

// UpdateFee tracks a pool fee change.
func (s *Scorer) UpdateFee(id types.ValidatorID, feeBps int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[id]
	if !ok {
		return fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	if feeBps < types.MinPoolFeeBps || feeBps > types.MaxPoolFeeBps {
		return fmt.Errorf("%w: pool fee %d bps", types.ErrBadParameter, feeBps)
	}
	info.FeeBps = feeBps
	return nil
}

// Deactivate stops counting the validator toward expectations.
func (s *Scorer) Deactivate(id types.ValidatorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[id]
	if !ok {
		return fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	info.IsActive = false
	return nil
}

// Reactivate resumes liveness tracking for a validator. The heartbeat
// clock restarts from the current height so the downtime is not counted
// against the new window.
func (s *Scorer) Reactivate(id types.ValidatorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[id]
	if !ok {
		return fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	if !info.MeetsMinimumStake(&s.params) {
		return fmt.Errorf("%w: stake %d < %d", types.ErrBelowMinimum,
			info.StakeAmount, s.params.MinValidatorStake)
	}
	info.IsActive = true
	info.LastHeartbeatHeight = s.height
	return nil
}

// ProcessHeartbeat counts a verified heartbeat for the validator. The
// caller is responsible for signature verification and replay dedup. A
// heartbeat arriving before the interval has elapsed is rejected and not
// counted.
func (s *Scorer) ProcessHeartbeat(id types.ValidatorID, height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[id]
	if !ok {
		return fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	if !info.IsActive {
		return fmt.Errorf("%w: validator %s is not active", types.ErrWrongStatus, id)
	}
	if height < info.LastHeartbeatHeight+s.params.HeartbeatInterval {
		return fmt.Errorf("%w: heartbeat at height %d, last at %d",
			types.ErrTooEarly, height, info.LastHeartbeatHeight)
	}

	info.HeartbeatsReceived++
	info.LastHeartbeatHeight = height

	s.logger.Debug("processed heartbeat",
		zap.String("validator", id.String()),
		zap.Uint32("height", height))

	return nil
}

// UpdateExpectations recomputes the expected heartbeat count for every
// active validator at the new block height, bounded by the uptime
// window.
func (s *Scorer) UpdateExpectations(height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.height = height

	for _, info := range s.validators {
		if !info.IsActive {
			continue
		}
		if height <= info.RegistrationHeight {
			continue
		}
		window := height - info.RegistrationHeight
		if window > s.params.UptimeWindow {
			window = s.params.UptimeWindow
		}
		info.HeartbeatsExpected = window / s.params.HeartbeatInterval
	}
}

// RecordMissedCheckIns penalizes active validators that have been silent
// for more than two heartbeat intervals.
func (s *Scorer) RecordMissedCheckIns(height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, info := range s.validators {
		if !info.IsActive {
			continue
		}
		if height > info.LastHeartbeatHeight &&
			height-info.LastHeartbeatHeight > 2*s.params.HeartbeatInterval {
			info.MissedCheckIns++
			info.ConsecutiveCheckIns = 0
			s.logger.Debug("validator missed check-in",
				zap.String("validator", id.String()),
				zap.Uint32("missed_total", info.MissedCheckIns))
		}
	}
}

// UpdateAddress records the validator's advertised endpoint from a
// check-in and forwards it to peer discovery.
func (s *Scorer) UpdateAddress(id types.ValidatorID, addr types.NetAddress, timestamp int64) error {
	if !addr.IsValid() {
		return fmt.Errorf("%w: check-in address %q", types.ErrUnresolvable, addr.String())
	}

	s.mu.Lock()
	info, ok := s.validators[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	info.LastKnownAddress = addr
	info.LastCheckInTime = timestamp
	info.ConsecutiveCheckIns++
	checkIns := info.ConsecutiveCheckIns
	s.mu.Unlock()

	s.logger.Debug("validator checked in",
		zap.String("validator", id.String()),
		zap.String("address", addr.String()),
		zap.Uint32("consecutive", checkIns))

	if s.notifier != nil {
		s.notifier.Process(addr, id)
	}

	return nil
}

// Get returns a copy of the validator's liveness info.
func (s *Scorer) Get(id types.ValidatorID) (*ValidatorInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[id]
	if !ok {
		return nil, fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	cp := *info
	return &cp, nil
}

// TierOf returns the validator's current trust tier.
func (s *Scorer) TierOf(id types.ValidatorID) Tier {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[id]
	if !ok {
		return TierNone
	}
	return info.Tier(&s.params)
}

// RewardMultiplier returns the validator's reward multiplier in percent.
func (s *Scorer) RewardMultiplier(id types.ValidatorID) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[id]
	if !ok {
		return 0
	}
	return info.RewardMultiplier(&s.params)
}

// Eligible reports whether the validator may earn staking rewards.
func (s *Scorer) Eligible(id types.ValidatorID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[id]
	if !ok {
		return false
	}
	return info.Eligible(&s.params)
}

// ActiveValidators returns copies of every actively tracked validator.
func (s *Scorer) ActiveValidators() []ValidatorInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []ValidatorInfo
	for _, info := range s.validators {
		if info.IsActive {
			result = append(result, *info)
		}
	}
	return result
}

// ByTier returns copies of active validators currently in the given
// tier.
func (s *Scorer) ByTier(tier Tier) []ValidatorInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []ValidatorInfo
	for _, info := range s.validators {
		if info.IsActive && info.Tier(&s.params) == tier {
			result = append(result, *info)
		}
	}
	return result
}

// Addresses returns the known endpoints of active validators.
func (s *Scorer) Addresses() []types.NetAddress {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []types.NetAddress
	for _, info := range s.validators {
		if info.IsActive && info.LastKnownAddress.IsValid() {
			result = append(result, info.LastKnownAddress)
		}
	}
	return result
}

// TrustedAddresses returns endpoints of active validators at or above
// the given tier.
func (s *Scorer) TrustedAddresses(minTier Tier) []types.NetAddress {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []types.NetAddress
	for _, info := range s.validators {
		if info.IsActive && info.LastKnownAddress.IsValid() && info.Tier(&s.params) >= minTier {
			result = append(result, info.LastKnownAddress)
		}
	}
	return result
}

// IsValidatorAddress reports whether an endpoint belongs to an active
// validator.
func (s *Scorer) IsValidatorAddress(addr types.NetAddress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addr.String()
	for _, info := range s.validators {
		if info.IsActive && info.LastKnownAddress.String() == key {
			return true
		}
	}
	return false
}

// IDByAddress returns the validator owning an endpoint, if known.
func (s *Scorer) IDByAddress(addr types.NetAddress) (types.ValidatorID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addr.String()
	for id, info := range s.validators {
		if info.LastKnownAddress.String() == key {
			return id, true
		}
	}
	return types.ValidatorID{}, false
}
