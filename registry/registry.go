package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/luminacoin/lumina-core/types"
)

// Registry is the authoritative mapping from validator identity to
// registration record. A single mutex guards the map and the outpoint
// index; every operation either mutates atomically or returns a typed
// error with zero state changes.
type Registry struct {
	mu sync.Mutex

	validators map[types.ValidatorID]*ValidatorRecord
	byOutpoint map[types.OutPoint]types.ValidatorID

	params types.StakingParams
	height uint32

	logger *zap.Logger
}

func NewRegistry(params types.StakingParams, logger *zap.Logger) *Registry {
	return &Registry{
		validators: make(map[types.ValidatorID]*ValidatorRecord),
		byOutpoint: make(map[types.OutPoint]types.ValidatorID),
		params:     params,
		logger:     logger,
	}
}

// Params returns the staking parameters the registry was built with.
func (r *Registry) Params() types.StakingParams {
	return r.params
}

// Height returns the last block height the registry has seen.
func (r *Registry) Height() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.height
}

// Register installs a new validator record in Pending status. The record
// is validated against fee bounds, the minimum self-stake and the name
// length limit before anything is stored.
func (r *Registry) Register(rec *ValidatorRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.validators[rec.ID]; ok {
		return fmt.Errorf("%w: validator %s", types.ErrAlreadyExists, rec.ID)
	}
	if rec.FeeBps < types.MinPoolFeeBps || rec.FeeBps > types.MaxPoolFeeBps {
		return fmt.Errorf("%w: pool fee %d bps", types.ErrBadParameter, rec.FeeBps)
	}
	if rec.SelfStake < r.params.MinValidatorStake {
		return fmt.Errorf("%w: stake %d < %d", types.ErrBelowMinimum, rec.SelfStake, r.params.MinValidatorStake)
	}
	if len(rec.Name) > types.MaxValidatorNameLen {
		return fmt.Errorf("%w: name length %d > %d", types.ErrBadParameter, len(rec.Name), types.MaxValidatorNameLen)
	}

	stored := *rec
	stored.Status = StatusPending
	stored.TotalDelegated = 0
	stored.DelegatorCount = 0
	r.validators[stored.ID] = &stored

	if !stored.StakeOutpoint.IsNull() {
		r.byOutpoint[stored.StakeOutpoint] = stored.ID
	}

	r.logger.Info("registered validator",
		zap.String("validator", stored.ID.String()),
		zap.Int64("self_stake", stored.SelfStake),
		zap.Int64("fee_bps", stored.FeeBps))

	return nil
}

// ProcessUpdate verifies and applies a signed validator update.
func (r *Registry) ProcessUpdate(update *ValidatorUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.validators[update.ValidatorID]
	if !ok {
		return fmt.Errorf("%w: validator %s", types.ErrNotFound, update.ValidatorID)
	}

	if !update.Verify(rec.PubKey) {
		return fmt.Errorf("%w: update for validator %s", types.ErrBadSignature, update.ValidatorID)
	}

	switch update.Kind {
	case UpdateFee:
		if update.NewValue < types.MinPoolFeeBps || update.NewValue > types.MaxPoolFeeBps {
			return fmt.Errorf("%w: pool fee %d bps", types.ErrBadParameter, update.NewValue)
		}
		rec.FeeBps = update.NewValue
		r.logger.Info("updated validator fee",
			zap.String("validator", rec.ID.String()),
			zap.Int64("fee_bps", rec.FeeBps))

	case UpdateName:
		if len(update.NewName) > types.MaxValidatorNameLen {
			return fmt.Errorf("%w: name length %d > %d", types.ErrBadParameter, len(update.NewName), types.MaxValidatorNameLen)
		}
		rec.Name = update.NewName
		r.logger.Info("updated validator name",
			zap.String("validator", rec.ID.String()),
			zap.String("name", rec.Name))

	case UpdateDeactivate:
		rec.Status = StatusUnbonding
		rec.LastActiveHeight = r.height
		r.logger.Info("validator deactivating",
			zap.String("validator", rec.ID.String()))

	case UpdateReactivate:
		switch rec.Status {
		case StatusJailed:
			if r.height < rec.JailReleaseHeight {
				return fmt.Errorf("%w: validator %s jailed until height %d",
					types.ErrWrongStatus, rec.ID, rec.JailReleaseHeight)
			}
			rec.Status = StatusActive
			rec.JailReleaseHeight = 0
			rec.LastActiveHeight = r.height
		case StatusInactive:
			rec.Status = StatusActive
			rec.LastActiveHeight = r.height
		default:
			return fmt.Errorf("%w: cannot reactivate validator in status %s",
				types.ErrWrongStatus, rec.Status)
		}
		r.logger.Info("validator reactivated",
			zap.String("validator", rec.ID.String()))

	case UpdateIncreaseStake:
		if update.NewValue <= 0 {
			return fmt.Errorf("%w: stake delta %d", types.ErrBadParameter, update.NewValue)
		}
		rec.SelfStake += update.NewValue

	case UpdateDecreaseStake:
		if update.NewValue <= 0 {
			return fmt.Errorf("%w: stake delta %d", types.ErrBadParameter, update.NewValue)
		}
		if update.NewValue > rec.SelfStake {
			return fmt.Errorf("%w: decrease %d > self stake %d",
				types.ErrInsufficientBalance, update.NewValue, rec.SelfStake)
		}
		if rec.SelfStake-update.NewValue < r.params.MinValidatorStake {
			return fmt.Errorf("%w: resulting stake %d < %d",
				types.ErrBelowMinimum, rec.SelfStake-update.NewValue, r.params.MinValidatorStake)
		}
		rec.SelfStake -= update.NewValue

	default:
		return fmt.Errorf("%w: unknown update kind %d", types.ErrBadParameter, update.Kind)
	}

	return nil
}

// UpdateStakeOutpoint re-indexes the validator's stake UTXO after it
// moves.
func (r *Registry) UpdateStakeOutpoint(id types.ValidatorID, newOutpoint types.OutPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.validators[id]
	if !ok {
		return fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}

	if !rec.StakeOutpoint.IsNull() {
		delete(r.byOutpoint, rec.StakeOutpoint)
	}
	rec.StakeOutpoint = newOutpoint
	if !newOutpoint.IsNull() {
		r.byOutpoint[newOutpoint] = id
	}

	return nil
}

// Get returns a copy of the validator record.
func (r *Registry) Get(id types.ValidatorID) (*ValidatorRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.validators[id]
	if !ok {
		return nil, fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	cp := *rec
	return &cp, nil
}

// GetByOutpoint returns a copy of the validator record whose stake UTXO is
// the given outpoint.
func (r *Registry) GetByOutpoint(op types.OutPoint) (*ValidatorRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byOutpoint[op]
	if !ok {
		return nil, fmt.Errorf("%w: outpoint %s", types.ErrNotFound, op)
	}
	rec, ok := r.validators[id]
	if !ok {
		return nil, fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	cp := *rec
	return &cp, nil
}

// IsValidatorStake reports whether the outpoint locks a validator's
// self-stake.
func (r *Registry) IsValidatorStake(op types.OutPoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byOutpoint[op]
	return ok
}

// ActiveValidators returns copies of all validators in Active status.
func (r *Registry) ActiveValidators() []ValidatorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []ValidatorRecord
	for _, rec := range r.validators {
		if rec.Status == StatusActive {
			result = append(result, *rec)
		}
	}
	return result
}

// ByStakeDesc returns active validators sorted by total stake, largest
// first.
func (r *Registry) ByStakeDesc() []ValidatorRecord {
	result := r.ActiveValidators()
	sort.Slice(result, func(i, j int) bool {
		return result[i].TotalStake() > result[j].TotalStake()
	})
	return result
}

// ByMaxFee returns active validators whose pool fee is at or below the
// given cap, cheapest first.
func (r *Registry) ByMaxFee(maxFeeBps int64) []ValidatorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []ValidatorRecord
	for _, rec := range r.validators {
		if rec.Status == StatusActive && rec.FeeBps <= maxFeeBps {
			result = append(result, *rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FeeBps < result[j].FeeBps
	})
	return result
}

// SetStatus forces a validator into the given status. Transitioning into
// Active records the current height as the last active height.
func (r *Registry) SetStatus(id types.ValidatorID, status ValidatorStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.validators[id]
	if !ok {
		return fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	rec.Status = status
	if status == StatusActive {
		rec.LastActiveHeight = r.height
	}
	return nil
}

// Jail puts a validator into Jailed status until the given number of
// blocks has passed. A zero block count applies the default jail window.
func (r *Registry) Jail(id types.ValidatorID, blocks uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.validators[id]
	if !ok {
		return fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	if blocks == 0 {
		blocks = r.params.JailDefaultBlocks
	}
	rec.Status = StatusJailed
	rec.JailReleaseHeight = r.height + blocks

	r.logger.Warn("jailed validator",
		zap.String("validator", id.String()),
		zap.Uint32("release_height", rec.JailReleaseHeight))

	return nil
}

// Unjail releases a jailed validator once its jail window has expired.
func (r *Registry) Unjail(id types.ValidatorID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.validators[id]
	if !ok {
		return fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	if rec.Status != StatusJailed {
		return fmt.Errorf("%w: validator %s is not jailed", types.ErrWrongStatus, id)
	}
	if r.height < rec.JailReleaseHeight {
		return fmt.Errorf("%w: validator %s jailed until height %d",
			types.ErrWrongStatus, id, rec.JailReleaseHeight)
	}
	rec.Status = StatusActive
	rec.JailReleaseHeight = 0
	rec.LastActiveHeight = r.height

	r.logger.Info("unjailed validator", zap.String("validator", id.String()))

	return nil
}

// AddDelegation bumps the validator's delegated-stake aggregates. It is
// called by the delegation ledger, which is the only writer of these
// fields. newDelegator must be true when this is the delegator's first
// open delegation to the validator.
func (r *Registry) AddDelegation(id types.ValidatorID, amount types.Amount, newDelegator bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.validators[id]
	if !ok {
		return fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	if amount < 0 {
		return fmt.Errorf("%w: delegation amount %d", types.ErrBadParameter, amount)
	}
	rec.TotalDelegated += amount
	if newDelegator {
		rec.DelegatorCount++
	}
	return nil
}

// RemoveDelegation reverses AddDelegation. lastDelegation must be true
// when the delegator no longer has any open delegation to the validator.
func (r *Registry) RemoveDelegation(id types.ValidatorID, amount types.Amount, lastDelegation bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.validators[id]
	if !ok {
		return fmt.Errorf("%w: validator %s", types.ErrNotFound, id)
	}
	if amount < 0 {
		return fmt.Errorf("%w: delegation amount %d", types.ErrBadParameter, amount)
	}
	if amount > rec.TotalDelegated {
		return fmt.Errorf("%w: remove %d > delegated %d",
			types.ErrInsufficientBalance, amount, rec.TotalDelegated)
	}
	rec.TotalDelegated -= amount
	if lastDelegation && rec.DelegatorCount > 0 {
		rec.DelegatorCount--
	}
	return nil
}

// OnBlock advances the registry to the given height: pending validators
// past maturity with sufficient stake become Active, unbonding validators
// past the unbonding period become Inactive, and expired jail windows are
// logged (unjailing stays an explicit operation).
func (r *Registry) OnBlock(height uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.height = height

	for id, rec := range r.validators {
		switch rec.Status {
		case StatusPending:
			if height >= rec.RegistrationHeight &&
				height-rec.RegistrationHeight >= r.params.ValidatorMaturity &&
				rec.SelfStake >= r.params.MinValidatorStake {
				rec.Status = StatusActive
				rec.LastActiveHeight = height
				r.logger.Info("validator matured to active",
					zap.String("validator", id.String()),
					zap.Uint32("height", height))
			}

		case StatusUnbonding:
			if height >= rec.LastActiveHeight &&
				height-rec.LastActiveHeight >= r.params.UnbondingPeriod {
				rec.Status = StatusInactive
				r.logger.Info("validator unbonding complete",
					zap.String("validator", id.String()))
			}

		case StatusJailed:
			if height >= rec.JailReleaseHeight {
				r.logger.Info("validator jail window expired",
					zap.String("validator", id.String()),
					zap.Uint32("release_height", rec.JailReleaseHeight))
			}
		}
	}
}

// Count returns the number of registered validators.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.validators)
}

// ActiveCount returns the number of validators in Active status.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, rec := range r.validators {
		if rec.Status == StatusActive {
			count++
		}
	}
	return count
}

// All returns copies of every record, ordered by id. Used by stats and
// persistence.
func (r *Registry) All() []ValidatorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allLocked()
}

func (r *Registry) allLocked() []ValidatorRecord {
	result := make([]ValidatorRecord, 0, len(r.validators))
	for _, rec := range r.validators {
		result = append(result, *rec)
	}
	sort.Slice(result, func(i, j int) bool {
		return string(result[i].ID.Bytes()) < string(result[j].ID.Bytes())
	})
	return result
}
