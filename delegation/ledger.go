package delegation

import (
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/btcsuite/btcd/btcec/v2"
	"go.uber.org/zap"

	"github.com/luminacoin/lumina-core/registry"
	"github.com/luminacoin/lumina-core/types"
)

// Ledger owns the delegation records and their reverse indices. The
// registry stays the authoritative owner of validator records; the ledger
// routes every aggregate change through it. Calls into the registry are
// made outside the ledger's lock so reward distribution can interleave
// with delegation changes without deadlocking.
type Ledger struct {
	mu sync.Mutex

	delegations map[DelegationID]*DelegationRecord
	byDelegator map[types.DelegatorID][]DelegationID
	byValidator map[types.ValidatorID][]DelegationID
	byOutpoint  map[types.OutPoint]DelegationID

	// order preserves creation order, which defines the enumeration
	// order of undelegation and the layout of the serialized stream.
	order []DelegationID

	params types.StakingParams
	height uint32

	registry *registry.Registry
	logger   *zap.Logger
}

func NewLedger(params types.StakingParams, reg *registry.Registry, logger *zap.Logger) *Ledger {
	return &Ledger{
		delegations: make(map[DelegationID]*DelegationRecord),
		byDelegator: make(map[types.DelegatorID][]DelegationID),
		byValidator: make(map[types.ValidatorID][]DelegationID),
		byOutpoint:  make(map[types.OutPoint]DelegationID),
		params:      params,
		registry:    reg,
		logger:      logger,
	}
}

// Height returns the last block height the ledger has seen.
func (l *Ledger) Height() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

// ProcessDelegation verifies a signed delegation request and installs a
// Pending record for it. The target validator must be registered and in
// Active or Pending status.
func (l *Ledger) ProcessDelegation(req *DelegationRequest, outpoint types.OutPoint) (DelegationID, error) {
	if !req.Verify() {
		return DelegationID{}, fmt.Errorf("%w: delegation request from %s",
			types.ErrBadSignature, req.Delegator)
	}
	if req.Amount < l.params.MinDelegation {
		return DelegationID{}, fmt.Errorf("%w: delegation %d < %d",
			types.ErrBelowMinimum, req.Amount, l.params.MinDelegation)
	}

	val, err := l.registry.Get(req.Validator)
	if err != nil {
		return DelegationID{}, err
	}
	if val.Status != registry.StatusActive && val.Status != registry.StatusPending {
		return DelegationID{}, fmt.Errorf("%w: cannot delegate to validator %s in status %s",
			types.ErrWrongStatus, val.ID, val.Status)
	}

	rec := &DelegationRecord{
		Delegator:        req.Delegator,
		Validator:        req.Validator,
		Amount:           req.Amount,
		DelegationHeight: req.Height,
		LastRewardHeight: req.Height,
		Status:           StatusPending,
		Outpoint:         outpoint,
	}
	id := rec.ID()

	l.mu.Lock()
	if _, ok := l.delegations[id]; ok {
		l.mu.Unlock()
		return DelegationID{}, fmt.Errorf("%w: delegation %s", types.ErrAlreadyExists, id)
	}
	newDelegator := !l.hasOpenDelegationLocked(req.Delegator, req.Validator)
	l.delegations[id] = rec
	l.order = append(l.order, id)
	l.byDelegator[rec.Delegator] = append(l.byDelegator[rec.Delegator], id)
	l.byValidator[rec.Validator] = append(l.byValidator[rec.Validator], id)
	if !outpoint.IsNull() {
		l.byOutpoint[outpoint] = id
	}
	l.mu.Unlock()

	if err := l.registry.AddDelegation(req.Validator, req.Amount, newDelegator); err != nil {
		l.removeRecord(id)
		return DelegationID{}, err
	}

	l.logger.Info("created delegation",
		zap.String("delegation", id.String()),
		zap.String("delegator", req.Delegator.String()),
		zap.String("validator", req.Validator.String()),
		zap.Int64("amount", req.Amount))

	return id, nil
}

// removeRecord backs out a freshly inserted record when the registry
// refuses the aggregate bump.
func (l *Ledger) removeRecord(id DelegationID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.delegations[id]
	if !ok {
		return
	}
	delete(l.delegations, id)
	l.order = dropID(l.order, id)
	l.byDelegator[rec.Delegator] = dropID(l.byDelegator[rec.Delegator], id)
	l.byValidator[rec.Validator] = dropID(l.byValidator[rec.Validator], id)
	if !rec.Outpoint.IsNull() {
		delete(l.byOutpoint, rec.Outpoint)
	}
}

func dropID(ids []DelegationID, id DelegationID) []DelegationID {
	for i := range ids {
		if ids[i] == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func (l *Ledger) hasOpenDelegationLocked(delegator types.DelegatorID, validator types.ValidatorID) bool {
	for _, id := range l.byDelegator[delegator] {
		rec, ok := l.delegations[id]
		if ok && rec.Validator == validator && rec.open() {
			return true
		}
	}
	return false
}

// ProcessUndelegation moves the delegator's Active delegations to the
// given validator into Unbonding. Records are consumed whole in
// enumeration order until the requested amount is covered; a zero amount
// consumes them all. Partial splits of a single record are not supported.
// Returns the total amount moved into unbonding.
func (l *Ledger) ProcessUndelegation(req *UndelegationRequest, pk *btcec.PublicKey) (types.Amount, error) {
	if !req.Verify(pk) {
		return 0, fmt.Errorf("%w: undelegation request from %s",
			types.ErrBadSignature, req.Delegator)
	}
	if req.Amount < 0 {
		return 0, fmt.Errorf("%w: undelegation amount %d", types.ErrBadParameter, req.Amount)
	}

	l.mu.Lock()

	var active []*DelegationRecord
	var held types.Amount
	for _, id := range l.byDelegator[req.Delegator] {
		rec, ok := l.delegations[id]
		if !ok || rec.Validator != req.Validator || rec.Status != StatusActive {
			continue
		}
		active = append(active, rec)
		held += rec.Amount
	}

	if len(active) == 0 {
		l.mu.Unlock()
		return 0, fmt.Errorf("%w: no active delegations from %s to %s",
			types.ErrNotFound, req.Delegator, req.Validator)
	}
	if req.Amount > held {
		l.mu.Unlock()
		return 0, fmt.Errorf("%w: undelegate %d > held %d",
			types.ErrInsufficientBalance, req.Amount, held)
	}

	var consumed types.Amount
	for _, rec := range active {
		if req.Amount != 0 && consumed >= req.Amount {
			break
		}
		rec.Status = StatusUnbonding
		rec.UnbondingStartHeight = l.height
		consumed += rec.Amount
	}

	delegatorGone := !l.hasOpenDelegationLocked(req.Delegator, req.Validator)
	l.mu.Unlock()

	if err := l.registry.RemoveDelegation(req.Validator, consumed, delegatorGone); err != nil {
		l.logger.Error("failed to remove delegation aggregate",
			zap.String("validator", req.Validator.String()),
			zap.Error(err))
	}

	l.logger.Info("started unbonding",
		zap.String("delegator", req.Delegator.String()),
		zap.String("validator", req.Validator.String()),
		zap.Int64("amount", consumed))

	return consumed, nil
}

// ProcessRewardClaim zeroes and returns the pending rewards on every
// Active delegation of the delegator, filtered to one validator when the
// request names one. Returns the total claimed and the number of records
// it came from.
func (l *Ledger) ProcessRewardClaim(req *RewardClaimRequest, pk *btcec.PublicKey) (types.Amount, int, error) {
	if !req.Verify(pk) {
		return 0, 0, fmt.Errorf("%w: reward claim from %s",
			types.ErrBadSignature, req.Delegator)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var total types.Amount
	count := 0
	for _, id := range l.byDelegator[req.Delegator] {
		rec, ok := l.delegations[id]
		if !ok || rec.Status != StatusActive {
			continue
		}
		if !req.Validator.IsZero() && rec.Validator != req.Validator {
			continue
		}
		if rec.PendingRewards > 0 {
			total += rec.PendingRewards
			rec.PendingRewards = 0
			rec.LastRewardHeight = l.height
			count++
		}
	}

	if total > 0 {
		l.logger.Info("claimed rewards",
			zap.String("delegator", req.Delegator.String()),
			zap.Int64("amount", total),
			zap.Int("records", count))
	}

	return total, count, nil
}

// DistributeBlockReward credits the delegators' share of a block reward
// proportionally across the validator's Active delegations. Shares are
// floored; the rounding residue, at most one unit per active record, is
// dropped so pending rewards stay monotone under distribution.
func (l *Ledger) DistributeBlockReward(validator types.ValidatorID, delegatorsShare types.Amount) {
	if delegatorsShare <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var totalActive types.Amount
	for _, id := range l.byValidator[validator] {
		rec, ok := l.delegations[id]
		if ok && rec.Status == StatusActive {
			totalActive += rec.Amount
		}
	}
	if totalActive == 0 {
		return
	}

	for _, id := range l.byValidator[validator] {
		rec, ok := l.delegations[id]
		if !ok || rec.Status != StatusActive {
			continue
		}
		share := sdkmath.NewInt(delegatorsShare).
			Mul(sdkmath.NewInt(rec.Amount)).
			Quo(sdkmath.NewInt(totalActive)).
			Int64()
		if share > 0 {
			rec.PendingRewards += share
		}
	}

	l.logger.Debug("distributed block reward",
		zap.String("validator", validator.String()),
		zap.Int64("delegators_share", delegatorsShare))
}

// AddRewards credits rewards to a single delegation.
func (l *Ledger) AddRewards(id DelegationID, rewards types.Amount) error {
	if rewards < 0 {
		return fmt.Errorf("%w: rewards %d", types.ErrBadParameter, rewards)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.delegations[id]
	if !ok {
		return fmt.Errorf("%w: delegation %s", types.ErrNotFound, id)
	}
	rec.PendingRewards += rewards
	return nil
}

// SetStatus forces a delegation into the given status.
func (l *Ledger) SetStatus(id DelegationID, status DelegationStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.delegations[id]
	if !ok {
		return fmt.Errorf("%w: delegation %s", types.ErrNotFound, id)
	}
	rec.Status = status
	return nil
}

// UpdateOutpoint re-indexes the delegation's stake UTXO after it moves.
func (l *Ledger) UpdateOutpoint(id DelegationID, newOutpoint types.OutPoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.delegations[id]
	if !ok {
		return fmt.Errorf("%w: delegation %s", types.ErrNotFound, id)
	}
	if !rec.Outpoint.IsNull() {
		delete(l.byOutpoint, rec.Outpoint)
	}
	rec.Outpoint = newOutpoint
	if !newOutpoint.IsNull() {
		l.byOutpoint[newOutpoint] = id
	}
	return nil
}

// OnBlock advances the ledger to the given height, maturing pending
// delegations and completing unbonding ones.
func (l *Ledger) OnBlock(height uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.height = height

	for id, rec := range l.delegations {
		switch rec.Status {
		case StatusPending:
			if height >= rec.DelegationHeight &&
				height-rec.DelegationHeight >= l.params.DelegationMaturity {
				rec.Status = StatusActive
				l.logger.Info("delegation matured to active",
					zap.String("delegation", id.String()))
			}
		case StatusUnbonding:
			if height >= rec.UnbondingStartHeight &&
				height-rec.UnbondingStartHeight >= l.params.UnbondingPeriod {
				rec.Status = StatusWithdrawn
				l.logger.Info("delegation unbonding complete",
					zap.String("delegation", id.String()))
			}
		}
	}
}

// Get returns a copy of the delegation record.
func (l *Ledger) Get(id DelegationID) (*DelegationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.delegations[id]
	if !ok {
		return nil, fmt.Errorf("%w: delegation %s", types.ErrNotFound, id)
	}
	cp := *rec
	return &cp, nil
}

// GetByOutpoint returns a copy of the delegation locked by the given
// outpoint.
func (l *Ledger) GetByOutpoint(op types.OutPoint) (*DelegationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.byOutpoint[op]
	if !ok {
		return nil, fmt.Errorf("%w: outpoint %s", types.ErrNotFound, op)
	}
	rec, ok := l.delegations[id]
	if !ok {
		return nil, fmt.Errorf("%w: delegation %s", types.ErrNotFound, id)
	}
	cp := *rec
	return &cp, nil
}

// IsDelegation reports whether the outpoint locks a delegation stake.
func (l *Ledger) IsDelegation(op types.OutPoint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.byOutpoint[op]
	return ok
}

// ForDelegator returns copies of all of a delegator's records in
// creation order.
func (l *Ledger) ForDelegator(delegator types.DelegatorID) []DelegationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result []DelegationRecord
	for _, id := range l.byDelegator[delegator] {
		if rec, ok := l.delegations[id]; ok {
			result = append(result, *rec)
		}
	}
	return result
}

// ForValidator returns copies of all records pointing at a validator in
// creation order.
func (l *Ledger) ForValidator(validator types.ValidatorID) []DelegationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result []DelegationRecord
	for _, id := range l.byValidator[validator] {
		if rec, ok := l.delegations[id]; ok {
			result = append(result, *rec)
		}
	}
	return result
}

// TotalForValidator sums the Active delegated amount behind a validator.
func (l *Ledger) TotalForValidator(validator types.ValidatorID) types.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total types.Amount
	for _, id := range l.byValidator[validator] {
		rec, ok := l.delegations[id]
		if ok && rec.Status == StatusActive {
			total += rec.Amount
		}
	}
	return total
}

// PendingForDelegator sums the delegator's unclaimed rewards.
func (l *Ledger) PendingForDelegator(delegator types.DelegatorID) types.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total types.Amount
	for _, id := range l.byDelegator[delegator] {
		if rec, ok := l.delegations[id]; ok {
			total += rec.PendingRewards
		}
	}
	return total
}

// Count returns the number of delegation records.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.delegations)
}

// ActiveCount returns the number of Active delegations.
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, rec := range l.delegations {
		if rec.Status == StatusActive {
			count++
		}
	}
	return count
}

// DelegatorCount returns the number of distinct delegators with at least
// one Active delegation to the validator.
func (l *Ledger) DelegatorCount(validator types.ValidatorID) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	unique := make(map[types.DelegatorID]struct{})
	for _, id := range l.byValidator[validator] {
		rec, ok := l.delegations[id]
		if ok && rec.Status == StatusActive {
			unique[rec.Delegator] = struct{}{}
		}
	}
	return len(unique)
}
