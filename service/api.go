package service

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"go.uber.org/zap"

	"github.com/luminacoin/lumina-core/delegation"
	"github.com/luminacoin/lumina-core/registry"
	"github.com/luminacoin/lumina-core/trust"
	"github.com/luminacoin/lumina-core/types"
)

// The operations below are the surface any RPC or wallet layer sits on.
// They carry the caller's key material explicitly; key storage belongs
// to the wallet, not to the core.

// RegisterResult reports a fresh validator registration.
type RegisterResult struct {
	ValidatorID types.ValidatorID
	Status      registry.ValidatorStatus
}

// RegisterValidator registers this node's validator key with the given
// self-stake, pool fee and display name.
func (app *App) RegisterValidator(
	selfStake types.Amount,
	feeBps int64,
	name string,
	stakeOutpoint types.OutPoint,
) (*RegisterResult, error) {
	pk := app.manager.ValidatorPubKey()
	if pk == nil {
		return nil, fmt.Errorf("%w: node is not configured as a validator", types.ErrWrongStatus)
	}

	id := types.NewKeyID(pk)
	height := app.registry.Height()
	rec := &registry.ValidatorRecord{
		ID:                 id,
		PubKey:             pk,
		SelfStake:          selfStake,
		FeeBps:             feeBps,
		Name:               name,
		RegistrationHeight: height,
		Status:             registry.StatusPending,
		StakeOutpoint:      stakeOutpoint,
	}
	if err := app.registry.Register(rec); err != nil {
		return nil, err
	}
	if err := app.scorer.Register(id, selfStake, feeBps, height); err != nil {
		app.logger.Debug("scorer registration skipped", zap.Error(err))
	}

	return &RegisterResult{ValidatorID: id, Status: registry.StatusPending}, nil
}

// FeeResult reports a pool fee change.
type FeeResult struct {
	OldFeeBps int64
	NewFeeBps int64
}

// SetValidatorFee updates the local validator's pool fee through a
// self-signed update.
func (app *App) SetValidatorFee(newFeeBps int64) (*FeeResult, error) {
	id := app.manager.ValidatorID()
	rec, err := app.registry.Get(id)
	if err != nil {
		return nil, err
	}

	update := &registry.ValidatorUpdate{
		ValidatorID: id,
		Kind:        registry.UpdateFee,
		NewValue:    newFeeBps,
		Height:      app.registry.Height(),
	}
	if err := app.manager.SignUpdate(update); err != nil {
		return nil, err
	}
	if err := app.ProcessValidatorUpdate(update); err != nil {
		return nil, err
	}

	return &FeeResult{OldFeeBps: rec.FeeBps, NewFeeBps: newFeeBps}, nil
}

// DelegateResult reports a fresh delegation.
type DelegateResult struct {
	DelegationID  delegation.DelegationID
	ValidatorFee  int64
	ValidatorName string
}

// Delegate stakes the given amount behind a validator on behalf of the
// key owner.
func (app *App) Delegate(
	sk *btcec.PrivateKey,
	validator types.ValidatorID,
	amount types.Amount,
	outpoint types.OutPoint,
) (*DelegateResult, error) {
	req := &delegation.DelegationRequest{
		Delegator:       types.NewKeyID(sk.PubKey()),
		DelegatorPubKey: sk.PubKey(),
		Validator:       validator,
		Amount:          amount,
		Height:          app.ledger.Height(),
	}
	if err := req.Sign(sk); err != nil {
		return nil, err
	}

	id, err := app.ledger.ProcessDelegation(req, outpoint)
	if err != nil {
		return nil, err
	}

	rec, err := app.registry.Get(validator)
	if err != nil {
		return nil, err
	}

	return &DelegateResult{
		DelegationID:  id,
		ValidatorFee:  rec.FeeBps,
		ValidatorName: rec.Name,
	}, nil
}

// UndelegateResult reports the amount entering unbonding.
type UndelegateResult struct {
	Amount          types.Amount
	UnbondingBlocks uint32
}

// Undelegate withdraws the key owner's stake from a validator. A zero
// amount withdraws everything.
func (app *App) Undelegate(
	sk *btcec.PrivateKey,
	validator types.ValidatorID,
	amount types.Amount,
) (*UndelegateResult, error) {
	req := &delegation.UndelegationRequest{
		Delegator: types.NewKeyID(sk.PubKey()),
		Validator: validator,
		Amount:    amount,
		Height:    app.ledger.Height(),
	}
	if err := req.Sign(sk); err != nil {
		return nil, err
	}

	consumed, err := app.ledger.ProcessUndelegation(req, sk.PubKey())
	if err != nil {
		return nil, err
	}

	return &UndelegateResult{
		Amount:          consumed,
		UnbondingBlocks: app.params.UnbondingPeriod,
	}, nil
}

// ClaimResult reports a reward claim.
type ClaimResult struct {
	TotalClaimed types.Amount
	Count        int
}

// ClaimRewards collects the key owner's pending rewards. A zero
// validator id claims across all validators.
func (app *App) ClaimRewards(sk *btcec.PrivateKey, validator types.ValidatorID) (*ClaimResult, error) {
	req := &delegation.RewardClaimRequest{
		Delegator: types.NewKeyID(sk.PubKey()),
		Validator: validator,
		Height:    app.ledger.Height(),
	}
	if err := req.Sign(sk); err != nil {
		return nil, err
	}

	total, count, err := app.ledger.ProcessRewardClaim(req, sk.PubKey())
	if err != nil {
		return nil, err
	}

	return &ClaimResult{TotalClaimed: total, Count: count}, nil
}

// MyDelegations lists all delegation records of a delegator.
func (app *App) MyDelegations(delegator types.DelegatorID) []delegation.DelegationRecord {
	return app.ledger.ForDelegator(delegator)
}

// MyValidator returns this node's validator record.
func (app *App) MyValidator() (*registry.ValidatorRecord, error) {
	id := app.manager.ValidatorID()
	if id.IsZero() {
		return nil, fmt.Errorf("%w: node is not configured as a validator", types.ErrWrongStatus)
	}
	return app.registry.Get(id)
}

// ListValidators lists validators, optionally restricted to active ones
// and to a maximum pool fee. A negative maxFee disables the fee filter.
func (app *App) ListValidators(maxFeeBps int64, activeOnly bool) []registry.ValidatorRecord {
	var recs []registry.ValidatorRecord
	if activeOnly {
		recs = app.registry.ActiveValidators()
	} else {
		recs = app.registry.All()
	}
	if maxFeeBps < 0 {
		return recs
	}

	filtered := recs[:0]
	for _, rec := range recs {
		if rec.FeeBps <= maxFeeBps {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

// ValidatorDetail joins a validator record with its trust information.
type ValidatorDetail struct {
	Record     registry.ValidatorRecord
	Trust      *trust.ValidatorInfo
	Tier       trust.Tier
	Multiplier uint32
}

// GetValidator returns a validator record together with its current
// trust tier and reward multiplier.
func (app *App) GetValidator(id types.ValidatorID) (*ValidatorDetail, error) {
	rec, err := app.registry.Get(id)
	if err != nil {
		return nil, err
	}

	detail := &ValidatorDetail{
		Record:     *rec,
		Tier:       trust.TierNone,
		Multiplier: 0,
	}
	if info, err := app.scorer.Get(id); err == nil {
		detail.Trust = info
		detail.Tier = app.scorer.TierOf(id)
		detail.Multiplier = app.scorer.RewardMultiplier(id)
	}
	return detail, nil
}

// Stats aggregates the core's totals for queries.
type Stats struct {
	Validators       int
	ActiveValidators int
	TotalSelfStake   types.Amount
	TotalDelegated   types.Amount
	ActiveDelegations int
	KnownPeers       int
	TierCounts       map[trust.Tier]int
}

// ValidatorStats returns the aggregate view of the validator set.
func (app *App) ValidatorStats() *Stats {
	stats := &Stats{
		TierCounts: make(map[trust.Tier]int),
	}
	for _, rec := range app.registry.All() {
		stats.Validators++
		if rec.Status == registry.StatusActive {
			stats.ActiveValidators++
		}
		stats.TotalSelfStake += rec.SelfStake
		stats.TotalDelegated += rec.TotalDelegated
	}
	stats.ActiveDelegations = app.ledger.ActiveCount()
	stats.KnownPeers = app.discovery.Count()
	for _, tier := range []trust.Tier{
		trust.TierNone, trust.TierBronze, trust.TierSilver, trust.TierGold, trust.TierPlatinum,
	} {
		stats.TierCounts[tier] = len(app.scorer.ByTier(tier))
	}
	return stats
}

// TrustTierInfo lists the tier thresholds and multipliers in force.
func (app *App) TrustTierInfo() []trust.TierInfo {
	return trust.Tiers(&app.params)
}
