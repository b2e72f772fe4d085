package delegation_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luminacoin/lumina-core/delegation"
	"github.com/luminacoin/lumina-core/registry"
	"github.com/luminacoin/lumina-core/testutil"
	"github.com/luminacoin/lumina-core/types"
)

func testParams() types.StakingParams {
	params := types.DefaultStakingParams()
	params.MinValidatorStake = 100
	params.MinDelegation = 10
	params.ValidatorMaturity = 10
	params.DelegationMaturity = 5
	params.UnbondingPeriod = 20
	params.HeartbeatInterval = 10
	params.UptimeWindow = 100
	return params
}

type fixture struct {
	reg    *registry.Registry
	ledger *delegation.Ledger
	valRec *registry.ValidatorRecord
}

// newFixture registers an active validator with self-stake 200 and fee
// 1000 bps (10%).
func newFixture(t *testing.T, r *rand.Rand) *fixture {
	t.Helper()

	params := testParams()
	reg := registry.NewRegistry(params, zap.NewNop())
	ledger := delegation.NewLedger(params, reg, zap.NewNop())

	rec, _ := testutil.GenRandomValidatorRecord(r, t, 100, 0)
	rec.SelfStake = 200
	rec.FeeBps = 1000
	require.NoError(t, reg.Register(rec))

	reg.OnBlock(10)
	ledger.OnBlock(10)
	got, err := reg.Get(rec.ID)
	require.NoError(t, err)
	require.Equal(t, registry.StatusActive, got.Status)

	return &fixture{reg: reg, ledger: ledger, valRec: rec}
}

func (fx *fixture) delegate(t *testing.T, r *rand.Rand, sk *btcec.PrivateKey, amount types.Amount) delegation.DelegationID {
	t.Helper()

	req := &delegation.DelegationRequest{
		Delegator:       types.NewKeyID(sk.PubKey()),
		DelegatorPubKey: sk.PubKey(),
		Validator:       fx.valRec.ID,
		Amount:          amount,
		Height:          fx.ledger.Height(),
	}
	require.NoError(t, req.Sign(sk))

	id, err := fx.ledger.ProcessDelegation(req, testutil.GenRandomOutPoint(r))
	require.NoError(t, err)
	return id
}

func (fx *fixture) advance(height uint32) {
	fx.reg.OnBlock(height)
	fx.ledger.OnBlock(height)
}

// checkAggregates asserts the cross-component invariants between the
// ledger and the registry for the fixture validator.
func (fx *fixture) checkAggregates(t *testing.T) {
	t.Helper()

	var open types.Amount
	openDelegators := make(map[types.DelegatorID]struct{})
	for _, rec := range fx.ledger.ForValidator(fx.valRec.ID) {
		require.GreaterOrEqual(t, rec.PendingRewards, types.Amount(0))
		if rec.Status == delegation.StatusPending || rec.Status == delegation.StatusActive {
			open += rec.Amount
			openDelegators[rec.Delegator] = struct{}{}
		}
	}

	val, err := fx.reg.Get(fx.valRec.ID)
	require.NoError(t, err)
	require.Equal(t, open, val.TotalDelegated)
	require.Equal(t, len(openDelegators), val.DelegatorCount)
}

func TestDelegateRewardSplit(t *testing.T) {
	r := rand.New(rand.NewSource(20))
	fx := newFixture(t, r)

	d1, _ := testutil.GenRandomKeyPair(r, t)
	d2, _ := testutil.GenRandomKeyPair(r, t)

	fx.delegate(t, r, d1, 100)
	fx.delegate(t, r, d2, 300)
	fx.checkAggregates(t)

	fx.advance(15) // past delegation maturity
	require.Equal(t, types.Amount(400), fx.ledger.TotalForValidator(fx.valRec.ID))
	require.Equal(t, 2, fx.ledger.DelegatorCount(fx.valRec.ID))
	fx.checkAggregates(t)

	// block reward 600: delegators' pre-fee share 400, fee 40
	val, err := fx.reg.Get(fx.valRec.ID)
	require.NoError(t, err)
	delegatorsShare := val.DelegatorsReward(600)
	require.Equal(t, types.Amount(360), delegatorsShare)
	require.Equal(t, types.Amount(240), val.ValidatorReward(600))

	fx.ledger.DistributeBlockReward(fx.valRec.ID, delegatorsShare)

	require.Equal(t, types.Amount(90), fx.ledger.PendingForDelegator(types.NewKeyID(d1.PubKey())))
	require.Equal(t, types.Amount(270), fx.ledger.PendingForDelegator(types.NewKeyID(d2.PubKey())))
	fx.checkAggregates(t)
}

func TestDelegationValidation(t *testing.T) {
	r := rand.New(rand.NewSource(21))
	fx := newFixture(t, r)

	sk, pk := testutil.GenRandomKeyPair(r, t)

	// below the minimum by one unit
	req := &delegation.DelegationRequest{
		Delegator:       types.NewKeyID(pk),
		DelegatorPubKey: pk,
		Validator:       fx.valRec.ID,
		Amount:          9,
		Height:          fx.ledger.Height(),
	}
	require.NoError(t, req.Sign(sk))
	_, err := fx.ledger.ProcessDelegation(req, testutil.GenRandomOutPoint(r))
	require.ErrorIs(t, err, types.ErrBelowMinimum)

	// exactly the minimum
	req.Amount = 10
	require.NoError(t, req.Sign(sk))
	_, err = fx.ledger.ProcessDelegation(req, testutil.GenRandomOutPoint(r))
	require.NoError(t, err)

	// duplicate id (same delegator, validator and height)
	require.NoError(t, req.Sign(sk))
	_, err = fx.ledger.ProcessDelegation(req, testutil.GenRandomOutPoint(r))
	require.ErrorIs(t, err, types.ErrAlreadyExists)

	// tampered signature
	req2 := &delegation.DelegationRequest{
		Delegator:       types.NewKeyID(pk),
		DelegatorPubKey: pk,
		Validator:       fx.valRec.ID,
		Amount:          50,
		Height:          fx.ledger.Height(),
	}
	require.NoError(t, req2.Sign(sk))
	req2.Amount = 60
	_, err = fx.ledger.ProcessDelegation(req2, testutil.GenRandomOutPoint(r))
	require.ErrorIs(t, err, types.ErrBadSignature)

	// unknown validator
	req3 := &delegation.DelegationRequest{
		Delegator:       types.NewKeyID(pk),
		DelegatorPubKey: pk,
		Validator:       types.ValidatorID{0x01},
		Amount:          50,
		Height:          fx.ledger.Height(),
	}
	require.NoError(t, req3.Sign(sk))
	_, err = fx.ledger.ProcessDelegation(req3, testutil.GenRandomOutPoint(r))
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestUndelegateAll(t *testing.T) {
	r := rand.New(rand.NewSource(22))
	fx := newFixture(t, r)

	d1, _ := testutil.GenRandomKeyPair(r, t)
	d2, _ := testutil.GenRandomKeyPair(r, t)
	id1 := fx.delegate(t, r, d1, 100)
	fx.delegate(t, r, d2, 300)
	fx.advance(15)

	req := &delegation.UndelegationRequest{
		Delegator: types.NewKeyID(d1.PubKey()),
		Validator: fx.valRec.ID,
		Amount:    0,
		Height:    15,
	}
	require.NoError(t, req.Sign(d1))

	consumed, err := fx.ledger.ProcessUndelegation(req, d1.PubKey())
	require.NoError(t, err)
	require.Equal(t, types.Amount(100), consumed)

	rec, err := fx.ledger.Get(id1)
	require.NoError(t, err)
	require.Equal(t, delegation.StatusUnbonding, rec.Status)
	require.Equal(t, uint32(15), rec.UnbondingStartHeight)

	val, err := fx.reg.Get(fx.valRec.ID)
	require.NoError(t, err)
	require.Equal(t, types.Amount(300), val.TotalDelegated)
	require.Equal(t, 1, val.DelegatorCount)
	fx.checkAggregates(t)

	// withdrawal completes after the unbonding period
	fx.advance(15 + 20)
	rec, err = fx.ledger.Get(id1)
	require.NoError(t, err)
	require.Equal(t, delegation.StatusWithdrawn, rec.Status)

	// nothing left to undelegate
	require.NoError(t, req.Sign(d1))
	_, err = fx.ledger.ProcessUndelegation(req, d1.PubKey())
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestUndelegateWholeRecordOrder(t *testing.T) {
	r := rand.New(rand.NewSource(23))
	fx := newFixture(t, r)

	d1, _ := testutil.GenRandomKeyPair(r, t)
	firstID := fx.delegate(t, r, d1, 100)
	fx.advance(12)
	secondID := fx.delegate(t, r, d1, 200)
	fx.advance(20)
	fx.checkAggregates(t)

	// requesting 50 consumes the first record whole
	req := &delegation.UndelegationRequest{
		Delegator: types.NewKeyID(d1.PubKey()),
		Validator: fx.valRec.ID,
		Amount:    50,
		Height:    20,
	}
	require.NoError(t, req.Sign(d1))
	consumed, err := fx.ledger.ProcessUndelegation(req, d1.PubKey())
	require.NoError(t, err)
	require.Equal(t, types.Amount(100), consumed)

	first, err := fx.ledger.Get(firstID)
	require.NoError(t, err)
	require.Equal(t, delegation.StatusUnbonding, first.Status)
	second, err := fx.ledger.Get(secondID)
	require.NoError(t, err)
	require.Equal(t, delegation.StatusActive, second.Status)
	fx.checkAggregates(t)

	// requesting more than held changes nothing
	req.Amount = 500
	require.NoError(t, req.Sign(d1))
	_, err = fx.ledger.ProcessUndelegation(req, d1.PubKey())
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
	second, _ = fx.ledger.Get(secondID)
	require.Equal(t, delegation.StatusActive, second.Status)
	fx.checkAggregates(t)
}

func TestClaimRewardsIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(24))
	fx := newFixture(t, r)

	d1, _ := testutil.GenRandomKeyPair(r, t)
	fx.delegate(t, r, d1, 400)
	fx.advance(15)

	fx.ledger.DistributeBlockReward(fx.valRec.ID, 360)

	claim := &delegation.RewardClaimRequest{
		Delegator: types.NewKeyID(d1.PubKey()),
		Height:    15,
	}
	require.NoError(t, claim.Sign(d1))

	total, count, err := fx.ledger.ProcessRewardClaim(claim, d1.PubKey())
	require.NoError(t, err)
	require.Equal(t, types.Amount(360), total)
	require.Equal(t, 1, count)

	// second claim with no intervening distribution returns zero
	total, count, err = fx.ledger.ProcessRewardClaim(claim, d1.PubKey())
	require.NoError(t, err)
	require.Equal(t, types.Amount(0), total)
	require.Equal(t, 0, count)
	fx.checkAggregates(t)
}

func TestDistributeFloorResidue(t *testing.T) {
	r := rand.New(rand.NewSource(25))
	fx := newFixture(t, r)

	keys := make([]*btcec.PrivateKey, 3)
	amounts := []types.Amount{33, 33, 34}
	for i := range keys {
		keys[i], _ = testutil.GenRandomKeyPair(r, t)
		fx.delegate(t, r, keys[i], amounts[i])
	}
	fx.advance(15)

	share := types.Amount(100)
	fx.ledger.DistributeBlockReward(fx.valRec.ID, share)

	var distributed types.Amount
	for i := range keys {
		distributed += fx.ledger.PendingForDelegator(types.NewKeyID(keys[i].PubKey()))
	}

	// floor division: distributed total is within active_count-1 of the share
	require.LessOrEqual(t, distributed, share)
	require.GreaterOrEqual(t, distributed, share-types.Amount(len(keys)-1))

	// distributing to a validator with no active delegations is a no-op
	other := types.ValidatorID{0x02}
	fx.ledger.DistributeBlockReward(other, 100)
	require.Equal(t, types.Amount(0), fx.ledger.TotalForValidator(other))
}

func TestOutpointIndex(t *testing.T) {
	r := rand.New(rand.NewSource(26))
	fx := newFixture(t, r)

	d1, _ := testutil.GenRandomKeyPair(r, t)
	id := fx.delegate(t, r, d1, 100)

	rec, err := fx.ledger.Get(id)
	require.NoError(t, err)
	require.True(t, fx.ledger.IsDelegation(rec.Outpoint))

	byOp, err := fx.ledger.GetByOutpoint(rec.Outpoint)
	require.NoError(t, err)
	require.Equal(t, rec.Outpoint, byOp.Outpoint)
	require.Equal(t, id, byOp.ID())

	newOp := testutil.GenRandomOutPoint(r)
	require.NoError(t, fx.ledger.UpdateOutpoint(id, newOp))
	require.False(t, fx.ledger.IsDelegation(rec.Outpoint))
	require.True(t, fx.ledger.IsDelegation(newOp))
}

// FuzzLedgerRoundTrip checks serialize-then-deserialize reproduces the
// records and that the rebuilt indices agree with the originals.
func FuzzLedgerRoundTrip(f *testing.F) {
	testutil.AddRandomSeedsToFuzzer(f, 10)
	f.Fuzz(func(t *testing.T, seed int64) {
		r := rand.New(rand.NewSource(seed))
		fx := newFixture(t, r)

		keys := make([]*btcec.PrivateKey, 1+r.Intn(4))
		var delegators []types.DelegatorID
		for i := range keys {
			keys[i], _ = testutil.GenRandomKeyPair(r, t)
			delegators = append(delegators, types.NewKeyID(keys[i].PubKey()))
			fx.delegate(t, r, keys[i], types.Amount(10+r.Intn(500)))
		}
		fx.advance(15)
		fx.ledger.DistributeBlockReward(fx.valRec.ID, types.Amount(r.Intn(10000)))

		var buf bytes.Buffer
		require.NoError(t, fx.ledger.Serialize(&buf))

		restored := delegation.NewLedger(testParams(), fx.reg, zap.NewNop())
		require.NoError(t, restored.Deserialize(bytes.NewReader(buf.Bytes())))

		require.Equal(t, fx.ledger.Height(), restored.Height())
		require.Equal(t, fx.ledger.Count(), restored.Count())
		require.Equal(t, fx.ledger.ActiveCount(), restored.ActiveCount())
		require.Equal(t,
			fx.ledger.TotalForValidator(fx.valRec.ID),
			restored.TotalForValidator(fx.valRec.ID))

		for _, delegator := range delegators {
			require.Equal(t,
				fx.ledger.ForDelegator(delegator),
				restored.ForDelegator(delegator))
		}
		require.Equal(t,
			fx.ledger.ForValidator(fx.valRec.ID),
			restored.ForValidator(fx.valRec.ID))
	})
}
