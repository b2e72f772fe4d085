package service_test

import (
	"encoding/hex"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luminacoin/lumina-core/config"
	"github.com/luminacoin/lumina-core/heartbeat"
	"github.com/luminacoin/lumina-core/registry"
	"github.com/luminacoin/lumina-core/service"
	"github.com/luminacoin/lumina-core/store"
	"github.com/luminacoin/lumina-core/testutil"
	"github.com/luminacoin/lumina-core/trust"
	"github.com/luminacoin/lumina-core/types"
)

func testConfig(t *testing.T, home string, sk *btcec.PrivateKey) *config.Config {
	t.Helper()

	cfg := config.DefaultConfigWithHome(home)
	cfg.Staking.MinValidatorStake = 100
	cfg.Staking.MinDelegation = 10
	cfg.Staking.ValidatorMaturity = 10
	cfg.Staking.DelegationMaturity = 5
	cfg.Staking.UnbondingPeriod = 20
	cfg.Staking.JailDefaultBlocks = 50
	cfg.Staking.HeartbeatInterval = 10
	cfg.Staking.UptimeWindow = 100
	cfg.PersistInterval = 0
	cfg.NodeAddress = "10.0.0.1:18888"

	if sk != nil {
		keyFile := filepath.Join(home, "validator.key")
		require.NoError(t, os.MkdirAll(home, 0o700))
		require.NoError(t, os.WriteFile(keyFile, []byte(hex.EncodeToString(sk.Serialize())), 0o600))
		cfg.ValidatorKeyFile = keyFile
	}

	return &cfg
}

func newTestApp(t *testing.T, home string, sk *btcec.PrivateKey) (*service.App, store.Store) {
	t.Helper()

	require.NoError(t, os.MkdirAll(config.DataDir(home), 0o700))
	db, err := store.NewBboltStore(filepath.Join(home, "data", "staking.db"), "staking")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	app, err := service.NewApp(testConfig(t, home, sk), db, nil, nil, zap.NewNop())
	require.NoError(t, err)
	return app, db
}

func TestAppLifecycle(t *testing.T) {
	r := rand.New(rand.NewSource(60))
	sk, _ := testutil.GenRandomKeyPair(r, t)
	home := t.TempDir()

	app, db := newTestApp(t, home, sk)
	require.NoError(t, app.Start())
	require.True(t, app.IsRunning())
	require.Error(t, app.Start())

	// register this node's validator
	reg, err := app.RegisterValidator(200, 1000, "test-pool", testutil.GenRandomOutPoint(r))
	require.NoError(t, err)
	require.Equal(t, registry.StatusPending, reg.Status)
	require.Equal(t, types.NewKeyID(sk.PubKey()), reg.ValidatorID)

	app.OnBlock(10, testutil.GenRandomHash(r))
	rec, err := app.MyValidator()
	require.NoError(t, err)
	require.Equal(t, registry.StatusActive, rec.Status)

	// two delegators stake behind it
	d1, _ := testutil.GenRandomKeyPair(r, t)
	d2, _ := testutil.GenRandomKeyPair(r, t)
	res1, err := app.Delegate(d1, reg.ValidatorID, 100, testutil.GenRandomOutPoint(r))
	require.NoError(t, err)
	require.Equal(t, int64(1000), res1.ValidatorFee)
	require.Equal(t, "test-pool", res1.ValidatorName)
	_, err = app.Delegate(d2, reg.ValidatorID, 300, testutil.GenRandomOutPoint(r))
	require.NoError(t, err)

	app.OnBlock(15, testutil.GenRandomHash(r))

	// reward split for a 600 unit block reward
	validatorShare, err := app.DistributeReward(reg.ValidatorID, 600)
	require.NoError(t, err)
	require.Equal(t, types.Amount(240), validatorShare)

	claim, err := app.ClaimRewards(d1, types.ValidatorID{})
	require.NoError(t, err)
	require.Equal(t, types.Amount(90), claim.TotalClaimed)
	require.Equal(t, 1, claim.Count)

	claim, err = app.ClaimRewards(d1, types.ValidatorID{})
	require.NoError(t, err)
	require.Equal(t, types.Amount(0), claim.TotalClaimed)

	// d2 undelegates everything
	und, err := app.Undelegate(d2, reg.ValidatorID, 0)
	require.NoError(t, err)
	require.Equal(t, types.Amount(300), und.Amount)
	require.Equal(t, uint32(20), und.UnbondingBlocks)

	rec, _ = app.MyValidator()
	require.Equal(t, types.Amount(100), rec.TotalDelegated)
	require.Equal(t, 1, rec.DelegatorCount)

	// queries
	list := app.ListValidators(-1, true)
	require.Len(t, list, 1)
	require.Empty(t, app.ListValidators(999, true))

	// one expected heartbeat was missed by height 15, so no tier yet
	detail, err := app.GetValidator(reg.ValidatorID)
	require.NoError(t, err)
	require.NotNil(t, detail.Trust)
	require.Equal(t, trust.TierNone, detail.Tier)
	require.Equal(t, uint32(0), detail.Multiplier)

	stats := app.ValidatorStats()
	require.Equal(t, 1, stats.Validators)
	require.Equal(t, 1, stats.ActiveValidators)
	require.Equal(t, types.Amount(200), stats.TotalSelfStake)

	tiers := app.TrustTierInfo()
	require.Len(t, tiers, 4)
	require.Equal(t, uint32(950), tiers[0].UptimePerMille)
	require.Equal(t, uint32(200), tiers[3].MultiplierPercent)

	deleg := app.MyDelegations(types.NewKeyID(d1.PubKey()))
	require.Len(t, deleg, 1)

	// state survives a restart on the same database
	require.NoError(t, app.Stop())
	require.False(t, app.IsRunning())
	require.NoError(t, db.Close())

	restarted, _ := newTestApp(t, home, sk)
	require.NoError(t, restarted.Start())
	rec, err = restarted.MyValidator()
	require.NoError(t, err)
	require.Equal(t, registry.StatusActive, rec.Status)
	require.Equal(t, types.Amount(100), rec.TotalDelegated)
	require.Len(t, restarted.MyDelegations(types.NewKeyID(d1.PubKey())), 1)
	require.NoError(t, restarted.Stop())
}

func TestAppHeartbeatFlow(t *testing.T) {
	r := rand.New(rand.NewSource(61))
	sk, _ := testutil.GenRandomKeyPair(r, t)
	home := t.TempDir()

	app, _ := newTestApp(t, home, sk)
	require.NoError(t, app.Start())
	defer app.Stop()

	_, err := app.RegisterValidator(200, 1000, "hb-pool", testutil.GenRandomOutPoint(r))
	require.NoError(t, err)
	app.OnBlock(10, testutil.GenRandomHash(r))

	addr, err := types.ParseNetAddress("10.9.8.7:18888")
	require.NoError(t, err)
	hb := &heartbeat.Heartbeat{
		ValidatorID: types.NewKeyID(sk.PubKey()),
		BlockHeight: 20,
		BlockHash:   testutil.GenRandomHash(r),
		Timestamp:   1700000000,
		NodeAddress: addr,
		NodePort:    addr.Port,
	}
	require.NoError(t, hb.Sign(sk))

	require.NoError(t, app.ProcessHeartbeat(hb))
	require.ErrorIs(t, app.ProcessHeartbeat(hb), types.ErrReplay)
	require.True(t, app.Discovery().IsKnown(addr))
}

func TestAppJailUnjail(t *testing.T) {
	r := rand.New(rand.NewSource(62))
	sk, _ := testutil.GenRandomKeyPair(r, t)
	home := t.TempDir()

	app, _ := newTestApp(t, home, sk)
	require.NoError(t, app.Start())
	defer app.Stop()

	reg, err := app.RegisterValidator(200, 1000, "jail-pool", testutil.GenRandomOutPoint(r))
	require.NoError(t, err)
	app.OnBlock(1000, testutil.GenRandomHash(r))

	require.NoError(t, app.JailValidator(reg.ValidatorID, 500))
	require.Equal(t, trust.TierNone, app.Scorer().TierOf(reg.ValidatorID))

	app.OnBlock(1499, testutil.GenRandomHash(r))
	require.ErrorIs(t, app.UnjailValidator(reg.ValidatorID), types.ErrWrongStatus)

	app.OnBlock(1500, testutil.GenRandomHash(r))
	require.NoError(t, app.UnjailValidator(reg.ValidatorID))

	rec, err := app.MyValidator()
	require.NoError(t, err)
	require.Equal(t, registry.StatusActive, rec.Status)
	require.Equal(t, uint32(0), rec.JailReleaseHeight)
}

func TestAppValidatorUpdateMirrorsScorer(t *testing.T) {
	r := rand.New(rand.NewSource(63))
	sk, _ := testutil.GenRandomKeyPair(r, t)
	home := t.TempDir()

	app, _ := newTestApp(t, home, sk)
	require.NoError(t, app.Start())
	defer app.Stop()

	reg, err := app.RegisterValidator(200, 1000, "fee-pool", testutil.GenRandomOutPoint(r))
	require.NoError(t, err)
	app.OnBlock(10, testutil.GenRandomHash(r))

	fee, err := app.SetValidatorFee(2500)
	require.NoError(t, err)
	require.Equal(t, int64(1000), fee.OldFeeBps)
	require.Equal(t, int64(2500), fee.NewFeeBps)

	rec, _ := app.MyValidator()
	require.Equal(t, int64(2500), rec.FeeBps)
	info, err := app.Scorer().Get(reg.ValidatorID)
	require.NoError(t, err)
	require.Equal(t, int64(2500), info.FeeBps)
}
