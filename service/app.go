package service

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/luminacoin/lumina-core/config"
	"github.com/luminacoin/lumina-core/delegation"
	"github.com/luminacoin/lumina-core/heartbeat"
	"github.com/luminacoin/lumina-core/metrics"
	"github.com/luminacoin/lumina-core/peers"
	"github.com/luminacoin/lumina-core/registry"
	"github.com/luminacoin/lumina-core/store"
	"github.com/luminacoin/lumina-core/trust"
	"github.com/luminacoin/lumina-core/types"
)

var (
	registryStateKey = []byte("state/registry")
	ledgerStateKey   = []byte("state/delegations")
)

const peerDrainInterval = 30 * time.Second

// ConnManager is the node's connection surface; discovered validator
// peers are handed to it as addnode targets.
type ConnManager interface {
	AddNode(addr string) error
}

// App owns the trust-and-delegation core and wires its components
// together: registry, delegation ledger, trust scorer, heartbeat manager
// and peer discovery. The P2P transport, connection manager and the
// chain itself stay outside, reached through injected interfaces.
type App struct {
	isStarted *atomic.Bool

	wg   sync.WaitGroup
	quit chan struct{}

	// blockMu serializes block notifications; the block-tick driver is
	// single-threaded per height.
	blockMu sync.Mutex

	cfg    *config.Config
	params types.StakingParams
	logger *zap.Logger

	registry  *registry.Registry
	ledger    *delegation.Ledger
	scorer    *trust.Scorer
	manager   *heartbeat.Manager
	discovery *peers.Discovery

	db      store.Store
	metrics *metrics.StakingMetrics
	connMgr ConnManager
}

// NewApp builds the core from config. The broadcast sink and connection
// manager may be nil for nodes that neither validate nor auto-connect.
func NewApp(
	cfg *config.Config,
	db store.Store,
	sink heartbeat.Broadcaster,
	connMgr ConnManager,
	logger *zap.Logger,
) (*App, error) {
	params := cfg.Staking.Params()

	discovery := peers.NewDiscovery(cfg.PeerFile, logger)
	reg := registry.NewRegistry(params, logger)
	ledger := delegation.NewLedger(params, reg, logger)
	scorer := trust.NewScorer(params, discovery, logger)
	manager := heartbeat.NewManager(params, reg, scorer, sink, logger)

	app := &App{
		isStarted: atomic.NewBool(false),
		quit:      make(chan struct{}),
		cfg:       cfg,
		params:    params,
		logger:    logger,
		registry:  reg,
		ledger:    ledger,
		scorer:    scorer,
		manager:   manager,
		discovery: discovery,
		db:        db,
		metrics:   metrics.NewStakingMetrics(),
		connMgr:   connMgr,
	}

	if cfg.ValidatorKeyFile != "" {
		sk, err := loadValidatorKey(cfg.ValidatorKeyFile)
		if err != nil {
			return nil, err
		}
		manager.SetValidatorKey(sk)
	}
	if cfg.NodeAddress != "" {
		addr, err := types.ParseNetAddress(cfg.NodeAddress)
		if err != nil {
			return nil, err
		}
		manager.SetNodeAddress(addr)
	}

	return app, nil
}

func loadValidatorKey(path string) (*btcec.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read validator key file: %w", err)
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode validator key: %w", err)
	}
	sk, _ := btcec.PrivKeyFromBytes(keyBytes)
	return sk, nil
}

// Start loads persisted state and launches the background loops.
func (app *App) Start() error {
	if app.isStarted.Swap(true) {
		return fmt.Errorf("the staking core is already started")
	}

	app.logger.Info("starting staking core")

	if err := app.LoadState(); err != nil {
		return err
	}
	if err := app.discovery.LoadFromFile(); err != nil {
		return err
	}

	if app.cfg.PersistInterval > 0 {
		app.wg.Add(1)
		go app.persistLoop()
	}
	if app.connMgr != nil {
		app.wg.Add(1)
		go app.peerDrainLoop()
	}

	return nil
}

// IsRunning reports whether the core has been started.
func (app *App) IsRunning() bool {
	return app.isStarted.Load()
}

// Stop shuts down the loops and flushes state.
func (app *App) Stop() error {
	if !app.isStarted.Swap(false) {
		return fmt.Errorf("the staking core has already stopped")
	}

	app.logger.Info("stopping staking core")

	close(app.quit)
	app.wg.Wait()

	if err := app.SaveState(); err != nil {
		return err
	}
	return app.discovery.SaveToFile()
}

func (app *App) persistLoop() {
	defer app.wg.Done()

	ticker := time.NewTicker(app.cfg.PersistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := retry.Do(
				app.SaveState,
				retry.Attempts(3),
				retry.LastErrorOnly(true),
			)
			if err != nil {
				app.logger.Error("failed to persist staking state", zap.Error(err))
			}
		case <-app.quit:
			return
		}
	}
}

func (app *App) peerDrainLoop() {
	defer app.wg.Done()

	ticker := time.NewTicker(peerDrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, addr := range app.discovery.DrainPending() {
				if err := app.connMgr.AddNode(addr.String()); err != nil {
					app.logger.Warn("failed to add validator peer",
						zap.String("address", addr.String()),
						zap.Error(err))
					continue
				}
				app.logger.Info("auto-added validator peer",
					zap.String("address", addr.String()))
			}
		case <-app.quit:
			return
		}
	}
}

// OnBlock drives every component at a new block height. Callers must
// serialize block notifications; the internal mutex enforces it.
func (app *App) OnBlock(height uint32, blockHash chainhash.Hash) {
	app.blockMu.Lock()
	defer app.blockMu.Unlock()

	app.registry.OnBlock(height)
	app.ledger.OnBlock(height)
	app.scorer.UpdateExpectations(height)
	app.scorer.RecordMissedCheckIns(height)
	app.manager.OnBlock(height, blockHash)

	app.updateMetrics(height)
}

// DistributeReward splits a block reward for the coinstake winner: the
// delegators' post-fee share is credited proportionally across their
// active delegations and the validator's share is returned to the
// caller for the coinstake output.
func (app *App) DistributeReward(validator types.ValidatorID, blockReward types.Amount) (types.Amount, error) {
	rec, err := app.registry.Get(validator)
	if err != nil {
		return 0, err
	}

	delegatorsShare := rec.DelegatorsReward(blockReward)
	if delegatorsShare > 0 {
		app.ledger.DistributeBlockReward(validator, delegatorsShare)
		app.metrics.AddRewardsDistributed(delegatorsShare)
	}

	return rec.ValidatorReward(blockReward), nil
}

// ProcessHeartbeat feeds an inbound heartbeat through the manager and
// keeps the acceptance counters.
func (app *App) ProcessHeartbeat(hb *heartbeat.Heartbeat) error {
	err := app.manager.ProcessHeartbeat(hb)
	switch {
	case err == nil:
		app.metrics.IncrHeartbeatsAccepted()
	case errors.Is(err, types.ErrReplay):
		app.metrics.IncrHeartbeatsRejected("replay")
	case errors.Is(err, types.ErrTooEarly):
		app.metrics.IncrHeartbeatsRejected("too_early")
	case errors.Is(err, types.ErrBadSignature):
		app.metrics.IncrHeartbeatsRejected("bad_signature")
	default:
		app.metrics.IncrHeartbeatsRejected("other")
	}
	return err
}

// ProcessRegistration feeds an inbound validator registration
// announcement through the manager.
func (app *App) ProcessRegistration(ann *heartbeat.RegistrationAnnouncement) error {
	return app.manager.ProcessRegistration(ann)
}

// ProcessValidatorUpdate applies a signed validator update and mirrors
// the relevant changes into the trust scorer.
func (app *App) ProcessValidatorUpdate(update *registry.ValidatorUpdate) error {
	if err := app.registry.ProcessUpdate(update); err != nil {
		return err
	}

	switch update.Kind {
	case registry.UpdateFee:
		if err := app.scorer.UpdateFee(update.ValidatorID, update.NewValue); err != nil {
			app.logger.Debug("scorer fee update skipped", zap.Error(err))
		}
	case registry.UpdateDeactivate:
		if err := app.scorer.Deactivate(update.ValidatorID); err != nil {
			app.logger.Debug("scorer deactivate skipped", zap.Error(err))
		}
	case registry.UpdateReactivate:
		if err := app.scorer.Reactivate(update.ValidatorID); err != nil {
			app.logger.Debug("scorer reactivate skipped", zap.Error(err))
		}
	case registry.UpdateIncreaseStake, registry.UpdateDecreaseStake:
		if rec, err := app.registry.Get(update.ValidatorID); err == nil {
			if err := app.scorer.UpdateStake(update.ValidatorID, rec.SelfStake); err != nil {
				app.logger.Debug("scorer stake update skipped", zap.Error(err))
			}
		}
	}

	return nil
}

// JailValidator applies a consensus jail directive. A zero block count
// uses the default jail window.
func (app *App) JailValidator(id types.ValidatorID, blocks uint32) error {
	if err := app.registry.Jail(id, blocks); err != nil {
		return err
	}
	if err := app.scorer.Deactivate(id); err != nil {
		app.logger.Debug("scorer deactivate skipped", zap.Error(err))
	}
	return nil
}

// UnjailValidator releases a jailed validator once its window expired.
func (app *App) UnjailValidator(id types.ValidatorID) error {
	if err := app.registry.Unjail(id); err != nil {
		return err
	}
	if err := app.scorer.Reactivate(id); err != nil {
		app.logger.Debug("scorer reactivate skipped", zap.Error(err))
	}
	return nil
}

// SaveState serializes the registry and ledger into the database.
func (app *App) SaveState() error {
	var regBuf bytes.Buffer
	if err := app.registry.Serialize(&regBuf); err != nil {
		return err
	}
	if err := app.db.Put(registryStateKey, regBuf.Bytes()); err != nil {
		return fmt.Errorf("failed to store registry state: %w", err)
	}

	var ledgerBuf bytes.Buffer
	if err := app.ledger.Serialize(&ledgerBuf); err != nil {
		return err
	}
	if err := app.db.Put(ledgerStateKey, ledgerBuf.Bytes()); err != nil {
		return fmt.Errorf("failed to store delegation state: %w", err)
	}

	return nil
}

// LoadState restores the registry and ledger from the database. Missing
// state means a fresh node and is not an error.
func (app *App) LoadState() error {
	if ok, err := app.db.Exists(registryStateKey); err == nil && ok {
		raw, err := app.db.Get(registryStateKey)
		if err != nil {
			return fmt.Errorf("failed to load registry state: %w", err)
		}
		if err := app.registry.Deserialize(bytes.NewReader(raw)); err != nil {
			return err
		}
		app.seedScorer()
	}

	if ok, err := app.db.Exists(ledgerStateKey); err == nil && ok {
		raw, err := app.db.Get(ledgerStateKey)
		if err != nil {
			return fmt.Errorf("failed to load delegation state: %w", err)
		}
		if err := app.ledger.Deserialize(bytes.NewReader(raw)); err != nil {
			return err
		}
	}

	return nil
}

// seedScorer rebuilds liveness tracking from restored registry records.
// The counters themselves are not persisted; each validator restarts its
// heartbeat window at its registration height.
func (app *App) seedScorer() {
	for _, rec := range app.registry.All() {
		err := app.scorer.Register(rec.ID, rec.SelfStake, rec.FeeBps, rec.RegistrationHeight)
		if err != nil {
			app.logger.Debug("scorer seed skipped",
				zap.String("validator", rec.ID.String()),
				zap.Error(err))
			continue
		}
		if rec.Status != registry.StatusActive && rec.Status != registry.StatusPending {
			if err := app.scorer.Deactivate(rec.ID); err != nil {
				app.logger.Debug("scorer deactivate skipped", zap.Error(err))
			}
		}
	}
}

func (app *App) updateMetrics(height uint32) {
	app.metrics.RecordBlockHeight(height)

	statusCounts := make(map[registry.ValidatorStatus]int)
	var selfStake, delegated types.Amount
	for _, rec := range app.registry.All() {
		statusCounts[rec.Status]++
		selfStake += rec.SelfStake
		delegated += rec.TotalDelegated
	}
	for _, status := range []registry.ValidatorStatus{
		registry.StatusPending, registry.StatusActive, registry.StatusInactive,
		registry.StatusJailed, registry.StatusUnbonding,
	} {
		app.metrics.RecordValidatorStatus(status.String(), statusCounts[status])
	}
	app.metrics.RecordStakeTotals(selfStake, delegated)
	app.metrics.RecordActiveDelegations(app.ledger.ActiveCount())
	app.metrics.RecordKnownPeers(app.discovery.Count())

	for _, tier := range []trust.Tier{
		trust.TierNone, trust.TierBronze, trust.TierSilver, trust.TierGold, trust.TierPlatinum,
	} {
		app.metrics.RecordValidatorTier(tier.String(), len(app.scorer.ByTier(tier)))
	}
}

// Registry exposes the validator registry to transports built on top.
func (app *App) Registry() *registry.Registry { return app.registry }

// Ledger exposes the delegation ledger.
func (app *App) Ledger() *delegation.Ledger { return app.ledger }

// Scorer exposes the trust scorer.
func (app *App) Scorer() *trust.Scorer { return app.scorer }

// Manager exposes the heartbeat manager.
func (app *App) Manager() *heartbeat.Manager { return app.manager }

// Discovery exposes the peer discovery set.
func (app *App) Discovery() *peers.Discovery { return app.discovery }
