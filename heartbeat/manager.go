package heartbeat

import (
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/zap"

	"github.com/luminacoin/lumina-core/registry"
	"github.com/luminacoin/lumina-core/trust"
	"github.com/luminacoin/lumina-core/types"
)

// dispatch retry policy for the injected P2P sink
const (
	dispatchAttempts = 3
	dispatchDelay    = 500 * time.Millisecond
)

// Broadcaster is the injected P2P sink the manager hands outbound
// heartbeats to.
type Broadcaster interface {
	BroadcastHeartbeat(hb *Heartbeat) error
}

// Stats is a snapshot of the manager state for logging and queries.
type Stats struct {
	IsValidator         bool
	LastBroadcastHeight uint32
	SeenHeartbeats      int
	ActiveValidators    int
}

// Manager produces signed heartbeats for the local validator and
// validates, deduplicates and dispatches incoming ones. A single mutex
// guards the validator key, the replay set and the broadcast height.
type Manager struct {
	mu sync.Mutex

	key         *btcec.PrivateKey
	isValidator bool

	nodeAddress types.NetAddress

	seen      map[chainhash.Hash]struct{}
	seenOrder []chainhash.Hash

	lastBroadcastHeight uint32

	registry *registry.Registry
	scorer   *trust.Scorer
	sink     Broadcaster

	params types.StakingParams
	logger *zap.Logger
}

func NewManager(
	params types.StakingParams,
	reg *registry.Registry,
	scorer *trust.Scorer,
	sink Broadcaster,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		seen:     make(map[chainhash.Hash]struct{}),
		registry: reg,
		scorer:   scorer,
		sink:     sink,
		params:   params,
		logger:   logger,
	}
}

// SetValidatorKey configures this node as a validator signing with the
// given key.
func (m *Manager) SetValidatorKey(sk *btcec.PrivateKey) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.key = sk
	m.isValidator = true

	m.logger.Info("configured as validator",
		zap.String("validator", types.NewKeyID(sk.PubKey()).String()))
}

// SetNodeAddress sets the endpoint advertised inside our heartbeats.
func (m *Manager) SetNodeAddress(addr types.NetAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodeAddress = addr
}

// IsValidator reports whether a validator key is configured.
func (m *Manager) IsValidator() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isValidator && m.key != nil
}

// ValidatorID returns the local validator identity, or the zero id when
// not configured.
func (m *Manager) ValidatorID() types.ValidatorID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key == nil {
		return types.ValidatorID{}
	}
	return types.NewKeyID(m.key.PubKey())
}

// ValidatorPubKey returns the local validator public key, or nil when
// not configured.
func (m *Manager) ValidatorPubKey() *btcec.PublicKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key == nil {
		return nil
	}
	return m.key.PubKey()
}

// SignUpdate signs a validator update with the local validator key.
func (m *Manager) SignUpdate(update *registry.ValidatorUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isValidator || m.key == nil {
		return fmt.Errorf("%w: node is not configured as a validator", types.ErrWrongStatus)
	}
	return update.Sign(m.key)
}

// ShouldBroadcast reports whether a heartbeat is due at the given
// height: the node is a validator, the height sits on the interval
// boundary, and a full interval has passed since the last broadcast.
func (m *Manager) ShouldBroadcast(height uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shouldBroadcastLocked(height)
}

func (m *Manager) shouldBroadcastLocked(height uint32) bool {
	if !m.isValidator || m.key == nil {
		return false
	}
	if height-m.lastBroadcastHeight < m.params.HeartbeatInterval {
		return false
	}
	return height%m.params.HeartbeatInterval == 0
}

// OnBlock drives the local broadcast cadence. Concurrent calls at the
// same height produce at most one heartbeat.
func (m *Manager) OnBlock(height uint32, blockHash chainhash.Hash) {
	if err := m.Broadcast(height, blockHash); err != nil {
		m.logger.Error("failed to broadcast heartbeat",
			zap.Uint32("height", height),
			zap.Error(err))
	}
}

// Broadcast constructs, signs, records and dispatches a heartbeat for
// the given block. It is a benign no-op when no heartbeat is due.
func (m *Manager) Broadcast(height uint32, blockHash chainhash.Hash) error {
	m.mu.Lock()

	if !m.shouldBroadcastLocked(height) {
		m.mu.Unlock()
		return nil
	}

	hb := &Heartbeat{
		ValidatorID: types.NewKeyID(m.key.PubKey()),
		BlockHeight: height,
		BlockHash:   blockHash,
		Timestamp:   time.Now().Unix(),
		NodeAddress: m.nodeAddress,
		NodePort:    m.nodeAddress.Port,
	}
	if err := hb.Sign(m.key); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to sign heartbeat: %w", err)
	}

	digest, err := hb.SigHash()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.addSeenLocked(digest)
	m.lastBroadcastHeight = height
	sink := m.sink
	m.mu.Unlock()

	m.logger.Info("broadcasting heartbeat",
		zap.Uint32("height", height),
		zap.String("address", hb.NodeAddress.String()))

	if sink == nil {
		return nil
	}

	return retry.Do(
		func() error {
			return sink.BroadcastHeartbeat(hb)
		},
		retry.Attempts(dispatchAttempts),
		retry.Delay(dispatchDelay),
		retry.LastErrorOnly(true),
	)
}

// ProcessHeartbeat runs the inbound pipeline: replay dedup, signature
// verification against the registered public key, liveness accounting,
// then address hand-off to peer discovery.
func (m *Manager) ProcessHeartbeat(hb *Heartbeat) error {
	digest, err := hb.SigHash()
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.seen[digest]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: heartbeat %s", types.ErrReplay, digest)
	}

	rec, err := m.registry.Get(hb.ValidatorID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if !hb.Verify(rec.PubKey) {
		m.mu.Unlock()
		return fmt.Errorf("%w: heartbeat from %s", types.ErrBadSignature, hb.ValidatorID)
	}

	if err := m.scorer.ProcessHeartbeat(hb.ValidatorID, hb.BlockHeight); err != nil {
		m.mu.Unlock()
		return err
	}

	m.addSeenLocked(digest)
	m.mu.Unlock()

	if hb.NodeAddress.IsValid() {
		if err := m.scorer.UpdateAddress(hb.ValidatorID, hb.NodeAddress, hb.Timestamp); err != nil {
			m.logger.Debug("failed to update validator address",
				zap.String("validator", hb.ValidatorID.String()),
				zap.Error(err))
		}
	}

	m.logger.Debug("processed heartbeat",
		zap.String("validator", hb.ValidatorID.String()),
		zap.Uint32("height", hb.BlockHeight))

	return nil
}

// ProcessRegistration validates a gossiped registration announcement and
// installs the validator when it is unknown.
func (m *Manager) ProcessRegistration(ann *RegistrationAnnouncement) error {
	if !ann.Verify() {
		return fmt.Errorf("%w: registration announcement", types.ErrBadSignature)
	}
	if ann.Stake < m.params.MinValidatorStake {
		return fmt.Errorf("%w: announced stake %d < %d",
			types.ErrBelowMinimum, ann.Stake, m.params.MinValidatorStake)
	}

	id := types.NewKeyID(ann.PubKey)
	rec := &registry.ValidatorRecord{
		ID:                 id,
		PubKey:             ann.PubKey,
		SelfStake:          ann.Stake,
		FeeBps:             ann.FeeBps,
		RegistrationHeight: ann.RegistrationHeight,
		Status:             registry.StatusPending,
	}
	if err := m.registry.Register(rec); err != nil {
		return err
	}

	if err := m.scorer.Register(id, ann.Stake, ann.FeeBps, ann.RegistrationHeight); err != nil {
		m.logger.Debug("scorer already tracking validator",
			zap.String("validator", id.String()),
			zap.Error(err))
	}

	m.logger.Info("registered announced validator",
		zap.String("validator", id.String()),
		zap.Int64("stake", ann.Stake))

	return nil
}

// CreateRegistration builds a signed announcement for the local
// validator.
func (m *Manager) CreateRegistration(stake types.Amount, feeBps int64, height uint32) (*RegistrationAnnouncement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isValidator || m.key == nil {
		return nil, fmt.Errorf("%w: node is not configured as a validator", types.ErrWrongStatus)
	}

	ann := &RegistrationAnnouncement{
		PubKey:             m.key.PubKey(),
		Stake:              stake,
		FeeBps:             feeBps,
		RegistrationHeight: height,
	}
	if err := ann.Sign(m.key); err != nil {
		return nil, err
	}
	return ann, nil
}

// Stats returns a snapshot of the manager state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	isValidator := m.isValidator
	lastHeight := m.lastBroadcastHeight
	seenCount := len(m.seen)
	m.mu.Unlock()

	return Stats{
		IsValidator:         isValidator,
		LastBroadcastHeight: lastHeight,
		SeenHeartbeats:      seenCount,
		ActiveValidators:    len(m.scorer.ActiveValidators()),
	}
}

// addSeenLocked records a heartbeat digest, dropping the oldest half of
// the replay set once it exceeds the configured cap.
func (m *Manager) addSeenLocked(digest chainhash.Hash) {
	m.seen[digest] = struct{}{}
	m.seenOrder = append(m.seenOrder, digest)

	if len(m.seen) <= m.params.MaxSeenHeartbeats {
		return
	}

	drop := len(m.seenOrder) / 2
	for _, old := range m.seenOrder[:drop] {
		delete(m.seen, old)
	}
	m.seenOrder = append([]chainhash.Hash(nil), m.seenOrder[drop:]...)

	m.logger.Debug("pruned heartbeat replay set", zap.Int("remaining", len(m.seen)))
}
