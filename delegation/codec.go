package delegation

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/luminacoin/lumina-core/types"
)

// storedDelegation is the wire form of a DelegationRecord. Amounts are
// non-negative by invariant so they travel as unsigned integers.
type storedDelegation struct {
	Delegator            [types.KeyIDLen]byte
	Validator            [types.KeyIDLen]byte
	Amount               uint64
	DelegationHeight     uint32
	LastRewardHeight     uint32
	UnbondingStartHeight uint32
	Status               uint8
	OutpointHash         [32]byte
	OutpointIndex        uint32
	PendingRewards       uint64
}

func toStored(rec *DelegationRecord) *storedDelegation {
	s := &storedDelegation{
		Delegator:            rec.Delegator,
		Validator:            rec.Validator,
		Amount:               uint64(rec.Amount),
		DelegationHeight:     rec.DelegationHeight,
		LastRewardHeight:     rec.LastRewardHeight,
		UnbondingStartHeight: rec.UnbondingStartHeight,
		Status:               uint8(rec.Status),
		OutpointIndex:        rec.Outpoint.Index,
		PendingRewards:       uint64(rec.PendingRewards),
	}
	copy(s.OutpointHash[:], rec.Outpoint.Hash[:])
	return s
}

func fromStored(s *storedDelegation) *DelegationRecord {
	rec := &DelegationRecord{
		Delegator:            s.Delegator,
		Validator:            s.Validator,
		Amount:               types.Amount(s.Amount),
		DelegationHeight:     s.DelegationHeight,
		LastRewardHeight:     s.LastRewardHeight,
		UnbondingStartHeight: s.UnbondingStartHeight,
		Status:               DelegationStatus(s.Status),
		PendingRewards:       types.Amount(s.PendingRewards),
	}
	copy(rec.Outpoint.Hash[:], s.OutpointHash[:])
	rec.Outpoint.Index = s.OutpointIndex
	return rec
}

// Serialize writes every record to the sink in creation order.
func (l *Ledger) Serialize(w io.Writer) error {
	l.mu.Lock()
	stored := make([]*storedDelegation, 0, len(l.order))
	for _, id := range l.order {
		if rec, ok := l.delegations[id]; ok {
			stored = append(stored, toStored(rec))
		}
	}
	height := l.height
	l.mu.Unlock()

	if err := rlp.Encode(w, height); err != nil {
		return fmt.Errorf("failed to serialize ledger height: %w", err)
	}
	if err := rlp.Encode(w, stored); err != nil {
		return fmt.Errorf("failed to serialize delegation records: %w", err)
	}
	return nil
}

// Deserialize replaces the ledger contents with the records read from
// the source. The reverse indices are rebuilt from scratch by a single
// scan; they are never read from the stream.
func (l *Ledger) Deserialize(src io.Reader) error {
	stream := rlp.NewStream(src, 0)

	var height uint32
	if err := stream.Decode(&height); err != nil {
		return fmt.Errorf("failed to deserialize ledger height: %w", err)
	}
	var stored []*storedDelegation
	if err := stream.Decode(&stored); err != nil {
		return fmt.Errorf("failed to deserialize delegation records: %w", err)
	}

	delegations := make(map[DelegationID]*DelegationRecord, len(stored))
	byDelegator := make(map[types.DelegatorID][]DelegationID)
	byValidator := make(map[types.ValidatorID][]DelegationID)
	byOutpoint := make(map[types.OutPoint]DelegationID)
	order := make([]DelegationID, 0, len(stored))

	for _, s := range stored {
		rec := fromStored(s)
		id := rec.ID()
		delegations[id] = rec
		order = append(order, id)
		byDelegator[rec.Delegator] = append(byDelegator[rec.Delegator], id)
		byValidator[rec.Validator] = append(byValidator[rec.Validator], id)
		if !rec.Outpoint.IsNull() {
			byOutpoint[rec.Outpoint] = id
		}
	}

	l.mu.Lock()
	l.delegations = delegations
	l.byDelegator = byDelegator
	l.byValidator = byValidator
	l.byOutpoint = byOutpoint
	l.order = order
	l.height = height
	l.mu.Unlock()

	return nil
}
