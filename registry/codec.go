package registry

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/luminacoin/lumina-core/types"
)

// storedValidator is the wire form of a ValidatorRecord. Amounts are
// non-negative by invariant so they travel as unsigned integers.
type storedValidator struct {
	PubKey             []byte
	SelfStake          uint64
	FeeBps             uint64
	Name               string
	RegistrationHeight uint32
	LastActiveHeight   uint32
	JailReleaseHeight  uint32
	Status             uint8
	OutpointHash       [32]byte
	OutpointIndex      uint32
	TotalDelegated     uint64
	DelegatorCount     uint32
}

func toStored(rec *ValidatorRecord) *storedValidator {
	s := &storedValidator{
		PubKey:             rec.PubKey.SerializeCompressed(),
		SelfStake:          uint64(rec.SelfStake),
		FeeBps:             uint64(rec.FeeBps),
		Name:               rec.Name,
		RegistrationHeight: rec.RegistrationHeight,
		LastActiveHeight:   rec.LastActiveHeight,
		JailReleaseHeight:  rec.JailReleaseHeight,
		Status:             uint8(rec.Status),
		OutpointIndex:      rec.StakeOutpoint.Index,
		TotalDelegated:     uint64(rec.TotalDelegated),
		DelegatorCount:     uint32(rec.DelegatorCount),
	}
	copy(s.OutpointHash[:], rec.StakeOutpoint.Hash[:])
	return s
}

func fromStored(s *storedValidator) (*ValidatorRecord, error) {
	pk, err := btcec.ParsePubKey(s.PubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored validator pubkey: %w", err)
	}
	rec := &ValidatorRecord{
		ID:                 types.NewKeyID(pk),
		PubKey:             pk,
		SelfStake:          types.Amount(s.SelfStake),
		FeeBps:             int64(s.FeeBps),
		Name:               s.Name,
		RegistrationHeight: s.RegistrationHeight,
		LastActiveHeight:   s.LastActiveHeight,
		JailReleaseHeight:  s.JailReleaseHeight,
		Status:             ValidatorStatus(s.Status),
		TotalDelegated:     types.Amount(s.TotalDelegated),
		DelegatorCount:     int(s.DelegatorCount),
	}
	copy(rec.StakeOutpoint.Hash[:], s.OutpointHash[:])
	rec.StakeOutpoint.Index = s.OutpointIndex
	return rec, nil
}

// Serialize writes every record to the sink in id order.
func (r *Registry) Serialize(w io.Writer) error {
	r.mu.Lock()
	records := r.allLocked()
	height := r.height
	r.mu.Unlock()

	stored := make([]*storedValidator, len(records))
	for i := range records {
		stored[i] = toStored(&records[i])
	}

	if err := rlp.Encode(w, height); err != nil {
		return fmt.Errorf("failed to serialize registry height: %w", err)
	}
	if err := rlp.Encode(w, stored); err != nil {
		return fmt.Errorf("failed to serialize validator records: %w", err)
	}
	return nil
}

// Deserialize replaces the registry contents with the records read from
// the source. The outpoint index is rebuilt from scratch by a single
// scan; it is never read from the stream.
func (r *Registry) Deserialize(src io.Reader) error {
	stream := rlp.NewStream(src, 0)

	var height uint32
	if err := stream.Decode(&height); err != nil {
		return fmt.Errorf("failed to deserialize registry height: %w", err)
	}
	var stored []*storedValidator
	if err := stream.Decode(&stored); err != nil {
		return fmt.Errorf("failed to deserialize validator records: %w", err)
	}

	validators := make(map[types.ValidatorID]*ValidatorRecord, len(stored))
	byOutpoint := make(map[types.OutPoint]types.ValidatorID)
	for _, s := range stored {
		rec, err := fromStored(s)
		if err != nil {
			return err
		}
		validators[rec.ID] = rec
		if !rec.StakeOutpoint.IsNull() {
			byOutpoint[rec.StakeOutpoint] = rec.ID
		}
	}

	r.mu.Lock()
	r.validators = validators
	r.byOutpoint = byOutpoint
	r.height = height
	r.mu.Unlock()

	return nil
}
