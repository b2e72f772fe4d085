package testutil

import (
	"encoding/hex"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/luminacoin/lumina-core/registry"
	"github.com/luminacoin/lumina-core/types"
)

func GenRandomByteArray(r *rand.Rand, length uint64) []byte {
	newBytes := make([]byte, length)
	r.Read(newBytes)
	return newBytes
}

func GenRandomHexStr(r *rand.Rand, length uint64) string {
	randBytes := GenRandomByteArray(r, length)
	return hex.EncodeToString(randBytes)
}

func AddRandomSeedsToFuzzer(f *testing.F, num uint) {
	// Seed based on the current time
	r := rand.New(rand.NewSource(time.Now().Unix()))
	var idx uint
	for idx = 0; idx < num; idx++ {
		f.Add(r.Int63())
	}
}

// GenRandomKeyPair derives a deterministic secp256k1 key pair from the
// seeded source.
func GenRandomKeyPair(r *rand.Rand, t *testing.T) (*btcec.PrivateKey, *btcec.PublicKey) {
	t.Helper()
	seed := GenRandomByteArray(r, 32)
	require.NotEqual(t, make([]byte, 32), seed)
	sk, pk := btcec.PrivKeyFromBytes(seed)
	return sk, pk
}

func GenRandomHash(r *rand.Rand) chainhash.Hash {
	var h chainhash.Hash
	r.Read(h[:])
	return h
}

func GenRandomOutPoint(r *rand.Rand) types.OutPoint {
	return types.NewOutPoint(GenRandomHash(r), r.Uint32()%10)
}

func GenRandomNetAddress(r *rand.Rand) types.NetAddress {
	ip := net.IPv4(byte(1+r.Intn(254)), byte(r.Intn(256)), byte(r.Intn(256)), byte(1+r.Intn(254)))
	return types.NetAddress{IP: ip, Port: uint16(1024 + r.Intn(60000))}
}

// GenRandomValidatorRecord builds a registrable record above the given
// minimum stake and returns it with its signing key.
func GenRandomValidatorRecord(r *rand.Rand, t *testing.T, minStake types.Amount, height uint32) (*registry.ValidatorRecord, *btcec.PrivateKey) {
	t.Helper()
	sk, pk := GenRandomKeyPair(r, t)
	rec := &registry.ValidatorRecord{
		ID:                 types.NewKeyID(pk),
		PubKey:             pk,
		SelfStake:          minStake + types.Amount(r.Int63n(1000))*types.Coin,
		FeeBps:             int64(r.Intn(10001)),
		Name:               GenRandomHexStr(r, 8),
		RegistrationHeight: height,
		Status:             registry.StatusPending,
		StakeOutpoint:      GenRandomOutPoint(r),
	}
	return rec, sk
}
