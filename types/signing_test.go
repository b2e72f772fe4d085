package types_test

import (
	"math/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/luminacoin/lumina-core/types"
)

func TestSigHashDeterministic(t *testing.T) {
	h1, err := types.SigHash(uint64(7), "addr:1234", []byte{1, 2, 3})
	require.NoError(t, err)
	h2, err := types.SigHash(uint64(7), "addr:1234", []byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	// field order matters
	h3, err := types.SigHash("addr:1234", uint64(7), []byte{1, 2, 3})
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}

func TestSignVerify(t *testing.T) {
	r := rand.New(rand.NewSource(70))
	seed := make([]byte, 32)
	r.Read(seed)
	sk, pk := btcec.PrivKeyFromBytes(seed)

	digest, err := types.SigHash(uint64(42))
	require.NoError(t, err)

	sig := types.SignHash(sk, digest)
	require.True(t, types.VerifyHash(pk, digest, sig))

	other, err := types.SigHash(uint64(43))
	require.NoError(t, err)
	require.False(t, types.VerifyHash(pk, other, sig))
	require.False(t, types.VerifyHash(pk, digest, []byte("junk")))
}

func TestKeyIDRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(71))
	seed := make([]byte, 32)
	r.Read(seed)
	_, pk := btcec.PrivKeyFromBytes(seed)

	id := types.NewKeyID(pk)
	require.False(t, id.IsZero())
	require.Len(t, id.Bytes(), types.KeyIDLen)

	parsed, err := types.KeyIDFromHex(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = types.KeyIDFromHex("zz")
	require.ErrorIs(t, err, types.ErrBadParameter)
	_, err = types.KeyIDFromBytes([]byte{1, 2})
	require.ErrorIs(t, err, types.ErrBadParameter)
}

func TestParseNetAddress(t *testing.T) {
	addr, err := types.ParseNetAddress("192.0.2.1:18888")
	require.NoError(t, err)
	require.True(t, addr.IsValid())
	require.Equal(t, "192.0.2.1:18888", addr.String())

	v6, err := types.ParseNetAddress("[2001:db8::1]:18888")
	require.NoError(t, err)
	require.Equal(t, "[2001:db8::1]:18888", v6.String())

	for _, bad := range []string{"", "192.0.2.1", "not-an-ip:18888", "192.0.2.1:notaport", "192.0.2.1:70000"} {
		_, err := types.ParseNetAddress(bad)
		require.ErrorIs(t, err, types.ErrUnresolvable, bad)
	}
}
