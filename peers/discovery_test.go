package peers_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luminacoin/lumina-core/peers"
	"github.com/luminacoin/lumina-core/testutil"
	"github.com/luminacoin/lumina-core/types"
)

func newDiscovery(t *testing.T) *peers.Discovery {
	t.Helper()
	path := filepath.Join(t.TempDir(), "validator_peers.conf")
	return peers.NewDiscovery(path, zap.NewNop())
}

func TestProcessIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(50))
	d := newDiscovery(t)

	addr := testutil.GenRandomNetAddress(r)
	var validator types.ValidatorID

	require.True(t, d.Process(addr, validator))
	require.False(t, d.Process(addr, validator))
	require.Equal(t, 1, d.Count())
	require.True(t, d.IsKnown(addr))

	// invalid address is ignored
	require.False(t, d.Process(types.NetAddress{}, validator))
	require.Equal(t, 1, d.Count())
}

func TestPendingQueue(t *testing.T) {
	r := rand.New(rand.NewSource(51))
	d := newDiscovery(t)

	a1 := testutil.GenRandomNetAddress(r)
	a2 := testutil.GenRandomNetAddress(r)
	require.True(t, d.Process(a1, types.ValidatorID{}))
	require.True(t, d.Process(a2, types.ValidatorID{}))

	require.Len(t, d.PendingPeers(), 2)

	// marking one as added removes it from pending only
	d.MarkAdded(a1)
	require.Len(t, d.PendingPeers(), 1)
	require.True(t, d.IsKnown(a1))

	drained := d.DrainPending()
	require.Len(t, drained, 1)
	require.Equal(t, a2.String(), drained[0].String())
	require.Empty(t, d.PendingPeers())
	require.Equal(t, 2, d.Count())
}

func TestPeerFileRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(52))
	path := filepath.Join(t.TempDir(), "validator_peers.conf")
	d := peers.NewDiscovery(path, zap.NewNop())

	addrs := make([]types.NetAddress, 3)
	for i := range addrs {
		addrs[i] = testutil.GenRandomNetAddress(r)
		require.True(t, d.Process(addrs[i], types.ValidatorID{}))
	}
	require.NoError(t, d.SaveToFile())

	restored := peers.NewDiscovery(path, zap.NewNop())
	require.NoError(t, restored.LoadFromFile())
	require.Equal(t, 3, restored.Count())
	for _, addr := range addrs {
		require.True(t, restored.IsKnown(addr))
	}

	// loaded peers are known but not pending
	require.Empty(t, restored.PendingPeers())
}

func TestLoadSkipsInvalidLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validator_peers.conf")
	content := "# comment line\n" +
		"\n" +
		"addnode=10.1.2.3:18888\n" +
		"addnode=not-an-address\n" +
		"garbage line\n" +
		"addnode=10.1.2.4:18888\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	d := peers.NewDiscovery(path, zap.NewNop())
	require.NoError(t, d.LoadFromFile())
	require.Equal(t, 2, d.Count())

	addr, err := types.ParseNetAddress("10.1.2.3:18888")
	require.NoError(t, err)
	require.True(t, d.IsKnown(addr))
}

func TestLoadMissingFileIsFine(t *testing.T) {
	d := newDiscovery(t)
	require.NoError(t, d.LoadFromFile())
	require.Equal(t, 0, d.Count())
}

func TestAddNodeCommand(t *testing.T) {
	addr, err := types.ParseNetAddress("10.1.2.3:18888")
	require.NoError(t, err)
	require.Equal(t, `addnode "10.1.2.3:18888" add`, peers.AddNodeCommand(addr))
}
