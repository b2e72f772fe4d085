package peers

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/luminacoin/lumina-core/types"
)

// Discovery maintains the set of validator endpoints learned from
// heartbeats. Newly discovered peers queue in a pending list until the
// node's connection manager picks them up; the full set persists to a
// human-readable peer file.
type Discovery struct {
	mu sync.Mutex

	known   map[string]types.NetAddress
	pending map[string]types.NetAddress

	filePath string
	logger   *zap.Logger
}

func NewDiscovery(filePath string, logger *zap.Logger) *Discovery {
	return &Discovery{
		known:    make(map[string]types.NetAddress),
		pending:  make(map[string]types.NetAddress),
		filePath: filePath,
		logger:   logger,
	}
}

// Process records a validator endpoint. It is idempotent: a known
// address returns false with no state change, a new one joins both the
// known set and the pending queue and returns true.
func (d *Discovery) Process(addr types.NetAddress, validator types.ValidatorID) bool {
	if !addr.IsValid() {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := addr.String()
	if _, ok := d.known[key]; ok {
		return false
	}
	d.known[key] = addr
	d.pending[key] = addr

	d.logger.Info("discovered validator peer",
		zap.String("address", key),
		zap.String("validator", validator.String()))

	return true
}

// PendingPeers returns the peers waiting to be connected, without
// clearing them.
func (d *Discovery) PendingPeers() []types.NetAddress {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sortedAddrs(d.pending)
}

// DrainPending returns the peers waiting to be connected and clears the
// queue.
func (d *Discovery) DrainPending() []types.NetAddress {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := sortedAddrs(d.pending)
	d.pending = make(map[string]types.NetAddress)
	return result
}

// MarkAdded removes a peer from the pending queue once the node has
// connected it. The peer stays known.
func (d *Discovery) MarkAdded(addr types.NetAddress) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, addr.String())
}

// IsKnown reports whether the peer has been seen before.
func (d *Discovery) IsKnown(addr types.NetAddress) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.known[addr.String()]
	return ok
}

// Count returns the number of known validator peers.
func (d *Discovery) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.known)
}

// AddNodeCommand returns the node command string that connects the peer.
func AddNodeCommand(addr types.NetAddress) string {
	return fmt.Sprintf("addnode %q add", addr.String())
}

// SaveToFile writes the known peers to the peer file, one
// "addnode=ip:port" line each.
func (d *Discovery) SaveToFile() error {
	d.mu.Lock()
	addrs := sortedAddrs(d.known)
	path := d.filePath
	d.mu.Unlock()

	if path == "" {
		return fmt.Errorf("no peer file path configured")
	}

	var sb strings.Builder
	sb.WriteString("# Validator peers - auto-generated\n")
	sb.WriteString("# These peers were discovered from validator heartbeats\n")
	sb.WriteString("# Format: addnode=IP:PORT\n\n")
	for _, addr := range addrs {
		sb.WriteString("addnode=")
		sb.WriteString(addr.String())
		sb.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("failed to save peer file: %w", err)
	}

	d.logger.Info("saved validator peers",
		zap.Int("count", len(addrs)),
		zap.String("path", path))

	return nil
}

// LoadFromFile populates the known set from the peer file. Lines that
// are comments, blank, or fail to parse are skipped. A missing file is
// not an error.
func (d *Discovery) LoadFromFile() error {
	d.mu.Lock()
	path := d.filePath
	d.mu.Unlock()

	if path == "" {
		return fmt.Errorf("no peer file path configured")
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open peer file: %w", err)
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		value, ok := strings.CutPrefix(line, "addnode=")
		if !ok {
			continue
		}
		addr, err := types.ParseNetAddress(strings.TrimSpace(value))
		if err != nil {
			d.logger.Warn("skipping unresolvable peer line", zap.String("line", line))
			continue
		}

		d.mu.Lock()
		d.known[addr.String()] = addr
		d.mu.Unlock()
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read peer file: %w", err)
	}

	d.logger.Info("loaded validator peers",
		zap.Int("count", loaded),
		zap.String("path", path))

	return nil
}

func sortedAddrs(m map[string]types.NetAddress) []types.NetAddress {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]types.NetAddress, 0, len(m))
	for _, k := range keys {
		result = append(result, m[k])
	}
	return result
}
