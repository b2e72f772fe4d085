package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"

	"github.com/luminacoin/lumina-core/metrics"
	"github.com/luminacoin/lumina-core/types"
)

const (
	defaultLogLevel        = "info"
	defaultLogFormat       = "console"
	defaultLogDirname      = "logs"
	defaultLogFilename     = "luminad.log"
	defaultConfigFileName  = "luminad.conf"
	defaultDataDirname     = "data"
	defaultPeerFileName    = "validator_peers.conf"
	defaultPersistInterval = 5 * time.Minute
)

// DefaultHomeDir is the default daemon home:
//
//	~/.luminad on Linux
//	~/Library/Application Support/Luminad on MacOS
var DefaultHomeDir = btcutil.AppDataDir("luminad", false)

// StakingConfig exposes the consensus staking parameters as config
// options, mostly so tests and private networks can shrink the windows.
type StakingConfig struct {
	MinValidatorStake  int64  `long:"minvalidatorstake"  description:"Minimum validator self-stake in satoshi units"`
	MinDelegation      int64  `long:"mindelegation"      description:"Minimum delegation amount in satoshi units"`
	ValidatorMaturity  uint32 `long:"validatormaturity"  description:"Blocks before a registered validator may activate"`
	DelegationMaturity uint32 `long:"delegationmaturity" description:"Blocks before a delegation starts earning"`
	UnbondingPeriod    uint32 `long:"unbondingperiod"    description:"Unbonding cool-down in blocks"`
	JailDefaultBlocks  uint32 `long:"jaildefaultblocks"  description:"Default jail window in blocks"`
	HeartbeatInterval  uint32 `long:"heartbeatinterval"  description:"Heartbeat cadence in blocks"`
	UptimeWindow       uint32 `long:"uptimewindow"       description:"Rolling uptime window in blocks"`
	MaxSeenHeartbeats  int    `long:"maxseenheartbeats"  description:"Cap of the heartbeat replay set"`
}

// Params folds the configured overrides into the default parameter set.
func (c *StakingConfig) Params() types.StakingParams {
	params := types.DefaultStakingParams()
	params.MinValidatorStake = c.MinValidatorStake
	params.MinDelegation = c.MinDelegation
	params.ValidatorMaturity = c.ValidatorMaturity
	params.DelegationMaturity = c.DelegationMaturity
	params.UnbondingPeriod = c.UnbondingPeriod
	params.JailDefaultBlocks = c.JailDefaultBlocks
	params.HeartbeatInterval = c.HeartbeatInterval
	params.UptimeWindow = c.UptimeWindow
	params.MaxSeenHeartbeats = c.MaxSeenHeartbeats
	return params
}

func defaultStakingConfig() *StakingConfig {
	params := types.DefaultStakingParams()
	return &StakingConfig{
		MinValidatorStake:  params.MinValidatorStake,
		MinDelegation:      params.MinDelegation,
		ValidatorMaturity:  params.ValidatorMaturity,
		DelegationMaturity: params.DelegationMaturity,
		UnbondingPeriod:    params.UnbondingPeriod,
		JailDefaultBlocks:  params.JailDefaultBlocks,
		HeartbeatInterval:  params.HeartbeatInterval,
		UptimeWindow:       params.UptimeWindow,
		MaxSeenHeartbeats:  params.MaxSeenHeartbeats,
	}
}

// Config is the main config for the luminad daemon.
type Config struct {
	LogLevel  string `long:"loglevel" description:"Logging level for all subsystems" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal"`
	LogFormat string `long:"logformat" description:"Logging format" choice:"console" choice:"json" choice:"logfmt"`

	// NodeAddress is the endpoint advertised inside our heartbeats,
	// e.g. 203.0.113.7:18888. When empty, heartbeats are still broadcast
	// but carry no address.
	NodeAddress string `long:"nodeaddress" description:"The public ip:port advertised in heartbeats"`

	// ValidatorKeyFile holds the hex-encoded validator private key.
	// Empty means this node is not a validator.
	ValidatorKeyFile string `long:"validatorkeyfile" description:"Path of the hex-encoded validator signing key"`

	PeerFile string `long:"peerfile" description:"Path of the persisted validator peer list"`

	PersistInterval time.Duration `long:"persistinterval" description:"The interval between state flushes to the database"`

	Staking *StakingConfig `group:"staking" namespace:"staking"`

	DatabaseConfig *DBConfig `group:"dbconfig" namespace:"dbconfig"`

	Metrics *metrics.Config `group:"metrics" namespace:"metrics"`
}

func DefaultConfigWithHome(homePath string) Config {
	cfg := Config{
		LogLevel:        defaultLogLevel,
		LogFormat:       defaultLogFormat,
		PeerFile:        filepath.Join(DataDir(homePath), defaultPeerFileName),
		PersistInterval: defaultPersistInterval,
		Staking:         defaultStakingConfig(),
		DatabaseConfig:  DefaultDBConfigWithHome(homePath),
		Metrics:         metrics.DefaultConfig(),
	}

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	return cfg
}

func DefaultConfig() Config {
	return DefaultConfigWithHome(DefaultHomeDir)
}

func ConfigFile(homePath string) string {
	return filepath.Join(homePath, defaultConfigFileName)
}

func LogDir(homePath string) string {
	return filepath.Join(homePath, defaultLogDirname)
}

func LogFile(homePath string) string {
	return filepath.Join(LogDir(homePath), defaultLogFilename)
}

func DataDir(homePath string) string {
	return filepath.Join(homePath, defaultDataDirname)
}

// LoadConfig reads the config file under the home directory and returns
// the parsed, validated configuration.
func LoadConfig(homePath string) (*Config, error) {
	cfgFile := ConfigFile(homePath)
	if _, err := os.Stat(cfgFile); err != nil {
		return nil, fmt.Errorf("specified config file does not exist in %s", cfgFile)
	}

	var cfg Config
	fileParser := flags.NewParser(&cfg, flags.Default)
	err := flags.NewIniParser(fileParser).ParseFile(cfgFile)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// WriteDefaultConfig writes a commented default config file for init.
func WriteDefaultConfig(homePath string) error {
	if err := os.MkdirAll(homePath, 0o700); err != nil {
		return err
	}
	if err := os.MkdirAll(DataDir(homePath), 0o700); err != nil {
		return err
	}

	cfg := DefaultConfigWithHome(homePath)
	parser := flags.NewParser(&cfg, flags.Default)
	return flags.NewIniParser(parser).WriteFile(
		ConfigFile(homePath),
		flags.IniIncludeComments|flags.IniIncludeDefaults,
	)
}

// Validate checks the given configuration to be sane. This makes sure no
// illegal values or combination of values are set.
func (cfg *Config) Validate() error {
	if cfg.NodeAddress != "" {
		if _, err := types.ParseNetAddress(cfg.NodeAddress); err != nil {
			return fmt.Errorf("invalid node address %s: %w", cfg.NodeAddress, err)
		}
	}

	if cfg.Staking == nil {
		return fmt.Errorf("empty staking config")
	}
	if cfg.Staking.HeartbeatInterval == 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if cfg.Staking.UptimeWindow < cfg.Staking.HeartbeatInterval {
		return fmt.Errorf("uptime window must cover at least one heartbeat interval")
	}

	if cfg.DatabaseConfig == nil {
		return fmt.Errorf("empty db config")
	}
	if err := cfg.DatabaseConfig.Validate(); err != nil {
		return err
	}

	if cfg.Metrics == nil {
		return fmt.Errorf("empty metrics config")
	}
	if err := cfg.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config")
	}

	return nil
}
