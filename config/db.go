package config

import (
	"fmt"
	"path/filepath"
)

const (
	defaultDBName = "staking.db"
)

// DBConfig locates the bbolt database holding the serialized validator
// and delegation state.
type DBConfig struct {
	Path string `long:"path" description:"The path that stores the database file"`
	Name string `long:"name" description:"The name of the database file"`
}

func DefaultDBConfigWithHome(homePath string) *DBConfig {
	return &DBConfig{
		Path: DataDir(homePath),
		Name: defaultDBName,
	}
}

func (cfg *DBConfig) Validate() error {
	if cfg.Path == "" {
		return fmt.Errorf("db path not specified")
	}
	if cfg.Name == "" {
		return fmt.Errorf("db name not specified")
	}
	return nil
}

// DBFile returns the full path of the database file.
func (cfg *DBConfig) DBFile() string {
	return filepath.Join(cfg.Path, cfg.Name)
}
