// Package config loads and validates the operator-tunable settings for
// the treasury arbitration service: the policy floors governance may not
// lower below the protocol's hard constants, known governance program
// identities, database connection info, and clock-skew tolerance.
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"arbitrationd/core/hash"
	"arbitrationd/native/treasury"
)

// FloorsConfig mirrors the protocol's hard-coded minimums. Operators may
// raise these but ValidateConfig rejects any attempt to lower them. The
// policy engine enforces its own constants and does not read these values.
type FloorsConfig struct {
	MinDisputeWindowSecs uint64 `toml:"MinDisputeWindowSecs"`
	MinChallengeBond     uint64 `toml:"MinChallengeBond"`
	MinAppealRounds      uint8  `toml:"MinAppealRounds"`
}

// GovernanceConfig lists the governance program identities record_ruling
// and queue_payout's governance-proof authorization mode will accept.
type GovernanceConfig struct {
	ProgramIDs []string `toml:"ProgramIDs"`
}

// DatabaseConfig selects and locates the persistence backend.
type DatabaseConfig struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// ClockConfig holds the permitted clock skew. Only ValidateConfig checks
// it; no request path reads it.
type ClockConfig struct {
	MaxSkewSecs uint64 `toml:"MaxSkewSecs"`
}

// Global holds every operator-tunable setting.
type Global struct {
	ListenAddress string           `toml:"ListenAddress"`
	Environment   string           `toml:"Environment"`
	Floors        FloorsConfig     `toml:"floors"`
	Governance    GovernanceConfig `toml:"governance"`
	Database      DatabaseConfig   `toml:"database"`
	Clock         ClockConfig      `toml:"clock"`
}

// Config is the top-level decoded document: a struct embedding Global,
// kept distinct from Global so future sections (auth, observability) can be added without
// reshaping the validated core.
type Config struct {
	Global
}

// KnownGovernancePrograms derives the 20-byte program identities the
// governance-proof authorization mode accepts, from the configured
// human-readable names.
func (g Global) KnownGovernancePrograms() treasury.KnownGovernancePrograms {
	known := make(treasury.KnownGovernancePrograms, len(g.Governance.ProgramIDs))
	for _, name := range g.Governance.ProgramIDs {
		known[hash.ProgramID(name)] = struct{}{}
	}
	return known
}

func defaultConfig() *Config {
	return &Config{Global: Global{
		ListenAddress: ":8080",
		Environment:   "dev",
		Floors: FloorsConfig{
			MinDisputeWindowSecs: 3600,
			MinChallengeBond:     10_000_000,
			MinAppealRounds:      2,
		},
		Governance: GovernanceConfig{
			ProgramIDs: []string{"realms-mainnet", "realms-test"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:arbitrationd.db",
		},
		Clock: ClockConfig{MaxSkewSecs: 5},
	}}
}

// Load reads the TOML config at path, creating a default file on first
// run, and validates the result against the protocol's hard floors.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := defaultConfig()
		if err := ValidateConfig(cfg.Global); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg.Global); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
