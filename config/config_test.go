package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTOMLConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "arbitrationd.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEmptyPathReturnsValidatedDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Floors.MinDisputeWindowSecs != 3600 {
		t.Fatalf("expected default dispute window of 3600, got %d", cfg.Floors.MinDisputeWindowSecs)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("expected default driver sqlite, got %q", cfg.Database.Driver)
	}
}

func TestLoadCreatesDefaultFileOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arbitrationd.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":8080" {
		t.Fatalf("expected default listen address, got %q", cfg.ListenAddress)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected Load to create a default config file: %v", err)
	}
}

func TestLoadRejectsDisputeWindowBelowProtocolFloor(t *testing.T) {
	toml := `
[floors]
MinDisputeWindowSecs = 10
MinChallengeBond = 10000000
MinAppealRounds = 2

[governance]
ProgramIDs = ["realms-mainnet"]

[database]
Driver = "sqlite"
DSN = "file:arbitrationd.db"

[clock]
MaxSkewSecs = 5
`
	path := writeTOMLConfig(t, toml)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected load to fail when MinDisputeWindowSecs is below the protocol floor")
	}
}

func TestLoadRejectsEmptyGovernanceProgramList(t *testing.T) {
	toml := `
[floors]
MinDisputeWindowSecs = 3600
MinChallengeBond = 10000000
MinAppealRounds = 2

[governance]
ProgramIDs = []

[database]
Driver = "sqlite"
DSN = "file:arbitrationd.db"

[clock]
MaxSkewSecs = 5
`
	path := writeTOMLConfig(t, toml)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected load to fail with no governance program IDs configured")
	}
}

func TestLoadRejectsUnsupportedDatabaseDriver(t *testing.T) {
	toml := `
[floors]
MinDisputeWindowSecs = 3600
MinChallengeBond = 10000000
MinAppealRounds = 2

[governance]
ProgramIDs = ["realms-mainnet"]

[database]
Driver = "mysql"
DSN = "file:arbitrationd.db"

[clock]
MaxSkewSecs = 5
`
	path := writeTOMLConfig(t, toml)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected load to fail for an unsupported database driver")
	}
}

func TestLoadRejectsZeroClockSkew(t *testing.T) {
	toml := `
[floors]
MinDisputeWindowSecs = 3600
MinChallengeBond = 10000000
MinAppealRounds = 2

[governance]
ProgramIDs = ["realms-mainnet"]

[database]
Driver = "sqlite"
DSN = "file:arbitrationd.db"

[clock]
MaxSkewSecs = 0
`
	path := writeTOMLConfig(t, toml)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected load to fail when clock.MaxSkewSecs is zero")
	}
}

func TestKnownGovernanceProgramsDerivesOneEntryPerName(t *testing.T) {
	g := Global{Governance: GovernanceConfig{ProgramIDs: []string{"realms-mainnet", "realms-test"}}}
	known := g.KnownGovernancePrograms()
	if len(known) != 2 {
		t.Fatalf("expected 2 known governance programs, got %d", len(known))
	}
}
