package config

import (
	"fmt"

	"arbitrationd/native/treasury"
)

// ValidateConfig rejects any operator configuration that would lower the
// protocol's hard floors, weaken the appeal structure, or misconfigure
// the database/clock settings the service can't run without.
func ValidateConfig(g Global) error {
	if g.Floors.MinDisputeWindowSecs < treasury.MinDisputeWindowSecs {
		return fmt.Errorf("floors: MinDisputeWindowSecs %d below protocol floor %d", g.Floors.MinDisputeWindowSecs, treasury.MinDisputeWindowSecs)
	}
	if g.Floors.MinChallengeBond < treasury.MinChallengeBond {
		return fmt.Errorf("floors: MinChallengeBond %d below protocol floor %d", g.Floors.MinChallengeBond, treasury.MinChallengeBond)
	}
	if g.Floors.MinAppealRounds < treasury.MinAppealRounds {
		return fmt.Errorf("floors: MinAppealRounds %d below protocol floor %d", g.Floors.MinAppealRounds, treasury.MinAppealRounds)
	}
	if len(g.Governance.ProgramIDs) == 0 {
		return fmt.Errorf("governance: at least one ProgramIDs entry is required")
	}
	switch g.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unsupported Driver %q", g.Database.Driver)
	}
	if g.Database.DSN == "" {
		return fmt.Errorf("database: DSN must not be empty")
	}
	if g.Clock.MaxSkewSecs == 0 {
		return fmt.Errorf("clock: MaxSkewSecs must be greater than zero")
	}
	return nil
}
