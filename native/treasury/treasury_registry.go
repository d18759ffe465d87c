package treasury

import (
	"bytes"
	"context"
	"fmt"

	domainerrors "arbitrationd/core/errors"
	"arbitrationd/core/events"
	"arbitrationd/crypto"
)

// InitTreasuryRegistry creates the singleton registry counting registered
// safes. Each call writes a registry with a zero count, overwriting any
// existing one, so callers invoke this once per deployment.
func InitTreasuryRegistry(ctx context.Context, store Store) (TreasuryRegistry, error) {
	registry := TreasuryRegistry{TreasuryCount: 0}
	if err := store.PutTreasuryRegistry(ctx, registry); err != nil {
		return TreasuryRegistry{}, fmt.Errorf("persist treasury registry: %w", err)
	}
	return registry, nil
}

// RegisterTreasuryArgs selects how a safe's custody will be managed.
type RegisterTreasuryArgs struct {
	Safe crypto.Address
	Mode TreasuryMode
}

// RegisterTreasury records a safe's treasury mode. SafeCustodied mode may
// only be selected when the owning policy has treasury_mode_enabled set;
// Legacy mode is always permitted (an explicit opt-out of enforced
// custody).
func RegisterTreasury(ctx context.Context, store Store, emitter events.Emitter, policyAddr crypto.Address, caller crypto.Address, now int64, args RegisterTreasuryArgs) (TreasuryInfo, error) {
	if !args.Mode.Valid() {
		return TreasuryInfo{}, domainerrors.ErrInvalidTreasuryMode
	}
	policy, err := store.GetPolicy(ctx, policyAddr)
	if err != nil {
		return TreasuryInfo{}, fmt.Errorf("load policy: %w", err)
	}
	if !bytes.Equal(caller.Bytes(), policy.Authority.Bytes()) {
		return TreasuryInfo{}, domainerrors.ErrUnauthorized
	}
	if args.Mode == TreasuryModeSafeCustodied && !policy.TreasuryModeEnabled {
		return TreasuryInfo{}, domainerrors.ErrInvalidTreasuryMode
	}

	registry, err := store.GetTreasuryRegistry(ctx)
	if err != nil {
		return TreasuryInfo{}, fmt.Errorf("load treasury registry: %w", err)
	}
	count, err := checkedAdd(registry.TreasuryCount, 1)
	if err != nil {
		return TreasuryInfo{}, err
	}
	registry.TreasuryCount = count

	info := TreasuryInfo{Safe: args.Safe, Mode: args.Mode, RegisteredAt: now}
	if err := store.PutTreasuryInfo(ctx, args.Safe, info); err != nil {
		return TreasuryInfo{}, fmt.Errorf("persist treasury info: %w", err)
	}
	if err := store.PutTreasuryRegistry(ctx, registry); err != nil {
		return TreasuryInfo{}, fmt.Errorf("persist treasury registry: %w", err)
	}
	emitter.Emit(NewTreasuryRegisteredEvent(args.Safe, args.Mode))
	return info, nil
}
