package treasury

import (
	"bytes"
	"context"
	"fmt"

	domainerrors "arbitrationd/core/errors"
	"arbitrationd/core/events"
	"arbitrationd/crypto"
)

// InitializeSafePolicyArgs are the operator-supplied fields of a new safe
// policy. AppealBondMultiplier is not settable: it is always pinned to 2.
type InitializeSafePolicyArgs struct {
	Authority                  crypto.Address
	Resolver                   crypto.Address
	DisputeWindowSecs          uint64
	ChallengeBond              uint64
	EligibilityMint            crypto.Address
	MinTokenBalance            uint64
	MaxAppealRounds            uint8
	AppealWindowDurationSecs   uint64
	PolicyHash                 [32]byte
	PayoutCancellationAllowed  bool
	TreasuryModeEnabled        bool
}

// InitializeSafePolicy creates a new policy record for policyAddr, owned
// by args.Authority. exit_custody_allowed always starts false; an operator
// must separately and explicitly enable it (there is no instruction to do
// so on the path modeled here, mirroring the original's omission of any
// setter for that field outside account migration).
func InitializeSafePolicy(ctx context.Context, store Store, emitter events.Emitter, policyAddr crypto.Address, args InitializeSafePolicyArgs) (SafePolicy, error) {
	policy := SafePolicy{
		Authority:                 args.Authority,
		Resolver:                  args.Resolver,
		DisputeWindowSecs:         args.DisputeWindowSecs,
		ChallengeBond:             args.ChallengeBond,
		EligibilityMint:           args.EligibilityMint,
		MinTokenBalance:           args.MinTokenBalance,
		MaxAppealRounds:           args.MaxAppealRounds,
		AppealWindowDurationSecs:  args.AppealWindowDurationSecs,
		AppealBondMultiplier:      AppealBondMultiplier,
		PolicyHash:                args.PolicyHash,
		ExitCustodyAllowed:        false,
		PayoutCancellationAllowed: args.PayoutCancellationAllowed,
		TreasuryModeEnabled:       args.TreasuryModeEnabled,
		PayoutCount:               0,
	}
	if err := policy.Sanitize(); err != nil {
		return SafePolicy{}, err
	}
	if err := store.PutPolicy(ctx, policyAddr, policy); err != nil {
		return SafePolicy{}, fmt.Errorf("persist policy: %w", err)
	}
	emitter.Emit(NewTreasuryPolicySetEvent(policyAddr, policy.Authority, policy.Resolver, policy.DisputeWindowSecs, policy.ChallengeBond, policy.MaxAppealRounds))
	return policy, nil
}

// UpdateSafePolicyArgs mirrors InitializeSafePolicyArgs but excludes the
// fields update_safe_policy never touches: authority, appeal_bond_multiplier,
// exit_custody_allowed, and payout_count are carried over from the
// existing record unchanged.
type UpdateSafePolicyArgs struct {
	Resolver                  crypto.Address
	DisputeWindowSecs         uint64
	ChallengeBond             uint64
	EligibilityMint           crypto.Address
	MinTokenBalance           uint64
	MaxAppealRounds           uint8
	AppealWindowDurationSecs  uint64
	PolicyHash                [32]byte
	PayoutCancellationAllowed bool
	TreasuryModeEnabled       bool
}

// UpdateSafePolicy replaces the operator-tunable fields of an existing
// policy. Only the policy's own authority may call this.
func UpdateSafePolicy(ctx context.Context, store Store, emitter events.Emitter, policyAddr crypto.Address, caller crypto.Address, args UpdateSafePolicyArgs) (SafePolicy, error) {
	existing, err := store.GetPolicy(ctx, policyAddr)
	if err != nil {
		return SafePolicy{}, fmt.Errorf("load policy: %w", err)
	}
	if !bytes.Equal(caller.Bytes(), existing.Authority.Bytes()) {
		return SafePolicy{}, domainerrors.ErrUnauthorized
	}

	updated := existing.Clone()
	updated.Resolver = args.Resolver
	updated.DisputeWindowSecs = args.DisputeWindowSecs
	updated.ChallengeBond = args.ChallengeBond
	updated.EligibilityMint = args.EligibilityMint
	updated.MinTokenBalance = args.MinTokenBalance
	updated.MaxAppealRounds = args.MaxAppealRounds
	updated.AppealWindowDurationSecs = args.AppealWindowDurationSecs
	updated.AppealBondMultiplier = AppealBondMultiplier
	updated.PolicyHash = args.PolicyHash
	updated.PayoutCancellationAllowed = args.PayoutCancellationAllowed
	updated.TreasuryModeEnabled = args.TreasuryModeEnabled
	// Authority, ExitCustodyAllowed and PayoutCount are intentionally left
	// untouched.

	if err := updated.Sanitize(); err != nil {
		return SafePolicy{}, err
	}
	if err := store.PutPolicy(ctx, policyAddr, updated); err != nil {
		return SafePolicy{}, fmt.Errorf("persist policy: %w", err)
	}
	emitter.Emit(NewTreasuryPolicySetEvent(policyAddr, updated.Authority, updated.Resolver, updated.DisputeWindowSecs, updated.ChallengeBond, updated.MaxAppealRounds))
	return updated, nil
}
