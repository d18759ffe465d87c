package treasury

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainerrors "arbitrationd/core/errors"
	"arbitrationd/core/events"
	"arbitrationd/crypto"
)

// governanceRejectionReason maps a governance-proof authorization failure
// to the label metrics records it under, or "" if err isn't one.
func governanceRejectionReason(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrInvalidProposalProof):
		return "invalid_proof"
	case errors.Is(err, domainerrors.ErrProposalNotPassed):
		return "not_passed"
	case errors.Is(err, domainerrors.ErrPayloadHashMismatch):
		return "payload_mismatch"
	default:
		return ""
	}
}

// MetricsSink receives Prometheus-style observations from the Engine's
// queue, release, cancel, exit_custody, challenge, appeal and finalize
// methods, plus governance-proof rejections from QueuePayout and
// RecordRuling. A successful RecordRuling records nothing,
// ObservePayoutDenied is never called, and SetBondsHeld is refreshed only
// after FinalizeRuling. Its method set matches observability/metrics.TreasuryMetrics
// structurally, so that type satisfies this interface without either
// package importing the other.
type MetricsSink interface {
	ObservePayoutQueued(assetType string)
	ObservePayoutReleased(assetType string)
	ObservePayoutDenied(assetType string)
	ObservePayoutCancelled(assetType string)
	ObserveChallengeOpened(safe string)
	ObserveAppealFiled(round uint8)
	ObserveRulingFinalized(outcome string)
	SetBondsHeld(total float64)
	ObserveGovernanceRejection(reason string)
	ObserveExitCustody(assetType string)
}

// Engine bundles the collaborators every treasury operation needs
// (persistence, event emission, the clock, and the external token/proposal
// collaborators) so the gateway and executor layers can call one method
// per command instead of threading five arguments through every handler.
type Engine struct {
	Store        Store
	Emitter      events.Emitter
	Proposals    ProposalReader
	Governance   KnownGovernancePrograms
	Eligibility  EligibilityCheck
	Tokens       TokenService
	NativeLedger NativeLedger
	Metrics      MetricsSink
	Now          func() time.Time
}

// WithClock overrides the engine's time source; tests use this to pin a
// deterministic now().
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.Now = now
	return e
}

func (e *Engine) now() int64 {
	if e.Now == nil {
		return time.Now().Unix()
	}
	return e.Now().Unix()
}

// metrics returns a no-op-safe sink: every MetricsSink method above is
// already nil-receiver safe on the concrete observability type, but a nil
// interface value can't dispatch at all, so this substitutes a sink whose
// calls are simply dropped.
func (e *Engine) metrics() MetricsSink {
	if e.Metrics == nil {
		return noopMetrics{}
	}
	return e.Metrics
}

type noopMetrics struct{}

func (noopMetrics) ObservePayoutQueued(string)        {}
func (noopMetrics) ObservePayoutReleased(string)      {}
func (noopMetrics) ObservePayoutDenied(string)        {}
func (noopMetrics) ObservePayoutCancelled(string)     {}
func (noopMetrics) ObserveChallengeOpened(string)     {}
func (noopMetrics) ObserveAppealFiled(uint8)          {}
func (noopMetrics) ObserveRulingFinalized(string)     {}
func (noopMetrics) SetBondsHeld(float64)              {}
func (noopMetrics) ObserveGovernanceRejection(string) {}
func (noopMetrics) ObserveExitCustody(string)         {}

func (e *Engine) InitializeSafePolicy(ctx context.Context, policyAddr crypto.Address, args InitializeSafePolicyArgs) (SafePolicy, error) {
	return InitializeSafePolicy(ctx, e.Store, e.Emitter, policyAddr, args)
}

func (e *Engine) UpdateSafePolicy(ctx context.Context, policyAddr, caller crypto.Address, args UpdateSafePolicyArgs) (SafePolicy, error) {
	return UpdateSafePolicy(ctx, e.Store, e.Emitter, policyAddr, caller, args)
}

func (e *Engine) InitTreasuryRegistry(ctx context.Context) (TreasuryRegistry, error) {
	return InitTreasuryRegistry(ctx, e.Store)
}

func (e *Engine) RegisterTreasury(ctx context.Context, policyAddr, caller crypto.Address, args RegisterTreasuryArgs) (TreasuryInfo, error) {
	return RegisterTreasury(ctx, e.Store, e.Emitter, policyAddr, caller, e.now(), args)
}

func (e *Engine) InitNativeVault(ctx context.Context, policyAddr, safe, caller crypto.Address) (NativeVault, error) {
	return InitNativeVault(ctx, e.Store, policyAddr, safe, caller)
}

func (e *Engine) InitFungibleVault(ctx context.Context, policyAddr, mint, caller crypto.Address) (FungibleVault, error) {
	return InitFungibleVault(ctx, e.Store, policyAddr, mint, caller)
}

func (e *Engine) InitBondVault(ctx context.Context) (BondVault, error) {
	return InitBondVault(ctx, e.Store)
}

func (e *Engine) FundNativeVault(ctx context.Context, policyAddr, safe crypto.Address, amount uint64) (NativeVault, error) {
	policy, err := e.Store.GetPolicy(ctx, policyAddr)
	if err != nil {
		return NativeVault{}, fmt.Errorf("load policy: %w", err)
	}
	vault, err := e.Store.GetNativeVault(ctx, safe)
	if err != nil {
		return NativeVault{}, fmt.Errorf("load native vault: %w", err)
	}
	funded, err := FundNativeVault(vault, policy, amount)
	if err != nil {
		return NativeVault{}, err
	}
	if err := e.Store.PutNativeVault(ctx, funded); err != nil {
		return NativeVault{}, fmt.Errorf("persist native vault: %w", err)
	}
	return funded, nil
}

func (e *Engine) FundFungibleVault(ctx context.Context, policyAddr, mint crypto.Address, amount uint64) (FungibleVault, error) {
	policy, err := e.Store.GetPolicy(ctx, policyAddr)
	if err != nil {
		return FungibleVault{}, fmt.Errorf("load policy: %w", err)
	}
	vault, err := e.Store.GetFungibleVault(ctx, policyAddr, mint)
	if err != nil {
		return FungibleVault{}, fmt.Errorf("load fungible vault: %w", err)
	}
	funded, err := FundFungibleVault(vault, policy, amount)
	if err != nil {
		return FungibleVault{}, err
	}
	if err := e.Store.PutFungibleVault(ctx, funded); err != nil {
		return FungibleVault{}, fmt.Errorf("persist fungible vault: %w", err)
	}
	return funded, nil
}

func (e *Engine) QueuePayout(ctx context.Context, policyAddr, safe crypto.Address, args QueuePayoutArgs) (Payout, error) {
	p, err := QueuePayout(ctx, e.Store, e.Emitter, e.Proposals, e.Governance, policyAddr, safe, e.now(), args)
	if err != nil {
		if reason := governanceRejectionReason(err); reason != "" {
			e.metrics().ObserveGovernanceRejection(reason)
		}
		return Payout{}, err
	}
	e.metrics().ObservePayoutQueued(p.AssetType.String())
	return p, nil
}

func (e *Engine) ReleaseNativePayout(ctx context.Context, payoutID uint64, vaultKey [32]byte) (Payout, error) {
	p, err := ReleaseNativePayout(ctx, e.Store, e.Emitter, e.NativeLedger, payoutID, vaultKey, e.now())
	if err != nil {
		return Payout{}, err
	}
	e.metrics().ObservePayoutReleased(p.AssetType.String())
	return p, nil
}

func (e *Engine) ReleaseFungiblePayout(ctx context.Context, policyAddr crypto.Address, payoutID uint64, vaultTokenAccount, recipientTokenAccount crypto.Address, tokenProgram [20]byte) (Payout, error) {
	p, err := ReleaseFungiblePayout(ctx, e.Store, e.Emitter, e.Tokens, policyAddr, payoutID, vaultTokenAccount, recipientTokenAccount, tokenProgram, e.now())
	if err != nil {
		return Payout{}, err
	}
	e.metrics().ObservePayoutReleased(p.AssetType.String())
	return p, nil
}

func (e *Engine) CancelPayout(ctx context.Context, policyAddr, caller crypto.Address, payoutID uint64) (Payout, error) {
	p, err := CancelPayout(ctx, e.Store, e.Emitter, policyAddr, caller, payoutID)
	if err != nil {
		return Payout{}, err
	}
	e.metrics().ObservePayoutCancelled(p.AssetType.String())
	return p, nil
}

func (e *Engine) ExitCustody(ctx context.Context, policyAddr, caller crypto.Address, vaultKey [32]byte, args ExitCustodyArgs) error {
	if err := ExitCustody(ctx, e.Store, e.Emitter, e.Tokens, e.NativeLedger, policyAddr, caller, vaultKey, args); err != nil {
		return err
	}
	e.metrics().ObserveExitCustody(args.AssetType.String())
	return nil
}

func (e *Engine) ChallengePayout(ctx context.Context, payoutID uint64, challenger crypto.Address, bondAmount uint64) (Payout, Challenge, error) {
	p, c, err := ChallengePayout(ctx, e.Store, e.Emitter, e.Eligibility, payoutID, challenger, bondAmount, e.now())
	if err != nil {
		return Payout{}, Challenge{}, err
	}
	e.metrics().ObserveChallengeOpened(p.Safe.String())
	return p, c, nil
}

func (e *Engine) RecordRuling(ctx context.Context, payoutID uint64, args RecordRulingArgs) (Payout, error) {
	p, err := RecordRuling(ctx, e.Store, e.Emitter, e.Proposals, e.Governance, e.NativeLedger, payoutID, e.now(), args)
	if err != nil {
		if reason := governanceRejectionReason(err); reason != "" {
			e.metrics().ObserveGovernanceRejection(reason)
		}
		return Payout{}, err
	}
	return p, nil
}

func (e *Engine) AppealRuling(ctx context.Context, payoutID uint64, appellant crypto.Address) (Payout, Challenge, uint64, error) {
	p, c, requiredBond, err := AppealRuling(ctx, e.Store, e.Emitter, payoutID, appellant, e.now())
	if err != nil {
		return Payout{}, Challenge{}, 0, err
	}
	e.metrics().ObserveAppealFiled(c.Round)
	return p, c, requiredBond, nil
}

func (e *Engine) FinalizeRuling(ctx context.Context, payoutID uint64) (Payout, error) {
	p, err := FinalizeRuling(ctx, e.Store, e.Emitter, e.NativeLedger, payoutID, e.now())
	if err != nil {
		return Payout{}, err
	}
	if p.FinalOutcome != nil {
		e.metrics().ObserveRulingFinalized(p.FinalOutcome.String())
	}
	if bondVault, bvErr := e.Store.GetBondVault(ctx); bvErr == nil {
		e.metrics().SetBondsHeld(float64(bondVault.TotalBondsHeld))
	}
	return p, nil
}
