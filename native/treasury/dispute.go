package treasury

import (
	"bytes"
	"context"
	"fmt"

	domainerrors "arbitrationd/core/errors"
	"arbitrationd/core/events"
	"arbitrationd/core/hash"
	"arbitrationd/crypto"
)

// EligibilityCheck reports the challenger's balance of the policy's
// eligibility mint, the external collaborator standing in for a real
// token ledger this package never models directly.
type EligibilityCheck interface {
	Balance(ctx context.Context, holder, mint crypto.Address) (uint64, error)
}

// ChallengePayout opens a dispute against a Queued payout still inside its
// dispute window. The challenger must hold at least policy_snapshot's
// minimum balance of its eligibility mint, and must post exactly the
// policy_snapshot's challenge bond.
func ChallengePayout(ctx context.Context, store Store, emitter events.Emitter, eligibility EligibilityCheck, payoutID uint64, challenger crypto.Address, bondAmount uint64, now int64) (Payout, Challenge, error) {
	payout, err := store.GetPayout(ctx, payoutID)
	if err != nil {
		return Payout{}, Challenge{}, fmt.Errorf("load payout: %w", err)
	}
	if payout.Status != PayoutStatusQueued {
		return Payout{}, Challenge{}, domainerrors.ErrPayoutNotChallengeable
	}
	if now >= payout.DisputeDeadline {
		return Payout{}, Challenge{}, domainerrors.ErrDisputeWindowExpired
	}
	balance, err := eligibility.Balance(ctx, challenger, payout.PolicySnapshot.EligibilityMint)
	if err != nil {
		return Payout{}, Challenge{}, fmt.Errorf("check eligibility: %w", err)
	}
	if balance < payout.PolicySnapshot.MinTokenBalance {
		return Payout{}, Challenge{}, domainerrors.ErrInsufficientTokenBalance
	}
	if bondAmount != payout.PolicySnapshot.ChallengeBond {
		return Payout{}, Challenge{}, domainerrors.ErrIncorrectBondAmount
	}

	bondVault, err := store.GetBondVault(ctx)
	if err != nil {
		return Payout{}, Challenge{}, fmt.Errorf("load bond vault: %w", err)
	}
	newHeld, err := checkedAdd(bondVault.TotalBondsHeld, bondAmount)
	if err != nil {
		return Payout{}, Challenge{}, err
	}
	bondVault.TotalBondsHeld = newHeld
	newBalance, err := checkedAdd(bondVault.Balance, bondAmount)
	if err != nil {
		return Payout{}, Challenge{}, err
	}
	bondVault.Balance = newBalance

	challenge := Challenge{
		PayoutID:               payoutID,
		Challenger:             challenger,
		BondAmount:             bondAmount,
		Round:                  0,
		CreatedAt:              now,
		AppealDeadline:         0,
		CurrentOutcome:         nil,
		RulingRecordedForRound: 0,
	}

	payout.Status = PayoutStatusChallenged
	payout.ChallengeID = &payoutID
	payout.DisputeRound = 0

	if err := store.PutChallenge(ctx, challenge); err != nil {
		return Payout{}, Challenge{}, fmt.Errorf("persist challenge: %w", err)
	}
	if err := store.PutBondVault(ctx, bondVault); err != nil {
		return Payout{}, Challenge{}, fmt.Errorf("persist bond vault: %w", err)
	}
	if err := store.PutPayout(ctx, payout); err != nil {
		return Payout{}, Challenge{}, fmt.Errorf("persist payout: %w", err)
	}
	emitter.Emit(NewPayoutChallengedEvent(payout.Safe, payout.PayoutID, challenger, bondAmount, challenge.Round))
	return payout, challenge, nil
}

// RecordRulingArgs carries a resolver's or passed governance proposal's
// verdict on the current dispute round.
type RecordRulingArgs struct {
	Round   uint8
	Outcome RulingOutcome
	IsFinal bool

	AuthMode      AuthorizationMode
	Signature     []byte // AuthModeDirect: signature over the ruling payload hash, by policy_snapshot.Resolver
	ProposalAddr  [20]byte
	PayloadHash   *hash.Digest
	ProposalState *uint8
}

// RecordRuling records a verdict for the current dispute round. The appeal
// window resets on every recorded round, not just the first, so each
// round's loser has a full fresh window to appeal. If is_final, the
// challenge's bond is settled immediately: Deny refunds the challenger,
// Allow slashes it to the safe's own balance.
func RecordRuling(ctx context.Context, store Store, emitter events.Emitter, reader ProposalReader, known KnownGovernancePrograms, ledger NativeLedger, payoutID uint64, now int64, args RecordRulingArgs) (Payout, error) {
	payout, err := store.GetPayout(ctx, payoutID)
	if err != nil {
		return Payout{}, fmt.Errorf("load payout: %w", err)
	}
	if payout.Status != PayoutStatusChallenged {
		return Payout{}, domainerrors.ErrInvalidStateTransition
	}
	challenge, err := store.GetChallenge(ctx, payoutID)
	if err != nil {
		return Payout{}, fmt.Errorf("load challenge: %w", err)
	}

	switch args.AuthMode {
	case AuthModeDirect:
		digest := hash.RulingPayloadHash(payoutID, args.Round, byte(args.Outcome), args.IsFinal)
		if err := DirectAuth(digest, args.Signature, payout.PolicySnapshot.Resolver); err != nil {
			return Payout{}, domainerrors.ErrUnauthorizedResolver
		}
	case AuthModeGovernanceProof:
		if err := GovernanceRulingAuth(reader, known, args.ProposalAddr, payout.PolicySnapshot.Resolver, payoutID, args.Round, args.Outcome, args.IsFinal, args.PayloadHash, args.ProposalState); err != nil {
			return Payout{}, err
		}
	default:
		return Payout{}, domainerrors.ErrInvalidAuthMode
	}

	if !args.Outcome.Valid() {
		return Payout{}, domainerrors.ErrInvalidRulingOutcome
	}
	nextRoundRecord, err := checkedAdd(uint64(args.Round), 1)
	if err != nil {
		return Payout{}, err
	}
	if args.Round != payout.DisputeRound {
		return Payout{}, domainerrors.ErrRoundMismatch
	}
	if payout.Finalized {
		return Payout{}, domainerrors.ErrAlreadyFinalized
	}
	if !(uint64(challenge.RulingRecordedForRound) < nextRoundRecord) {
		return Payout{}, domainerrors.ErrRulingAlreadyRecorded
	}

	newDeadline, err := addDuration(now, payout.PolicySnapshot.AppealWindowDurationSecs)
	if err != nil {
		return Payout{}, err
	}
	challenge.AppealDeadline = newDeadline
	outcome := args.Outcome
	challenge.CurrentOutcome = &outcome
	challenge.RulingRecordedForRound = uint8(nextRoundRecord)

	if args.IsFinal {
		if err := finalizeChallengeBond(ctx, store, emitter, ledger, &payout, &challenge, outcome); err != nil {
			return Payout{}, err
		}
	}

	if err := store.PutChallenge(ctx, challenge); err != nil {
		return Payout{}, fmt.Errorf("persist challenge: %w", err)
	}
	if err := store.PutPayout(ctx, payout); err != nil {
		return Payout{}, fmt.Errorf("persist payout: %w", err)
	}
	emitter.Emit(NewRulingRecordedEvent(payout.Safe, payout.PayoutID, args.Round, args.Outcome, args.IsFinal))
	return payout, nil
}

// AppealRuling escalates a still-open dispute to the next round. Only the
// original challenger may appeal, only within the current appeal window,
// and only while appeal rounds remain. The required bond grows as
// challenge_bond * appeal_bond_multiplier^(round+1).
func AppealRuling(ctx context.Context, store Store, emitter events.Emitter, payoutID uint64, appellant crypto.Address, now int64) (Payout, Challenge, uint64, error) {
	payout, err := store.GetPayout(ctx, payoutID)
	if err != nil {
		return Payout{}, Challenge{}, 0, fmt.Errorf("load payout: %w", err)
	}
	if payout.Status != PayoutStatusChallenged {
		return Payout{}, Challenge{}, 0, domainerrors.ErrInvalidStateTransition
	}
	if payout.Finalized {
		return Payout{}, Challenge{}, 0, domainerrors.ErrAlreadyFinalized
	}
	challenge, err := store.GetChallenge(ctx, payoutID)
	if err != nil {
		return Payout{}, Challenge{}, 0, fmt.Errorf("load challenge: %w", err)
	}
	if challenge.Round >= payout.PolicySnapshot.MaxAppealRounds {
		return Payout{}, Challenge{}, 0, domainerrors.ErrMaxAppealsReached
	}
	if now >= challenge.AppealDeadline {
		return Payout{}, Challenge{}, 0, domainerrors.ErrAppealWindowExpired
	}
	if !bytes.Equal(appellant.Bytes(), challenge.Challenger.Bytes()) {
		return Payout{}, Challenge{}, 0, domainerrors.ErrUnauthorized
	}

	appealPower := uint32(challenge.Round) + 1
	multiplier, err := checkedPow(uint64(payout.PolicySnapshot.AppealBondMultiplier), appealPower)
	if err != nil {
		return Payout{}, Challenge{}, 0, err
	}
	requiredBond, err := checkedMul(payout.PolicySnapshot.ChallengeBond, multiplier)
	if err != nil {
		return Payout{}, Challenge{}, 0, err
	}

	bondVault, err := store.GetBondVault(ctx)
	if err != nil {
		return Payout{}, Challenge{}, 0, fmt.Errorf("load bond vault: %w", err)
	}
	if bondVault.TotalBondsHeld, err = checkedAdd(bondVault.TotalBondsHeld, requiredBond); err != nil {
		return Payout{}, Challenge{}, 0, err
	}
	if bondVault.Balance, err = checkedAdd(bondVault.Balance, requiredBond); err != nil {
		return Payout{}, Challenge{}, 0, err
	}

	if challenge.BondAmount, err = checkedAdd(challenge.BondAmount, requiredBond); err != nil {
		return Payout{}, Challenge{}, 0, err
	}
	newRound, err := checkedAdd(uint64(challenge.Round), 1)
	if err != nil {
		return Payout{}, Challenge{}, 0, err
	}
	challenge.Round = uint8(newRound)
	payout.DisputeRound = challenge.Round
	challenge.CurrentOutcome = nil

	newDeadline, err := addDuration(now, payout.PolicySnapshot.AppealWindowDurationSecs)
	if err != nil {
		return Payout{}, Challenge{}, 0, err
	}
	challenge.AppealDeadline = newDeadline

	if err := store.PutBondVault(ctx, bondVault); err != nil {
		return Payout{}, Challenge{}, 0, fmt.Errorf("persist bond vault: %w", err)
	}
	if err := store.PutChallenge(ctx, challenge); err != nil {
		return Payout{}, Challenge{}, 0, fmt.Errorf("persist challenge: %w", err)
	}
	if err := store.PutPayout(ctx, payout); err != nil {
		return Payout{}, Challenge{}, 0, fmt.Errorf("persist payout: %w", err)
	}
	emitter.Emit(NewRulingAppealedEvent(payout.Safe, payout.PayoutID, challenge.Round, requiredBond))
	return payout, challenge, requiredBond, nil
}

// FinalizeRuling closes a dispute once it is no longer appealable: either
// the maximum appeal rounds have been exhausted, or the current appeal
// window has lapsed. At least one ruling must already have been recorded
// (ruling_recorded_for_round > 0); otherwise a challenge's initial
// appeal_deadline of zero would always satisfy the deadline check and let
// finalize_ruling be called the instant a challenge is opened. If no
// ruling was ever recorded for the final round, the outcome defaults to
// Deny: the payout stays blocked rather than silently releasing.
func FinalizeRuling(ctx context.Context, store Store, emitter events.Emitter, ledger NativeLedger, payoutID uint64, now int64) (Payout, error) {
	payout, err := store.GetPayout(ctx, payoutID)
	if err != nil {
		return Payout{}, fmt.Errorf("load payout: %w", err)
	}
	if payout.Status != PayoutStatusChallenged {
		return Payout{}, domainerrors.ErrInvalidStateTransition
	}
	if payout.Finalized {
		return Payout{}, domainerrors.ErrAlreadyFinalized
	}
	challenge, err := store.GetChallenge(ctx, payoutID)
	if err != nil {
		return Payout{}, fmt.Errorf("load challenge: %w", err)
	}
	if challenge.RulingRecordedForRound == 0 {
		return Payout{}, domainerrors.ErrCannotFinalizeYet
	}

	canFinalize := challenge.Round >= payout.PolicySnapshot.MaxAppealRounds || now >= challenge.AppealDeadline
	if !canFinalize {
		return Payout{}, domainerrors.ErrCannotFinalizeYet
	}

	outcome := RulingOutcomeDeny
	if challenge.CurrentOutcome != nil {
		outcome = *challenge.CurrentOutcome
	}

	if err := finalizeChallengeBond(ctx, store, emitter, ledger, &payout, &challenge, outcome); err != nil {
		return Payout{}, err
	}

	if err := store.PutChallenge(ctx, challenge); err != nil {
		return Payout{}, fmt.Errorf("persist challenge: %w", err)
	}
	if err := store.PutPayout(ctx, payout); err != nil {
		return Payout{}, fmt.Errorf("persist payout: %w", err)
	}
	emitter.Emit(NewRulingFinalizedEvent(payout.Safe, payout.PayoutID, challenge.Round, outcome))
	return payout, nil
}

// finalizeChallengeBond applies the terminal state transition and bond
// settlement shared by record_ruling's is_final branch and
// finalize_ruling: Allow releases the payout back to Queued and slashes
// the challenger's bond to the safe; Deny denies the payout and refunds
// the challenger's bond.
func finalizeChallengeBond(ctx context.Context, store Store, emitter events.Emitter, ledger NativeLedger, payout *Payout, challenge *Challenge, outcome RulingOutcome) error {
	payout.Finalized = true
	payout.FinalOutcome = &outcome

	if outcome == RulingOutcomeAllow {
		payout.Status = PayoutStatusQueued
	} else {
		payout.Status = PayoutStatusDenied
		emitter.Emit(NewPayoutDeniedEvent(payout.Safe, payout.PayoutID))
	}

	bondVault, err := store.GetBondVault(ctx)
	if err != nil {
		return fmt.Errorf("load bond vault: %w", err)
	}
	bond := challenge.BondAmount
	if bondVault.TotalBondsHeld, err = checkedSub(bondVault.TotalBondsHeld, bond); err != nil {
		return err
	}
	if bondVault.Balance, err = checkedSub(bondVault.Balance, bond); err != nil {
		return err
	}

	switch outcome {
	case RulingOutcomeDeny:
		if err := ledger.CreditNative(ctx, challenge.Challenger, bond); err != nil {
			return fmt.Errorf("refund challenger bond: %w", err)
		}
	case RulingOutcomeAllow:
		safeVault, err := store.GetNativeVault(ctx, payout.Safe)
		if err == nil {
			if newBalance, addErr := checkedAdd(safeVault.Balance, bond); addErr == nil {
				safeVault.Balance = newBalance
				_ = store.PutNativeVault(ctx, safeVault)
			}
		}
	}

	return store.PutBondVault(ctx, bondVault)
}
