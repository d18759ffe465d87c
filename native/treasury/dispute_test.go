package treasury_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	domainerrors "arbitrationd/core/errors"
	"arbitrationd/core/events"
	"arbitrationd/core/hash"
	"arbitrationd/crypto"
	"arbitrationd/native/treasury"
)

type disputeFixture struct {
	store        *treasury.MemoryStore
	policyAddr   crypto.Address
	safe         crypto.Address
	authorityKey *crypto.PrivateKey
	authority    crypto.Address
	resolverKey  *crypto.PrivateKey
	resolver     crypto.Address
	eligibility  *mockEligibility
	ledger       *mockNativeLedger
	challenger   crypto.Address
	payout       treasury.Payout
}

// rulingArgs signs the ruling payload hash for the given round/outcome/final
// flag with the fixture's resolver key, matching the digest RecordRuling
// recomputes server-side to verify against in Direct mode.
func (f *disputeFixture) rulingArgs(t *testing.T, round uint8, outcome treasury.RulingOutcome, isFinal bool) treasury.RecordRulingArgs {
	t.Helper()
	digest := hash.RulingPayloadHash(f.payout.PayoutID, round, byte(outcome), isFinal)
	return treasury.RecordRulingArgs{
		Round:     round,
		Outcome:   outcome,
		IsFinal:   isFinal,
		AuthMode:  treasury.AuthModeDirect,
		Signature: sign(t, f.resolverKey, digest),
	}
}

// rulingArgsSignedBy is rulingArgs but signed by an arbitrary key, for
// exercising the wrong-resolver rejection path.
func (f *disputeFixture) rulingArgsSignedBy(t *testing.T, key *crypto.PrivateKey, round uint8, outcome treasury.RulingOutcome, isFinal bool) treasury.RecordRulingArgs {
	t.Helper()
	digest := hash.RulingPayloadHash(f.payout.PayoutID, round, byte(outcome), isFinal)
	return treasury.RecordRulingArgs{
		Round:     round,
		Outcome:   outcome,
		IsFinal:   isFinal,
		AuthMode:  treasury.AuthModeDirect,
		Signature: sign(t, key, digest),
	}
}

func newDisputeFixture(t *testing.T) *disputeFixture {
	t.Helper()
	ctx := context.Background()
	store := treasury.NewMemoryStore()
	authorityKey, authority := newSigner(t)
	resolverKey, resolver := newSigner(t)
	mint := newAddr(t)
	policyAddr := newAddr(t)
	safe := newAddr(t)
	recipient := newAddr(t)
	challenger := newAddr(t)

	args := validPolicyArgs(authority, resolver, mint)
	args.MaxAppealRounds = 2
	_, err := treasury.InitializeSafePolicy(ctx, store, events.NoopEmitter{}, policyAddr, args)
	require.NoError(t, err)

	_, err = treasury.InitBondVault(ctx, store)
	require.NoError(t, err)

	_, err = treasury.InitNativeVault(ctx, store, policyAddr, safe, authority)
	require.NoError(t, err)

	payout, err := treasury.QueuePayout(ctx, store, events.NoopEmitter{}, nil, nil, policyAddr, safe, 0, directQueueArgs(t, authorityKey, policyAddr, recipient))
	require.NoError(t, err)

	eligibility := newMockEligibility()
	eligibility.set(challenger, 1)

	return &disputeFixture{
		store:        store,
		policyAddr:   policyAddr,
		safe:         safe,
		authorityKey: authorityKey,
		authority:    authority,
		resolverKey:  resolverKey,
		resolver:     resolver,
		eligibility:  eligibility,
		ledger:       newMockNativeLedger(),
		challenger:   challenger,
		payout:       payout,
	}
}

func (f *disputeFixture) challenge(t *testing.T) treasury.Challenge {
	t.Helper()
	_, challenge, err := treasury.ChallengePayout(context.Background(), f.store, events.NoopEmitter{}, f.eligibility, f.payout.PayoutID, f.challenger, treasury.MinChallengeBond, 0)
	require.NoError(t, err)
	return challenge
}

func TestChallengePayout_RejectsInsufficientEligibility(t *testing.T) {
	f := newDisputeFixture(t)
	f.eligibility.set(f.challenger, 0)
	_, _, err := treasury.ChallengePayout(context.Background(), f.store, events.NoopEmitter{}, f.eligibility, f.payout.PayoutID, f.challenger, treasury.MinChallengeBond, 0)
	require.ErrorIs(t, err, domainerrors.ErrInsufficientTokenBalance)
}

func TestChallengePayout_RejectsWrongBondAmount(t *testing.T) {
	f := newDisputeFixture(t)
	_, _, err := treasury.ChallengePayout(context.Background(), f.store, events.NoopEmitter{}, f.eligibility, f.payout.PayoutID, f.challenger, treasury.MinChallengeBond+1, 0)
	require.ErrorIs(t, err, domainerrors.ErrIncorrectBondAmount)
}

func TestChallengePayout_RejectsAfterDisputeWindow(t *testing.T) {
	f := newDisputeFixture(t)
	_, _, err := treasury.ChallengePayout(context.Background(), f.store, events.NoopEmitter{}, f.eligibility, f.payout.PayoutID, f.challenger, treasury.MinChallengeBond, f.payout.DisputeDeadline)
	require.ErrorIs(t, err, domainerrors.ErrDisputeWindowExpired)
}

func TestChallengePayout_MovesPayoutToChallenged(t *testing.T) {
	f := newDisputeFixture(t)
	payout, challenge, err := treasury.ChallengePayout(context.Background(), f.store, events.NoopEmitter{}, f.eligibility, f.payout.PayoutID, f.challenger, treasury.MinChallengeBond, 0)
	require.NoError(t, err)
	require.Equal(t, treasury.PayoutStatusChallenged, payout.Status)
	require.Equal(t, uint8(0), challenge.Round)

	bondVault, err := f.store.GetBondVault(context.Background())
	require.NoError(t, err)
	require.Equal(t, treasury.MinChallengeBond, bondVault.TotalBondsHeld)
	require.Equal(t, treasury.MinChallengeBond, bondVault.Balance)
}

func TestRecordRulingAndFinalize_AllowReleasesPayoutAndCreditsSafe(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	f.challenge(t)

	_, err := treasury.RecordRuling(ctx, f.store, events.NoopEmitter{}, nil, nil, f.ledger, f.payout.PayoutID, 1000, f.rulingArgs(t, 0, treasury.RulingOutcomeAllow, true))
	require.NoError(t, err)

	final, err := f.store.GetPayout(ctx, f.payout.PayoutID)
	require.NoError(t, err)
	require.True(t, final.Finalized)
	require.NotNil(t, final.FinalOutcome)
	require.Equal(t, treasury.RulingOutcomeAllow, *final.FinalOutcome)
	require.Equal(t, treasury.PayoutStatusQueued, final.Status)
	require.True(t, final.IsReleasableAt(0), "allow-finalized payout is releasable regardless of clock")

	bondVault, err := f.store.GetBondVault(ctx)
	require.NoError(t, err)
	require.Zero(t, bondVault.TotalBondsHeld)
	require.Zero(t, bondVault.Balance)

	vault, err := f.store.GetNativeVault(ctx, f.safe)
	require.NoError(t, err)
	require.Equal(t, treasury.MinChallengeBond, vault.Balance, "slashed bond is credited to the safe's vault")
}

func TestRecordRulingAndFinalize_DenyBlocksPayout(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	f.challenge(t)

	_, err := treasury.RecordRuling(ctx, f.store, events.NoopEmitter{}, nil, nil, f.ledger, f.payout.PayoutID, 1000, f.rulingArgs(t, 0, treasury.RulingOutcomeDeny, true))
	require.NoError(t, err)

	final, err := f.store.GetPayout(ctx, f.payout.PayoutID)
	require.NoError(t, err)
	require.Equal(t, treasury.PayoutStatusDenied, final.Status)
	require.False(t, final.IsReleasableAt(1<<62))

	vault, err := f.store.GetNativeVault(ctx, f.safe)
	require.NoError(t, err)
	require.Zero(t, vault.Balance, "denied challenge does not credit the safe")
	require.Equal(t, treasury.MinChallengeBond, f.ledger.balanceOf(f.challenger), "denied challenge refunds the challenger's bond")
}

func TestRecordRuling_RejectsWrongResolver(t *testing.T) {
	f := newDisputeFixture(t)
	f.challenge(t)
	impostorKey, _ := newSigner(t)

	_, err := treasury.RecordRuling(context.Background(), f.store, events.NoopEmitter{}, nil, nil, f.ledger, f.payout.PayoutID, 1000, f.rulingArgsSignedBy(t, impostorKey, 0, treasury.RulingOutcomeAllow, true))
	require.ErrorIs(t, err, domainerrors.ErrUnauthorizedResolver)
}

func TestRecordRuling_RejectsRoundMismatch(t *testing.T) {
	f := newDisputeFixture(t)
	f.challenge(t)

	_, err := treasury.RecordRuling(context.Background(), f.store, events.NoopEmitter{}, nil, nil, f.ledger, f.payout.PayoutID, 1000, f.rulingArgs(t, 1, treasury.RulingOutcomeAllow, false))
	require.ErrorIs(t, err, domainerrors.ErrRoundMismatch)
}

func TestAppealRuling_EscalatesBondByMultiplier(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	f.challenge(t)

	_, err := treasury.RecordRuling(ctx, f.store, events.NoopEmitter{}, nil, nil, f.ledger, f.payout.PayoutID, 1000, f.rulingArgs(t, 0, treasury.RulingOutcomeDeny, false))
	require.NoError(t, err)

	_, challenge, requiredBond, err := treasury.AppealRuling(ctx, f.store, events.NoopEmitter{}, f.payout.PayoutID, f.challenger, 1500)
	require.NoError(t, err)
	expectedBond := treasury.MinChallengeBond * uint64(treasury.AppealBondMultiplier)
	require.Equal(t, expectedBond, requiredBond)
	require.Equal(t, uint8(1), challenge.Round)
	require.Nil(t, challenge.CurrentOutcome, "appeal clears the prior round's recorded outcome")

	bondVault, err := f.store.GetBondVault(ctx)
	require.NoError(t, err)
	require.Equal(t, treasury.MinChallengeBond+expectedBond, bondVault.TotalBondsHeld)
}

func TestAppealRuling_RejectsNonChallenger(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	f.challenge(t)
	_, err := treasury.RecordRuling(ctx, f.store, events.NoopEmitter{}, nil, nil, f.ledger, f.payout.PayoutID, 1000, f.rulingArgs(t, 0, treasury.RulingOutcomeDeny, false))
	require.NoError(t, err)

	stranger := newAddr(t)
	_, _, _, err = treasury.AppealRuling(ctx, f.store, events.NoopEmitter{}, f.payout.PayoutID, stranger, 1500)
	require.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestAppealRuling_RejectsAfterWindowExpired(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	f.challenge(t)
	_, err := treasury.RecordRuling(ctx, f.store, events.NoopEmitter{}, nil, nil, f.ledger, f.payout.PayoutID, 1000, f.rulingArgs(t, 0, treasury.RulingOutcomeDeny, false))
	require.NoError(t, err)

	payout, err := f.store.GetPayout(ctx, f.payout.PayoutID)
	require.NoError(t, err)
	challenge, err := f.store.GetChallenge(ctx, f.payout.PayoutID)
	require.NoError(t, err)
	_ = payout

	_, _, _, err = treasury.AppealRuling(ctx, f.store, events.NoopEmitter{}, f.payout.PayoutID, f.challenger, challenge.AppealDeadline)
	require.ErrorIs(t, err, domainerrors.ErrAppealWindowExpired)
}

func TestFinalizeRuling_CannotFinalizeBeforeAnyRuling(t *testing.T) {
	f := newDisputeFixture(t)
	f.challenge(t)
	_, err := treasury.FinalizeRuling(context.Background(), f.store, events.NoopEmitter{}, f.ledger, f.payout.PayoutID, 0)
	require.ErrorIs(t, err, domainerrors.ErrCannotFinalizeYet)
}

func TestFinalizeRuling_DefaultsToDenyWhenAppealedRoundNeverRuled(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	f.challenge(t)

	// Round 0 is ruled Allow but not final, so the challenger appeals.
	// AppealRuling resets current_outcome to nil for the new round; if
	// finalize is then called without anyone ruling on round 1, the
	// outcome must default to Deny rather than inheriting round 0's Allow.
	_, err := treasury.RecordRuling(ctx, f.store, events.NoopEmitter{}, nil, nil, f.ledger, f.payout.PayoutID, 1000, f.rulingArgs(t, 0, treasury.RulingOutcomeAllow, false))
	require.NoError(t, err)

	_, _, _, err = treasury.AppealRuling(ctx, f.store, events.NoopEmitter{}, f.payout.PayoutID, f.challenger, 1500)
	require.NoError(t, err)

	challenge, err := f.store.GetChallenge(ctx, f.payout.PayoutID)
	require.NoError(t, err)
	require.Nil(t, challenge.CurrentOutcome)

	final, err := treasury.FinalizeRuling(ctx, f.store, events.NoopEmitter{}, f.ledger, f.payout.PayoutID, challenge.AppealDeadline)
	require.NoError(t, err)
	require.Equal(t, treasury.PayoutStatusDenied, final.Status)
	require.Equal(t, treasury.RulingOutcomeDeny, *final.FinalOutcome)
}

func TestFinalizeRuling_RejectsDoubleFinalize(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	f.challenge(t)
	_, err := treasury.RecordRuling(ctx, f.store, events.NoopEmitter{}, nil, nil, f.ledger, f.payout.PayoutID, 1000, f.rulingArgs(t, 0, treasury.RulingOutcomeDeny, true))
	require.NoError(t, err)

	_, err = treasury.FinalizeRuling(ctx, f.store, events.NoopEmitter{}, f.ledger, f.payout.PayoutID, 2000)
	require.ErrorIs(t, err, domainerrors.ErrAlreadyFinalized)
}
