// Package errors defines the sentinel error taxonomy returned by the
// treasury arbitration domain. Every operation in native/treasury returns
// one of these (wrapped with fmt.Errorf/%w for context) rather than an
// ad-hoc string, so callers (the gateway, the executor, tests) can use
// errors.Is to branch on failure class.
package errors

import stderrors "errors"

// Authorization
var (
	ErrUnauthorized         = stderrors.New("treasury: unauthorized")
	ErrInvalidAuthMode      = stderrors.New("treasury: invalid authorization mode")
	ErrUnauthorizedResolver = stderrors.New("treasury: unauthorized resolver")
)

// Governance-proof verification
var (
	ErrInvalidProposalProof = stderrors.New("treasury: invalid governance proposal proof")
	ErrProposalNotPassed    = stderrors.New("treasury: governance proposal has not passed")
	ErrPayloadHashMismatch  = stderrors.New("treasury: payload hash mismatch")
)

// Policy / configuration
var (
	ErrPolicyFloorViolation = stderrors.New("treasury: policy floor violation")
	ErrDurationOutOfRange   = stderrors.New("treasury: duration out of range")
	ErrInvalidTreasuryMode  = stderrors.New("treasury: invalid treasury mode")
	ErrTreasuryModeEnabled  = stderrors.New("treasury: treasury mode enabled")
)

// State machine
var (
	ErrInvalidStateTransition     = stderrors.New("treasury: invalid state transition")
	ErrPayoutNotReleasable        = stderrors.New("treasury: payout not releasable")
	ErrPayoutNotChallengeable     = stderrors.New("treasury: payout not challengeable")
	ErrPayoutCancellationDisabled = stderrors.New("treasury: payout cancellation not allowed")
	ErrExitCustodyNotAllowed      = stderrors.New("treasury: exit custody not allowed")
	ErrAlreadyFinalized           = stderrors.New("treasury: ruling already finalized")
	ErrRulingAlreadyRecorded      = stderrors.New("treasury: ruling already recorded for round")
	ErrCannotFinalizeYet          = stderrors.New("treasury: cannot finalize ruling yet")
	ErrInvalidRulingOutcome       = stderrors.New("treasury: invalid ruling outcome")
	ErrMaxAppealsReached          = stderrors.New("treasury: maximum appeal rounds reached")
	ErrRoundMismatch              = stderrors.New("treasury: dispute round mismatch")
)

// Time windows
var (
	ErrDisputeWindowExpired = stderrors.New("treasury: dispute window expired")
	ErrAppealWindowExpired  = stderrors.New("treasury: appeal window expired")
)

// Custody / asset
var (
	ErrInsufficientTokenBalance = stderrors.New("treasury: insufficient token balance")
	ErrMintMismatch             = stderrors.New("treasury: mint mismatch")
	ErrAssetTypeMismatch        = stderrors.New("treasury: asset type mismatch")
	ErrInvalidAssetConfig       = stderrors.New("treasury: invalid asset configuration")
	ErrInvalidNftAmount         = stderrors.New("treasury: nft amount must be exactly one")
	ErrInvalidTokenProgram      = stderrors.New("treasury: invalid token program for asset type")
	ErrRecipientMismatch        = stderrors.New("treasury: recipient mismatch")
	ErrInvalidVaultAccount      = stderrors.New("treasury: invalid vault account")
	ErrMissingTokenAccounts     = stderrors.New("treasury: missing token accounts")
)

// Bonds
var (
	ErrIncorrectBondAmount           = stderrors.New("treasury: incorrect bond amount")
	ErrChallengeBondVaultExists      = stderrors.New("treasury: challenge bond vault already exists")
	ErrChallengeBondVaultNotFound    = stderrors.New("treasury: challenge bond vault not found")
	ErrChallengeNotFound             = stderrors.New("treasury: challenge not found")
)

// Arithmetic
var (
	ErrArithmeticOverflow  = stderrors.New("treasury: arithmetic overflow")
	ErrArithmeticUnderflow = stderrors.New("treasury: arithmetic underflow")
)
