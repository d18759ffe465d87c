// Package treasury implements the bonded treasury arbitration domain: safe
// policies, payouts, the challenge/appeal/finalize dispute protocol, and
// the custody vaults backing them. Types follow the Clone()/Sanitize()
// validated-copy idiom used throughout this module's native/ packages:
// callers read a Clone() of persisted state, mutate it, and hand it back
// to a store rather than holding a live pointer into the store's memory.
package treasury

import (
	"fmt"

	"arbitrationd/core/hash"
	"arbitrationd/crypto"

	domainerrors "arbitrationd/core/errors"
)

// PayoutStatus mirrors the on-chain payout lifecycle states.
type PayoutStatus uint8

const (
	PayoutStatusQueued PayoutStatus = iota
	PayoutStatusChallenged
	PayoutStatusReleased
	PayoutStatusCancelled
	PayoutStatusDenied
)

func (s PayoutStatus) Valid() bool {
	return s <= PayoutStatusDenied
}

func (s PayoutStatus) String() string {
	switch s {
	case PayoutStatusQueued:
		return "queued"
	case PayoutStatusChallenged:
		return "challenged"
	case PayoutStatusReleased:
		return "released"
	case PayoutStatusCancelled:
		return "cancelled"
	case PayoutStatusDenied:
		return "denied"
	default:
		panic(fmt.Sprintf("invalid PayoutStatus discriminant: %d", uint8(s)))
	}
}

// AssetType identifies what kind of asset a payout moves.
type AssetType uint8

const (
	AssetTypeNative AssetType = iota
	AssetTypeFungible
	AssetTypeFungible2022
	AssetTypeNFT
)

func (a AssetType) Valid() bool {
	return a <= AssetTypeNFT
}

func (a AssetType) String() string {
	switch a {
	case AssetTypeNative:
		return "native"
	case AssetTypeFungible:
		return "fungible"
	case AssetTypeFungible2022:
		return "fungible2022"
	case AssetTypeNFT:
		return "nft"
	default:
		panic(fmt.Sprintf("invalid AssetType discriminant: %d", uint8(a)))
	}
}

// RulingOutcome is the resolver's or governance vote's verdict on a
// challenge round.
type RulingOutcome uint8

const (
	RulingOutcomeAllow RulingOutcome = iota
	RulingOutcomeDeny
)

func (o RulingOutcome) Valid() bool {
	return o <= RulingOutcomeDeny
}

func (o RulingOutcome) String() string {
	switch o {
	case RulingOutcomeAllow:
		return "allow"
	case RulingOutcomeDeny:
		return "deny"
	default:
		panic(fmt.Sprintf("invalid RulingOutcome discriminant: %d", uint8(o)))
	}
}

// TreasuryMode selects whether a registered safe's custody is enforced
// through this service's vaults or left as a legacy, unmanaged treasury.
type TreasuryMode uint8

const (
	TreasuryModeSafeCustodied TreasuryMode = iota
	TreasuryModeLegacy
)

func (m TreasuryMode) Valid() bool {
	return m <= TreasuryModeLegacy
}

// AuthorizationMode selects how a privileged command proves it is
// entitled to act: a directly-signing authority/resolver, or a passed
// governance proposal bound to the command payload by hash.
type AuthorizationMode uint8

const (
	AuthModeDirect AuthorizationMode = iota
	AuthModeGovernanceProof
)

func (m AuthorizationMode) Valid() bool {
	return m <= AuthModeGovernanceProof
}

// Fixed protocol constants.
const (
	MinDisputeWindowSecs uint64 = 3600
	MinChallengeBond     uint64 = 10_000_000
	MinAppealRounds      uint8  = 2
	AppealBondMultiplier uint8  = 2
)

// SafePolicy is the governance-controlled configuration of a safe. A copy
// of it is frozen onto every Payout at queue time (policy_snapshot), so a
// later policy update never changes the rules a pending payout is judged
// against.
type SafePolicy struct {
	Authority                  crypto.Address
	Resolver                   crypto.Address
	DisputeWindowSecs          uint64
	ChallengeBond              uint64
	EligibilityMint            crypto.Address
	MinTokenBalance            uint64
	MaxAppealRounds            uint8
	AppealWindowDurationSecs   uint64
	AppealBondMultiplier       uint8
	PolicyHash                 [32]byte
	ExitCustodyAllowed         bool
	PayoutCancellationAllowed  bool
	TreasuryModeEnabled        bool
	PayoutCount                uint64
}

// Clone returns a deep, independent copy of the policy.
func (p SafePolicy) Clone() SafePolicy {
	return p
}

// Sanitize validates invariants that must hold for any policy accepted by
// InitializeSafePolicy or UpdateSafePolicy.
func (p SafePolicy) Sanitize() error {
	if p.DisputeWindowSecs < MinDisputeWindowSecs {
		return fmt.Errorf("%w: dispute_window %d below floor %d", domainerrors.ErrPolicyFloorViolation, p.DisputeWindowSecs, MinDisputeWindowSecs)
	}
	if p.ChallengeBond < MinChallengeBond {
		return fmt.Errorf("%w: challenge_bond %d below floor %d", domainerrors.ErrPolicyFloorViolation, p.ChallengeBond, MinChallengeBond)
	}
	if p.MaxAppealRounds < MinAppealRounds {
		return fmt.Errorf("%w: max_appeal_rounds %d below floor %d", domainerrors.ErrPolicyFloorViolation, p.MaxAppealRounds, MinAppealRounds)
	}
	return nil
}

// Payout is a single queued, possibly disputed, movement of value out of a
// safe's custody.
type Payout struct {
	PayoutID         uint64
	PayoutIndex      uint64
	Safe             crypto.Address
	AssetType        AssetType
	Mint             *crypto.Address
	Recipient        crypto.Address
	Amount           uint64
	MetadataHash     *hash.Digest
	Status           PayoutStatus
	DisputeDeadline  int64 // unix seconds
	PolicySnapshot   SafePolicy
	ChallengeID      *uint64
	DisputeRound     uint8
	Finalized        bool
	FinalOutcome     *RulingOutcome
}

// Clone returns a deep, independent copy.
func (p Payout) Clone() Payout {
	cloned := p
	if p.Mint != nil {
		m := *p.Mint
		cloned.Mint = &m
	}
	if p.MetadataHash != nil {
		h := *p.MetadataHash
		cloned.MetadataHash = &h
	}
	if p.ChallengeID != nil {
		c := *p.ChallengeID
		cloned.ChallengeID = &c
	}
	if p.FinalOutcome != nil {
		o := *p.FinalOutcome
		cloned.FinalOutcome = &o
	}
	cloned.PolicySnapshot = p.PolicySnapshot.Clone()
	return cloned
}

// IsReleasableAt reports whether the payout may be released as of now.
// An unchallenged payout is releasable once its dispute window has
// elapsed. A challenged payout is releasable only once finalized with an
// Allow outcome; an un-finalized or Denied challenge blocks release.
func (p Payout) IsReleasableAt(now int64) bool {
	if p.ChallengeID == nil {
		return now >= p.DisputeDeadline
	}
	if !p.Finalized {
		return false
	}
	return p.FinalOutcome != nil && *p.FinalOutcome == RulingOutcomeAllow
}

// Challenge tracks a dispute raised against a Queued payout.
type Challenge struct {
	PayoutID               uint64
	Challenger             crypto.Address
	BondAmount             uint64
	Round                  uint8
	CreatedAt              int64
	AppealDeadline         int64
	CurrentOutcome         *RulingOutcome
	RulingRecordedForRound uint8
}

// Clone returns a deep, independent copy.
func (c Challenge) Clone() Challenge {
	cloned := c
	if c.CurrentOutcome != nil {
		o := *c.CurrentOutcome
		cloned.CurrentOutcome = &o
	}
	return cloned
}

// NativeVault custodies the native asset for exactly one safe.
type NativeVault struct {
	Safe      crypto.Address
	Authority crypto.Address
	Balance   uint64
}

func (v NativeVault) Clone() NativeVault { return v }

// FungibleVault custodies one fungible mint for one policy's safe.
type FungibleVault struct {
	Policy  crypto.Address
	Mint    crypto.Address
	Owner   crypto.Address
	Balance uint64
}

func (v FungibleVault) Clone() FungibleVault { return v }

// BondVault is the single pooled vault holding every outstanding challenge
// and appeal bond across all safes.
type BondVault struct {
	TotalBondsHeld uint64
	Balance        uint64
}

func (v BondVault) Clone() BondVault { return v }

// TreasuryInfo records how a safe's custody is managed.
type TreasuryInfo struct {
	Safe         crypto.Address
	Mode         TreasuryMode
	RegisteredAt int64
}

func (t TreasuryInfo) IsEnforced() bool { return t.Mode == TreasuryModeSafeCustodied }
func (t TreasuryInfo) IsLegacy() bool   { return t.Mode == TreasuryModeLegacy }

// TreasuryRegistry counts registered safes.
type TreasuryRegistry struct {
	TreasuryCount uint64
}
