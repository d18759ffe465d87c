package treasury

import (
	"fmt"

	domainerrors "arbitrationd/core/errors"
)

const (
	proposalAccountTypeV2    = 14
	proposalDataMinLen       = 66
	proposalGovernanceStart  = 1
	proposalGovernanceEnd    = 33
	proposalStateIndex       = 65

	ProposalStateExecutable = 4
	ProposalStateExecuted   = 5
)

// GovernanceProposalProof is the binding a record_ruling or queue_payout
// governance-mode command proves against: the identity of the governance
// instance that owns the proposal account, and the proposal's current
// state.
type GovernanceProposalProof struct {
	// Governance is the last 20 bytes of the 32-byte governance identity
	// field recorded in the proposal account, projected down to this
	// service's 20-byte address scheme.
	Governance [20]byte
	State      uint8
}

// KnownGovernancePrograms are the program identities this service accepts
// proposal accounts from. Built at startup from the config's
// [governance] ProgramIDs (config.Global.KnownGovernancePrograms); callers
// compare proposal account ownership against this set before trusting its
// contents.
type KnownGovernancePrograms map[[20]byte]struct{}

func (k KnownGovernancePrograms) Contains(programID [20]byte) bool {
	_, ok := k[programID]
	return ok
}

// IsPassedProposalState reports whether a proposal's on-chain state
// represents a passed vote ready to authorize arbitration outcomes.
func IsPassedProposalState(state uint8) bool {
	return state == ProposalStateExecutable || state == ProposalStateExecuted
}

// ParseGovernanceProposalProof decodes the fixed-layout proposal account
// record: byte 0 is the account type discriminant (must be the v2
// proposal type), bytes 1:33 hold the governance identity, byte 65 holds
// the proposal's state. The record must come from an account owned by one
// of the known governance program identities.
func ParseGovernanceProposalProof(programID [20]byte, known KnownGovernancePrograms, data []byte) (GovernanceProposalProof, error) {
	if !known.Contains(programID) {
		return GovernanceProposalProof{}, fmt.Errorf("%w: proposal owner is not a known governance program", domainerrors.ErrInvalidProposalProof)
	}
	if len(data) < proposalDataMinLen {
		return GovernanceProposalProof{}, fmt.Errorf("%w: proposal record too short (%d bytes)", domainerrors.ErrInvalidProposalProof, len(data))
	}
	if data[0] != proposalAccountTypeV2 {
		return GovernanceProposalProof{}, fmt.Errorf("%w: unexpected proposal account type %d", domainerrors.ErrInvalidProposalProof, data[0])
	}
	governanceField := data[proposalGovernanceStart:proposalGovernanceEnd]
	var governance [20]byte
	copy(governance[:], governanceField[len(governanceField)-20:])
	return GovernanceProposalProof{
		Governance: governance,
		State:      data[proposalStateIndex],
	}, nil
}
