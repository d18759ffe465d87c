package treasury

import (
	"bytes"
	"fmt"

	domainerrors "arbitrationd/core/errors"
	"arbitrationd/core/hash"
	"arbitrationd/crypto"
)

// ProposalReader reads the raw record and owning program identity of a
// governance proposal account the caller claims to hold. In production it
// is backed by an external collaborator that watches the governance
// program's account state; this package only ever reads records through
// this interface, never produces them.
type ProposalReader interface {
	ReadProposal(proposalAddr [20]byte) (owner [20]byte, data []byte, err error)
}

// DirectAuth is the signer-checked "mode 0" authorization: the caller
// supplies an ECDSA signature over the canonical digest of the command,
// and the recovered address must equal expected (a policy's authority or
// resolver field).
func DirectAuth(digest [32]byte, sig []byte, expected crypto.Address) error {
	recovered, err := crypto.RecoverAddress(digest, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrUnauthorized, err)
	}
	if !bytes.Equal(recovered.Bytes(), expected.Bytes()) {
		return domainerrors.ErrUnauthorized
	}
	return nil
}

// GovernanceQueueAuth verifies a queue_payout governance-mode command: the
// proposal's governance identity must equal the policy's authority, and
// the caller-supplied payload hash must equal the hash of the actual
// queue arguments under the policy in force.
func GovernanceQueueAuth(reader ProposalReader, known KnownGovernancePrograms, proposalAddr [20]byte, expectedAuthority crypto.Address, providedPayloadHash *hash.Digest, safePolicy crypto.Address, recipient crypto.Address, assetType AssetType, amount uint64, mint *crypto.Address, metadataHash *hash.Digest) error {
	owner, data, err := reader.ReadProposal(proposalAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrInvalidProposalProof, err)
	}
	proof, err := ParseGovernanceProposalProof(owner, known, data)
	if err != nil {
		return err
	}
	if !bytes.Equal(proof.Governance[:], expectedAuthority.Bytes()) {
		return domainerrors.ErrUnauthorized
	}
	if providedPayloadHash == nil {
		return fmt.Errorf("%w: missing payload hash", domainerrors.ErrInvalidProposalProof)
	}
	var mintArr *[20]byte
	if mint != nil {
		var m [20]byte
		copy(m[:], mint.Bytes())
		mintArr = &m
	}
	var safeArr, recipArr [20]byte
	copy(safeArr[:], safePolicy.Bytes())
	copy(recipArr[:], recipient.Bytes())
	expected := hash.QueuePayloadHash(safeArr, recipArr, byte(assetType), amount, mintArr, metadataHash)
	if expected != *providedPayloadHash {
		return domainerrors.ErrPayloadHashMismatch
	}
	return nil
}

// GovernanceRulingAuth verifies a record_ruling governance-mode command:
// the proposal's governance identity must equal the policy's resolver,
// the proposal must be in a passed state, the caller-supplied payload
// hash must match the ruling's actual arguments, and (if the caller
// supplied an expected proposal state) that state must match the proposal
// account's actual recorded state.
func GovernanceRulingAuth(reader ProposalReader, known KnownGovernancePrograms, proposalAddr [20]byte, expectedResolver crypto.Address, payoutID uint64, round uint8, outcome RulingOutcome, isFinal bool, providedPayloadHash *hash.Digest, expectedProposalState *uint8) error {
	owner, data, err := reader.ReadProposal(proposalAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrInvalidProposalProof, err)
	}
	proof, err := ParseGovernanceProposalProof(owner, known, data)
	if err != nil {
		return err
	}
	if !bytes.Equal(proof.Governance[:], expectedResolver.Bytes()) {
		return domainerrors.ErrUnauthorizedResolver
	}
	if !IsPassedProposalState(proof.State) {
		return domainerrors.ErrProposalNotPassed
	}
	if providedPayloadHash == nil {
		return fmt.Errorf("%w: missing payload hash", domainerrors.ErrInvalidProposalProof)
	}
	expected := hash.RulingPayloadHash(payoutID, round, byte(outcome), isFinal)
	if expected != *providedPayloadHash {
		return domainerrors.ErrPayloadHashMismatch
	}
	if expectedProposalState != nil && *expectedProposalState != proof.State {
		return domainerrors.ErrInvalidProposalProof
	}
	return nil
}
