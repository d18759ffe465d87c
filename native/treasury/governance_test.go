package treasury_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	domainerrors "arbitrationd/core/errors"
	"arbitrationd/core/events"
	"arbitrationd/core/hash"
	"arbitrationd/native/treasury"
	"arbitrationd/services/executor"
)

// encodeProposal builds a fixed-layout v2 proposal account record matching
// ParseGovernanceProposalProof's expected shape: byte 0 is the account type
// discriminant, bytes 1:33 hold the governance identity (right-aligned into
// the last 20 bytes), byte 65 holds the proposal state.
func encodeProposal(governance [20]byte, state uint8) []byte {
	data := make([]byte, 66)
	data[0] = 14
	copy(data[1+12:33], governance[:])
	data[65] = state
	return data
}

func TestParseGovernanceProposalProof_RejectsUnknownProgram(t *testing.T) {
	known := treasury.KnownGovernancePrograms{}
	_, err := treasury.ParseGovernanceProposalProof([20]byte{9}, known, encodeProposal([20]byte{1}, treasury.ProposalStateExecuted))
	require.ErrorIs(t, err, domainerrors.ErrInvalidProposalProof)
}

func TestParseGovernanceProposalProof_RejectsShortRecord(t *testing.T) {
	programID := hash.ProgramID("test-governance")
	known := treasury.KnownGovernancePrograms{programID: struct{}{}}
	_, err := treasury.ParseGovernanceProposalProof(programID, known, []byte{14, 1, 2})
	require.ErrorIs(t, err, domainerrors.ErrInvalidProposalProof)
}

func TestParseGovernanceProposalProof_RejectsWrongAccountType(t *testing.T) {
	programID := hash.ProgramID("test-governance")
	known := treasury.KnownGovernancePrograms{programID: struct{}{}}
	data := encodeProposal([20]byte{1}, treasury.ProposalStateExecuted)
	data[0] = 1
	_, err := treasury.ParseGovernanceProposalProof(programID, known, data)
	require.ErrorIs(t, err, domainerrors.ErrInvalidProposalProof)
}

func TestParseGovernanceProposalProof_RoundTrip(t *testing.T) {
	programID := hash.ProgramID("test-governance")
	known := treasury.KnownGovernancePrograms{programID: struct{}{}}
	var governance [20]byte
	copy(governance[:], []byte("governance-address--"))

	proof, err := treasury.ParseGovernanceProposalProof(programID, known, encodeProposal(governance, treasury.ProposalStateExecutable))
	require.NoError(t, err)
	require.Equal(t, governance, proof.Governance)
	require.True(t, treasury.IsPassedProposalState(proof.State))
}

func TestQueuePayout_GovernanceProofMode(t *testing.T) {
	ctx := context.Background()
	store := treasury.NewMemoryStore()
	_, authority := newSigner(t)
	resolver := newAddr(t)
	mint := newAddr(t)
	policyAddr := newAddr(t)
	safe := newAddr(t)
	recipient := newAddr(t)

	_, err := treasury.InitializeSafePolicy(ctx, store, events.NoopEmitter{}, policyAddr, validPolicyArgs(authority, resolver, mint))
	require.NoError(t, err)

	programID := hash.ProgramID("dao-governance")
	known := treasury.KnownGovernancePrograms{programID: struct{}{}}

	reader := executor.NewMemoryProposalReader()
	var proposalAddr [20]byte
	copy(proposalAddr[:], []byte("proposal-account----"))

	var authorityArr [20]byte
	copy(authorityArr[:], authority.Bytes())
	reader.Put(proposalAddr, programID, encodeProposal(authorityArr, treasury.ProposalStateExecuted))

	var safeArr, recipArr [20]byte
	copy(safeArr[:], policyAddr.Bytes())
	copy(recipArr[:], recipient.Bytes())
	payloadHash := hash.QueuePayloadHash(safeArr, recipArr, byte(treasury.AssetTypeNative), 500, nil, nil)

	args := treasury.QueuePayoutArgs{
		AssetType:    treasury.AssetTypeNative,
		Recipient:    recipient,
		Amount:       500,
		AuthMode:     treasury.AuthModeGovernanceProof,
		ProposalAddr: proposalAddr,
		PayloadHash:  &payloadHash,
	}

	payout, err := treasury.QueuePayout(ctx, store, events.NoopEmitter{}, reader, known, policyAddr, safe, 0, args)
	require.NoError(t, err)
	require.Equal(t, treasury.PayoutStatusQueued, payout.Status)
}

func TestQueuePayout_GovernanceProofRejectsPayloadMismatch(t *testing.T) {
	ctx := context.Background()
	store := treasury.NewMemoryStore()
	_, authority := newSigner(t)
	resolver := newAddr(t)
	mint := newAddr(t)
	policyAddr := newAddr(t)
	safe := newAddr(t)
	recipient := newAddr(t)

	_, err := treasury.InitializeSafePolicy(ctx, store, events.NoopEmitter{}, policyAddr, validPolicyArgs(authority, resolver, mint))
	require.NoError(t, err)

	programID := hash.ProgramID("dao-governance")
	known := treasury.KnownGovernancePrograms{programID: struct{}{}}
	reader := executor.NewMemoryProposalReader()
	var proposalAddr [20]byte
	copy(proposalAddr[:], []byte("proposal-account----"))
	var authorityArr [20]byte
	copy(authorityArr[:], authority.Bytes())
	reader.Put(proposalAddr, programID, encodeProposal(authorityArr, treasury.ProposalStateExecuted))

	wrongHash := hash.Digest{0xff}
	args := treasury.QueuePayoutArgs{
		AssetType:    treasury.AssetTypeNative,
		Recipient:    recipient,
		Amount:       500,
		AuthMode:     treasury.AuthModeGovernanceProof,
		ProposalAddr: proposalAddr,
		PayloadHash:  &wrongHash,
	}

	_, err = treasury.QueuePayout(ctx, store, events.NoopEmitter{}, reader, known, policyAddr, safe, 0, args)
	require.ErrorIs(t, err, domainerrors.ErrPayloadHashMismatch)
}

func TestQueuePayout_GovernanceProofRejectsUnknownProgram(t *testing.T) {
	ctx := context.Background()
	store := treasury.NewMemoryStore()
	_, authority := newSigner(t)
	resolver := newAddr(t)
	mint := newAddr(t)
	policyAddr := newAddr(t)
	safe := newAddr(t)
	recipient := newAddr(t)

	_, err := treasury.InitializeSafePolicy(ctx, store, events.NoopEmitter{}, policyAddr, validPolicyArgs(authority, resolver, mint))
	require.NoError(t, err)

	programID := hash.ProgramID("dao-governance")
	known := treasury.KnownGovernancePrograms{programID: struct{}{}}
	reader := executor.NewMemoryProposalReader()
	var proposalAddr [20]byte
	copy(proposalAddr[:], []byte("proposal-account----"))
	var authorityArr [20]byte
	copy(authorityArr[:], authority.Bytes())
	// GovernanceQueueAuth does not itself check proposal state passedness
	// (only GovernanceRulingAuth does); an unknown program is used instead
	// to exercise queue_payout's own rejection path.
	reader.Put(proposalAddr, [20]byte{0xde, 0xad}, encodeProposal(authorityArr, treasury.ProposalStateExecuted))

	var safeArr, recipArr [20]byte
	copy(safeArr[:], policyAddr.Bytes())
	copy(recipArr[:], recipient.Bytes())
	payloadHash := hash.QueuePayloadHash(safeArr, recipArr, byte(treasury.AssetTypeNative), 500, nil, nil)

	args := treasury.QueuePayoutArgs{
		AssetType:    treasury.AssetTypeNative,
		Recipient:    recipient,
		Amount:       500,
		AuthMode:     treasury.AuthModeGovernanceProof,
		ProposalAddr: proposalAddr,
		PayloadHash:  &payloadHash,
	}

	_, err = treasury.QueuePayout(ctx, store, events.NoopEmitter{}, reader, known, policyAddr, safe, 0, args)
	require.ErrorIs(t, err, domainerrors.ErrInvalidProposalProof)
}
