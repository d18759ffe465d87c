package executor

import (
	"context"
	"fmt"
	"sync"

	domainerrors "arbitrationd/core/errors"
	"arbitrationd/crypto"
	"arbitrationd/native/treasury"
)

// MemoryTokenLedger is a minimal in-process stand-in for the external
// fungible/NFT token ledger native/treasury.TokenService and
// EligibilityCheck assume: production token balances live in a system
// this service never models directly. It satisfies both interfaces, and
// NativeLedger as well, so
// the gateway always has something to wire the Engine's collaborators
// to; operators integrating a real token ledger replace this with an
// adapter over their own balance/transfer RPC.
type MemoryTokenLedger struct {
	mu             sync.Mutex
	balances       map[string]uint64
	nativeBalances map[string]uint64
}

func NewMemoryTokenLedger() *MemoryTokenLedger {
	return &MemoryTokenLedger{
		balances:       make(map[string]uint64),
		nativeBalances: make(map[string]uint64),
	}
}

func ledgerKey(holder, mint crypto.Address) string {
	return holder.String() + "|" + mint.String()
}

// Credit seeds or tops up a holder's balance of mint; used by operators
// and tests to prepare eligibility/vault-funding state.
func (l *MemoryTokenLedger) Credit(holder, mint crypto.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[ledgerKey(holder, mint)] += amount
}

// Balance implements native/treasury.EligibilityCheck.
func (l *MemoryTokenLedger) Balance(_ context.Context, holder, mint crypto.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[ledgerKey(holder, mint)], nil
}

// TransferAsVaultAuthority implements native/treasury.TokenService: it
// debits fromVault and credits toRecipient, both tracked under the same
// mint key space as Balance.
func (l *MemoryTokenLedger) TransferAsVaultAuthority(_ context.Context, _ crypto.Address, mint, fromVault, toRecipient crypto.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(fromVault, mint)
	if l.balances[key] < amount {
		return domainerrors.ErrInsufficientTokenBalance
	}
	l.balances[key] -= amount
	l.balances[ledgerKey(toRecipient, mint)] += amount
	return nil
}

// CreditNative implements native/treasury.NativeLedger: it pays recipient
// native units directly, tracked separately from the mint-keyed fungible
// balances above since native transfers never carry a mint.
func (l *MemoryTokenLedger) CreditNative(_ context.Context, recipient crypto.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nativeBalances[recipient.String()] += amount
	return nil
}

// NativeBalance reports a holder's accumulated native credits; used by
// operators and tests to observe the effect of CreditNative.
func (l *MemoryTokenLedger) NativeBalance(holder crypto.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nativeBalances[holder.String()]
}

var _ treasury.TokenService = (*MemoryTokenLedger)(nil)
var _ treasury.EligibilityCheck = (*MemoryTokenLedger)(nil)
var _ treasury.NativeLedger = (*MemoryTokenLedger)(nil)

// proposalRecord is one governance proposal account as
// native/treasury.ProposalReader would read it off-chain: the program
// that owns it, and its raw account bytes.
type proposalRecord struct {
	owner [20]byte
	data  []byte
}

// MemoryProposalReader is a minimal in-process stand-in for the
// governance program's account state. Operators backing a real
// governance program populate Put from whatever watches that program's
// on-chain or off-chain state.
type MemoryProposalReader struct {
	mu        sync.Mutex
	proposals map[[20]byte]proposalRecord
}

func NewMemoryProposalReader() *MemoryProposalReader {
	return &MemoryProposalReader{proposals: make(map[[20]byte]proposalRecord)}
}

// Put records a proposal account's owning program and raw bytes.
func (p *MemoryProposalReader) Put(proposalAddr [20]byte, owner [20]byte, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proposals[proposalAddr] = proposalRecord{owner: owner, data: append([]byte(nil), data...)}
}

// ReadProposal implements native/treasury.ProposalReader.
func (p *MemoryProposalReader) ReadProposal(proposalAddr [20]byte) ([20]byte, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.proposals[proposalAddr]
	if !ok {
		return [20]byte{}, nil, fmt.Errorf("proposal %x not found", proposalAddr)
	}
	return rec.owner, append([]byte(nil), rec.data...), nil
}

var _ treasury.ProposalReader = (*MemoryProposalReader)(nil)
