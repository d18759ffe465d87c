package treasury

import (
	"context"
	"fmt"
	"sync"

	"arbitrationd/crypto"
)

// MemoryStore is an in-process, mutex-guarded Store implementation used by
// tests and by single-instance deployments that don't need durable
// persistence across restarts.
type MemoryStore struct {
	mu sync.Mutex

	policies          map[string]SafePolicy
	treasuryRegistry  *TreasuryRegistry
	treasuryInfos     map[string]TreasuryInfo
	payouts           map[uint64]Payout
	challenges        map[uint64]Challenge
	nativeVaults      map[string]NativeVault
	fungibleVaults    map[string]FungibleVault
	bondVault         *BondVault
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies:       make(map[string]SafePolicy),
		treasuryInfos:  make(map[string]TreasuryInfo),
		payouts:        make(map[uint64]Payout),
		challenges:     make(map[uint64]Challenge),
		nativeVaults:   make(map[string]NativeVault),
		fungibleVaults: make(map[string]FungibleVault),
	}
}

func addrKey(a crypto.Address) string { return a.String() }

func (m *MemoryStore) GetPolicy(_ context.Context, policy crypto.Address) (SafePolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[addrKey(policy)]
	if !ok {
		return SafePolicy{}, fmt.Errorf("policy %s not found", policy)
	}
	return p.Clone(), nil
}

func (m *MemoryStore) PutPolicy(_ context.Context, policy crypto.Address, p SafePolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[addrKey(policy)] = p.Clone()
	return nil
}

func (m *MemoryStore) GetTreasuryRegistry(_ context.Context) (TreasuryRegistry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.treasuryRegistry == nil {
		return TreasuryRegistry{}, fmt.Errorf("treasury registry not initialized")
	}
	return *m.treasuryRegistry, nil
}

func (m *MemoryStore) PutTreasuryRegistry(_ context.Context, r TreasuryRegistry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.treasuryRegistry = &r
	return nil
}

func (m *MemoryStore) GetTreasuryInfo(_ context.Context, safe crypto.Address) (TreasuryInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.treasuryInfos[addrKey(safe)]
	if !ok {
		return TreasuryInfo{}, fmt.Errorf("treasury info for %s not found", safe)
	}
	return info, nil
}

func (m *MemoryStore) PutTreasuryInfo(_ context.Context, safe crypto.Address, info TreasuryInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.treasuryInfos[addrKey(safe)] = info
	return nil
}

func (m *MemoryStore) GetPayout(_ context.Context, payoutID uint64) (Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[payoutID]
	if !ok {
		return Payout{}, fmt.Errorf("payout %d not found", payoutID)
	}
	return p.Clone(), nil
}

func (m *MemoryStore) PutPayout(_ context.Context, p Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts[p.PayoutID] = p.Clone()
	return nil
}

func (m *MemoryStore) PayoutExists(_ context.Context, payoutID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.payouts[payoutID]
	return ok, nil
}

func (m *MemoryStore) GetChallenge(_ context.Context, payoutID uint64) (Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[payoutID]
	if !ok {
		return Challenge{}, fmt.Errorf("challenge for payout %d not found", payoutID)
	}
	return c.Clone(), nil
}

func (m *MemoryStore) PutChallenge(_ context.Context, c Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[c.PayoutID] = c.Clone()
	return nil
}

func (m *MemoryStore) GetNativeVault(_ context.Context, safe crypto.Address) (NativeVault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.nativeVaults[addrKey(safe)]
	if !ok {
		return NativeVault{}, fmt.Errorf("native vault for %s not found", safe)
	}
	return v.Clone(), nil
}

func (m *MemoryStore) PutNativeVault(_ context.Context, v NativeVault) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nativeVaults[addrKey(v.Safe)] = v.Clone()
	return nil
}

func fungibleKey(policy, mint crypto.Address) string {
	return policy.String() + "|" + mint.String()
}

func (m *MemoryStore) GetFungibleVault(_ context.Context, policy, mint crypto.Address) (FungibleVault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.fungibleVaults[fungibleKey(policy, mint)]
	if !ok {
		return FungibleVault{}, fmt.Errorf("fungible vault for %s/%s not found", policy, mint)
	}
	return v.Clone(), nil
}

func (m *MemoryStore) PutFungibleVault(_ context.Context, v FungibleVault) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fungibleVaults[fungibleKey(v.Policy, v.Mint)] = v.Clone()
	return nil
}

func (m *MemoryStore) GetBondVault(_ context.Context) (BondVault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bondVault == nil {
		return BondVault{}, nil
	}
	return m.bondVault.Clone(), nil
}

func (m *MemoryStore) PutBondVault(_ context.Context, v BondVault) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cloned := v.Clone()
	m.bondVault = &cloned
	return nil
}
