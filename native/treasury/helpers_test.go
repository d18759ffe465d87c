package treasury_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"arbitrationd/crypto"
)

// mockEligibility is a fixed-balance stand-in for native/treasury's
// EligibilityCheck collaborator.
type mockEligibility struct {
	balances map[string]uint64
}

func newMockEligibility() *mockEligibility {
	return &mockEligibility{balances: make(map[string]uint64)}
}

func (m *mockEligibility) set(holder crypto.Address, amount uint64) {
	m.balances[holder.String()] = amount
}

func (m *mockEligibility) Balance(_ context.Context, holder, _ crypto.Address) (uint64, error) {
	return m.balances[holder.String()], nil
}

// newSigner generates a fresh private key and its derived address, standing
// in for a policy authority or resolver that signs commands in Direct mode.
func newSigner(t *testing.T) (*crypto.PrivateKey, crypto.Address) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key, key.PubKey().Address()
}

// newAddr generates a fresh address with no associated private key, for
// fields (recipients, safes, mints) that are never signed over directly.
func newAddr(t *testing.T) crypto.Address {
	t.Helper()
	_, addr := newSigner(t)
	return addr
}

func sign(t *testing.T, key *crypto.PrivateKey, digest [32]byte) []byte {
	t.Helper()
	sig, err := key.Sign(digest)
	require.NoError(t, err)
	return sig
}

// mockNativeLedger is an in-process stand-in for native/treasury's
// NativeLedger collaborator, recording credited amounts by recipient.
type mockNativeLedger struct {
	balances map[string]uint64
}

func newMockNativeLedger() *mockNativeLedger {
	return &mockNativeLedger{balances: make(map[string]uint64)}
}

func (m *mockNativeLedger) CreditNative(_ context.Context, recipient crypto.Address, amount uint64) error {
	m.balances[recipient.String()] += amount
	return nil
}

func (m *mockNativeLedger) balanceOf(recipient crypto.Address) uint64 {
	return m.balances[recipient.String()]
}
