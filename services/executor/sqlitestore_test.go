package executor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"arbitrationd/core/hash"
	"arbitrationd/crypto"
	"arbitrationd/native/treasury"
	"arbitrationd/services/executor"
)

func newTestAddr(t *testing.T) crypto.Address {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key.PubKey().Address()
}

func newTestStore(t *testing.T) *executor.SQLiteStore {
	t.Helper()
	store, err := executor.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func samplePolicy(authority, resolver, mint crypto.Address) treasury.SafePolicy {
	return treasury.SafePolicy{
		Authority:                 authority,
		Resolver:                  resolver,
		DisputeWindowSecs:         treasury.MinDisputeWindowSecs,
		ChallengeBond:             treasury.MinChallengeBond,
		EligibilityMint:           mint,
		MinTokenBalance:           10,
		MaxAppealRounds:           treasury.MinAppealRounds,
		AppealWindowDurationSecs:  3600,
		AppealBondMultiplier:      2,
		PolicyHash:                [32]byte{1, 2, 3},
		ExitCustodyAllowed:        true,
		PayoutCancellationAllowed: true,
		TreasuryModeEnabled:       false,
		PayoutCount:               3,
	}
}

func TestSQLiteStore_PolicyRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	policyAddr := newTestAddr(t)

	_, err := store.GetPolicy(ctx, policyAddr)
	require.Error(t, err)

	policy := samplePolicy(newTestAddr(t), newTestAddr(t), newTestAddr(t))
	require.NoError(t, store.PutPolicy(ctx, policyAddr, policy))

	loaded, err := store.GetPolicy(ctx, policyAddr)
	require.NoError(t, err)
	require.Equal(t, policy.Authority.String(), loaded.Authority.String())
	require.Equal(t, policy.ChallengeBond, loaded.ChallengeBond)
	require.Equal(t, policy.PolicyHash, loaded.PolicyHash)

	// Overwrite exercises the ON CONFLICT upsert path.
	policy.PayoutCount = 9
	require.NoError(t, store.PutPolicy(ctx, policyAddr, policy))
	reloaded, err := store.GetPolicy(ctx, policyAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(9), reloaded.PayoutCount)
}

func TestSQLiteStore_TreasuryRegistryAndInfo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetTreasuryRegistry(ctx)
	require.Error(t, err)

	require.NoError(t, store.PutTreasuryRegistry(ctx, treasury.TreasuryRegistry{TreasuryCount: 5}))
	reg, err := store.GetTreasuryRegistry(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(5), reg.TreasuryCount)

	safe := newTestAddr(t)
	_, err = store.GetTreasuryInfo(ctx, safe)
	require.Error(t, err)

	info := treasury.TreasuryInfo{Safe: safe, Mode: treasury.TreasuryModeSafeCustodied, RegisteredAt: 1000}
	require.NoError(t, store.PutTreasuryInfo(ctx, safe, info))
	loaded, err := store.GetTreasuryInfo(ctx, safe)
	require.NoError(t, err)
	require.Equal(t, treasury.TreasuryModeSafeCustodied, loaded.Mode)
	require.Equal(t, int64(1000), loaded.RegisteredAt)
}

func TestSQLiteStore_PayoutRoundTripWithMetadataHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	authority := newTestAddr(t)
	resolver := newTestAddr(t)
	mint := newTestAddr(t)
	safe := newTestAddr(t)
	recipient := newTestAddr(t)

	exists, err := store.PayoutExists(ctx, 42)
	require.NoError(t, err)
	require.False(t, exists)

	digest := hash.Digest{7, 8, 9}
	payout := treasury.Payout{
		PayoutID:        42,
		PayoutIndex:     1,
		Safe:            safe,
		AssetType:       treasury.AssetTypeNative,
		Recipient:       recipient,
		Amount:          500,
		MetadataHash:    &digest,
		Status:          treasury.PayoutStatusQueued,
		DisputeDeadline: 123456,
		PolicySnapshot:  samplePolicy(authority, resolver, mint),
	}
	require.NoError(t, store.PutPayout(ctx, payout))

	exists, err = store.PayoutExists(ctx, 42)
	require.NoError(t, err)
	require.True(t, exists)

	loaded, err := store.GetPayout(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, payout.Amount, loaded.Amount)
	require.Equal(t, treasury.PayoutStatusQueued, loaded.Status)
	require.NotNil(t, loaded.MetadataHash)
	require.Equal(t, digest, *loaded.MetadataHash)
	require.Equal(t, payout.PolicySnapshot.ChallengeBond, loaded.PolicySnapshot.ChallengeBond)

	_, err = store.GetPayout(ctx, 999)
	require.Error(t, err)
}

func TestSQLiteStore_ChallengeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetChallenge(ctx, 1)
	require.Error(t, err)

	outcome := treasury.RulingOutcomeAllow
	c := treasury.Challenge{
		PayoutID:               1,
		Challenger:             newTestAddr(t),
		BondAmount:             1000,
		Round:                  1,
		CreatedAt:              10,
		AppealDeadline:         20,
		CurrentOutcome:         &outcome,
		RulingRecordedForRound: 1,
	}
	require.NoError(t, store.PutChallenge(ctx, c))

	loaded, err := store.GetChallenge(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, loaded.CurrentOutcome)
	require.Equal(t, treasury.RulingOutcomeAllow, *loaded.CurrentOutcome)
	require.Equal(t, c.BondAmount, loaded.BondAmount)
}

func TestSQLiteStore_NativeVaultRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	safe := newTestAddr(t)

	_, err := store.GetNativeVault(ctx, safe)
	require.Error(t, err)

	v := treasury.NativeVault{Safe: safe, Authority: newTestAddr(t), Balance: 250}
	require.NoError(t, store.PutNativeVault(ctx, v))

	loaded, err := store.GetNativeVault(ctx, safe)
	require.NoError(t, err)
	require.Equal(t, uint64(250), loaded.Balance)
	require.Equal(t, v.Authority.String(), loaded.Authority.String())
}

func TestSQLiteStore_FungibleVaultRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	policy := newTestAddr(t)
	mint := newTestAddr(t)

	_, err := store.GetFungibleVault(ctx, policy, mint)
	require.Error(t, err)

	v := treasury.FungibleVault{Policy: policy, Mint: mint, Owner: newTestAddr(t), Balance: 750}
	require.NoError(t, store.PutFungibleVault(ctx, v))

	loaded, err := store.GetFungibleVault(ctx, policy, mint)
	require.NoError(t, err)
	require.Equal(t, uint64(750), loaded.Balance)
}

// TestSQLiteStore_BondVaultAbsentReturnsZeroValue pins the asymmetric
// not-found semantics every Store implementation shares: an uninitialized
// bond vault reads back as a zero value with no error, unlike
// GetTreasuryRegistry/GetPolicy/GetPayout which all error.
func TestSQLiteStore_BondVaultAbsentReturnsZeroValue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := store.GetBondVault(ctx)
	require.NoError(t, err)
	require.Zero(t, v.TotalBondsHeld)
	require.Zero(t, v.Balance)

	require.NoError(t, store.PutBondVault(ctx, treasury.BondVault{TotalBondsHeld: 2, Balance: 3000}))
	loaded, err := store.GetBondVault(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), loaded.TotalBondsHeld)
	require.Equal(t, uint64(3000), loaded.Balance)
}
