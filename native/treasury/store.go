package treasury

import (
	"context"

	"arbitrationd/crypto"
)

// Store is the persistence surface the Engine operates against.
// services/executor provides SQLiteStore (the default) and GormStore
// (postgres); tests use an in-memory implementation.
//
// Every Get returns a Clone()'d value safe for the caller to mutate; every
// Put persists a caller-owned value. Implementations must serialize
// concurrent mutation of the same key (each Put in the durable backends is
// a single-row upsert).
type Store interface {
	GetPolicy(ctx context.Context, policy crypto.Address) (SafePolicy, error)
	PutPolicy(ctx context.Context, policy crypto.Address, p SafePolicy) error

	GetTreasuryRegistry(ctx context.Context) (TreasuryRegistry, error)
	PutTreasuryRegistry(ctx context.Context, r TreasuryRegistry) error
	GetTreasuryInfo(ctx context.Context, safe crypto.Address) (TreasuryInfo, error)
	PutTreasuryInfo(ctx context.Context, safe crypto.Address, info TreasuryInfo) error

	GetPayout(ctx context.Context, payoutID uint64) (Payout, error)
	PutPayout(ctx context.Context, p Payout) error
	PayoutExists(ctx context.Context, payoutID uint64) (bool, error)

	GetChallenge(ctx context.Context, payoutID uint64) (Challenge, error)
	PutChallenge(ctx context.Context, c Challenge) error

	GetNativeVault(ctx context.Context, safe crypto.Address) (NativeVault, error)
	PutNativeVault(ctx context.Context, v NativeVault) error

	GetFungibleVault(ctx context.Context, policy, mint crypto.Address) (FungibleVault, error)
	PutFungibleVault(ctx context.Context, v FungibleVault) error

	GetBondVault(ctx context.Context) (BondVault, error)
	PutBondVault(ctx context.Context, v BondVault) error
}
