package executor

import (
	"context"
	"errors"
	"fmt"

	"arbitrationd/crypto"
	"arbitrationd/native/treasury"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the postgres native/treasury.Store backend, opened by
// OpenStore for the "postgres" driver. One row per aggregate, upserted on
// every Put; reads are a plain primary-key lookup. The "sqlite" driver
// uses SQLiteStore instead; both share the same model types.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func upsert(db *gorm.DB, ctx context.Context, value interface{}, conflictCols ...clause.Column) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   conflictCols,
		UpdateAll: true,
	}).Create(value).Error
}

func (s *GormStore) GetPolicy(ctx context.Context, policy crypto.Address) (treasury.SafePolicy, error) {
	var m policyModel
	if err := s.db.WithContext(ctx).First(&m, "policy_address = ?", policy.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return treasury.SafePolicy{}, fmt.Errorf("policy %s not found", policy)
		}
		return treasury.SafePolicy{}, err
	}
	return policyFromModel(m)
}

func (s *GormStore) PutPolicy(ctx context.Context, policy crypto.Address, p treasury.SafePolicy) error {
	m := policyToModel(policy, p)
	return upsert(s.db, ctx, &m, clause.Column{Name: "policy_address"})
}

func (s *GormStore) GetTreasuryRegistry(ctx context.Context) (treasury.TreasuryRegistry, error) {
	var m treasuryRegistryModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return treasury.TreasuryRegistry{}, fmt.Errorf("treasury registry not initialized")
		}
		return treasury.TreasuryRegistry{}, err
	}
	return treasury.TreasuryRegistry{TreasuryCount: m.TreasuryCount}, nil
}

func (s *GormStore) PutTreasuryRegistry(ctx context.Context, r treasury.TreasuryRegistry) error {
	m := treasuryRegistryModel{ID: 1, TreasuryCount: r.TreasuryCount}
	return upsert(s.db, ctx, &m, clause.Column{Name: "id"})
}

func (s *GormStore) GetTreasuryInfo(ctx context.Context, safe crypto.Address) (treasury.TreasuryInfo, error) {
	var m treasuryInfoModel
	if err := s.db.WithContext(ctx).First(&m, "safe = ?", safe.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return treasury.TreasuryInfo{}, fmt.Errorf("treasury info for %s not found", safe)
		}
		return treasury.TreasuryInfo{}, err
	}
	addr, err := crypto.DecodeAddress(m.Safe)
	if err != nil {
		return treasury.TreasuryInfo{}, fmt.Errorf("decode safe: %w", err)
	}
	return treasury.TreasuryInfo{Safe: addr, Mode: treasury.TreasuryMode(m.Mode), RegisteredAt: m.RegisteredAt}, nil
}

func (s *GormStore) PutTreasuryInfo(ctx context.Context, safe crypto.Address, info treasury.TreasuryInfo) error {
	m := treasuryInfoModel{Safe: safe.String(), Mode: uint8(info.Mode), RegisteredAt: info.RegisteredAt}
	return upsert(s.db, ctx, &m, clause.Column{Name: "safe"})
}

func (s *GormStore) GetPayout(ctx context.Context, payoutID uint64) (treasury.Payout, error) {
	var m payoutModel
	if err := s.db.WithContext(ctx).First(&m, "payout_id = ?", payoutID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return treasury.Payout{}, fmt.Errorf("payout %d not found", payoutID)
		}
		return treasury.Payout{}, err
	}
	return payoutFromModel(m)
}

func (s *GormStore) PutPayout(ctx context.Context, p treasury.Payout) error {
	m, err := payoutToModel(p)
	if err != nil {
		return err
	}
	return upsert(s.db, ctx, &m, clause.Column{Name: "payout_id"})
}

func (s *GormStore) PayoutExists(ctx context.Context, payoutID uint64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&payoutModel{}).Where("payout_id = ?", payoutID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) GetChallenge(ctx context.Context, payoutID uint64) (treasury.Challenge, error) {
	var m challengeModel
	if err := s.db.WithContext(ctx).First(&m, "payout_id = ?", payoutID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return treasury.Challenge{}, fmt.Errorf("challenge for payout %d not found", payoutID)
		}
		return treasury.Challenge{}, err
	}
	return challengeFromModel(m)
}

func (s *GormStore) PutChallenge(ctx context.Context, c treasury.Challenge) error {
	m := challengeToModel(c)
	return upsert(s.db, ctx, &m, clause.Column{Name: "payout_id"})
}

func (s *GormStore) GetNativeVault(ctx context.Context, safe crypto.Address) (treasury.NativeVault, error) {
	var m nativeVaultModel
	if err := s.db.WithContext(ctx).First(&m, "safe = ?", safe.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return treasury.NativeVault{}, fmt.Errorf("native vault for %s not found", safe)
		}
		return treasury.NativeVault{}, err
	}
	return nativeVaultFromModel(m)
}

func (s *GormStore) PutNativeVault(ctx context.Context, v treasury.NativeVault) error {
	m := nativeVaultToModel(v)
	return upsert(s.db, ctx, &m, clause.Column{Name: "safe"})
}

func (s *GormStore) GetFungibleVault(ctx context.Context, policy, mint crypto.Address) (treasury.FungibleVault, error) {
	var m fungibleVaultModel
	if err := s.db.WithContext(ctx).First(&m, "policy = ? AND mint = ?", policy.String(), mint.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return treasury.FungibleVault{}, fmt.Errorf("fungible vault for %s/%s not found", policy, mint)
		}
		return treasury.FungibleVault{}, err
	}
	return fungibleVaultFromModel(m)
}

func (s *GormStore) PutFungibleVault(ctx context.Context, v treasury.FungibleVault) error {
	m := fungibleVaultToModel(v)
	return upsert(s.db, ctx, &m, clause.Column{Name: "policy"}, clause.Column{Name: "mint"})
}

func (s *GormStore) GetBondVault(ctx context.Context) (treasury.BondVault, error) {
	var m bondVaultModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return treasury.BondVault{}, nil
		}
		return treasury.BondVault{}, err
	}
	return treasury.BondVault{TotalBondsHeld: m.TotalBondsHeld, Balance: m.Balance}, nil
}

func (s *GormStore) PutBondVault(ctx context.Context, v treasury.BondVault) error {
	m := bondVaultModel{ID: 1, TotalBondsHeld: v.TotalBondsHeld, Balance: v.Balance}
	return upsert(s.db, ctx, &m, clause.Column{Name: "id"})
}

var _ treasury.Store = (*GormStore)(nil)
