// Package executor hosts the durable native/treasury.Store backends
// (SQLiteStore and the gorm-backed GormStore) and the in-memory token
// ledger and proposal reader collaborators for native/treasury.Engine.
package executor

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"arbitrationd/core/hash"
	"arbitrationd/crypto"
	"arbitrationd/native/treasury"

	"gorm.io/gorm"
)

// policyModel is the gorm row for a SafePolicy, keyed by the policy
// account's address.
type policyModel struct {
	PolicyAddress             string `gorm:"primaryKey;size:128"`
	Authority                 string `gorm:"size:128;index"`
	Resolver                  string `gorm:"size:128"`
	DisputeWindowSecs         uint64
	ChallengeBond             uint64
	EligibilityMint           string `gorm:"size:128"`
	MinTokenBalance           uint64
	MaxAppealRounds           uint8
	AppealWindowDurationSecs  uint64
	AppealBondMultiplier      uint8
	PolicyHash                string `gorm:"size:64"`
	ExitCustodyAllowed        bool
	PayoutCancellationAllowed bool
	TreasuryModeEnabled       bool
	PayoutCount               uint64
	UpdatedAt                 time.Time
}

func policyToModel(addr crypto.Address, p treasury.SafePolicy) policyModel {
	return policyModel{
		PolicyAddress:             addr.String(),
		Authority:                 p.Authority.String(),
		Resolver:                  p.Resolver.String(),
		DisputeWindowSecs:         p.DisputeWindowSecs,
		ChallengeBond:             p.ChallengeBond,
		EligibilityMint:           p.EligibilityMint.String(),
		MinTokenBalance:           p.MinTokenBalance,
		MaxAppealRounds:           p.MaxAppealRounds,
		AppealWindowDurationSecs:  p.AppealWindowDurationSecs,
		AppealBondMultiplier:      p.AppealBondMultiplier,
		PolicyHash:                hex.EncodeToString(p.PolicyHash[:]),
		ExitCustodyAllowed:        p.ExitCustodyAllowed,
		PayoutCancellationAllowed: p.PayoutCancellationAllowed,
		TreasuryModeEnabled:       p.TreasuryModeEnabled,
		PayoutCount:               p.PayoutCount,
	}
}

func policyFromModel(m policyModel) (treasury.SafePolicy, error) {
	authority, err := crypto.DecodeAddress(m.Authority)
	if err != nil {
		return treasury.SafePolicy{}, fmt.Errorf("decode authority: %w", err)
	}
	resolver, err := crypto.DecodeAddress(m.Resolver)
	if err != nil {
		return treasury.SafePolicy{}, fmt.Errorf("decode resolver: %w", err)
	}
	mint, err := crypto.DecodeAddress(m.EligibilityMint)
	if err != nil {
		return treasury.SafePolicy{}, fmt.Errorf("decode eligibility mint: %w", err)
	}
	hashBytes, err := hex.DecodeString(m.PolicyHash)
	if err != nil || len(hashBytes) != 32 {
		return treasury.SafePolicy{}, fmt.Errorf("decode policy hash: %w", err)
	}
	var hash [32]byte
	copy(hash[:], hashBytes)
	return treasury.SafePolicy{
		Authority:                 authority,
		Resolver:                  resolver,
		DisputeWindowSecs:         m.DisputeWindowSecs,
		ChallengeBond:             m.ChallengeBond,
		EligibilityMint:           mint,
		MinTokenBalance:           m.MinTokenBalance,
		MaxAppealRounds:           m.MaxAppealRounds,
		AppealWindowDurationSecs:  m.AppealWindowDurationSecs,
		AppealBondMultiplier:      m.AppealBondMultiplier,
		PolicyHash:                hash,
		ExitCustodyAllowed:        m.ExitCustodyAllowed,
		PayoutCancellationAllowed: m.PayoutCancellationAllowed,
		TreasuryModeEnabled:       m.TreasuryModeEnabled,
		PayoutCount:               m.PayoutCount,
	}, nil
}

// treasuryRegistryModel is a singleton row (ID always 1).
type treasuryRegistryModel struct {
	ID            uint `gorm:"primaryKey"`
	TreasuryCount uint64
}

// treasuryInfoModel records a registered safe's custody mode.
type treasuryInfoModel struct {
	Safe         string `gorm:"primaryKey;size:128"`
	Mode         uint8
	RegisteredAt int64
}

// payoutModel is the gorm row for a Payout. The policy snapshot frozen at
// queue time is stored as a JSON blob, the usual way of persisting a
// frozen point-in-time document alongside relational columns.
type payoutModel struct {
	PayoutID        uint64 `gorm:"primaryKey"`
	PayoutIndex     uint64
	Safe            string `gorm:"size:128;index"`
	AssetType       uint8
	Mint            *string `gorm:"size:128"`
	Recipient       string  `gorm:"size:128"`
	Amount          uint64
	MetadataHash    *string `gorm:"size:64"`
	Status          uint8   `gorm:"index"`
	DisputeDeadline int64
	PolicySnapshot  []byte `gorm:"type:blob"`
	ChallengeID     *uint64
	DisputeRound    uint8
	Finalized       bool
	FinalOutcome    *uint8
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func payoutToModel(p treasury.Payout) (payoutModel, error) {
	snapshot, err := json.Marshal(policyToModel(p.Safe, p.PolicySnapshot))
	if err != nil {
		return payoutModel{}, fmt.Errorf("marshal policy snapshot: %w", err)
	}
	m := payoutModel{
		PayoutID:        p.PayoutID,
		PayoutIndex:     p.PayoutIndex,
		Safe:            p.Safe.String(),
		AssetType:       uint8(p.AssetType),
		Recipient:       p.Recipient.String(),
		Amount:          p.Amount,
		Status:          uint8(p.Status),
		DisputeDeadline: p.DisputeDeadline,
		PolicySnapshot:  snapshot,
		ChallengeID:     p.ChallengeID,
		DisputeRound:    p.DisputeRound,
		Finalized:       p.Finalized,
	}
	if p.Mint != nil {
		s := p.Mint.String()
		m.Mint = &s
	}
	if p.MetadataHash != nil {
		s := hex.EncodeToString(p.MetadataHash[:])
		m.MetadataHash = &s
	}
	if p.FinalOutcome != nil {
		o := uint8(*p.FinalOutcome)
		m.FinalOutcome = &o
	}
	return m, nil
}

func payoutFromModel(m payoutModel) (treasury.Payout, error) {
	safe, err := crypto.DecodeAddress(m.Safe)
	if err != nil {
		return treasury.Payout{}, fmt.Errorf("decode safe: %w", err)
	}
	recipient, err := crypto.DecodeAddress(m.Recipient)
	if err != nil {
		return treasury.Payout{}, fmt.Errorf("decode recipient: %w", err)
	}
	var snapModel policyModel
	if err := json.Unmarshal(m.PolicySnapshot, &snapModel); err != nil {
		return treasury.Payout{}, fmt.Errorf("unmarshal policy snapshot: %w", err)
	}
	snapshot, err := policyFromModel(snapModel)
	if err != nil {
		return treasury.Payout{}, fmt.Errorf("decode policy snapshot: %w", err)
	}
	p := treasury.Payout{
		PayoutID:        m.PayoutID,
		PayoutIndex:     m.PayoutIndex,
		Safe:            safe,
		AssetType:       treasury.AssetType(m.AssetType),
		Recipient:       recipient,
		Amount:          m.Amount,
		Status:          treasury.PayoutStatus(m.Status),
		DisputeDeadline: m.DisputeDeadline,
		PolicySnapshot:  snapshot,
		ChallengeID:     m.ChallengeID,
		DisputeRound:    m.DisputeRound,
		Finalized:       m.Finalized,
	}
	if m.Mint != nil {
		mint, err := crypto.DecodeAddress(*m.Mint)
		if err != nil {
			return treasury.Payout{}, fmt.Errorf("decode mint: %w", err)
		}
		p.Mint = &mint
	}
	if m.MetadataHash != nil {
		raw, err := hex.DecodeString(*m.MetadataHash)
		if err != nil || len(raw) != 32 {
			return treasury.Payout{}, fmt.Errorf("decode metadata hash: %w", err)
		}
		var h hash.Digest
		copy(h[:], raw)
		p.MetadataHash = &h
	}
	if m.FinalOutcome != nil {
		o := treasury.RulingOutcome(*m.FinalOutcome)
		p.FinalOutcome = &o
	}
	return p, nil
}

// challengeModel is the gorm row for a Challenge, keyed by payout ID (a
// payout has at most one live challenge at a time).
type challengeModel struct {
	PayoutID               uint64 `gorm:"primaryKey"`
	Challenger             string `gorm:"size:128"`
	BondAmount             uint64
	Round                  uint8
	CreatedAt              int64
	AppealDeadline         int64
	CurrentOutcome         *uint8
	RulingRecordedForRound uint8
}

func challengeToModel(c treasury.Challenge) challengeModel {
	m := challengeModel{
		PayoutID:               c.PayoutID,
		Challenger:             c.Challenger.String(),
		BondAmount:             c.BondAmount,
		Round:                  c.Round,
		CreatedAt:              c.CreatedAt,
		AppealDeadline:         c.AppealDeadline,
		RulingRecordedForRound: c.RulingRecordedForRound,
	}
	if c.CurrentOutcome != nil {
		o := uint8(*c.CurrentOutcome)
		m.CurrentOutcome = &o
	}
	return m
}

func challengeFromModel(m challengeModel) (treasury.Challenge, error) {
	challenger, err := crypto.DecodeAddress(m.Challenger)
	if err != nil {
		return treasury.Challenge{}, fmt.Errorf("decode challenger: %w", err)
	}
	c := treasury.Challenge{
		PayoutID:               m.PayoutID,
		Challenger:             challenger,
		BondAmount:             m.BondAmount,
		Round:                  m.Round,
		CreatedAt:              m.CreatedAt,
		AppealDeadline:         m.AppealDeadline,
		RulingRecordedForRound: m.RulingRecordedForRound,
	}
	if m.CurrentOutcome != nil {
		o := treasury.RulingOutcome(*m.CurrentOutcome)
		c.CurrentOutcome = &o
	}
	return c, nil
}

// nativeVaultModel is the gorm row for a NativeVault, keyed by safe.
type nativeVaultModel struct {
	Safe      string `gorm:"primaryKey;size:128"`
	Authority string `gorm:"size:128"`
	Balance   uint64
}

func nativeVaultToModel(v treasury.NativeVault) nativeVaultModel {
	return nativeVaultModel{Safe: v.Safe.String(), Authority: v.Authority.String(), Balance: v.Balance}
}

func nativeVaultFromModel(m nativeVaultModel) (treasury.NativeVault, error) {
	safe, err := crypto.DecodeAddress(m.Safe)
	if err != nil {
		return treasury.NativeVault{}, fmt.Errorf("decode safe: %w", err)
	}
	authority, err := crypto.DecodeAddress(m.Authority)
	if err != nil {
		return treasury.NativeVault{}, fmt.Errorf("decode authority: %w", err)
	}
	return treasury.NativeVault{Safe: safe, Authority: authority, Balance: m.Balance}, nil
}

// fungibleVaultModel is the gorm row for a FungibleVault, keyed by
// (policy, mint).
type fungibleVaultModel struct {
	Policy  string `gorm:"primaryKey;size:128"`
	Mint    string `gorm:"primaryKey;size:128"`
	Owner   string `gorm:"size:128"`
	Balance uint64
}

func fungibleVaultToModel(v treasury.FungibleVault) fungibleVaultModel {
	return fungibleVaultModel{Policy: v.Policy.String(), Mint: v.Mint.String(), Owner: v.Owner.String(), Balance: v.Balance}
}

func fungibleVaultFromModel(m fungibleVaultModel) (treasury.FungibleVault, error) {
	policy, err := crypto.DecodeAddress(m.Policy)
	if err != nil {
		return treasury.FungibleVault{}, fmt.Errorf("decode policy: %w", err)
	}
	mint, err := crypto.DecodeAddress(m.Mint)
	if err != nil {
		return treasury.FungibleVault{}, fmt.Errorf("decode mint: %w", err)
	}
	owner, err := crypto.DecodeAddress(m.Owner)
	if err != nil {
		return treasury.FungibleVault{}, fmt.Errorf("decode owner: %w", err)
	}
	return treasury.FungibleVault{Policy: policy, Mint: mint, Owner: owner, Balance: m.Balance}, nil
}

// bondVaultModel is a singleton row (ID always 1) pooling every
// outstanding challenge/appeal bond.
type bondVaultModel struct {
	ID             uint `gorm:"primaryKey"`
	TotalBondsHeld uint64
	Balance        uint64
}

// AutoMigrate performs all schema migrations for the executor service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&policyModel{},
		&treasuryRegistryModel{},
		&treasuryInfoModel{},
		&payoutModel{},
		&challengeModel{},
		&nativeVaultModel{},
		&fungibleVaultModel{},
		&bondVaultModel{},
	)
}
