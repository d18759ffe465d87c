package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"arbitrationd/crypto"
	"arbitrationd/native/treasury"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default, single-instance native/treasury.Store
// backend: a pure-Go embedded database needing no running server. Uses
// modernc.org/sqlite through plain database/sql rather than an ORM;
// GormStore is reserved for the postgres production backend instead of
// duplicating a gorm sqlite dialector.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS policies (
			policy_address TEXT PRIMARY KEY,
			doc BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS treasury_registry (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			treasury_count INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS treasury_infos (
			safe TEXT PRIMARY KEY,
			mode INTEGER NOT NULL,
			registered_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS payouts (
			payout_id INTEGER PRIMARY KEY,
			safe TEXT NOT NULL,
			status INTEGER NOT NULL,
			doc BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS challenges (
			payout_id INTEGER PRIMARY KEY,
			doc BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS native_vaults (
			safe TEXT PRIMARY KEY,
			doc BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS fungible_vaults (
			policy TEXT NOT NULL,
			mint TEXT NOT NULL,
			doc BLOB NOT NULL,
			PRIMARY KEY (policy, mint)
		);`,
		`CREATE TABLE IF NOT EXISTS bond_vault (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			doc BLOB NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Each doc column holds the JSON encoding of the shared model types
// (policyModel, payoutModel, etc.), which keep address fields as bech32
// strings and digests as hex so the stored JSON is human-readable for
// operators inspecting the database directly; a payout's policy snapshot
// is a nested JSON blob and appears base64-encoded.
type addressJSON = string

func encodeAddr(a crypto.Address) addressJSON { return a.String() }

func (s *SQLiteStore) GetPolicy(ctx context.Context, policy crypto.Address) (treasury.SafePolicy, error) {
	var doc []byte
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM policies WHERE policy_address = ?`, encodeAddr(policy))
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return treasury.SafePolicy{}, fmt.Errorf("policy %s not found", policy)
		}
		return treasury.SafePolicy{}, err
	}
	var m policyModel
	if err := json.Unmarshal(doc, &m); err != nil {
		return treasury.SafePolicy{}, err
	}
	return policyFromModel(m)
}

func (s *SQLiteStore) PutPolicy(ctx context.Context, policy crypto.Address, p treasury.SafePolicy) error {
	doc, err := json.Marshal(policyToModel(policy, p))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO policies (policy_address, doc) VALUES (?, ?)
		ON CONFLICT(policy_address) DO UPDATE SET doc = excluded.doc`, encodeAddr(policy), doc)
	return err
}

func (s *SQLiteStore) GetTreasuryRegistry(ctx context.Context) (treasury.TreasuryRegistry, error) {
	var count uint64
	row := s.db.QueryRowContext(ctx, `SELECT treasury_count FROM treasury_registry WHERE id = 1`)
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return treasury.TreasuryRegistry{}, fmt.Errorf("treasury registry not initialized")
		}
		return treasury.TreasuryRegistry{}, err
	}
	return treasury.TreasuryRegistry{TreasuryCount: count}, nil
}

func (s *SQLiteStore) PutTreasuryRegistry(ctx context.Context, r treasury.TreasuryRegistry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO treasury_registry (id, treasury_count) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET treasury_count = excluded.treasury_count`, r.TreasuryCount)
	return err
}

func (s *SQLiteStore) GetTreasuryInfo(ctx context.Context, safe crypto.Address) (treasury.TreasuryInfo, error) {
	var mode uint8
	var registeredAt int64
	row := s.db.QueryRowContext(ctx, `SELECT mode, registered_at FROM treasury_infos WHERE safe = ?`, encodeAddr(safe))
	if err := row.Scan(&mode, &registeredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return treasury.TreasuryInfo{}, fmt.Errorf("treasury info for %s not found", safe)
		}
		return treasury.TreasuryInfo{}, err
	}
	return treasury.TreasuryInfo{Safe: safe, Mode: treasury.TreasuryMode(mode), RegisteredAt: registeredAt}, nil
}

func (s *SQLiteStore) PutTreasuryInfo(ctx context.Context, safe crypto.Address, info treasury.TreasuryInfo) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO treasury_infos (safe, mode, registered_at) VALUES (?, ?, ?)
		ON CONFLICT(safe) DO UPDATE SET mode = excluded.mode, registered_at = excluded.registered_at`,
		encodeAddr(safe), uint8(info.Mode), info.RegisteredAt)
	return err
}

func (s *SQLiteStore) GetPayout(ctx context.Context, payoutID uint64) (treasury.Payout, error) {
	var doc []byte
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM payouts WHERE payout_id = ?`, payoutID)
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return treasury.Payout{}, fmt.Errorf("payout %d not found", payoutID)
		}
		return treasury.Payout{}, err
	}
	var m payoutModel
	if err := json.Unmarshal(doc, &m); err != nil {
		return treasury.Payout{}, err
	}
	return payoutFromModel(m)
}

func (s *SQLiteStore) PutPayout(ctx context.Context, p treasury.Payout) error {
	m, err := payoutToModel(p)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO payouts (payout_id, safe, status, doc) VALUES (?, ?, ?, ?)
		ON CONFLICT(payout_id) DO UPDATE SET safe = excluded.safe, status = excluded.status, doc = excluded.doc`,
		p.PayoutID, p.Safe.String(), uint8(p.Status), doc)
	return err
}

func (s *SQLiteStore) PayoutExists(ctx context.Context, payoutID uint64) (bool, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM payouts WHERE payout_id = ?`, payoutID)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLiteStore) GetChallenge(ctx context.Context, payoutID uint64) (treasury.Challenge, error) {
	var doc []byte
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM challenges WHERE payout_id = ?`, payoutID)
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return treasury.Challenge{}, fmt.Errorf("challenge for payout %d not found", payoutID)
		}
		return treasury.Challenge{}, err
	}
	var m challengeModel
	if err := json.Unmarshal(doc, &m); err != nil {
		return treasury.Challenge{}, err
	}
	return challengeFromModel(m)
}

func (s *SQLiteStore) PutChallenge(ctx context.Context, c treasury.Challenge) error {
	doc, err := json.Marshal(challengeToModel(c))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO challenges (payout_id, doc) VALUES (?, ?)
		ON CONFLICT(payout_id) DO UPDATE SET doc = excluded.doc`, c.PayoutID, doc)
	return err
}

func (s *SQLiteStore) GetNativeVault(ctx context.Context, safe crypto.Address) (treasury.NativeVault, error) {
	var doc []byte
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM native_vaults WHERE safe = ?`, encodeAddr(safe))
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return treasury.NativeVault{}, fmt.Errorf("native vault for %s not found", safe)
		}
		return treasury.NativeVault{}, err
	}
	var m nativeVaultModel
	if err := json.Unmarshal(doc, &m); err != nil {
		return treasury.NativeVault{}, err
	}
	return nativeVaultFromModel(m)
}

func (s *SQLiteStore) PutNativeVault(ctx context.Context, v treasury.NativeVault) error {
	doc, err := json.Marshal(nativeVaultToModel(v))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO native_vaults (safe, doc) VALUES (?, ?)
		ON CONFLICT(safe) DO UPDATE SET doc = excluded.doc`, v.Safe.String(), doc)
	return err
}

func (s *SQLiteStore) GetFungibleVault(ctx context.Context, policy, mint crypto.Address) (treasury.FungibleVault, error) {
	var doc []byte
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM fungible_vaults WHERE policy = ? AND mint = ?`, encodeAddr(policy), encodeAddr(mint))
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return treasury.FungibleVault{}, fmt.Errorf("fungible vault for %s/%s not found", policy, mint)
		}
		return treasury.FungibleVault{}, err
	}
	var m fungibleVaultModel
	if err := json.Unmarshal(doc, &m); err != nil {
		return treasury.FungibleVault{}, err
	}
	return fungibleVaultFromModel(m)
}

func (s *SQLiteStore) PutFungibleVault(ctx context.Context, v treasury.FungibleVault) error {
	doc, err := json.Marshal(fungibleVaultToModel(v))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO fungible_vaults (policy, mint, doc) VALUES (?, ?, ?)
		ON CONFLICT(policy, mint) DO UPDATE SET doc = excluded.doc`, v.Policy.String(), v.Mint.String(), doc)
	return err
}

func (s *SQLiteStore) GetBondVault(ctx context.Context) (treasury.BondVault, error) {
	var doc []byte
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM bond_vault WHERE id = 1`)
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return treasury.BondVault{}, nil
		}
		return treasury.BondVault{}, err
	}
	var m bondVaultModel
	if err := json.Unmarshal(doc, &m); err != nil {
		return treasury.BondVault{}, err
	}
	return treasury.BondVault{TotalBondsHeld: m.TotalBondsHeld, Balance: m.Balance}, nil
}

func (s *SQLiteStore) PutBondVault(ctx context.Context, v treasury.BondVault) error {
	doc, err := json.Marshal(bondVaultModel{ID: 1, TotalBondsHeld: v.TotalBondsHeld, Balance: v.Balance})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO bond_vault (id, doc) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`, doc)
	return err
}

var _ treasury.Store = (*SQLiteStore)(nil)
