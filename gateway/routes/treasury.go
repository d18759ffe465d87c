// Package routes mounts the HTTP surface for the treasury arbitration
// engine: one handler per command, each decoding a size-limited JSON body,
// translating wire-friendly fields (bech32 addresses, hex digests) into
// native/treasury argument structs, and invoking the corresponding Engine
// method.
package routes

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domainerrors "arbitrationd/core/errors"
	"arbitrationd/core/hash"
	"arbitrationd/crypto"
	"arbitrationd/native/treasury"
)

const treasuryRequestLimit = 1 << 20 // 1 MiB

// treasuryRoutes wires HTTP handlers to a native/treasury.Engine.
type treasuryRoutes struct {
	engine  *treasury.Engine
	timeout time.Duration
}

func newTreasuryRoutes(engine *treasury.Engine) *treasuryRoutes {
	return &treasuryRoutes{engine: engine, timeout: 10 * time.Second}
}

func (tr *treasuryRoutes) mount(r chi.Router) {
	r.Post("/policies/initialize", tr.initializeSafePolicy)
	r.Post("/policies/update", tr.updateSafePolicy)
	r.Post("/treasury/registry/init", tr.initTreasuryRegistry)
	r.Post("/treasury/register", tr.registerTreasury)
	r.Post("/vaults/native/init", tr.initNativeVault)
	r.Post("/vaults/native/fund", tr.fundNativeVault)
	r.Post("/vaults/fungible/init", tr.initFungibleVault)
	r.Post("/vaults/fungible/fund", tr.fundFungibleVault)
	r.Post("/vaults/bond/init", tr.initBondVault)
	r.Post("/payouts/queue", tr.queuePayout)
	r.Post("/payouts/cancel", tr.cancelPayout)
	r.Post("/payouts/release/native", tr.releaseNativePayout)
	r.Post("/payouts/release/fungible", tr.releaseFungiblePayout)
	r.Post("/payouts/exit-custody", tr.exitCustody)
	r.Post("/disputes/challenge", tr.challengePayout)
	r.Post("/disputes/rule", tr.recordRuling)
	r.Post("/disputes/appeal", tr.appealRuling)
	r.Post("/disputes/finalize", tr.finalizeRuling)
}

func (tr *treasuryRoutes) context(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := tr.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

// --- wire helpers -----------------------------------------------------

func decodeAddress(s string) (crypto.Address, error) {
	if strings.TrimSpace(s) == "" {
		return crypto.Address{}, errors.New("address must not be empty")
	}
	addr, err := crypto.DecodeAddress(s)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("decode address %q: %w", s, err)
	}
	return addr, nil
}

func decodeOptionalAddress(s string) (*crypto.Address, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	addr, err := decodeAddress(s)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func decodeHash32(s string) (*[32]byte, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode hash %q: %w", s, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("hash %q must be 32 bytes, got %d", s, len(raw))
	}
	var out [32]byte
	copy(out[:], raw)
	return &out, nil
}

func decodeDigest(s string) (*hash.Digest, error) {
	h, err := decodeHash32(s)
	if err != nil || h == nil {
		return nil, err
	}
	d := hash.Digest(*h)
	return &d, nil
}

func decodeAddress20(s string) ([20]byte, error) {
	var out [20]byte
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return out, fmt.Errorf("decode proposal address %q: %w", s, err)
	}
	if len(raw) != 20 {
		return out, fmt.Errorf("proposal address %q must be 20 bytes, got %d", s, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func (tr *treasuryRoutes) decodeRequest(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	reader := io.LimitReader(r.Body, treasuryRequestLimit)
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

// domainErrorStatus maps a domain error's class to the HTTP status it
// should surface as. Everything not recognized is a 500: the caller asked
// a well-formed question and the engine itself failed to answer it.
func domainErrorStatus(err error) int {
	switch {
	case errors.Is(err, domainerrors.ErrUnauthorized),
		errors.Is(err, domainerrors.ErrUnauthorizedResolver),
		errors.Is(err, domainerrors.ErrInvalidAuthMode),
		errors.Is(err, domainerrors.ErrInvalidProposalProof),
		errors.Is(err, domainerrors.ErrProposalNotPassed),
		errors.Is(err, domainerrors.ErrPayloadHashMismatch):
		return http.StatusForbidden
	case errors.Is(err, domainerrors.ErrPolicyFloorViolation),
		errors.Is(err, domainerrors.ErrDurationOutOfRange),
		errors.Is(err, domainerrors.ErrInvalidTreasuryMode),
		errors.Is(err, domainerrors.ErrTreasuryModeEnabled),
		errors.Is(err, domainerrors.ErrInvalidAssetConfig),
		errors.Is(err, domainerrors.ErrInvalidNftAmount),
		errors.Is(err, domainerrors.ErrInvalidTokenProgram),
		errors.Is(err, domainerrors.ErrMintMismatch),
		errors.Is(err, domainerrors.ErrAssetTypeMismatch),
		errors.Is(err, domainerrors.ErrRecipientMismatch),
		errors.Is(err, domainerrors.ErrInvalidVaultAccount),
		errors.Is(err, domainerrors.ErrMissingTokenAccounts),
		errors.Is(err, domainerrors.ErrIncorrectBondAmount),
		errors.Is(err, domainerrors.ErrInvalidRulingOutcome):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domainerrors.ErrInvalidStateTransition),
		errors.Is(err, domainerrors.ErrPayoutNotReleasable),
		errors.Is(err, domainerrors.ErrPayoutNotChallengeable),
		errors.Is(err, domainerrors.ErrPayoutCancellationDisabled),
		errors.Is(err, domainerrors.ErrExitCustodyNotAllowed),
		errors.Is(err, domainerrors.ErrAlreadyFinalized),
		errors.Is(err, domainerrors.ErrRulingAlreadyRecorded),
		errors.Is(err, domainerrors.ErrCannotFinalizeYet),
		errors.Is(err, domainerrors.ErrMaxAppealsReached),
		errors.Is(err, domainerrors.ErrRoundMismatch),
		errors.Is(err, domainerrors.ErrDisputeWindowExpired),
		errors.Is(err, domainerrors.ErrAppealWindowExpired),
		errors.Is(err, domainerrors.ErrChallengeBondVaultExists),
		errors.Is(err, domainerrors.ErrChallengeBondVaultNotFound),
		errors.Is(err, domainerrors.ErrChallengeNotFound):
		return http.StatusConflict
	case errors.Is(err, domainerrors.ErrInsufficientTokenBalance),
		errors.Is(err, domainerrors.ErrArithmeticOverflow),
		errors.Is(err, domainerrors.ErrArithmeticUnderflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeJSONError(w, domainErrorStatus(err), err)
}

// --- policy registry ----------------------------------------------------

type initializeSafePolicyRequest struct {
	PolicyAddress             string `json:"policy_address"`
	Authority                 string `json:"authority"`
	Resolver                  string `json:"resolver"`
	DisputeWindowSecs         uint64 `json:"dispute_window_secs"`
	ChallengeBond             uint64 `json:"challenge_bond"`
	EligibilityMint           string `json:"eligibility_mint"`
	MinTokenBalance           uint64 `json:"min_token_balance"`
	MaxAppealRounds           uint8  `json:"max_appeal_rounds"`
	AppealWindowDurationSecs  uint64 `json:"appeal_window_duration_secs"`
	PolicyHash                string `json:"policy_hash"`
	PayoutCancellationAllowed bool   `json:"payout_cancellation_allowed"`
	TreasuryModeEnabled       bool   `json:"treasury_mode_enabled"`
}

func (tr *treasuryRoutes) initializeSafePolicy(w http.ResponseWriter, r *http.Request) {
	var req initializeSafePolicyRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	policyAddr, err := decodeAddress(req.PolicyAddress)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	authority, err := decodeAddress(req.Authority)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	resolver, err := decodeAddress(req.Resolver)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	eligibilityMint, err := decodeAddress(req.EligibilityMint)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	policyHash, err := decodeHash32(req.PolicyHash)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	args := treasury.InitializeSafePolicyArgs{
		Authority:                 authority,
		Resolver:                  resolver,
		DisputeWindowSecs:         req.DisputeWindowSecs,
		ChallengeBond:             req.ChallengeBond,
		EligibilityMint:           eligibilityMint,
		MinTokenBalance:           req.MinTokenBalance,
		MaxAppealRounds:           req.MaxAppealRounds,
		AppealWindowDurationSecs:  req.AppealWindowDurationSecs,
		PayoutCancellationAllowed: req.PayoutCancellationAllowed,
		TreasuryModeEnabled:       req.TreasuryModeEnabled,
	}
	if policyHash != nil {
		args.PolicyHash = *policyHash
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	policy, err := tr.engine.InitializeSafePolicy(ctx, policyAddr, args)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

type updateSafePolicyRequest struct {
	PolicyAddress             string `json:"policy_address"`
	Caller                    string `json:"caller"`
	Resolver                  string `json:"resolver"`
	DisputeWindowSecs         uint64 `json:"dispute_window_secs"`
	ChallengeBond             uint64 `json:"challenge_bond"`
	EligibilityMint           string `json:"eligibility_mint"`
	MinTokenBalance           uint64 `json:"min_token_balance"`
	MaxAppealRounds           uint8  `json:"max_appeal_rounds"`
	AppealWindowDurationSecs  uint64 `json:"appeal_window_duration_secs"`
	PolicyHash                string `json:"policy_hash"`
	PayoutCancellationAllowed bool   `json:"payout_cancellation_allowed"`
	TreasuryModeEnabled       bool   `json:"treasury_mode_enabled"`
}

func (tr *treasuryRoutes) updateSafePolicy(w http.ResponseWriter, r *http.Request) {
	var req updateSafePolicyRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	policyAddr, err := decodeAddress(req.PolicyAddress)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := decodeAddress(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	resolver, err := decodeAddress(req.Resolver)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	eligibilityMint, err := decodeAddress(req.EligibilityMint)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	policyHash, err := decodeHash32(req.PolicyHash)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	args := treasury.UpdateSafePolicyArgs{
		Resolver:                  resolver,
		DisputeWindowSecs:         req.DisputeWindowSecs,
		ChallengeBond:             req.ChallengeBond,
		EligibilityMint:           eligibilityMint,
		MinTokenBalance:           req.MinTokenBalance,
		MaxAppealRounds:           req.MaxAppealRounds,
		AppealWindowDurationSecs:  req.AppealWindowDurationSecs,
		PayoutCancellationAllowed: req.PayoutCancellationAllowed,
		TreasuryModeEnabled:       req.TreasuryModeEnabled,
	}
	if policyHash != nil {
		args.PolicyHash = *policyHash
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	policy, err := tr.engine.UpdateSafePolicy(ctx, policyAddr, caller, args)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// --- treasury registry ---------------------------------------------------

func (tr *treasuryRoutes) initTreasuryRegistry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	registry, err := tr.engine.InitTreasuryRegistry(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registry)
}

type registerTreasuryRequest struct {
	PolicyAddress string `json:"policy_address"`
	Caller        string `json:"caller"`
	Safe          string `json:"safe"`
	Mode          uint8  `json:"mode"`
}

func (tr *treasuryRoutes) registerTreasury(w http.ResponseWriter, r *http.Request) {
	var req registerTreasuryRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	policyAddr, err := decodeAddress(req.PolicyAddress)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := decodeAddress(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	safe, err := decodeAddress(req.Safe)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	info, err := tr.engine.RegisterTreasury(ctx, policyAddr, caller, treasury.RegisterTreasuryArgs{
		Safe: safe,
		Mode: treasury.TreasuryMode(req.Mode),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// --- vaults ---------------------------------------------------------------

type initNativeVaultRequest struct {
	PolicyAddress string `json:"policy_address"`
	Safe          string `json:"safe"`
	Caller        string `json:"caller"`
}

func (tr *treasuryRoutes) initNativeVault(w http.ResponseWriter, r *http.Request) {
	var req initNativeVaultRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	policyAddr, err := decodeAddress(req.PolicyAddress)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	safe, err := decodeAddress(req.Safe)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := decodeAddress(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	vault, err := tr.engine.InitNativeVault(ctx, policyAddr, safe, caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vault)
}

type fundNativeVaultRequest struct {
	PolicyAddress string `json:"policy_address"`
	Safe          string `json:"safe"`
	Amount        uint64 `json:"amount"`
}

func (tr *treasuryRoutes) fundNativeVault(w http.ResponseWriter, r *http.Request) {
	var req fundNativeVaultRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	policyAddr, err := decodeAddress(req.PolicyAddress)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	safe, err := decodeAddress(req.Safe)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	vault, err := tr.engine.FundNativeVault(ctx, policyAddr, safe, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vault)
}

type initFungibleVaultRequest struct {
	PolicyAddress string `json:"policy_address"`
	Mint          string `json:"mint"`
	Caller        string `json:"caller"`
}

func (tr *treasuryRoutes) initFungibleVault(w http.ResponseWriter, r *http.Request) {
	var req initFungibleVaultRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	policyAddr, err := decodeAddress(req.PolicyAddress)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	mint, err := decodeAddress(req.Mint)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := decodeAddress(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	vault, err := tr.engine.InitFungibleVault(ctx, policyAddr, mint, caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vault)
}

type fundFungibleVaultRequest struct {
	PolicyAddress string `json:"policy_address"`
	Mint          string `json:"mint"`
	Amount        uint64 `json:"amount"`
}

func (tr *treasuryRoutes) fundFungibleVault(w http.ResponseWriter, r *http.Request) {
	var req fundFungibleVaultRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	policyAddr, err := decodeAddress(req.PolicyAddress)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	mint, err := decodeAddress(req.Mint)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	vault, err := tr.engine.FundFungibleVault(ctx, policyAddr, mint, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vault)
}

func (tr *treasuryRoutes) initBondVault(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	vault, err := tr.engine.InitBondVault(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vault)
}

// --- payouts ---------------------------------------------------------------

type queuePayoutRequest struct {
	PolicyAddress     string `json:"policy_address"`
	Safe              string `json:"safe"`
	AssetType         uint8  `json:"asset_type"`
	Mint              string `json:"mint"`
	Recipient         string `json:"recipient"`
	Amount            uint64 `json:"amount"`
	MetadataHash      string `json:"metadata_hash"`
	AuthorizationMode uint8  `json:"authorization_mode"`
	// Signature is a Direct-mode signature over the server-computed
	// queue payload hash (arbitrationd/core/hash.QueuePayloadHash) of
	// this request's own policy_address/recipient/asset_type/amount/
	// mint/metadata_hash fields; it is never accepted as a caller-
	// supplied digest, so a captured signature cannot be replayed
	// against different payout arguments.
	Signature    string `json:"signature"`
	ProposalAddr string `json:"proposal_addr"`
	PayloadHash  string `json:"payload_hash"`
}

func (tr *treasuryRoutes) queuePayout(w http.ResponseWriter, r *http.Request) {
	var req queuePayoutRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	policyAddr, err := decodeAddress(req.PolicyAddress)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	safe, err := decodeAddress(req.Safe)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	mint, err := decodeOptionalAddress(req.Mint)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	recipient, err := decodeAddress(req.Recipient)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	metadataHash, err := decodeDigest(req.MetadataHash)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	proposalAddr, err := decodeAddress20(req.ProposalAddr)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	payloadHash, err := decodeDigest(req.PayloadHash)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var signature []byte
	if strings.TrimSpace(req.Signature) != "" {
		signature, err = hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
		if err != nil {
			writeBadRequest(w, fmt.Errorf("decode signature: %w", err))
			return
		}
	}
	args := treasury.QueuePayoutArgs{
		AssetType:     treasury.AssetType(req.AssetType),
		Mint:          mint,
		Recipient:     recipient,
		Amount:        req.Amount,
		MetadataHash:  metadataHash,
		AuthMode:      treasury.AuthorizationMode(req.AuthorizationMode),
		Signature:     signature,
		ProposalAddr:  proposalAddr,
		PayloadHash:   payloadHash,
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	payout, err := tr.engine.QueuePayout(ctx, policyAddr, safe, args)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

type payoutIDRequest struct {
	PayoutID uint64 `json:"payout_id"`
}

type cancelPayoutRequest struct {
	PolicyAddress string `json:"policy_address"`
	Caller        string `json:"caller"`
	PayoutID      uint64 `json:"payout_id"`
}

func (tr *treasuryRoutes) cancelPayout(w http.ResponseWriter, r *http.Request) {
	var req cancelPayoutRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	policyAddr, err := decodeAddress(req.PolicyAddress)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := decodeAddress(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	payout, err := tr.engine.CancelPayout(ctx, policyAddr, caller, req.PayoutID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

type releaseNativePayoutRequest struct {
	PayoutID uint64 `json:"payout_id"`
	VaultKey string `json:"vault_key"`
}

func (tr *treasuryRoutes) releaseNativePayout(w http.ResponseWriter, r *http.Request) {
	var req releaseNativePayoutRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	vaultKey, err := decodeHash32(req.VaultKey)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if vaultKey == nil {
		writeBadRequest(w, errors.New("vault_key must not be empty"))
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	payout, err := tr.engine.ReleaseNativePayout(ctx, req.PayoutID, *vaultKey)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

type releaseFungiblePayoutRequest struct {
	PolicyAddress         string `json:"policy_address"`
	PayoutID              uint64 `json:"payout_id"`
	VaultTokenAccount     string `json:"vault_token_account"`
	RecipientTokenAccount string `json:"recipient_token_account"`
	TokenProgram          string `json:"token_program"`
}

func (tr *treasuryRoutes) releaseFungiblePayout(w http.ResponseWriter, r *http.Request) {
	var req releaseFungiblePayoutRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	policyAddr, err := decodeAddress(req.PolicyAddress)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	vaultTokenAccount, err := decodeAddress(req.VaultTokenAccount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	recipientTokenAccount, err := decodeAddress(req.RecipientTokenAccount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	tokenProgram, err := decodeAddress20(req.TokenProgram)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	payout, err := tr.engine.ReleaseFungiblePayout(ctx, policyAddr, req.PayoutID, vaultTokenAccount, recipientTokenAccount, tokenProgram)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

type exitCustodyRequest struct {
	PolicyAddress         string `json:"policy_address"`
	Caller                string `json:"caller"`
	VaultKey              string `json:"vault_key"`
	AssetType             uint8  `json:"asset_type"`
	Recipient             string `json:"recipient"`
	Mint                  string `json:"mint"`
	VaultTokenAccount     string `json:"vault_token_account"`
	RecipientTokenAccount string `json:"recipient_token_account"`
	RecipientTokenOwner   string `json:"recipient_token_owner"`
	RecipientTokenMint    string `json:"recipient_token_mint"`
	VaultTokenMint        string `json:"vault_token_mint"`
}

func (tr *treasuryRoutes) exitCustody(w http.ResponseWriter, r *http.Request) {
	var req exitCustodyRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	policyAddr, err := decodeAddress(req.PolicyAddress)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := decodeAddress(req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	vaultKey, err := decodeHash32(req.VaultKey)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if vaultKey == nil {
		writeBadRequest(w, errors.New("vault_key must not be empty"))
		return
	}
	recipient, err := decodeAddress(req.Recipient)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	mint, err := decodeOptionalAddress(req.Mint)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	args := treasury.ExitCustodyArgs{
		AssetType: treasury.AssetType(req.AssetType),
		Recipient: recipient,
		Mint:      mint,
	}
	if strings.TrimSpace(req.VaultTokenAccount) != "" {
		if args.VaultTokenAccount, err = decodeAddress(req.VaultTokenAccount); err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	if strings.TrimSpace(req.RecipientTokenAccount) != "" {
		if args.RecipientTokenAccount, err = decodeAddress(req.RecipientTokenAccount); err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	if strings.TrimSpace(req.RecipientTokenOwner) != "" {
		if args.RecipientTokenOwner, err = decodeAddress(req.RecipientTokenOwner); err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	if strings.TrimSpace(req.RecipientTokenMint) != "" {
		if args.RecipientTokenMint, err = decodeAddress(req.RecipientTokenMint); err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	if strings.TrimSpace(req.VaultTokenMint) != "" {
		if args.VaultTokenMint, err = decodeAddress(req.VaultTokenMint); err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	if err := tr.engine.ExitCustody(ctx, policyAddr, caller, *vaultKey, args); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- dispute protocol --------------------------------------------------

type challengePayoutRequest struct {
	PayoutID   uint64 `json:"payout_id"`
	Challenger string `json:"challenger"`
	BondAmount uint64 `json:"bond_amount"`
}

func (tr *treasuryRoutes) challengePayout(w http.ResponseWriter, r *http.Request) {
	var req challengePayoutRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	challenger, err := decodeAddress(req.Challenger)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	payout, challenge, err := tr.engine.ChallengePayout(ctx, req.PayoutID, challenger, req.BondAmount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payout": payout, "challenge": challenge})
}

type recordRulingRequest struct {
	PayoutID uint64 `json:"payout_id"`
	Round    uint8  `json:"round"`
	Outcome  uint8  `json:"outcome"`
	IsFinal  bool   `json:"is_final"`
	AuthMode uint8  `json:"authorization_mode"`
	// Signature is a Direct-mode signature over the server-computed
	// ruling payload hash (arbitrationd/core/hash.RulingPayloadHash) of
	// this request's own payout_id/round/outcome/is_final fields, by
	// the payout's policy_snapshot.Resolver.
	Signature     string `json:"signature"`
	ProposalAddr  string `json:"proposal_addr"`
	PayloadHash   string `json:"payload_hash"`
	ProposalState *uint8 `json:"proposal_state"`
}

func (tr *treasuryRoutes) recordRuling(w http.ResponseWriter, r *http.Request) {
	var req recordRulingRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	proposalAddr, err := decodeAddress20(req.ProposalAddr)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	payloadHash, err := decodeDigest(req.PayloadHash)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var signature []byte
	if strings.TrimSpace(req.Signature) != "" {
		signature, err = hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
		if err != nil {
			writeBadRequest(w, fmt.Errorf("decode signature: %w", err))
			return
		}
	}
	args := treasury.RecordRulingArgs{
		Round:         req.Round,
		Outcome:       treasury.RulingOutcome(req.Outcome),
		IsFinal:       req.IsFinal,
		AuthMode:      treasury.AuthorizationMode(req.AuthMode),
		Signature:     signature,
		ProposalAddr:  proposalAddr,
		PayloadHash:   payloadHash,
		ProposalState: req.ProposalState,
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	payout, err := tr.engine.RecordRuling(ctx, req.PayoutID, args)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

type appealRulingRequest struct {
	PayoutID  uint64 `json:"payout_id"`
	Appellant string `json:"appellant"`
}

func (tr *treasuryRoutes) appealRuling(w http.ResponseWriter, r *http.Request) {
	var req appealRulingRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	appellant, err := decodeAddress(req.Appellant)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	payout, challenge, requiredBond, err := tr.engine.AppealRuling(ctx, req.PayoutID, appellant)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"payout":        payout,
		"challenge":     challenge,
		"required_bond": requiredBond,
	})
}

func (tr *treasuryRoutes) finalizeRuling(w http.ResponseWriter, r *http.Request) {
	var req payoutIDRequest
	if err := tr.decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := tr.context(r.Context())
	defer cancel()
	payout, err := tr.engine.FinalizeRuling(ctx, req.PayoutID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}
