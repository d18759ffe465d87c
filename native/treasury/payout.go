package treasury

import (
	"bytes"
	"context"
	"fmt"

	domainerrors "arbitrationd/core/errors"
	"arbitrationd/core/events"
	"arbitrationd/core/hash"
	"arbitrationd/crypto"
)

// QueuePayoutArgs carries every field needed to compute a payout's
// identity and open its dispute window. AuthorizationMode selects which of
// Signature or (Proposal, PayloadHash) is populated.
type QueuePayoutArgs struct {
	AssetType    AssetType
	Mint         *crypto.Address
	Recipient    crypto.Address
	Amount       uint64
	MetadataHash *hash.Digest

	AuthMode     AuthorizationMode
	Signature    []byte       // AuthModeDirect: signature over the queue payload hash
	ProposalAddr [20]byte     // AuthModeGovernanceProof
	PayloadHash  *hash.Digest // AuthModeGovernanceProof
}

// validateAssetConfig enforces the per-asset-type shape invariants: Native
// payouts never carry a mint and must be non-zero, fungible payouts always
// carry a mint and must be non-zero, NFT payouts always carry a mint and
// must move exactly one unit.
func validateAssetConfig(assetType AssetType, mint *crypto.Address, amount uint64) error {
	switch assetType {
	case AssetTypeNative:
		if mint != nil {
			return fmt.Errorf("%w: native payout must not specify a mint", domainerrors.ErrInvalidAssetConfig)
		}
		if amount == 0 {
			return fmt.Errorf("%w: native payout amount must be positive", domainerrors.ErrInvalidAssetConfig)
		}
	case AssetTypeFungible, AssetTypeFungible2022:
		if mint == nil {
			return fmt.Errorf("%w: fungible payout requires a mint", domainerrors.ErrInvalidAssetConfig)
		}
		if amount == 0 {
			return fmt.Errorf("%w: fungible payout amount must be positive", domainerrors.ErrInvalidAssetConfig)
		}
	case AssetTypeNFT:
		if mint == nil {
			return fmt.Errorf("%w: nft payout requires a mint", domainerrors.ErrInvalidAssetConfig)
		}
		if amount != 1 {
			return domainerrors.ErrInvalidNftAmount
		}
	default:
		return domainerrors.ErrInvalidAssetConfig
	}
	return nil
}

// QueuePayout opens a new payout against policyAddr's safe. The caller is
// authorized either directly (a signature from the policy's authority) or
// through a passed governance proposal bound to these exact arguments by
// payload hash. A value copy of the policy in force at this moment is
// frozen onto the payout as policy_snapshot.
func QueuePayout(ctx context.Context, store Store, emitter events.Emitter, reader ProposalReader, known KnownGovernancePrograms, policyAddr, safe crypto.Address, now int64, args QueuePayoutArgs) (Payout, error) {
	policy, err := store.GetPolicy(ctx, policyAddr)
	if err != nil {
		return Payout{}, fmt.Errorf("load policy: %w", err)
	}

	if err := validateAssetConfig(args.AssetType, args.Mint, args.Amount); err != nil {
		return Payout{}, err
	}

	switch args.AuthMode {
	case AuthModeDirect:
		var directSafeArr, directRecipArr [20]byte
		copy(directSafeArr[:], policyAddr.Bytes())
		copy(directRecipArr[:], args.Recipient.Bytes())
		var directMintArr *[20]byte
		if args.Mint != nil {
			var m [20]byte
			copy(m[:], args.Mint.Bytes())
			directMintArr = &m
		}
		digest := hash.QueuePayloadHash(directSafeArr, directRecipArr, byte(args.AssetType), args.Amount, directMintArr, args.MetadataHash)
		if err := DirectAuth(digest, args.Signature, policy.Authority); err != nil {
			return Payout{}, err
		}
	case AuthModeGovernanceProof:
		if err := GovernanceQueueAuth(reader, known, args.ProposalAddr, policy.Authority, args.PayloadHash, policyAddr, args.Recipient, args.AssetType, args.Amount, args.Mint, args.MetadataHash); err != nil {
			return Payout{}, err
		}
	default:
		return Payout{}, domainerrors.ErrInvalidAuthMode
	}

	var safeArr, recipArr [20]byte
	copy(safeArr[:], safe.Bytes())
	copy(recipArr[:], args.Recipient.Bytes())
	var mintArr *[20]byte
	if args.Mint != nil {
		var m [20]byte
		copy(m[:], args.Mint.Bytes())
		mintArr = &m
	}
	payoutID := hash.PayoutID(safeArr, recipArr, byte(args.AssetType), args.Amount, mintArr, args.MetadataHash)

	deadline, err := addDuration(now, policy.DisputeWindowSecs)
	if err != nil {
		return Payout{}, err
	}

	payout := Payout{
		PayoutID:        payoutID,
		PayoutIndex:     policy.PayoutCount,
		Safe:            safe,
		AssetType:       args.AssetType,
		Mint:            args.Mint,
		Recipient:       args.Recipient,
		Amount:          args.Amount,
		MetadataHash:    args.MetadataHash,
		Status:          PayoutStatusQueued,
		DisputeDeadline: deadline,
		PolicySnapshot:  policy.Clone(),
		ChallengeID:     nil,
		DisputeRound:    0,
		Finalized:       false,
		FinalOutcome:    nil,
	}

	newCount, err := checkedAdd(policy.PayoutCount, 1)
	if err != nil {
		return Payout{}, err
	}
	policy.PayoutCount = newCount

	if err := store.PutPayout(ctx, payout); err != nil {
		return Payout{}, fmt.Errorf("persist payout: %w", err)
	}
	if err := store.PutPolicy(ctx, policyAddr, policy); err != nil {
		return Payout{}, fmt.Errorf("persist policy: %w", err)
	}
	emitter.Emit(NewPayoutQueuedEvent(payout))
	return payout, nil
}

// NativeLedger is the external collaborator responsible for actually
// moving native units this package only accounts for in vault balances: it
// credits a recipient directly, mirroring TokenService.TransferAsVaultAuthority's
// role for fungible/NFT transfers but without a token account or mint on
// either side of the move.
type NativeLedger interface {
	CreditNative(ctx context.Context, recipient crypto.Address, amount uint64) error
}

// ReleaseNativePayout moves a releasable Native payout's amount from its
// safe's native vault to the recipient. The vault's claimed identity is
// re-derived and checked against (safe, "native_vault") before any balance
// moves, so a caller cannot substitute an unrelated vault record.
func ReleaseNativePayout(ctx context.Context, store Store, emitter events.Emitter, ledger NativeLedger, payoutID uint64, vaultKey [32]byte, now int64) (Payout, error) {
	payout, err := store.GetPayout(ctx, payoutID)
	if err != nil {
		return Payout{}, fmt.Errorf("load payout: %w", err)
	}
	if payout.Status != PayoutStatusQueued {
		return Payout{}, domainerrors.ErrInvalidStateTransition
	}
	if !payout.IsReleasableAt(now) {
		return Payout{}, domainerrors.ErrPayoutNotReleasable
	}
	if payout.AssetType != AssetTypeNative {
		return Payout{}, domainerrors.ErrAssetTypeMismatch
	}

	vault, err := store.GetNativeVault(ctx, payout.Safe)
	if err != nil {
		return Payout{}, fmt.Errorf("load vault: %w", err)
	}
	if err := VerifyNativeVaultBinding(vault, vaultKey, payout.PolicySnapshot.Authority); err != nil {
		return Payout{}, err
	}

	newVaultBalance, err := checkedSub(vault.Balance, payout.Amount)
	if err != nil {
		return Payout{}, err
	}
	vault.Balance = newVaultBalance

	if err := ledger.CreditNative(ctx, payout.Recipient, payout.Amount); err != nil {
		return Payout{}, fmt.Errorf("credit recipient: %w", err)
	}

	payout.Status = PayoutStatusReleased
	if err := store.PutNativeVault(ctx, vault); err != nil {
		return Payout{}, fmt.Errorf("persist vault: %w", err)
	}
	if err := store.PutPayout(ctx, payout); err != nil {
		return Payout{}, fmt.Errorf("persist payout: %w", err)
	}
	emitter.Emit(NewPayoutReleasedEvent(payout.Safe, payout.PayoutID, payout.Recipient, payout.Amount, payout.AssetType))
	return payout, nil
}

// TokenService is the external collaborator responsible for the actual
// fungible/NFT ledger this service never models directly: it debits a
// vault token account and credits a recipient token account "as" the
// policy's own authority (mirroring the Anchor PDA-signer CPI, so a
// recipient/mint mismatch can never be satisfied by a malicious
// caller-supplied authority).
type TokenService interface {
	TransferAsVaultAuthority(ctx context.Context, policyAddr crypto.Address, mint, fromVault, toRecipient crypto.Address, amount uint64) error
}

// Well-known token program identities, derived the same way
// KnownGovernancePrograms derives a configured program name down to the
// 20-byte address space (hash.ProgramID). Fungible payouts move through
// the standard token program; Fungible2022 payouts move through its 2022
// successor; NFT payouts are always standard-program mints.
var (
	StandardTokenProgramID = hash.ProgramID("spl-token")
	Token2022ProgramID     = hash.ProgramID("spl-token-2022")
)

// expectedTokenProgram reports which program identity a payout's asset
// type must move through.
func expectedTokenProgram(assetType AssetType) ([20]byte, error) {
	switch assetType {
	case AssetTypeFungible2022:
		return Token2022ProgramID, nil
	case AssetTypeFungible, AssetTypeNFT:
		return StandardTokenProgramID, nil
	default:
		return [20]byte{}, domainerrors.ErrInvalidAssetConfig
	}
}

// validateTokenProgramForAssetType checks that the token program a caller
// names to carry out a fungible/NFT transfer matches the one the asset
// type is actually custodied under, mirroring the original program's
// validate_token_program_for_asset_type.
func validateTokenProgramForAssetType(assetType AssetType, tokenProgram [20]byte) error {
	expected, err := expectedTokenProgram(assetType)
	if err != nil {
		return err
	}
	if tokenProgram != expected {
		return domainerrors.ErrInvalidTokenProgram
	}
	return nil
}

// ReleaseFungiblePayout moves a releasable Spl/Spl2022/NFT payout's amount
// (always exactly 1 for NFTs) out of the per-(policy,mint) fungible vault.
func ReleaseFungiblePayout(ctx context.Context, store Store, emitter events.Emitter, tokens TokenService, policyAddr crypto.Address, payoutID uint64, vaultTokenAccount, recipientTokenAccount crypto.Address, tokenProgram [20]byte, now int64) (Payout, error) {
	payout, err := store.GetPayout(ctx, payoutID)
	if err != nil {
		return Payout{}, fmt.Errorf("load payout: %w", err)
	}
	if payout.Status != PayoutStatusQueued {
		return Payout{}, domainerrors.ErrInvalidStateTransition
	}
	if !payout.IsReleasableAt(now) {
		return Payout{}, domainerrors.ErrPayoutNotReleasable
	}
	switch payout.AssetType {
	case AssetTypeFungible, AssetTypeFungible2022, AssetTypeNFT:
	default:
		return Payout{}, domainerrors.ErrAssetTypeMismatch
	}
	if payout.Mint == nil {
		return Payout{}, domainerrors.ErrInvalidAssetConfig
	}
	if err := validateTokenProgramForAssetType(payout.AssetType, tokenProgram); err != nil {
		return Payout{}, err
	}

	transferAmount := payout.Amount
	if payout.AssetType == AssetTypeNFT {
		transferAmount = 1
	}

	if err := tokens.TransferAsVaultAuthority(ctx, policyAddr, *payout.Mint, vaultTokenAccount, recipientTokenAccount, transferAmount); err != nil {
		return Payout{}, fmt.Errorf("transfer payout: %w", err)
	}

	payout.Status = PayoutStatusReleased
	if err := store.PutPayout(ctx, payout); err != nil {
		return Payout{}, fmt.Errorf("persist payout: %w", err)
	}
	emitter.Emit(NewPayoutReleasedEvent(payout.Safe, payout.PayoutID, payout.Recipient, transferAmount, payout.AssetType))
	return payout, nil
}

// CancelPayout voids a still-Queued payout. Only the owning policy's
// authority may call this, and only when the policy permits cancellation.
func CancelPayout(ctx context.Context, store Store, emitter events.Emitter, policyAddr crypto.Address, caller crypto.Address, payoutID uint64) (Payout, error) {
	policy, err := store.GetPolicy(ctx, policyAddr)
	if err != nil {
		return Payout{}, fmt.Errorf("load policy: %w", err)
	}
	if !bytes.Equal(caller.Bytes(), policy.Authority.Bytes()) {
		return Payout{}, domainerrors.ErrUnauthorized
	}
	if !policy.PayoutCancellationAllowed {
		return Payout{}, domainerrors.ErrPayoutCancellationDisabled
	}

	payout, err := store.GetPayout(ctx, payoutID)
	if err != nil {
		return Payout{}, fmt.Errorf("load payout: %w", err)
	}
	if payout.Status != PayoutStatusQueued {
		return Payout{}, domainerrors.ErrInvalidStateTransition
	}

	payout.Status = PayoutStatusCancelled
	if err := store.PutPayout(ctx, payout); err != nil {
		return Payout{}, fmt.Errorf("persist payout: %w", err)
	}
	emitter.Emit(NewPayoutCancelledEvent(payout.Safe, payout.PayoutID))
	return payout, nil
}

// ExitCustodyArgs selects which vault is being swept and to where.
type ExitCustodyArgs struct {
	AssetType AssetType
	Recipient crypto.Address
	// Fungible/NFT only:
	Mint                  *crypto.Address
	VaultTokenAccount     crypto.Address
	RecipientTokenAccount crypto.Address
	RecipientTokenOwner   crypto.Address
	RecipientTokenMint    crypto.Address
	VaultTokenMint        crypto.Address
}

// ExitCustody sweeps an entire vault's balance to a recipient, bypassing
// the payout queue entirely. Only available when the policy explicitly
// allows it (exit_custody_allowed), and only to the recipient the caller
// names in args.
func ExitCustody(ctx context.Context, store Store, emitter events.Emitter, tokens TokenService, ledger NativeLedger, policyAddr crypto.Address, caller crypto.Address, vaultKey [32]byte, args ExitCustodyArgs) error {
	policy, err := store.GetPolicy(ctx, policyAddr)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	if !bytes.Equal(caller.Bytes(), policy.Authority.Bytes()) {
		return domainerrors.ErrUnauthorized
	}
	if !policy.ExitCustodyAllowed {
		return domainerrors.ErrExitCustodyNotAllowed
	}

	switch args.AssetType {
	case AssetTypeNative:
		vault, err := store.GetNativeVault(ctx, policy.Authority)
		if err != nil {
			return fmt.Errorf("load vault: %w", err)
		}
		if err := VerifyNativeVaultBinding(vault, vaultKey, policy.Authority); err != nil {
			return err
		}
		swept := vault.Balance
		vault.Balance = 0
		if err := ledger.CreditNative(ctx, args.Recipient, swept); err != nil {
			return fmt.Errorf("credit recipient: %w", err)
		}
		if err := store.PutNativeVault(ctx, vault); err != nil {
			return fmt.Errorf("persist vault: %w", err)
		}
	case AssetTypeFungible, AssetTypeFungible2022, AssetTypeNFT:
		if args.Mint == nil {
			return domainerrors.ErrMissingTokenAccounts
		}
		if !bytes.Equal(args.RecipientTokenOwner.Bytes(), args.Recipient.Bytes()) {
			return domainerrors.ErrRecipientMismatch
		}
		if !bytes.Equal(args.RecipientTokenMint.Bytes(), args.VaultTokenMint.Bytes()) {
			return domainerrors.ErrMintMismatch
		}
		if !bytes.Equal(args.Mint.Bytes(), args.VaultTokenMint.Bytes()) {
			return domainerrors.ErrMintMismatch
		}
		fv, err := store.GetFungibleVault(ctx, policyAddr, *args.Mint)
		if err != nil {
			return fmt.Errorf("load vault: %w", err)
		}
		if err := tokens.TransferAsVaultAuthority(ctx, policyAddr, *args.Mint, args.VaultTokenAccount, args.RecipientTokenAccount, fv.Balance); err != nil {
			return fmt.Errorf("transfer custody: %w", err)
		}
		fv.Balance = 0
		if err := store.PutFungibleVault(ctx, fv); err != nil {
			return fmt.Errorf("persist vault: %w", err)
		}
	default:
		return domainerrors.ErrInvalidAssetConfig
	}

	emitter.Emit(NewCustodyExitedEvent(policyAddr, args.AssetType, args.Recipient))
	return nil
}
