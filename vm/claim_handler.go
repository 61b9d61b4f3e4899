package vm

import "fmt"

// ClaimNativeTxHandler recipient 领取锁定的原生币，只能领一次
type ClaimNativeTxHandler struct{ vaultHandler }

func (h *ClaimNativeTxHandler) Kind() string {
	return KindClaimNative
}

func (h *ClaimNativeTxHandler) DryRun(tx *Tx, sv StateView) ([]WriteOp, *Receipt, error) {
	if _, err := contentAs[ClaimNative](tx); err != nil {
		return fail(tx, err)
	}
	l := h.ledger(sv)
	v, err := loadAuthorized(l, tx, RoleRecipient, ErrNotRecipient)
	if err != nil {
		return fail(tx, err)
	}
	if !v.IsReleased {
		return fail(tx, ErrNotReleased)
	}
	amount := v.LockedNativeAmount
	if amount == 0 {
		return fail(tx, ErrNoLockedNative)
	}
	if err := l.TransferNative(tx.Vault, tx.Caller, amount); err != nil {
		return fail(tx, err)
	}
	v.LockedNativeAmount = 0
	if err := l.StoreVault(tx.Vault, v); err != nil {
		return fail(tx, err)
	}
	return succeed(tx, sv, fmt.Sprintf("claimed %d native to recipient %s", amount, tx.Caller))
}

func (h *ClaimNativeTxHandler) Apply(tx *Tx) error {
	return ErrNotImplemented
}

// ClaimAssetTxHandler recipient 领取锁定资产，并关闭 vault 子账户退还保留金
type ClaimAssetTxHandler struct{ vaultHandler }

func (h *ClaimAssetTxHandler) Kind() string {
	return KindClaimAsset
}

func (h *ClaimAssetTxHandler) DryRun(tx *Tx, sv StateView) ([]WriteOp, *Receipt, error) {
	args, err := contentAs[ClaimAsset](tx)
	if err != nil {
		return fail(tx, err)
	}
	l := h.ledger(sv)
	v, err := loadAuthorized(l, tx, RoleRecipient, ErrNotRecipient)
	if err != nil {
		return fail(tx, err)
	}
	if !v.IsReleased {
		return fail(tx, ErrNotReleased)
	}
	if v.AssetMint == nil {
		return fail(tx, ErrNoAssetLocked)
	}
	if v.LockedAssetAmount == 0 {
		return fail(tx, ErrAlreadyClaimed)
	}
	if args.Mint != *v.AssetMint {
		return fail(tx, ErrInvalidMint.Withf("vault holds %s, got %s", *v.AssetMint, args.Mint))
	}

	amount := v.LockedAssetAmount
	mint := *v.AssetMint
	if _, err := l.EnsureAssetAccount(tx.Caller, tx.Caller, mint); err != nil {
		return fail(tx, err)
	}
	if err := l.TransferAsset(tx.Vault, tx.Caller, mint, amount); err != nil {
		return fail(tx, err)
	}
	refund, err := l.CloseAssetAccount(tx.Vault, mint, tx.Caller)
	if err != nil {
		return fail(tx, err)
	}
	v.LockedAssetAmount = 0
	if err := l.StoreVault(tx.Vault, v); err != nil {
		return fail(tx, err)
	}
	return succeed(tx, sv,
		fmt.Sprintf("claimed %d of mint %s to recipient %s", amount, mint, tx.Caller),
		fmt.Sprintf("vault asset account closed, %d refunded", refund),
	)
}

func (h *ClaimAssetTxHandler) Apply(tx *Tx) error {
	return ErrNotImplemented
}
